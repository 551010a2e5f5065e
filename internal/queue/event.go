// Package queue defines message payloads exchanged over the message broker
// and the background consumer that drains them.
package queue

// TwoFactorCodeEvent is published when a login requires two-factor
// verification. The external messenger owns actual delivery; this payload
// carries everything it needs without querying the primary database.
type TwoFactorCodeEvent struct {
	UserID        uint64 `json:"user_id"`
	Username      string `json:"username"`
	NotifyAddress string `json:"notify_address"`
	Code          string `json:"code"`
	ExpiresAt     string `json:"expires_at"`
	IssuedAt      string `json:"issued_at"`
}
