package model

import (
	"encoding/json"
	"time"
)

// AuditLog is an append-only activity record. Rows are never updated or
// deleted; UserID is nullable so history survives removal of the actor.
// Details holds the raw JSON payload written at record time.
type AuditLog struct {
	ID         uint64          `json:"id"`
	UserID     *uint64         `json:"user_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   *uint64         `json:"entity_id"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
