package model

import (
	"fmt"
	"strings"
	"time"
)

// Role is a closed enumeration of the three privilege levels. The string
// values match what is stored in the users.role column and in the JWT
// "role" claim.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Level returns the privilege rank of a role. Higher means more privileged.
// Unknown roles rank below every defined role.
func (r Role) Level() int {
	switch r {
	case RoleUser:
		return 1
	case RoleModerator:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// Valid reports whether r is one of the three defined roles.
func (r Role) Valid() bool { return r.Level() > 0 }

func (r Role) String() string { return string(r) }

// ParseRole normalizes case and whitespace and returns the matching Role.
// An error is returned for anything outside the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// User mirrors the 'users' table.
//
// NotifyAddress is the routing key on the external messaging channel that
// two-factor codes are delivered to. It is empty until the user sets up 2FA.
type User struct {
	ID            uint64
	Username      string
	Email         string
	PasswordHash  string
	Role          Role
	NotifyAddress string
	TwoFactor     bool
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
