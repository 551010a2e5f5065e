package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dmarves/toolshare/internal/model"
)

// PermissionDeniedError is returned by a RoleGate when the caller's role
// is outside the permitted set. Allowed carries the roles that would have
// been accepted, in gate order, so the 403 body can name them.
type PermissionDeniedError struct {
	Allowed []model.Role
}

func (e *PermissionDeniedError) Error() string {
	names := make([]string, len(e.Allowed))
	for i, r := range e.Allowed {
		names[i] = r.String()
	}
	return fmt.Sprintf("access denied, required role: %s", strings.Join(names, ", "))
}

// RoleGate is a pure authorization predicate over an ordered set of
// permitted roles. It has no side effects and is shared by the Echo
// middleware below and by handlers that gate individual operations.
type RoleGate struct {
	allowed []model.Role
	set     map[model.Role]bool
}

// NewRoleGate builds a gate permitting exactly the given roles.
func NewRoleGate(roles ...model.Role) RoleGate {
	g := RoleGate{allowed: roles, set: make(map[model.Role]bool, len(roles))}
	for _, r := range roles {
		g.set[r] = true
	}
	return g
}

// Check returns nil when role is permitted and a *PermissionDeniedError
// naming the acceptable roles otherwise.
func (g RoleGate) Check(role model.Role) error {
	if g.set[role] {
		return nil
	}
	return &PermissionDeniedError{Allowed: g.allowed}
}

// The three canonical gates used across the API.
var (
	AdminOnly        = NewRoleGate(model.RoleAdmin)
	ModeratorOrAdmin = NewRoleGate(model.RoleModerator, model.RoleAdmin)
	AnyAuthenticated = NewRoleGate(model.RoleUser, model.RoleModerator, model.RoleAdmin)
)

// RequireRole wraps a RoleGate as Echo middleware. It assumes JWTAuth has
// already stored the caller's role in the context under "role"; a missing
// or malformed role is rejected the same way as a disallowed one.
func RequireRole(gate RoleGate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, _ := c.Get("role").(string)
			role, err := model.ParseRole(raw)
			if err != nil {
				role = ""
			}
			if err := gate.Check(role); err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"detail": err.Error()})
			}
			return next(c)
		}
	}
}
