// Package handler implements the HTTP surface of the API.
package handler

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dmarves/toolshare/internal/model"
)

// dbTimeout bounds every unit-of-work against the persistent store.
const dbTimeout = 5 * time.Second

// reqCtx derives a bounded context from the request.
func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// getUserID extracts the authenticated user id from the context. JWT
// numeric claims decode as float64, so several representations are
// accepted.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// callerRole returns the caller's role from the context, or the zero Role
// when unauthenticated.
func callerRole(c echo.Context) model.Role {
	raw, _ := c.Get("role").(string)
	role, err := model.ParseRole(raw)
	if err != nil {
		return ""
	}
	return role
}

// callerUsername returns the username claim, if any.
func callerUsername(c echo.Context) string {
	name, _ := c.Get("username").(string)
	return name
}

// pathID parses the :id (or named) route parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

// queryInt parses an integer query parameter with a default.
func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// round2 rounds an average rating to two decimals for display.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
