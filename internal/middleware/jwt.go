package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// parseBearer validates the Authorization header against the HS256 secret
// and returns the claims, or nil when no valid bearer token is present.
func parseBearer(c echo.Context, secret string) jwt.MapClaims {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil
	}
	raw := strings.TrimPrefix(auth, "Bearer ")
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return nil
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	return claims
}

func setIdentity(c echo.Context, claims jwt.MapClaims) {
	c.Set("user_id", claims["sub"])
	c.Set("role", claims["role"])
	c.Set("username", claims["username"])
}

// JWTAuth returns an Echo middleware that requires a valid Bearer access
// token and injects the subject, role and username claims into the request
// context for handlers and RequireRole to consume.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := parseBearer(c, secret)
			if claims == nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "missing or invalid bearer token"})
			}
			setIdentity(c, claims)
			return next(c)
		}
	}
}

// OptionalJWTAuth injects identity when a valid token is present but lets
// anonymous requests through. Used on read endpoints that enrich their
// response for authenticated callers, like the tool detail view.
func OptionalJWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if claims := parseBearer(c, secret); claims != nil {
				setIdentity(c, claims)
			}
			return next(c)
		}
	}
}
