package router

import (
	"github.com/labstack/echo/v4"

	"github.com/dmarves/toolshare/internal/handler"
	"github.com/dmarves/toolshare/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance. Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth wires the authentication endpoints. Unauthenticated
// operations live under /v1/auth; session-bound ones (2FA setup, me)
// run behind the JWT middleware. The optional limit middleware is the
// Redis token bucket applied to credential-bearing endpoints only.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, limit)
	g.POST("/login", a.Login, limit)
	g.POST("/2fa/verify", a.Verify2FA, limit)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole(middleware.AnyAuthenticated))
	auth.GET("/me", a.Me)
	auth.POST("/auth/2fa/setup", a.Setup2FA)
	auth.POST("/auth/2fa/disable", a.Disable2FA)
}

// RegisterTools wires the catalog, rating and comment endpoints. Browse
// routes are public but carry OptionalJWTAuth so the detail view can
// include the caller's own rating when a token is present. Mutations sit
// behind the JWT middleware; moderation additionally behind the
// moderator-or-admin gate.
func RegisterTools(e *echo.Echo, t *handler.ToolHandler, jwtSecret string) {
	pub := e.Group("/v1")
	pub.Use(middleware.OptionalJWTAuth(jwtSecret))
	pub.GET("/tools", t.List)
	pub.GET("/tools/search", t.Search)
	pub.GET("/tools/stats", t.Stats)
	pub.GET("/tools/:id", t.Get)
	pub.GET("/tools/:id/ratings", t.RatingSummary)
	pub.GET("/tools/:id/comments", t.ListComments)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole(middleware.AnyAuthenticated))
	auth.POST("/tools", t.Create)
	auth.GET("/tools/my", t.My)
	auth.PUT("/tools/:id", t.Update)
	auth.DELETE("/tools/:id", t.Delete)
	auth.POST("/tools/:id/rate", t.Rate)
	auth.POST("/tools/:id/comments", t.AddComment)
	auth.DELETE("/comments/:id", t.DeleteComment)
	auth.POST("/comments/:id/vote", t.VoteComment)

	mod := e.Group("/v1")
	mod.Use(middleware.JWTAuth(jwtSecret))
	mod.Use(middleware.RequireRole(middleware.ModeratorOrAdmin))
	mod.POST("/tools/:id/approve", t.Decide)
	mod.GET("/tools/pending", t.Pending)
}

// RegisterAdmin wires user management and the audit trail read side.
// Entity history is open to moderators so they can see prior decisions;
// everything else is admin-only.
func RegisterAdmin(e *echo.Echo, ad *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))

	mod := g.Group("", middleware.RequireRole(middleware.ModeratorOrAdmin))
	mod.GET("/audit/:entity/:id", ad.EntityHistory)

	adm := g.Group("", middleware.RequireRole(middleware.AdminOnly))
	adm.GET("/users", ad.ListUsers)
	adm.PUT("/users/:id/role", ad.UpdateRole)
	adm.GET("/audit/users/:id", ad.UserActivity)
}
