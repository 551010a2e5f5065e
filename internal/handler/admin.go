package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dmarves/toolshare/internal/model"
	"github.com/dmarves/toolshare/internal/repository"
	"github.com/dmarves/toolshare/internal/service"
)

// AdminHandler serves the admin panel: user management and the read side
// of the audit trail.
type AdminHandler struct {
	Users repository.UserStore
	Audit *service.AuditRecorder
}

func NewAdminHandler(users repository.UserStore, audit *service.AuditRecorder) *AdminHandler {
	return &AdminHandler{Users: users, Audit: audit}
}

type adminUser struct {
	ID        uint64     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	TwoFactor bool       `json:"two_factor_enabled"`
	IsActive  bool       `json:"is_active"`
}

// ListUsers handles GET /v1/admin/users.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	users, err := h.Users.List(ctx, queryInt(c, "skip", 0), queryInt(c, "limit", 100))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "list users failed"})
	}
	out := make([]adminUser, 0, len(users))
	for _, u := range users {
		out = append(out, adminUser{
			ID: u.ID, Username: u.Username, Email: u.Email,
			Role: u.Role, TwoFactor: u.TwoFactor, IsActive: u.IsActive,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"users": out})
}

// UpdateRole handles PUT /v1/admin/users/:id/role.
func (h *AdminHandler) UpdateRole(c echo.Context) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid body"})
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "invalid role"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.UpdateRole(ctx, id, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "update role failed"})
	}
	_ = h.Audit.Record(ctx, actorID, "role_change", "user", id, map[string]any{"role": role.String()})
	return c.JSON(http.StatusOK, echo.Map{"id": id, "role": role})
}

// UserActivity handles GET /v1/admin/audit/users/:id.
func (h *AdminHandler) UserActivity(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	logs, err := h.Audit.UserActivity(ctx, id, queryInt(c, "limit", 50))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load activity failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"logs": logs})
}

// EntityHistory handles GET /v1/admin/audit/:entity/:id.
func (h *AdminHandler) EntityHistory(c echo.Context) error {
	entity := strings.TrimSpace(c.Param("entity"))
	if entity == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "entity type required"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	logs, err := h.Audit.EntityHistory(ctx, entity, id, queryInt(c, "limit", 50))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load history failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"logs": logs})
}
