package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dmarves/toolshare/internal/model"
	"github.com/dmarves/toolshare/internal/repository"
)

type decisionReq struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// Decide handles POST /v1/tools/:id/approve behind the moderator-or-admin
// gate. The reason is optional and only meaningful on rejection. Approval
// and rejection are only valid while the tool is pending; re-deciding a
// terminal tool is rejected with 409 rather than applied idempotently, so
// a second moderator learns the tool was already handled.
func (h *ToolHandler) Decide(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}
	var req decisionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid body"})
	}
	reason := strings.TrimSpace(req.Reason)

	ctx, cancel := reqCtx(c)
	defer cancel()

	tool, err := h.Tools.Decide(ctx, id, uid, req.Approved, reason)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "tool not found"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"detail": "tool has already been decided"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "decide tool failed"})
	}

	h.invalidate(c)
	action := "approve"
	details := map[string]any{"name": tool.Name}
	if !req.Approved {
		action = "reject"
		if reason != "" {
			details["reason"] = reason
		}
	}
	_ = h.Audit.Record(ctx, uid, action, "tool", id, details)
	return c.JSON(http.StatusOK, tool)
}

// Pending handles GET /v1/tools/pending, the moderation queue. Oldest
// submissions come last because List orders newest first like everywhere
// else.
func (h *ToolHandler) Pending(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	tools, total, err := h.Tools.List(ctx, repository.ToolFilter{
		Status: model.StatusPending,
		Offset: queryInt(c, "skip", 0),
		Limit:  queryInt(c, "limit", 100),
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "list pending failed"})
	}
	return c.JSON(http.StatusOK, toolListResp{Tools: tools, Total: total})
}
