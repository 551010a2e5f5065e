package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dmarves/toolshare/internal/cache"
	"github.com/dmarves/toolshare/internal/config"
	"github.com/dmarves/toolshare/internal/model"
	"github.com/dmarves/toolshare/internal/repository"
	"github.com/dmarves/toolshare/internal/service"
)

// ToolHandler orchestrates the tool lifecycle. Every mutating operation
// runs the same sequence: authorization, persistence, cache invalidation,
// audit record. The last two are best-effort and never roll back a
// committed mutation.
type ToolHandler struct {
	Tools    repository.ToolStore
	Ratings  repository.RatingStore
	Cache    cache.Store
	Audit    *service.AuditRecorder
	CacheCfg config.CacheConfig
}

func NewToolHandler(tools repository.ToolStore, ratings repository.RatingStore,
	store cache.Store, audit *service.AuditRecorder, cacheCfg config.CacheConfig) *ToolHandler {
	return &ToolHandler{Tools: tools, Ratings: ratings, Cache: store, Audit: audit, CacheCfg: cacheCfg}
}

func (h *ToolHandler) statsKey() string { return h.CacheCfg.Prefix + ":stats" }

// invalidate clears the whole tools namespace. Deliberately broad: any
// mutation drops every derived view rather than tracking which keys a
// change touches.
func (h *ToolHandler) invalidate(c echo.Context) {
	if !h.CacheCfg.Enabled {
		return
	}
	_ = h.Cache.ClearPattern(c.Request().Context(), h.CacheCfg.Prefix+":*")
}

// ----- DTOs -----

type toolCreateReq struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	URL         *string `json:"url"`
}

type toolUpdateReq struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	URL         *string `json:"url"`
}

type toolListResp struct {
	Tools []model.Tool `json:"tools"`
	Total int64        `json:"total"`
}

// toolDetailResp is the explicit view-model for the detail endpoint: the
// base entity plus computed aggregates, assembled field by field.
type toolDetailResp struct {
	model.Tool
	CreatedByUsername  string   `json:"created_by_username,omitempty"`
	ApprovedByUsername string   `json:"approved_by_username,omitempty"`
	AverageRating      *float64 `json:"average_rating"`
	TotalRatings       int64    `json:"total_ratings"`
	UserRating         *int     `json:"user_rating"`
	TotalComments      int64    `json:"total_comments"`
}

func validateName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return ""
	}
	return name
}

// Create handles POST /v1/tools. Any authenticated user may submit; the
// tool always starts pending regardless of input.
func (h *ToolHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "unauthorized"})
	}
	var req toolCreateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid body"})
	}
	name := validateName(req.Name)
	if name == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "name must be 1-100 characters"})
	}
	if len(strings.TrimSpace(req.Description)) < 10 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "description must be at least 10 characters"})
	}
	category, err := model.ParseCategory(req.Category)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "invalid category"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	tool := model.Tool{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Category:    category,
		URL:         req.URL,
		CreatedBy:   uid,
	}
	if err := h.Tools.Create(ctx, &tool); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "create tool failed"})
	}

	h.invalidate(c)
	_ = h.Audit.Record(ctx, uid, "create", "tool", tool.ID, map[string]any{
		"name": tool.Name, "category": tool.Category.String(),
	})
	return c.JSON(http.StatusCreated, tool)
}

// parseFilter reads the shared list/search query parameters.
func parseFilter(c echo.Context) (repository.ToolFilter, error) {
	f := repository.ToolFilter{
		Search: c.QueryParam("search"),
		Offset: queryInt(c, "skip", 0),
		Limit:  queryInt(c, "limit", 100),
	}
	if raw := c.QueryParam("category"); raw != "" {
		cat, err := model.ParseCategory(raw)
		if err != nil {
			return f, err
		}
		f.Category = cat
	}
	if raw := c.QueryParam("status"); raw != "" {
		st, err := model.ParseStatus(raw)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	return f, nil
}

// List handles GET /v1/tools with optional category/status/search filters.
func (h *ToolHandler) List(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": err.Error()})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	tools, total, err := h.Tools.List(ctx, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "list tools failed"})
	}
	return c.JSON(http.StatusOK, toolListResp{Tools: tools, Total: total})
}

// Search handles GET /v1/tools/search?q=... with the same filtering as
// List, except the query term is required.
func (h *ToolHandler) Search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "q is required"})
	}
	f, err := parseFilter(c)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": err.Error()})
	}
	f.Search = q

	ctx, cancel := reqCtx(c)
	defer cancel()

	tools, total, err := h.Tools.List(ctx, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "search tools failed"})
	}
	return c.JSON(http.StatusOK, toolListResp{Tools: tools, Total: total})
}

// Stats handles GET /v1/tools/stats. The aggregate is memoized under
// "tools:stats" with a fixed TTL and recomputed from scratch on a miss.
func (h *ToolHandler) Stats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	if h.CacheCfg.Enabled {
		var cached model.ToolStats
		if hit, _ := h.Cache.Get(ctx, h.statsKey(), &cached); hit {
			return c.JSON(http.StatusOK, cached)
		}
	}

	stats, err := h.Tools.Stats(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "compute stats failed"})
	}
	if h.CacheCfg.Enabled {
		_ = h.Cache.Set(ctx, h.statsKey(), stats, h.CacheCfg.StatsTTL)
	}
	return c.JSON(http.StatusOK, stats)
}

// My handles GET /v1/tools/my.
func (h *ToolHandler) My(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "unauthorized"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	tools, err := h.Tools.ListByCreator(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "list tools failed"})
	}
	return c.JSON(http.StatusOK, toolListResp{Tools: tools, Total: int64(len(tools))})
}

// Get handles GET /v1/tools/:id, the detail view with usernames, rating
// aggregates, the caller's own rating when authenticated, and the comment
// count.
func (h *ToolHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	tool, err := h.Tools.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "tool not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load tool failed"})
	}

	resp := toolDetailResp{Tool: tool}

	ids := []uint64{tool.CreatedBy}
	if tool.ApprovedBy != nil {
		ids = append(ids, *tool.ApprovedBy)
	}
	if names, err := h.Tools.Usernames(ctx, ids); err == nil {
		resp.CreatedByUsername = names[tool.CreatedBy]
		if tool.ApprovedBy != nil {
			resp.ApprovedByUsername = names[*tool.ApprovedBy]
		}
	}

	avg, count, err := h.Ratings.Summary(ctx, id)
	if err == nil {
		resp.TotalRatings = count
		if count > 0 {
			r := round2(avg)
			resp.AverageRating = &r
		}
	}
	if uid, err := getUserID(c); err == nil {
		if own, err := h.Ratings.Get(ctx, id, uid); err == nil {
			resp.UserRating = &own.Rating
		}
	}
	if n, err := h.Ratings.CountComments(ctx, id); err == nil {
		resp.TotalComments = n
	}
	return c.JSON(http.StatusOK, resp)
}

// canModify implements the ownership rule shared by Update and Delete:
// the creator may touch their own tool, admins may touch any.
func canModify(t model.Tool, uid uint64, role model.Role) bool {
	return t.CreatedBy == uid || role == model.RoleAdmin
}

// Update handles PUT /v1/tools/:id, a partial update of non-status fields
// allowed to the creator or an admin.
func (h *ToolHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}
	var req toolUpdateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid body"})
	}

	upd := repository.ToolUpdate{URL: req.URL}
	if req.Name != nil {
		name := validateName(*req.Name)
		if name == "" {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "name must be 1-100 characters"})
		}
		upd.Name = &name
	}
	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		if len(desc) < 10 {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "description must be at least 10 characters"})
		}
		upd.Description = &desc
	}
	if req.Category != nil {
		cat, err := model.ParseCategory(*req.Category)
		if err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "invalid category"})
		}
		upd.Category = &cat
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	tool, err := h.Tools.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "tool not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load tool failed"})
	}
	if !canModify(tool, uid, callerRole(c)) {
		return c.JSON(http.StatusForbidden, echo.Map{"detail": "not authorized to update this tool"})
	}

	updated, err := h.Tools.Update(ctx, id, upd)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "update tool failed"})
	}

	h.invalidate(c)
	details := map[string]any{}
	if upd.Name != nil {
		details["name"] = *upd.Name
	}
	if upd.Description != nil {
		details["description"] = *upd.Description
	}
	if upd.Category != nil {
		details["category"] = upd.Category.String()
	}
	if upd.URL != nil {
		details["url"] = *upd.URL
	}
	_ = h.Audit.Record(ctx, uid, "update", "tool", id, details)
	return c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /v1/tools/:id for the creator or an admin.
// Ratings, comments and votes on the tool go with it.
func (h *ToolHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	tool, err := h.Tools.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "tool not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load tool failed"})
	}
	if !canModify(tool, uid, callerRole(c)) {
		return c.JSON(http.StatusForbidden, echo.Map{"detail": "not authorized to delete this tool"})
	}

	if err := h.Tools.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "tool not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "delete tool failed"})
	}

	h.invalidate(c)
	_ = h.Audit.Record(ctx, uid, "delete", "tool", id, map[string]any{"name": tool.Name})
	return c.NoContent(http.StatusNoContent)
}
