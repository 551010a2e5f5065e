package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dmarves/toolshare/internal/model"
	"github.com/dmarves/toolshare/internal/repository"
)

type rateReq struct {
	Rating int `json:"rating"`
}

type commentReq struct {
	Content string `json:"content"`
}

type voteReq struct {
	Vote string `json:"vote"` // "up" or "down"
}

// Rate handles POST /v1/tools/:id/rate. Submissions are upserts keyed by
// (tool, user): re-rating overwrites the existing row.
func (h *ToolHandler) Rate(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}
	var req rateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid body"})
	}
	if req.Rating < 1 || req.Rating > 5 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "rating must be between 1 and 5"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if _, err := h.Tools.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "tool not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load tool failed"})
	}
	if err := h.Ratings.Upsert(ctx, id, uid, req.Rating); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "save rating failed"})
	}

	h.invalidate(c)
	_ = h.Audit.Record(ctx, uid, "rate", "tool", id, map[string]any{"rating": req.Rating})

	avg, count, err := h.Ratings.Summary(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load rating failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"average_rating": round2(avg),
		"total_ratings":  count,
		"user_rating":    req.Rating,
	})
}

// RatingSummary handles GET /v1/tools/:id/ratings.
func (h *ToolHandler) RatingSummary(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if _, err := h.Tools.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "tool not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load tool failed"})
	}
	avg, count, err := h.Ratings.Summary(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load rating failed"})
	}
	resp := echo.Map{"average_rating": nil, "total_ratings": count}
	if count > 0 {
		resp["average_rating"] = round2(avg)
	}
	return c.JSON(http.StatusOK, resp)
}

// AddComment handles POST /v1/tools/:id/comments.
func (h *ToolHandler) AddComment(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}
	var req commentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid body"})
	}
	content := strings.TrimSpace(req.Content)
	if content == "" || len(content) > 2000 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "content must be 1-2000 characters"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if _, err := h.Tools.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "tool not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load tool failed"})
	}

	comment := model.ToolComment{ToolID: id, UserID: uid, Content: content}
	if err := h.Ratings.AddComment(ctx, &comment); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "save comment failed"})
	}
	_ = h.Audit.Record(ctx, uid, "comment", "tool", id, map[string]any{"comment_id": comment.ID})
	return c.JSON(http.StatusCreated, comment)
}

// ListComments handles GET /v1/tools/:id/comments with skip/limit paging.
func (h *ToolHandler) ListComments(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	comments, total, err := h.Ratings.ListComments(ctx, id, queryInt(c, "skip", 0), queryInt(c, "limit", 50))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "list comments failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"comments": comments, "total": total})
}

// DeleteComment handles DELETE /v1/comments/:id for the author or an admin.
func (h *ToolHandler) DeleteComment(c echo.Context) error {
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

	comment, err := h.Ratings.GetComment(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "comment not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load comment failed"})
	}
	if comment.UserID != uid && callerRole(c) != model.RoleAdmin {
		return c.JSON(http.StatusForbidden, echo.Map{"detail": "not authorized to delete this comment"})
	}
	if err := h.Ratings.DeleteComment(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "delete comment failed"})
	}
	_ = h.Audit.Record(ctx, uid, "delete", "comment", id, map[string]any{"tool_id": comment.ToolID})
	return c.NoContent(http.StatusNoContent)
}

// VoteComment handles POST /v1/comments/:id/vote. One vote per user per
// comment; voting again in the other direction flips the vote.
func (h *ToolHandler) VoteComment(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid id"})
	}
	var req voteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid body"})
	}
	var vote int
	switch strings.ToLower(strings.TrimSpace(req.Vote)) {
	case "up":
		vote = model.VoteUp
	case "down":
		vote = model.VoteDown
	default:
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "vote must be \"up\" or \"down\""})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	comment, err := h.Ratings.Vote(ctx, id, uid, vote)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"detail": "comment not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "save vote failed"})
	}
	_ = h.Audit.Record(ctx, uid, "vote", "comment", id, map[string]any{"vote": req.Vote})
	return c.JSON(http.StatusOK, comment)
}
