package repository

import (
	"context"
	"database/sql"

	"github.com/dmarves/toolshare/internal/model"
)

// RatingStore covers ratings, comments and comment votes.
type RatingStore interface {
	Upsert(ctx context.Context, toolID, userID uint64, rating int) error
	Get(ctx context.Context, toolID, userID uint64) (model.ToolRating, error)
	Summary(ctx context.Context, toolID uint64) (avg float64, count int64, err error)
	AddComment(ctx context.Context, c *model.ToolComment) error
	ListComments(ctx context.Context, toolID uint64, offset, limit int) ([]model.ToolComment, int64, error)
	GetComment(ctx context.Context, id uint64) (model.ToolComment, error)
	DeleteComment(ctx context.Context, id uint64) error
	CountComments(ctx context.Context, toolID uint64) (int64, error)
	Vote(ctx context.Context, commentID, userID uint64, vote int) (model.ToolComment, error)
}

type RatingRepo struct{ DB *sql.DB }

func NewRatingRepo(db *sql.DB) *RatingRepo { return &RatingRepo{DB: db} }

// Upsert stores a rating keyed by (tool, user). The unique index on the
// pair turns a second submission into an in-place update, so exactly one
// row per pair ever exists.
func (r *RatingRepo) Upsert(ctx context.Context, toolID, userID uint64, rating int) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO tool_ratings (tool_id, user_id, rating) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE rating=VALUES(rating), updated_at=NOW()`,
		toolID, userID, rating)
	return err
}

// Get returns the caller's own rating for a tool.
func (r *RatingRepo) Get(ctx context.Context, toolID, userID uint64) (model.ToolRating, error) {
	var tr model.ToolRating
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,tool_id,user_id,rating,created_at,updated_at FROM tool_ratings WHERE tool_id=? AND user_id=? LIMIT 1",
		toolID, userID).Scan(&tr.ID, &tr.ToolID, &tr.UserID, &tr.Rating, &tr.CreatedAt, &tr.UpdatedAt)
	if err == sql.ErrNoRows {
		return tr, ErrNotFound
	}
	return tr, err
}

// Summary recomputes the average on read rather than maintaining it
// incrementally. Average is 0 when the tool has no ratings.
func (r *RatingRepo) Summary(ctx context.Context, toolID uint64) (float64, int64, error) {
	var avg sql.NullFloat64
	var count int64
	err := r.DB.QueryRowContext(ctx,
		"SELECT AVG(rating), COUNT(*) FROM tool_ratings WHERE tool_id=?",
		toolID).Scan(&avg, &count)
	if err != nil {
		return 0, 0, err
	}
	return avg.Float64, count, nil
}

// AddComment inserts a comment with zeroed vote counters.
func (r *RatingRepo) AddComment(ctx context.Context, c *model.ToolComment) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO tool_comments (tool_id, user_id, content) VALUES (?,?,?)",
		c.ToolID, c.UserID, c.Content)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

const commentColumns = `c.id, c.tool_id, c.user_id, u.username, c.content,
	c.upvotes, c.downvotes, c.created_at, c.updated_at`

// ListComments returns a page of comments for a tool, newest first, with
// the author's username joined in.
func (r *RatingRepo) ListComments(ctx context.Context, toolID uint64, offset, limit int) ([]model.ToolComment, int64, error) {
	var total int64
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tool_comments WHERE tool_id=?", toolID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM tool_comments c
		 JOIN users u ON u.id = c.user_id
		 WHERE c.tool_id=? ORDER BY c.created_at DESC, c.id DESC LIMIT ? OFFSET ?`,
		toolID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.ToolComment, 0, limit)
	for rows.Next() {
		var c model.ToolComment
		if err := rows.Scan(&c.ID, &c.ToolID, &c.UserID, &c.Username, &c.Content,
			&c.Upvotes, &c.Downvotes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// GetComment fetches one comment by id.
func (r *RatingRepo) GetComment(ctx context.Context, id uint64) (model.ToolComment, error) {
	var c model.ToolComment
	err := r.DB.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM tool_comments c
		 JOIN users u ON u.id = c.user_id WHERE c.id=? LIMIT 1`, id).
		Scan(&c.ID, &c.ToolID, &c.UserID, &c.Username, &c.Content,
			&c.Upvotes, &c.Downvotes, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// DeleteComment removes a comment and its votes.
func (r *RatingRepo) DeleteComment(ctx context.Context, id uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM comment_votes WHERE comment_id=?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM tool_comments WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// CountComments returns the number of comments on a tool.
func (r *RatingRepo) CountComments(ctx context.Context, toolID uint64) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tool_comments WHERE tool_id=?", toolID).Scan(&n)
	return n, err
}

// Vote records or flips a user's vote on a comment and keeps the
// denormalized counters in step, all inside one transaction. The unique
// index on (comment_id, user_id) prevents duplicate votes.
func (r *RatingRepo) Vote(ctx context.Context, commentID, userID uint64, vote int) (model.ToolComment, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.ToolComment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM tool_comments WHERE id=? FOR UPDATE", commentID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return model.ToolComment{}, ErrNotFound
		}
		return model.ToolComment{}, err
	}

	var prev int
	err = tx.QueryRowContext(ctx,
		"SELECT vote FROM comment_votes WHERE comment_id=? AND user_id=? LIMIT 1",
		commentID, userID).Scan(&prev)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO comment_votes (comment_id, user_id, vote) VALUES (?,?,?)",
			commentID, userID, vote); err != nil {
			return model.ToolComment{}, err
		}
	case err != nil:
		return model.ToolComment{}, err
	case prev == vote:
		// same direction twice is a no-op, not an error
	default:
		if _, err := tx.ExecContext(ctx,
			"UPDATE comment_votes SET vote=? WHERE comment_id=? AND user_id=?",
			vote, commentID, userID); err != nil {
			return model.ToolComment{}, err
		}
	}

	if prev != vote {
		up, down := 0, 0
		if vote == model.VoteUp {
			up++
		} else {
			down++
		}
		if prev == model.VoteUp {
			up--
		} else if prev == model.VoteDown {
			down--
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE tool_comments SET upvotes=upvotes+?, downvotes=downvotes+?, updated_at=NOW() WHERE id=?",
			up, down, commentID); err != nil {
			return model.ToolComment{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.ToolComment{}, err
	}
	return r.GetComment(ctx, commentID)
}
