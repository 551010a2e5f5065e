package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dmarves/toolshare/internal/model"
)

// ToolFilter narrows List/Search results. Zero values mean "no filter".
// Search matches name OR description case-insensitively.
type ToolFilter struct {
	Category model.ToolCategory
	Status   model.ToolStatus
	Search   string
	Offset   int
	Limit    int
}

// ToolUpdate carries the optional non-status fields of a partial update.
// Nil pointers leave the column untouched.
type ToolUpdate struct {
	Name        *string
	Description *string
	Category    *model.ToolCategory
	URL         *string
}

// ToolStore is the persistence contract for the tool lifecycle handlers.
type ToolStore interface {
	Create(ctx context.Context, t *model.Tool) error
	GetByID(ctx context.Context, id uint64) (model.Tool, error)
	List(ctx context.Context, f ToolFilter) ([]model.Tool, int64, error)
	ListByCreator(ctx context.Context, userID uint64) ([]model.Tool, error)
	Update(ctx context.Context, id uint64, upd ToolUpdate) (model.Tool, error)
	Delete(ctx context.Context, id uint64) error
	Decide(ctx context.Context, id, deciderID uint64, approved bool, reason string) (model.Tool, error)
	Stats(ctx context.Context) (model.ToolStats, error)
	Usernames(ctx context.Context, ids []uint64) (map[uint64]string, error)
}

type ToolRepo struct{ DB *sql.DB }

func NewToolRepo(db *sql.DB) *ToolRepo { return &ToolRepo{DB: db} }

const toolColumns = "id,name,description,category,status,url,created_by,approved_by,rejection_reason,created_at,updated_at"

func scanTool(scan func(dest ...any) error) (model.Tool, error) {
	var t model.Tool
	var url, reason sql.NullString
	var approvedBy sql.NullInt64
	err := scan(&t.ID, &t.Name, &t.Description, &t.Category, &t.Status,
		&url, &t.CreatedBy, &approvedBy, &reason, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if url.Valid {
		t.URL = &url.String
	}
	if reason.Valid {
		t.RejectionReason = &reason.String
	}
	if approvedBy.Valid {
		id := uint64(approvedBy.Int64)
		t.ApprovedBy = &id
	}
	return t, nil
}

// Create inserts a tool. Status is always forced to pending regardless of
// what the caller put in t.
func (r *ToolRepo) Create(ctx context.Context, t *model.Tool) error {
	t.Status = model.StatusPending
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO tools (name, description, category, status, url, created_by) VALUES (?,?,?,?,?,?)",
		t.Name, t.Description, t.Category, t.Status, t.URL, t.CreatedBy)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	created, err := r.GetByID(ctx, t.ID)
	if err == nil {
		*t = created
	}
	return nil
}

// GetByID fetches a single tool.
func (r *ToolRepo) GetByID(ctx context.Context, id uint64) (model.Tool, error) {
	t, err := scanTool(r.DB.QueryRowContext(ctx,
		"SELECT "+toolColumns+" FROM tools WHERE id=? LIMIT 1", id).Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// List returns tools matching the filter, newest first, plus the total
// count before pagination.
func (r *ToolRepo) List(ctx context.Context, f ToolFilter) ([]model.Tool, int64, error) {
	where := []string{}
	args := []any{}

	if f.Category != "" {
		where = append(where, "category=?")
		args = append(args, f.Category)
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, f.Status)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)")
		pat := "%" + strings.ToLower(s) + "%"
		args = append(args, pat, pat)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tools WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	argsData := append(append([]any{}, args...), limit, offset)

	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+toolColumns+" FROM tools WHERE "+cond+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Tool, 0, limit)
	for rows.Next() {
		t, err := scanTool(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// ListByCreator returns every tool created by one user, newest first.
func (r *ToolRepo) ListByCreator(ctx context.Context, userID uint64) ([]model.Tool, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+toolColumns+" FROM tools WHERE created_by=? ORDER BY created_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Tool
	for rows.Next() {
		t, err := scanTool(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update applies a partial update to non-status fields and returns the
// fresh row. Ownership is checked by the handler before calling.
func (r *ToolRepo) Update(ctx context.Context, id uint64, upd ToolUpdate) (model.Tool, error) {
	set := []string{}
	args := []any{}
	if upd.Name != nil {
		set = append(set, "name=?")
		args = append(args, *upd.Name)
	}
	if upd.Description != nil {
		set = append(set, "description=?")
		args = append(args, *upd.Description)
	}
	if upd.Category != nil {
		set = append(set, "category=?")
		args = append(args, *upd.Category)
	}
	if upd.URL != nil {
		set = append(set, "url=?")
		args = append(args, *upd.URL)
	}
	if len(set) > 0 {
		set = append(set, "updated_at=NOW()")
		args = append(args, id)
		if _, err := r.DB.ExecContext(ctx,
			"UPDATE tools SET "+strings.Join(set, ", ")+" WHERE id=?", args...); err != nil {
			return model.Tool{}, err
		}
	}
	return r.GetByID(ctx, id)
}

// Delete removes a tool and every dependent row in one transaction so a
// half-deleted tool is never observable. Vote rows go first because they
// reference comments.
func (r *ToolRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE cv FROM comment_votes cv JOIN tool_comments c ON c.id=cv.comment_id WHERE c.tool_id=?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tool_comments WHERE tool_id=?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tool_ratings WHERE tool_id=?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM tools WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// Decide resolves a pending tool to approved or rejected. The reason is
// optional; a blank one is stored as NULL. The status guard
// lives in the WHERE clause so two concurrent decisions cannot both win;
// the loser sees zero rows affected and gets ErrConflict (or ErrNotFound
// when the id never existed).
func (r *ToolRepo) Decide(ctx context.Context, id, deciderID uint64, approved bool, reason string) (model.Tool, error) {
	var res sql.Result
	var err error
	if approved {
		res, err = r.DB.ExecContext(ctx,
			"UPDATE tools SET status=?, approved_by=?, rejection_reason=NULL, updated_at=NOW() WHERE id=? AND status=?",
			model.StatusApproved, deciderID, id, model.StatusPending)
	} else {
		var reasonCol any
		if reason != "" {
			reasonCol = reason
		}
		res, err = r.DB.ExecContext(ctx,
			"UPDATE tools SET status=?, approved_by=NULL, rejection_reason=?, updated_at=NOW() WHERE id=? AND status=?",
			model.StatusRejected, reasonCol, id, model.StatusPending)
	}
	if err != nil {
		return model.Tool{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return model.Tool{}, err
		}
		return model.Tool{}, ErrConflict
	}
	return r.GetByID(ctx, id)
}

// Stats recomputes the aggregate counts from scratch. Callers memoize the
// result through the cache store.
func (r *ToolRepo) Stats(ctx context.Context) (model.ToolStats, error) {
	stats := model.ToolStats{
		ByStatus:   map[string]int64{},
		ByCategory: map[string]int64{},
	}
	for _, s := range []model.ToolStatus{model.StatusPending, model.StatusApproved, model.StatusRejected} {
		stats.ByStatus[s.String()] = 0
	}
	for _, c := range model.Categories() {
		stats.ByCategory[c.String()] = 0
	}

	rows, err := r.DB.QueryContext(ctx,
		"SELECT status, category, COUNT(*) FROM tools GROUP BY status, category")
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var status, category string
		var n int64
		if err := rows.Scan(&status, &category, &n); err != nil {
			return stats, err
		}
		stats.Total += n
		stats.ByStatus[status] += n
		stats.ByCategory[category] += n
	}
	return stats, rows.Err()
}

// Usernames resolves a set of user ids to usernames for the detail view.
func (r *ToolRepo) Usernames(ctx context.Context, ids []uint64) (map[uint64]string, error) {
	out := make(map[uint64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, username FROM users WHERE id IN ("+strings.Join(ph, ",")+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id uint64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}
