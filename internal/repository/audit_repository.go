package repository

import (
	"context"
	"database/sql"

	"github.com/dmarves/toolshare/internal/model"
)

// AuditStore persists append-only activity records. There is no update or
// delete path on purpose.
type AuditStore interface {
	Insert(ctx context.Context, rec model.AuditLog) error
	ListByUser(ctx context.Context, userID uint64, limit int) ([]model.AuditLog, error)
	ListByEntity(ctx context.Context, entityType string, entityID uint64, limit int) ([]model.AuditLog, error)
}

type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// Insert appends one record. The timestamp is assigned by the database.
func (r *AuditRepo) Insert(ctx context.Context, rec model.AuditLog) error {
	var details any
	if len(rec.Details) > 0 {
		details = rec.Details
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO audit_logs (user_id, action, entity_type, entity_id, details) VALUES (?,?,?,?,?)",
		rec.UserID, rec.Action, rec.EntityType, rec.EntityID, details)
	return err
}

const auditColumns = "id,user_id,action,entity_type,entity_id,details,created_at"

func collectAudit(rows *sql.Rows) ([]model.AuditLog, error) {
	defer rows.Close()
	var out []model.AuditLog
	for rows.Next() {
		var rec model.AuditLog
		var userID, entityID sql.NullInt64
		var details []byte
		if err := rows.Scan(&rec.ID, &userID, &rec.Action, &rec.EntityType,
			&entityID, &details, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			id := uint64(userID.Int64)
			rec.UserID = &id
		}
		if entityID.Valid {
			id := uint64(entityID.Int64)
			rec.EntityID = &id
		}
		rec.Details = details
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListByUser returns the most recent actions of one actor.
func (r *AuditRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.AuditLog, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+auditColumns+" FROM audit_logs WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ?",
		userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return collectAudit(rows)
}

// ListByEntity returns the most recent actions against one entity.
func (r *AuditRepo) ListByEntity(ctx context.Context, entityType string, entityID uint64, limit int) ([]model.AuditLog, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+auditColumns+" FROM audit_logs WHERE entity_type=? AND entity_id=? ORDER BY created_at DESC, id DESC LIMIT ?",
		entityType, entityID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return collectAudit(rows)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}
