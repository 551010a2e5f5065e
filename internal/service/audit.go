// Package service holds the side-effect collaborators of the tool
// lifecycle: the audit recorder and the two-factor code publisher.
package service

import (
	"context"
	"encoding/json"
	"log"

	"github.com/dmarves/toolshare/internal/model"
	"github.com/dmarves/toolshare/internal/repository"
)

// AuditRecorder appends immutable activity records. Recording is
// best-effort relative to the mutation that triggered it: Record returns
// the error for callers that care, but handlers ignore it after the
// primary write has committed.
type AuditRecorder struct {
	Store repository.AuditStore
}

func NewAuditRecorder(store repository.AuditStore) *AuditRecorder {
	return &AuditRecorder{Store: store}
}

// Record appends one record with a server-assigned timestamp. The details
// map is marshalled to JSON; a nil map writes a NULL column. Failures are
// logged and returned, never escalated past the caller.
func (a *AuditRecorder) Record(ctx context.Context, actorID uint64, action, entityType string, entityID uint64, details map[string]any) error {
	rec := model.AuditLog{
		Action:     action,
		EntityType: entityType,
	}
	if actorID != 0 {
		rec.UserID = &actorID
	}
	if entityID != 0 {
		rec.EntityID = &entityID
	}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			log.Printf("audit: marshal details for %s/%s failed: %v", action, entityType, err)
		} else {
			rec.Details = raw
		}
	}
	if err := a.Store.Insert(ctx, rec); err != nil {
		log.Printf("audit: record %s %s(%d) by user %d failed: %v", action, entityType, entityID, actorID, err)
		return err
	}
	return nil
}

// UserActivity returns the most recent actions by one actor.
func (a *AuditRecorder) UserActivity(ctx context.Context, userID uint64, limit int) ([]model.AuditLog, error) {
	return a.Store.ListByUser(ctx, userID, limit)
}

// EntityHistory returns the most recent actions against one entity.
func (a *AuditRecorder) EntityHistory(ctx context.Context, entityType string, entityID uint64, limit int) ([]model.AuditLog, error) {
	return a.Store.ListByEntity(ctx, entityType, entityID, limit)
}
