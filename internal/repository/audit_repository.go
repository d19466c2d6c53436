package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fazi-university/registry-api/internal/models"
)

// AuditRepository persists audit events produced by enrollment transitions.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create stores one audit event.
func (r *AuditRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_events (id, action, entity_type, entity_id, summary, severity, created_at)
        VALUES (:id, :action, :entity_type, :entity_id, :summary, :severity, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create audit event: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail for one entity, newest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditEvent, error) {
	const query = `SELECT id, action, entity_type, entity_id, summary, severity, created_at
        FROM audit_events WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at DESC`
	var events []models.AuditEvent
	if err := r.db.SelectContext(ctx, &events, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}
