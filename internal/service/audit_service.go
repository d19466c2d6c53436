package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fazi-university/registry-api/internal/models"
	"github.com/fazi-university/registry-api/pkg/config"
	"github.com/fazi-university/registry-api/pkg/jobs"
)

type auditSink interface {
	Create(ctx context.Context, event *models.AuditEvent) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditEvent, error)
}

// AuditService records transition events asynchronously: Record enqueues
// and returns immediately, a worker pool persists. Losing an audit row on
// shutdown is acceptable; blocking an enrollment on the audit store is not.
type AuditService struct {
	repo   auditSink
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditService constructs the service and its backing queue.
func NewAuditService(repo auditSink, cfg config.AuditConfig, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{repo: repo, logger: logger}
	s.queue = jobs.NewQueue("audit", s.persist, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		Logger:     logger,
	})
	return s
}

// Start launches the persistence workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues one audit event. Failures are logged, never propagated.
func (s *AuditService) Record(event models.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      event.ID,
		Type:    event.Action,
		Payload: event,
	})
	if err != nil {
		s.logger.Warn("audit event dropped",
			zap.String("action", event.Action), zap.String("entity_id", event.EntityID), zap.Error(err))
	}
}

// Trail returns the stored audit history for one entity.
func (s *AuditService) Trail(ctx context.Context, entityType, entityID string) ([]models.AuditEvent, error) {
	return s.repo.ListByEntity(ctx, entityType, entityID)
}

func (s *AuditService) persist(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.AuditEvent)
	if !ok {
		s.logger.Error("audit job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.repo.Create(ctx, &event)
}
