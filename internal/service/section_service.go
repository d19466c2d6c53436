package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fazi-university/registry-api/internal/models"
	"github.com/fazi-university/registry-api/pkg/config"
	appErrors "github.com/fazi-university/registry-api/pkg/errors"
)

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseSection, error)
}

type availabilityCache interface {
	Get(ctx context.Context, sectionID string) (*models.SectionAvailability, error)
	Set(ctx context.Context, snapshot models.SectionAvailability, ttl time.Duration) error
}

// SectionService serves the read side of sections: the full record and
// the cached availability snapshot polled by registration UIs.
type SectionService struct {
	sections sectionReader
	cache    availabilityCache
	ttl      time.Duration
	logger   *zap.Logger
}

// NewSectionService constructs the service.
func NewSectionService(sections sectionReader, cache availabilityCache, cfg config.AvailabilityConfig, logger *zap.Logger) *SectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SectionService{sections: sections, cache: cache, ttl: ttl, logger: logger}
}

// Get returns one section.
func (s *SectionService) Get(ctx context.Context, id string) (*models.CourseSection, error) {
	section, err := s.sections.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("Section %s not found.", id))
		}
		return nil, err
	}
	return section, nil
}

// Availability serves the seat/waitlist snapshot cache-aside: hit the
// cache, fall back to the database and repopulate on a miss. Staleness
// is bounded by the TTL plus invalidation on every capacity mutation.
func (s *SectionService) Availability(ctx context.Context, id string) (*models.SectionAvailability, error) {
	if s.cache != nil {
		snapshot, err := s.cache.Get(ctx, id)
		if err == nil {
			return snapshot, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("availability cache read failed", zap.String("section_id", id), zap.Error(err))
		}
	}

	section, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot := section.Availability()

	if s.cache != nil {
		if err := s.cache.Set(ctx, snapshot, s.ttl); err != nil {
			s.logger.Warn("availability cache write failed", zap.String("section_id", id), zap.Error(err))
		}
	}
	return &snapshot, nil
}
