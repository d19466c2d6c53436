package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fazi-university/registry-api/internal/models"
	appErrors "github.com/fazi-university/registry-api/pkg/errors"
)

// AvailabilityCache holds read-side section availability snapshots in
// Redis. Capacity mutations invalidate; reads repopulate lazily. A nil
// client degrades to cache misses so the service works without Redis.
type AvailabilityCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewAvailabilityCache constructs the cache.
func NewAvailabilityCache(client *redis.Client, logger *zap.Logger) *AvailabilityCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityCache{client: client, logger: logger}
}

func availabilityKey(sectionID string) string {
	return fmt.Sprintf("section:availability:%s", sectionID)
}

// Get retrieves a cached snapshot.
func (c *AvailabilityCache) Get(ctx context.Context, sectionID string) (*models.SectionAvailability, error) {
	if c.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	raw, err := c.client.Get(ctx, availabilityKey(sectionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get availability %s: %w", sectionID, err)
	}

	var snapshot models.SectionAvailability
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal availability %s: %w", sectionID, err)
	}
	return &snapshot, nil
}

// Set stores a snapshot with the given TTL.
func (c *AvailabilityCache) Set(ctx context.Context, snapshot models.SectionAvailability, ttl time.Duration) error {
	if c.client == nil {
		return nil
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal availability %s: %w", snapshot.SectionID, err)
	}

	if err := c.client.Set(ctx, availabilityKey(snapshot.SectionID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set availability %s: %w", snapshot.SectionID, err)
	}
	return nil
}

// Invalidate drops the snapshot after a capacity mutation. Failures are
// logged, not propagated: the TTL bounds staleness.
func (c *AvailabilityCache) Invalidate(ctx context.Context, sectionID string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, availabilityKey(sectionID)).Err(); err != nil {
		c.logger.Warn("availability cache invalidation failed",
			zap.String("section_id", sectionID), zap.Error(err))
	}
}
