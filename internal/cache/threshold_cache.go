package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/umbralrisk/umbral/internal/engine"
)

const thresholdOverrideKey = "thresholds:%s:%s"

// ThresholdCache decorates a ThresholdSource with a Redis read-through
// cache. The absence of an override is cached too (as JSON null), since most
// tenants never override and the negative lookup is the hot path.
type ThresholdCache struct {
	source engine.ThresholdSource
	client *redis.Client
	logger *zap.SugaredLogger
	ttl    time.Duration
}

var _ engine.ThresholdSource = (*ThresholdCache)(nil)

// NewThresholdCache wraps the source threshold resolver.
func NewThresholdCache(source engine.ThresholdSource, client *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) *ThresholdCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ThresholdCache{source: source, client: client, logger: logger, ttl: ttl}
}

// Override resolves a tenant's per-activity override, serving from cache
// when possible. Cache failures fall through to the source.
func (c *ThresholdCache) Override(ctx context.Context, tenantID string, activity engine.ActivityType) (*engine.ActivityThresholds, error) {
	key := fmt.Sprintf(thresholdOverrideKey, tenantID, activity)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached *engine.ActivityThresholds
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		c.logger.Warnw("threshold cache entry corrupt, ignoring", "key", key)
	} else if err != redis.Nil {
		c.logger.Warnw("threshold cache read failed", "key", key, "error", err)
	}

	override, err := c.source.Override(ctx, tenantID, activity)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(override); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warnw("threshold cache write failed", "key", key, "error", err)
		}
	}
	return override, nil
}
