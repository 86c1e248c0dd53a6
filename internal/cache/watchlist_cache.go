// Package cache layers Redis in front of the slow watchlist queries.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/umbralrisk/umbral/internal/screening"
)

// Key patterns for cached watchlist lookups.
const (
	globalEntriesKey   = "watchlist:global:%s"
	internalEntriesKey = "watchlist:internal:%s"
)

// WatchlistCache decorates a screening.Store with a Redis read-through
// cache. Cache failures are logged and fall through to the source; a cache
// outage must not change screening results.
type WatchlistCache struct {
	source screening.Store
	client *redis.Client
	logger *zap.SugaredLogger
	ttl    time.Duration
}

var _ screening.Store = (*WatchlistCache)(nil)

// NewWatchlistCache wraps the source store.
func NewWatchlistCache(source screening.Store, client *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) *WatchlistCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &WatchlistCache{source: source, client: client, logger: logger, ttl: ttl}
}

// EntriesByTaxID serves global entries from cache when possible.
func (c *WatchlistCache) EntriesByTaxID(ctx context.Context, taxID string) ([]screening.Entry, error) {
	key := fmt.Sprintf(globalEntriesKey, taxID)
	if entries, ok := c.get(ctx, key); ok {
		return entries, nil
	}
	entries, err := c.source.EntriesByTaxID(ctx, taxID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, entries)
	return entries, nil
}

// ActiveInternalEntries serves the tenant's internal list from cache when
// possible.
func (c *WatchlistCache) ActiveInternalEntries(ctx context.Context, tenantID string) ([]screening.Entry, error) {
	key := fmt.Sprintf(internalEntriesKey, tenantID)
	if entries, ok := c.get(ctx, key); ok {
		return entries, nil
	}
	entries, err := c.source.ActiveInternalEntries(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, entries)
	return entries, nil
}

func (c *WatchlistCache) get(ctx context.Context, key string) ([]screening.Entry, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warnw("watchlist cache read failed", "key", key, "error", err)
		return nil, false
	}
	var entries []screening.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.logger.Warnw("watchlist cache entry corrupt, ignoring", "key", key, "error", err)
		return nil, false
	}
	return entries, true
}

func (c *WatchlistCache) set(ctx context.Context, key string, entries []screening.Entry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		c.logger.Warnw("watchlist cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warnw("watchlist cache write failed", "key", key, "error", err)
	}
}
