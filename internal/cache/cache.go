package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/synthpanel/orchestrator/internal/metrics"
)

// ErrMiss is returned by a Store when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is the raw get/set substrate. Implementations are multi-writer safe
// only to the level of last-write-wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache is the advisory facade the pipeline uses. A failing read or write is
// logged and counted but never surfaces to the caller: computing a fresh
// value must never fail because the cache is down.
type Cache struct {
	store      Store
	logger     *zap.Logger
	defaultTTL time.Duration
}

func New(store Store, defaultTTL time.Duration, logger *zap.Logger) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &Cache{store: store, defaultTTL: defaultTTL, logger: logger}
}

// GetJSON loads and unmarshals a cached value. Returns false on miss or on
// any cache failure.
func (c *Cache) GetJSON(ctx context.Context, operation, key string, dst interface{}) bool {
	if c == nil || c.store == nil {
		return false
	}
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			metrics.CacheMisses.WithLabelValues(operation).Inc()
			return false
		}
		metrics.CacheErrors.WithLabelValues(operation, "get").Inc()
		c.logger.Warn("Cache read failed", zap.String("operation", operation), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.CacheErrors.WithLabelValues(operation, "decode").Inc()
		c.logger.Warn("Cache entry corrupt", zap.String("operation", operation), zap.Error(err))
		return false
	}
	metrics.CacheHits.WithLabelValues(operation).Inc()
	return true
}

// SetJSON stores a value fire-and-forget. ttl <= 0 uses the default.
func (c *Cache) SetJSON(ctx context.Context, operation, key string, value interface{}, ttl time.Duration) {
	if c == nil || c.store == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		metrics.CacheErrors.WithLabelValues(operation, "encode").Inc()
		c.logger.Warn("Cache encode failed", zap.String("operation", operation), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		metrics.CacheErrors.WithLabelValues(operation, "set").Inc()
		c.logger.Warn("Cache write failed", zap.String("operation", operation), zap.Error(err))
	}
}
