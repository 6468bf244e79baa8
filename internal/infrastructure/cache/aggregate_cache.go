package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Cache keys shared by the stats surface and its invalidation
const (
	GlobalOverviewKey = "global_overview"
	imageCheckPrefix  = "image_check:"
)

// StoreStatsKey returns the per-store stats key. Every key derived from a
// store starts with it, so invalidating it as a prefix clears them all.
func StoreStatsKey(storeID uuid.UUID) string {
	return "store_stats_" + storeID.String()
}

// TopProductsKey returns the key of a store's top-N report
func TopProductsKey(storeID uuid.UUID, n int) string {
	return fmt.Sprintf("%s_top_%d", StoreStatsKey(storeID), n)
}

// ImageCheckKey returns the key of a cached image validation result
func ImageCheckKey(rawURL string) string {
	return imageCheckPrefix + rawURL
}

// AggregateCache is a TTL cache for derived views with prefix invalidation.
// Values are opaque bytes; ReadThrough handles JSON encoding.
type AggregateCache interface {
	// Get returns the value and true on a live hit
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Invalidate removes every key starting with prefix
	Invalidate(ctx context.Context, prefix string) error
	Close() error
}

// ReadThrough returns the cached JSON value of key, or runs load, caches its
// result for ttl and returns it. Cache write failures are logged and the
// loaded value is still returned.
func ReadThrough[T any](
	ctx context.Context,
	c AggregateCache,
	key string,
	ttl time.Duration,
	logger *zap.Logger,
	load func(ctx context.Context) (T, error),
) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if data, ok := c.Get(ctx, key); ok {
		var cached T
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
		logger.Warn("Discarding undecodable cache entry", zap.String("key", key))
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		logger.Error("Failed to marshal cache value", zap.String("key", key), zap.Error(err))
		return value, nil
	}
	if err := c.Set(ctx, key, data, ttl); err != nil {
		logger.Warn("Failed to write cache entry", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
