package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultScanBatchSize = 100
	defaultKeyPrefix     = "storesync:"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient connects to Redis and pings it
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisAggregateCache implements AggregateCache on Redis so that several
// instances share invalidations.
type RedisAggregateCache struct {
	client     *redis.Client
	ownsClient bool
	keyPrefix  string
	logger     *zap.Logger
}

// RedisCacheOption configures a RedisAggregateCache
type RedisCacheOption func(*RedisAggregateCache)

// WithRedisLogger sets the logger
func WithRedisLogger(logger *zap.Logger) RedisCacheOption {
	return func(c *RedisAggregateCache) {
		c.logger = logger
	}
}

// WithKeyPrefix namespaces every key
func WithKeyPrefix(prefix string) RedisCacheOption {
	return func(c *RedisAggregateCache) {
		c.keyPrefix = prefix
	}
}

// WithOwnedClient makes Close also close the Redis client
func WithOwnedClient() RedisCacheOption {
	return func(c *RedisAggregateCache) {
		c.ownsClient = true
	}
}

// NewRedisAggregateCache wraps an existing client
func NewRedisAggregateCache(client *redis.Client, opts ...RedisCacheOption) *RedisAggregateCache {
	c := &RedisAggregateCache{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value; Redis errors count as a miss
func (c *RedisAggregateCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Redis cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

// Set stores value with a PX expiry
func (c *RedisAggregateCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultEntryTTL
	}
	if err := c.client.Set(ctx, c.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// Invalidate scans for prefix* and deletes the matches
func (c *RedisAggregateCache) Invalidate(ctx context.Context, prefix string) error {
	var cursor uint64
	var deleted int64
	pattern := c.keyPrefix + prefix + "*"

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, defaultScanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if deleted > 0 {
		c.logger.Debug("Invalidated cache entries",
			zap.String("prefix", prefix),
			zap.Int64("removed", deleted))
	}
	return nil
}

// Close closes the client when the cache owns it
func (c *RedisAggregateCache) Close() error {
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}

var _ AggregateCache = (*RedisAggregateCache)(nil)
