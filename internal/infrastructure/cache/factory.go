package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Backend is what the factory built: a cache plus a job lease sharing one
// Redis client, or their in-memory counterparts.
type Backend struct {
	Cache AggregateCache
	Lease integration.JobLease
	// Redis is nil for the in-memory backend
	Redis *redis.Client
}

// Close releases the cache and the Redis client
func (b *Backend) Close() error {
	err := b.Cache.Close()
	if b.Redis != nil {
		if cerr := b.Redis.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Factory creates the cache backend based on configuration
type Factory struct {
	redisConfig           config.RedisConfig
	cacheConfig           config.CacheConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption configures the Factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// the in-memory backend. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(redisCfg config.RedisConfig, cacheCfg config.CacheConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           redisCfg,
		cacheConfig:           cacheCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateInMemory builds the single-process backend
func (f *Factory) CreateInMemory() *Backend {
	return &Backend{
		Cache: NewInMemoryAggregateCache(
			WithInMemoryLogger(f.logger),
			WithDefaultTTL(f.cacheConfig.StoreStatsTTL),
		),
		Lease: NewInMemoryJobLease(),
	}
}

// Create returns the Redis backend when enabled and reachable, otherwise the
// in-memory backend when fallback is allowed.
func (f *Factory) Create(ctx context.Context) (*Backend, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory cache and job lease")
		return f.CreateInMemory(), nil
	}

	client, err := NewRedisClient(ctx, RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("Using Redis cache and job lease",
			zap.String("host", f.redisConfig.Host),
			zap.Int("port", f.redisConfig.Port))
		return &Backend{
			Cache: NewRedisAggregateCache(client, WithRedisLogger(f.logger)),
			Lease: NewRedisJobLease(client, f.logger),
			Redis: client,
		}, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory cache and job lease. "+
		"Slices of one job may then run concurrently on different instances.",
		zap.Error(err),
	)
	return f.CreateInMemory(), nil
}
