package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultCleanupInterval = 30 * time.Second
	defaultEntryTTL        = 5 * time.Minute
)

// InMemoryAggregateCache implements AggregateCache in process memory.
// It is the default when Redis is disabled or unreachable.
type InMemoryAggregateCache struct {
	entries         sync.Map // map[string]*cacheEntry
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	logger          *zap.Logger
	stopCh          chan struct{}
	stopped         int32

	hits   int64
	misses int64
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e *cacheEntry) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// InMemoryOption configures an InMemoryAggregateCache
type InMemoryOption func(*InMemoryAggregateCache)

// WithInMemoryLogger sets the logger
func WithInMemoryLogger(logger *zap.Logger) InMemoryOption {
	return func(c *InMemoryAggregateCache) {
		c.logger = logger
	}
}

// WithDefaultTTL sets the TTL used when Set is called with zero
func WithDefaultTTL(ttl time.Duration) InMemoryOption {
	return func(c *InMemoryAggregateCache) {
		c.defaultTTL = ttl
	}
}

// WithCleanupInterval sets how often expired entries are swept
func WithCleanupInterval(d time.Duration) InMemoryOption {
	return func(c *InMemoryAggregateCache) {
		c.cleanupInterval = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) InMemoryOption {
	return func(c *InMemoryAggregateCache) {
		c.now = now
	}
}

// NewInMemoryAggregateCache creates the cache and starts its cleanup loop.
// Close stops the loop.
func NewInMemoryAggregateCache(opts ...InMemoryOption) *InMemoryAggregateCache {
	c := &InMemoryAggregateCache{
		defaultTTL:      defaultEntryTTL,
		cleanupInterval: defaultCleanupInterval,
		now:             time.Now,
		logger:          zap.NewNop(),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupExpired()
	return c
}

// Get returns a live entry
func (c *InMemoryAggregateCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := c.entries.Load(key); ok {
		entry := value.(*cacheEntry)
		if !entry.isExpired(c.now()) {
			atomic.AddInt64(&c.hits, 1)
			return entry.value, true
		}
		c.entries.Delete(key)
	}
	atomic.AddInt64(&c.misses, 1)
	return nil, false
}

// Set stores value for ttl, or the default TTL when ttl is zero
func (c *InMemoryAggregateCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries.Store(key, &cacheEntry{value: stored, expiresAt: c.now().Add(ttl)})
	return nil
}

// Invalidate removes every key with the given prefix
func (c *InMemoryAggregateCache) Invalidate(ctx context.Context, prefix string) error {
	removed := 0
	c.entries.Range(func(key, _ any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			c.entries.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		c.logger.Debug("Invalidated cache entries",
			zap.String("prefix", prefix),
			zap.Int("removed", removed))
	}
	return nil
}

// Close stops the cleanup loop
func (c *InMemoryAggregateCache) Close() error {
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
	return nil
}

// GetStats returns hit and miss counts
func (c *InMemoryAggregateCache) GetStats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Count returns the number of stored entries, expired or not
func (c *InMemoryAggregateCache) Count() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *InMemoryAggregateCache) cleanupExpired() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.logger.Error("Panic in cache cleanup", zap.Any("panic", r))
					}
				}()
				c.doCleanup()
			}()
		}
	}
}

func (c *InMemoryAggregateCache) doCleanup() {
	now := c.now()
	removed := 0
	c.entries.Range(func(key, value any) bool {
		if value.(*cacheEntry).isExpired(now) {
			c.entries.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		c.logger.Debug("Cleaned up expired cache entries", zap.Int("removed", removed))
	}
}

var _ AggregateCache = (*InMemoryAggregateCache)(nil)
