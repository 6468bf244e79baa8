package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/storesync/backend/internal/domain/integration"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// In-memory lease
// ---------------------------------------------------------------------------

type leaseEntry struct {
	token     int64
	expiresAt time.Time
}

// InMemoryJobLease implements integration.JobLease for a single process.
type InMemoryJobLease struct {
	mu      sync.Mutex
	entries map[uuid.UUID]leaseEntry
	counter int64
	now     func() time.Time
}

// NewInMemoryJobLease creates an in-memory lease
func NewInMemoryJobLease() *InMemoryJobLease {
	return &InMemoryJobLease{
		entries: make(map[uuid.UUID]leaseEntry),
		now:     time.Now,
	}
}

// Acquire takes the lease unless a live one exists
func (l *InMemoryJobLease) Acquire(ctx context.Context, jobID uuid.UUID, ttl time.Duration, after int64) (integration.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.entries[jobID]; ok && now.Before(e.expiresAt) {
		return nil, integration.ErrJobLeased
	}
	l.counter = max(l.counter, after) + 1
	l.entries[jobID] = leaseEntry{token: l.counter, expiresAt: now.Add(ttl)}
	return &inMemoryLease{owner: l, jobID: jobID, token: l.counter}, nil
}

type inMemoryLease struct {
	owner *InMemoryJobLease
	jobID uuid.UUID
	token int64
}

func (h *inMemoryLease) Token() int64 { return h.token }

// Release is a no-op when the lease already passed to a newer holder
func (h *inMemoryLease) Release(ctx context.Context) error {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	if e, ok := h.owner.entries[h.jobID]; ok && e.token == h.token {
		delete(h.owner.entries, h.jobID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Redis lease
// ---------------------------------------------------------------------------

// RedisJobLease implements integration.JobLease with redislock. The fencing
// token comes from a counter per job, so it grows across holders and
// instances.
type RedisJobLease struct {
	client *redis.Client
	locker *redislock.Client
	logger *zap.Logger
}

// NewRedisJobLease creates a Redis-backed lease
func NewRedisJobLease(client *redis.Client, logger *zap.Logger) *RedisJobLease {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisJobLease{
		client: client,
		locker: redislock.New(client),
		logger: logger,
	}
}

// nextTokenScript increments the token counter and lifts it past ARGV[1]
// when the counter was lost or lags the stored job.
var nextTokenScript = redis.NewScript(`
local token = redis.call("INCR", KEYS[1])
local after = tonumber(ARGV[1])
if token <= after then
	token = after + 1
	redis.call("SET", KEYS[1], token)
end
return token
`)

func leaseKey(jobID uuid.UUID) string {
	return defaultKeyPrefix + "lease:job:" + jobID.String()
}

func leaseTokenKey(jobID uuid.UUID) string {
	return defaultKeyPrefix + "lease_token:" + jobID.String()
}

// Acquire obtains the lock without retrying
func (l *RedisJobLease) Acquire(ctx context.Context, jobID uuid.UUID, ttl time.Duration, after int64) (integration.Lease, error) {
	lock, err := l.locker.Obtain(ctx, leaseKey(jobID), ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, integration.ErrJobLeased
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain job lease: %w", err)
	}

	token, err := nextTokenScript.Run(ctx, l.client, []string{leaseTokenKey(jobID)}, after).Int64()
	if err != nil {
		_ = lock.Release(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to issue fencing token: %w", err)
	}

	return &redisLease{lock: lock, token: token, jobID: jobID, logger: l.logger}, nil
}

type redisLease struct {
	lock   *redislock.Lock
	token  int64
	jobID  uuid.UUID
	logger *zap.Logger
}

func (h *redisLease) Token() int64 { return h.token }

func (h *redisLease) Release(ctx context.Context) error {
	err := h.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		h.logger.Warn("Job lease expired before release", zap.String("job_id", h.jobID.String()))
		return nil
	}
	return err
}

var (
	_ integration.JobLease = (*InMemoryJobLease)(nil)
	_ integration.JobLease = (*RedisJobLease)(nil)
)
