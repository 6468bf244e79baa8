package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	integrationapp "github.com/storesync/backend/internal/application/integration"
	"github.com/storesync/backend/internal/domain/integration"
	"go.uber.org/zap"
)

// SliceRunner executes one slice of a batch job
type SliceRunner interface {
	ExecuteSlice(ctx context.Context, jobID uuid.UUID) (*integrationapp.SliceOutcome, error)
}

// ContinuationConfig holds continuation scheduler configuration
type ContinuationConfig struct {
	// Workers is the number of slices that may run at once
	Workers int
	// TickInterval is how often the dispatcher looks for due entries
	TickInterval time.Duration
	// SliceTimeout bounds a single slice execution
	SliceTimeout time.Duration
	// LeasedRetryDelay is how long to wait before retrying a job whose lease
	// is held elsewhere
	LeasedRetryDelay time.Duration
}

// DefaultContinuationConfig returns default continuation scheduler configuration
func DefaultContinuationConfig() ContinuationConfig {
	return ContinuationConfig{
		Workers:          2,
		TickInterval:     250 * time.Millisecond,
		SliceTimeout:     5 * time.Minute,
		LeasedRetryDelay: 5 * time.Second,
	}
}

// Validate validates the configuration and fills in zero values
func (c *ContinuationConfig) Validate() error {
	if err := checkNonNegative(
		intSetting("workers", c.Workers),
		durationSetting("tick_interval", c.TickInterval),
		durationSetting("slice_timeout", c.SliceTimeout),
		durationSetting("leased_retry_delay", c.LeasedRetryDelay),
	); err != nil {
		return err
	}
	defaults := DefaultContinuationConfig()
	if c.Workers == 0 {
		c.Workers = defaults.Workers
	}
	if c.TickInterval == 0 {
		c.TickInterval = defaults.TickInterval
	}
	if c.SliceTimeout == 0 {
		c.SliceTimeout = defaults.SliceTimeout
	}
	if c.LeasedRetryDelay == 0 {
		c.LeasedRetryDelay = defaults.LeasedRetryDelay
	}
	return nil
}

// ContinuationScheduler runs job slices no earlier than their due time.
// Due entries are handed to a bounded worker pool; at most one entry per job
// is pending at any time.
type ContinuationScheduler struct {
	config ContinuationConfig
	runner SliceRunner
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	queue   continuationQueue
	pending map[uuid.UUID]*continuation
	seq     uint64
	closed  bool

	work      chan uuid.UUID
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewContinuationScheduler creates a new continuation scheduler. Entries
// enqueued before Start are kept and dispatched once it runs.
func NewContinuationScheduler(config ContinuationConfig, runner SliceRunner, logger *zap.Logger) (*ContinuationScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContinuationScheduler{
		config:  config,
		runner:  runner,
		logger:  logger,
		now:     time.Now,
		pending: make(map[uuid.UUID]*continuation),
		work:    make(chan uuid.UUID, config.Workers),
	}, nil
}

// Enqueue schedules the next slice of jobID. When the job already has a
// pending entry, the earlier due time and the higher priority are kept.
func (s *ContinuationScheduler) Enqueue(ctx context.Context, jobID uuid.UUID, notBefore time.Time, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerNotRunning
	}

	if existing, ok := s.pending[jobID]; ok {
		changed := false
		if notBefore.Before(existing.notBefore) {
			existing.notBefore = notBefore
			changed = true
		}
		if priority > existing.priority {
			existing.priority = priority
			changed = true
		}
		if changed {
			heap.Fix(&s.queue, existing.index)
		}
		return nil
	}

	s.seq++
	entry := &continuation{jobID: jobID, notBefore: notBefore, priority: priority, seq: s.seq}
	heap.Push(&s.queue, entry)
	s.pending[jobID] = entry
	return nil
}

// Pending returns the number of queued entries
func (s *ContinuationScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Start starts the dispatcher and the worker pool
func (s *ContinuationScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.wg.Add(1)
	go s.dispatchLoop(ctx)

	s.logger.Info("Continuation scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Duration("tick_interval", s.config.TickInterval),
	)
	return nil
}

// Stop stops dispatching and waits for running slices to return.
// Entries still queued are dropped; Recover re-enqueues their jobs on the
// next start.
func (s *ContinuationScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	dropped := s.queue.Len()
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Continuation scheduler stopped", zap.Int("dropped_entries", dropped))
		return nil
	case <-ctx.Done():
		s.logger.Warn("Continuation scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *ContinuationScheduler) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue hands due entries to idle workers. Entries that find no idle
// worker stay queued for the next tick.
func (s *ContinuationScheduler) dispatchDue(ctx context.Context) {
	now := s.now()
	for {
		if ctx.Err() != nil || len(s.work) == cap(s.work) {
			return
		}

		s.mu.Lock()
		if s.queue.Len() == 0 || s.queue[0].notBefore.After(now) {
			s.mu.Unlock()
			return
		}
		entry := heap.Pop(&s.queue).(*continuation)
		delete(s.pending, entry.jobID)
		s.mu.Unlock()

		s.work <- entry.jobID
	}
}

func (s *ContinuationScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-s.work:
			s.runSlice(ctx, jobID, workerID)
		}
	}
}

func (s *ContinuationScheduler) runSlice(ctx context.Context, jobID uuid.UUID, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Slice execution panicked",
				zap.Int("worker_id", workerID),
				zap.String("job_id", jobID.String()),
				zap.Any("panic", r),
			)
		}
	}()

	sliceCtx, cancel := context.WithTimeout(ctx, s.config.SliceTimeout)
	defer cancel()

	outcome, err := s.runner.ExecuteSlice(sliceCtx, jobID)
	switch {
	case errors.Is(err, integration.ErrJobLeased):
		s.logger.Debug("Job leased elsewhere, retrying later", zap.String("job_id", jobID.String()))
		s.retryLater(ctx, jobID)
	case errors.Is(err, integration.ErrStaleFencingToken):
		// A newer holder saved first; retry in case it has stopped.
		s.logger.Warn("Slice superseded by a newer lease, retrying later",
			zap.Int("worker_id", workerID),
			zap.String("job_id", jobID.String()),
		)
		s.retryLater(ctx, jobID)
	case err != nil:
		s.logger.Error("Slice execution failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", jobID.String()),
			zap.Error(err),
		)
	case outcome != nil && !outcome.Skipped:
		s.logger.Debug("Slice executed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", jobID.String()),
			zap.Int("processed", outcome.Processed),
			zap.Int("cursor", outcome.Cursor),
			zap.String("status", outcome.Status.String()),
		)
	}
}

func (s *ContinuationScheduler) retryLater(ctx context.Context, jobID uuid.UUID) {
	if err := s.Enqueue(ctx, jobID, s.now().Add(s.config.LeasedRetryDelay), 0); err != nil && !errors.Is(err, ErrSchedulerNotRunning) {
		s.logger.Warn("Failed to re-enqueue job", zap.String("job_id", jobID.String()), zap.Error(err))
	}
}

// ---------------------------------------------------------------------------
// Queue
// ---------------------------------------------------------------------------

type continuation struct {
	jobID     uuid.UUID
	notBefore time.Time
	priority  int
	seq       uint64
	index     int
}

// continuationQueue is a min-heap by due time, then higher priority, then
// insertion order
type continuationQueue []*continuation

func (q continuationQueue) Len() int { return len(q) }

func (q continuationQueue) Less(i, j int) bool {
	if !q[i].notBefore.Equal(q[j].notBefore) {
		return q[i].notBefore.Before(q[j].notBefore)
	}
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q continuationQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *continuationQueue) Push(x any) {
	entry := x.(*continuation)
	entry.index = len(*q)
	*q = append(*q, entry)
}

func (q *continuationQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*q = old[:n-1]
	return entry
}

var _ integration.ContinuationScheduler = (*ContinuationScheduler)(nil)
