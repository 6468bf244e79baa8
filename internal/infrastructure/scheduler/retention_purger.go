package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/storesync/backend/internal/domain/integration"
	"go.uber.org/zap"
)

// JobArchiver stores a finished job before it is deleted
type JobArchiver interface {
	Archive(ctx context.Context, job *integration.BatchJob) error
}

// RetentionConfig holds configuration for the retention purger
type RetentionConfig struct {
	// Window is how long finished jobs are kept
	Window time.Duration
	// Interval between two purge runs
	Interval time.Duration
	// BatchLimit caps how many jobs one run handles
	BatchLimit int
}

// DefaultRetentionConfig returns default configuration
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Window:     30 * 24 * time.Hour,
		Interval:   6 * time.Hour,
		BatchLimit: 500,
	}
}

// RetentionPurger archives and deletes finished jobs past the retention
// window. Without an archiver jobs are deleted directly.
type RetentionPurger struct {
	config   RetentionConfig
	jobs     integration.JobRepository
	archiver JobArchiver
	logger   *zap.Logger
	now      func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewRetentionPurger creates a new retention purger. archiver may be nil.
func NewRetentionPurger(config RetentionConfig, jobs integration.JobRepository, archiver JobArchiver, logger *zap.Logger) (*RetentionPurger, error) {
	if err := checkNonNegative(
		durationSetting("window", config.Window),
		durationSetting("interval", config.Interval),
		intSetting("batch_limit", config.BatchLimit),
	); err != nil {
		return nil, err
	}
	defaults := DefaultRetentionConfig()
	if config.Window == 0 {
		config.Window = defaults.Window
	}
	if config.Interval == 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchLimit == 0 {
		config.BatchLimit = defaults.BatchLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetentionPurger{
		config:   config,
		jobs:     jobs,
		archiver: archiver,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start starts the purge loop
func (p *RetentionPurger) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.RunOnce(ctx); err != nil {
					p.logger.Error("Retention purge failed", zap.Error(err))
				}
			}
		}
	}()

	p.logger.Info("Retention purger started",
		zap.Duration("window", p.config.Window),
		zap.Duration("interval", p.config.Interval),
		zap.Bool("archiving", p.archiver != nil),
	)
	return nil
}

// Stop stops the purge loop
func (p *RetentionPurger) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Retention purger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce purges one batch of expired jobs and returns how many were
// deleted. A job whose archive fails is kept for the next run.
func (p *RetentionPurger) RunOnce(ctx context.Context) (int, error) {
	cutoff := p.now().Add(-p.config.Window)
	jobs, err := p.jobs.FindTerminalBefore(ctx, cutoff, p.config.BatchLimit)
	if err != nil {
		return 0, err
	}

	purged := 0
	for i := range jobs {
		job := &jobs[i]
		if p.archiver != nil {
			if err := p.archiver.Archive(ctx, job); err != nil {
				p.logger.Warn("Failed to archive job, keeping it",
					zap.String("job_id", job.ID.String()),
					zap.Error(err),
				)
				continue
			}
		}
		if err := p.jobs.Delete(ctx, job.ID); err != nil {
			p.logger.Warn("Failed to delete job", zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		purged++
	}

	if purged > 0 {
		p.logger.Info("Purged expired jobs",
			zap.Int("purged", purged),
			zap.Int("candidates", len(jobs)),
			zap.Time("cutoff", cutoff),
		)
	}
	return purged, nil
}
