package scheduler

import (
	"context"
	"sync"
	"time"

	integrationapp "github.com/storesync/backend/internal/application/integration"
	"go.uber.org/zap"
)

// SalesPuller pulls recent orders from every active store
type SalesPuller interface {
	PullAll(ctx context.Context, window time.Duration) ([]integrationapp.PullResult, error)
}

// SalesPullTriggerConfig holds configuration for the sales pull trigger
type SalesPullTriggerConfig struct {
	// Interval between two pulls
	Interval time.Duration
	// Window is how far back each pull looks. It should exceed Interval so
	// that consecutive pulls overlap; line receipts prevent double counting.
	Window time.Duration
	// RunOnStart pulls once right after Start
	RunOnStart bool
}

// DefaultSalesPullTriggerConfig returns default configuration
func DefaultSalesPullTriggerConfig() SalesPullTriggerConfig {
	return SalesPullTriggerConfig{
		Interval: time.Hour,
		Window:   integrationapp.DefaultSalesWindow,
	}
}

// SalesPullTrigger runs the sales aggregator on a fixed cadence
type SalesPullTrigger struct {
	config SalesPullTriggerConfig
	puller SalesPuller
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	running   sync.Mutex
}

// NewSalesPullTrigger creates a new sales pull trigger
func NewSalesPullTrigger(config SalesPullTriggerConfig, puller SalesPuller, logger *zap.Logger) (*SalesPullTrigger, error) {
	if err := checkNonNegative(
		durationSetting("interval", config.Interval),
		durationSetting("window", config.Window),
	); err != nil {
		return nil, err
	}
	defaults := DefaultSalesPullTriggerConfig()
	if config.Interval == 0 {
		config.Interval = defaults.Interval
	}
	if config.Window == 0 {
		config.Window = defaults.Window
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SalesPullTrigger{config: config, puller: puller, logger: logger}, nil
}

// Start starts the trigger loop
func (t *SalesPullTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Sales pull trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Duration("window", t.config.Window),
	)
	return nil
}

// Stop stops the trigger loop and waits for a running pull
func (t *SalesPullTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Sales pull trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *SalesPullTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		t.Trigger(ctx)
	}

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Trigger(ctx)
		}
	}
}

// Trigger runs one pull over all stores. A pull already in progress makes
// this call a no-op; it reports whether a pull ran.
func (t *SalesPullTrigger) Trigger(ctx context.Context) bool {
	if !t.running.TryLock() {
		t.logger.Debug("Sales pull already in progress")
		return false
	}
	defer t.running.Unlock()

	started := time.Now()
	results, err := t.puller.PullAll(ctx, t.config.Window)

	upserted := 0
	for _, r := range results {
		upserted += r.Upserted
	}
	fields := []zap.Field{
		zap.Int("stores", len(results)),
		zap.Int("upserted", upserted),
		zap.Duration("duration", time.Since(started)),
	}
	if err != nil {
		t.logger.Warn("Sales pull finished with errors", append(fields, zap.Error(err))...)
		return true
	}
	t.logger.Info("Sales pull finished", fields...)
	return true
}
