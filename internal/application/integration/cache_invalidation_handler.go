package integration

import (
	"context"

	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// CacheInvalidationHandler drops the cached stats of the stores named by a
// ledger flush or a sales pull. A slice flushes once, however many rows it
// wrote.
type CacheInvalidationHandler struct {
	stats  *StatsService
	logger *zap.Logger
}

// NewCacheInvalidationHandler creates a new CacheInvalidationHandler
func NewCacheInvalidationHandler(stats *StatsService, logger *zap.Logger) *CacheInvalidationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheInvalidationHandler{stats: stats, logger: logger}
}

// EventTypes implements shared.EventHandler
func (h *CacheInvalidationHandler) EventTypes() []string {
	return []string{
		integration.EventTypeLedgerFlushed,
		integration.EventTypeSalesAggregated,
	}
}

// Handle implements shared.EventHandler
func (h *CacheInvalidationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	scoped, ok := event.(integration.StoreScoped)
	if !ok {
		return nil
	}

	if err := h.stats.InvalidateStores(ctx, scoped.AffectedStores()...); err != nil {
		h.logger.Warn("Failed to invalidate store stats",
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

var _ shared.EventHandler = (*CacheInvalidationHandler)(nil)
