package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/shared"
	"github.com/storesync/backend/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// Default TTLs of the cached stats views
const (
	DefaultStoreStatsTTL = 5 * time.Minute
	DefaultOverviewTTL   = 15 * time.Minute
	DefaultTopProducts   = 10
	MaxTopProducts       = 100
)

// StatsTTLs holds the cache lifetimes of the stats views
type StatsTTLs struct {
	StoreStats time.Duration
	Overview   time.Duration
}

// StatsService serves cached summaries over the ledger and sales.
type StatsService struct {
	stores integration.StoreReader
	ledger integration.LedgerReader
	sales  integration.SalesRepository
	cache  cache.AggregateCache
	ttls   StatsTTLs
	now    func() time.Time
	logger *zap.Logger
}

// NewStatsService creates a new StatsService
func NewStatsService(
	stores integration.StoreReader,
	ledger integration.LedgerReader,
	sales integration.SalesRepository,
	aggCache cache.AggregateCache,
	ttls StatsTTLs,
	logger *zap.Logger,
) *StatsService {
	if ttls.StoreStats <= 0 {
		ttls.StoreStats = DefaultStoreStatsTTL
	}
	if ttls.Overview <= 0 {
		ttls.Overview = DefaultOverviewTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{
		stores: stores,
		ledger: ledger,
		sales:  sales,
		cache:  aggCache,
		ttls:   ttls,
		now:    time.Now,
		logger: logger,
	}
}

// StoreStats returns the ledger counts and sales totals of one store
func (s *StatsService) StoreStats(ctx context.Context, storeID uuid.UUID) (*StoreStats, error) {
	stats, err := cache.ReadThrough(ctx, s.cache, cache.StoreStatsKey(storeID), s.ttls.StoreStats, s.logger,
		func(ctx context.Context) (StoreStats, error) {
			store, err := s.stores.FindByID(ctx, storeID)
			if err != nil {
				return StoreStats{}, err
			}
			counts, err := s.ledger.CountByStatus(ctx, &storeID)
			if err != nil {
				return StoreStats{}, err
			}
			totals, err := s.sales.Totals(ctx, &storeID)
			if err != nil {
				return StoreStats{}, err
			}
			return StoreStats{
				StoreID:     storeID,
				Records:     counts,
				SalesQty:    totals.Quantity,
				SalesValue:  totals.TotalValue,
				LastSyncAt:  store.LastSyncAt,
				GeneratedAt: s.now(),
			}, nil
		})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// GlobalOverview returns the cross-store summary
func (s *StatsService) GlobalOverview(ctx context.Context) (*GlobalOverview, error) {
	overview, err := cache.ReadThrough(ctx, s.cache, cache.GlobalOverviewKey, s.ttls.Overview, s.logger,
		func(ctx context.Context) (GlobalOverview, error) {
			_, total, err := s.stores.FindAll(ctx, shared.DefaultFilter())
			if err != nil {
				return GlobalOverview{}, err
			}
			active, err := s.stores.FindActive(ctx)
			if err != nil {
				return GlobalOverview{}, err
			}
			counts, err := s.ledger.CountByStatus(ctx, nil)
			if err != nil {
				return GlobalOverview{}, err
			}
			totals, err := s.sales.Totals(ctx, nil)
			if err != nil {
				return GlobalOverview{}, err
			}
			return GlobalOverview{
				Stores:       int(total),
				ActiveStores: len(active),
				Records:      counts,
				SalesQty:     totals.Quantity,
				SalesValue:   totals.TotalValue,
				GeneratedAt:  s.now(),
			}, nil
		})
	if err != nil {
		return nil, err
	}
	return &overview, nil
}

// TopProducts returns a store's best sellers by quantity. n is clamped to
// [1, MaxTopProducts]; zero means DefaultTopProducts.
func (s *StatsService) TopProducts(ctx context.Context, storeID uuid.UUID, n int) ([]integration.TopProduct, error) {
	switch {
	case n == 0:
		n = DefaultTopProducts
	case n < 1:
		n = 1
	case n > MaxTopProducts:
		n = MaxTopProducts
	}
	return cache.ReadThrough(ctx, s.cache, cache.TopProductsKey(storeID, n), s.ttls.StoreStats, s.logger,
		func(ctx context.Context) ([]integration.TopProduct, error) {
			if _, err := s.stores.FindByID(ctx, storeID); err != nil {
				return nil, err
			}
			top, err := s.sales.TopProducts(ctx, storeID, n)
			if err != nil {
				return nil, err
			}
			if top == nil {
				top = []integration.TopProduct{}
			}
			return top, nil
		})
}

// InvalidateStore drops every cached view derived from the store
func (s *StatsService) InvalidateStore(ctx context.Context, storeID uuid.UUID) error {
	return s.InvalidateStores(ctx, storeID)
}

// InvalidateStores drops the views of each store, then the overview once.
// A failure on one store does not stop the others.
func (s *StatsService) InvalidateStores(ctx context.Context, storeIDs ...uuid.UUID) error {
	if len(storeIDs) == 0 {
		return nil
	}
	var errs []error
	for _, id := range storeIDs {
		if err := s.cache.Invalidate(ctx, cache.StoreStatsKey(id)); err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", id, err))
		}
	}
	if err := s.cache.Invalidate(ctx, cache.GlobalOverviewKey); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
