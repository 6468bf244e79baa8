package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/catalog"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/shared"
	"github.com/storesync/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultSalesWindow is how far back a pull looks when no window is given
const DefaultSalesWindow = 24 * time.Hour

// SalesMetrics receives per-store pull outcomes.
type SalesMetrics interface {
	RecordSalesPull(ctx context.Context, storeID uuid.UUID, upserted int, err error)
}

// SalesAggregator pulls order lines from destination stores and folds them
// into monthly per-SKU aggregates.
type SalesAggregator struct {
	stores  integration.StoreRepository
	sales   integration.SalesRepository
	source  catalog.SourceCatalog
	clients integration.StorefrontClientFactory
	events  shared.EventPublisher
	metrics SalesMetrics
	now     func() time.Time
	logger  *zap.Logger
}

// NewSalesAggregator creates a new SalesAggregator
func NewSalesAggregator(
	stores integration.StoreRepository,
	sales integration.SalesRepository,
	source catalog.SourceCatalog,
	clients integration.StorefrontClientFactory,
	events shared.EventPublisher,
	logger *zap.Logger,
) *SalesAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SalesAggregator{
		stores:  stores,
		sales:   sales,
		source:  source,
		clients: clients,
		events:  events,
		now:     time.Now,
		logger:  logger,
	}
}

type salesGroupKey struct {
	sku    string
	period string
}

// WithMetrics sets the recorder for pull outcomes
func (a *SalesAggregator) WithMetrics(m SalesMetrics) *SalesAggregator {
	a.metrics = m
	return a
}

// Pull ingests the orders placed on store within the last window. Lines
// whose SKU does not resolve to a source item are skipped and counted.
// Lines already ingested by an earlier pull, or repeated within this one,
// are ignored. Lines with no order or line id cannot be recognised again
// and are always summed. A failed order fetch writes nothing.
func (a *SalesAggregator) Pull(ctx context.Context, store *integration.StoreProfile, window time.Duration) (*PullResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "sales", "pull",
		telemetry.WithAttribute(telemetry.SpanAttrStoreID, store.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrWindow, window.String()),
	)
	defer span.End()

	result, err := a.pull(ctx, store, window)
	upserted := 0
	if result != nil {
		upserted = result.Upserted
	}
	if a.metrics != nil {
		a.metrics.RecordSalesPull(ctx, store.ID, upserted, err)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, "upserted", upserted)
	return result, nil
}

func (a *SalesAggregator) pull(ctx context.Context, store *integration.StoreProfile, window time.Duration) (*PullResult, error) {
	if window <= 0 {
		window = DefaultSalesWindow
	}
	if !store.IsActive() {
		return nil, integration.ErrStoreInactive
	}

	client, err := a.clients.ClientFor(store)
	if err != nil {
		return nil, fmt.Errorf("storefront client: %w", err)
	}

	now := a.now()
	orders, err := client.ListOrdersAfter(ctx, now.Add(-window))
	if err != nil {
		a.logger.Error("Failed to list orders",
			zap.String("store_id", store.ID.String()),
			zap.Duration("window", window),
			zap.Error(err),
		)
		return nil, err
	}

	result := &PullResult{StoreID: store.ID, Orders: len(orders)}

	keys := make([]string, 0)
	for _, o := range orders {
		result.Lines += len(o.LineItems)
		for i := range o.LineItems {
			if key := o.LineKey(i); key != "" {
				keys = append(keys, key)
			}
		}
	}

	unseen, err := a.sales.UnseenLines(ctx, store.ID, keys)
	if err != nil {
		return nil, fmt.Errorf("check ingested lines: %w", err)
	}
	unseenSet := make(map[string]struct{}, len(unseen))
	for _, key := range unseen {
		unseenSet[key] = struct{}{}
	}

	groups := make(map[salesGroupKey]*integration.SalesRecord)
	order := make([]salesGroupKey, 0)
	ingested := make([]string, 0, len(unseen))

	for _, o := range orders {
		for i, line := range o.LineItems {
			// Paging can return a line twice; only its first copy counts.
			lineKey := o.LineKey(i)
			if lineKey != "" {
				if _, ok := unseenSet[lineKey]; !ok {
					result.Seen++
					continue
				}
				delete(unseenSet, lineKey)
			}

			sku := catalog.NormalizeSKU(line.SKU)
			if sku == "" {
				result.Skipped++
				continue
			}
			item, found, err := a.source.ResolveItemBySku(ctx, sku)
			if err != nil {
				return nil, fmt.Errorf("resolve sku %q: %w", sku, err)
			}
			if !found {
				result.Skipped++
				a.logger.Debug("Skipping order line with unknown SKU",
					zap.String("store_id", store.ID.String()),
					zap.String("sku", sku),
					zap.String("line_key", lineKey),
				)
				continue
			}

			key := salesGroupKey{sku: sku, period: integration.PeriodKey(o.CreatedAt)}
			if g, ok := groups[key]; ok {
				g.Merge(int64(line.Quantity), line.Total, o.CreatedAt)
			} else {
				r := integration.NewSalesRecord(store.ID, item.ID, sku, int64(line.Quantity), line.Total, o.CreatedAt)
				groups[key] = &r
				order = append(order, key)
			}
			if lineKey != "" {
				ingested = append(ingested, lineKey)
			}
		}
	}

	records := make([]integration.SalesRecord, 0, len(order))
	for _, key := range order {
		records = append(records, *groups[key])
	}

	if len(records) > 0 {
		if err := a.sales.ApplyPull(ctx, store.ID, ingested, records); err != nil {
			return nil, fmt.Errorf("apply sales pull: %w", err)
		}
	}
	result.Upserted = len(records)

	if err := a.stores.UpdateLastSyncAt(ctx, store.ID, now); err != nil {
		a.logger.Warn("Failed to update store last sync time",
			zap.String("store_id", store.ID.String()),
			zap.Error(err),
		)
	}

	if a.events != nil {
		event := integration.NewSalesAggregatedEvent(store.ID, result.Orders, result.Lines, result.Skipped, result.Upserted)
		if err := a.events.Publish(ctx, event); err != nil {
			a.logger.Warn("Failed to publish sales event", zap.Error(err))
		}
	}

	a.logger.Info("Sales pulled",
		zap.String("store_id", store.ID.String()),
		zap.Int("orders", result.Orders),
		zap.Int("lines", result.Lines),
		zap.Int("skipped", result.Skipped),
		zap.Int("already_ingested", result.Seen),
		zap.Int("upserted", result.Upserted),
	)
	return result, nil
}

// PullStore loads the store and pulls it
func (a *SalesAggregator) PullStore(ctx context.Context, storeID uuid.UUID, window time.Duration) (*PullResult, error) {
	store, err := a.stores.FindByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return a.Pull(ctx, store, window)
}

// PullAll pulls every active store. A failing store is logged and does not
// stop the others; the joined errors are returned with the results.
func (a *SalesAggregator) PullAll(ctx context.Context, window time.Duration) ([]PullResult, error) {
	stores, err := a.stores.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active stores: %w", err)
	}

	results := make([]PullResult, 0, len(stores))
	var errs []error
	for i := range stores {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := a.Pull(ctx, &stores[i], window)
		if err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", stores[i].ID, err))
			continue
		}
		results = append(results, *res)
	}
	return results, errors.Join(errs...)
}
