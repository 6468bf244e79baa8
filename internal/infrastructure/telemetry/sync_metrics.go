package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName names the meter sync instruments are created on
const SyncMetricsMeterName = "storesync.sync"

// SyncMetrics records batch sync and sales pull activity.
type SyncMetrics struct {
	itemsTotal    *Counter
	slicesTotal   *Counter
	sliceDuration *Histogram
	sliceItems    *Histogram
	pullsTotal    *Counter
	pulledRecords *Counter
}

// NewSyncMetrics creates the sync instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	m := &SyncMetrics{}
	var err error

	if m.itemsTotal, err = NewCounter(meter,
		"sync_items_total",
		"Items reconciled against a destination store by outcome",
		"{item}",
	); err != nil {
		return nil, err
	}
	if m.slicesTotal, err = NewCounter(meter,
		"sync_slices_total",
		"Batch slices executed",
		"{slice}",
	); err != nil {
		return nil, err
	}
	if m.sliceDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "sync_slice_duration_seconds",
		Description: "Wall time of a batch slice",
		Unit:        "s",
		Boundaries:  SliceDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.sliceItems, err = NewHistogram(meter, HistogramOpts{
		Name:        "sync_slice_items",
		Description: "Items processed per batch slice",
		Unit:        "{item}",
		Boundaries:  SliceSizeBuckets,
	}); err != nil {
		return nil, err
	}
	if m.pullsTotal, err = NewCounter(meter,
		"sales_pulls_total",
		"Sales pulls per store by outcome",
		"{pull}",
	); err != nil {
		return nil, err
	}
	if m.pulledRecords, err = NewCounter(meter,
		"sales_records_upserted_total",
		"Sales aggregates written by pulls",
		"{record}",
	); err != nil {
		return nil, err
	}
	return m, nil
}

// JobCounter returns the number of batch jobs per status
type JobCounter func(ctx context.Context) (map[string]int64, error)

// ObserveJobs registers the sync_jobs gauge, read from count whenever the
// metrics reader collects.
func ObserveJobs(meter metric.Meter, count JobCounter) (metric.Registration, error) {
	return NewObservedGauge(meter,
		"sync_jobs",
		"Batch jobs by status",
		"{job}",
		func(ctx context.Context, observe func(int64, ...attribute.KeyValue)) error {
			counts, err := count(ctx)
			if err != nil {
				return err
			}
			for status, n := range counts {
				observe(n, AttrJobStatus.String(status))
			}
			return nil
		},
	)
}

// RecordItem counts one item outcome for storeID
func (m *SyncMetrics) RecordItem(ctx context.Context, storeID uuid.UUID, outcome string) {
	m.itemsTotal.Inc(ctx, AttrStoreID.String(storeID.String()), AttrOutcome.String(outcome))
}

// RecordSlice records the size and duration of one executed slice
func (m *SyncMetrics) RecordSlice(ctx context.Context, processed int, duration time.Duration, stoppedEarly bool) {
	attr := AttrStoppedEarly.Bool(stoppedEarly)
	m.slicesTotal.Inc(ctx, attr)
	m.sliceDuration.RecordDuration(ctx, duration, attr)
	m.sliceItems.Record(ctx, float64(processed), attr)
}

// RecordSalesPull counts one store pull. A failed pull records no upserts.
func (m *SyncMetrics) RecordSalesPull(ctx context.Context, storeID uuid.UUID, upserted int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	store := AttrStoreID.String(storeID.String())
	m.pullsTotal.Inc(ctx, store, AttrOutcome.String(outcome))
	if err == nil && upserted > 0 {
		m.pulledRecords.Add(ctx, int64(upserted), store)
	}
}
