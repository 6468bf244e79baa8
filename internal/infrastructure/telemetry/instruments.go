package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys shared by the HTTP, database and sync instruments
var (
	AttrHTTPMethod     = attribute.Key("http.method")
	AttrHTTPStatusCode = attribute.Key("http.status_code")
	AttrHTTPRoute      = attribute.Key("http.route")

	AttrDBOperation = attribute.Key("db.operation")
	AttrDBTable     = attribute.Key("db.table")
	AttrDBState     = attribute.Key("db.pool.state")

	// Store ids are bounded by the registered stores. Job ids and SKUs are
	// never metric attributes.
	AttrStoreID      = attribute.Key("store_id")
	AttrOutcome      = attribute.Key("outcome")
	AttrStoppedEarly = attribute.Key("stopped_early")
	AttrJobStatus    = attribute.Key("job_status")
)

// Histogram bucket boundaries. Durations are in seconds.
var (
	HTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	DBDurationBuckets   = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	// HTTPSizeBuckets are in bytes
	HTTPSizeBuckets = []float64{100, 1e3, 1e4, 1e5, 1e6, 5e6}

	// SliceDurationBuckets stop past the 25s slice time budget
	SliceDurationBuckets = []float64{0.5, 1, 2.5, 5, 10, 15, 20, 25, 30, 60}
	SliceSizeBuckets     = []float64{1, 5, 10, 25, 50, 100, 250, 500}
)

// Counter is a monotonic int64 counter
type Counter struct {
	counter metric.Int64Counter
}

// NewCounter creates a Counter on meter
func NewCounter(meter metric.Meter, name, description, unit string) (*Counter, error) {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", name, err)
	}
	return &Counter{counter: c}, nil
}

// Add adds value
func (c *Counter) Add(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	c.counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

// Inc adds one
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// HistogramOpts describes a float64 histogram
type HistogramOpts struct {
	Name        string
	Description string
	Unit        string
	// Boundaries replaces the SDK default buckets when set
	Boundaries []float64
}

// Histogram is a float64 histogram
type Histogram struct {
	histogram metric.Float64Histogram
}

// NewHistogram creates a Histogram on meter
func NewHistogram(meter metric.Meter, opts HistogramOpts) (*Histogram, error) {
	hopts := []metric.Float64HistogramOption{
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	}
	if len(opts.Boundaries) > 0 {
		hopts = append(hopts, metric.WithExplicitBucketBoundaries(opts.Boundaries...))
	}
	h, err := meter.Float64Histogram(opts.Name, hopts...)
	if err != nil {
		return nil, fmt.Errorf("histogram %s: %w", opts.Name, err)
	}
	return &Histogram{histogram: h}, nil
}

// Record records value
func (h *Histogram) Record(ctx context.Context, value float64, attrs ...attribute.KeyValue) {
	h.histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}

// RecordDuration records d in seconds
func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.Record(ctx, d.Seconds(), attrs...)
}

// GaugeObserver reports gauge values when the reader collects
type GaugeObserver func(ctx context.Context, observe func(value int64, attrs ...attribute.KeyValue)) error

// NewObservedGauge registers an int64 gauge whose values come from fn at
// collection time. Unregister the returned registration to stop reporting.
func NewObservedGauge(meter metric.Meter, name, description, unit string, fn GaugeObserver) (metric.Registration, error) {
	g, err := meter.Int64ObservableGauge(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("gauge %s: %w", name, err)
	}
	reg, err := meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		return fn(ctx, func(value int64, attrs ...attribute.KeyValue) {
			o.ObserveInt64(g, value, metric.WithAttributes(attrs...))
		})
	}, g)
	if err != nil {
		return nil, fmt.Errorf("register gauge %s: %w", name, err)
	}
	return reg, nil
}
