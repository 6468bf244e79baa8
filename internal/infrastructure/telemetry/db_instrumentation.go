package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBInstrumentationConfig controls query tracing and query metrics.
type DBInstrumentationConfig struct {
	TraceEnabled    bool
	MetricsEnabled  bool
	LogFullSQL      bool          // include query variables in spans (development only)
	SlowQueryThresh time.Duration // default 200ms
	DBSystem        string        // "postgresql" or "sqlite"
}

// DefaultDBInstrumentationConfig returns the default configuration
func DefaultDBInstrumentationConfig() DBInstrumentationConfig {
	return DBInstrumentationConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

// gormOperations are the callback processors instrumented on every query
var gormOperations = []string{"create", "query", "update", "delete", "row", "raw"}

type dbContextKey string

const queryStartTimeKey dbContextKey = "db_query_start_time"

// DBInstrumentation registers otelgorm plus timing callbacks on a *gorm.DB.
// Spans are marked slow above the threshold; when a meter is supplied,
// query counts, durations and pool state are recorded as well.
type DBInstrumentation struct {
	config DBInstrumentationConfig
	logger *zap.Logger

	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter
}

// InstrumentDB wires tracing and metrics onto db according to cfg. meter may
// be nil when metrics are disabled.
func InstrumentDB(db *gorm.DB, cfg DBInstrumentationConfig, meter metric.Meter, logger *zap.Logger) (*DBInstrumentation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = DefaultDBInstrumentationConfig().SlowQueryThresh
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = DefaultDBInstrumentationConfig().DBSystem
	}
	if meter == nil {
		cfg.MetricsEnabled = false
	}

	inst := &DBInstrumentation{config: cfg, logger: logger}
	if !cfg.TraceEnabled && !cfg.MetricsEnabled {
		logger.Debug("Database instrumentation disabled")
		return inst, nil
	}

	if cfg.MetricsEnabled {
		if err := inst.createInstruments(db, meter); err != nil {
			return nil, err
		}
	}

	// Must precede otelgorm: the after callbacks annotate the open query span.
	for _, op := range gormOperations {
		if err := registerCallback(db, op, "storesync_db:before_"+op, true, inst.before); err != nil {
			return nil, err
		}
		after := func(tx *gorm.DB) { inst.after(tx, op) }
		if err := registerCallback(db, op, "storesync_db:after_"+op, false, after); err != nil {
			return nil, err
		}
	}

	if cfg.TraceEnabled {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
		if !cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return nil, fmt.Errorf("register otelgorm: %w", err)
		}
	}

	logger.Info("Database instrumentation enabled",
		zap.Bool("tracing", cfg.TraceEnabled),
		zap.Bool("metrics", cfg.MetricsEnabled),
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
		zap.String("db_system", cfg.DBSystem),
	)
	return inst, nil
}

func (i *DBInstrumentation) createInstruments(db *gorm.DB, meter metric.Meter) error {
	var err error
	if i.queryTotal, err = NewCounter(meter, "db_query_total", "Database queries by operation", "{query}"); err != nil {
		return err
	}
	if i.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Queries slower than the slow query threshold", "{query}"); err != nil {
		return err
	}
	if i.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency in seconds",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	return observePool(meter, sqlDB)
}

// observePool exports sql.DB pool state as observable gauges read at
// collection time.
func observePool(meter metric.Meter, sqlDB *sql.DB) error {
	_, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			stats := sqlDB.Stats()
			o.Observe(int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
			o.Observe(int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
			o.Observe(int64(stats.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create pool gauge: %w", err)
	}
	_, err = meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum open connections"),
		metric.WithUnit("{connection}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(sqlDB.Stats().MaxOpenConnections))
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create pool max gauge: %w", err)
	}
	return nil
}

func (i *DBInstrumentation) before(db *gorm.DB) {
	if db.Statement.Context == nil {
		db.Statement.Context = context.Background()
	}
	db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
}

func (i *DBInstrumentation) after(db *gorm.DB, op string) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	var elapsed time.Duration
	if start, ok := ctx.Value(queryStartTimeKey).(time.Time); ok {
		elapsed = time.Since(start)
	}
	slow := elapsed > i.config.SlowQueryThresh

	if i.config.TraceEnabled {
		i.annotateSpan(ctx, db, elapsed, slow)
	}
	if i.config.MetricsEnabled {
		operation := operationFor(op, db.Statement.SQL.String())
		i.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
		i.queryDuration.RecordDuration(ctx, elapsed, AttrDBOperation.String(operation))
		if slow {
			table := db.Statement.Table
			if table == "" {
				table = "unknown"
			}
			i.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
		}
	}
}

func (i *DBInstrumentation) annotateSpan(ctx context.Context, db *gorm.DB, elapsed time.Duration, slow bool) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
	if slow {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query_warning", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", i.config.SlowQueryThresh.Milliseconds()),
		))
	}
}

// registerCallback attaches fn before or after the built-in gorm callback
// for op.
func registerCallback(db *gorm.DB, op, name string, before bool, fn func(*gorm.DB)) error {
	cb := db.Callback()
	anchor := "gorm:" + op
	var err error
	switch op {
	case "create":
		if before {
			err = cb.Create().Before(anchor).Register(name, fn)
		} else {
			err = cb.Create().After(anchor).Register(name, fn)
		}
	case "query":
		if before {
			err = cb.Query().Before(anchor).Register(name, fn)
		} else {
			err = cb.Query().After(anchor).Register(name, fn)
		}
	case "update":
		if before {
			err = cb.Update().Before(anchor).Register(name, fn)
		} else {
			err = cb.Update().After(anchor).Register(name, fn)
		}
	case "delete":
		if before {
			err = cb.Delete().Before(anchor).Register(name, fn)
		} else {
			err = cb.Delete().After(anchor).Register(name, fn)
		}
	case "row":
		if before {
			err = cb.Row().Before(anchor).Register(name, fn)
		} else {
			err = cb.Row().After(anchor).Register(name, fn)
		}
	case "raw":
		if before {
			err = cb.Raw().Before(anchor).Register(name, fn)
		} else {
			err = cb.Raw().After(anchor).Register(name, fn)
		}
	default:
		return fmt.Errorf("unknown gorm operation %q", op)
	}
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	return nil
}

// operationFor maps a gorm processor to a SQL verb. Row and raw statements
// are classified from their text.
func operationFor(op, statement string) string {
	switch op {
	case "create":
		return "INSERT"
	case "query":
		return "SELECT"
	case "update":
		return "UPDATE"
	case "delete":
		return "DELETE"
	}
	statement = strings.ToUpper(strings.TrimSpace(statement))
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE", "WITH"} {
		if strings.HasPrefix(statement, verb) {
			if verb == "WITH" {
				return "SELECT"
			}
			return verb
		}
	}
	return "OTHER"
}
