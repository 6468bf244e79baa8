package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sampleRow struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&sampleRow{}))
	return db
}

func TestInstrumentDB_Disabled(t *testing.T) {
	db := openTestDB(t)
	inst, err := InstrumentDB(db, DBInstrumentationConfig{}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, inst.config.SlowQueryThresh)
	assert.Equal(t, "postgresql", inst.config.DBSystem)
	assert.Nil(t, db.Callback().Create().Get("storesync_db:after_create"))
}

func TestInstrumentDB_MetricsWithoutMeterIsDisabled(t *testing.T) {
	inst, err := InstrumentDB(openTestDB(t), DBInstrumentationConfig{MetricsEnabled: true}, nil, nil)
	require.NoError(t, err)
	assert.False(t, inst.config.MetricsEnabled)
}

func TestInstrumentDB_RecordsQueryMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	db := openTestDB(t)
	_, err := InstrumentDB(db, DBInstrumentationConfig{
		MetricsEnabled:  true,
		SlowQueryThresh: time.Hour,
		DBSystem:        "sqlite",
	}, mp.Meter("db.client"), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).Create(&sampleRow{Name: "a"}).Error)
	require.NoError(t, db.WithContext(ctx).Create(&sampleRow{Name: "b"}).Error)
	var rows []sampleRow
	require.NoError(t, db.WithContext(ctx).Find(&rows).Error)
	require.NoError(t, db.WithContext(ctx).Exec("DELETE FROM sample_rows WHERE name = ?", "a").Error)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	var sawPool bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "db_query_total":
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					op, _ := dp.Attributes.Value(attribute.Key("db.operation"))
					counts[op.AsString()] = dp.Value
				}
			case "db_pool_connections":
				sawPool = true
			case "db_slow_query_total":
				t.Errorf("no query should exceed an hour")
			}
		}
	}

	assert.Equal(t, int64(2), counts["INSERT"])
	assert.Equal(t, int64(1), counts["SELECT"])
	assert.Equal(t, int64(1), counts["DELETE"])
	assert.True(t, sawPool)
}

func TestInstrumentDB_MarksSlowQueriesOnSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})

	db := openTestDB(t)
	_, err := InstrumentDB(db, DBInstrumentationConfig{
		TraceEnabled:    true,
		SlowQueryThresh: time.Nanosecond,
		DBSystem:        "sqlite",
	}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	require.NoError(t, db.WithContext(ctx).Create(&sampleRow{Name: "slow"}).Error)
	span.End()

	var slow bool
	for _, s := range sr.Ended() {
		for _, a := range s.Attributes() {
			if a.Key == "db.slow_query" && a.Value.AsBool() {
				slow = true
			}
		}
	}
	assert.True(t, slow, "a span is marked slow")
}

func TestOperationFor(t *testing.T) {
	tests := []struct {
		op, sql, want string
	}{
		{"create", "", "INSERT"},
		{"query", "", "SELECT"},
		{"update", "", "UPDATE"},
		{"delete", "", "DELETE"},
		{"raw", "  select 1", "SELECT"},
		{"raw", "WITH t AS (SELECT 1) SELECT * FROM t", "SELECT"},
		{"row", "UPDATE batch_jobs SET status = 'paused'", "UPDATE"},
		{"raw", "VACUUM", "OTHER"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, operationFor(tt.op, tt.sql), tt.sql)
	}
}

func TestRegisterCallback_UnknownOperation(t *testing.T) {
	err := registerCallback(openTestDB(t), "merge", "x", true, func(*gorm.DB) {})
	assert.Error(t, err)
}
