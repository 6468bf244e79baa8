package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogsConfig holds logs bridge configuration.
type LogsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
	// ExportInterval defaults to the SDK's batch interval when zero
	ExportInterval time.Duration
}

// LoggerProvider owns the SDK log provider and its batch exporter
type LoggerProvider struct {
	provider *sdklog.LoggerProvider
	logger   *zap.Logger
}

// NewLoggerProvider creates the OTLP log exporter. A disabled config yields
// a provider without an exporter.
func NewLoggerProvider(ctx context.Context, cfg LogsConfig, logger *zap.Logger) (*LoggerProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	lp := &LoggerProvider{logger: logger}
	if !cfg.Enabled {
		logger.Info("Log export disabled")
		return lp, nil
	}

	exporterOpts := []otlploggrpc.Option{
		otlploggrpc.WithEndpoint(cfg.CollectorEndpoint),
	}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("otlp log exporter: %w", err)
	}

	res, err := serviceResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	var batchOpts []sdklog.BatchProcessorOption
	if cfg.ExportInterval > 0 {
		batchOpts = append(batchOpts, sdklog.WithExportInterval(cfg.ExportInterval))
	}
	lp.provider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter, batchOpts...)),
	)
	global.SetLoggerProvider(lp.provider)

	logger.Info("Log export enabled", zap.String("collector_endpoint", cfg.CollectorEndpoint))
	return lp, nil
}

// Shutdown flushes pending records, waiting at most 10 seconds
func (lp *LoggerProvider) Shutdown(ctx context.Context) error {
	if lp.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := lp.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown logger provider: %w", err)
	}
	return nil
}

// IsEnabled reports whether records are exported
func (lp *LoggerProvider) IsEnabled() bool {
	return lp.provider != nil
}

// =============================================================================
// Zap Logger Bridge
// =============================================================================

// RedactedValue replaces the value of a redacted field
const RedactedValue = "[REDACTED]"

// DefaultRedactedKeys are field keys never exported as-is. Store credentials
// pass through request and storefront client logging.
var DefaultRedactedKeys = []string{
	"authorization",
	"consumer_key",
	"consumer_secret",
	"password",
	"secret",
	"token",
}

// ZapBridgeConfig holds configuration for the Zap -> OTEL bridge.
type ZapBridgeConfig struct {
	// ServiceName is used as the logger name in OpenTelemetry
	ServiceName string
	// LoggerProvider is the OpenTelemetry LoggerProvider to use
	LoggerProvider *LoggerProvider
	// Level is the minimum log level to export
	Level zapcore.Level
	// RedactKeys defaults to DefaultRedactedKeys when nil
	RedactKeys []string
}

// NewZapOTELCore creates a zapcore.Core that exports logs to OpenTelemetry.
// Pass it to logger.WithCore to tee application logs into the exporter.
// A nil or disabled provider yields a no-op core.
func NewZapOTELCore(cfg ZapBridgeConfig) zapcore.Core {
	if cfg.LoggerProvider == nil || !cfg.LoggerProvider.IsEnabled() {
		return zapcore.NewNopCore()
	}
	core := otelzap.NewCore(cfg.ServiceName,
		otelzap.WithLoggerProvider(cfg.LoggerProvider.provider),
	)
	return newExportCore(core, cfg.Level, cfg.RedactKeys)
}

// exportCore filters by level, which otelzap does not do itself, and masks
// sensitive fields before they reach the wrapped core.
type exportCore struct {
	zapcore.Core
	minLevel zapcore.Level
	redact   map[string]bool
}

func newExportCore(inner zapcore.Core, minLevel zapcore.Level, keys []string) *exportCore {
	if keys == nil {
		keys = DefaultRedactedKeys
	}
	redact := make(map[string]bool, len(keys))
	for _, k := range keys {
		redact[strings.ToLower(k)] = true
	}
	return &exportCore{Core: inner, minLevel: minLevel, redact: redact}
}

// Enabled implements zapcore.Core.
func (c *exportCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.minLevel && c.Core.Enabled(lvl)
}

// With implements zapcore.Core.
func (c *exportCore) With(fields []zapcore.Field) zapcore.Core {
	return &exportCore{
		Core:     c.Core.With(c.mask(fields)),
		minLevel: c.minLevel,
		redact:   c.redact,
	}
}

// Check implements zapcore.Core. The core registers itself so that Write
// can mask the entry's fields.
func (c *exportCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return ce.AddCore(entry, c)
}

// Write implements zapcore.Core.
func (c *exportCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(entry, c.mask(fields))
}

func (c *exportCore) mask(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if !c.redact[strings.ToLower(f.Key)] {
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, len(fields))
			copy(out, fields)
		}
		out[i] = zap.String(f.Key, RedactedValue)
	}
	if out == nil {
		return fields
	}
	return out
}
