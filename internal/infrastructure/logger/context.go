package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

// Context keys. Each identifier key doubles as the log field name.
const (
	LoggerKey    contextKey = "logger"
	RequestIDKey contextKey = "request_id"
	OperatorKey  contextKey = "operator"
	JobIDKey     contextKey = "job_id"
	StoreIDKey   contextKey = "store_id"
)

var identifierKeys = [...]contextKey{RequestIDKey, OperatorKey, JobIDKey, StoreIDKey}

// WithContext stores l in ctx
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}

// FromContext returns the logger stored in ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithRequestID records the request id in ctx and on the returned logger,
// which is also stored in the returned context. WithOperator, WithJobID and
// WithStoreID behave the same way for their identifiers.
func WithRequestID(ctx context.Context, l *zap.Logger, id string) (context.Context, *zap.Logger) {
	return withIdentifier(ctx, l, RequestIDKey, id)
}

func WithOperator(ctx context.Context, l *zap.Logger, subject string) (context.Context, *zap.Logger) {
	return withIdentifier(ctx, l, OperatorKey, subject)
}

func WithJobID(ctx context.Context, l *zap.Logger, jobID string) (context.Context, *zap.Logger) {
	return withIdentifier(ctx, l, JobIDKey, jobID)
}

func WithStoreID(ctx context.Context, l *zap.Logger, storeID string) (context.Context, *zap.Logger) {
	return withIdentifier(ctx, l, StoreIDKey, storeID)
}

func withIdentifier(ctx context.Context, l *zap.Logger, key contextKey, value string) (context.Context, *zap.Logger) {
	l = l.With(zap.String(string(key), value))
	ctx = context.WithValue(ctx, key, value)
	return WithContext(ctx, l), l
}

func GetRequestID(ctx context.Context) string { return identifier(ctx, RequestIDKey) }
func GetOperator(ctx context.Context) string  { return identifier(ctx, OperatorKey) }
func GetJobID(ctx context.Context) string     { return identifier(ctx, JobIDKey) }
func GetStoreID(ctx context.Context) string   { return identifier(ctx, StoreIDKey) }

func identifier(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// GetTraceID returns the hex trace id of the active span, or ""
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// GetSpanID returns the hex span id of the active span, or ""
func GetSpanID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.SpanID().String()
	}
	return ""
}

// WithTraceContext adds trace_id and span_id of the active span to l. Without
// a span l is returned as is.
func WithTraceContext(ctx context.Context, l *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// ContextLogger correlates entries with the span active in its context.
//
//	logger.L(ctx).Warn("Item failed", zap.String("sku", sku))
type ContextLogger struct {
	ctx  context.Context
	base *zap.Logger
	// external is set when base did not come from ctx and so lacks the
	// identifiers stored there
	external bool
}

// L uses the logger stored in ctx, which already carries any identifiers
// set through this package
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, base: FromContext(ctx)}
}

// WithLogger uses l and copies the identifiers found in ctx onto it
func WithLogger(ctx context.Context, l *zap.Logger) *ContextLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ContextLogger{ctx: ctx, base: l, external: true}
}

// With returns a child carrying fields
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	child := *cl
	child.base = cl.base.With(fields...)
	return &child
}

// Zap returns the correlated zap logger
func (cl *ContextLogger) Zap() *zap.Logger {
	l := WithTraceContext(cl.ctx, cl.base)
	if !cl.external {
		return l
	}
	for _, key := range identifierKeys {
		if v := identifier(cl.ctx, key); v != "" {
			l = l.With(zap.String(string(key), v))
		}
	}
	return l
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) { cl.Zap().Debug(msg, fields...) }
func (cl *ContextLogger) Info(msg string, fields ...zap.Field)  { cl.Zap().Info(msg, fields...) }
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field)  { cl.Zap().Warn(msg, fields...) }
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) { cl.Zap().Error(msg, fields...) }
