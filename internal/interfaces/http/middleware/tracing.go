package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures the otelgin server spans
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// SkipPaths are not traced; nil means only /health
	SkipPaths []string
}

func DefaultTracingConfig() TracingConfig {
	return TracingConfig{ServiceName: "storesync", Enabled: true}
}

// TracingWithConfig starts a server span per request, named like
// "GET /api/v1/sync/batches/:id". Request and operator attributes are added
// later by TracingAttributeInjector.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passthrough
	}
	skip := cfg.SkipPaths
	if skip == nil {
		skip = []string{"/health"}
	}
	return otelgin.Middleware(cfg.ServiceName,
		otelgin.WithFilter(func(r *http.Request) bool {
			return !slices.Contains(skip, r.URL.Path)
		}),
	)
}

// SpanErrorMarker sets the span status to error, described by the status
// text, for 4xx and 5xx responses. It must run inside TracingWithConfig.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		if span := trace.SpanFromContext(c.Request.Context()); span.IsRecording() {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// TracingAttributeInjector tags the request span with request_id, operator
// and the :id path parameter. It must run after RequestID and authentication.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			span.SetAttributes(spanAttributes(c)...)
		}
		c.Next()
	}
}

func spanAttributes(c *gin.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for key, value := range map[string]string{
		"request_id":  spanRequestID(c),
		"operator":    GetOperator(c),
		"resource_id": c.Param("id"),
	} {
		if value != "" {
			attrs = append(attrs, attribute.String(key, value))
		}
	}
	return attrs
}

// spanRequestID prefers the id set by RequestID and falls back to the
// header, truncated to MaxRequestIDLength
func spanRequestID(c *gin.Context) string {
	if id := GetRequestID(c); id != "" {
		return id
	}
	id := c.GetHeader(RequestIDKey)
	if len(id) > MaxRequestIDLength {
		id = id[:MaxRequestIDLength]
	}
	return id
}
