package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storesync/backend/internal/infrastructure/auth"
	"github.com/storesync/backend/internal/infrastructure/logger"
	"github.com/storesync/backend/internal/infrastructure/telemetry"
	"github.com/storesync/backend/internal/interfaces/http/handler"
	"github.com/storesync/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// HealthPath is served outside the versioned API and skips authentication
const HealthPath = "/health"

// Config holds the engine-wide middleware settings
type Config struct {
	Logger         *zap.Logger
	ServiceName    string
	TracingEnabled bool
	MeterProvider  *telemetry.MeterProvider
	CORS           middleware.CORSConfig
	Security       middleware.SecurityConfig
	MaxBodySize    int64
	RequestTimeout time.Duration
	TrustedProxies []string
	JWTService     *auth.JWTService
	// RateLimiter is optional; nil disables per-client limiting
	RateLimiter *middleware.RateLimiter
	Swagger     middleware.SwaggerConfig
}

// Handlers bundles the HTTP handlers of the API
type Handlers struct {
	Batch  *handler.BatchHandler
	Store  *handler.StoreHandler
	Stats  *handler.StatsHandler
	Sales  *handler.SalesHandler
	System *handler.SystemHandler
	Health *handler.HealthHandler
}

// NewEngine builds a gin engine with the full middleware chain
func NewEngine(cfg Config) (*gin.Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = middleware.DefaultTracingConfig().ServiceName
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(cfg.Logger),
		logger.Recovery(cfg.Logger),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.ServiceName,
			Enabled:     cfg.TracingEnabled,
		}),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: cfg.MeterProvider,
			ServiceName:   cfg.ServiceName,
			Enabled:       cfg.MeterProvider != nil,
		}),
		middleware.CORS(cfg.CORS),
		middleware.Secure(cfg.Security),
		middleware.BodyLimit(cfg.MaxBodySize),
		middleware.Timeout(cfg.RequestTimeout),
		middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
			JWTService:   cfg.JWTService,
			SkipPaths:    []string{HealthPath, "/api/v1/system/ping"},
			SkipPrefixes: []string{SwaggerPrefix},
			Logger:       cfg.Logger,
		}),
		middleware.TracingAttributeInjector(),
	)
	if cfg.RateLimiter != nil {
		engine.Use(middleware.RateLimit(cfg.RateLimiter))
	}

	registerSwagger(engine, cfg.Swagger, middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService: cfg.JWTService,
		Logger:     cfg.Logger,
	}))
	return engine, nil
}

// RegisterAPI adds the storesync domain groups to r and the health check to
// the engine. Reads need sync:read, job control and sales pulls need
// sync:write, and store registration or removal needs store:admin.
func RegisterAPI(engine *gin.Engine, r *Router, h Handlers) {
	read := middleware.RequireScope(auth.ScopeSyncRead)
	write := middleware.RequireScope(auth.ScopeSyncWrite)
	admin := middleware.RequireScope(auth.ScopeStoreAdmin)

	if h.Health != nil {
		engine.GET(HealthPath, h.Health.Check)
	}

	if h.Batch != nil {
		syncRoutes := NewDomainGroup("sync", "/sync")
		batches := syncRoutes.Group("batches", "/batches")
		batches.POST("", write, h.Batch.Start).
			GET("/:id", read, h.Batch.GetStatus).
			POST("/:id/pause", write, h.Batch.Pause).
			POST("/:id/resume", write, h.Batch.Resume).
			POST("/:id/stop", write, h.Batch.Stop).
			POST("/:id/retry", write, h.Batch.Retry)
		r.Register(syncRoutes)
	}

	storeRoutes := NewDomainGroup("stores", "/stores")
	if h.Store != nil {
		storeRoutes.POST("", admin, h.Store.Create).
			GET("", read, h.Store.List).
			GET("/:id", read, h.Store.GetByID).
			DELETE("/:id", admin, h.Store.Delete).
			GET("/:id/sync-records", read, h.Store.ListSyncRecords)
	}
	if h.Stats != nil {
		storeRoutes.GET("/:id/stats", read, h.Stats.StoreStats).
			GET("/:id/top-products", read, h.Stats.TopProducts)

		statsRoutes := NewDomainGroup("stats", "/stats")
		statsRoutes.GET("/overview", read, h.Stats.Overview)
		r.Register(statsRoutes)
	}
	if h.Sales != nil {
		storeRoutes.POST("/:id/sales/pull", write, h.Sales.Pull)
	}
	r.Register(storeRoutes)

	if h.System != nil {
		systemRoutes := NewDomainGroup("system", "/system")
		systemRoutes.GET("/info", read, h.System.GetSystemInfo).
			GET("/ping", h.System.Ping)
		r.Register(systemRoutes)
	}

	r.Setup()
}
