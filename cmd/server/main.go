package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	syncapp "github.com/storesync/backend/internal/application/integration"
	"github.com/storesync/backend/internal/infrastructure/auth"
	"github.com/storesync/backend/internal/infrastructure/cache"
	"github.com/storesync/backend/internal/infrastructure/config"
	"github.com/storesync/backend/internal/infrastructure/event"
	"github.com/storesync/backend/internal/infrastructure/hostlimits"
	"github.com/storesync/backend/internal/infrastructure/logger"
	"github.com/storesync/backend/internal/infrastructure/persistence"
	"github.com/storesync/backend/internal/infrastructure/scheduler"
	"github.com/storesync/backend/internal/infrastructure/storage"
	"github.com/storesync/backend/internal/infrastructure/storefront"
	"github.com/storesync/backend/internal/infrastructure/telemetry"
	"github.com/storesync/backend/internal/interfaces/http/handler"
	"github.com/storesync/backend/internal/interfaces/http/middleware"
	"github.com/storesync/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

//	@title			Storesync API
//	@version		1.0
//	@description	Catalog sync engine pushing a source catalog to remote storefronts.

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// A missing .env file is fine; real deployments use the environment
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	serviceFields := logger.WithFields(
		zap.String("service", cfg.Telemetry.ServiceName),
		zap.String("env", cfg.App.Env),
	)

	// Bootstrap logger, replaced below once the log exporter is known
	log, err := logger.New(logCfg, serviceFields)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	if loggerProvider.IsEnabled() {
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: loggerProvider,
			Level:          logger.ParseLevel(cfg.Log.Level),
		})
		log, err = logger.New(logCfg, serviceFields, logger.WithCore(otelCore))
		if err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting storesync",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("port", cfg.App.Port),
	)

	// Tracing, metrics and profiling
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.ProfilingServer,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     cfg.Telemetry.ProfilingAuthUser,
		BasicAuthPassword: cfg.Telemetry.ProfilingAuthPassword,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if cfg.Telemetry.SpanProfiles && profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(time.Duration(cfg.Database.SlowQueryMs)*time.Millisecond),
	)
	dbOpts := []persistence.Option{persistence.WithLogger(gormLog)}
	if cfg.Database.Driver == config.DriverSQLite {
		dbOpts = append(dbOpts, persistence.WithAutoMigrate())
	}
	db, err := persistence.NewDatabase(&cfg.Database, dbOpts...)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully", zap.String("driver", db.Driver()))

	dbSystem := "postgresql"
	if db.Driver() == config.DriverSQLite {
		dbSystem = "sqlite"
	}
	if _, err := telemetry.InstrumentDB(db.DB, telemetry.DBInstrumentationConfig{
		TraceEnabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		MetricsEnabled:  meterProvider.IsEnabled(),
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        dbSystem,
	}, meterProvider.Meter("storesync.db"), log); err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}

	// Repositories
	cipher, err := persistence.NewSecretCipher(cfg.Sync.SecretKey)
	if err != nil {
		log.Fatal("Invalid store secret key", zap.Error(err))
	}
	if cipher == nil {
		log.Warn("sync.secret_key not set, store secrets are stored in plaintext")
	}
	storeRepo := persistence.NewGormStoreRepository(db.DB, cipher)
	jobRepo := persistence.NewGormJobRepository(db.DB)
	ledgerRepo := persistence.NewGormLedgerRepository(db.DB)
	salesRepo := persistence.NewGormSalesRepository(db.DB)
	sourceCatalog := persistence.NewGormSourceCatalog(db.DB)

	// Aggregate cache and job lease
	backend, err := cache.NewFactory(cfg.Redis, cfg.Cache, cache.WithLogger(log)).Create(ctx)
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Error("Error closing cache", zap.Error(err))
		}
	}()

	eventBus := event.NewInMemoryEventBus(log)

	// Storefront clients
	storefrontCfg := storefront.DefaultConfig()
	storefrontCfg.ReadTimeout = cfg.Sync.ReadTimeout
	storefrontCfg.WriteTimeout = cfg.Sync.WriteTimeout
	storefrontCfg.RateLimit = cfg.Sync.RateLimit
	storefrontCfg.RateBurst = cfg.Sync.RateBurst
	if cfg.App.Version != "" {
		storefrontCfg.UserAgent = "storesync/" + cfg.App.Version
	}
	clients, err := storefront.NewClientFactory(storefrontCfg, &http.Client{}, log)
	if err != nil {
		log.Fatal("Invalid storefront configuration", zap.Error(err))
	}
	images := storefront.NewImageValidator(storefront.ImageValidatorConfig{
		DevMode: cfg.Sync.DevMode,
		TTL:     cfg.Cache.ImageCheckTTL,
	}, backend.Cache, &http.Client{}, log)

	// Slice budget
	limits := hostlimits.NewDetector().Detect(uint64(cfg.Sync.MemoryLimitBytes), cfg.Sync.BatchSize)
	limits.Log(log)
	processMeter := hostlimits.NewProcessMeter(log)

	syncMeter := meterProvider.Meter(telemetry.SyncMetricsMeterName)
	syncMetrics, err := telemetry.NewSyncMetrics(syncMeter)
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}
	jobGauge, err := telemetry.ObserveJobs(syncMeter, func(ctx context.Context) (map[string]int64, error) {
		counts, err := jobRepo.CountByStatus(ctx)
		if err != nil {
			return nil, err
		}
		out := make(map[string]int64, len(counts))
		for status, n := range counts {
			out[status.String()] = n
		}
		return out, nil
	})
	if err != nil {
		log.Fatal("Failed to register job gauge", zap.Error(err))
	}
	defer func() {
		_ = jobGauge.Unregister()
	}()

	// Batch coordinator and its continuation scheduler. The scheduler calls
	// back into the coordinator, so the runner is bound after both exist.
	runner := &profiledSliceRunner{}
	continuation, err := scheduler.NewContinuationScheduler(scheduler.ContinuationConfig{
		Workers:      cfg.Sync.Workers,
		SliceTimeout: cfg.Sync.TimeBudget + cfg.Sync.WriteTimeout,
	}, runner, log)
	if err != nil {
		log.Fatal("Invalid continuation scheduler configuration", zap.Error(err))
	}

	coordinator := syncapp.NewBatchCoordinator(syncapp.CoordinatorDeps{
		Stores:    storeRepo,
		Jobs:      jobRepo,
		Ledger:    ledgerRepo,
		Source:    sourceCatalog,
		Clients:   clients,
		Images:    images,
		Lease:     backend.Lease,
		Scheduler: continuation,
		Events:    eventBus,
		Metrics:   syncMetrics,
		Meter:     processMeter,
		Logger:    log,
	}, syncapp.CoordinatorConfig{
		BatchSize: limits.BatchSize,
		Budget: syncapp.SliceBudget{
			TimeBudget:     cfg.Sync.TimeBudget,
			MemoryLimit:    limits.MemoryLimit,
			MemoryFraction: cfg.Sync.MemoryFraction,
		},
		ContinuationDelay: cfg.Sync.ContinuationDelay,
		LeaseTTL:          cfg.Sync.LeaseTTL,
		MaxRecentErrors:   cfg.Sync.MaxRecentErrors,
	})
	runner.coordinator = coordinator

	// Read models
	statsService := syncapp.NewStatsService(storeRepo, ledgerRepo, salesRepo, backend.Cache, syncapp.StatsTTLs{
		StoreStats: cfg.Cache.StoreStatsTTL,
		Overview:   cfg.Cache.OverviewTTL,
	}, log)
	storeService := syncapp.NewStoreService(storeRepo, ledgerRepo, clients, statsService, log)
	aggregator := syncapp.NewSalesAggregator(storeRepo, salesRepo, sourceCatalog, clients, eventBus, log).
		WithMetrics(syncMetrics)

	eventBus.Subscribe(syncapp.NewCacheInvalidationHandler(statsService, log))
	eventBus.Subscribe(event.NewJobLogHandler(log))
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Background workers
	if err := continuation.Start(ctx); err != nil {
		log.Fatal("Failed to start continuation scheduler", zap.Error(err))
	}
	recovered, err := coordinator.Recover(ctx)
	if err != nil {
		log.Error("Failed to recover processing jobs", zap.Error(err))
	} else if recovered > 0 {
		log.Info("Recovered processing jobs", zap.Int("jobs", recovered))
	}

	var salesTrigger *scheduler.SalesPullTrigger
	if cfg.Sales.Enabled {
		salesTrigger, err = scheduler.NewSalesPullTrigger(scheduler.SalesPullTriggerConfig{
			Interval: cfg.Sales.Interval,
			Window:   cfg.Sales.Window,
		}, profiledSalesPuller{aggregator}, log)
		if err != nil {
			log.Fatal("Invalid sales pull configuration", zap.Error(err))
		}
		if err := salesTrigger.Start(ctx); err != nil {
			log.Fatal("Failed to start sales pull trigger", zap.Error(err))
		}
	}

	var purger *scheduler.RetentionPurger
	if cfg.Retention.Enabled {
		var archiver scheduler.JobArchiver
		if cfg.Retention.S3Bucket != "" {
			s3Archiver, err := storage.NewS3JobArchiver(ctx, &cfg.Retention, storage.WithLogger(log))
			if err != nil {
				log.Fatal("Failed to create job archiver", zap.Error(err))
			}
			if err := s3Archiver.EnsureBucket(ctx); err != nil {
				log.Fatal("Job archive bucket unavailable", zap.Error(err))
			}
			archiver = s3Archiver
		}
		purger, err = scheduler.NewRetentionPurger(scheduler.RetentionConfig{
			Window:   cfg.Retention.Window,
			Interval: cfg.Retention.Interval,
		}, jobRepo, archiver, log)
		if err != nil {
			log.Fatal("Invalid retention configuration", zap.Error(err))
		}
		if err := purger.Start(ctx); err != nil {
			log.Fatal("Failed to start retention purger", zap.Error(err))
		}
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	jwtService := auth.NewJWTService(cfg.JWT)
	if !jwtService.Enabled() {
		log.Warn("jwt.secret not set, the API accepts unauthenticated requests")
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)
		go limiter.Run(ctx)
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders

	engine, err := router.NewEngine(router.Config{
		Logger:         log,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: tracerProvider.IsEnabled(),
		MeterProvider:  meterProvider,
		CORS:           corsCfg,
		Security:       middleware.DefaultSecurityConfig(),
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		RequestTimeout: cfg.HTTP.WriteTimeout,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		JWTService:     jwtService,
		RateLimiter:    limiter,
		Swagger: middleware.SwaggerConfig{
			Enabled:     cfg.Swagger.Enabled,
			RequireAuth: cfg.Swagger.RequireAuth,
			AllowedIPs:  cfg.Swagger.AllowedIPs,
		},
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	router.RegisterAPI(engine, r, router.Handlers{
		Batch:  handler.NewBatchHandler(coordinator),
		Store:  handler.NewStoreHandler(storeService),
		Stats:  handler.NewStatsHandler(statsService),
		Sales:  handler.NewSalesHandler(aggregator, cfg.Sales.Window),
		System: handler.NewSystemHandler(cfg.App.Version, limits, processMeter),
		Health: handler.NewHealthHandler(db),
	})
	for _, route := range r.Routes() {
		log.Debug("Route registered",
			zap.String("group", route.Group),
			zap.String("method", route.Method),
			zap.String("path", route.Path),
		)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serverErr:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if purger != nil {
		_ = purger.Stop(shutdownCtx)
	}
	if salesTrigger != nil {
		_ = salesTrigger.Stop(shutdownCtx)
	}
	// Slices still queued are picked up again by Recover on the next start
	_ = continuation.Stop(shutdownCtx)
	_ = eventBus.Stop(shutdownCtx)

	_ = profiler.Stop()
	_ = meterProvider.Shutdown(shutdownCtx)
	_ = tracerProvider.Shutdown(shutdownCtx)
	_ = loggerProvider.Shutdown(shutdownCtx)

	log.Info("Server exited gracefully")
}

// profiledSliceRunner runs coordinator slices under profiling labels
type profiledSliceRunner struct {
	coordinator *syncapp.BatchCoordinator
}

func (r *profiledSliceRunner) ExecuteSlice(ctx context.Context, jobID uuid.UUID) (out *syncapp.SliceOutcome, err error) {
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels(telemetry.OperationBatchSlice, nil), func(ctx context.Context) {
		out, err = r.coordinator.ExecuteSlice(ctx, jobID)
	})
	return out, err
}

// profiledSalesPuller runs scheduled sales pulls under profiling labels
type profiledSalesPuller struct {
	aggregator *syncapp.SalesAggregator
}

func (p profiledSalesPuller) PullAll(ctx context.Context, window time.Duration) (results []syncapp.PullResult, err error) {
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels(telemetry.OperationSalesPull, nil), func(ctx context.Context) {
		results, err = p.aggregator.PullAll(ctx, window)
	})
	return results, err
}
