package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Sync      SyncConfig
	Sales     SalesConfig
	Cache     CacheConfig
	Retention RetentionConfig
	Swagger   SwaggerConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name    string
	Env     string
	Port    string
	Version string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	SQLitePath      string // file path or ":memory:" when Driver is sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	SlowQueryMs     int // statements slower than this are logged at warn
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds operator API token settings
type JWTConfig struct {
	Secret   string // empty disables authentication
	Issuer   string
	TokenTTL time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	RateLimit        float64 // requests per second per client; 0 disables
	RateBurst        int
}

// SyncConfig holds batch engine settings
type SyncConfig struct {
	TimeBudget        time.Duration // wall time of one slice
	MemoryFraction    float64       // share of the memory limit a slice may use
	MemoryLimitBytes  int64         // 0 = detect from cgroup or runtime
	BatchSize         int           // 0 = derived from the memory limit
	ContinuationDelay time.Duration // gap between two slices of a job
	Workers           int           // concurrent slices
	LeaseTTL          time.Duration // 0 = time budget + 30s
	MaxRecentErrors   int
	DevMode           bool // allow loopback image hosts
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	RateLimit         float64 // requests per second per store
	RateBurst         int
	SecretKey         string // hex or raw 32-byte key for store secrets; empty stores plaintext
}

// SalesConfig holds sales pull settings
type SalesConfig struct {
	Enabled  bool
	Interval time.Duration
	Window   time.Duration
}

// CacheConfig holds aggregate cache TTLs
type CacheConfig struct {
	StoreStatsTTL time.Duration
	OverviewTTL   time.Duration
	ImageCheckTTL time.Duration
}

// RetentionConfig holds finished job retention settings
type RetentionConfig struct {
	Enabled     bool
	Window      time.Duration
	Interval    time.Duration
	S3Bucket    string // empty disables archiving
	S3Region    string
	S3Endpoint  string // custom endpoint for S3-compatible storage
	S3Prefix    string
	S3AccessKey string // empty uses the default AWS credential chain
	S3SecretKey string
	S3PathStyle bool // required by MinIO and most self-hosted stores
}

// SwaggerConfig holds the API documentation endpoint settings
type SwaggerConfig struct {
	Enabled     bool
	RequireAuth bool     // run the JWT check on /swagger requests
	AllowedIPs  []string // IPs or CIDRs; empty allows every client
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool // export zap logs through the OTLP log bridge
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only, disable in prod for security)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
	// Continuous profiling options
	ProfilingEnabled      bool
	ProfilingServer       string // Pyroscope server address (e.g., "http://pyroscope:4040")
	ProfilingAuthUser     string
	ProfilingAuthPassword string
	SpanProfiles          bool // attach span IDs to CPU profiles; requires tracing
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with STORESYNC_ prefix (e.g., STORESYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/storesync")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("STORESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			Port:    v.GetString("app.port"),
			Version: v.GetString("app.version"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			SlowQueryMs:     v.GetInt("database.slow_query_ms"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:   v.GetString("jwt.secret"),
			Issuer:   v.GetString("jwt.issuer"),
			TokenTTL: v.GetDuration("jwt.token_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			RateLimit:        v.GetFloat64("http.rate_limit"),
			RateBurst:        v.GetInt("http.rate_burst"),
		},
		Sync: SyncConfig{
			TimeBudget:        v.GetDuration("sync.time_budget"),
			MemoryFraction:    v.GetFloat64("sync.memory_fraction"),
			MemoryLimitBytes:  v.GetInt64("sync.memory_limit_bytes"),
			BatchSize:         v.GetInt("sync.batch_size"),
			ContinuationDelay: v.GetDuration("sync.continuation_delay"),
			Workers:           v.GetInt("sync.workers"),
			LeaseTTL:          v.GetDuration("sync.lease_ttl"),
			MaxRecentErrors:   v.GetInt("sync.max_recent_errors"),
			DevMode:           v.GetBool("sync.dev_mode"),
			ReadTimeout:       v.GetDuration("sync.read_timeout"),
			WriteTimeout:      v.GetDuration("sync.write_timeout"),
			RateLimit:         v.GetFloat64("sync.rate_limit"),
			RateBurst:         v.GetInt("sync.rate_burst"),
			SecretKey:         v.GetString("sync.secret_key"),
		},
		Sales: SalesConfig{
			Enabled:  v.GetBool("sales.enabled"),
			Interval: v.GetDuration("sales.interval"),
			Window:   v.GetDuration("sales.window"),
		},
		Cache: CacheConfig{
			StoreStatsTTL: v.GetDuration("cache.store_stats_ttl"),
			OverviewTTL:   v.GetDuration("cache.overview_ttl"),
			ImageCheckTTL: v.GetDuration("cache.image_check_ttl"),
		},
		Retention: RetentionConfig{
			Enabled:     v.GetBool("retention.enabled"),
			Window:      v.GetDuration("retention.window"),
			Interval:    v.GetDuration("retention.interval"),
			S3Bucket:    v.GetString("retention.s3_bucket"),
			S3Region:    v.GetString("retention.s3_region"),
			S3Endpoint:  v.GetString("retention.s3_endpoint"),
			S3Prefix:    v.GetString("retention.s3_prefix"),
			S3AccessKey: v.GetString("retention.s3_access_key"),
			S3SecretKey: v.GetString("retention.s3_secret_key"),
			S3PathStyle: v.GetBool("retention.s3_path_style"),
		},
		Swagger: SwaggerConfig{
			Enabled:     v.GetBool("swagger.enabled"),
			RequireAuth: v.GetBool("swagger.require_auth"),
			AllowedIPs:  v.GetStringSlice("swagger.allowed_ips"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),

			ProfilingEnabled:      v.GetBool("telemetry.profiling_enabled"),
			ProfilingServer:       v.GetString("telemetry.profiling_server"),
			ProfilingAuthUser:     v.GetString("telemetry.profiling_auth_user"),
			ProfilingAuthPassword: v.GetString("telemetry.profiling_auth_password"),
			SpanProfiles:          v.GetBool("telemetry.span_profiles"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "storesync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "storesync.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "storesync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.SlowQueryMs == 0 {
		cfg.Database.SlowQueryMs = 200
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "storesync"
	}
	if cfg.JWT.TokenTTL == 0 {
		cfg.JWT.TokenTTL = 12 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	// An empty CORSAllowOrigins list allows no cross-origin requests.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst == 0 {
		cfg.HTTP.RateBurst = int(cfg.HTTP.RateLimit) * 2
		if cfg.HTTP.RateBurst < 1 {
			cfg.HTTP.RateBurst = 1
		}
	}
	if cfg.Sync.TimeBudget == 0 {
		cfg.Sync.TimeBudget = 25 * time.Second
	}
	if cfg.Sync.MemoryFraction == 0 {
		cfg.Sync.MemoryFraction = 0.8
	}
	if cfg.Sync.ContinuationDelay == 0 {
		cfg.Sync.ContinuationDelay = 2 * time.Second
	}
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 2
	}
	if cfg.Sync.LeaseTTL == 0 {
		cfg.Sync.LeaseTTL = cfg.Sync.TimeBudget + 30*time.Second
	}
	if cfg.Sync.MaxRecentErrors == 0 {
		cfg.Sync.MaxRecentErrors = 20
	}
	if cfg.Sync.ReadTimeout == 0 {
		cfg.Sync.ReadTimeout = 15 * time.Second
	}
	if cfg.Sync.WriteTimeout == 0 {
		cfg.Sync.WriteTimeout = 45 * time.Second
	}
	if cfg.Sync.RateLimit == 0 {
		cfg.Sync.RateLimit = 5
	}
	if cfg.Sync.RateBurst == 0 {
		cfg.Sync.RateBurst = 10
	}
	if cfg.Sales.Interval == 0 {
		cfg.Sales.Interval = time.Hour
	}
	if cfg.Sales.Window == 0 {
		cfg.Sales.Window = 24 * time.Hour
	}
	if cfg.Cache.StoreStatsTTL == 0 {
		cfg.Cache.StoreStatsTTL = 5 * time.Minute
	}
	if cfg.Cache.OverviewTTL == 0 {
		cfg.Cache.OverviewTTL = 15 * time.Minute
	}
	if cfg.Cache.ImageCheckTTL == 0 {
		cfg.Cache.ImageCheckTTL = 10 * time.Minute
	}
	if cfg.Retention.Window == 0 {
		cfg.Retention.Window = 30 * 24 * time.Hour
	}
	if cfg.Retention.Interval == 0 {
		cfg.Retention.Interval = 6 * time.Hour
	}
	if cfg.Retention.S3Region == "" {
		cfg.Retention.S3Region = "us-east-1"
	}
	if cfg.Retention.S3Prefix == "" {
		cfg.Retention.S3Prefix = "batch-jobs/"
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "storesync"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverSQLite {
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Sync.MemoryFraction <= 0 || c.Sync.MemoryFraction > 1 {
		return fmt.Errorf("sync.memory_fraction must be in (0, 1], got %f", c.Sync.MemoryFraction)
	}
	if c.Sync.BatchSize < 0 || c.Sync.BatchSize > 500 {
		return fmt.Errorf("sync.batch_size must be between 0 and 500, got %d", c.Sync.BatchSize)
	}
	if c.Sync.MemoryLimitBytes < 0 {
		return fmt.Errorf("sync.memory_limit_bytes cannot be negative")
	}
	if c.Sync.Workers < 0 {
		return fmt.Errorf("sync.workers cannot be negative")
	}
	if c.Sync.RateLimit < 0 || c.Sync.RateBurst < 0 {
		return fmt.Errorf("sync.rate_limit and sync.rate_burst cannot be negative")
	}
	if c.Sales.Window < c.Sales.Interval {
		return fmt.Errorf("sales.window (%s) must not be shorter than sales.interval (%s)", c.Sales.Window, c.Sales.Interval)
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Sync.SecretKey == "" {
			return fmt.Errorf("sync.secret_key is required in production")
		}
		if c.Sync.DevMode {
			return fmt.Errorf("sync.dev_mode must be false in production")
		}
		if c.Database.Driver == DriverPostgres {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Swagger.Enabled && !c.Swagger.RequireAuth && len(c.Swagger.AllowedIPs) == 0 {
			return fmt.Errorf("swagger endpoint must be disabled, require authentication, or have IP restriction in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingServer == "" {
		return fmt.Errorf("telemetry.profiling_server is required when profiling is enabled")
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
