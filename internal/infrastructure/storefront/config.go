package storefront

import (
	"errors"
	"time"
)

// Defaults for storefront clients
const (
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 45 * time.Second
	DefaultRateLimit    = 5.0
	DefaultRateBurst    = 10
	DefaultPageSize     = 100
	DefaultMaxPages     = 50

	// maxResponseSize is the maximum allowed response size from a storefront (10MB)
	maxResponseSize = 10 * 1024 * 1024
)

// Errors for storefront configuration
var (
	ErrConfigInvalidTimeout   = errors.New("storefront: timeouts must not be negative")
	ErrConfigInvalidRateLimit = errors.New("storefront: rate limit must not be negative")
	ErrStoreMissingBaseURL    = errors.New("storefront: store base URL is required")
)

// Config holds the settings shared by every storefront client
type Config struct {
	// ReadTimeout bounds lookups, probes and order reads
	ReadTimeout time.Duration
	// WriteTimeout bounds creates, updates and variation creation
	WriteTimeout time.Duration
	// RateLimit is the per-store request rate in requests per second
	RateLimit float64
	// RateBurst is the per-store burst size
	RateBurst int
	// PageSize is the per_page value of order listing
	PageSize int
	// MaxPages caps order paging
	MaxPages int
	// UserAgent is sent on every request when set
	UserAgent string
}

// DefaultConfig returns a Config with the default values
func DefaultConfig() Config {
	return Config{
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		RateLimit:    DefaultRateLimit,
		RateBurst:    DefaultRateBurst,
		PageSize:     DefaultPageSize,
		MaxPages:     DefaultMaxPages,
		UserAgent:    "storesync/1.0",
	}
}

// Validate validates the configuration and fills in zero values
func (c *Config) Validate() error {
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return ErrConfigInvalidTimeout
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return ErrConfigInvalidRateLimit
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateBurst == 0 {
		c.RateBurst = DefaultRateBurst
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	return nil
}
