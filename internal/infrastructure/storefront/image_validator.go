package storefront

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// Defaults for image validation
const (
	DefaultImageCheckTTL     = 10 * time.Minute
	DefaultImageCheckTimeout = 5 * time.Second
)

var (
	imageValid   = []byte("1")
	imageInvalid = []byte("0")
)

// ImageValidatorConfig holds image validation settings
type ImageValidatorConfig struct {
	// DevMode allows loopback and private hosts
	DevMode bool
	// TTL of cached results, positive and negative
	TTL time.Duration
	// Timeout of the HEAD request
	Timeout time.Duration
}

// ImageValidator checks image URLs with a HEAD request and caches the
// outcome in the aggregate cache.
type ImageValidator struct {
	config     ImageValidatorConfig
	cache      cache.AggregateCache
	httpClient *http.Client
	logger     *zap.Logger
}

// NewImageValidator creates a new ImageValidator
func NewImageValidator(config ImageValidatorConfig, aggCache cache.AggregateCache, httpClient *http.Client, logger *zap.Logger) *ImageValidator {
	if config.TTL <= 0 {
		config.TTL = DefaultImageCheckTTL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultImageCheckTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageValidator{
		config:     config,
		cache:      aggCache,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Valid reports whether rawURL points at a reachable image
func (v *ImageValidator) Valid(ctx context.Context, rawURL string) bool {
	u, ok := v.acceptableURL(rawURL)
	if !ok {
		return false
	}

	key := cache.ImageCheckKey(rawURL)
	if v.cache != nil {
		if data, hit := v.cache.Get(ctx, key); hit {
			return string(data) == string(imageValid)
		}
	}

	valid := v.check(ctx, u)

	if v.cache != nil {
		value := imageInvalid
		if valid {
			value = imageValid
		}
		if err := v.cache.Set(ctx, key, value, v.config.TTL); err != nil {
			v.logger.Warn("Failed to cache image check", zap.String("url", rawURL), zap.Error(err))
		}
	}
	return valid
}

// acceptableURL checks the URL shape and host without any network call
func (v *ImageValidator) acceptableURL(rawURL string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if !v.config.DevMode && isInternalHost(u.Hostname()) {
		return nil, false
	}
	return u, true
}

func (v *ImageValidator) check(ctx context.Context, u *url.URL) bool {
	ctx, cancel := context.WithTimeout(ctx, v.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return false
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Debug("Image check failed", zap.String("url", u.String()), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "image/") {
		return false
	}
	return true
}

// isInternalHost reports loopback, private, link-local and unspecified hosts
func isInternalHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

var _ integration.ImageValidator = (*ImageValidator)(nil)
