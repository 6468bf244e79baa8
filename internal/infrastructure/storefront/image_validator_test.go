package storefront

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/storesync/backend/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
)

func newImageServer(t *testing.T, status int, contentType string) (string, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodHead, r.Method)
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
	})
	return srv.URL, &hits
}

func newValidatorCache(t *testing.T) *cache.InMemoryAggregateCache {
	t.Helper()
	c := cache.NewInMemoryAggregateCache(cache.WithCleanupInterval(time.Hour))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestImageValidator_RejectsInternalHostsOutsideDevMode(t *testing.T) {
	base, hits := newImageServer(t, http.StatusOK, "image/png")
	v := NewImageValidator(ImageValidatorConfig{}, newValidatorCache(t), nil, nil)

	assert.False(t, v.Valid(context.Background(), base+"/a.png"))
	assert.False(t, v.Valid(context.Background(), "http://localhost/a.png"))
	assert.False(t, v.Valid(context.Background(), "http://10.0.0.8/a.png"))
	assert.Equal(t, int32(0), hits.Load(), "internal hosts never see a request")
}

func TestImageValidator_CachesResults(t *testing.T) {
	ctx := context.Background()
	base, hits := newImageServer(t, http.StatusOK, "image/jpeg")
	aggCache := newValidatorCache(t)
	v := NewImageValidator(ImageValidatorConfig{DevMode: true}, aggCache, nil, nil)

	url := base + "/photo.jpg"
	assert.True(t, v.Valid(ctx, url))
	assert.True(t, v.Valid(ctx, url))
	assert.Equal(t, int32(1), hits.Load(), "second check is a cache hit")

	_, ok := aggCache.Get(ctx, cache.ImageCheckKey(url))
	assert.True(t, ok)
}

func TestImageValidator_Responses(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		want        bool
	}{
		{name: "image", status: http.StatusOK, contentType: "image/webp", want: true},
		{name: "no content type", status: http.StatusOK, want: true},
		{name: "html page", status: http.StatusOK, contentType: "text/html; charset=utf-8"},
		{name: "missing", status: http.StatusNotFound, contentType: "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			base, hits := newImageServer(t, tt.status, tt.contentType)
			v := NewImageValidator(ImageValidatorConfig{DevMode: true}, newValidatorCache(t), nil, nil)

			assert.Equal(t, tt.want, v.Valid(ctx, base+"/x"))
			assert.Equal(t, tt.want, v.Valid(ctx, base+"/x"), "negative results are cached too")
			assert.Equal(t, int32(1), hits.Load())
		})
	}
}

func TestImageValidator_MalformedURLs(t *testing.T) {
	v := NewImageValidator(ImageValidatorConfig{DevMode: true}, nil, nil, nil)
	for _, raw := range []string{"", "not a url", "/relative.png", "ftp://example.com/a.png", "http:///a.png"} {
		assert.False(t, v.Valid(context.Background(), raw), raw)
	}
}

func TestIsInternalHost(t *testing.T) {
	tests := map[string]bool{
		"localhost":       true,
		"api.localhost":   true,
		"127.0.0.1":       true,
		"::1":             true,
		"0.0.0.0":         true,
		"192.168.1.10":    true,
		"169.254.169.254": true,
		"cdn.example.com": false,
		"8.8.8.8":         false,
	}
	for host, want := range tests {
		assert.Equal(t, want, isInternalHost(host), host)
	}
}
