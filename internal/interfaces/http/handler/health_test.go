package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Check(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantHealth string
		wantDB     string
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantHealth: "healthy", wantDB: "ok"},
		{name: "database down", pingErr: errors.New("dial tcp: refused"), wantStatus: http.StatusServiceUnavailable, wantHealth: "unhealthy", wantDB: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hadDeadline bool
			h := NewHealthHandler(pingerFunc(func(ctx context.Context) error {
				_, hadDeadline = ctx.Deadline()
				return tt.pingErr
			}))
			router := gin.New()
			router.GET("/health", h.Check)

			w := serve(router, http.MethodGet, "/health", nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.True(t, hadDeadline)

			var resp struct {
				Success bool       `json:"success"`
				Data    HealthData `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.pingErr == nil, resp.Success)
			assert.Equal(t, tt.wantHealth, resp.Data.Status)
			assert.Equal(t, tt.wantDB, resp.Data.Database)
			assert.NotContains(t, w.Body.String(), "refused")
		})
	}
}
