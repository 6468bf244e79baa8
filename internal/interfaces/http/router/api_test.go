package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	syncapp "github.com/storesync/backend/internal/application/integration"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/infrastructure/auth"
	"github.com/storesync/backend/internal/infrastructure/config"
	"github.com/storesync/backend/internal/infrastructure/hostlimits"
	"github.com/storesync/backend/internal/interfaces/http/dto"
	"github.com/storesync/backend/internal/interfaces/http/handler"
	"github.com/storesync/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

type stubStats struct{}

func (stubStats) StoreStats(_ context.Context, id uuid.UUID) (*syncapp.StoreStats, error) {
	return &syncapp.StoreStats{StoreID: id}, nil
}

func (stubStats) GlobalOverview(context.Context) (*syncapp.GlobalOverview, error) {
	return &syncapp.GlobalOverview{Stores: 1}, nil
}

func (stubStats) TopProducts(context.Context, uuid.UUID, int) ([]integration.TopProduct, error) {
	return []integration.TopProduct{}, nil
}

type stubStores struct{}

func (stubStores) Create(_ context.Context, req syncapp.CreateStoreRequest) (*syncapp.StoreResponse, error) {
	return &syncapp.StoreResponse{ID: uuid.New(), Name: req.Name, BaseURL: req.BaseURL}, nil
}

func (stubStores) Get(_ context.Context, id uuid.UUID) (*syncapp.StoreResponse, error) {
	return &syncapp.StoreResponse{ID: id}, nil
}

func (stubStores) List(context.Context, syncapp.ListStoresQuery) ([]syncapp.StoreResponse, int64, error) {
	return []syncapp.StoreResponse{}, 0, nil
}

func (stubStores) Delete(context.Context, uuid.UUID) error { return nil }

func (stubStores) ListSyncRecords(context.Context, uuid.UUID, syncapp.ListSyncRecordsQuery) ([]syncapp.SyncRecordResponse, int64, error) {
	return []syncapp.SyncRecordResponse{}, 0, nil
}

func newAPI(t *testing.T, jwtService *auth.JWTService, limiter *middleware.RateLimiter) *gin.Engine {
	t.Helper()
	engine, err := NewEngine(Config{
		Logger:      zaptest.NewLogger(t),
		CORS:        middleware.DefaultCORSConfig(),
		Security:    middleware.DefaultSecurityConfig(),
		JWTService:  jwtService,
		RateLimiter: limiter,
	})
	require.NoError(t, err)

	RegisterAPI(engine, NewRouter(engine), Handlers{
		Store:  handler.NewStoreHandler(stubStores{}),
		Stats:  handler.NewStatsHandler(stubStats{}),
		System: handler.NewSystemHandler("test", hostlimits.Limits{}, nil),
		Health: handler.NewHealthHandler(okPinger{}),
	})
	return engine
}

func testJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:   "router-test-secret-0123456789abcdef",
		Issuer:   "storesync-test",
		TokenTTL: time.Hour,
	})
}

func call(t *testing.T, engine *gin.Engine, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func errorCodeOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error, w.Body.String())
	return resp.Error.Code
}

func TestAPI_ScopeEnforcement(t *testing.T) {
	svc := testJWTService()
	engine := newAPI(t, svc, nil)

	token := func(scopes ...string) string {
		tok, _, err := svc.GenerateToken("alice", scopes)
		require.NoError(t, err)
		return tok
	}
	storeID := uuid.NewString()

	tests := []struct {
		name       string
		method     string
		target     string
		token      string
		wantStatus int
		wantCode   string
	}{
		{name: "health needs no token", method: http.MethodGet, target: HealthPath, wantStatus: http.StatusOK},
		{name: "ping needs no token", method: http.MethodGet, target: "/api/v1/system/ping", wantStatus: http.StatusOK},
		{name: "missing token", method: http.MethodGet, target: "/api/v1/stores", wantStatus: http.StatusUnauthorized, wantCode: dto.ErrCodeTokenInvalid},
		{name: "garbage token", method: http.MethodGet, target: "/api/v1/stores", token: "abc", wantStatus: http.StatusUnauthorized, wantCode: dto.ErrCodeTokenInvalid},
		{name: "read scope lists stores", method: http.MethodGet, target: "/api/v1/stores", token: token(auth.ScopeSyncRead), wantStatus: http.StatusOK},
		{name: "read scope sees stats", method: http.MethodGet, target: "/api/v1/stores/" + storeID + "/stats", token: token(auth.ScopeSyncRead), wantStatus: http.StatusOK},
		{name: "overview", method: http.MethodGet, target: "/api/v1/stats/overview", token: token(auth.ScopeSyncRead), wantStatus: http.StatusOK},
		{name: "write scope cannot read", method: http.MethodGet, target: "/api/v1/stores", token: token(auth.ScopeSyncWrite), wantStatus: http.StatusForbidden, wantCode: dto.ErrCodeForbidden},
		{name: "read scope cannot delete", method: http.MethodDelete, target: "/api/v1/stores/" + storeID, token: token(auth.ScopeSyncRead), wantStatus: http.StatusForbidden, wantCode: dto.ErrCodeForbidden},
		{name: "admin deletes", method: http.MethodDelete, target: "/api/v1/stores/" + storeID, token: token(auth.ScopeStoreAdmin), wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(t, engine, tt.method, tt.target, tt.token)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDKey))
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCodeOf(t, w))
			}
		})
	}
}

func TestAPI_AuthDisabled(t *testing.T) {
	engine := newAPI(t, auth.NewJWTService(config.JWTConfig{}), nil)

	w := call(t, engine, http.MethodDelete, "/api/v1/stores/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = call(t, engine, http.MethodGet, "/api/v1/system/info", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestAPI_RateLimited(t *testing.T) {
	engine := newAPI(t, nil, middleware.NewRateLimiter(1, 2))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, call(t, engine, http.MethodGet, "/api/v1/stores", "").Code)
	}
	w := call(t, engine, http.MethodGet, "/api/v1/stores", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, dto.ErrCodeRateLimited, errorCodeOf(t, w))
}

func TestAPI_UnmountedHandlers(t *testing.T) {
	engine := newAPI(t, nil, nil)

	w := call(t, engine, http.MethodPost, "/api/v1/sync/batches", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterAPI_Routes(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)
	RegisterAPI(engine, r, Handlers{
		Batch:  handler.NewBatchHandler(nil),
		Store:  handler.NewStoreHandler(nil),
		Stats:  handler.NewStatsHandler(nil),
		Sales:  handler.NewSalesHandler(nil, time.Hour),
		System: handler.NewSystemHandler("", hostlimits.Limits{}, nil),
	})

	got := map[string]bool{}
	for _, route := range r.Routes() {
		got[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/sync/batches",
		"GET /api/v1/sync/batches/:id",
		"POST /api/v1/sync/batches/:id/pause",
		"POST /api/v1/sync/batches/:id/resume",
		"POST /api/v1/sync/batches/:id/stop",
		"POST /api/v1/sync/batches/:id/retry",
		"POST /api/v1/stores",
		"GET /api/v1/stores",
		"GET /api/v1/stores/:id",
		"DELETE /api/v1/stores/:id",
		"GET /api/v1/stores/:id/sync-records",
		"GET /api/v1/stores/:id/stats",
		"GET /api/v1/stores/:id/top-products",
		"POST /api/v1/stores/:id/sales/pull",
		"GET /api/v1/stats/overview",
		"GET /api/v1/system/info",
		"GET /api/v1/system/ping",
	} {
		assert.True(t, got[want], want)
	}

	registered := map[string]bool{}
	for _, info := range engine.Routes() {
		registered[info.Method+" "+info.Path] = true
	}
	assert.True(t, registered["POST /api/v1/stores/:id/sales/pull"])
}

func TestAPI_Swagger(t *testing.T) {
	newEngine := func(t *testing.T, svc *auth.JWTService, swagger middleware.SwaggerConfig) *gin.Engine {
		t.Helper()
		engine, err := NewEngine(Config{
			Logger:     zaptest.NewLogger(t),
			CORS:       middleware.DefaultCORSConfig(),
			Security:   middleware.DefaultSecurityConfig(),
			JWTService: svc,
			Swagger:    swagger,
		})
		require.NoError(t, err)
		return engine
	}

	t.Run("serves the document without a token", func(t *testing.T) {
		engine := newEngine(t, testJWTService(), middleware.SwaggerConfig{Enabled: true})

		w := call(t, engine, http.MethodGet, "/swagger/doc.json", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var doc struct {
			Info struct {
				Title string `json:"title"`
			} `json:"info"`
			BasePath string                    `json:"basePath"`
			Paths    map[string]map[string]any `json:"paths"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "Storesync API", doc.Info.Title)
		assert.Equal(t, "/api/v1", doc.BasePath)
		assert.Contains(t, doc.Paths["/sync/batches"], "post")
		assert.Contains(t, doc.Paths["/stores/{id}/sales/pull"], "post")
	})

	t.Run("disabled by default", func(t *testing.T) {
		engine := newEngine(t, testJWTService(), middleware.SwaggerConfig{})

		w := call(t, engine, http.MethodGet, "/swagger/doc.json", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, errorCodeOf(t, w))
	})

	t.Run("require auth checks the token", func(t *testing.T) {
		svc := testJWTService()
		engine := newEngine(t, svc, middleware.SwaggerConfig{Enabled: true, RequireAuth: true})

		w := call(t, engine, http.MethodGet, "/swagger/doc.json", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		tok, _, err := svc.GenerateToken("alice", nil)
		require.NoError(t, err)
		w = call(t, engine, http.MethodGet, "/swagger/doc.json", tok)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
