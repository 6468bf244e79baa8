package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func reply(body string) gin.HandlerFunc {
	return func(c *gin.Context) { c.String(http.StatusOK, body) }
}

func serve(engine *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	assert.Equal(t, "/api/v1", NewRouter(gin.New()).BasePath())
	assert.Equal(t, "/api/v2", NewRouter(gin.New(), WithAPIVersion("v2")).BasePath())
}

func TestRouter_Setup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	stores := NewDomainGroup("stores", "/stores")
	stores.GET("", reply("list")).
		GET("/:id", reply("get")).
		DELETE("/:id", reply("delete"))

	syncRoutes := NewDomainGroup("sync", "/sync")
	syncRoutes.Group("batches", "/batches").
		POST("", reply("start")).
		POST("/:id/pause", reply("pause"))

	r.Register(stores).Register(syncRoutes).Setup()

	tests := []struct {
		method string
		target string
		body   string
	}{
		{http.MethodGet, "/api/v1/stores", "list"},
		{http.MethodGet, "/api/v1/stores/7", "get"},
		{http.MethodDelete, "/api/v1/stores/7", "delete"},
		{http.MethodPost, "/api/v1/sync/batches", "start"},
		{http.MethodPost, "/api/v1/sync/batches/9/pause", "pause"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := serve(engine, tt.method, tt.target)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.body, w.Body.String())
		})
	}

	t.Run("unregistered paths 404", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/stores").Code)
		assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/api/v1/sync/pause").Code)
	})
}

func TestDomainGroup_RouteMiddlewareRunsFirst(t *testing.T) {
	engine := gin.New()
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusForbidden) }

	g := NewDomainGroup("stores", "/stores")
	g.GET("", reply("open")).
		DELETE("/:id", deny, reply("removed"))
	g.RegisterRoutes(engine.Group("/api/v1"))

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/stores").Code)
	w := serve(engine, http.MethodDelete, "/api/v1/stores/1")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestRouter_Routes(t *testing.T) {
	r := NewRouter(gin.New())

	stores := NewDomainGroup("stores", "/stores")
	stores.GET("", reply("")).
		GET("/:id", reply(""))
	syncRoutes := NewDomainGroup("sync", "/sync")
	syncRoutes.Group("batches", "/batches").POST("/:id/pause", reply(""))

	r.Register(stores).Register(syncRoutes)

	assert.Equal(t, []RouteInfo{
		{Group: "stores", Method: http.MethodGet, Path: "/api/v1/stores"},
		{Group: "stores", Method: http.MethodGet, Path: "/api/v1/stores/:id"},
		{Group: "batches", Method: http.MethodPost, Path: "/api/v1/sync/batches/:id/pause"},
	}, r.Routes())
}
