package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/storesync/backend/internal/infrastructure/auth"
	"github.com/storesync/backend/internal/infrastructure/config"
	"github.com/storesync/backend/internal/infrastructure/logger"
	"github.com/storesync/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-chars"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:   testSecret,
		Issuer:   "storesync-test",
		TokenTTL: time.Hour,
	})
}

func signedToken(t *testing.T, claims auth.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func authRouter(svc *auth.JWTService, handlers ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), JWTAuthMiddleware(svc))
	chain := append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"operator":     GetOperator(c),
			"ctx_operator": logger.GetOperator(c.Request.Context()),
		})
	})
	router.GET("/api/v1/stores", chain...)
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	svc := newTestJWTService()
	token, _, err := svc.GenerateToken("alice", []string{auth.ScopeSyncRead})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	rec := httptest.NewRecorder()
	authRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body["operator"])
	assert.Equal(t, "alice", body["ctx_operator"])
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	svc := newTestJWTService()
	now := time.Now()

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{name: "missing header", header: "", wantCode: dto.ErrCodeTokenInvalid},
		{name: "wrong scheme", header: "Basic abc", wantCode: dto.ErrCodeTokenInvalid},
		{name: "empty bearer", header: BearerPrefix, wantCode: dto.ErrCodeTokenInvalid},
		{name: "garbage token", header: BearerPrefix + "not.a.token", wantCode: dto.ErrCodeTokenInvalid},
		{
			name: "expired token",
			header: BearerPrefix + signedToken(t, auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "alice",
				Issuer:    "storesync-test",
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
				IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			}}),
			wantCode: dto.ErrCodeTokenExpired,
		},
		{
			name: "no operator",
			header: BearerPrefix + signedToken(t, auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "storesync-test",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}}),
			wantCode: dto.ErrCodeTokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/stores", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			rec := httptest.NewRecorder()
			authRouter(svc).ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			errInfo := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, errInfo.Code)
			assert.NotEmpty(t, errInfo.RequestID)
		})
	}
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	rec := httptest.NewRecorder()
	authRouter(newTestJWTService()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuthMiddleware_SkipPrefixes(t *testing.T) {
	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(JWTMiddlewareConfig{
		JWTService:   newTestJWTService(),
		SkipPrefixes: []string{"/swagger/"},
	}))
	router.GET("/swagger/*any", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/stores", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stores", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuthMiddleware_DisabledWithoutSecret(t *testing.T) {
	svc := auth.NewJWTService(config.JWTConfig{})
	require.False(t, svc.Enabled())

	rec := httptest.NewRecorder()
	authRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stores", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router := gin.New()
	router.Use(JWTAuthMiddleware(nil))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireScope(t *testing.T) {
	svc := newTestJWTService()

	tests := []struct {
		name   string
		scopes []string
		want   int
	}{
		{name: "scope granted", scopes: []string{auth.ScopeSyncRead, auth.ScopeSyncWrite}, want: http.StatusOK},
		{name: "scope missing", scopes: []string{auth.ScopeSyncRead}, want: http.StatusForbidden},
		{name: "no scopes", scopes: nil, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := svc.GenerateToken("alice", tt.scopes)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/stores", nil)
			req.Header.Set(AuthHeaderKey, BearerPrefix+token)
			rec := httptest.NewRecorder()
			authRouter(svc, RequireScope(auth.ScopeSyncWrite)).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, dto.ErrCodeForbidden, decodeError(t, rec).Code)
			}
		})
	}

	t.Run("passes when auth is disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		authRouter(auth.NewJWTService(config.JWTConfig{}), RequireScope(auth.ScopeStoreAdmin)).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stores", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestGetJWTClaims(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetJWTClaims(c))

	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "bob"}}
	c.Set(JWTClaimsKey, claims)
	assert.Same(t, claims, GetJWTClaims(c))

	c.Set(JWTClaimsKey, "not claims")
	assert.Nil(t, GetJWTClaims(c))
}
