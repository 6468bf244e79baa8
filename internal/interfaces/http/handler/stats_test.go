package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	syncapp "github.com/storesync/backend/internal/application/integration"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupStatsTestRouter() (*gin.Engine, *MockStatsService) {
	svc := new(MockStatsService)
	h := NewStatsHandler(svc)

	router := gin.New()
	router.GET("/stores/:id/stats", h.StoreStats)
	router.GET("/stores/:id/top-products", h.TopProducts)
	router.GET("/stats/overview", h.Overview)
	return router, svc
}

func TestStatsHandler_StoreStats(t *testing.T) {
	router, svc := setupStatsTestRouter()
	id := uuid.New()
	svc.On("StoreStats", mock.Anything, id).Return(&syncapp.StoreStats{
		StoreID:     id,
		Records:     integration.StatusCounts{Synced: 8, Error: 2},
		SalesQty:    14,
		SalesValue:  decimal.RequireFromString("129.50"),
		GeneratedAt: time.Now(),
	}, nil)

	w := serve(router, http.MethodGet, "/stores/"+id.String()+"/stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp syncapp.StoreStats
	decodeData(t, w, &resp)
	assert.Equal(t, int64(8), resp.Records.Synced)
	assert.True(t, resp.SalesValue.Equal(decimal.RequireFromString("129.5")))
}

func TestStatsHandler_TopProducts(t *testing.T) {
	tests := []struct {
		name  string
		query string
		wantN int
	}{
		{name: "default", query: "", wantN: syncapp.DefaultTopProducts},
		{name: "explicit", query: "?n=3", wantN: 3},
		{name: "passes large values for clamping", query: "?n=1000", wantN: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, svc := setupStatsTestRouter()
			id := uuid.New()
			svc.On("TopProducts", mock.Anything, id, tt.wantN).Return([]integration.TopProduct{
				{SKU: "A", Quantity: 9, TotalValue: decimal.NewFromInt(90)},
			}, nil)

			w := serve(router, http.MethodGet, "/stores/"+id.String()+"/top-products"+tt.query, nil)

			require.Equal(t, http.StatusOK, w.Code)
			var resp []integration.TopProduct
			decodeData(t, w, &resp)
			require.Len(t, resp, 1)
			assert.Equal(t, "A", resp[0].SKU)
			svc.AssertExpectations(t)
		})
	}

	t.Run("non-integer n", func(t *testing.T) {
		router, svc := setupStatsTestRouter()
		w := serve(router, http.MethodGet, "/stores/"+uuid.NewString()+"/top-products?n=ten", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "TopProducts", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestStatsHandler_Overview(t *testing.T) {
	t.Run("returns the overview", func(t *testing.T) {
		router, svc := setupStatsTestRouter()
		svc.On("GlobalOverview", mock.Anything).Return(&syncapp.GlobalOverview{Stores: 3, ActiveStores: 2}, nil)

		w := serve(router, http.MethodGet, "/stats/overview", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var resp syncapp.GlobalOverview
		decodeData(t, w, &resp)
		assert.Equal(t, 3, resp.Stores)
		assert.Equal(t, 2, resp.ActiveStores)
	})

	t.Run("timeout", func(t *testing.T) {
		router, svc := setupStatsTestRouter()
		svc.On("GlobalOverview", mock.Anything).Return(nil, context.DeadlineExceeded)

		w := serve(router, http.MethodGet, "/stats/overview", nil)
		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
		assert.Equal(t, dto.ErrCodeTimeout, errorCode(t, w))
	})

	t.Run("store failure", func(t *testing.T) {
		router, svc := setupStatsTestRouter()
		svc.On("GlobalOverview", mock.Anything).Return(nil, errors.New("connection refused"))

		w := serve(router, http.MethodGet, "/stats/overview", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}
