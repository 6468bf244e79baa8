package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	syncapp "github.com/storesync/backend/internal/application/integration"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBatchService implements BatchService for testing
type MockBatchService struct {
	mock.Mock
}

func (m *MockBatchService) StartBatch(ctx context.Context, cmd syncapp.StartBatchCommand) (*syncapp.StartBatchResponse, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncapp.StartBatchResponse), args.Error(1)
}

func (m *MockBatchService) GetStatus(ctx context.Context, jobID uuid.UUID) (*syncapp.BatchStatusResponse, error) {
	return m.status(ctx, "GetStatus", jobID)
}

func (m *MockBatchService) Pause(ctx context.Context, jobID uuid.UUID) (*syncapp.BatchStatusResponse, error) {
	return m.status(ctx, "Pause", jobID)
}

func (m *MockBatchService) Resume(ctx context.Context, jobID uuid.UUID) (*syncapp.BatchStatusResponse, error) {
	return m.status(ctx, "Resume", jobID)
}

func (m *MockBatchService) Stop(ctx context.Context, jobID uuid.UUID) (*syncapp.BatchStatusResponse, error) {
	return m.status(ctx, "Stop", jobID)
}

func (m *MockBatchService) status(ctx context.Context, method string, jobID uuid.UUID) (*syncapp.BatchStatusResponse, error) {
	args := m.MethodCalled(method, ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncapp.BatchStatusResponse), args.Error(1)
}

func (m *MockBatchService) Retry(ctx context.Context, jobID uuid.UUID) (*syncapp.StartBatchResponse, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncapp.StartBatchResponse), args.Error(1)
}

// MockStoreService implements StoreService for testing
type MockStoreService struct {
	mock.Mock
}

func (m *MockStoreService) Create(ctx context.Context, req syncapp.CreateStoreRequest) (*syncapp.StoreResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncapp.StoreResponse), args.Error(1)
}

func (m *MockStoreService) Get(ctx context.Context, id uuid.UUID) (*syncapp.StoreResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncapp.StoreResponse), args.Error(1)
}

func (m *MockStoreService) List(ctx context.Context, q syncapp.ListStoresQuery) ([]syncapp.StoreResponse, int64, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]syncapp.StoreResponse), args.Get(1).(int64), args.Error(2)
}

func (m *MockStoreService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStoreService) ListSyncRecords(ctx context.Context, storeID uuid.UUID, q syncapp.ListSyncRecordsQuery) ([]syncapp.SyncRecordResponse, int64, error) {
	args := m.Called(ctx, storeID, q)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]syncapp.SyncRecordResponse), args.Get(1).(int64), args.Error(2)
}

// MockStatsService implements StatsService for testing
type MockStatsService struct {
	mock.Mock
}

func (m *MockStatsService) StoreStats(ctx context.Context, storeID uuid.UUID) (*syncapp.StoreStats, error) {
	args := m.Called(ctx, storeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncapp.StoreStats), args.Error(1)
}

func (m *MockStatsService) GlobalOverview(ctx context.Context) (*syncapp.GlobalOverview, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncapp.GlobalOverview), args.Error(1)
}

func (m *MockStatsService) TopProducts(ctx context.Context, storeID uuid.UUID, n int) ([]integration.TopProduct, error) {
	args := m.Called(ctx, storeID, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.TopProduct), args.Error(1)
}

// MockSalesPuller implements SalesPuller for testing
type MockSalesPuller struct {
	mock.Mock
}

func (m *MockSalesPuller) PullStore(ctx context.Context, storeID uuid.UUID, window time.Duration) (*syncapp.PullResult, error) {
	args := m.Called(ctx, storeID, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncapp.PullResult), args.Error(1)
}

var (
	_ BatchService = (*MockBatchService)(nil)
	_ StoreService = (*MockStoreService)(nil)
	_ StatsService = (*MockStatsService)(nil)
	_ SalesPuller  = (*MockSalesPuller)(nil)
)

// serve runs one request through a router and returns the recorder
func serve(router *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeData decodes the data field of a success envelope into out
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error, w.Body.String())
	return resp.Error.Code
}
