package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	syncapp "github.com/storesync/backend/internal/application/integration"
	"github.com/storesync/backend/internal/domain/integration"
)

// BatchService runs batch sync jobs
type BatchService interface {
	StartBatch(ctx context.Context, cmd syncapp.StartBatchCommand) (*syncapp.StartBatchResponse, error)
	GetStatus(ctx context.Context, jobID uuid.UUID) (*syncapp.BatchStatusResponse, error)
	Pause(ctx context.Context, jobID uuid.UUID) (*syncapp.BatchStatusResponse, error)
	Resume(ctx context.Context, jobID uuid.UUID) (*syncapp.BatchStatusResponse, error)
	Stop(ctx context.Context, jobID uuid.UUID) (*syncapp.BatchStatusResponse, error)
	Retry(ctx context.Context, jobID uuid.UUID) (*syncapp.StartBatchResponse, error)
}

// StoreService manages destination stores and their sync ledger
type StoreService interface {
	Create(ctx context.Context, req syncapp.CreateStoreRequest) (*syncapp.StoreResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*syncapp.StoreResponse, error)
	List(ctx context.Context, q syncapp.ListStoresQuery) ([]syncapp.StoreResponse, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListSyncRecords(ctx context.Context, storeID uuid.UUID, q syncapp.ListSyncRecordsQuery) ([]syncapp.SyncRecordResponse, int64, error)
}

// StatsService serves cached summaries
type StatsService interface {
	StoreStats(ctx context.Context, storeID uuid.UUID) (*syncapp.StoreStats, error)
	GlobalOverview(ctx context.Context) (*syncapp.GlobalOverview, error)
	TopProducts(ctx context.Context, storeID uuid.UUID, n int) ([]integration.TopProduct, error)
}

// SalesPuller pulls recent orders of one store
type SalesPuller interface {
	PullStore(ctx context.Context, storeID uuid.UUID, window time.Duration) (*syncapp.PullResult, error)
}

var (
	_ BatchService = (*syncapp.BatchCoordinator)(nil)
	_ StoreService = (*syncapp.StoreService)(nil)
	_ StatsService = (*syncapp.StatsService)(nil)
	_ SalesPuller  = (*syncapp.SalesAggregator)(nil)
)
