package integration

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storesync/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Batch commands
// ---------------------------------------------------------------------------

// BatchOptionsInput are the caller-facing job switches.
// UpdateStock defaults to true when omitted.
type BatchOptionsInput struct {
	IncludeVariations bool  `json:"include_variations"`
	IncludeImages     bool  `json:"include_images"`
	IncludeCategories bool  `json:"include_categories"`
	PreservePrices    bool  `json:"preserve_prices"`
	UpdateStock       *bool `json:"update_stock,omitempty"`
	BatchSize         int   `json:"batch_size" validate:"gte=0,lte=500"`
	Priority          int   `json:"priority" validate:"gte=0,lte=10"`
}

// ToJobOptions converts the input into domain options
func (in BatchOptionsInput) ToJobOptions() integration.JobOptions {
	updateStock := true
	if in.UpdateStock != nil {
		updateStock = *in.UpdateStock
	}
	return integration.JobOptions{
		IncludeVariations: in.IncludeVariations,
		IncludeImages:     in.IncludeImages,
		IncludeCategories: in.IncludeCategories,
		PreservePrices:    in.PreservePrices,
		UpdateStock:       updateStock,
		BatchSize:         in.BatchSize,
		Priority:          in.Priority,
	}
}

// StartBatchCommand requests a sync of work items to destination stores.
// With AllSyncable set and no ids, every syncable source item is used.
type StartBatchCommand struct {
	WorkItemIDs         []int64           `json:"work_item_ids" validate:"omitempty,dive,gt=0"`
	AllSyncable         bool              `json:"all_syncable"`
	DestinationStoreIDs []uuid.UUID       `json:"destination_store_ids" validate:"required,min=1"`
	Options             BatchOptionsInput `json:"options"`
}

// ---------------------------------------------------------------------------
// Batch responses
// ---------------------------------------------------------------------------

// StartBatchResponse is returned by StartBatch
type StartBatchResponse struct {
	JobID    uuid.UUID `json:"job_id"`
	Progress float64   `json:"progress"`
}

// JobErrorResponse is one recent error of a job
type JobErrorResponse struct {
	ItemID  int64      `json:"item_id"`
	StoreID *uuid.UUID `json:"store_id,omitempty"`
	SKU     string     `json:"sku,omitempty"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// BatchStatusResponse is returned by GetStatus
type BatchStatusResponse struct {
	JobID        uuid.UUID             `json:"job_id"`
	Status       integration.JobStatus `json:"status"`
	StatusReason string                `json:"status_reason,omitempty"`
	Progress     float64               `json:"progress"`
	Processed    int                   `json:"processed"`
	Total        int                   `json:"total"`
	Succeeded    int                   `json:"succeeded"`
	Failed       int                   `json:"failed"`
	RecentErrors []JobErrorResponse    `json:"recent_errors"`
	RetryOf      *uuid.UUID            `json:"retry_of,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
}

// ToBatchStatusResponse converts a job into its status view
func ToBatchStatusResponse(job *integration.BatchJob) *BatchStatusResponse {
	errs := make([]JobErrorResponse, 0, len(job.RecentErrors))
	for _, e := range job.RecentErrors {
		errs = append(errs, JobErrorResponse(e))
	}
	return &BatchStatusResponse{
		JobID:        job.ID,
		Status:       job.Status,
		StatusReason: job.StatusReason,
		Progress:     job.Progress(),
		Processed:    job.Counters.Processed,
		Total:        job.Total(),
		Succeeded:    job.Counters.Succeeded,
		Failed:       job.Counters.Failed,
		RecentErrors: errs,
		RetryOf:      job.RetryOf,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
		CompletedAt:  job.CompletedAt,
	}
}

// SliceOutcome describes one ExecuteSlice call
type SliceOutcome struct {
	JobID        uuid.UUID
	Status       integration.JobStatus
	Processed    int
	Cursor       int
	Total        int
	StoppedEarly bool
	// Skipped is true when the job was not processing and nothing ran
	Skipped bool
}

// ---------------------------------------------------------------------------
// Stores
// ---------------------------------------------------------------------------

// CreateStoreRequest registers a destination store
type CreateStoreRequest struct {
	Name           string `json:"name" validate:"required,max=200"`
	BaseURL        string `json:"base_url" validate:"required,url"`
	ConsumerKey    string `json:"consumer_key" validate:"required"`
	ConsumerSecret string `json:"consumer_secret" validate:"required"`
}

// StoreResponse is a store profile without credentials
type StoreResponse struct {
	ID         uuid.UUID               `json:"id"`
	Name       string                  `json:"name"`
	BaseURL    string                  `json:"base_url"`
	Status     integration.StoreStatus `json:"status"`
	LastSyncAt *time.Time              `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// ToStoreResponse converts a store profile
func ToStoreResponse(s *integration.StoreProfile) StoreResponse {
	return StoreResponse{
		ID:         s.ID,
		Name:       s.Name,
		BaseURL:    s.BaseURL,
		Status:     s.Status,
		LastSyncAt: s.LastSyncAt,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// ListStoresQuery filters and pages the store list
type ListStoresQuery struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
	Search   string
	Status   string `validate:"omitempty,oneof=active inactive"`
}

// ListSyncRecordsQuery filters and pages a store's ledger
type ListSyncRecordsQuery struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
	Status   string `validate:"omitempty,oneof=pending synced error"`
}

// SyncRecordResponse is a ledger row in API responses
type SyncRecordResponse struct {
	SKU               string                       `json:"sku"`
	SourceItemID      int64                        `json:"source_item_id"`
	DestinationItemID *string                      `json:"destination_item_id,omitempty"`
	Status            integration.SyncRecordStatus `json:"status"`
	LastSyncedAt      *time.Time                   `json:"last_synced_at,omitempty"`
	ErrorMessage      *string                      `json:"error_message,omitempty"`
	UpdatedAt         time.Time                    `json:"updated_at"`
}

// ToSyncRecordResponse converts a ledger row
func ToSyncRecordResponse(r *integration.SyncRecord) SyncRecordResponse {
	return SyncRecordResponse{
		SKU:               r.SKU,
		SourceItemID:      r.SourceItemID,
		DestinationItemID: r.DestinationItemID,
		Status:            r.Status,
		LastSyncedAt:      r.LastSyncedAt,
		ErrorMessage:      r.ErrorMessage,
		UpdatedAt:         r.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// StoreStats is the cached per-store summary
type StoreStats struct {
	StoreID     uuid.UUID                `json:"store_id"`
	Records     integration.StatusCounts `json:"records"`
	SalesQty    int64                    `json:"sales_quantity"`
	SalesValue  decimal.Decimal          `json:"sales_value"`
	LastSyncAt  *time.Time               `json:"last_sync_at,omitempty"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// GlobalOverview is the cached cross-store summary
type GlobalOverview struct {
	Stores       int                      `json:"stores"`
	ActiveStores int                      `json:"active_stores"`
	Records      integration.StatusCounts `json:"records"`
	SalesQty     int64                    `json:"sales_quantity"`
	SalesValue   decimal.Decimal          `json:"sales_value"`
	GeneratedAt  time.Time                `json:"generated_at"`
}

// PullResult summarizes one sales pull
type PullResult struct {
	StoreID  uuid.UUID `json:"store_id"`
	Orders   int       `json:"orders"`
	Lines    int       `json:"lines"`
	Skipped  int       `json:"skipped"`
	Seen     int       `json:"already_ingested"`
	Upserted int       `json:"upserted"`
}
