package integration

import (
	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/shared"
)

// Aggregate type names carried on events
const (
	AggregateTypeBatchJob   = "BatchJob"
	AggregateTypeStore      = "StoreProfile"
	AggregateTypeSyncRecord = "SyncRecord"
)

// Event type constants
const (
	EventTypeJobStarted        = "JobStarted"
	EventTypeSliceCompleted    = "SliceCompleted"
	EventTypeJobCompleted      = "JobCompleted"
	EventTypeJobPaused         = "JobPaused"
	EventTypeJobResumed        = "JobResumed"
	EventTypeJobStopped        = "JobStopped"
	EventTypeJobFailed         = "JobFailed"
	EventTypeSyncRecordWritten = "SyncRecordWritten"
	EventTypeLedgerFlushed     = "LedgerFlushed"
	EventTypeSalesAggregated   = "SalesAggregated"
)

// JobEvent is published on batch job lifecycle changes
type JobEvent struct {
	shared.BaseDomainEvent
	JobID     uuid.UUID   `json:"job_id"`
	Status    JobStatus   `json:"status"`
	Cursor    int         `json:"cursor"`
	Total     int         `json:"total"`
	Counters  JobCounters `json:"counters"`
	Reason    string      `json:"reason,omitempty"`
	StoreIDs  []uuid.UUID `json:"store_ids"`
	SliceSize int         `json:"slice_size,omitempty"`
}

// NewJobEvent builds a job event of the given type from the job's current state
func NewJobEvent(eventType string, job *BatchJob, sliceSize int) *JobEvent {
	return &JobEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeBatchJob, job.ID),
		JobID:           job.ID,
		Status:          job.Status,
		Cursor:          job.Cursor,
		Total:           job.Total(),
		Counters:        job.Counters,
		Reason:          job.StatusReason,
		StoreIDs:        job.DestinationStoreIDs,
		SliceSize:       sliceSize,
	}
}

// SyncRecordWrittenEvent is published after every ledger write
type SyncRecordWrittenEvent struct {
	shared.BaseDomainEvent
	StoreID uuid.UUID        `json:"store_id"`
	SKU     string           `json:"sku"`
	Status  SyncRecordStatus `json:"status"`
	JobID   *uuid.UUID       `json:"job_id,omitempty"`
}

// NewSyncRecordWrittenEvent creates a SyncRecordWrittenEvent
func NewSyncRecordWrittenEvent(record *SyncRecord, jobID *uuid.UUID) *SyncRecordWrittenEvent {
	return &SyncRecordWrittenEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSyncRecordWritten, AggregateTypeSyncRecord, record.ID),
		StoreID:         record.StoreID,
		SKU:             record.SKU,
		Status:          record.Status,
		JobID:           jobID,
	}
}

// LedgerFlushedEvent is published once per slice, after its progress is
// saved, naming the stores whose ledger the slice wrote
type LedgerFlushedEvent struct {
	shared.BaseDomainEvent
	JobID    uuid.UUID   `json:"job_id"`
	StoreIDs []uuid.UUID `json:"store_ids"`
	Records  int         `json:"records"`
}

// NewLedgerFlushedEvent creates a LedgerFlushedEvent
func NewLedgerFlushedEvent(jobID uuid.UUID, storeIDs []uuid.UUID, records int) *LedgerFlushedEvent {
	return &LedgerFlushedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLedgerFlushed, AggregateTypeBatchJob, jobID),
		JobID:           jobID,
		StoreIDs:        storeIDs,
		Records:         records,
	}
}

// SalesAggregatedEvent is published after a sales pull wrote aggregates
type SalesAggregatedEvent struct {
	shared.BaseDomainEvent
	StoreID  uuid.UUID `json:"store_id"`
	Orders   int       `json:"orders"`
	Lines    int       `json:"lines"`
	Skipped  int       `json:"skipped"`
	Upserted int       `json:"upserted"`
}

// NewSalesAggregatedEvent creates a SalesAggregatedEvent
func NewSalesAggregatedEvent(storeID uuid.UUID, orders, lines, skipped, upserted int) *SalesAggregatedEvent {
	return &SalesAggregatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSalesAggregated, AggregateTypeStore, storeID),
		StoreID:         storeID,
		Orders:          orders,
		Lines:           lines,
		Skipped:         skipped,
		Upserted:        upserted,
	}
}

// StoreScoped is implemented by events that concern a single store.
type StoreScoped interface {
	AffectedStores() []uuid.UUID
}

// AffectedStores implements StoreScoped
func (e *SyncRecordWrittenEvent) AffectedStores() []uuid.UUID {
	return []uuid.UUID{e.StoreID}
}

// AffectedStores implements StoreScoped
func (e *LedgerFlushedEvent) AffectedStores() []uuid.UUID {
	return e.StoreIDs
}

// AffectedStores implements StoreScoped
func (e *SalesAggregatedEvent) AffectedStores() []uuid.UUID {
	return []uuid.UUID{e.StoreID}
}

// AffectedStores implements StoreScoped
func (e *JobEvent) AffectedStores() []uuid.UUID {
	return e.StoreIDs
}
