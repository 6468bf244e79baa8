package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/integration"
)

// jobDocumentVersion is bumped when the archive layout changes
const jobDocumentVersion = 1

// jobDocument is the archived form of a batch job
type jobDocument struct {
	Version             int                     `json:"version"`
	ID                  uuid.UUID               `json:"id"`
	Status              integration.JobStatus   `json:"status"`
	StatusReason        string                  `json:"status_reason,omitempty"`
	WorkItemIDs         []int64                 `json:"work_item_ids"`
	DestinationStoreIDs []uuid.UUID             `json:"destination_store_ids"`
	Options             integration.JobOptions  `json:"options"`
	Cursor              int                     `json:"cursor"`
	Counters            integration.JobCounters `json:"counters"`
	RecentErrors        []integration.JobError  `json:"recent_errors"`
	Attempts            int                     `json:"attempts"`
	RetryOf             *uuid.UUID              `json:"retry_of,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
	CompletedAt         *time.Time              `json:"completed_at,omitempty"`
	ArchivedAt          time.Time               `json:"archived_at"`
}

func newJobDocument(job *integration.BatchJob) jobDocument {
	return jobDocument{
		Version:             jobDocumentVersion,
		ID:                  job.ID,
		Status:              job.Status,
		StatusReason:        job.StatusReason,
		WorkItemIDs:         job.WorkItemIDs,
		DestinationStoreIDs: job.DestinationStoreIDs,
		Options:             job.Options,
		Cursor:              job.Cursor,
		Counters:            job.Counters,
		RecentErrors:        job.RecentErrors,
		Attempts:            job.Attempts,
		RetryOf:             job.RetryOf,
		CreatedAt:           job.CreatedAt,
		UpdatedAt:           job.UpdatedAt,
		CompletedAt:         job.CompletedAt,
		ArchivedAt:          time.Now().UTC(),
	}
}

func (d jobDocument) toDomain() *integration.BatchJob {
	return &integration.BatchJob{
		ID:                  d.ID,
		WorkItemIDs:         d.WorkItemIDs,
		DestinationStoreIDs: d.DestinationStoreIDs,
		Options:             d.Options,
		Cursor:              d.Cursor,
		Counters:            d.Counters,
		RecentErrors:        d.RecentErrors,
		Status:              d.Status,
		StatusReason:        d.StatusReason,
		Attempts:            d.Attempts,
		RetryOf:             d.RetryOf,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
		CompletedAt:         d.CompletedAt,
	}
}
