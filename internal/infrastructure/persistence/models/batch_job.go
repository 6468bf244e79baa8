package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/integration"
)

// BatchJobModel is the persistence model for the BatchJob aggregate.
// Work items, stores, options and recent errors are JSON text columns.
type BatchJobModel struct {
	ID               uuid.UUID             `gorm:"type:uuid;primary_key"`
	WorkItemsJSON    string                `gorm:"column:work_item_ids;type:text;not null"`
	StoresJSON       string                `gorm:"column:destination_store_ids;type:text;not null"`
	OptionsJSON      string                `gorm:"column:options;type:text;not null"`
	Cursor           int                   `gorm:"column:cursor_pos;not null;default:0"`
	Processed        int                   `gorm:"not null;default:0"`
	Succeeded        int                   `gorm:"not null;default:0"`
	Failed           int                   `gorm:"not null;default:0"`
	RecentErrorsJSON string                `gorm:"column:recent_errors;type:text;not null"`
	Status           integration.JobStatus `gorm:"type:varchar(20);not null;index:idx_batch_jobs_status_updated,priority:1"`
	StatusReason     string                `gorm:"type:text"`
	FencingToken     int64                 `gorm:"not null;default:0"`
	Attempts         int                   `gorm:"not null;default:0"`
	RetryOf          *uuid.UUID            `gorm:"type:uuid;index"`
	CreatedAt        time.Time             `gorm:"not null"`
	UpdatedAt        time.Time             `gorm:"not null;index:idx_batch_jobs_status_updated,priority:2"`
	CompletedAt      *time.Time
}

// TableName returns the table name for GORM
func (BatchJobModel) TableName() string {
	return "batch_jobs"
}

// BatchJobModelFromDomain creates a persistence model from a domain BatchJob
func BatchJobModelFromDomain(j *integration.BatchJob) (*BatchJobModel, error) {
	m := &BatchJobModel{
		ID:           j.ID,
		Cursor:       j.Cursor,
		Processed:    j.Counters.Processed,
		Succeeded:    j.Counters.Succeeded,
		Failed:       j.Counters.Failed,
		Status:       j.Status,
		StatusReason: j.StatusReason,
		FencingToken: j.FencingToken,
		Attempts:     j.Attempts,
		RetryOf:      j.RetryOf,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		CompletedAt:  j.CompletedAt,
	}

	var err error
	if m.WorkItemsJSON, err = marshalJSON(nonNil(j.WorkItemIDs)); err != nil {
		return nil, fmt.Errorf("work items: %w", err)
	}
	if m.StoresJSON, err = marshalJSON(nonNil(j.DestinationStoreIDs)); err != nil {
		return nil, fmt.Errorf("destination stores: %w", err)
	}
	if m.OptionsJSON, err = marshalJSON(j.Options); err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	if m.RecentErrorsJSON, err = MarshalRecentErrors(j.RecentErrors); err != nil {
		return nil, err
	}
	return m, nil
}

// ToDomain converts the persistence model to a domain BatchJob
func (m *BatchJobModel) ToDomain() (*integration.BatchJob, error) {
	job := &integration.BatchJob{
		ID:     m.ID,
		Cursor: m.Cursor,
		Counters: integration.JobCounters{
			Processed: m.Processed,
			Succeeded: m.Succeeded,
			Failed:    m.Failed,
		},
		Status:       m.Status,
		StatusReason: m.StatusReason,
		FencingToken: m.FencingToken,
		Attempts:     m.Attempts,
		RetryOf:      m.RetryOf,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		CompletedAt:  m.CompletedAt,
	}

	if err := unmarshalJSON(m.WorkItemsJSON, &job.WorkItemIDs); err != nil {
		return nil, fmt.Errorf("job %s work items: %w", m.ID, err)
	}
	if err := unmarshalJSON(m.StoresJSON, &job.DestinationStoreIDs); err != nil {
		return nil, fmt.Errorf("job %s destination stores: %w", m.ID, err)
	}
	if err := unmarshalJSON(m.OptionsJSON, &job.Options); err != nil {
		return nil, fmt.Errorf("job %s options: %w", m.ID, err)
	}
	if err := unmarshalJSON(m.RecentErrorsJSON, &job.RecentErrors); err != nil {
		return nil, fmt.Errorf("job %s recent errors: %w", m.ID, err)
	}
	return job, nil
}

// MarshalRecentErrors encodes the recent error list for the recent_errors column
func MarshalRecentErrors(errs []integration.JobError) (string, error) {
	s, err := marshalJSON(nonNil(errs))
	if err != nil {
		return "", fmt.Errorf("recent errors: %w", err)
	}
	return s, nil
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

// nonNil keeps empty lists encoded as [] rather than null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
