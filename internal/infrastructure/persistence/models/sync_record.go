package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/integration"
)

// SyncRecordModel is the persistence model for the SyncRecord ledger row.
// (store_id, sku) is unique.
type SyncRecordModel struct {
	ID                uuid.UUID                    `gorm:"type:uuid;primary_key"`
	StoreID           uuid.UUID                    `gorm:"type:uuid;not null;uniqueIndex:uq_sync_records_store_sku,priority:1;index:idx_sync_records_store_status,priority:1"`
	SKU               string                       `gorm:"column:sku;type:varchar(255);not null;uniqueIndex:uq_sync_records_store_sku,priority:2"`
	SourceItemID      int64                        `gorm:"not null;index"`
	DestinationItemID *string                      `gorm:"type:varchar(100)"`
	Status            integration.SyncRecordStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_sync_records_store_status,priority:2"`
	LastSyncedAt      *time.Time
	ErrorMessage      *string   `gorm:"type:text"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncRecordModel) TableName() string {
	return "sync_records"
}

// ToDomain converts the persistence model to a domain SyncRecord
func (m *SyncRecordModel) ToDomain() *integration.SyncRecord {
	return &integration.SyncRecord{
		ID:                m.ID,
		StoreID:           m.StoreID,
		SKU:               m.SKU,
		SourceItemID:      m.SourceItemID,
		DestinationItemID: m.DestinationItemID,
		Status:            m.Status,
		LastSyncedAt:      m.LastSyncedAt,
		ErrorMessage:      m.ErrorMessage,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
