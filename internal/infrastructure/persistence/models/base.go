package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/shared"
)

// BaseModel holds the columns of shared.BaseEntity
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func baseModelOf(e shared.BaseEntity) BaseModel {
	return BaseModel{ID: e.ID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}
}

func (m BaseModel) entity() shared.BaseEntity {
	return shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

// All lists the tables AutoMigrate creates, parents before children
func All() []any {
	return []any{
		&StoreModel{},
		&SyncRecordModel{},
		&SalesRecordModel{},
		&SalesLineReceiptModel{},
		&BatchJobModel{},
		&SourceItemModel{},
		&SourceVariationModel{},
	}
}
