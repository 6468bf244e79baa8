package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storesync/backend/internal/domain/integration"
)

// SalesRecordModel is the persistence model for a monthly sales aggregate.
// (store_id, sku, period_key) is unique.
type SalesRecordModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key"`
	StoreID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_sales_records_store_sku_period,priority:1"`
	SKU          string          `gorm:"column:sku;type:varchar(255);not null;uniqueIndex:uq_sales_records_store_sku_period,priority:2"`
	PeriodKey    string          `gorm:"type:char(7);not null;uniqueIndex:uq_sales_records_store_sku_period,priority:3;index"`
	SourceItemID int64           `gorm:"not null"`
	Quantity     int64           `gorm:"not null;default:0"`
	TotalValue   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	SaleDate     time.Time       `gorm:"not null"`
	CreatedAt    time.Time       `gorm:"not null"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SalesRecordModel) TableName() string {
	return "sales_records"
}

// ToDomain converts the persistence model to a domain SalesRecord
func (m *SalesRecordModel) ToDomain() integration.SalesRecord {
	return integration.SalesRecord{
		ID:           m.ID,
		StoreID:      m.StoreID,
		SourceItemID: m.SourceItemID,
		SKU:          m.SKU,
		Quantity:     m.Quantity,
		TotalValue:   m.TotalValue,
		SaleDate:     m.SaleDate,
		PeriodKey:    m.PeriodKey,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// SalesRecordModelFromDomain creates a persistence model from a domain SalesRecord.
// The period key is recomputed from the sale date when empty.
func SalesRecordModelFromDomain(r integration.SalesRecord) *SalesRecordModel {
	id := r.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	period := r.PeriodKey
	if period == "" {
		period = integration.PeriodKey(r.SaleDate)
	}
	return &SalesRecordModel{
		ID:           id,
		StoreID:      r.StoreID,
		SKU:          r.SKU,
		PeriodKey:    period,
		SourceItemID: r.SourceItemID,
		Quantity:     r.Quantity,
		TotalValue:   r.TotalValue,
		SaleDate:     r.SaleDate.UTC(),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// SalesLineReceiptModel marks an order line as ingested for a store
type SalesLineReceiptModel struct {
	StoreID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	LineKey    string    `gorm:"type:varchar(64);primaryKey"`
	IngestedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SalesLineReceiptModel) TableName() string {
	return "sales_line_receipts"
}
