package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PeriodKeyLayout formats a sale date into its aggregation bucket
const PeriodKeyLayout = "2006-01"

// PeriodKey returns the YYYY-MM bucket for t, in UTC.
func PeriodKey(t time.Time) string {
	return t.UTC().Format(PeriodKeyLayout)
}

// SalesRecord is the monthly sales aggregate of one SKU on one store.
type SalesRecord struct {
	ID           uuid.UUID
	StoreID      uuid.UUID
	SourceItemID int64
	SKU          string
	Quantity     int64
	TotalValue   decimal.Decimal
	SaleDate     time.Time
	PeriodKey    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewSalesRecord builds a record whose period key is derived from saleDate.
func NewSalesRecord(storeID uuid.UUID, sourceItemID int64, sku string, qty int64, total decimal.Decimal, saleDate time.Time) SalesRecord {
	return SalesRecord{
		ID:           uuid.New(),
		StoreID:      storeID,
		SourceItemID: sourceItemID,
		SKU:          sku,
		Quantity:     qty,
		TotalValue:   total,
		SaleDate:     saleDate,
		PeriodKey:    PeriodKey(saleDate),
	}
}

// Merge adds another line's quantity and value into r. The latest sale date wins.
func (r *SalesRecord) Merge(qty int64, total decimal.Decimal, saleDate time.Time) {
	r.Quantity += qty
	r.TotalValue = r.TotalValue.Add(total)
	if saleDate.After(r.SaleDate) {
		r.SaleDate = saleDate
	}
}

// SalesTotals is a summed view over sales records.
type SalesTotals struct {
	Quantity   int64           `json:"quantity"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// TopProduct is one row of a top-N report.
type TopProduct struct {
	SKU          string          `json:"sku"`
	SourceItemID int64           `json:"source_item_id"`
	Quantity     int64           `json:"quantity"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// SalesRepository persists sales aggregates
type SalesRepository interface {
	// UpsertAggregate inserts the record, or adds its quantity and value to
	// the existing (store, sku, period) row.
	UpsertAggregate(ctx context.Context, record SalesRecord) error

	// UnseenLines returns the line keys not yet ingested for the store,
	// each at most once.
	UnseenLines(ctx context.Context, storeID uuid.UUID, lineKeys []string) ([]string, error)

	// ApplyPull records the line receipts and upserts every aggregate in a
	// single transaction.
	ApplyPull(ctx context.Context, storeID uuid.UUID, lineKeys []string, records []SalesRecord) error

	Totals(ctx context.Context, storeID *uuid.UUID) (SalesTotals, error)
	TopProducts(ctx context.Context, storeID uuid.UUID, limit int) ([]TopProduct, error)
	FindByStore(ctx context.Context, storeID uuid.UUID, periodKey string) ([]SalesRecord, error)
}
