package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// receiptBatchSize is the insert batch size for line receipts
const receiptBatchSize = 200

// GormSalesRepository implements SalesRepository using GORM
type GormSalesRepository struct {
	db *gorm.DB
}

// NewGormSalesRepository creates a new GormSalesRepository
func NewGormSalesRepository(db *gorm.DB) *GormSalesRepository {
	return &GormSalesRepository{db: db}
}

// UpsertAggregate inserts the record or adds its quantity and value to the
// existing (store, sku, period) row. The later sale date is kept.
func (r *GormSalesRepository) UpsertAggregate(ctx context.Context, record integration.SalesRecord) error {
	return upsertAggregate(r.db.WithContext(ctx), record)
}

// UnseenLines returns the line keys with no receipt for the store, in input
// order and without repeats
func (r *GormSalesRepository) UnseenLines(ctx context.Context, storeID uuid.UUID, lineKeys []string) ([]string, error) {
	if len(lineKeys) == 0 {
		return []string{}, nil
	}

	seen := make(map[string]struct{}, len(lineKeys))
	for _, part := range chunked(lineKeys, inClauseChunk) {
		var keys []string
		if err := r.db.WithContext(ctx).
			Model(&models.SalesLineReceiptModel{}).
			Where("store_id = ? AND line_key IN ?", storeID, part).
			Pluck("line_key", &keys).Error; err != nil {
			return nil, err
		}
		for _, key := range keys {
			seen[key] = struct{}{}
		}
	}

	unseen := make([]string, 0, len(lineKeys))
	for _, key := range lineKeys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unseen = append(unseen, key)
	}
	return unseen, nil
}

// ApplyPull records the line receipts and upserts the aggregates atomically.
// A line already received fails the whole pull.
func (r *GormSalesRepository) ApplyPull(ctx context.Context, storeID uuid.UUID, lineKeys []string, records []integration.SalesRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(lineKeys) > 0 {
			now := time.Now()
			receipts := make([]models.SalesLineReceiptModel, len(lineKeys))
			for i, key := range lineKeys {
				receipts[i] = models.SalesLineReceiptModel{StoreID: storeID, LineKey: key, IngestedAt: now}
			}
			if err := tx.CreateInBatches(receipts, receiptBatchSize).Error; err != nil {
				return err
			}
		}

		for _, record := range records {
			record.StoreID = storeID
			if err := upsertAggregate(tx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

// Totals sums quantity and value for one store, or every store when storeID is nil
func (r *GormSalesRepository) Totals(ctx context.Context, storeID *uuid.UUID) (integration.SalesTotals, error) {
	var row struct {
		Quantity   int64
		TotalValue decimal.Decimal
	}

	query := r.db.WithContext(ctx).
		Model(&models.SalesRecordModel{}).
		Select("COALESCE(SUM(quantity), 0) AS quantity, COALESCE(SUM(total_value), 0) AS total_value")
	if storeID != nil {
		query = query.Where("store_id = ?", *storeID)
	}
	if err := query.Scan(&row).Error; err != nil {
		return integration.SalesTotals{}, err
	}
	return integration.SalesTotals{Quantity: row.Quantity, TotalValue: row.TotalValue}, nil
}

// TopProducts returns the store's best sellers by quantity across all periods
func (r *GormSalesRepository) TopProducts(ctx context.Context, storeID uuid.UUID, limit int) ([]integration.TopProduct, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []integration.TopProduct
	if err := r.db.WithContext(ctx).
		Model(&models.SalesRecordModel{}).
		Select("sku, MAX(source_item_id) AS source_item_id, SUM(quantity) AS quantity, SUM(total_value) AS total_value").
		Where("store_id = ?", storeID).
		Group("sku").
		Order("SUM(quantity) DESC, sku ASC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []integration.TopProduct{}
	}
	return rows, nil
}

// FindByStore lists the store's aggregates, narrowed to one period when
// periodKey is set
func (r *GormSalesRepository) FindByStore(ctx context.Context, storeID uuid.UUID, periodKey string) ([]integration.SalesRecord, error) {
	query := r.db.WithContext(ctx).Where("store_id = ?", storeID)
	if periodKey != "" {
		query = query.Where("period_key = ?", periodKey)
	}

	var recordModels []models.SalesRecordModel
	if err := query.Order("period_key ASC, sku ASC").Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make([]integration.SalesRecord, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	return records, nil
}

func upsertAggregate(db *gorm.DB, record integration.SalesRecord) error {
	now := time.Now()
	model := models.SalesRecordModelFromDomain(record)
	model.CreatedAt = now
	model.UpdatedAt = now

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "store_id"}, {Name: "sku"}, {Name: "period_key"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "quantity"}, Value: gorm.Expr("sales_records.quantity + excluded.quantity")},
			{Column: clause.Column{Name: "total_value"}, Value: gorm.Expr("sales_records.total_value + excluded.total_value")},
			{Column: clause.Column{Name: "sale_date"}, Value: gorm.Expr(
				"CASE WHEN excluded.sale_date > sales_records.sale_date THEN excluded.sale_date ELSE sales_records.sale_date END")},
			{Column: clause.Column{Name: "source_item_id"}, Value: gorm.Expr("excluded.source_item_id")},
			{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
		},
	}).Create(model).Error
}

var _ integration.SalesRepository = (*GormSalesRepository)(nil)
