package persistence

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// inClauseChunk bounds the number of bind parameters of one IN list
const inClauseChunk = 500

// GormLedgerRepository implements LedgerRepository using GORM
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// ---------------------------------------------------------------------------
// LedgerReader implementation
// ---------------------------------------------------------------------------

// Get finds the record of sku on the store
func (r *GormLedgerRepository) Get(ctx context.Context, storeID uuid.UUID, sku string) (*integration.SyncRecord, error) {
	var model models.SyncRecordModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND sku = ?", storeID, sku).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrSyncRecordNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByStore returns a page of the store's records
func (r *GormLedgerRepository) ListByStore(ctx context.Context, storeID uuid.UUID, filter integration.LedgerFilter) ([]integration.SyncRecord, int64, error) {
	scope := func(query *gorm.DB) *gorm.DB {
		query = query.Where("store_id = ?", storeID)
		if filter.Status != nil {
			query = query.Where("status = ?", *filter.Status)
		}
		return query
	}

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.SyncRecordModel{}).
		Scopes(scope).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recordModels []models.SyncRecordModel
	if err := r.db.WithContext(ctx).
		Scopes(scope, paginateScope(filter.Filter)).
		Order(syncRecordSort.orderBy(filter.OrderBy, filter.OrderDir)).
		Find(&recordModels).Error; err != nil {
		return nil, 0, err
	}

	records := make([]integration.SyncRecord, len(recordModels))
	for i := range recordModels {
		records[i] = *recordModels[i].ToDomain()
	}
	return records, total, nil
}

// CountByStatus tallies records per status for one store, or for all stores
// when storeID is nil
func (r *GormLedgerRepository) CountByStatus(ctx context.Context, storeID *uuid.UUID) (integration.StatusCounts, error) {
	var rows []struct {
		Status integration.SyncRecordStatus
		Count  int64
	}

	query := r.db.WithContext(ctx).
		Model(&models.SyncRecordModel{}).
		Select("status, COUNT(*) AS count").
		Group("status")
	if storeID != nil {
		query = query.Where("store_id = ?", *storeID)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return integration.StatusCounts{}, err
	}

	var counts integration.StatusCounts
	for _, row := range rows {
		switch row.Status {
		case integration.SyncRecordStatusPending:
			counts.Pending = row.Count
		case integration.SyncRecordStatusSynced:
			counts.Synced = row.Count
		case integration.SyncRecordStatusError:
			counts.Error = row.Count
		}
	}
	return counts, nil
}

// FailedSourceItems returns the distinct source items with an error record on
// any of the stores, restricted to itemIDs when given, in ascending order
func (r *GormLedgerRepository) FailedSourceItems(ctx context.Context, storeIDs []uuid.UUID, itemIDs []int64) ([]int64, error) {
	if len(storeIDs) == 0 {
		return []int64{}, nil
	}

	query := func(ids []int64) ([]int64, error) {
		var out []int64
		q := r.db.WithContext(ctx).
			Model(&models.SyncRecordModel{}).
			Distinct("source_item_id").
			Where("status = ? AND store_id IN ?", integration.SyncRecordStatusError, storeIDs)
		if ids != nil {
			q = q.Where("source_item_id IN ?", ids)
		}
		err := q.Order("source_item_id ASC").Pluck("source_item_id", &out).Error
		return out, err
	}

	if len(itemIDs) == 0 {
		return query(nil)
	}

	seen := make(map[int64]struct{})
	failed := make([]int64, 0)
	for _, chunk := range chunked(itemIDs, inClauseChunk) {
		ids, err := query(chunk)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				failed = append(failed, id)
			}
		}
	}
	slices.Sort(failed)
	return failed, nil
}

// ---------------------------------------------------------------------------
// LedgerWriter implementation
// ---------------------------------------------------------------------------

// Upsert writes the (store, sku) record in a single statement. A nil
// destination id keeps the stored one.
func (r *GormLedgerRepository) Upsert(ctx context.Context, storeID uuid.UUID, sku string, in integration.UpsertInput) (*integration.SyncRecord, error) {
	if err := in.Validate(sku); err != nil {
		return nil, err
	}

	now := time.Now()
	var errMsg *string
	if in.Error != nil {
		msg := integration.TruncateMessage(*in.Error)
		errMsg = &msg
	}

	model := &models.SyncRecordModel{
		ID:                uuid.New(),
		StoreID:           storeID,
		SKU:               sku,
		SourceItemID:      in.SourceItemID,
		DestinationItemID: in.DestinationID,
		Status:            in.Status,
		LastSyncedAt:      &now,
		ErrorMessage:      errMsg,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	updates := clause.AssignmentColumns([]string{
		"source_item_id", "status", "error_message", "last_synced_at", "updated_at",
	})
	if in.DestinationID != nil {
		updates = append(updates, clause.AssignmentColumns([]string{"destination_item_id"})...)
	}

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_id"}, {Name: "sku"}},
			DoUpdates: updates,
		}).
		Create(model).Error; err != nil {
		return nil, err
	}

	return r.Get(ctx, storeID, sku)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func chunked[T any](values []T, size int) [][]T {
	chunks := make([][]T, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

var _ integration.LedgerRepository = (*GormLedgerRepository)(nil)
