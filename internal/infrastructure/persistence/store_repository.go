package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/shared"
	"github.com/storesync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormStoreRepository implements StoreRepository using GORM.
// Consumer credentials are sealed with the cipher before they are written.
type GormStoreRepository struct {
	db     *gorm.DB
	cipher *SecretCipher
}

// NewGormStoreRepository creates a new GormStoreRepository. A nil cipher
// stores credentials as given.
func NewGormStoreRepository(db *gorm.DB, cipher *SecretCipher) *GormStoreRepository {
	return &GormStoreRepository{db: db, cipher: cipher}
}

// ---------------------------------------------------------------------------
// StoreReader implementation
// ---------------------------------------------------------------------------

// FindByID finds a store by its ID
func (r *GormStoreRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.StoreProfile, error) {
	var model models.StoreModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrStoreNotFound
		}
		return nil, err
	}
	return r.toDomain(&model)
}

// FindByIDs finds the stores with the given IDs; unknown IDs are skipped
func (r *GormStoreRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]integration.StoreProfile, error) {
	if len(ids) == 0 {
		return []integration.StoreProfile{}, nil
	}
	var storeModels []models.StoreModel
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("name ASC").
		Find(&storeModels).Error; err != nil {
		return nil, err
	}
	return r.toDomainList(storeModels)
}

// FindActive returns every active store
func (r *GormStoreRepository) FindActive(ctx context.Context) ([]integration.StoreProfile, error) {
	var storeModels []models.StoreModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", integration.StoreStatusActive).
		Order("name ASC").
		Find(&storeModels).Error; err != nil {
		return nil, err
	}
	return r.toDomainList(storeModels)
}

// FindAll returns a page of stores. Supported filters are "status" and
// "search" (case-insensitive name or URL match).
func (r *GormStoreRepository) FindAll(ctx context.Context, filter shared.Filter) ([]integration.StoreProfile, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.StoreModel{}).
		Scopes(storeFilterScope(filter)).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var storeModels []models.StoreModel
	if err := r.db.WithContext(ctx).
		Scopes(storeFilterScope(filter), paginateScope(filter)).
		Order(storeSort.orderBy(filter.OrderBy, filter.OrderDir)).
		Find(&storeModels).Error; err != nil {
		return nil, 0, err
	}

	stores, err := r.toDomainList(storeModels)
	if err != nil {
		return nil, 0, err
	}
	return stores, total, nil
}

// ---------------------------------------------------------------------------
// StoreWriter implementation
// ---------------------------------------------------------------------------

// Save creates or updates a store
func (r *GormStoreRepository) Save(ctx context.Context, store *integration.StoreProfile) error {
	now := time.Now()
	if store.ID == uuid.Nil {
		store.ID = uuid.New()
	}
	if store.CreatedAt.IsZero() {
		store.CreatedAt = now
	}
	store.UpdatedAt = now

	model := models.StoreModelFromDomain(store)
	var err error
	if model.ConsumerKey, err = r.cipher.Seal(store.ConsumerKey); err != nil {
		return err
	}
	if model.ConsumerSecret, err = r.cipher.Seal(store.ConsumerSecret); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}

// UpdateLastSyncAt stamps the store's last successful sync time
func (r *GormStoreRepository) UpdateLastSyncAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.StoreModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_sync_at": at,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrStoreNotFound
	}
	return nil
}

// Delete removes the store together with its sync records, sales records
// and sales line receipts
func (r *GormStoreRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, owned := range []any{
			&models.SyncRecordModel{},
			&models.SalesRecordModel{},
			&models.SalesLineReceiptModel{},
		} {
			if err := tx.Where("store_id = ?", id).Delete(owned).Error; err != nil {
				return err
			}
		}

		result := tx.Delete(&models.StoreModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return integration.ErrStoreNotFound
		}
		return nil
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (r *GormStoreRepository) toDomain(model *models.StoreModel) (*integration.StoreProfile, error) {
	store := model.ToDomain()
	var err error
	if store.ConsumerKey, err = r.cipher.Open(model.ConsumerKey); err != nil {
		return nil, fmt.Errorf("store %s consumer key: %w", model.ID, err)
	}
	if store.ConsumerSecret, err = r.cipher.Open(model.ConsumerSecret); err != nil {
		return nil, fmt.Errorf("store %s consumer secret: %w", model.ID, err)
	}
	return store, nil
}

func (r *GormStoreRepository) toDomainList(storeModels []models.StoreModel) ([]integration.StoreProfile, error) {
	stores := make([]integration.StoreProfile, 0, len(storeModels))
	for i := range storeModels {
		store, err := r.toDomain(&storeModels[i])
		if err != nil {
			return nil, err
		}
		stores = append(stores, *store)
	}
	return stores, nil
}

func storeFilterScope(filter shared.Filter) func(*gorm.DB) *gorm.DB {
	return func(query *gorm.DB) *gorm.DB {
		if status, ok := filter.Filters["status"].(string); ok && status != "" {
			query = query.Where("status = ?", status)
		}
		if search, ok := filter.Filters["search"].(string); ok && strings.TrimSpace(search) != "" {
			like := "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
			query = query.Where("LOWER(name) LIKE ? OR LOWER(base_url) LIKE ?", like, like)
		}
		return query
	}
}

// paginateScope applies the filter's page window; a zero page size returns every row
func paginateScope(filter shared.Filter) func(*gorm.DB) *gorm.DB {
	return func(query *gorm.DB) *gorm.DB {
		if filter.PageSize > 0 {
			query = query.Limit(filter.PageSize).Offset(filter.Offset())
		}
		return query
	}
}

var _ integration.StoreRepository = (*GormStoreRepository)(nil)
