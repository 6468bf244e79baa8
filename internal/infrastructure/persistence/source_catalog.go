package persistence

import (
	"context"
	"errors"

	"github.com/storesync/backend/internal/domain/catalog"
	"github.com/storesync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSourceCatalog reads the host platform's product tables.
// It never writes them.
type GormSourceCatalog struct {
	db *gorm.DB
}

// NewGormSourceCatalog creates a new GormSourceCatalog
func NewGormSourceCatalog(db *gorm.DB) *GormSourceCatalog {
	return &GormSourceCatalog{db: db}
}

// ListSyncableItems returns every item with a non-blank SKU, by id,
// with the variations of variable items attached
func (c *GormSourceCatalog) ListSyncableItems(ctx context.Context) ([]catalog.CatalogItem, error) {
	var itemModels []models.SourceItemModel
	if err := c.db.WithContext(ctx).
		Where("sku IS NOT NULL AND TRIM(sku) <> ''").
		Order("id ASC").
		Find(&itemModels).Error; err != nil {
		return nil, err
	}

	items := make([]catalog.CatalogItem, 0, len(itemModels))
	for i := range itemModels {
		item, err := itemModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := c.attachVariations(ctx, items); err != nil {
		return nil, err
	}
	return catalog.FilterSyncable(items), nil
}

// ResolveItemBySku finds the item carrying sku, or the parent of the
// variation carrying it
func (c *GormSourceCatalog) ResolveItemBySku(ctx context.Context, sku string) (*catalog.CatalogItem, bool, error) {
	sku = catalog.NormalizeSKU(sku)
	if sku == "" {
		return nil, false, nil
	}

	var itemModel models.SourceItemModel
	err := c.db.WithContext(ctx).Where("sku = ?", sku).Order("id ASC").First(&itemModel).Error
	if err == nil {
		item, err := c.GetItem(ctx, itemModel.ID)
		if err != nil {
			return nil, false, err
		}
		return item, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	var variationModel models.SourceVariationModel
	err = c.db.WithContext(ctx).Where("sku = ?", sku).Order("id ASC").First(&variationModel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	item, err := c.GetItem(ctx, variationModel.ParentID)
	if errors.Is(err, catalog.ErrItemNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// GetItem loads an item and its variations by id
func (c *GormSourceCatalog) GetItem(ctx context.Context, id int64) (*catalog.CatalogItem, error) {
	var itemModel models.SourceItemModel
	if err := c.db.WithContext(ctx).First(&itemModel, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrItemNotFound
		}
		return nil, err
	}

	item, err := itemModel.ToDomain()
	if err != nil {
		return nil, err
	}
	items := []catalog.CatalogItem{*item}
	if err := c.attachVariations(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// attachVariations loads the variations of the variable items in place
func (c *GormSourceCatalog) attachVariations(ctx context.Context, items []catalog.CatalogItem) error {
	index := make(map[int64]int)
	parentIDs := make([]int64, 0)
	for i := range items {
		if items[i].IsVariable() {
			index[items[i].ID] = i
			parentIDs = append(parentIDs, items[i].ID)
		}
	}

	for _, chunk := range chunked(parentIDs, inClauseChunk) {
		var variationModels []models.SourceVariationModel
		if err := c.db.WithContext(ctx).
			Where("parent_id IN ?", chunk).
			Order("parent_id ASC, id ASC").
			Find(&variationModels).Error; err != nil {
			return err
		}
		for i := range variationModels {
			v, err := variationModels[i].ToDomain()
			if err != nil {
				return err
			}
			pos := index[v.ParentID]
			items[pos].Variations = append(items[pos].Variations, v)
		}
	}
	return nil
}

// Seed writes items and their variations into the source tables. It backs
// fixtures and the demo dataset; the sync engine itself never calls it.
func (c *GormSourceCatalog) Seed(ctx context.Context, items []catalog.CatalogItem) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range items {
			itemModel, err := models.SourceItemModelFromDomain(&items[i])
			if err != nil {
				return err
			}
			if err := tx.Save(itemModel).Error; err != nil {
				return err
			}
			for _, v := range items[i].Variations {
				if v.ParentID == 0 {
					v.ParentID = items[i].ID
				}
				variationModel, err := models.SourceVariationModelFromDomain(v)
				if err != nil {
					return err
				}
				if err := tx.Save(variationModel).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

var _ catalog.SourceCatalog = (*GormSourceCatalog)(nil)
