package models

import (
	"fmt"
	"time"

	"github.com/storesync/backend/internal/domain/catalog"
	"gorm.io/gorm"
)

// SourceItemModel is a row of the host platform's product table.
// The sync engine only reads it.
type SourceItemModel struct {
	ID               int64            `gorm:"primaryKey;autoIncrement:false"`
	SKU              string           `gorm:"column:sku;type:varchar(255);index"`
	Name             string           `gorm:"type:varchar(500);not null"`
	Type             catalog.ItemType `gorm:"type:varchar(20);not null;default:'simple'"`
	RegularPrice     string           `gorm:"type:varchar(32)"`
	SalePrice        string           `gorm:"type:varchar(32)"`
	Price            string           `gorm:"type:varchar(32)"`
	StockQuantity    *int
	StockStatus      string `gorm:"type:varchar(20)"`
	ManageStock      bool   `gorm:"not null;default:false"`
	Description      string `gorm:"type:text"`
	ShortDescription string `gorm:"type:text"`
	CategoriesJSON   string `gorm:"column:categories;type:text"`
	TagsJSON         string `gorm:"column:tags;type:text"`
	AttributesJSON   string `gorm:"column:attributes;type:text"`
	ImagesJSON       string `gorm:"column:images;type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName returns the table name for GORM
func (SourceItemModel) TableName() string {
	return "source_items"
}

// ToDomain converts the row to a catalog item without variations
func (m *SourceItemModel) ToDomain() (*catalog.CatalogItem, error) {
	item := &catalog.CatalogItem{
		ID:               m.ID,
		SKU:              m.SKU,
		Name:             m.Name,
		Type:             m.Type,
		RegularPrice:     m.RegularPrice,
		SalePrice:        m.SalePrice,
		Price:            m.Price,
		StockQuantity:    m.StockQuantity,
		StockStatus:      m.StockStatus,
		ManageStock:      m.ManageStock,
		Description:      m.Description,
		ShortDescription: m.ShortDescription,
	}
	if err := unmarshalJSON(m.CategoriesJSON, &item.Categories); err != nil {
		return nil, fmt.Errorf("item %d categories: %w", m.ID, err)
	}
	if err := unmarshalJSON(m.TagsJSON, &item.Tags); err != nil {
		return nil, fmt.Errorf("item %d tags: %w", m.ID, err)
	}
	if err := unmarshalJSON(m.AttributesJSON, &item.Attributes); err != nil {
		return nil, fmt.Errorf("item %d attributes: %w", m.ID, err)
	}
	if err := unmarshalJSON(m.ImagesJSON, &item.Images); err != nil {
		return nil, fmt.Errorf("item %d images: %w", m.ID, err)
	}
	return item, nil
}

// BeforeSave stores the SKU normalized so lookups can use the sku index
func (m *SourceItemModel) BeforeSave(*gorm.DB) error {
	m.SKU = catalog.NormalizeSKU(m.SKU)
	return nil
}

// SourceItemModelFromDomain creates a row from a catalog item; used to seed
// the source tables.
func SourceItemModelFromDomain(item *catalog.CatalogItem) (*SourceItemModel, error) {
	m := &SourceItemModel{
		ID:               item.ID,
		SKU:              item.SKU,
		Name:             item.Name,
		Type:             item.Type,
		RegularPrice:     item.RegularPrice,
		SalePrice:        item.SalePrice,
		Price:            item.Price,
		StockQuantity:    item.StockQuantity,
		StockStatus:      item.StockStatus,
		ManageStock:      item.ManageStock,
		Description:      item.Description,
		ShortDescription: item.ShortDescription,
	}
	if m.Type == "" {
		m.Type = catalog.ItemTypeSimple
	}
	var err error
	if m.CategoriesJSON, err = marshalJSON(nonNil(item.Categories)); err != nil {
		return nil, err
	}
	if m.TagsJSON, err = marshalJSON(nonNil(item.Tags)); err != nil {
		return nil, err
	}
	if m.AttributesJSON, err = marshalJSON(nonNil(item.Attributes)); err != nil {
		return nil, err
	}
	if m.ImagesJSON, err = marshalJSON(nonNil(item.Images)); err != nil {
		return nil, err
	}
	return m, nil
}

// SourceVariationModel is a row of the host platform's variation table
type SourceVariationModel struct {
	ID             int64  `gorm:"primaryKey;autoIncrement:false"`
	ParentID       int64  `gorm:"not null;index"`
	SKU            string `gorm:"column:sku;type:varchar(255);index"`
	RegularPrice   string `gorm:"type:varchar(32)"`
	SalePrice      string `gorm:"type:varchar(32)"`
	StockQuantity  *int
	StockStatus    string `gorm:"type:varchar(20)"`
	ManageStock    bool   `gorm:"not null;default:false"`
	AttributesJSON string `gorm:"column:attributes;type:text"`
	ImageJSON      string `gorm:"column:image;type:text"`
}

// TableName returns the table name for GORM
func (SourceVariationModel) TableName() string {
	return "source_variations"
}

// ToDomain converts the row to a catalog variation
func (m *SourceVariationModel) ToDomain() (catalog.Variation, error) {
	v := catalog.Variation{
		ID:            m.ID,
		ParentID:      m.ParentID,
		SKU:           m.SKU,
		RegularPrice:  m.RegularPrice,
		SalePrice:     m.SalePrice,
		StockQuantity: m.StockQuantity,
		StockStatus:   m.StockStatus,
		ManageStock:   m.ManageStock,
	}
	if err := unmarshalJSON(m.AttributesJSON, &v.Attributes); err != nil {
		return v, fmt.Errorf("variation %d attributes: %w", m.ID, err)
	}
	if m.ImageJSON != "" && m.ImageJSON != "null" {
		v.Image = &catalog.Image{}
		if err := unmarshalJSON(m.ImageJSON, v.Image); err != nil {
			return v, fmt.Errorf("variation %d image: %w", m.ID, err)
		}
	}
	return v, nil
}

// BeforeSave stores the SKU normalized so lookups can use the sku index
func (m *SourceVariationModel) BeforeSave(*gorm.DB) error {
	m.SKU = catalog.NormalizeSKU(m.SKU)
	return nil
}

// SourceVariationModelFromDomain creates a row from a catalog variation
func SourceVariationModelFromDomain(v catalog.Variation) (*SourceVariationModel, error) {
	m := &SourceVariationModel{
		ID:            v.ID,
		ParentID:      v.ParentID,
		SKU:           v.SKU,
		RegularPrice:  v.RegularPrice,
		SalePrice:     v.SalePrice,
		StockQuantity: v.StockQuantity,
		StockStatus:   v.StockStatus,
		ManageStock:   v.ManageStock,
	}
	attrs := v.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	var err error
	if m.AttributesJSON, err = marshalJSON(attrs); err != nil {
		return nil, err
	}
	if v.Image != nil {
		if m.ImageJSON, err = marshalJSON(v.Image); err != nil {
			return nil, err
		}
	}
	return m, nil
}
