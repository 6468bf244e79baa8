package catalog

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ItemType is the shape of a source catalog item
type ItemType string

const (
	ItemTypeSimple   ItemType = "simple"
	ItemTypeVariable ItemType = "variable"
)

// IsValid checks if the item type is known
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeSimple, ItemTypeVariable:
		return true
	}
	return false
}

// String returns the string representation
func (t ItemType) String() string {
	return string(t)
}

// Stock status values as the storefronts spell them
const (
	StockStatusInStock     = "instock"
	StockStatusOutOfStock  = "outofstock"
	StockStatusOnBackorder = "onbackorder"
)

var (
	// ErrItemNotFound is returned when a source item does not exist
	ErrItemNotFound = errors.New("catalog: item not found")
	// ErrEmptySKU is returned when an item without a SKU is used as a sync key
	ErrEmptySKU = errors.New("catalog: item has no SKU")
)

// Attribute is a named product attribute with its option values.
type Attribute struct {
	Name      string   `json:"name"`
	Options   []string `json:"options"`
	Variation bool     `json:"variation"`
	Visible   bool     `json:"visible"`
}

// Image is a product image reference.
type Image struct {
	URL string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// Variation is one purchasable variant of a variable item.
// Prices are kept as their stored string form; empty means unset.
type Variation struct {
	ID            int64             `json:"id"`
	ParentID      int64             `json:"parent_id"`
	SKU           string            `json:"sku"`
	RegularPrice  string            `json:"regular_price"`
	SalePrice     string            `json:"sale_price"`
	StockQuantity *int              `json:"stock_quantity,omitempty"`
	StockStatus   string            `json:"stock_status"`
	ManageStock   bool              `json:"manage_stock"`
	Attributes    map[string]string `json:"attributes"`
	Image         *Image            `json:"image,omitempty"`
}

// CatalogItem is a product read from the source catalog.
type CatalogItem struct {
	ID               int64       `json:"id"`
	SKU              string      `json:"sku"`
	Name             string      `json:"name"`
	Type             ItemType    `json:"type"`
	RegularPrice     string      `json:"regular_price"`
	SalePrice        string      `json:"sale_price"`
	Price            string      `json:"price"`
	StockQuantity    *int        `json:"stock_quantity,omitempty"`
	StockStatus      string      `json:"stock_status"`
	ManageStock      bool        `json:"manage_stock"`
	Description      string      `json:"description"`
	ShortDescription string      `json:"short_description"`
	Categories       []string    `json:"categories"`
	Tags             []string    `json:"tags"`
	Attributes       []Attribute `json:"attributes"`
	Images           []Image     `json:"images"`
	Variations       []Variation `json:"variations"`
}

// IsVariable reports whether the item carries variations.
func (i *CatalogItem) IsVariable() bool {
	return i.Type == ItemTypeVariable
}

// NaturalKey returns the normalized SKU used to match the item remotely.
func (i *CatalogItem) NaturalKey() (string, error) {
	sku := NormalizeSKU(i.SKU)
	if sku == "" {
		return "", ErrEmptySKU
	}
	return sku, nil
}

// Syncable reports whether the item belongs to the sync universe.
func (i *CatalogItem) Syncable() bool {
	return NormalizeSKU(i.SKU) != ""
}

// NormalizeSKU trims surrounding whitespace and applies Unicode NFKC, so
// composed and decomposed accents or full-width letters compare equal.
func NormalizeSKU(sku string) string {
	return strings.TrimSpace(norm.NFKC.String(sku))
}

// FilterSyncable returns only the items with a non-empty SKU,
// preserving order.
func FilterSyncable(items []CatalogItem) []CatalogItem {
	out := make([]CatalogItem, 0, len(items))
	for _, item := range items {
		if item.Syncable() {
			out = append(out, item)
		}
	}
	return out
}
