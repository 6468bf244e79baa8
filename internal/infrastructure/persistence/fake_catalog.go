package persistence

import (
	"fmt"
	"strconv"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/storesync/backend/internal/domain/catalog"
)

// FakeCatalogConfig controls FakeCatalog
type FakeCatalogConfig struct {
	// Seed makes the output reproducible; 0 picks a random seed
	Seed uint64
	// Items is the number of top-level items
	Items int
	// VariableRatio is the share of variable items, between 0 and 1
	VariableRatio float64
	// NoSKURatio is the share of items left without a SKU
	NoSKURatio float64
	// FirstID is the id of the first generated item
	FirstID int64
}

// FakeCatalog generates a demo source catalog. Variation ids continue after
// the last item id.
func FakeCatalog(cfg FakeCatalogConfig) []catalog.CatalogItem {
	if cfg.FirstID == 0 {
		cfg.FirstID = 1
	}
	f := gofakeit.New(cfg.Seed)

	items := make([]catalog.CatalogItem, 0, cfg.Items)
	nextVariationID := cfg.FirstID + int64(cfg.Items)
	for i := 0; i < cfg.Items; i++ {
		id := cfg.FirstID + int64(i)
		item := catalog.CatalogItem{
			ID:               id,
			Name:             f.ProductName(),
			Type:             catalog.ItemTypeSimple,
			Description:      f.ProductDescription(),
			ShortDescription: f.ProductFeature(),
			Categories:       []string{f.ProductCategory()},
			Tags:             []string{f.Adjective(), f.Color()},
			StockStatus:      catalog.StockStatusInStock,
			ManageStock:      true,
			Images: []catalog.Image{
				{URL: fmt.Sprintf("https://images.example.com/items/%d.jpg", id), Alt: f.ProductName()},
			},
		}
		if f.Float64Range(0, 1) >= cfg.NoSKURatio {
			item.SKU = fmt.Sprintf("SKU-%s-%d", f.LetterN(3), id)
		}

		price := f.Price(5, 500)
		item.RegularPrice = strconv.FormatFloat(price, 'f', 2, 64)
		item.Price = item.RegularPrice
		if f.Bool() {
			item.SalePrice = strconv.FormatFloat(price*0.9, 'f', 2, 64)
			item.Price = item.SalePrice
		}
		stock := f.Number(0, 200)
		item.StockQuantity = &stock
		if stock == 0 {
			item.StockStatus = catalog.StockStatusOutOfStock
		}

		if f.Float64Range(0, 1) < cfg.VariableRatio {
			item.Type = catalog.ItemTypeVariable
			colors := []string{f.Color(), f.Color()}
			item.Attributes = []catalog.Attribute{{Name: "Color", Options: colors, Variation: true, Visible: true}}
			for j, color := range colors {
				qty := f.Number(0, 50)
				v := catalog.Variation{
					ID:            nextVariationID,
					ParentID:      id,
					RegularPrice:  item.RegularPrice,
					StockQuantity: &qty,
					StockStatus:   catalog.StockStatusInStock,
					ManageStock:   true,
					Attributes:    map[string]string{"Color": color},
				}
				if item.SKU != "" {
					v.SKU = fmt.Sprintf("%s-%d", item.SKU, j+1)
				}
				item.Variations = append(item.Variations, v)
				nextVariationID++
			}
		}
		items = append(items, item)
	}
	return items
}
