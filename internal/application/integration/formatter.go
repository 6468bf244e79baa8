package integration

import (
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/storesync/backend/internal/domain/catalog"
	"github.com/storesync/backend/internal/domain/integration"
)

// remoteProductStatus is the publish state given to every pushed product
const remoteProductStatus = "publish"

// priceDecimals is the precision prices are rendered with on the wire
const priceDecimals = 2

// ImageFilter decides whether an image URL may be included.
type ImageFilter func(rawURL string) bool

// FormatOptions controls which optional sections Format emits
type FormatOptions struct {
	IncludeVariations bool
	IncludeImages     bool
	// IncludeCategories emits categories and tags for simple items only
	IncludeCategories bool
	// ImageFilter validates image URLs. Nil accepts any absolute http(s) URL.
	ImageFilter ImageFilter
}

// FormatOptionsFromJob maps job options onto formatter options.
func FormatOptionsFromJob(opts integration.JobOptions, filter ImageFilter) FormatOptions {
	return FormatOptions{
		IncludeVariations: opts.IncludeVariations,
		IncludeImages:     opts.IncludeImages,
		IncludeCategories: opts.IncludeCategories,
		ImageFilter:       filter,
	}
}

// Format turns a source item into its transfer representation.
// It performs no I/O besides whatever opts.ImageFilter does.
func Format(item catalog.CatalogItem, opts FormatOptions) (integration.TransferItem, error) {
	sku, err := item.NaturalKey()
	if err != nil {
		return integration.TransferItem{}, integration.NewFormatError(item.ID, "missing SKU")
	}
	if strings.TrimSpace(item.Name) == "" {
		return integration.TransferItem{}, integration.NewFormatError(item.ID, "missing name")
	}
	if !item.Type.IsValid() {
		return integration.TransferItem{}, integration.NewFormatError(item.ID, "unsupported item type %q", item.Type)
	}

	out := integration.TransferItem{
		SourceID:         item.ID,
		Name:             item.Name,
		SKU:              sku,
		Type:             item.Type.String(),
		Description:      item.Description,
		ShortDescription: item.ShortDescription,
		Status:           remoteProductStatus,
		ManageStock:      item.ManageStock,
		StockStatus:      stockStatus(item.StockStatus),
		StockQuantity:    stockQuantity(item.ManageStock, item.StockQuantity),
		Attributes:       formatAttributes(item.Attributes),
	}

	if item.IsVariable() {
		price, err := resolveVariablePrice(item)
		if err != nil {
			return integration.TransferItem{}, err
		}
		out.Price = price
		out.RegularPrice = price.StringFixed(priceDecimals)
	} else {
		regular, sale, err := resolveSimplePrices(item.ID, item.RegularPrice, item.SalePrice, item.Price)
		if err != nil {
			return integration.TransferItem{}, err
		}
		out.RegularPrice = regular.StringFixed(priceDecimals)
		out.Price = regular
		if sale != nil {
			out.SalePrice = sale.StringFixed(priceDecimals)
			out.Price = *sale
		}
	}

	// Variations inherit the parent's taxonomy on the destination.
	if opts.IncludeCategories && !item.IsVariable() {
		out.Categories = terms(item.Categories)
		out.Tags = terms(item.Tags)
	}

	if opts.IncludeImages {
		out.Images = filterImages(item.Images, opts.ImageFilter)
	}

	if opts.IncludeVariations && item.IsVariable() {
		variations := make([]integration.TransferVariation, 0, len(item.Variations))
		for _, v := range item.Variations {
			tv, err := formatVariation(item.ID, v, opts)
			if err != nil {
				return integration.TransferItem{}, err
			}
			variations = append(variations, tv)
		}
		out.Variations = variations
	}

	return out, nil
}

func formatVariation(parentID int64, v catalog.Variation, opts FormatOptions) (integration.TransferVariation, error) {
	regular, sale, err := resolveSimplePrices(parentID, v.RegularPrice, v.SalePrice, "")
	if err != nil {
		return integration.TransferVariation{}, err
	}

	tv := integration.TransferVariation{
		SourceID:      v.ID,
		SKU:           catalog.NormalizeSKU(v.SKU),
		RegularPrice:  regular.StringFixed(priceDecimals),
		ManageStock:   v.ManageStock,
		StockStatus:   stockStatus(v.StockStatus),
		StockQuantity: stockQuantity(v.ManageStock, v.StockQuantity),
		Attributes:    variationAttributes(v.Attributes),
	}
	if sale != nil {
		tv.SalePrice = sale.StringFixed(priceDecimals)
	}
	if opts.IncludeImages && v.Image != nil && acceptImage(v.Image.URL, opts.ImageFilter) {
		tv.Image = &integration.TransferImage{Src: v.Image.URL, Alt: v.Image.Alt}
	}
	return tv, nil
}

// ---------------------------------------------------------------------------
// Price resolution
// ---------------------------------------------------------------------------

// resolveSimplePrices picks the regular price, falling back to the raw stored
// price and then zero. sale is nil when no sale price is set.
func resolveSimplePrices(itemID int64, regularRaw, saleRaw, fallbackRaw string) (decimal.Decimal, *decimal.Decimal, error) {
	regular, ok, err := parsePrice(itemID, regularRaw)
	if err != nil {
		return decimal.Zero, nil, err
	}
	if !ok {
		regular, ok, err = parsePrice(itemID, fallbackRaw)
		if err != nil {
			return decimal.Zero, nil, err
		}
		if !ok {
			regular = decimal.Zero
		}
	}

	sale, ok, err := parsePrice(itemID, saleRaw)
	if err != nil {
		return decimal.Zero, nil, err
	}
	if !ok {
		return regular, nil, nil
	}
	return regular, &sale, nil
}

// resolveVariablePrice is the minimum effective variation price, where a
// variation's sale price wins over its regular price. Without any priced
// variation it falls back to the item's own regular price, its raw price,
// and zero.
func resolveVariablePrice(item catalog.CatalogItem) (decimal.Decimal, error) {
	var (
		lowest decimal.Decimal
		found  bool
	)
	for _, v := range item.Variations {
		price, ok, err := parsePrice(item.ID, v.SalePrice)
		if err != nil {
			return decimal.Zero, err
		}
		if !ok {
			price, ok, err = parsePrice(item.ID, v.RegularPrice)
			if err != nil {
				return decimal.Zero, err
			}
		}
		if !ok {
			continue
		}
		if !found || price.LessThan(lowest) {
			lowest = price
			found = true
		}
	}
	if found {
		return lowest, nil
	}

	regular, _, err := resolveSimplePrices(item.ID, item.RegularPrice, "", item.Price)
	return regular, err
}

func parsePrice(itemID int64, raw string) (decimal.Decimal, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, integration.NewFormatError(itemID, "invalid price %q", raw)
	}
	if d.IsNegative() {
		return decimal.Zero, false, integration.NewFormatError(itemID, "negative price %q", raw)
	}
	return d, true, nil
}

// ---------------------------------------------------------------------------
// Field helpers
// ---------------------------------------------------------------------------

func stockStatus(s string) string {
	switch s {
	case catalog.StockStatusInStock, catalog.StockStatusOutOfStock, catalog.StockStatusOnBackorder:
		return s
	default:
		return catalog.StockStatusInStock
	}
}

func stockQuantity(manage bool, qty *int) *int {
	if !manage {
		return nil
	}
	q := 0
	if qty != nil {
		q = *qty
	}
	return &q
}

func terms(names []string) []integration.TransferTerm {
	if len(names) == 0 {
		return nil
	}
	out := make([]integration.TransferTerm, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, integration.TransferTerm{Name: n})
		}
	}
	return out
}

func formatAttributes(attrs []catalog.Attribute) []integration.TransferAttribute {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]integration.TransferAttribute, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, integration.TransferAttribute{
			Name:      a.Name,
			Options:   a.Options,
			Variation: a.Variation,
			Visible:   a.Visible,
		})
	}
	return out
}

func variationAttributes(values map[string]string) []integration.TransferAttribute {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]integration.TransferAttribute, 0, len(names))
	for _, name := range names {
		out = append(out, integration.TransferAttribute{Name: name, Option: values[name]})
	}
	return out
}

func filterImages(images []catalog.Image, filter ImageFilter) []integration.TransferImage {
	out := make([]integration.TransferImage, 0, len(images))
	for _, img := range images {
		if acceptImage(img.URL, filter) {
			out = append(out, integration.TransferImage{Src: img.URL, Alt: img.Alt})
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func acceptImage(rawURL string, filter ImageFilter) bool {
	if filter != nil {
		return filter(rawURL)
	}
	u, err := url.Parse(rawURL)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
