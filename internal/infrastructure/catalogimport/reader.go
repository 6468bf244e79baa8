package catalogimport

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/storesync/backend/internal/domain/catalog"
)

// Column names understood by ReadCatalog
const (
	ColumnID               = "id"
	ColumnParentID         = "parent_id"
	ColumnType             = "type"
	ColumnSKU              = "sku"
	ColumnName             = "name"
	ColumnRegularPrice     = "regular_price"
	ColumnSalePrice        = "sale_price"
	ColumnStockQuantity    = "stock_quantity"
	ColumnStockStatus      = "stock_status"
	ColumnManageStock      = "manage_stock"
	ColumnDescription      = "description"
	ColumnShortDescription = "short_description"
	ColumnCategories       = "categories"
	ColumnTags             = "tags"
	ColumnImages           = "images"
	ColumnAttributes       = "attributes"
)

// RequiredColumns must be present in the header row
var RequiredColumns = []string{ColumnID, ColumnName}

// listSeparator splits multi-valued cells such as categories and images
const listSeparator = "|"

// Options tunes ReadCatalog
type Options struct {
	Delimiter rune
	// MaxErrors caps the row errors kept in Result.Errors
	MaxErrors int
}

// Result is the outcome of reading a catalog file
type Result struct {
	Items []catalog.CatalogItem
	// Rows counts the non-empty data rows
	Rows   int
	Errors *ErrorCollection
}

// VariationCount returns the number of variations across all items
func (r *Result) VariationCount() int {
	n := 0
	for i := range r.Items {
		n += len(r.Items[i].Variations)
	}
	return n
}

// ReadCatalog reads one item or variation per row. A row with parent_id is
// a variation of the item with that id; its parent becomes a variable item.
// Rows with errors are left out of Result.Items and reported in
// Result.Errors. File-level problems are returned as an error.
//
// Multi-valued cells use "|": categories "Shirts|Sale", images
// "https://a/1.jpg|https://a/2.jpg". Item attributes are written as
// "Color:Red,Blue|Size:S,M" and variation attributes as "Color=Red|Size=S".
func ReadCatalog(r io.Reader, opts Options) (*Result, error) {
	var parserOpts []ParserOption
	if opts.Delimiter != 0 {
		parserOpts = append(parserOpts, WithDelimiter(opts.Delimiter))
	}
	parser, err := NewCSVParser(r, parserOpts...)
	if err != nil {
		return nil, err
	}
	if err := parser.ParseHeader(); err != nil {
		return nil, err
	}
	if missing := parser.MissingHeaders(RequiredColumns); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrMissingHeader, strings.Join(missing, ", "))
	}

	result := &Result{Errors: NewErrorCollection(opts.MaxErrors)}
	var (
		itemIndex  = make(map[int64]int)
		seenIDs    = make(map[int64]bool)
		variations []pendingVariation
		typed      = make(map[int64]bool)
	)

	for {
		row, err := parser.ReadRow()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Errors.Add(RowError{Row: parser.CurrentRow(), Code: ErrCodeMalformedRow, Message: err.Error()})
			continue
		}
		if row.IsEmpty() {
			continue
		}
		result.Rows++

		errorsBefore := result.Errors.TotalCount()
		id, ok := parseID(row, ColumnID, result.Errors, true)
		if ok && seenIDs[id] {
			result.Errors.AddDuplicateError(row.LineNumber, ColumnID, row.Get(ColumnID))
			continue
		}
		if ok {
			seenIDs[id] = true
		}

		if row.Get(ColumnParentID) != "" {
			parentID, parentOK := parseID(row, ColumnParentID, result.Errors, true)
			v := parseVariation(row, result.Errors)
			if !ok || !parentOK || result.Errors.TotalCount() > errorsBefore {
				continue
			}
			v.ID = id
			v.ParentID = parentID
			variations = append(variations, pendingVariation{line: row.LineNumber, variation: v})
			continue
		}

		item := parseItem(row, result.Errors)
		if !ok || result.Errors.TotalCount() > errorsBefore {
			continue
		}
		item.ID = id
		typed[id] = row.Get(ColumnType) != ""
		itemIndex[id] = len(result.Items)
		result.Items = append(result.Items, item)
	}

	for _, pv := range variations {
		idx, found := itemIndex[pv.variation.ParentID]
		if !found {
			result.Errors.AddReferenceError(pv.line, ColumnParentID,
				strconv.FormatInt(pv.variation.ParentID, 10), "parent item")
			continue
		}
		parent := &result.Items[idx]
		if parent.Type == catalog.ItemTypeSimple && typed[parent.ID] {
			result.Errors.AddTypeError(pv.line, ColumnParentID, "a variable parent item",
				strconv.FormatInt(parent.ID, 10))
			continue
		}
		if parent.Type != catalog.ItemTypeVariable {
			parent.Type = catalog.ItemTypeVariable
			for i := range parent.Attributes {
				parent.Attributes[i].Variation = true
			}
		}
		parent.Variations = append(parent.Variations, pv.variation)
	}

	if result.Rows == 0 {
		return nil, ErrNoDataRows
	}
	return result, nil
}

type pendingVariation struct {
	line      int
	variation catalog.Variation
}

func parseItem(row *Row, ec *ErrorCollection) catalog.CatalogItem {
	item := catalog.CatalogItem{
		SKU:              row.Get(ColumnSKU),
		Name:             row.Get(ColumnName),
		Type:             catalog.ItemTypeSimple,
		Description:      row.Get(ColumnDescription),
		ShortDescription: row.Get(ColumnShortDescription),
		Categories:       splitList(row.Get(ColumnCategories)),
		Tags:             splitList(row.Get(ColumnTags)),
	}
	if item.Name == "" {
		ec.AddRequiredError(row.LineNumber, ColumnName)
	}
	if raw := row.Get(ColumnType); raw != "" {
		t := catalog.ItemType(strings.ToLower(raw))
		if !t.IsValid() {
			ec.AddTypeError(row.LineNumber, ColumnType, "simple or variable", raw)
		} else {
			item.Type = t
		}
	}

	item.RegularPrice = parsePrice(row, ColumnRegularPrice, ec)
	item.SalePrice = parsePrice(row, ColumnSalePrice, ec)
	item.Price = item.RegularPrice
	if item.SalePrice != "" {
		item.Price = item.SalePrice
	}
	item.StockQuantity = parseQuantity(row, ec)
	item.StockStatus = parseStockStatus(row, ec)
	item.ManageStock = parseBool(row, ColumnManageStock, ec)

	for _, url := range splitList(row.Get(ColumnImages)) {
		item.Images = append(item.Images, catalog.Image{URL: url})
	}
	item.Attributes = parseItemAttributes(row, item.Type == catalog.ItemTypeVariable, ec)
	return item
}

func parseVariation(row *Row, ec *ErrorCollection) catalog.Variation {
	v := catalog.Variation{
		SKU:           row.Get(ColumnSKU),
		RegularPrice:  parsePrice(row, ColumnRegularPrice, ec),
		SalePrice:     parsePrice(row, ColumnSalePrice, ec),
		StockQuantity: parseQuantity(row, ec),
		StockStatus:   parseStockStatus(row, ec),
		ManageStock:   parseBool(row, ColumnManageStock, ec),
		Attributes:    map[string]string{},
	}
	if images := splitList(row.Get(ColumnImages)); len(images) > 0 {
		v.Image = &catalog.Image{URL: images[0]}
	}
	for _, pair := range splitList(row.Get(ColumnAttributes)) {
		name, value, found := strings.Cut(pair, "=")
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if !found || name == "" || value == "" {
			ec.AddFormatError(row.LineNumber, ColumnAttributes, "name=value", pair)
			continue
		}
		v.Attributes[name] = value
	}
	return v
}

func parseItemAttributes(row *Row, variable bool, ec *ErrorCollection) []catalog.Attribute {
	var attrs []catalog.Attribute
	for _, spec := range splitList(row.Get(ColumnAttributes)) {
		name, values, found := strings.Cut(spec, ":")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			ec.AddFormatError(row.LineNumber, ColumnAttributes, "name:option,option", spec)
			continue
		}
		var options []string
		for _, opt := range strings.Split(values, ",") {
			if opt = strings.TrimSpace(opt); opt != "" {
				options = append(options, opt)
			}
		}
		if len(options) == 0 {
			ec.AddFormatError(row.LineNumber, ColumnAttributes, "name:option,option", spec)
			continue
		}
		attrs = append(attrs, catalog.Attribute{
			Name:      name,
			Options:   options,
			Variation: variable,
			Visible:   true,
		})
	}
	return attrs
}

func parseID(row *Row, column string, ec *ErrorCollection, required bool) (int64, bool) {
	raw := row.Get(column)
	if raw == "" {
		if required {
			ec.AddRequiredError(row.LineNumber, column)
		}
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		ec.AddTypeError(row.LineNumber, column, "positive integer", raw)
		return 0, false
	}
	return id, true
}

// parsePrice validates a decimal price and returns it in canonical form.
// An empty cell means unset.
func parsePrice(row *Row, column string, ec *ErrorCollection) string {
	raw := row.Get(column)
	if raw == "" {
		return ""
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		ec.AddTypeError(row.LineNumber, column, "non-negative decimal", raw)
		return ""
	}
	return d.StringFixed(2)
}

func parseQuantity(row *Row, ec *ErrorCollection) *int {
	raw := row.Get(ColumnStockQuantity)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		ec.AddTypeError(row.LineNumber, ColumnStockQuantity, "integer", raw)
		return nil
	}
	return &n
}

func parseStockStatus(row *Row, ec *ErrorCollection) string {
	raw := strings.ToLower(row.Get(ColumnStockStatus))
	switch raw {
	case "":
		return catalog.StockStatusInStock
	case catalog.StockStatusInStock, catalog.StockStatusOutOfStock, catalog.StockStatusOnBackorder:
		return raw
	}
	ec.AddTypeError(row.LineNumber, ColumnStockStatus, "instock, outofstock or onbackorder", row.Get(ColumnStockStatus))
	return ""
}

func parseBool(row *Row, column string, ec *ErrorCollection) bool {
	raw := row.Get(column)
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		ec.AddTypeError(row.LineNumber, column, "boolean", raw)
		return false
	}
	return b
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, listSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
