package catalogimport

import (
	"strings"
	"testing"

	"github.com/storesync/backend/internal/domain/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogCSV = `id,parent_id,type,sku,name,regular_price,sale_price,stock_quantity,stock_status,manage_stock,categories,images,attributes
10,,,MUG-1,Mug,8.5,,12,instock,true,Kitchen|Gifts,https://img.example/mug.jpg,
20,,variable,TS,T-Shirt,19.99,,,,,Shirts,,"Color:Red,Blue|Size:S"
21,20,,TS-RED-S,,19.99,15,3,,true,,https://img.example/red.jpg,Color=Red|Size=S
22,20,,TS-BLUE-S,,19.99,,0,outofstock,true,,,Color=Blue|Size=S
30,,,,Gift card,25,,,,,,,
`

func TestReadCatalog(t *testing.T) {
	result, err := ReadCatalog(strings.NewReader(catalogCSV), Options{})
	require.NoError(t, err)
	require.False(t, result.Errors.HasErrors(), result.Errors.String())

	assert.Equal(t, 5, result.Rows)
	require.Len(t, result.Items, 3)
	assert.Equal(t, 2, result.VariationCount())

	mug := result.Items[0]
	assert.Equal(t, int64(10), mug.ID)
	assert.Equal(t, catalog.ItemTypeSimple, mug.Type)
	assert.Equal(t, "8.50", mug.RegularPrice)
	assert.Equal(t, "8.50", mug.Price)
	require.NotNil(t, mug.StockQuantity)
	assert.Equal(t, 12, *mug.StockQuantity)
	assert.True(t, mug.ManageStock)
	assert.Equal(t, []string{"Kitchen", "Gifts"}, mug.Categories)
	assert.Equal(t, []catalog.Image{{URL: "https://img.example/mug.jpg"}}, mug.Images)

	shirt := result.Items[1]
	assert.True(t, shirt.IsVariable())
	require.Len(t, shirt.Attributes, 2)
	assert.Equal(t, catalog.Attribute{Name: "Color", Options: []string{"Red", "Blue"}, Variation: true, Visible: true}, shirt.Attributes[0])
	require.Len(t, shirt.Variations, 2)
	red := shirt.Variations[0]
	assert.Equal(t, int64(21), red.ID)
	assert.Equal(t, int64(20), red.ParentID)
	assert.Equal(t, "15.00", red.SalePrice)
	assert.Equal(t, map[string]string{"Color": "Red", "Size": "S"}, red.Attributes)
	require.NotNil(t, red.Image)
	assert.Equal(t, catalog.StockStatusOutOfStock, shirt.Variations[1].StockStatus)

	giftCard := result.Items[2]
	assert.False(t, giftCard.Syncable())
	assert.Equal(t, catalog.StockStatusInStock, giftCard.StockStatus)
}

func TestReadCatalog_ParentBecomesVariable(t *testing.T) {
	csv := "id,parent_id,sku,name,attributes\n" +
		"2,1,CAP-L,,Size=L\n" +
		"1,,CAP,Cap,Size:L\n"

	result, err := ReadCatalog(strings.NewReader(csv), Options{})
	require.NoError(t, err)
	require.False(t, result.Errors.HasErrors(), result.Errors.String())

	require.Len(t, result.Items, 1)
	item := result.Items[0]
	assert.Equal(t, catalog.ItemTypeVariable, item.Type)
	assert.True(t, item.Attributes[0].Variation)
	require.Len(t, item.Variations, 1)
	assert.Equal(t, "CAP-L", item.Variations[0].SKU)
}

func TestReadCatalog_RowErrors(t *testing.T) {
	tests := []struct {
		name   string
		rows   string
		code   string
		column string
		items  int
	}{
		{"missing id", ",,,Mug,1", ErrCodeRequiredField, ColumnID, 0},
		{"non numeric id", "x,,,Mug,1", ErrCodeInvalidType, ColumnID, 0},
		{"missing name", "1,,,,1", ErrCodeRequiredField, ColumnName, 0},
		{"bad price", "1,,,Mug,cheap", ErrCodeInvalidType, ColumnRegularPrice, 0},
		{"negative price", "1,,,Mug,-2", ErrCodeInvalidType, ColumnRegularPrice, 0},
		{"bad type", "1,,bundle,Mug,1", ErrCodeInvalidType, ColumnType, 0},
		{"duplicate id", "1,,,Mug,1\n1,,,Cup,1", ErrCodeDuplicateInFile, ColumnID, 1},
		{"unknown parent", "1,,,Mug,1\n2,9,,,1", ErrCodeReferenceNotFound, ColumnParentID, 1},
		{"variation of simple item", "1,,simple,Mug,1\n2,1,,,1", ErrCodeInvalidType, ColumnParentID, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csv := "id,parent_id,type,name,regular_price\n" + tt.rows + "\n"

			result, err := ReadCatalog(strings.NewReader(csv), Options{})

			require.NoError(t, err)
			require.True(t, result.Errors.HasErrors())
			first := result.Errors.Errors()[0]
			assert.Equal(t, tt.code, first.Code)
			assert.Equal(t, tt.column, first.Column)
			assert.Len(t, result.Items, tt.items)
		})
	}
}

func TestReadCatalog_FileErrors(t *testing.T) {
	t.Run("Missing required columns", func(t *testing.T) {
		_, err := ReadCatalog(strings.NewReader("sku,price\nA,1"), Options{})
		assert.ErrorIs(t, err, ErrMissingHeader)
		assert.Contains(t, err.Error(), "id, name")
	})

	t.Run("Header only", func(t *testing.T) {
		_, err := ReadCatalog(strings.NewReader("id,name\n\n"), Options{})
		assert.ErrorIs(t, err, ErrNoDataRows)
	})

	t.Run("Semicolon delimiter", func(t *testing.T) {
		result, err := ReadCatalog(strings.NewReader("id;name;sku\n1;Mug;M-1"), Options{Delimiter: ';'})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "M-1", result.Items[0].SKU)
	})
}
