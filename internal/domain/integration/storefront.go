package integration

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Transfer representation
// ---------------------------------------------------------------------------

// TransferImage is an image reference accepted by the destination API.
type TransferImage struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// TransferTerm is a category or tag reference, matched by name remotely.
type TransferTerm struct {
	Name string `json:"name"`
}

// TransferAttribute is a product attribute in wire form.
type TransferAttribute struct {
	Name      string   `json:"name"`
	Options   []string `json:"options,omitempty"`
	Option    string   `json:"option,omitempty"`
	Variation bool     `json:"variation,omitempty"`
	Visible   bool     `json:"visible,omitempty"`
}

// TransferVariation is one variation payload for POST /products/{id}/variations.
type TransferVariation struct {
	SourceID      int64               `json:"-"`
	SKU           string              `json:"sku"`
	RegularPrice  string              `json:"regular_price"`
	SalePrice     string              `json:"sale_price,omitempty"`
	StockQuantity *int                `json:"stock_quantity,omitempty"`
	StockStatus   string              `json:"stock_status"`
	ManageStock   bool                `json:"manage_stock"`
	Attributes    []TransferAttribute `json:"attributes"`
	Image         *TransferImage      `json:"image,omitempty"`
}

// TransferItem is the formatted product that is sent to a destination.
// Price is the resolved effective price; it is not part of the wire body.
type TransferItem struct {
	SourceID         int64               `json:"-"`
	Price            decimal.Decimal     `json:"-"`
	Name             string              `json:"name"`
	SKU              string              `json:"sku"`
	Type             string              `json:"type"`
	RegularPrice     string              `json:"regular_price"`
	SalePrice        string              `json:"sale_price,omitempty"`
	StockQuantity    *int                `json:"stock_quantity,omitempty"`
	StockStatus      string              `json:"stock_status"`
	ManageStock      bool                `json:"manage_stock"`
	Description      string              `json:"description"`
	ShortDescription string              `json:"short_description"`
	Status           string              `json:"status"`
	Images           []TransferImage     `json:"images,omitempty"`
	Categories       []TransferTerm      `json:"categories,omitempty"`
	Tags             []TransferTerm      `json:"tags,omitempty"`
	Attributes       []TransferAttribute `json:"attributes,omitempty"`
	Variations       []TransferVariation `json:"-"`
}

// UpdateOptions gates which fields a partial update may overwrite.
type UpdateOptions struct {
	UpdatePrices bool
	UpdateStock  bool
}

// VariationFailure records a variation that could not be created.
type VariationFailure struct {
	SKU   string
	Error string
}

// VariationReport summarizes variation creation under a new parent.
type VariationReport struct {
	Created []string
	Failed  []VariationFailure
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// RemoteLineItem is an order line as reported by a destination.
type RemoteLineItem struct {
	ID       int64
	SKU      string
	Quantity int
	Total    decimal.Decimal
}

// RemoteOrder is an order as reported by a destination.
type RemoteOrder struct {
	ID        int64
	CreatedAt time.Time
	LineItems []RemoteLineItem
}

// LineKey identifies the line at index across pulls. A line reported
// without an id is keyed by its position in the order. The key is empty
// when neither the line nor the order carries an id.
func (o RemoteOrder) LineKey(index int) string {
	line := o.LineItems[index]
	switch {
	case line.ID > 0:
		return strconv.FormatInt(o.ID, 10) + ":" + strconv.FormatInt(line.ID, 10)
	case o.ID > 0:
		return strconv.FormatInt(o.ID, 10) + "#" + strconv.Itoa(index)
	}
	return ""
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// StorefrontClient talks to one destination's catalog API.
type StorefrontClient interface {
	// FindByNaturalKey looks a product up by SKU. found is false on an empty result.
	FindByNaturalKey(ctx context.Context, sku string) (id string, found bool, err error)

	// Create creates the product and then each of its variations.
	// Variation failures are reported, never returned as err.
	Create(ctx context.Context, item TransferItem) (id string, report VariationReport, err error)

	// Update sends a partial update gated by opts.
	Update(ctx context.Context, id string, item TransferItem, opts UpdateOptions) error

	// CreateVariation creates one variation under an existing parent.
	CreateVariation(ctx context.Context, parentID string, variation TransferVariation) error

	// Probe performs a read-only call to validate credentials.
	Probe(ctx context.Context) error

	// ListOrdersAfter returns orders created after the given instant.
	ListOrdersAfter(ctx context.Context, after time.Time) ([]RemoteOrder, error)
}

// StorefrontClientFactory returns the client for a store profile.
type StorefrontClientFactory interface {
	ClientFor(store *StoreProfile) (StorefrontClient, error)
	// Forget drops any cached client, e.g. after the profile changed.
	Forget(storeID uuid.UUID)
}

// ImageValidator decides whether an image URL may be sent to a destination.
type ImageValidator interface {
	Valid(ctx context.Context, rawURL string) bool
}
