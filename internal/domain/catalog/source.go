package catalog

import "context"

// SourceCatalog is the read boundary to the host platform's product storage.
// The sync engine never writes through it.
type SourceCatalog interface {
	// ListSyncableItems returns every item that has a non-empty SKU.
	ListSyncableItems(ctx context.Context) ([]CatalogItem, error)

	// ResolveItemBySku finds the item (or the parent of the variation)
	// carrying the given SKU. found is false when no item matches.
	ResolveItemBySku(ctx context.Context, sku string) (item *CatalogItem, found bool, err error)

	// GetItem loads an item and its variations by id.
	// Returns ErrItemNotFound when missing.
	GetItem(ctx context.Context, id int64) (*CatalogItem, error)
}
