package integration

import (
	"context"
	"errors"
	"net/http"

	"github.com/storesync/backend/internal/domain/integration"
	"go.uber.org/zap"
)

// ReconcileResult is the outcome of reconciling one item against one store
type ReconcileResult struct {
	DestinationID string
	Created       bool
	Variations    integration.VariationReport
}

// Reconciler runs lookup-or-create-or-update for one item on one store.
type Reconciler struct {
	logger *zap.Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{logger: logger}
}

// Reconcile makes the destination hold item. A ledger record with a known
// destination id is tried first with an update; a 404 there falls back to
// the SKU lookup. Lookup hits are updated, misses are created.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	client integration.StorefrontClient,
	known *integration.SyncRecord,
	item integration.TransferItem,
	opts integration.UpdateOptions,
) (*ReconcileResult, error) {
	if known != nil && known.HasDestination() {
		id := *known.DestinationItemID
		err := client.Update(ctx, id, item, opts)
		if err == nil {
			return &ReconcileResult{DestinationID: id}, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
		r.logger.Info("Ledger destination id is gone, looking up by SKU",
			zap.String("sku", item.SKU),
			zap.String("destination_id", id),
		)
	}

	id, found, err := client.FindByNaturalKey(ctx, item.SKU)
	if err != nil {
		return nil, err
	}

	if found {
		if err := client.Update(ctx, id, item, opts); err != nil {
			return nil, err
		}
		return &ReconcileResult{DestinationID: id}, nil
	}

	id, report, err := client.Create(ctx, item)
	if err != nil {
		return nil, err
	}
	if len(report.Failed) > 0 {
		r.logger.Warn("Product created with failed variations",
			zap.String("sku", item.SKU),
			zap.String("destination_id", id),
			zap.Int("variations_created", len(report.Created)),
			zap.Int("variations_failed", len(report.Failed)),
		)
	}
	return &ReconcileResult{DestinationID: id, Created: true, Variations: report}, nil
}

func isNotFound(err error) bool {
	var te *integration.TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusNotFound
}
