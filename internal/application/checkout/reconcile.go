package checkout

import (
	"context"
	"errors"

	"github.com/soko-labs/soko-checkout/internal/domain/catalog"
	"github.com/soko-labs/soko-checkout/internal/domain/order"
	"github.com/soko-labs/soko-checkout/internal/observability"
	"github.com/soko-labs/soko-checkout/internal/observability/logctx"
)

// ItemResult is the outcome of one line item's stock decrement. Failures
// are data, not control flow: a failed item never rolls back the order or
// blocks the remaining items.
type ItemResult struct {
	ProductID string
	Quantity  int
	Remaining int
	Err       error
}

// reconcileInventory decrements stock for every line item independently.
// The order is already confirmed by the time this runs, so errors are
// collected rather than propagated.
func (uc *Orchestrator) reconcileInventory(ctx context.Context, o *order.Order) []ItemResult {
	items := o.Items()
	results := make([]ItemResult, 0, len(items))
	for _, it := range items {
		remaining, err := uc.products.Decrement(ctx, it.ProductID, it.Variation, it.Quantity)
		results = append(results, ItemResult{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Remaining: remaining,
			Err:       err,
		})
	}
	return results
}

// reportGaps logs, counts and emits an event for every failed decrement so
// the inconsistency is observable for out-of-band reconciliation. Returns
// the number of gaps.
func (uc *Orchestrator) reportGaps(ctx context.Context, o *order.Order, results []ItemResult) int {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("order_id", o.ID))

	gaps := 0
	for _, res := range results {
		if res.Err == nil {
			continue
		}
		gaps++
		reason := gapReason(res.Err)
		logger.Error("stock_reconciliation_failed",
			observability.F("product_id", res.ProductID),
			observability.F("quantity", res.Quantity),
			observability.F("reason", reason),
			observability.F("error", res.Err.Error()),
		)
		uc.gapCounter.Add(1, observability.L("reason", reason))
		uc.publish(ctx, order.NewReconciliationGapEvent(o.ID, res.ProductID, res.Quantity, reason))
	}
	return gaps
}

func gapReason(err error) string {
	switch {
	case errors.Is(err, catalog.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, catalog.ErrNotFound):
		return "product_not_found"
	case errors.Is(err, catalog.ErrNoSuchVariation):
		return "no_such_variation"
	default:
		return "store_error"
	}
}
