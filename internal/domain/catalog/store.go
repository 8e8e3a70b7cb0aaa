package catalog

import "context"

// Store is the inventory ledger boundary. Decrement is the only write the
// checkout core performs against the catalog.
type Store interface {
	Get(ctx context.Context, id string) (*Product, error)
	Save(ctx context.Context, p *Product) error
	// Decrement atomically applies Product.Deduct against the stored
	// record. Implementations must serialize concurrent decrements per
	// product so two checkouts racing for the last unit cannot both
	// succeed. It returns the remaining aggregate stock.
	Decrement(ctx context.Context, id string, sel Selector, qty int) (int, error)
}
