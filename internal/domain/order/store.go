package order

import "context"

// Store persists orders. Orders are never deleted; they form the audit
// trail of every checkout attempt.
type Store interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// FindByTxRef resolves the order waiting on a gateway reference.
	FindByTxRef(ctx context.Context, ref string) (*Order, error)
	// Update persists status, tx ref and payment details. Amount and items
	// are immutable and must not be rewritten. The write only lands when
	// the stored status still equals from; otherwise ErrConflict is
	// returned, so two paths confirming the same order serialize on the
	// status transition and exactly one wins.
	Update(ctx context.Context, o *Order, from Status) error
}
