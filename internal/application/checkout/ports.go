package checkout

import (
	"context"
	"time"

	"github.com/soko-labs/soko-checkout/internal/domain/order"
)

type IDGenerator interface {
	NewID() string
}

// Notifier is the email dispatcher boundary. Delivery failures are logged
// and never change the checkout outcome.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, o *order.Order) error
	PaymentTimedOut(ctx context.Context, o *order.Order) error
}

// DedupStore guards the webhook path against replayed gateway callbacks.
type DedupStore interface {
	// SetIfAbsent returns true when the key was newly set, false when a
	// previous call already claimed it.
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
