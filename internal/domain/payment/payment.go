package payment

import (
	"context"
	"errors"
)

var (
	// ErrTransactionNotFound is the normal "not yet" signal while a
	// cash-in is still in flight; the polling loop must not treat it as
	// a failure.
	ErrTransactionNotFound = errors.New("payment: transaction not found")
	ErrNotConfirmed        = errors.New("payment: transaction does not confirm this order")
)

// StatusSuccessful is the only gateway status that confirms an order.
const StatusSuccessful = "successful"

// Transaction is the gateway's record of a cash-in. It is not persisted
// locally; orders carry only the reference.
type Transaction struct {
	Ref    string
	Status string
	Amount int64
	Payer  string
}

// Confirms reports whether this transaction confirms the order waiting on
// ref. Both the status and the exact reference must match, so a successful
// transaction in a shared events list can never confirm someone else's
// order.
func (t *Transaction) Confirms(ref string) bool {
	return t != nil && ref != "" && t.Ref == ref && t.Status == StatusSuccessful
}

// Gateway wraps the external mobile-money provider. InitiateCashIn moves
// money and is irreversible once the provider accepts it; FindByReference
// is an idempotent read returning the most recent known state.
type Gateway interface {
	InitiateCashIn(ctx context.Context, phoneNumber string, amount int64) (ref string, err error)
	FindByReference(ctx context.Context, ref string) (*Transaction, error)
}
