package order

import "time"

// CheckoutConfirmedEvent is emitted once payment is confirmed and the order
// has moved to pending. GapCount reports how many line items failed stock
// reconciliation; each gap is also emitted individually.
type CheckoutConfirmedEvent struct {
	OrderID    string
	CustomerID string
	TxRef      string
	Amount     int64
	GapCount   int
	OccurredAt time.Time
}

func (CheckoutConfirmedEvent) EventName() string { return "checkout.confirmed" }

func NewCheckoutConfirmedEvent(o *Order, gapCount int) CheckoutConfirmedEvent {
	return CheckoutConfirmedEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		TxRef:      o.TxRef,
		Amount:     o.Amount(),
		GapCount:   gapCount,
		OccurredAt: time.Now().UTC(),
	}
}

// CheckoutTimedOutEvent is emitted when the confirmation window elapses.
// The order stays in awaits_payment; a late webhook callback may still
// complete it.
type CheckoutTimedOutEvent struct {
	OrderID    string
	CustomerID string
	TxRef      string
	OccurredAt time.Time
}

func (CheckoutTimedOutEvent) EventName() string { return "checkout.timed_out" }

func NewCheckoutTimedOutEvent(o *Order) CheckoutTimedOutEvent {
	return CheckoutTimedOutEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		TxRef:      o.TxRef,
		OccurredAt: time.Now().UTC(),
	}
}

// ReconciliationGapEvent records a line item whose stock decrement failed
// after the order was already confirmed. The gap must be resolved
// out-of-band; the event makes it observable instead of silent.
type ReconciliationGapEvent struct {
	OrderID    string
	ProductID  string
	Quantity   int
	Reason     string
	OccurredAt time.Time
}

func (ReconciliationGapEvent) EventName() string { return "checkout.reconciliation_gap" }

func NewReconciliationGapEvent(orderID, productID string, quantity int, reason string) ReconciliationGapEvent {
	return ReconciliationGapEvent{
		OrderID:    orderID,
		ProductID:  productID,
		Quantity:   quantity,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
