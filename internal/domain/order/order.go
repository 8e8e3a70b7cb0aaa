package order

import (
	"errors"
	"time"

	"github.com/soko-labs/soko-checkout/internal/domain/catalog"
	"github.com/soko-labs/soko-checkout/internal/domain/payment"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrConflict          = errors.New("order: conflicting concurrent write")
	ErrNoItems           = errors.New("order: at least one line item is required")
	ErrInvalidQuantity   = errors.New("order: item quantity must be greater than zero")
	ErrInvalidAmount     = errors.New("order: amount must be greater than zero")
	ErrAmountMismatch    = errors.New("order: amount does not equal the sum of line items")
	ErrInvalidTransition = errors.New("order: invalid status transition")
)

// SellerPaymentStatus tracks whether the seller's share of a line item
// has been paid out.
type SellerPaymentStatus string

const (
	SellerPaymentDue     SellerPaymentStatus = "due"
	SellerPaymentSettled SellerPaymentStatus = "settled"
)

// LineItem is one product (with optional variation) inside an order.
// UnitPrice is captured from the catalog at order time and never follows
// later catalog price changes.
type LineItem struct {
	ProductID     string
	SellerID      string
	Quantity      int
	UnitPrice     int64
	Variation     catalog.Selector
	SellerPayment SellerPaymentStatus
}

// PaymentDetails records the confirmed gateway transaction for an order.
type PaymentDetails struct {
	Ref         string
	Amount      int64
	Payer       string
	ConfirmedAt time.Time
}

// Order is the durable checkout record. Amount and line items are fixed at
// construction; only status, tx ref and payment details change afterwards,
// and only through this core.
type Order struct {
	ID                 string
	CustomerID         string
	Status             Status
	TxRef              string
	PaymentDetails     *PaymentDetails
	ShippingAddress    string
	DeliveryPreference string
	CreatedAt          time.Time
	UpdatedAt          time.Time

	items  []LineItem
	amount int64
}

// New builds an order in awaits_payment. The amount must equal the sum of
// quantity times unit price across the given items.
func New(id, customerID string, items []LineItem, amount int64, shippingAddress, deliveryPreference string) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	var sum int64
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		sum += int64(it.Quantity) * it.UnitPrice
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount != sum {
		return nil, ErrAmountMismatch
	}

	copied := make([]LineItem, len(items))
	copy(copied, items)
	for i := range copied {
		if copied[i].SellerPayment == "" {
			copied[i].SellerPayment = SellerPaymentDue
		}
	}

	now := time.Now().UTC()
	return &Order{
		ID:                 id,
		CustomerID:         customerID,
		Status:             StatusAwaitsPayment,
		ShippingAddress:    shippingAddress,
		DeliveryPreference: deliveryPreference,
		CreatedAt:          now,
		UpdatedAt:          now,
		items:              copied,
		amount:             amount,
	}, nil
}

// Amount returns the immutable order total in currency minor units.
func (o *Order) Amount() int64 { return o.amount }

// Items returns a copy of the line items; the underlying slice is never
// handed out.
func (o *Order) Items() []LineItem {
	out := make([]LineItem, len(o.items))
	copy(out, o.items)
	return out
}

// ConfirmPayment transitions the order to pending once the gateway reports
// a successful transaction matching the order's reference.
func (o *Order) ConfirmPayment(tx *payment.Transaction) error {
	if tx == nil || !tx.Confirms(o.TxRef) {
		return payment.ErrNotConfirmed
	}
	if !CanTransition(o.Status, StatusPending) {
		return ErrInvalidTransition
	}
	o.Status = StatusPending
	o.PaymentDetails = &PaymentDetails{
		Ref:         tx.Ref,
		Amount:      tx.Amount,
		Payer:       tx.Payer,
		ConfirmedAt: time.Now().UTC(),
	}
	o.touch()
	return nil
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.items = make([]LineItem, len(o.items))
	copy(clone.items, o.items)
	if o.PaymentDetails != nil {
		pd := *o.PaymentDetails
		clone.PaymentDetails = &pd
	}
	return &clone
}

// Rehydrate rebuilds an order from stored fields, bypassing creation
// validation. For store implementations only.
func Rehydrate(o Order, items []LineItem, amount int64) *Order {
	o.items = items
	o.amount = amount
	return &o
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
