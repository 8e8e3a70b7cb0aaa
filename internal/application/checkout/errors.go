package checkout

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed checkout requests; nothing was
	// persisted and no money moved.
	ErrValidation = errors.New("checkout: invalid request")
	// ErrGateway marks a cash-in the gateway refused to accept.
	ErrGateway = errors.New("checkout: payment gateway error")
	// ErrAlreadyConfirmed marks a webhook callback for an order that is
	// no longer waiting on payment.
	ErrAlreadyConfirmed = errors.New("checkout: order already confirmed")
)

func newValidation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// PaymentTimeoutError is the expected outcome when the confirmation window
// elapses. It carries the order id so the client can keep polling; money
// may still arrive after the fact via the webhook.
type PaymentTimeoutError struct {
	OrderID string
}

func (e *PaymentTimeoutError) Error() string {
	return "checkout: payment not completed for order " + e.OrderID
}
