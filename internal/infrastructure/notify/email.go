package notify

import (
	"context"
	"fmt"

	"github.com/soko-labs/soko-checkout/internal/domain/order"
	"github.com/soko-labs/soko-checkout/internal/observability"
	"github.com/soko-labs/soko-checkout/internal/observability/logctx"
)

// EmailNotifier composes the customer-facing messages for checkout
// outcomes. Actual SMTP delivery sits behind the Sender seam; the default
// sender records the message through the structured log so notifications
// show up in local runs and tests without a mail relay.
type EmailNotifier struct {
	sender Sender
	log    observability.Logger
}

type Message struct {
	Recipient string
	Subject   string
	Body      string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Option func(*EmailNotifier)

func WithSender(s Sender) Option {
	return func(n *EmailNotifier) { n.sender = s }
}

func NewEmailNotifier(logger observability.Logger, opts ...Option) *EmailNotifier {
	if logger == nil {
		logger = observability.NopLogger()
	}
	n := &EmailNotifier{
		log: logger.With(observability.F("component", "email_notifier")),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.sender == nil {
		n.sender = logSender{log: n.log}
	}
	return n
}

func (n *EmailNotifier) PaymentConfirmed(ctx context.Context, o *order.Order) error {
	return n.sender.Send(ctx, Message{
		Recipient: o.CustomerID,
		Subject:   "Your payment was received",
		Body: fmt.Sprintf(
			"Order %s is confirmed and moving to fulfillment. Amount paid: %d. Reference: %s.",
			o.ID, o.Amount(), o.TxRef,
		),
	})
}

func (n *EmailNotifier) PaymentTimedOut(ctx context.Context, o *order.Order) error {
	return n.sender.Send(ctx, Message{
		Recipient: o.CustomerID,
		Subject:   "We could not confirm your payment",
		Body: fmt.Sprintf(
			"Payment for order %s was not confirmed in time. If you approved the charge, the order will complete automatically; otherwise please try again.",
			o.ID,
		),
	})
}

type logSender struct {
	log observability.Logger
}

func (s logSender) Send(ctx context.Context, msg Message) error {
	logctx.FromOr(ctx, s.log).Info("email_dispatched",
		observability.F("recipient", msg.Recipient),
		observability.F("subject", msg.Subject),
	)
	return nil
}
