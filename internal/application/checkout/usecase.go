package checkout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/soko-labs/soko-checkout/internal/domain/catalog"
	"github.com/soko-labs/soko-checkout/internal/domain/order"
	"github.com/soko-labs/soko-checkout/internal/domain/outbox"
	"github.com/soko-labs/soko-checkout/internal/domain/payment"
	"github.com/soko-labs/soko-checkout/internal/observability"
	"github.com/soko-labs/soko-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	checkoutService = "checkout-service"
	useCaseCheckout = "checkout.run"
	spanPrefix      = "UC."
	gatewayPeer     = "gateway"
	endpointCashIn  = "cashin"
	endpointEvents  = "events"

	// DefaultPollInterval and DefaultPollTimeout reproduce the historic
	// one-second polling cadence with a twenty-second confirmation window.
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 20 * time.Second

	webhookDedupTTL = 48 * time.Hour
)

var phonePattern = regexp.MustCompile(`^\+?\d{10,15}$`)

// Orchestrator drives a checkout from request to terminal outcome:
// confirmed payment with reconciled inventory, or a timed-out payment that
// leaves the order awaiting a late confirmation.
type Orchestrator struct {
	orders   order.Store
	products catalog.Store
	gateway  payment.Gateway
	ids      IDGenerator

	publisher outbox.Publisher
	notifier  Notifier
	dedup     DedupStore

	pollInterval time.Duration
	pollTimeout  time.Duration

	tel observability.Telemetry
	log observability.Logger

	reqCounter observability.Counter
	durHist    observability.Histogram
	extCounter observability.Counter
	extHist    observability.Histogram
	gapCounter observability.Counter
}

type Option func(*Orchestrator)

// WithPolling overrides the confirmation polling cadence; tests shrink it
// to keep the timeout scenarios fast.
func WithPolling(interval, timeout time.Duration) Option {
	return func(uc *Orchestrator) {
		if interval > 0 {
			uc.pollInterval = interval
		}
		if timeout > 0 {
			uc.pollTimeout = timeout
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(uc *Orchestrator) { uc.notifier = n }
}

func WithDedup(d DedupStore) Option {
	return func(uc *Orchestrator) { uc.dedup = d }
}

// NewOrchestrator wires the dependencies required to execute checkouts.
func NewOrchestrator(
	orders order.Store,
	products catalog.Store,
	gateway payment.Gateway,
	ids IDGenerator,
	publisher outbox.Publisher,
	tel observability.Telemetry,
	opts ...Option,
) *Orchestrator {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	uc := &Orchestrator{
		orders:       orders,
		products:     products,
		gateway:      gateway,
		ids:          ids,
		publisher:    publisher,
		pollInterval: DefaultPollInterval,
		pollTimeout:  DefaultPollTimeout,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", checkoutService)),
		reqCounter:   tel.Counter(observability.MUsecaseRequests),
		durHist:      tel.Histogram(observability.MUsecaseDuration),
		extCounter:   tel.Counter(observability.MExternalRequests),
		extHist:      tel.Histogram(observability.MExternalRequestDuration),
		gapCounter:   tel.Counter(observability.MReconciliationGaps),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ItemInput is one requested line item. Variation may be zero for
// aggregate-stock products.
type ItemInput struct {
	ProductID string
	Quantity  int
	Variation catalog.Selector
}

type Input struct {
	CustomerID         string
	PhoneNumber        string
	Amount             int64
	Items              []ItemInput
	ShippingAddress    string
	DeliveryPreference string
}

type Result struct {
	OrderID        string
	Status         order.Status
	Reconciliation []ItemResult
}

// Checkout runs the full flow: validate, initiate the cash-in, persist the
// order, poll for confirmation, then confirm and reconcile stock. A timeout
// is returned as *PaymentTimeoutError with the order id; the order stays in
// awaits_payment for the webhook to pick up later.
func (uc *Orchestrator) Checkout(ctx context.Context, cmd Input) (_ *Result, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("use_case", useCaseCheckout))

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"Checkout",
		attribute.String("use_case", useCaseCheckout),
		attribute.String("checkout.customer_id", cmd.CustomerID),
		attribute.Int("checkout.items", len(cmd.Items)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var orderID string

	defer func() {
		lat := time.Since(start).Seconds()
		if span != nil {
			if orderID != "" {
				span.SetAttributes(attribute.String("order.id", orderID))
			}
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, statusText)
			} else {
				span.SetStatus(codes.Ok, statusText)
			}
			span.End()
		}
		uc.reqCounter.Add(1,
			observability.L("use_case", useCaseCheckout),
			observability.L("outcome", outcome),
		)
		uc.durHist.Observe(lat, observability.L("use_case", useCaseCheckout))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if orderID != "" {
			fields = append(fields, observability.F("order_id", orderID))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	items, verr := uc.validate(ctx, cmd)
	if verr != nil {
		outcome, statusText = "error", "VALIDATION_FAILED"
		return nil, verr
	}

	// The cash-in is requested before the order is persisted so no store
	// transaction ever spans the external round-trip. Once the provider
	// accepts it the money movement is not cancellable from here.
	ref, gerr := uc.initiateCashIn(ctx, cmd.PhoneNumber, cmd.Amount)
	if gerr != nil {
		outcome, statusText = "error", "CASHIN_REJECTED"
		return nil, gerr
	}

	entity, derr := order.New(uc.ids.NewID(), cmd.CustomerID, items, cmd.Amount, cmd.ShippingAddress, cmd.DeliveryPreference)
	if derr != nil {
		outcome, statusText = "error", "DOMAIN_CONSTRUCTION_FAILED"
		return nil, fmt.Errorf("checkout: construct order: %w", derr)
	}
	entity.TxRef = ref
	orderID = entity.ID

	if ierr := uc.orders.Insert(ctx, entity); ierr != nil {
		// The cash-in is already in flight; keep the reference visible
		// for manual follow-up.
		outcome, statusText = "error", "ORDER_INSERT_FAILED"
		logger.Error("order_insert_failed_after_cashin",
			observability.F("tx_ref", ref),
			observability.F("error", ierr.Error()),
		)
		return nil, fmt.Errorf("checkout: persist order (cash-in %s already initiated): %w", ref, ierr)
	}
	span.AddEvent("order.created")

	tx, perr := uc.awaitConfirmation(ctx, ref)
	if perr != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, perr
	}
	if tx == nil {
		outcome, statusText = "timeout", "PAYMENT_NOT_COMPLETED"
		span.AddEvent("payment.timed_out")
		uc.publish(ctx, order.NewCheckoutTimedOutEvent(entity))
		uc.notifyTimedOut(ctx, entity)
		return nil, &PaymentTimeoutError{OrderID: entity.ID}
	}

	span.AddEvent("payment.confirmed")
	results, cerr := uc.confirmAndReconcile(ctx, entity, tx)
	if errors.Is(cerr, ErrAlreadyConfirmed) {
		// A concurrent callback won the status transition and already
		// reconciled stock; the payment did succeed.
		outcome, statusText = "success", "CONFIRMED_ELSEWHERE"
		return &Result{OrderID: entity.ID, Status: order.StatusPending}, nil
	}
	if cerr != nil {
		outcome, statusText = "error", "CONFIRM_FAILED"
		return nil, cerr
	}

	return &Result{
		OrderID:        entity.ID,
		Status:         entity.Status,
		Reconciliation: results,
	}, nil
}

// validate checks the request and captures unit prices and seller refs from
// the catalog. The submitted amount must equal the computed total.
func (uc *Orchestrator) validate(ctx context.Context, cmd Input) ([]order.LineItem, error) {
	if cmd.CustomerID == "" {
		return nil, newValidation("customer id is required")
	}
	if !phonePattern.MatchString(cmd.PhoneNumber) {
		return nil, newValidation("payer phone number is invalid")
	}
	if cmd.Amount <= 0 {
		return nil, newValidation("amount must be greater than zero")
	}
	if len(cmd.Items) == 0 {
		return nil, newValidation("at least one item is required")
	}
	if cmd.ShippingAddress == "" {
		return nil, newValidation("shipping address is required")
	}

	items := make([]order.LineItem, 0, len(cmd.Items))
	var total int64
	for _, it := range cmd.Items {
		if it.Quantity <= 0 {
			return nil, newValidation("quantity for product %s must be at least 1", it.ProductID)
		}
		p, err := uc.products.Get(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, newValidation("unknown product %s", it.ProductID)
			}
			return nil, fmt.Errorf("checkout: load product %s: %w", it.ProductID, err)
		}
		items = append(items, order.LineItem{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Quantity:  it.Quantity,
			UnitPrice: p.UnitPrice,
			Variation: it.Variation,
		})
		total += int64(it.Quantity) * p.UnitPrice
	}
	if total != cmd.Amount {
		return nil, newValidation("amount %d does not match order total %d", cmd.Amount, total)
	}
	return items, nil
}

func (uc *Orchestrator) initiateCashIn(ctx context.Context, phone string, amount int64) (string, error) {
	start := time.Now()
	ref, err := uc.gateway.InitiateCashIn(ctx, phone, amount)
	uc.recordExternal(endpointCashIn, start, err)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGateway, err)
	}
	return ref, nil
}

// awaitConfirmation polls the gateway until a transaction confirming ref
// appears or the window elapses. A nil transaction with nil error means
// timeout. Lookup misses and transient gateway errors are normal "not yet"
// signals, never failures.
func (uc *Orchestrator) awaitConfirmation(ctx context.Context, ref string) (*payment.Transaction, error) {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("tx_ref", ref))

	deadline := time.Now().Add(uc.pollTimeout)
	ticker := time.NewTicker(uc.pollInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		tx, err := uc.gateway.FindByReference(ctx, ref)
		uc.recordExternal(endpointEvents, start, err)

		switch {
		case err == nil && tx.Confirms(ref):
			return tx, nil
		case err != nil && !errors.Is(err, payment.ErrTransactionNotFound):
			logger.Warn("transaction_lookup_failed", observability.F("error", err.Error()))
		}

		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// confirmAndReconcile is the shared tail of the polling and webhook paths:
// pending status, persisted payment details, then per-item stock decrements.
// The status write is a compare-and-swap, so when the polling loop and a
// webhook callback both see the confirmed transaction, only the winner
// reconciles stock and emits events; the loser gets ErrAlreadyConfirmed.
func (uc *Orchestrator) confirmAndReconcile(ctx context.Context, o *order.Order, tx *payment.Transaction) ([]ItemResult, error) {
	from := o.Status
	if err := o.ConfirmPayment(tx); err != nil {
		return nil, fmt.Errorf("checkout: confirm payment: %w", err)
	}
	if err := uc.orders.Update(ctx, o, from); err != nil {
		if errors.Is(err, order.ErrConflict) {
			return nil, ErrAlreadyConfirmed
		}
		return nil, fmt.Errorf("checkout: persist confirmation: %w", err)
	}

	results := uc.reconcileInventory(ctx, o)
	gaps := uc.reportGaps(ctx, o, results)

	uc.publish(ctx, order.NewCheckoutConfirmedEvent(o, gaps))
	uc.notifyConfirmed(ctx, o)
	return results, nil
}

func (uc *Orchestrator) recordExternal(endpoint string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		if errors.Is(err, payment.ErrTransactionNotFound) {
			outcome = "miss"
		}
	}
	uc.extCounter.Add(1,
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	uc.extHist.Observe(time.Since(start).Seconds(),
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", endpoint),
	)
}

func (uc *Orchestrator) publish(ctx context.Context, e outbox.Event) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		logctx.FromOr(ctx, uc.log).Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
}

func (uc *Orchestrator) notifyConfirmed(ctx context.Context, o *order.Order) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.PaymentConfirmed(ctx, o); err != nil {
		logctx.FromOr(ctx, uc.log).Warn("notify_failed",
			observability.F("order_id", o.ID),
			observability.F("error", err.Error()),
		)
	}
}

func (uc *Orchestrator) notifyTimedOut(ctx context.Context, o *order.Order) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.PaymentTimedOut(ctx, o); err != nil {
		logctx.FromOr(ctx, uc.log).Warn("notify_failed",
			observability.F("order_id", o.ID),
			observability.F("error", err.Error()),
		)
	}
}
