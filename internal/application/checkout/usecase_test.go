package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soko-labs/soko-checkout/internal/domain/catalog"
	"github.com/soko-labs/soko-checkout/internal/domain/order"
	"github.com/soko-labs/soko-checkout/internal/domain/outbox"
	"github.com/soko-labs/soko-checkout/internal/domain/payment"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/memory"
)

// fakeGateway confirms the cash-in after confirmAfter lookups. With tx nil
// it never confirms and every lookup is a miss.
type fakeGateway struct {
	mu           sync.Mutex
	ref          string
	initErr      error
	initCalls    int
	lookups      int
	confirmAfter int
	tx           *payment.Transaction
}

func (g *fakeGateway) InitiateCashIn(ctx context.Context, phone string, amount int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++
	if g.initErr != nil {
		return "", g.initErr
	}
	return g.ref, nil
}

func (g *fakeGateway) FindByReference(ctx context.Context, ref string) (*payment.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups++
	if g.tx == nil || g.lookups < g.confirmAfter {
		return nil, payment.ErrTransactionNotFound
	}
	return g.tx, nil
}

func (g *fakeGateway) settle(tx *payment.Transaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tx = tx
	g.confirmAfter = 0
}

func (g *fakeGateway) initiations() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initCalls
}

type capturingBus struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (b *capturingBus) Publish(ctx context.Context, e outbox.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *capturingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.EventName())
	}
	return out
}

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed int
	timedOut  int
}

func (n *recordingNotifier) PaymentConfirmed(ctx context.Context, o *order.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed++
	return nil
}

func (n *recordingNotifier) PaymentTimedOut(ctx context.Context, o *order.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.timedOut++
	return nil
}

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("order-%d", s.n)
}

type env struct {
	orders   *memory.OrderStore
	products *memory.ProductStore
	gateway  *fakeGateway
	bus      *capturingBus
	notifier *recordingNotifier
	uc       *Orchestrator
}

func newEnv(t *testing.T, seed ...*catalog.Product) *env {
	t.Helper()

	e := &env{
		orders:   memory.NewOrderStore(),
		products: memory.NewProductStore(),
		gateway:  &fakeGateway{ref: "tx-001"},
		bus:      &capturingBus{},
		notifier: &recordingNotifier{},
	}
	for _, p := range seed {
		require.NoError(t, e.products.Save(context.Background(), p))
	}
	e.uc = NewOrchestrator(
		e.orders, e.products, e.gateway, &seqIDs{}, e.bus, nil,
		WithPolling(5*time.Millisecond, 50*time.Millisecond),
		WithNotifier(e.notifier),
		WithDedup(memory.NewDedupStore()),
	)
	return e
}

func plainProduct(id string, price int64, stock int) *catalog.Product {
	return &catalog.Product{ID: id, SellerID: "seller-1", Name: "item " + id, UnitPrice: price, StockQuantity: stock}
}

func baseInput() Input {
	return Input{
		CustomerID:         "cust-1",
		PhoneNumber:        "0780000000",
		Amount:             5000,
		Items:              []ItemInput{{ProductID: "p1", Quantity: 2}},
		ShippingAddress:    "12 Market St",
		DeliveryPreference: "pickup",
	}
}

func TestCheckoutConfirmsAndDecrementsStock(t *testing.T) {
	e := newEnv(t, plainProduct("p1", 2500, 10))
	e.gateway.tx = &payment.Transaction{Ref: "tx-001", Status: payment.StatusSuccessful, Amount: 5000, Payer: "0780000000"}
	e.gateway.confirmAfter = 3

	res, err := e.uc.Checkout(context.Background(), baseInput())
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, res.Status)
	require.Len(t, res.Reconciliation, 1)
	assert.NoError(t, res.Reconciliation[0].Err)
	assert.Equal(t, 8, res.Reconciliation[0].Remaining)

	stored, err := e.orders.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, stored.Status)
	assert.Equal(t, "tx-001", stored.TxRef)
	require.NotNil(t, stored.PaymentDetails)
	assert.Equal(t, int64(5000), stored.PaymentDetails.Amount)
	assert.Equal(t, "0780000000", stored.PaymentDetails.Payer)

	p, err := e.products.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 8, p.StockQuantity)

	assert.Equal(t, []string{"checkout.confirmed"}, e.bus.names())
	assert.Equal(t, 1, e.notifier.confirmed)
	assert.Zero(t, e.notifier.timedOut)
}

func TestCheckoutDecrementsSelectedVariant(t *testing.T) {
	p := plainProduct("p1", 5000, 10)
	p.Variations = []catalog.Variation{
		{Color: "red", Size: "M", Quantity: 3},
		{Color: "blue", Size: "M", Quantity: 4},
	}
	e := newEnv(t, p)
	e.gateway.settle(&payment.Transaction{Ref: "tx-001", Status: payment.StatusSuccessful, Amount: 5000})

	in := baseInput()
	in.Items = []ItemInput{{ProductID: "p1", Quantity: 1, Variation: catalog.Selector{Color: "red", Size: "M"}}}

	res, err := e.uc.Checkout(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, res.Status)

	got, err := e.products.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Variations[0].Quantity)
	assert.Equal(t, 4, got.Variations[1].Quantity)
	assert.Equal(t, 9, got.StockQuantity)
}

func TestCheckoutSucceedsWithReconciliationGap(t *testing.T) {
	e := newEnv(t, plainProduct("p1", 2000, 5), plainProduct("p2", 1000, 0))
	e.gateway.settle(&payment.Transaction{Ref: "tx-001", Status: payment.StatusSuccessful, Amount: 5000})

	in := baseInput()
	in.Items = []ItemInput{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
	}

	res, err := e.uc.Checkout(context.Background(), in)
	require.NoError(t, err, "a failed decrement never fails the checkout")
	assert.Equal(t, order.StatusPending, res.Status)

	require.Len(t, res.Reconciliation, 2)
	assert.NoError(t, res.Reconciliation[0].Err)
	assert.Equal(t, 3, res.Reconciliation[0].Remaining)
	assert.ErrorIs(t, res.Reconciliation[1].Err, catalog.ErrInsufficientStock)

	names := e.bus.names()
	assert.Contains(t, names, "checkout.reconciliation_gap")
	assert.Contains(t, names, "checkout.confirmed")
	for _, ev := range e.bus.events {
		if c, ok := ev.(order.CheckoutConfirmedEvent); ok {
			assert.Equal(t, 1, c.GapCount)
		}
	}
}

func TestCheckoutTimesOutAndKeepsAwaitingPayment(t *testing.T) {
	e := newEnv(t, plainProduct("p1", 2500, 10))

	start := time.Now()
	res, err := e.uc.Checkout(context.Background(), baseInput())
	elapsed := time.Since(start)

	assert.Nil(t, res)
	var timeout *PaymentTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "order-1", timeout.OrderID)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond, "the full window is waited out")

	stored, gerr := e.orders.Get(context.Background(), "order-1")
	require.NoError(t, gerr)
	assert.Equal(t, order.StatusAwaitsPayment, stored.Status)
	assert.Nil(t, stored.PaymentDetails)

	p, perr := e.products.Get(context.Background(), "p1")
	require.NoError(t, perr)
	assert.Equal(t, 10, p.StockQuantity, "stock is untouched until payment confirms")

	assert.Equal(t, []string{"checkout.timed_out"}, e.bus.names())
	assert.Equal(t, 1, e.notifier.timedOut)
	assert.Zero(t, e.notifier.confirmed)
}

func TestCheckoutIgnoresSuccessfulTransactionWithOtherReference(t *testing.T) {
	e := newEnv(t, plainProduct("p1", 2500, 10))
	// Successful, but for someone else's cash-in.
	e.gateway.settle(&payment.Transaction{Ref: "tx-999", Status: payment.StatusSuccessful, Amount: 5000})

	_, err := e.uc.Checkout(context.Background(), baseInput())
	var timeout *PaymentTimeoutError
	require.ErrorAs(t, err, &timeout)

	stored, gerr := e.orders.Get(context.Background(), timeout.OrderID)
	require.NoError(t, gerr)
	assert.Equal(t, order.StatusAwaitsPayment, stored.Status)
}

func TestCheckoutValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"missing customer", func(in *Input) { in.CustomerID = "" }},
		{"bad phone", func(in *Input) { in.PhoneNumber = "not-a-phone" }},
		{"zero amount", func(in *Input) { in.Amount = 0 }},
		{"no items", func(in *Input) { in.Items = nil }},
		{"zero quantity", func(in *Input) { in.Items[0].Quantity = 0 }},
		{"unknown product", func(in *Input) { in.Items[0].ProductID = "ghost" }},
		{"amount mismatch", func(in *Input) { in.Amount = 4999 }},
		{"missing address", func(in *Input) { in.ShippingAddress = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, plainProduct("p1", 2500, 10))
			in := baseInput()
			tt.mutate(&in)

			_, err := e.uc.Checkout(context.Background(), in)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Zero(t, e.gateway.initiations(), "no money moves on a rejected request")
		})
	}
}

func TestCheckoutGatewayRejection(t *testing.T) {
	e := newEnv(t, plainProduct("p1", 2500, 10))
	e.gateway.initErr = errors.New("insufficient wallet balance")

	_, err := e.uc.Checkout(context.Background(), baseInput())
	assert.ErrorIs(t, err, ErrGateway)

	_, gerr := e.orders.Get(context.Background(), "order-1")
	assert.ErrorIs(t, gerr, order.ErrNotFound, "nothing persisted when the cash-in is refused")
}

func TestCheckoutStopsOnCanceledContext(t *testing.T) {
	e := newEnv(t, plainProduct("p1", 2500, 10))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := e.uc.Checkout(ctx, baseInput())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWebhookConfirmsAfterTimeout(t *testing.T) {
	e := newEnv(t, plainProduct("p1", 2500, 10))

	_, err := e.uc.Checkout(context.Background(), baseInput())
	var timeout *PaymentTimeoutError
	require.ErrorAs(t, err, &timeout)

	// The money arrives late; the gateway callback carries the reference.
	e.gateway.settle(&payment.Transaction{Ref: "tx-001", Status: payment.StatusSuccessful, Amount: 5000, Payer: "0780000000"})

	res, werr := e.uc.ConfirmByReference(context.Background(), "tx-001")
	require.NoError(t, werr)
	assert.Equal(t, timeout.OrderID, res.OrderID)
	assert.Equal(t, order.StatusPending, res.Status)

	p, perr := e.products.Get(context.Background(), "p1")
	require.NoError(t, perr)
	assert.Equal(t, 8, p.StockQuantity)

	_, replay := e.uc.ConfirmByReference(context.Background(), "tx-001")
	assert.ErrorIs(t, replay, ErrAlreadyConfirmed)
}

func TestWebhookDuringPollingDecrementsOnce(t *testing.T) {
	e := newEnv(t, plainProduct("p1", 2500, 10))
	uc := NewOrchestrator(
		e.orders, e.products, e.gateway, &seqIDs{}, e.bus, nil,
		WithPolling(5*time.Millisecond, time.Second),
		WithNotifier(e.notifier),
		WithDedup(memory.NewDedupStore()),
	)

	var (
		res  *Result
		cerr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, cerr = uc.Checkout(context.Background(), baseInput())
	}()

	require.Eventually(t, func() bool {
		_, ferr := e.orders.FindByTxRef(context.Background(), "tx-001")
		return ferr == nil
	}, time.Second, time.Millisecond, "order was never persisted")

	// The callback lands while the synchronous loop is still polling, so
	// both paths see the confirmed transaction for the same order.
	e.gateway.settle(&payment.Transaction{Ref: "tx-001", Status: payment.StatusSuccessful, Amount: 5000, Payer: "0780000000"})
	wres, werr := uc.ConfirmByReference(context.Background(), "tx-001")
	<-done

	require.NoError(t, cerr)
	assert.Equal(t, order.StatusPending, res.Status)
	if werr != nil {
		assert.ErrorIs(t, werr, ErrAlreadyConfirmed)
	} else {
		assert.Equal(t, order.StatusPending, wres.Status)
	}

	p, perr := e.products.Get(context.Background(), "p1")
	require.NoError(t, perr)
	assert.Equal(t, 8, p.StockQuantity, "one paid order decrements stock exactly once")

	confirmed := 0
	for _, name := range e.bus.names() {
		if name == "checkout.confirmed" {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed, "only the transition winner emits the confirmed event")
	assert.Equal(t, 1, e.notifier.confirmed)
}

func TestWebhookRetrySucceedsAfterPrematureCallback(t *testing.T) {
	e := newEnv(t, plainProduct("p1", 2500, 10))

	_, err := e.uc.Checkout(context.Background(), baseInput())
	var timeout *PaymentTimeoutError
	require.ErrorAs(t, err, &timeout)

	// The first callback fires before the cash-in settles.
	e.gateway.settle(&payment.Transaction{Ref: "tx-001", Status: "pending", Amount: 5000})
	_, werr := e.uc.ConfirmByReference(context.Background(), "tx-001")
	require.ErrorIs(t, werr, payment.ErrNotConfirmed)

	// The money lands and the gateway retries; the retry must not be
	// treated as a replay of the premature callback.
	e.gateway.settle(&payment.Transaction{Ref: "tx-001", Status: payment.StatusSuccessful, Amount: 5000, Payer: "0780000000"})
	res, werr := e.uc.ConfirmByReference(context.Background(), "tx-001")
	require.NoError(t, werr)
	assert.Equal(t, order.StatusPending, res.Status)

	p, perr := e.products.Get(context.Background(), "p1")
	require.NoError(t, perr)
	assert.Equal(t, 8, p.StockQuantity)
}

func TestWebhookRejectsUnknownReference(t *testing.T) {
	e := newEnv(t, plainProduct("p1", 2500, 10))

	_, err := e.uc.ConfirmByReference(context.Background(), "tx-unknown")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestWebhookRejectsUnconfirmedTransaction(t *testing.T) {
	e := newEnv(t, plainProduct("p1", 2500, 10))

	_, err := e.uc.Checkout(context.Background(), baseInput())
	var timeout *PaymentTimeoutError
	require.ErrorAs(t, err, &timeout)

	e.gateway.settle(&payment.Transaction{Ref: "tx-001", Status: "pending", Amount: 5000})

	_, werr := e.uc.ConfirmByReference(context.Background(), "tx-001")
	assert.ErrorIs(t, werr, payment.ErrNotConfirmed)

	stored, gerr := e.orders.Get(context.Background(), timeout.OrderID)
	require.NoError(t, gerr)
	assert.Equal(t, order.StatusAwaitsPayment, stored.Status)
}
