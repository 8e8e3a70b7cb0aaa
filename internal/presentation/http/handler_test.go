package httppresentation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcheckout "github.com/soko-labs/soko-checkout/internal/application/checkout"
	"github.com/soko-labs/soko-checkout/internal/domain/catalog"
	"github.com/soko-labs/soko-checkout/internal/domain/payment"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/id"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/memory"
)

type stubGateway struct {
	mu sync.Mutex
	tx *payment.Transaction
}

func (g *stubGateway) InitiateCashIn(ctx context.Context, phone string, amount int64) (string, error) {
	return "tx-100", nil
}

func (g *stubGateway) FindByReference(ctx context.Context, ref string) (*payment.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tx == nil {
		return nil, payment.ErrTransactionNotFound
	}
	return g.tx, nil
}

func (g *stubGateway) settle(tx *payment.Transaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tx = tx
}

type api struct {
	server  *httptest.Server
	orders  *memory.OrderStore
	gateway *stubGateway
}

func newAPI(t *testing.T) *api {
	t.Helper()

	orders := memory.NewOrderStore()
	products := memory.NewProductStore()
	require.NoError(t, products.Save(context.Background(), &catalog.Product{
		ID: "p1", SellerID: "s1", Name: "kettle", UnitPrice: 2500, StockQuantity: 10,
	}))

	gw := &stubGateway{}
	uc := appcheckout.NewOrchestrator(
		orders, products, gw, &id.UUIDGenerator{}, nil, nil,
		appcheckout.WithPolling(5*time.Millisecond, 40*time.Millisecond),
		appcheckout.WithDedup(memory.NewDedupStore()),
	)

	h := NewHandler(uc, orders, nil, nil, nil)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	return &api{server: srv, orders: orders, gateway: gw}
}

func (a *api) post(t *testing.T, path, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON(t, req)
}

func (a *api) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.server.URL+path, nil)
	require.NoError(t, err)
	return doJSON(t, req)
}

func doJSON(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

const checkoutBody = `{
	"phoneNumber": "0780000000",
	"amount": 5000,
	"items": [{"product": "p1", "quantity": 2}],
	"shippingAddress": "12 Market St",
	"deliveryPreference": "pickup"
}`

var asCustomer = map[string]string{"X-Customer-ID": "cust-1"}

func TestCheckoutEndpointSuccess(t *testing.T) {
	a := newAPI(t)
	a.gateway.settle(&payment.Transaction{Ref: "tx-100", Status: payment.StatusSuccessful, Amount: 5000, Payer: "0780000000"})

	resp, body := a.post(t, "/checkout", checkoutBody, asCustomer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success","data":{"message":"payment was successful"}}`, string(raw))
}

func TestCheckoutEndpointTimeout(t *testing.T) {
	a := newAPI(t)

	resp, body := a.post(t, "/checkout", checkoutBody, asCustomer)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "fail", body["status"])
	assert.Equal(t, "Payment not completed.", body["message"])

	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	orderID, _ := data["orderId"].(string)
	require.NotEmpty(t, orderID, "the timeout response names the order for follow-up polling")

	// The order is pollable and still awaiting payment.
	resp, body = a.get(t, "/orders/"+orderID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	snap, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, orderID, snap["orderId"])
	assert.Equal(t, "awaits_payment", snap["status"])
}

func TestCheckoutEndpointRequiresCustomer(t *testing.T) {
	a := newAPI(t)

	resp, body := a.post(t, "/checkout", checkoutBody, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "fail", body["status"])
	assert.Equal(t, "authentication required", body["message"])
}

func TestCheckoutEndpointRejectsMalformedBody(t *testing.T) {
	a := newAPI(t)

	resp, body := a.post(t, "/checkout", `{"phoneNumber": `, asCustomer)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request body", body["message"])

	resp, body = a.post(t, "/checkout", `{"unknownField": true}`, asCustomer)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request body", body["message"])
}

func TestCheckoutEndpointValidationFailure(t *testing.T) {
	a := newAPI(t)

	wrongAmount := strings.Replace(checkoutBody, "5000", "4000", 1)
	resp, body := a.post(t, "/checkout", wrongAmount, asCustomer)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "fail", body["status"])
	assert.Contains(t, body["message"], "does not match order total")
}

func TestWebhookEndpointConfirmsLatePayment(t *testing.T) {
	a := newAPI(t)

	_, body := a.post(t, "/checkout", checkoutBody, asCustomer)
	data := body["data"].(map[string]any)
	orderID := data["orderId"].(string)

	a.gateway.settle(&payment.Transaction{Ref: "tx-100", Status: payment.StatusSuccessful, Amount: 5000, Payer: "0780000000"})

	resp, body := a.post(t, "/checkout/webhook", `{"ref":"tx-100"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, orderID, body["data"].(map[string]any)["orderId"])

	resp, body = a.get(t, "/orders/"+orderID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["data"].(map[string]any)["status"])

	// Replayed callbacks are acknowledged without side effects.
	resp, body = a.post(t, "/checkout/webhook", `{"ref":"tx-100"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "already processed", body["message"])
}

func TestWebhookEndpointUnknownReference(t *testing.T) {
	a := newAPI(t)

	resp, body := a.post(t, "/checkout/webhook", `{"ref":"tx-none"}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "order not found", body["message"])
}

func TestOrderStatusEndpointNotFound(t *testing.T) {
	a := newAPI(t)

	resp, body := a.get(t, fmt.Sprintf("/orders/%s", "missing-id"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "order not found", body["message"])
}
