package httppresentation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	appcheckout "github.com/soko-labs/soko-checkout/internal/application/checkout"
	"github.com/soko-labs/soko-checkout/internal/domain/catalog"
	domainOrder "github.com/soko-labs/soko-checkout/internal/domain/order"
	"github.com/soko-labs/soko-checkout/internal/domain/payment"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/redisx"
	"github.com/soko-labs/soko-checkout/internal/observability"
)

const (
	componentHTTPHandler = "http_server"
	headerCustomerID     = "X-Customer-ID"
)

// Handler exposes the checkout API. Every response uses the
// {status, message, data?} envelope; no error escapes unmapped.
type Handler struct {
	checkout *appcheckout.Orchestrator
	orders   domainOrder.Store
	cache    *redisx.StatusCache
	log      observability.Logger
	tel      observability.Telemetry
}

func NewHandler(
	checkout *appcheckout.Orchestrator,
	orders domainOrder.Store,
	cache *redisx.StatusCache,
	logger observability.Logger,
	tel observability.Telemetry,
) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Handler{
		checkout: checkout,
		orders:   orders,
		cache:    cache,
		log:      logger.With(observability.F("component", componentHTTPHandler)),
		tel:      tel,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(ObservabilityMiddleware(h.log, h.tel))

	r.Post("/checkout", h.handleCheckout)
	r.Post("/checkout/webhook", h.handleWebhook)
	r.Get("/orders/{id}", h.handleOrderStatus)
	r.Get("/health", h.handleHealth)

	return r
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type variationRequest struct {
	Color string `json:"color"`
	Size  string `json:"size"`
}

type checkoutItemRequest struct {
	Product   string            `json:"product"`
	Quantity  int               `json:"quantity"`
	Variation *variationRequest `json:"variation"`
}

type checkoutRequest struct {
	PhoneNumber        string                `json:"phoneNumber"`
	Amount             int64                 `json:"amount"`
	Items              []checkoutItemRequest `json:"items"`
	ShippingAddress    string                `json:"shippingAddress"`
	DeliveryPreference string                `json:"deliveryPreference"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	customerID := r.Header.Get(headerCustomerID)
	if customerID == "" {
		writeJSON(w, http.StatusUnauthorized, envelope{Status: "fail", Message: "authentication required"})
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Status: "fail", Message: "invalid request body"})
		return
	}

	input := appcheckout.Input{
		CustomerID:         customerID,
		PhoneNumber:        req.PhoneNumber,
		Amount:             req.Amount,
		ShippingAddress:    req.ShippingAddress,
		DeliveryPreference: req.DeliveryPreference,
		Items:              make([]appcheckout.ItemInput, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		item := appcheckout.ItemInput{ProductID: it.Product, Quantity: it.Quantity}
		if it.Variation != nil {
			item.Variation = catalog.Selector{Color: it.Variation.Color, Size: it.Variation.Size}
		}
		input.Items = append(input.Items, item)
	}

	_, err := h.checkout.Checkout(r.Context(), input)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Status: "success",
		Data:   map[string]string{"message": "payment was successful"},
	})
}

type webhookRequest struct {
	Ref string `json:"ref"`
}

// handleWebhook accepts late gateway callbacks for cash-ins that timed out
// in the synchronous flow. Replays are acknowledged without re-processing.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Status: "fail", Message: "invalid request body"})
		return
	}

	result, err := h.checkout.ConfirmByReference(r.Context(), req.Ref)
	switch {
	case err == nil:
		if h.cache != nil {
			h.cache.Invalidate(r.Context(), result.OrderID)
		}
		writeJSON(w, http.StatusOK, envelope{
			Status: "success",
			Data:   map[string]string{"orderId": result.OrderID},
		})
	case errors.Is(err, appcheckout.ErrAlreadyConfirmed):
		writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "already processed"})
	case errors.Is(err, appcheckout.ErrValidation), errors.Is(err, payment.ErrNotConfirmed):
		writeJSON(w, http.StatusBadRequest, envelope{Status: "fail", Message: err.Error()})
	case errors.Is(err, domainOrder.ErrNotFound):
		writeJSON(w, http.StatusNotFound, envelope{Status: "fail", Message: "order not found"})
	default:
		writeJSON(w, http.StatusInternalServerError, envelope{Status: "fail", Message: err.Error()})
	}
}

// handleOrderStatus supports client-side polling after a payment timeout.
func (h *Handler) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Status: "fail", Message: "order id is required"})
		return
	}

	if snap, ok := h.cache.Get(r.Context(), orderID); ok {
		writeJSON(w, http.StatusOK, envelope{Status: "success", Data: snap})
		return
	}

	o, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, domainOrder.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, envelope{Status: "fail", Message: "order not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, envelope{Status: "fail", Message: err.Error()})
		return
	}

	snap := redisx.StatusSnapshot{OrderID: o.ID, Status: string(o.Status)}
	h.cache.Set(r.Context(), snap)
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: snap})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error) {
	var timeout *appcheckout.PaymentTimeoutError
	switch {
	case errors.As(err, &timeout):
		writeJSON(w, http.StatusBadRequest, envelope{
			Status:  "fail",
			Message: "Payment not completed.",
			Data:    map[string]string{"orderId": timeout.OrderID},
		})
	case errors.Is(err, appcheckout.ErrValidation):
		writeJSON(w, http.StatusBadRequest, envelope{Status: "fail", Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, envelope{Status: "fail", Message: err.Error()})
	}
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
