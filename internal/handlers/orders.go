package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/httpx"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

// OrderHandlers serves quoting, order creation and order lookup for storefront clients.
type OrderHandlers struct {
	checkout    services.CheckoutService
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// OrderOption customises OrderHandlers.
type OrderOption func(*OrderHandlers)

// WithIdempotency guards order creation with the given Idempotency-Key middleware.
func WithIdempotency(mw func(http.Handler) http.Handler) OrderOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(checkout services.CheckoutService, orders services.OrderService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{checkout: checkout, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers /checkout/quote, /orders and /orders/{reference}.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Post("/checkout/quote", h.quote)
	create := r
	if h.idempotency != nil {
		create = r.With(h.idempotency)
	}
	create.Post("/orders", h.createOrder)
	r.Get("/orders/{reference}", h.getOrder)
}

type quoteRequest struct {
	Items []itemRequest `json:"items"`
}

type quoteResponse struct {
	Items     []orderItemView `json:"items"`
	Breakdown breakdownView   `json:"breakdown"`
	Currency  string          `json:"currency"`
}

func (h *OrderHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req quoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(ctx, w, "request body must be valid JSON")
		return
	}
	quote, err := h.orders.Quote(ctx, toItemInputs(req.Items))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, quoteResponse{
		Items:     newItemViews(quote.Items),
		Breakdown: newBreakdownView(quote.Breakdown),
		Currency:  quote.Currency,
	})
}

type createOrderResponse struct {
	Order   orderView    `json:"order"`
	Payment *paymentView `json:"payment,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(ctx, w, "request body must be valid JSON")
		return
	}

	result, err := h.checkout.Checkout(ctx, req.toCommand())
	if err != nil {
		if failed, ok := asPaymentFailed(err); ok && result.Order.ID != "" {
			// the order exists; the client retries payment by reference
			writePaymentFailed(ctx, w, failed, result.Order.Reference, result.Payment)
			return
		}
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, createOrderResponse{
		Order:   newOrderView(result.Order),
		Payment: newPaymentView(result.Payment),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	order, err := h.orders.GetOrder(ctx, reference)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderView(order))
}
