package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/httpx"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

// AdminHandlers exposes back-office order lookups. Authentication is applied by the router group.
type AdminHandlers struct {
	orders services.OrderService
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(orders services.OrderService) *AdminHandlers {
	return &AdminHandlers{orders: orders}
}

// Routes registers GET /orders/{reference}.
func (h *AdminHandlers) Routes(r chi.Router) {
	r.Get("/orders/{reference}", h.getOrder)
}

type adminOrderResponse struct {
	Order       orderView        `json:"order"`
	Customer    *customerView    `json:"customer,omitempty"`
	Delivery    *deliveryView    `json:"delivery,omitempty"`
	Transaction *transactionView `json:"transaction,omitempty"`
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	details, err := h.orders.GetOrderDetails(ctx, strings.TrimSpace(chi.URLParam(r, "reference")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := adminOrderResponse{Order: newOrderView(details.Order)}
	if c := details.Customer; c != nil {
		resp.Customer = &customerView{ID: c.ID, Email: c.Email, FullName: c.FullName, Phone: c.Phone}
	}
	if d := details.Delivery; d != nil {
		view := deliveryView{
			ID:         d.ID,
			Address:    d.Address,
			City:       d.City,
			Region:     d.Region,
			PostalCode: d.PostalCode,
			Country:    d.Country,
			Status:     string(d.Status),
		}
		if d.EstimatedDeliveryDate != nil {
			view.EstimatedDeliveryDate = formatTime(*d.EstimatedDeliveryDate)
		}
		resp.Delivery = &view
	}
	if t := details.Transaction; t != nil {
		view := newTransactionView(*t)
		resp.Transaction = &view
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
