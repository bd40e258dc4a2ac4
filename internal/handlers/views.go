package handlers

import (
	"time"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

type breakdownView struct {
	SubtotalCents int64 `json:"subtotal_in_cents"`
	ShippingCents int64 `json:"shipping_in_cents"`
	TaxCents      int64 `json:"tax_in_cents"`
	TotalCents    int64 `json:"total_in_cents"`
}

type orderItemView struct {
	ProductID      string `json:"product_id"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_in_cents"`
}

type orderView struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	Status        string          `json:"status"`
	AmountInCents int64           `json:"amount_in_cents"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Items         []orderItemView `json:"items"`
	Breakdown     breakdownView   `json:"breakdown"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

type transactionView struct {
	ID                string `json:"id"`
	ExternalID        string `json:"external_id,omitempty"`
	Provider          string `json:"provider"`
	Reference         string `json:"reference"`
	Status            string `json:"status"`
	StatusMessage     string `json:"status_message,omitempty"`
	AmountInCents     int64  `json:"amount_in_cents"`
	Currency          string `json:"currency"`
	PaymentMethodType string `json:"payment_method_type,omitempty"`
	CreatedAt         string `json:"created_at"`
	FinalizedAt       string `json:"finalized_at,omitempty"`
}

type customerView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

type deliveryView struct {
	ID                    string `json:"id"`
	Address               string `json:"address"`
	City                  string `json:"city"`
	Region                string `json:"region"`
	PostalCode            string `json:"postal_code,omitempty"`
	Country               string `json:"country"`
	Status                string `json:"status"`
	EstimatedDeliveryDate string `json:"estimated_delivery_date,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func newBreakdownView(b domain.PriceBreakdown) breakdownView {
	return breakdownView{SubtotalCents: b.SubtotalCents, ShippingCents: b.ShippingCents, TaxCents: b.TaxCents, TotalCents: b.TotalCents}
}

func newItemViews(items []domain.OrderItem) []orderItemView {
	out := make([]orderItemView, 0, len(items))
	for _, item := range items {
		out = append(out, orderItemView{ProductID: item.ProductID, Quantity: item.Quantity, UnitPriceCents: item.UnitPriceCents})
	}
	return out
}

func newOrderView(o domain.Order) orderView {
	return orderView{
		ID:            o.ID,
		Reference:     o.Reference,
		Status:        string(o.Status),
		AmountInCents: o.AmountInCents,
		Currency:      o.Currency,
		PaymentMethod: o.PaymentMethod,
		TransactionID: o.TransactionID,
		Items:         newItemViews(o.Items),
		Breakdown:     newBreakdownView(o.Breakdown),
		CreatedAt:     formatTime(o.CreatedAt),
		UpdatedAt:     formatTime(o.UpdatedAt),
	}
}

func newTransactionView(t domain.Transaction) transactionView {
	view := transactionView{
		ID:                t.ID,
		ExternalID:        t.ExternalID,
		Provider:          t.Provider,
		Reference:         t.Reference,
		Status:            string(t.Status),
		StatusMessage:     t.StatusMessage,
		AmountInCents:     t.AmountInCents,
		Currency:          t.Currency,
		PaymentMethodType: t.PaymentMethodType,
		CreatedAt:         formatTime(t.CreatedAt),
	}
	if t.FinalizedAt != nil {
		view.FinalizedAt = formatTime(*t.FinalizedAt)
	}
	return view
}

type paymentView struct {
	Success     bool            `json:"success"`
	Transaction transactionView `json:"transaction"`
}

func newPaymentView(outcome *services.PaymentOutcome) *paymentView {
	if outcome == nil {
		return nil
	}
	return &paymentView{Success: outcome.Success, Transaction: newTransactionView(outcome.Transaction)}
}
