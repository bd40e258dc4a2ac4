package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/payments"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

var testCreatedAt = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

func sampleOrder(status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:            "ord_1",
		Reference:     "ORDER-1741964400-1234",
		CustomerID:    "cus_1",
		DeliveryID:    "dlv_1",
		AmountInCents: 7_140_000,
		Currency:      "COP",
		Status:        status,
		Items:         []domain.OrderItem{{ProductID: "p1", Quantity: 2, UnitPriceCents: 3_000_000}},
		Breakdown:     domain.PriceBreakdown{SubtotalCents: 6_000_000, ShippingCents: 0, TaxCents: 1_140_000, TotalCents: 7_140_000},
		CreatedAt:     testCreatedAt,
		UpdatedAt:     testCreatedAt,
	}
}

func sampleTransaction(status domain.TransactionStatus) domain.Transaction {
	return domain.Transaction{
		ID:            "txn_1",
		ExternalID:    "ext-1",
		Provider:      "wompi",
		Reference:     "ORDER-1741964400-1234",
		OrderID:       "ord_1",
		AmountInCents: 7_140_000,
		Currency:      "COP",
		Status:        status,
		CreatedAt:     testCreatedAt,
	}
}

type stubOrderService struct {
	order    domain.Order
	details  services.OrderDetails
	quote    services.Quote
	err      error
	lastRef  string
	lastItem []services.OrderItemInput
}

func (s *stubOrderService) CreateOrder(context.Context, services.CreateOrderCommand) (domain.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) GetOrder(_ context.Context, reference string) (domain.Order, error) {
	s.lastRef = reference
	return s.order, s.err
}

func (s *stubOrderService) GetOrderByID(context.Context, string) (domain.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) GetOrderDetails(_ context.Context, reference string) (services.OrderDetails, error) {
	s.lastRef = reference
	return s.details, s.err
}

func (s *stubOrderService) Quote(_ context.Context, items []services.OrderItemInput) (services.Quote, error) {
	s.lastItem = items
	return s.quote, s.err
}

type stubCheckoutService struct {
	result services.CheckoutResult
	err    error
	last   services.CheckoutCommand
	calls  int
}

func (s *stubCheckoutService) Checkout(_ context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	s.calls++
	s.last = cmd
	return s.result, s.err
}

type stubPaymentService struct {
	outcome services.PaymentOutcome
	token   payments.AcceptanceToken
	err     error
	last    services.ProcessPaymentCommand
	calls   int
}

func (s *stubPaymentService) ProcessPayment(_ context.Context, cmd services.ProcessPaymentCommand) (services.PaymentOutcome, error) {
	s.calls++
	s.last = cmd
	return s.outcome, s.err
}

func (s *stubPaymentService) AcceptanceToken(context.Context, string) (payments.AcceptanceToken, error) {
	return s.token, s.err
}

type stubReconciliationService struct {
	poll      services.PollResult
	ack       services.WebhookAck
	sweep     services.ReconcileSweepResult
	err       error
	lastPoll  services.PollCommand
	pollOnce  int
	webhook   services.WebhookCommand
	lastSweep services.ReconcileSweepCommand
}

func (s *stubReconciliationService) PollTransaction(_ context.Context, cmd services.PollCommand) (services.PollResult, error) {
	s.lastPoll = cmd
	return s.poll, s.err
}

func (s *stubReconciliationService) PollOnce(_ context.Context, id string) (services.PollResult, error) {
	s.pollOnce++
	s.lastPoll = services.PollCommand{TransactionID: id, MaxAttempts: 1}
	return s.poll, s.err
}

func (s *stubReconciliationService) HandleWebhook(_ context.Context, cmd services.WebhookCommand) (services.WebhookAck, error) {
	s.webhook = cmd
	return s.ack, s.err
}

func (s *stubReconciliationService) ApplyTerminalStatus(context.Context, services.ApplyStatusCommand) (services.ApplyResult, error) {
	return services.ApplyResult{}, s.err
}

func (s *stubReconciliationService) ReconcilePending(_ context.Context, cmd services.ReconcileSweepCommand) (services.ReconcileSweepResult, error) {
	s.lastSweep = cmd
	return s.sweep, s.err
}

func serve(t *testing.T, routes func(chi.Router), method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	routes(r)
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}
