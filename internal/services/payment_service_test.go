package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/payments"
)

func newTestPaymentService(t *testing.T, store *memStore, gw *scriptedGateway, publisher EventPublisher) PaymentService {
	t.Helper()
	svc, err := NewPaymentService(PaymentServiceDeps{
		Products:     store.Products(),
		Customers:    store.Customers(),
		Deliveries:   store.Deliveries(),
		Orders:       store.Orders(),
		Transactions: store.Transactions(),
		UnitOfWork:   store,
		Gateways:     singleGateway(gw),
		Clock:        fixedClock,
		IDGenerator:  sequentialIDs(),
		Events:       publisher,
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}
	return svc
}

func cardPayment(ref string) ProcessPaymentCommand {
	return ProcessPaymentCommand{
		OrderReference: ref,
		PaymentMethod:  PaymentMethodInput{Type: "card", Token: "tok_test"},
	}
}

func TestNewPaymentServiceRequiresRepositories(t *testing.T) {
	store := newMemStore()
	_, err := NewPaymentService(PaymentServiceDeps{Customers: store.Customers(), Gateways: singleGateway(newScriptedGateway())})
	if err == nil {
		t.Fatalf("expected missing repositories to be rejected")
	}
}

func TestPaymentServiceApprovedPaymentFulfilsOrder(t *testing.T) {
	store := newMemStore(catalog()...)
	order := seedPayableOrder(store, "ORDER-1", 7_140_000, domain.OrderItem{ProductID: "p1", Quantity: 2, UnitPriceCents: 3_000_000})
	gw := newScriptedGateway()
	gw.create = payments.Ok(payments.GatewayTransaction{ID: "ext-1", Status: "APPROVED", Raw: map[string]any{"id": "ext-1"}})
	publisher := &recordingPublisher{}
	svc := newTestPaymentService(t, store, gw, publisher)

	outcome, err := svc.ProcessPayment(context.Background(), cardPayment("ORDER-1"))
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if !outcome.Success || outcome.Transaction.Status != domain.TransactionStatusApproved {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if outcome.Transaction.FinalizedAt == nil {
		t.Fatalf("terminal transaction must carry finalized time")
	}

	stored := store.order("ORDER-1")
	if stored.Status != domain.OrderStatusApproved || stored.TransactionID != outcome.Transaction.ID {
		t.Fatalf("unexpected order %+v", stored)
	}
	if stored.PaymentMethod != domain.PaymentMethodCard {
		t.Fatalf("expected payment method recorded, got %q", stored.PaymentMethod)
	}
	txn := store.txn(outcome.Transaction.ID)
	if txn.ExternalID != "ext-1" || txn.Provider != "wompi" || txn.AmountInCents != order.AmountInCents {
		t.Fatalf("unexpected stored transaction %+v", txn)
	}
	if store.stock("p1") != 3 {
		t.Fatalf("expected stock decremented to 3, got %d", store.stock("p1"))
	}
	delivery := store.delivery(order.DeliveryID)
	if delivery.Status != domain.DeliveryStatusAssigned || delivery.EstimatedDeliveryDate == nil {
		t.Fatalf("expected assigned delivery, got %+v", delivery)
	}
	if want := testNow.Add(deliveryLeadTime); !delivery.EstimatedDeliveryDate.Equal(want) {
		t.Fatalf("expected eta %s, got %s", want, delivery.EstimatedDeliveryDate)
	}

	want := []string{EventTransactionCreated, EventPaymentStatusChanged}
	if got := publisher.types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events mismatch got %v want %v", got, want)
	}
}

func TestPaymentServiceSendsSignedParams(t *testing.T) {
	store := newMemStore(catalog()...)
	seedPayableOrder(store, "ORDER-1", 4_570_000)
	gw := newScriptedGateway()
	gw.create = payments.Ok(payments.GatewayTransaction{ID: "ext-1", Status: "PENDING"})
	svc := newTestPaymentService(t, store, gw, nil)

	if _, err := svc.ProcessPayment(context.Background(), cardPayment("ORDER-1")); err != nil {
		t.Fatalf("process payment: %v", err)
	}
	p := gw.lastParams
	if p.AcceptanceToken != "acceptance" || p.AmountInCents != 4_570_000 || p.Currency != "COP" {
		t.Fatalf("unexpected params %+v", p)
	}
	if p.Signature != payments.IntegritySignature("ORDER-1", 4_570_000, "COP", "test-secret") {
		t.Fatalf("unexpected signature %s", p.Signature)
	}
	if p.CustomerEmail != "ana@example.com" || p.Shipping == nil || p.Shipping.City != "Bogota" {
		t.Fatalf("expected customer and shipping data, got %+v", p)
	}
	if p.PaymentMethod.Type != domain.PaymentMethodCard || p.PaymentMethod.Installments != 1 {
		t.Fatalf("expected normalised card method, got %+v", p.PaymentMethod)
	}
}

func TestPaymentServicePendingPaymentLeavesStock(t *testing.T) {
	store := newMemStore(catalog()...)
	order := seedPayableOrder(store, "ORDER-1", 7_140_000, domain.OrderItem{ProductID: "p1", Quantity: 2, UnitPriceCents: 3_000_000})
	gw := newScriptedGateway()
	gw.create = payments.Ok(payments.GatewayTransaction{ID: "ext-1", Status: "PENDING"})
	publisher := &recordingPublisher{}
	svc := newTestPaymentService(t, store, gw, publisher)

	outcome, err := svc.ProcessPayment(context.Background(), cardPayment("ORDER-1"))
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if outcome.Transaction.Status != domain.TransactionStatusPending || outcome.Transaction.FinalizedAt != nil {
		t.Fatalf("unexpected transaction %+v", outcome.Transaction)
	}
	if store.order("ORDER-1").Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing order")
	}
	if store.stock("p1") != 5 {
		t.Fatalf("stock must not move before approval")
	}
	if store.delivery(order.DeliveryID).Status != domain.DeliveryStatusPending {
		t.Fatalf("delivery must stay pending")
	}
	if got := publisher.types(); !reflect.DeepEqual(got, []string{EventTransactionCreated}) {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestPaymentServiceGatewayRejectionRecordsError(t *testing.T) {
	store := newMemStore(catalog()...)
	seedPayableOrder(store, "ORDER-1", 7_140_000)
	gw := newScriptedGateway()
	raw := map[string]any{"error": map[string]any{"type": "INPUT_VALIDATION_ERROR", "reason": "bad token"}}
	gw.create = payments.FailWith[payments.GatewayTransaction](&payments.GatewayError{
		Kind:       payments.ErrorKindHTTP,
		Message:    "bad token",
		StatusCode: 422,
		Raw:        raw,
	})
	svc := newTestPaymentService(t, store, gw, nil)

	outcome, err := svc.ProcessPayment(context.Background(), cardPayment("ORDER-1"))
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected payment failed error, got %v", err)
	}
	var failed *PaymentFailedError
	if !errors.As(err, &failed) || failed.StatusCode != 422 || failed.Reason != "bad token" {
		t.Fatalf("unexpected failure detail %+v", failed)
	}
	if outcome.Success {
		t.Fatalf("outcome must not be successful")
	}

	if store.order("ORDER-1").Status != domain.OrderStatusError {
		t.Fatalf("expected order in error")
	}
	txn := store.txn(outcome.Transaction.ID)
	if txn.Status != domain.TransactionStatusError || txn.ExternalID != "" {
		t.Fatalf("unexpected transaction %+v", txn)
	}
	if !reflect.DeepEqual(txn.PaymentData["response"], raw) {
		t.Fatalf("expected raw gateway body kept, got %v", txn.PaymentData)
	}
	errObj, _ := txn.PaymentData["error"].(map[string]any)
	if errObj["kind"] != string(payments.ErrorKindHTTP) || errObj["statusCode"] != 422 {
		t.Fatalf("unexpected error payload %v", errObj)
	}
}

func TestPaymentServiceAllowsRetryAfterError(t *testing.T) {
	store := newMemStore(catalog()...)
	seedPayableOrder(store, "ORDER-1", 7_140_000)
	gw := newScriptedGateway()
	gw.create = payments.Fail[payments.GatewayTransaction](payments.ErrorKindNetwork, "timeout")
	svc := newTestPaymentService(t, store, gw, nil)

	if _, err := svc.ProcessPayment(context.Background(), cardPayment("ORDER-1")); !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected first attempt to fail, got %v", err)
	}
	gw.create = payments.Ok(payments.GatewayTransaction{ID: "ext-2", Status: "DECLINED"})
	outcome, err := svc.ProcessPayment(context.Background(), cardPayment("ORDER-1"))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if outcome.Order.Status != domain.OrderStatusDeclined {
		t.Fatalf("expected declined order, got %s", outcome.Order.Status)
	}
	if len(store.txns) != 2 {
		t.Fatalf("expected one transaction per attempt, got %d", len(store.txns))
	}
}

func TestPaymentServiceRejectsFinalOrders(t *testing.T) {
	store := newMemStore(catalog()...)
	order := seedPayableOrder(store, "ORDER-1", 7_140_000)
	seedTransaction(store, order, "txn_done", "ext-done", domain.TransactionStatusApproved, testNow)
	gw := newScriptedGateway()
	svc := newTestPaymentService(t, store, gw, nil)

	_, err := svc.ProcessPayment(context.Background(), cardPayment("ORDER-1"))
	if !errors.Is(err, ErrOrderNotPayable) {
		t.Fatalf("expected not payable, got %v", err)
	}
	if create, _ := gw.calls(); create != 0 {
		t.Fatalf("gateway must not be called")
	}
}

func TestPaymentServiceValidatesRequest(t *testing.T) {
	store := newMemStore(catalog()...)
	seedPayableOrder(store, "ORDER-1", 7_140_000)
	gw := newScriptedGateway()
	svc := newTestPaymentService(t, store, gw, nil)

	_, err := svc.ProcessPayment(context.Background(), ProcessPaymentCommand{
		PaymentMethod: PaymentMethodInput{Type: "NEQUI"},
	})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !reflect.DeepEqual(validationErr.Fields, []string{"payment_method", "reference"}) {
		t.Fatalf("unexpected fields %v", validationErr.Fields)
	}

	cmd := cardPayment("ORDER-1")
	cmd.Provider = "paypal"
	if _, err := svc.ProcessPayment(context.Background(), cmd); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unknown provider to be a validation error, got %v", err)
	}
	if _, err := svc.ProcessPayment(context.Background(), cardPayment("ORDER-404")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if create, _ := gw.calls(); create != 0 {
		t.Fatalf("gateway must not be called for invalid requests")
	}
	if store.order("ORDER-1").Status != domain.OrderStatusPending {
		t.Fatalf("invalid requests must not touch the order")
	}
}

func TestPaymentServiceAcceptanceFailureIsUnavailable(t *testing.T) {
	store := newMemStore(catalog()...)
	seedPayableOrder(store, "ORDER-1", 7_140_000)
	gw := newScriptedGateway()
	gw.token = payments.Fail[payments.AcceptanceToken](payments.ErrorKindNetwork, "dial tcp: refused")
	svc := newTestPaymentService(t, store, gw, nil)

	_, err := svc.ProcessPayment(context.Background(), cardPayment("ORDER-1"))
	if !errors.Is(err, ErrPaymentUnavailable) {
		t.Fatalf("expected payment unavailable, got %v", err)
	}
	if len(store.txns) != 0 {
		t.Fatalf("no transaction should be recorded")
	}
	if store.order("ORDER-1").Status != domain.OrderStatusPending {
		t.Fatalf("order must stay pending")
	}

	if _, err := svc.AcceptanceToken(context.Background(), ""); !errors.Is(err, ErrPaymentUnavailable) {
		t.Fatalf("expected acceptance token lookup to be unavailable, got %v", err)
	}
}

// gatedGateway holds each CreateTransaction call until the test releases it, so two attempts can
// both pass the payable check before either is recorded.
type gatedGateway struct {
	*scriptedGateway
	arrived chan int
	release []chan struct{}
	results []payments.Result[payments.GatewayTransaction]

	mu sync.Mutex
	n  int
}

func newGatedGateway(results ...payments.Result[payments.GatewayTransaction]) *gatedGateway {
	g := &gatedGateway{scriptedGateway: newScriptedGateway(), arrived: make(chan int, len(results)), results: results}
	for range results {
		g.release = append(g.release, make(chan struct{}))
	}
	return g
}

func (g *gatedGateway) CreateTransaction(_ context.Context, _ payments.CreateTransactionParams) payments.Result[payments.GatewayTransaction] {
	g.mu.Lock()
	idx := g.n
	g.n++
	g.mu.Unlock()
	g.arrived <- idx
	<-g.release[idx]
	return g.results[idx]
}

func TestPaymentServiceConcurrentAttemptsKeepApproval(t *testing.T) {
	approved := payments.Ok(payments.GatewayTransaction{ID: "ext-ok", Status: "APPROVED"})
	declined := payments.Ok(payments.GatewayTransaction{ID: "ext-no", Status: "DECLINED"})

	// Both attempts reach the gateway; the second call is answered and recorded first.
	cases := []struct {
		name    string
		results []payments.Result[payments.GatewayTransaction]
	}{
		{name: "approval recorded first", results: []payments.Result[payments.GatewayTransaction]{declined, approved}},
		{name: "decline recorded first", results: []payments.Result[payments.GatewayTransaction]{approved, declined}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore(catalog()...)
			order := seedPayableOrder(store, "ORDER-R", 7_140_000, domain.OrderItem{ProductID: "p1", Quantity: 2, UnitPriceCents: 3_000_000})
			gw := newGatedGateway(tc.results...)
			svc, err := NewPaymentService(PaymentServiceDeps{
				Products:     store.Products(),
				Customers:    store.Customers(),
				Deliveries:   store.Deliveries(),
				Orders:       store.Orders(),
				Transactions: store.Transactions(),
				UnitOfWork:   store,
				Gateways:     singleGateway(gw),
				Clock:        fixedClock,
				IDGenerator:  sequentialIDs(),
			})
			if err != nil {
				t.Fatalf("new payment service: %v", err)
			}

			done := make([]chan error, 2)
			for i := range done {
				done[i] = make(chan error, 1)
				go func(ch chan error) {
					_, err := svc.ProcessPayment(context.Background(), cardPayment("ORDER-R"))
					ch <- err
				}(done[i])
				<-gw.arrived
			}

			for _, idx := range []int{1, 0} {
				close(gw.release[idx])
				if err := <-done[idx]; err != nil {
					t.Fatalf("attempt %d: %v", idx, err)
				}
			}

			stored := store.order("ORDER-R")
			if stored.Status != domain.OrderStatusApproved {
				t.Fatalf("expected approved order, got %s", stored.Status)
			}
			owner := store.txn(stored.TransactionID)
			if owner.Status != domain.TransactionStatusApproved || owner.ExternalID != "ext-ok" {
				t.Fatalf("order must point at the approved transaction, got %+v", owner)
			}
			if len(store.txns) != 2 {
				t.Fatalf("expected both attempts persisted, got %d", len(store.txns))
			}
			if decrements, updates := store.counts(); decrements != 1 || updates != 1 {
				t.Fatalf("expected one fulfilment, got decrements=%d delivery updates=%d", decrements, updates)
			}
			if store.stock("p1") != 3 {
				t.Fatalf("expected stock 3, got %d", store.stock("p1"))
			}
			if d := store.delivery(order.DeliveryID); d.Status != domain.DeliveryStatusAssigned {
				t.Fatalf("expected assigned delivery, got %s", d.Status)
			}
		})
	}
}

func TestPaymentServiceUnknownGatewayStatusLeavesOrderPending(t *testing.T) {
	store := newMemStore(catalog()...)
	seedPayableOrder(store, "ORDER-1", 7_140_000)
	gw := newScriptedGateway()
	gw.create = payments.Ok(payments.GatewayTransaction{ID: "ext-1", Status: "IN_REVIEW"})
	svc := newTestPaymentService(t, store, gw, nil)

	outcome, err := svc.ProcessPayment(context.Background(), cardPayment("ORDER-1"))
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if outcome.Transaction.Status != domain.TransactionStatusPending {
		t.Fatalf("expected pending transaction, got %s", outcome.Transaction.Status)
	}
	if got := store.order("ORDER-1").Status; got != domain.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", got)
	}
}

func TestPaymentServiceUsesTransactionIDAsIdempotencyKey(t *testing.T) {
	store := newMemStore(catalog()...)
	seedPayableOrder(store, "ORDER-1", 7_140_000)
	gw := newScriptedGateway()
	gw.create = payments.Fail[payments.GatewayTransaction](payments.ErrorKindNetwork, "timeout")
	svc := newTestPaymentService(t, store, gw, nil)

	first, _ := svc.ProcessPayment(context.Background(), cardPayment("ORDER-1"))
	firstKey := gw.lastParams.IdempotencyKey
	second, _ := svc.ProcessPayment(context.Background(), cardPayment("ORDER-1"))
	secondKey := gw.lastParams.IdempotencyKey

	if firstKey != first.Transaction.ID || secondKey != second.Transaction.ID {
		t.Fatalf("keys %q %q must match transaction ids %q %q", firstKey, secondKey, first.Transaction.ID, second.Transaction.ID)
	}
	if firstKey == secondKey {
		t.Fatalf("retries must not reuse the idempotency key %q", firstKey)
	}
}
