package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/payments"
)

func newTestCheckoutService(t *testing.T, store *memStore, gw *scriptedGateway) CheckoutService {
	t.Helper()
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Orders:   newTestOrderService(t, store, nil),
		Payments: newTestPaymentService(t, store, gw, nil),
		Clock:    fixedClock,
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	return svc
}

func TestCheckoutServiceRequiresCollaborators(t *testing.T) {
	if _, err := NewCheckoutService(CheckoutServiceDeps{}); err == nil {
		t.Fatalf("expected missing services to be rejected")
	}
}

func TestCheckoutWithoutPaymentMethodOnlyCreatesOrder(t *testing.T) {
	store := newMemStore(catalog()...)
	gw := newScriptedGateway()
	svc := newTestCheckoutService(t, store, gw)

	res, err := svc.Checkout(context.Background(), CheckoutCommand{Order: validOrderCommand()})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Payment != nil || res.Order.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected result %+v", res)
	}
	if create, _ := gw.calls(); create != 0 {
		t.Fatalf("gateway must not be called")
	}
}

func TestCheckoutPaysCreatedOrder(t *testing.T) {
	store := newMemStore(catalog()...)
	gw := newScriptedGateway()
	gw.create = payments.Ok(payments.GatewayTransaction{ID: "ext-1", Status: "APPROVED"})
	svc := newTestCheckoutService(t, store, gw)

	cmd := CheckoutCommand{Order: validOrderCommand()}
	cmd.Order.PaymentMethod = &PaymentMethodInput{Type: "CARD", Token: "tok_test"}
	res, err := svc.Checkout(context.Background(), cmd)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Payment == nil || !res.Payment.Success {
		t.Fatalf("expected successful payment, got %+v", res.Payment)
	}
	if res.Order.Status != domain.OrderStatusApproved {
		t.Fatalf("expected approved order, got %s", res.Order.Status)
	}
	if store.stock("p1") != 3 {
		t.Fatalf("expected stock decremented, got %d", store.stock("p1"))
	}
}

func TestCheckoutKeepsOrderWhenPaymentFails(t *testing.T) {
	store := newMemStore(catalog()...)
	gw := newScriptedGateway()
	gw.create = payments.Fail[payments.GatewayTransaction](payments.ErrorKindHTTP, "declined by issuer")
	svc := newTestCheckoutService(t, store, gw)

	cmd := CheckoutCommand{Order: validOrderCommand()}
	cmd.Order.PaymentMethod = &PaymentMethodInput{Type: "CARD", Token: "tok_test"}
	res, err := svc.Checkout(context.Background(), cmd)
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected payment failure, got %v", err)
	}
	if res.Order.Reference == "" || res.Order.Status != domain.OrderStatusError {
		t.Fatalf("expected order in error to be returned, got %+v", res.Order)
	}
	if store.order(res.Order.Reference).ID == "" {
		t.Fatalf("order must survive a failed payment")
	}
}

func TestCheckoutRejectsInvalidPaymentMethodBeforeCreatingOrder(t *testing.T) {
	store := newMemStore(catalog()...)
	svc := newTestCheckoutService(t, store, newScriptedGateway())

	cmd := CheckoutCommand{Order: validOrderCommand()}
	cmd.Order.PaymentMethod = &PaymentMethodInput{Type: "BITCOIN"}
	if _, err := svc.Checkout(context.Background(), cmd); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(store.orders) != 0 {
		t.Fatalf("no order should be created")
	}
}
