package services

import (
	"context"
	"errors"
	"time"
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Orders   OrderService
	Payments PaymentService
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	orders   OrderService
	payments PaymentService
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &checkoutService{
		orders:   deps.Orders,
		payments: deps.Payments,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Checkout creates the order and, when a payment method is supplied, runs one payment attempt.
// The order survives a failed payment; the result always carries it once created so the client
// can retry payment by reference.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	started := s.now()
	order, err := s.orders.CreateOrder(ctx, cmd.Order)
	if err != nil {
		return CheckoutResult{}, err
	}
	result := CheckoutResult{Order: order}
	if cmd.Order.PaymentMethod == nil {
		return result, nil
	}

	outcome, err := s.payments.ProcessPayment(ctx, ProcessPaymentCommand{
		OrderReference: order.Reference,
		PaymentMethod:  *cmd.Order.PaymentMethod,
		Provider:       cmd.Provider,
		RedirectURL:    cmd.RedirectURL,
	})
	if outcome.Transaction.ID != "" {
		result.Order = outcome.Order
		result.Payment = &outcome
	}
	s.logger(ctx, "checkout.completed", map[string]any{
		"reference":  order.Reference,
		"paid":       err == nil,
		"durationMs": s.now().Sub(started).Milliseconds(),
	})
	return result, err
}
