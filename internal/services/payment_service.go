package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/payments"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

// GatewayResolver looks up payment gateways by name; an empty name selects the default.
type GatewayResolver interface {
	Gateway(name string) (payments.Gateway, error)
}

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Products     repositories.ProductRepository
	Customers    repositories.CustomerRepository
	Deliveries   repositories.DeliveryRepository
	Orders       repositories.OrderRepository
	Transactions repositories.TransactionRepository
	UnitOfWork   repositories.UnitOfWork
	Gateways     GatewayResolver
	Clock        func() time.Time
	IDGenerator  func() string
	Events       EventPublisher
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	customers repositories.CustomerRepository
	gateways  GatewayResolver
	applier   *statusApplier
	clock     func() time.Time
	newID     func() string
	events    eventEmitter
	logger    func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Customers == nil {
		return nil, errors.New("payment service: customer repository is required")
	}
	if deps.Gateways == nil {
		return nil, errors.New("payment service: gateway resolver is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	applier := &statusApplier{
		orders:       deps.Orders,
		deliveries:   deps.Deliveries,
		products:     deps.Products,
		transactions: deps.Transactions,
		unitOfWork:   deps.UnitOfWork,
		clock:        clock,
		logger:       logger,
	}
	if err := applier.validate(); err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	return &paymentService{
		customers: deps.Customers,
		gateways:  deps.Gateways,
		applier:   applier,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: eventEmitter{publisher: deps.Events, logger: logger},
		logger: logger,
	}, nil
}

func (s *paymentService) AcceptanceToken(ctx context.Context, provider string) (payments.AcceptanceToken, error) {
	gw, err := s.resolveGateway(provider)
	if err != nil {
		return payments.AcceptanceToken{}, err
	}
	res := gw.GetAcceptanceToken(ctx)
	if !res.Success {
		return payments.AcceptanceToken{}, fmt.Errorf("%w: %v", ErrPaymentUnavailable, res.Error)
	}
	return res.Data, nil
}

// ProcessPayment executes exactly one gateway attempt. The gateway is called outside any store
// transaction; its outcome is then recorded in a single unit of work.
func (s *paymentService) ProcessPayment(ctx context.Context, cmd ProcessPaymentCommand) (PaymentOutcome, error) {
	reference := strings.TrimSpace(cmd.OrderReference)
	method := cmd.PaymentMethod.toGateway()

	var fields fieldErrors
	if reference == "" {
		fields.add("reference")
	}
	if err := method.Validate(); err != nil {
		fields.add("payment_method")
	}
	if err := fields.err("invalid payment request"); err != nil {
		return PaymentOutcome{}, err
	}

	gw, err := s.resolveGateway(cmd.Provider)
	if err != nil {
		return PaymentOutcome{}, err
	}

	order, err := s.applier.orders.FindByReference(ctx, reference)
	if err != nil {
		return PaymentOutcome{}, mapRepositoryError(err)
	}
	if !isPayable(order.Status) {
		return PaymentOutcome{Order: order}, fmt.Errorf("%w: order %s is %s", ErrOrderNotPayable, order.Reference, order.Status)
	}
	customer, err := s.customers.FindByID(ctx, order.CustomerID)
	if err != nil {
		return PaymentOutcome{}, mapRepositoryError(err)
	}
	var delivery *domain.Delivery
	if order.DeliveryID != "" {
		d, err := s.applier.deliveries.FindByID(ctx, order.DeliveryID)
		if err != nil && !isRepositoryNotFound(err) {
			return PaymentOutcome{}, mapRepositoryError(err)
		}
		if err == nil {
			delivery = &d
		}
	}

	token := gw.GetAcceptanceToken(ctx)
	if !token.Success {
		s.logger(ctx, "payment.acceptance_token.failed", map[string]any{
			"reference": order.Reference,
			"provider":  gw.Name(),
			"error":     token.Error.Error(),
		})
		return PaymentOutcome{Order: order}, fmt.Errorf("%w: %v", ErrPaymentUnavailable, token.Error)
	}

	txnID := transactionIDPrefix + s.newID()
	signature := gw.GenerateSignature(order.Reference, order.AmountInCents, order.Currency)
	params := payments.CreateTransactionParams{
		IdempotencyKey:  txnID,
		AcceptanceToken: token.Data.Token,
		AmountInCents:   order.AmountInCents,
		Currency:        order.Currency,
		CustomerEmail:   customer.Email,
		CustomerName:    customer.FullName,
		CustomerPhone:   customer.Phone,
		Reference:       order.Reference,
		Signature:       signature,
		PaymentMethod:   method,
		RedirectURL:     cmd.RedirectURL,
	}
	if delivery != nil {
		params.Shipping = &payments.ShippingAddress{
			AddressLine1: delivery.Address,
			City:         delivery.City,
			Region:       delivery.Region,
			Country:      delivery.Country,
			PostalCode:   delivery.PostalCode,
			PhoneNumber:  customer.Phone,
		}
	}

	res := gw.CreateTransaction(ctx, params)

	txn := domain.Transaction{
		ID:                txnID,
		Provider:          gw.Name(),
		Reference:         order.Reference,
		OrderID:           order.ID,
		AmountInCents:     order.AmountInCents,
		Currency:          order.Currency,
		Status:            domain.TransactionStatusPending,
		PaymentMethodType: method.Type,
		Signature:         signature,
		CreatedAt:         s.clock(),
	}
	var update statusUpdate
	if res.Success {
		txn.ExternalID = res.Data.ID
		update = statusUpdate{
			status:        domain.NormaliseTransactionStatus(res.Data.Status),
			gatewayStatus: res.Data.Status,
			message:       res.Data.StatusMessage,
			payload:       res.Data.Raw,
		}
	} else {
		update = statusUpdate{
			status:  domain.TransactionStatusError,
			message: res.Error.Message,
			payload: gatewayErrorPayload(res.Error),
		}
	}

	applied, err := s.applier.record(ctx, txn, update)
	if err != nil {
		s.logger(ctx, "payment.record.failed", map[string]any{
			"reference":  order.Reference,
			"externalID": txn.ExternalID,
			"error":      err.Error(),
		})
		return PaymentOutcome{Order: order}, err
	}

	logFields := map[string]any{
		"reference":     order.Reference,
		"transactionID": applied.Transaction.ID,
		"externalID":    applied.Transaction.ExternalID,
		"status":        applied.Transaction.Status,
		"provider":      gw.Name(),
	}
	s.events.emit(ctx, s.transactionEvent(EventTransactionCreated, applied, ""))
	if applied.Transaction.Status.IsTerminal() {
		s.events.emit(ctx, s.transactionEvent(EventPaymentStatusChanged, applied, StatusSourcePayment))
	}

	outcome := PaymentOutcome{Success: res.Success, Order: applied.Order, Transaction: applied.Transaction}
	if !res.Success {
		logFields["errorKind"] = res.Error.Kind
		logFields["error"] = res.Error.Message
		s.logger(ctx, "payment.attempt.failed", logFields)
		return outcome, newPaymentFailedError(res.Error)
	}
	s.logger(ctx, "payment.attempt.recorded", logFields)
	return outcome, nil
}

func (s *paymentService) resolveGateway(provider string) (payments.Gateway, error) {
	gw, err := s.gateways.Gateway(provider)
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedGateway) {
			return nil, &ValidationError{Message: err.Error(), Fields: []string{"provider"}}
		}
		return nil, err
	}
	return gw, nil
}

func (s *paymentService) transactionEvent(eventType string, applied ApplyResult, source string) CheckoutEvent {
	return transactionEvent(eventType, applied, source, s.clock())
}

func transactionEvent(eventType string, applied ApplyResult, source string, now time.Time) CheckoutEvent {
	evt := CheckoutEvent{
		Type:          eventType,
		OrderID:       applied.Order.ID,
		Reference:     applied.Transaction.Reference,
		TransactionID: applied.Transaction.ID,
		Provider:      applied.Transaction.Provider,
		Status:        string(applied.Transaction.Status),
		AmountInCents: applied.Transaction.AmountInCents,
		Currency:      applied.Transaction.Currency,
		Source:        source,
		OccurredAt:    now,
	}
	if applied.PreviousStatus != "" && applied.PreviousStatus != applied.Transaction.Status {
		evt.PreviousStatus = string(applied.PreviousStatus)
	}
	return evt
}

// isPayable allows first attempts and retries after a failed attempt.
func isPayable(status domain.OrderStatus) bool {
	return status == domain.OrderStatusPending || status == domain.OrderStatusError
}

func gatewayErrorPayload(gwErr *payments.GatewayError) map[string]any {
	if gwErr == nil {
		return nil
	}
	errObj := map[string]any{
		"kind":    string(gwErr.Kind),
		"message": gwErr.Message,
	}
	if gwErr.StatusCode > 0 {
		errObj["statusCode"] = gwErr.StatusCode
	}
	payload := map[string]any{"error": errObj}
	if gwErr.Raw != nil {
		payload["response"] = gwErr.Raw
	}
	return payload
}
