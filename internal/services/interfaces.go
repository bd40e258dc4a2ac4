package services

import (
	"context"
	"time"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/payments"
)

// OrderService creates and reads orders.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, reference string) (domain.Order, error)
	GetOrderByID(ctx context.Context, orderID string) (domain.Order, error)
	GetOrderDetails(ctx context.Context, reference string) (OrderDetails, error)
	Quote(ctx context.Context, items []OrderItemInput) (Quote, error)
}

// PaymentService executes single payment attempts against a gateway.
type PaymentService interface {
	ProcessPayment(ctx context.Context, cmd ProcessPaymentCommand) (PaymentOutcome, error)
	AcceptanceToken(ctx context.Context, provider string) (payments.AcceptanceToken, error)
}

// ReconciliationService converges transaction state from polling and webhooks.
type ReconciliationService interface {
	PollTransaction(ctx context.Context, cmd PollCommand) (PollResult, error)
	PollOnce(ctx context.Context, transactionID string) (PollResult, error)
	HandleWebhook(ctx context.Context, cmd WebhookCommand) (WebhookAck, error)
	ApplyTerminalStatus(ctx context.Context, cmd ApplyStatusCommand) (ApplyResult, error)
	ReconcilePending(ctx context.Context, cmd ReconcileSweepCommand) (ReconcileSweepResult, error)
}

// CheckoutService creates an order and optionally pays it in the same request.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// CustomerInput carries contact data for the order's customer.
type CustomerInput struct {
	Email    string
	FullName string
	Phone    string
}

// DeliveryInput carries the shipping destination.
type DeliveryInput struct {
	Address    string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// OrderItemInput references a catalog product; the price is looked up server side.
type OrderItemInput struct {
	ProductID string
	Quantity  int64
}

// PaymentMethodInput is the client-supplied payment instrument.
type PaymentMethodInput struct {
	Type               string
	Token              string
	Installments       int
	PhoneNumber        string
	UserType           string
	UserLegalID        string
	UserLegalIDType    string
	FinancialInstCode  string
	PaymentDescription string
}

func (p PaymentMethodInput) toGateway() payments.PaymentMethod {
	return payments.PaymentMethod{
		Type:               p.Type,
		Token:              p.Token,
		Installments:       p.Installments,
		PhoneNumber:        p.PhoneNumber,
		UserType:           p.UserType,
		UserLegalID:        p.UserLegalID,
		UserLegalIDType:    p.UserLegalIDType,
		FinancialInstCode:  p.FinancialInstCode,
		PaymentDescription: p.PaymentDescription,
	}
}

// CreateOrderCommand is the order creation request.
type CreateOrderCommand struct {
	Customer           CustomerInput
	Delivery           DeliveryInput
	Items              []OrderItemInput
	ClaimedAmountCents int64
	Currency           string
	PaymentMethod      *PaymentMethodInput
}

// Quote is a priced preview of a set of items.
type Quote struct {
	Items     []domain.OrderItem
	Breakdown domain.PriceBreakdown
	Currency  string
}

// OrderDetails is the staff view of an order and its weak references.
type OrderDetails struct {
	Order       domain.Order
	Customer    *domain.Customer
	Delivery    *domain.Delivery
	Transaction *domain.Transaction
}

// ProcessPaymentCommand requests one payment attempt for an existing order.
type ProcessPaymentCommand struct {
	OrderReference string
	PaymentMethod  PaymentMethodInput
	Provider       string
	RedirectURL    string
}

// PaymentOutcome is the result of a payment attempt. Success is false when the gateway failed
// the attempt; Transaction is still populated with the ERROR record.
type PaymentOutcome struct {
	Success     bool
	Order       domain.Order
	Transaction domain.Transaction
}

// PollCommand configures a bounded status poll.
type PollCommand struct {
	TransactionID string
	MaxAttempts   int
	Delay         time.Duration
}

// PollResult reports the final or last-seen status of a polled transaction.
type PollResult struct {
	Status      domain.TransactionStatus
	Attempts    int
	Final       bool
	Pending     bool
	Transaction domain.Transaction
}

// WebhookCommand carries an unverified gateway notification.
type WebhookCommand struct {
	Provider  string
	Payload   []byte
	Signature string
	Timestamp string
}

// WebhookAck is returned for every webhook that passed signature verification.
type WebhookAck struct {
	Processed     bool
	Ignored       bool
	Reason        string
	TransactionID string
	Status        domain.TransactionStatus
}

// Sources recorded alongside applied status changes.
const (
	StatusSourcePayment = "payment"
	StatusSourcePoll    = "poll"
	StatusSourceWebhook = "webhook"
	StatusSourceSweep   = "sweep"
)

// ApplyStatusCommand moves a stored transaction to a gateway-reported status.
type ApplyStatusCommand struct {
	TransactionID string
	Status        string
	StatusMessage string
	Payload       map[string]any
	Source        string
}

// ApplyResult reports whether the transition was written.
type ApplyResult struct {
	Applied        bool
	PreviousStatus domain.TransactionStatus
	Transaction    domain.Transaction
	Order          domain.Order
}

// ReconcileSweepCommand selects stale pending transactions.
type ReconcileSweepCommand struct {
	OlderThan time.Duration
	Limit     int
}

// ReconcileSweepResult summarises a sweep.
type ReconcileSweepResult struct {
	Checked   int
	Finalized int
	Pending   int
	Failed    int
}

// CheckoutCommand creates an order and pays it when a payment method is present.
type CheckoutCommand struct {
	Order       CreateOrderCommand
	Provider    string
	RedirectURL string
}

// CheckoutResult holds the created order and, when requested, the payment attempt.
type CheckoutResult struct {
	Order   domain.Order
	Payment *PaymentOutcome
}
