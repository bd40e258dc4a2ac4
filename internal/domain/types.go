package domain

import (
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was created and no payment outcome is known yet.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates the gateway accepted the payment and is still deciding.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusApproved indicates the payment was approved.
	OrderStatusApproved OrderStatus = "approved"
	// OrderStatusDeclined indicates the payment was declined.
	OrderStatusDeclined OrderStatus = "declined"
	// OrderStatusVoided indicates the payment was voided by the gateway.
	OrderStatusVoided OrderStatus = "voided"
	// OrderStatusError indicates the payment attempt failed before a gateway decision.
	OrderStatusError OrderStatus = "error"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// TransactionStatus uses the gateway vocabulary, distinct from OrderStatus.
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "PENDING"
	TransactionStatusApproved TransactionStatus = "APPROVED"
	TransactionStatusDeclined TransactionStatus = "DECLINED"
	TransactionStatusVoided   TransactionStatus = "VOIDED"
	TransactionStatusError    TransactionStatus = "ERROR"
)

// DeliveryStatus enumerates delivery lifecycle states.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusAssigned  DeliveryStatus = "assigned"
	DeliveryStatusInTransit DeliveryStatus = "in_transit"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

// Payment method types accepted by the gateways.
const (
	PaymentMethodCard                = "CARD"
	PaymentMethodNequi               = "NEQUI"
	PaymentMethodPSE                 = "PSE"
	PaymentMethodBancolombiaTransfer = "BANCOLOMBIA_TRANSFER"
)

// Order is the checkout aggregate. Customer, delivery and transaction are weak references.
type Order struct {
	ID            string
	Reference     string
	CustomerID    string
	DeliveryID    string
	TransactionID string
	AmountInCents int64
	Currency      string
	Status        OrderStatus
	PaymentMethod string
	Items         []OrderItem
	Breakdown     PriceBreakdown
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem is a priced line captured at order creation.
type OrderItem struct {
	ProductID      string
	Quantity       int64
	UnitPriceCents int64
}

// Transaction records a single payment attempt against the gateway.
type Transaction struct {
	ID                string
	ExternalID        string
	Provider          string
	Reference         string
	OrderID           string
	AmountInCents     int64
	Currency          string
	Status            TransactionStatus
	StatusMessage     string
	PaymentMethodType string
	PaymentData       map[string]any
	Signature         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	FinalizedAt       *time.Time
}

// Customer is upserted by email on every checkout.
type Customer struct {
	ID        string
	Email     string
	FullName  string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Delivery stores the shipping destination and scheduling state for an order.
type Delivery struct {
	ID                    string
	Address               string
	City                  string
	Region                string
	PostalCode            string
	Country               string
	Status                DeliveryStatus
	EstimatedDeliveryDate *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Product is the read-only catalog view consumed by checkout.
type Product struct {
	ID         string
	Name       string
	PriceCents int64
	Stock      int64
	Active     bool
}
