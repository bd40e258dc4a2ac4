package services

import (
	"context"
	"time"
)

const (
	EventOrderCreated         = "order.created"
	EventTransactionCreated   = "payment.transaction.created"
	EventPaymentStatusChanged = "payment.status.changed"
)

// CheckoutEvent is published after the state it describes has been committed.
type CheckoutEvent struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	Reference      string    `json:"reference"`
	TransactionID  string    `json:"transactionId,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	AmountInCents  int64     `json:"amountInCents"`
	Currency       string    `json:"currency"`
	Source         string    `json:"source,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// EventPublisher delivers checkout events to downstream consumers.
type EventPublisher interface {
	PublishCheckoutEvent(ctx context.Context, event CheckoutEvent) error
}

type eventEmitter struct {
	publisher EventPublisher
	logger    func(context.Context, string, map[string]any)
}

// emit is best-effort; failures are logged and never surface to the caller.
func (e eventEmitter) emit(ctx context.Context, event CheckoutEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishCheckoutEvent(ctx, event); err != nil {
		e.logger(ctx, "checkout.event.publish_failed", map[string]any{
			"type":      event.Type,
			"reference": event.Reference,
			"error":     err.Error(),
		})
	}
}
