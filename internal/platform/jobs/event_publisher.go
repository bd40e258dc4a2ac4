package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/textutil"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

// PubSubEventPublisher publishes checkout events as JSON messages on a single topic.
// Messages carry routing attributes so subscribers can filter by type or status.
type PubSubEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.EventPublisher = (*PubSubEventPublisher)(nil)

// NewPubSubEventPublisher constructs a publisher. Ordering by reference is enabled so that
// events for one order reach subscribers in publish order.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubEventPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishCheckoutEvent blocks until Pub/Sub acknowledges the message.
func (p *PubSubEventPublisher) PublishCheckoutEvent(ctx context.Context, evt services.CheckoutEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	data, err := p.marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: textutil.NormalizeStringMap(map[string]string{
			"type":          evt.Type,
			"orderId":       evt.OrderID,
			"reference":     evt.Reference,
			"status":        evt.Status,
			"transactionId": evt.TransactionID,
			"provider":      evt.Provider,
		}),
		OrderingKey: evt.Reference,
	}
	result := p.topic.Publish(ctx, msg)
	if _, err := result.Get(ctx); err != nil {
		if evt.Reference != "" {
			// a failed publish pauses the ordering key until resumed
			p.topic.ResumePublish(evt.Reference)
		}
		return fmt.Errorf("publish %s event: %w", evt.Type, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubEventPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}
