package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

func TestPubSubEventPublisherPublishesCheckoutEvent(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "checkout-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}
	defer publisher.Stop()

	evt := services.CheckoutEvent{
		Type:           services.EventPaymentStatusChanged,
		OrderID:        "ord_1",
		Reference:      "ORDER-1700000000-1234",
		TransactionID:  "txn_1",
		Provider:       "wompi",
		Status:         "APPROVED",
		PreviousStatus: "PENDING",
		AmountInCents:  7_140_000,
		Currency:       "COP",
		Source:         services.StatusSourceWebhook,
		OccurredAt:     time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC),
	}
	if err := publisher.PublishCheckoutEvent(ctx, evt); err != nil {
		t.Fatalf("PublishCheckoutEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	msg := messages[0]

	var payload services.CheckoutEvent
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Reference != evt.Reference || payload.AmountInCents != evt.AmountInCents || payload.PreviousStatus != "PENDING" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	wantAttrs := map[string]string{
		"type":          services.EventPaymentStatusChanged,
		"orderId":       "ord_1",
		"reference":     evt.Reference,
		"status":        "APPROVED",
		"transactionId": "txn_1",
		"provider":      "wompi",
	}
	for key, want := range wantAttrs {
		if got := msg.Attributes[key]; got != want {
			t.Fatalf("attribute %s = %q, want %q", key, got, want)
		}
	}
}

func TestPubSubEventPublisherOmitsEmptyAttributes(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()
	topic, err := client.CreateTopic(ctx, "checkout-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	publisher, err := NewPubSubEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}
	defer publisher.Stop()

	if err := publisher.PublishCheckoutEvent(ctx, services.CheckoutEvent{Type: services.EventOrderCreated, Reference: "ORDER-1", Status: "pending"}); err != nil {
		t.Fatalf("PublishCheckoutEvent: %v", err)
	}
	attrs := srv.Messages()[0].Attributes
	if _, ok := attrs["transactionId"]; ok {
		t.Fatalf("empty attributes must be dropped, got %v", attrs)
	}
	if attrs["type"] != services.EventOrderCreated {
		t.Fatalf("unexpected type attribute %q", attrs["type"])
	}
}

func TestNewPubSubEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubEventPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
