package payments

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeConfig configures the Stripe gateway.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	// IntegritySecret signs the local integrity signature stored on transactions. Stripe never
	// checks it; without a secret no signature is produced.
	IntegritySecret string
	Backends        *stripe.Backends
	Logger        GatewayLogger
	Clock         func() time.Time
	intents       stripePaymentIntentAPI
}

// StripeGateway adapts PaymentIntents to the gateway contract. Stripe has no acceptance policy,
// so acceptance tokens are locally minted ULIDs.
type StripeGateway struct {
	intents         stripePaymentIntentAPI
	webhookSecret   string
	integritySecret string
	clock         func() time.Time
	logger        GatewayLogger
}

// NewStripeGateway constructs a gateway backed by the Stripe API client.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	intents := cfg.intents
	if intents == nil {
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		intents:         intents,
		webhookSecret:   cfg.WebhookSecret,
		integritySecret: cfg.IntegritySecret,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) GetAcceptanceToken(context.Context) Result[AcceptanceToken] {
	id, err := ulid.New(ulid.Timestamp(g.clock()), rand.Reader)
	if err != nil {
		return Fail[AcceptanceToken](ErrorKindConfiguration, err.Error())
	}
	return Ok(AcceptanceToken{Token: id.String(), Type: "IMPLICIT"})
}

// CreateTransaction creates and confirms a PaymentIntent. Only card payments are supported.
func (g *StripeGateway) CreateTransaction(ctx context.Context, req CreateTransactionParams) Result[GatewayTransaction] {
	method := req.PaymentMethod
	if err := method.Validate(); err != nil {
		return Fail[GatewayTransaction](ErrorKindInvalidInput, err.Error())
	}
	if method.Type != "CARD" {
		return Fail[GatewayTransaction](ErrorKindInvalidInput, fmt.Sprintf("stripe does not support %s payments", method.Type))
	}
	if req.AmountInCents <= 0 || strings.TrimSpace(req.Reference) == "" {
		return Fail[GatewayTransaction](ErrorKindInvalidInput, "amount and reference are required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountInCents),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod:      stripe.String(method.Token),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	params.AddMetadata("reference", req.Reference)
	params.AddMetadata("acceptance_token", req.AcceptanceToken)
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	if req.RedirectURL != "" {
		params.ReturnURL = stripe.String(req.RedirectURL)
	}

	intent, err := g.intents.New(params)
	if err != nil {
		g.logger(ctx, "payments.stripe.create_failed", map[string]any{"reference": req.Reference, "error": err.Error()})
		return FailWith[GatewayTransaction](stripeGatewayError(err))
	}
	g.logger(ctx, "payments.stripe.created", map[string]any{"reference": req.Reference, "intentID": intent.ID, "status": intent.Status})
	return Ok(stripeTransaction(intent))
}

func (g *StripeGateway) GetTransaction(ctx context.Context, externalID string) Result[GatewayTransaction] {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return Fail[GatewayTransaction](ErrorKindInvalidInput, "transaction id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := g.intents.Get(externalID, params)
	if err != nil {
		return FailWith[GatewayTransaction](stripeGatewayError(err))
	}
	return Ok(stripeTransaction(intent))
}

// ValidateWebhookSignature checks a Stripe-Signature header. The timestamp is carried inside the
// header, so the separate timestamp argument is unused.
func (g *StripeGateway) ValidateWebhookSignature(rawPayload []byte, signature, _ string) bool {
	if g.webhookSecret == "" || strings.TrimSpace(signature) == "" {
		return false
	}
	return webhook.ValidatePayload(rawPayload, signature, g.webhookSecret) == nil
}

// ParseWebhookEvent maps payment_intent.* events onto transaction.updated.
func (g *StripeGateway) ParseWebhookEvent(rawPayload []byte) (WebhookEvent, error) {
	var evt stripe.Event
	if err := json.Unmarshal(rawPayload, &evt); err != nil {
		return WebhookEvent{}, fmt.Errorf("stripe: decode webhook: %w", err)
	}
	if evt.Type == "" {
		return WebhookEvent{}, errors.New("stripe: webhook missing type")
	}
	var raw map[string]any
	_ = json.Unmarshal(rawPayload, &raw)

	out := WebhookEvent{Event: string(evt.Type), Raw: raw}
	if evt.Created > 0 {
		out.SentAt = time.Unix(evt.Created, 0).UTC()
	}
	if !strings.HasPrefix(string(evt.Type), "payment_intent.") || evt.Data == nil {
		return out, nil
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil || intent.ID == "" {
		return WebhookEvent{}, errors.New("stripe: webhook missing payment intent")
	}
	t := stripeTransaction(&intent)
	out.Event = EventTransactionUpdated
	out.TransactionID = t.ID
	out.Status = t.Status
	out.Reference = t.Reference
	return out, nil
}

func (g *StripeGateway) GenerateSignature(reference string, amountCents int64, currency string) string {
	if g.integritySecret == "" {
		return ""
	}
	return IntegritySignature(reference, amountCents, currency, g.integritySecret)
}

func stripeTransaction(intent *stripe.PaymentIntent) GatewayTransaction {
	if intent == nil {
		return GatewayTransaction{}
	}
	out := GatewayTransaction{
		ID:                intent.ID,
		Status:            stripeStatus(intent.Status),
		Reference:         intent.Metadata["reference"],
		AmountInCents:     intent.Amount,
		Currency:          strings.ToUpper(string(intent.Currency)),
		PaymentMethodType: "CARD",
	}
	if intent.LastPaymentError != nil {
		out.StatusMessage = intent.LastPaymentError.Msg
	}
	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	}
	out.Raw = raw
	return out
}

func stripeStatus(status stripe.PaymentIntentStatus) string {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return "APPROVED"
	case stripe.PaymentIntentStatusCanceled:
		return "VOIDED"
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return "DECLINED"
	default:
		return "PENDING"
	}
}

func stripeGatewayError(err error) *GatewayError {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		gwErr := &GatewayError{
			Kind:       ErrorKindHTTP,
			Message:    stripeErr.Msg,
			StatusCode: stripeErr.HTTPStatusCode,
			Raw:        map[string]any{"type": string(stripeErr.Type), "code": string(stripeErr.Code)},
		}
		if gwErr.StatusCode == 0 {
			gwErr.Kind = ErrorKindNetwork
		}
		return gwErr
	}
	return &GatewayError{Kind: ErrorKindNetwork, Message: err.Error()}
}
