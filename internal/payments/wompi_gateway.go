package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/payments"
	maxResponseBytes    = 1 << 20
	defaultWompiTimeout = 20 * time.Second
)

// GatewayLogger receives structured gateway events.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

// WompiConfig configures the Wompi gateway. Keys may be empty; operations needing a missing key
// fail with a configuration_error result instead of calling the gateway.
type WompiConfig struct {
	BaseURL         string
	PublicKey       string
	PrivateKey      string
	IntegritySecret string
	WebhookSecret   string
	Timeout         time.Duration
	HTTPClient      *http.Client
	Logger          GatewayLogger
	Meter           metric.Meter
}

// WompiGateway talks to the Wompi REST API.
type WompiGateway struct {
	baseURL         *url.URL
	publicKey       string
	privateKey      string
	integritySecret string
	webhookSecret   string
	client          *http.Client
	logger          GatewayLogger
	tracer          trace.Tracer
	requests        metric.Int64Counter
}

// NewWompiGateway validates the base URL and prepares an instrumented HTTP client.
func NewWompiGateway(cfg WompiConfig) (*WompiGateway, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("wompi: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/") + "/")
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("wompi: invalid base url %q", raw)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultWompiTimeout
		}
		client = &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	meter := cfg.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	requests, err := meter.Int64Counter("gateway.requests",
		metric.WithDescription("Count of payment gateway calls by operation and outcome"))
	if err != nil {
		return nil, fmt.Errorf("wompi: register metric: %w", err)
	}

	return &WompiGateway{
		baseURL:         base,
		publicKey:       strings.TrimSpace(cfg.PublicKey),
		privateKey:      strings.TrimSpace(cfg.PrivateKey),
		integritySecret: cfg.IntegritySecret,
		webhookSecret:   cfg.WebhookSecret,
		client:          client,
		logger:          logger,
		tracer:          otel.Tracer(instrumentationName),
		requests:        requests,
	}, nil
}

func (g *WompiGateway) Name() string { return "wompi" }

type wompiMerchantResponse struct {
	Data struct {
		PresignedAcceptance struct {
			AcceptanceToken string `json:"acceptance_token"`
			Permalink       string `json:"permalink"`
			Type            string `json:"type"`
		} `json:"presigned_acceptance"`
	} `json:"data"`
}

type wompiTransaction struct {
	ID                string  `json:"id"`
	Status            string  `json:"status"`
	StatusMessage     *string `json:"status_message"`
	Reference         string  `json:"reference"`
	AmountInCents     int64   `json:"amount_in_cents"`
	Currency          string  `json:"currency"`
	PaymentMethodType string  `json:"payment_method_type"`
}

type wompiTransactionResponse struct {
	Data wompiTransaction `json:"data"`
}

// GetAcceptanceToken fetches the merchant's presigned acceptance token.
func (g *WompiGateway) GetAcceptanceToken(ctx context.Context) Result[AcceptanceToken] {
	if g.publicKey == "" {
		return Fail[AcceptanceToken](ErrorKindConfiguration, "public key is not configured")
	}
	body, raw, gwErr := g.do(ctx, "acceptance_token", http.MethodGet, "merchants/"+g.publicKey, nil, false)
	if gwErr != nil {
		return FailWith[AcceptanceToken](gwErr)
	}
	var resp wompiMerchantResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Data.PresignedAcceptance.AcceptanceToken == "" {
		return FailWith[AcceptanceToken](&GatewayError{Kind: ErrorKindParse, Message: "merchant response missing acceptance token", Raw: raw})
	}
	pa := resp.Data.PresignedAcceptance
	return Ok(AcceptanceToken{Token: pa.AcceptanceToken, Permalink: pa.Permalink, Type: pa.Type})
}

// CreateTransaction submits a payment. Invalid payment methods are rejected before any network call.
func (g *WompiGateway) CreateTransaction(ctx context.Context, params CreateTransactionParams) Result[GatewayTransaction] {
	if g.privateKey == "" {
		return Fail[GatewayTransaction](ErrorKindConfiguration, "private key is not configured")
	}
	method := params.PaymentMethod
	if err := method.Validate(); err != nil {
		return Fail[GatewayTransaction](ErrorKindInvalidInput, err.Error())
	}
	if params.AmountInCents <= 0 || strings.TrimSpace(params.Reference) == "" || strings.TrimSpace(params.AcceptanceToken) == "" {
		return Fail[GatewayTransaction](ErrorKindInvalidInput, "amount, reference and acceptance token are required")
	}
	signature := params.Signature
	if signature == "" {
		signature = g.GenerateSignature(params.Reference, params.AmountInCents, params.Currency)
	}

	payload := map[string]any{
		"acceptance_token": params.AcceptanceToken,
		"amount_in_cents":  params.AmountInCents,
		"currency":         params.Currency,
		"customer_email":   params.CustomerEmail,
		"reference":        params.Reference,
		"signature":        signature,
		"payment_method":   method.Wire(),
	}
	if params.CustomerName != "" || params.CustomerPhone != "" {
		payload["customer_data"] = map[string]any{
			"full_name":    params.CustomerName,
			"phone_number": params.CustomerPhone,
		}
	}
	if s := params.Shipping; s != nil {
		payload["shipping_address"] = map[string]any{
			"address_line_1": s.AddressLine1,
			"city":           s.City,
			"region":         s.Region,
			"country":        s.Country,
			"postal_code":    s.PostalCode,
			"phone_number":   s.PhoneNumber,
		}
	}
	if params.RedirectURL != "" {
		payload["redirect_url"] = params.RedirectURL
	}

	body, raw, gwErr := g.do(ctx, "create_transaction", http.MethodPost, "transactions", payload, true)
	if gwErr != nil {
		return FailWith[GatewayTransaction](gwErr)
	}
	return decodeWompiTransaction(body, raw)
}

// GetTransaction fetches the current gateway view of a transaction.
func (g *WompiGateway) GetTransaction(ctx context.Context, externalID string) Result[GatewayTransaction] {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return Fail[GatewayTransaction](ErrorKindInvalidInput, "transaction id is required")
	}
	body, raw, gwErr := g.do(ctx, "get_transaction", http.MethodGet, "transactions/"+externalID, nil, false)
	if gwErr != nil {
		return FailWith[GatewayTransaction](gwErr)
	}
	return decodeWompiTransaction(body, raw)
}

func decodeWompiTransaction(body []byte, raw map[string]any) Result[GatewayTransaction] {
	var resp wompiTransactionResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Data.ID == "" {
		return FailWith[GatewayTransaction](&GatewayError{Kind: ErrorKindParse, Message: "transaction response missing data.id", Raw: raw})
	}
	t := resp.Data
	out := GatewayTransaction{
		ID:                t.ID,
		Status:            strings.ToUpper(t.Status),
		Reference:         t.Reference,
		AmountInCents:     t.AmountInCents,
		Currency:          t.Currency,
		PaymentMethodType: t.PaymentMethodType,
		Raw:               raw,
	}
	if t.StatusMessage != nil {
		out.StatusMessage = *t.StatusMessage
	}
	return Ok(out)
}

// ValidateWebhookSignature checks the checksum header against the raw body and timestamp.
func (g *WompiGateway) ValidateWebhookSignature(rawPayload []byte, signature, timestamp string) bool {
	return VerifyWebhookChecksum(rawPayload, signature, timestamp, g.webhookSecret)
}

type wompiWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Transaction wompiTransaction `json:"transaction"`
	} `json:"data"`
	SentAt string `json:"sent_at"`
}

// ParseWebhookEvent decodes a notification body.
func (g *WompiGateway) ParseWebhookEvent(rawPayload []byte) (WebhookEvent, error) {
	var payload wompiWebhookPayload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("wompi: decode webhook: %w", err)
	}
	if strings.TrimSpace(payload.Event) == "" {
		return WebhookEvent{}, errors.New("wompi: webhook missing event")
	}
	var raw map[string]any
	_ = json.Unmarshal(rawPayload, &raw)

	evt := WebhookEvent{
		Event:         payload.Event,
		TransactionID: payload.Data.Transaction.ID,
		Status:        strings.ToUpper(payload.Data.Transaction.Status),
		Reference:     payload.Data.Transaction.Reference,
		Raw:           raw,
	}
	if evt.Event == EventTransactionUpdated && evt.TransactionID == "" {
		return WebhookEvent{}, errors.New("wompi: webhook missing transaction id")
	}
	if ts, err := time.Parse(time.RFC3339, payload.SentAt); err == nil {
		evt.SentAt = ts.UTC()
	}
	return evt, nil
}

// GenerateSignature returns the integrity signature for a payment.
func (g *WompiGateway) GenerateSignature(reference string, amountCents int64, currency string) string {
	return IntegritySignature(reference, amountCents, currency, g.integritySecret)
}

func (g *WompiGateway) do(ctx context.Context, operation, method, path string, payload any, authorised bool) ([]byte, map[string]any, *GatewayError) {
	ctx, span := g.tracer.Start(ctx, "wompi."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("payment.provider", g.Name()), attribute.String("http.request.method", method))

	started := time.Now()
	body, raw, gwErr := g.send(ctx, method, path, payload, authorised)

	outcome := "success"
	fields := map[string]any{"operation": operation, "durationMs": time.Since(started).Milliseconds()}
	if gwErr != nil {
		outcome = string(gwErr.Kind)
		fields["errorKind"] = gwErr.Kind
		fields["statusCode"] = gwErr.StatusCode
		fields["error"] = gwErr.Message
		span.SetStatus(codes.Error, gwErr.Message)
		g.logger(ctx, "payments.wompi.failed", fields)
	} else {
		g.logger(ctx, "payments.wompi.ok", fields)
	}
	g.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", g.Name()),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
	return body, raw, gwErr
}

func (g *WompiGateway) send(ctx context.Context, method, path string, payload any, authorised bool) ([]byte, map[string]any, *GatewayError) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, &GatewayError{Kind: ErrorKindInvalidInput, Message: fmt.Sprintf("encode request: %v", err)}
		}
		reader = bytes.NewReader(encoded)
	}

	endpoint := g.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, nil, &GatewayError{Kind: ErrorKindConfiguration, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorised {
		req.Header.Set("Authorization", "Bearer "+g.privateKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, nil, &GatewayError{Kind: ErrorKindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, &GatewayError{Kind: ErrorKindNetwork, Message: fmt.Sprintf("read response: %v", err), StatusCode: resp.StatusCode}
	}

	var raw map[string]any
	decodeErr := json.Unmarshal(body, &raw)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &GatewayError{
			Kind:       ErrorKindHTTP,
			Message:    wompiErrorMessage(raw, resp.Status),
			StatusCode: resp.StatusCode,
			Raw:        keepBody(raw, decodeErr, body),
		}
	}
	if decodeErr != nil || raw == nil {
		message := "decode response: not a JSON object"
		if decodeErr != nil {
			message = fmt.Sprintf("decode response: %v", decodeErr)
		}
		return nil, nil, &GatewayError{
			Kind:       ErrorKindParse,
			Message:    message,
			StatusCode: resp.StatusCode,
			Raw:        keepBody(raw, decodeErr, body),
		}
	}
	return body, raw, nil
}

// keepBody returns the decoded object, or the verbatim body under "body" when the response was
// not a JSON object (proxy error pages, truncated payloads).
func keepBody(raw map[string]any, decodeErr error, body []byte) map[string]any {
	if decodeErr == nil && raw != nil {
		return raw
	}
	return map[string]any{"body": string(body)}
}

func wompiErrorMessage(raw map[string]any, fallback string) string {
	errObj, ok := raw["error"].(map[string]any)
	if !ok {
		return fallback
	}
	if reason, ok := errObj["reason"].(string); ok && reason != "" {
		return reason
	}
	if messages, ok := errObj["messages"].(map[string]any); ok && len(messages) > 0 {
		encoded, _ := json.Marshal(messages)
		return string(encoded)
	}
	if typ, ok := errObj["type"].(string); ok && typ != "" {
		return typ
	}
	return fallback
}
