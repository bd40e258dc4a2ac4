package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnsupportedGateway is returned when the manager cannot locate a gateway.
var ErrUnsupportedGateway = errors.New("payments: unsupported gateway")

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	ErrorKindNetwork       ErrorKind = "network_error"
	ErrorKindHTTP          ErrorKind = "http_error"
	ErrorKindParse         ErrorKind = "parse_error"
	ErrorKindConfiguration ErrorKind = "configuration_error"
	ErrorKindInvalidInput  ErrorKind = "invalid_request"
)

// GatewayError describes a failed gateway call. Raw keeps the provider response body or error
// payload verbatim when one was received.
type GatewayError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Raw        map[string]any
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Result carries either Data or Error. Gateway calls report remote failures as values.
type Result[T any] struct {
	Success bool
	Data    T
	Error   *GatewayError
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{Success: true, Data: value}
}

// Fail builds a failed result.
func Fail[T any](kind ErrorKind, message string) Result[T] {
	return Result[T]{Error: &GatewayError{Kind: kind, Message: message}}
}

// FailWith builds a failed result from an existing error value.
func FailWith[T any](gwErr *GatewayError) Result[T] {
	return Result[T]{Error: gwErr}
}

// AcceptanceToken is the pre-signed acceptance of the gateway's end-user policy.
type AcceptanceToken struct {
	Token     string
	Permalink string
	Type      string
}

// PaymentMethod is the gateway-facing payment instrument.
type PaymentMethod struct {
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

// Validate checks the fields each method type requires and defaults card installments to 1.
func (m *PaymentMethod) Validate() error {
	m.Type = strings.ToUpper(strings.TrimSpace(m.Type))
	switch m.Type {
	case "CARD":
		if strings.TrimSpace(m.Token) == "" {
			return errors.New("card payments require a token")
		}
		if m.Installments <= 0 {
			m.Installments = 1
		}
	case "NEQUI":
		if strings.TrimSpace(m.PhoneNumber) == "" {
			return errors.New("nequi payments require a phone number")
		}
	case "PSE", "BANCOLOMBIA_TRANSFER":
	case "":
		return errors.New("payment method type is required")
	default:
		return fmt.Errorf("unsupported payment method %q", m.Type)
	}
	return nil
}

// Wire returns the gateway representation of the payment method.
func (m PaymentMethod) Wire() map[string]any {
	out := map[string]any{"type": m.Type}
	switch m.Type {
	case "CARD":
		out["token"] = m.Token
		out["installments"] = m.Installments
	case "NEQUI":
		out["phone_number"] = m.PhoneNumber
	default:
		setIfPresent(out, "user_type", m.UserType)
		setIfPresent(out, "user_legal_id", m.UserLegalID)
		setIfPresent(out, "user_legal_id_type", m.UserLegalIDType)
		setIfPresent(out, "financial_institution_code", m.FinancialInstCode)
		setIfPresent(out, "payment_description", m.PaymentDescription)
		setIfPresent(out, "phone_number", m.PhoneNumber)
	}
	return out
}

func setIfPresent(out map[string]any, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		out[key] = value
	}
}

// ShippingAddress is forwarded to the gateway with the transaction.
type ShippingAddress struct {
	AddressLine1 string
	City         string
	Region       string
	Country      string
	PostalCode   string
	PhoneNumber  string
}

// CreateTransactionParams is everything needed for a single payment attempt.
type CreateTransactionParams struct {
	AcceptanceToken string
	AmountInCents   int64
	Currency        string
	CustomerEmail   string
	CustomerName    string
	CustomerPhone   string
	Reference       string
	Signature       string
	PaymentMethod   PaymentMethod
	Shipping        *ShippingAddress
	RedirectURL     string
	// IdempotencyKey identifies one attempt. Gateways that deduplicate requests use it instead of
	// the reference, which repeats across retries of the same order.
	IdempotencyKey string
}

// GatewayTransaction is the gateway's view of a transaction.
type GatewayTransaction struct {
	ID                string
	Status            string
	StatusMessage     string
	Reference         string
	AmountInCents     int64
	Currency          string
	PaymentMethodType string
	Raw               map[string]any
}

// WebhookEvent is a parsed gateway notification.
type WebhookEvent struct {
	Event         string
	TransactionID string
	Status        string
	Reference     string
	SentAt        time.Time
	Raw           map[string]any
}

// EventTransactionUpdated is the only event that drives reconciliation.
const EventTransactionUpdated = "transaction.updated"

// Gateway is implemented by each payment provider adapter.
type Gateway interface {
	Name() string
	GetAcceptanceToken(ctx context.Context) Result[AcceptanceToken]
	CreateTransaction(ctx context.Context, params CreateTransactionParams) Result[GatewayTransaction]
	GetTransaction(ctx context.Context, externalID string) Result[GatewayTransaction]
	ValidateWebhookSignature(rawPayload []byte, signature, timestamp string) bool
	ParseWebhookEvent(rawPayload []byte) (WebhookEvent, error)
	GenerateSignature(reference string, amountCents int64, currency string) string
}

// Manager resolves gateways by name.
type Manager struct {
	gateways       map[string]Gateway
	defaultGateway string
}

// NewManager registers the supplied gateways under their Name. The first one is the default
// unless defaultName selects another.
func NewManager(defaultName string, gateways ...Gateway) (*Manager, error) {
	if len(gateways) == 0 {
		return nil, errors.New("payments: at least one gateway is required")
	}
	m := &Manager{gateways: make(map[string]Gateway, len(gateways))}
	for _, gw := range gateways {
		if gw == nil {
			return nil, errors.New("payments: nil gateway registration")
		}
		key := normaliseName(gw.Name())
		if key == "" {
			return nil, errors.New("payments: gateway name is required")
		}
		if _, dup := m.gateways[key]; dup {
			return nil, fmt.Errorf("payments: duplicate gateway %q", key)
		}
		m.gateways[key] = gw
		if m.defaultGateway == "" {
			m.defaultGateway = key
		}
	}
	if name := normaliseName(defaultName); name != "" {
		if _, ok := m.gateways[name]; !ok {
			return nil, fmt.Errorf("%w: default %q", ErrUnsupportedGateway, name)
		}
		m.defaultGateway = name
	}
	return m, nil
}

// Gateway returns the named gateway, or the default when name is empty.
func (m *Manager) Gateway(name string) (Gateway, error) {
	if m == nil {
		return nil, errors.New("payments: manager is nil")
	}
	key := normaliseName(name)
	if key == "" {
		key = m.defaultGateway
	}
	gw, ok := m.gateways[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedGateway, key)
	}
	return gw, nil
}

// Default returns the default gateway.
func (m *Manager) Default() Gateway {
	gw, _ := m.Gateway("")
	return gw
}

// Names lists registered gateway names in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.gateways))
	for name := range m.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normaliseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
