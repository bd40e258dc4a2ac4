package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	name string
}

func (f *fakeGateway) Name() string { return f.name }

func (f *fakeGateway) GetAcceptanceToken(context.Context) Result[AcceptanceToken] {
	return Ok(AcceptanceToken{Token: f.name + "-token"})
}

func (f *fakeGateway) CreateTransaction(context.Context, CreateTransactionParams) Result[GatewayTransaction] {
	return Ok(GatewayTransaction{ID: f.name + "-txn", Status: "PENDING"})
}

func (f *fakeGateway) GetTransaction(_ context.Context, id string) Result[GatewayTransaction] {
	return Ok(GatewayTransaction{ID: id, Status: "APPROVED"})
}

func (f *fakeGateway) ValidateWebhookSignature([]byte, string, string) bool { return true }

func (f *fakeGateway) ParseWebhookEvent([]byte) (WebhookEvent, error) { return WebhookEvent{}, nil }

func (f *fakeGateway) GenerateSignature(string, int64, string) string { return f.name }

func TestManagerResolvesByNameAndDefault(t *testing.T) {
	wompi := &fakeGateway{name: "wompi"}
	stripe := &fakeGateway{name: "Stripe"}

	mgr, err := NewManager("stripe", wompi, stripe)
	require.NoError(t, err)

	gw, err := mgr.Gateway("WOMPI")
	require.NoError(t, err)
	require.Same(t, wompi, gw)

	require.Same(t, stripe, mgr.Default())
	require.Equal(t, []string{"stripe", "wompi"}, mgr.Names())
}

func TestManagerUnknownGateway(t *testing.T) {
	mgr, err := NewManager("", &fakeGateway{name: "wompi"})
	require.NoError(t, err)

	_, err = mgr.Gateway("paypal")
	require.True(t, errors.Is(err, ErrUnsupportedGateway))

	_, err = NewManager("paypal", &fakeGateway{name: "wompi"})
	require.True(t, errors.Is(err, ErrUnsupportedGateway))
}

func TestManagerRejectsInvalidRegistrations(t *testing.T) {
	_, err := NewManager("")
	require.Error(t, err)

	_, err = NewManager("", &fakeGateway{name: "wompi"}, &fakeGateway{name: " WOMPI "})
	require.ErrorContains(t, err, "duplicate")

	_, err = NewManager("", &fakeGateway{name: ""})
	require.Error(t, err)
}

func TestPaymentMethodValidate(t *testing.T) {
	cases := []struct {
		name    string
		method  PaymentMethod
		wantErr bool
	}{
		{name: "card defaults installments", method: PaymentMethod{Type: "card", Token: "tok_1"}},
		{name: "card without token", method: PaymentMethod{Type: "CARD"}, wantErr: true},
		{name: "nequi without phone", method: PaymentMethod{Type: "NEQUI"}, wantErr: true},
		{name: "nequi", method: PaymentMethod{Type: "NEQUI", PhoneNumber: "3107654321"}},
		{name: "pse", method: PaymentMethod{Type: "PSE"}},
		{name: "bancolombia", method: PaymentMethod{Type: "BANCOLOMBIA_TRANSFER"}},
		{name: "empty", method: PaymentMethod{}, wantErr: true},
		{name: "unknown", method: PaymentMethod{Type: "CASH"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := tc.method
			err := m.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if m.Type == "CARD" {
				require.Equal(t, 1, m.Installments)
			}
		})
	}
}

func TestPaymentMethodWire(t *testing.T) {
	card := PaymentMethod{Type: "CARD", Token: "tok_1", Installments: 3}
	require.Equal(t, map[string]any{"type": "CARD", "token": "tok_1", "installments": 3}, card.Wire())

	pse := PaymentMethod{Type: "PSE", UserType: "0", FinancialInstCode: "1"}
	require.Equal(t, map[string]any{"type": "PSE", "user_type": "0", "financial_institution_code": "1"}, pse.Wire())
}

func TestGatewayErrorMessage(t *testing.T) {
	res := Fail[GatewayTransaction](ErrorKindNetwork, "dial tcp: refused")
	require.False(t, res.Success)
	require.Equal(t, "network_error: dial tcp: refused", res.Error.Error())

	httpErr := &GatewayError{Kind: ErrorKindHTTP, Message: "bad request", StatusCode: 422}
	require.Equal(t, "http_error (422): bad request", httpErr.Error())
}
