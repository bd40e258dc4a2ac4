package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
)

type stubIntents struct {
	lastNew *stripe.PaymentIntentParams
	intent  *stripe.PaymentIntent
	err     error
}

func (s *stubIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.lastNew = params
	return s.intent, s.err
}

func (s *stubIntents) Get(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.intent, s.err
}

func newTestStripe(t *testing.T, intents *stubIntents) *StripeGateway {
	t.Helper()
	gw, err := NewStripeGateway(StripeConfig{WebhookSecret: "whsec_test", intents: intents})
	require.NoError(t, err)
	return gw
}

func TestStripeCreateTransactionMapsStatus(t *testing.T) {
	intents := &stubIntents{intent: &stripe.PaymentIntent{
		ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded, Amount: 5000, Currency: "cop",
		Metadata: map[string]string{"reference": "ORDER-1"},
	}}
	gw := newTestStripe(t, intents)

	res := gw.CreateTransaction(context.Background(), CreateTransactionParams{
		AcceptanceToken: "tok", AmountInCents: 5000, Currency: "COP", Reference: "ORDER-1",
		PaymentMethod: PaymentMethod{Type: "CARD", Token: "pm_card_visa"}, IdempotencyKey: "txn_A",
	})
	require.True(t, res.Success)
	require.Equal(t, "APPROVED", res.Data.Status)
	require.Equal(t, "ORDER-1", res.Data.Reference)
	require.Equal(t, "COP", res.Data.Currency)
	require.Equal(t, "cop", *intents.lastNew.Currency)
	require.Equal(t, "txn_A", *intents.lastNew.IdempotencyKey)
}

func TestStripeRetriesUseFreshIdempotencyKeys(t *testing.T) {
	intents := &stubIntents{intent: &stripe.PaymentIntent{ID: "pi_2", Status: stripe.PaymentIntentStatusSucceeded}}
	gw := newTestStripe(t, intents)

	var keys []string
	for _, attempt := range []struct{ key, token string }{{"txn_A", "pm_declined"}, {"txn_B", "pm_good"}} {
		res := gw.CreateTransaction(context.Background(), CreateTransactionParams{
			AmountInCents: 5000, Currency: "COP", Reference: "ORDER-1",
			PaymentMethod: PaymentMethod{Type: "CARD", Token: attempt.token}, IdempotencyKey: attempt.key,
		})
		require.True(t, res.Success)
		keys = append(keys, *intents.lastNew.IdempotencyKey)
	}
	require.Equal(t, []string{"txn_A", "txn_B"}, keys)

	gw.CreateTransaction(context.Background(), CreateTransactionParams{
		AmountInCents: 5000, Currency: "COP", Reference: "ORDER-1",
		PaymentMethod: PaymentMethod{Type: "CARD", Token: "pm_good"},
	})
	require.Nil(t, intents.lastNew.IdempotencyKey)
}

func TestStripeIntegritySignatureUsesOwnSecret(t *testing.T) {
	gw, err := NewStripeGateway(StripeConfig{WebhookSecret: "whsec_test", IntegritySecret: "stripe_integrity", intents: &stubIntents{}})
	require.NoError(t, err)
	require.Equal(t, IntegritySignature("ORDER-1", 5000, "COP", "stripe_integrity"), gw.GenerateSignature("ORDER-1", 5000, "COP"))
	require.NotEqual(t, IntegritySignature("ORDER-1", 5000, "COP", "whsec_test"), gw.GenerateSignature("ORDER-1", 5000, "COP"))

	unsigned := newTestStripe(t, &stubIntents{})
	require.Empty(t, unsigned.GenerateSignature("ORDER-1", 5000, "COP"))
}

func TestStripeRejectsNonCardMethods(t *testing.T) {
	intents := &stubIntents{}
	gw := newTestStripe(t, intents)

	res := gw.CreateTransaction(context.Background(), CreateTransactionParams{
		AmountInCents: 5000, Currency: "COP", Reference: "ORDER-1",
		PaymentMethod: PaymentMethod{Type: "PSE"},
	})
	require.False(t, res.Success)
	require.Equal(t, ErrorKindInvalidInput, res.Error.Kind)
	require.Nil(t, intents.lastNew)
}

func TestStripeErrorMapping(t *testing.T) {
	gw := newTestStripe(t, &stubIntents{err: &stripe.Error{HTTPStatusCode: 402, Msg: "card declined", Type: stripe.ErrorTypeCard}})

	res := gw.GetTransaction(context.Background(), "pi_1")
	require.False(t, res.Success)
	require.Equal(t, ErrorKindHTTP, res.Error.Kind)
	require.Equal(t, 402, res.Error.StatusCode)
	require.Equal(t, "card declined", res.Error.Message)
}

func TestStripeStatusMapping(t *testing.T) {
	require.Equal(t, "APPROVED", stripeStatus(stripe.PaymentIntentStatusSucceeded))
	require.Equal(t, "VOIDED", stripeStatus(stripe.PaymentIntentStatusCanceled))
	require.Equal(t, "DECLINED", stripeStatus(stripe.PaymentIntentStatusRequiresPaymentMethod))
	require.Equal(t, "PENDING", stripeStatus(stripe.PaymentIntentStatusProcessing))
}

func TestStripeAcceptanceTokenIsULID(t *testing.T) {
	gw := newTestStripe(t, &stubIntents{})
	res := gw.GetAcceptanceToken(context.Background())
	require.True(t, res.Success)
	require.Len(t, res.Data.Token, 26)
}

func TestStripeWebhook(t *testing.T) {
	gw := newTestStripe(t, &stubIntents{})
	raw := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","created":1714557600,"data":{"object":{"id":"pi_1","object":"payment_intent","status":"succeeded","amount":5000,"currency":"cop","metadata":{"reference":"ORDER-1"}}}}`)

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, raw)))
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	require.True(t, gw.ValidateWebhookSignature(raw, header, ""))
	require.False(t, gw.ValidateWebhookSignature(raw, "t=1,v1=deadbeef", ""))

	evt, err := gw.ParseWebhookEvent(raw)
	require.NoError(t, err)
	require.Equal(t, EventTransactionUpdated, evt.Event)
	require.Equal(t, "pi_1", evt.TransactionID)
	require.Equal(t, "APPROVED", evt.Status)
	require.Equal(t, "ORDER-1", evt.Reference)

	other, err := gw.ParseWebhookEvent([]byte(`{"id":"evt_2","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`))
	require.NoError(t, err)
	require.Equal(t, "charge.refunded", other.Event)
	require.Empty(t, other.TransactionID)
}
