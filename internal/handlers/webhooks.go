package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/httpx"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

const (
	defaultSignatureHeader = "X-Event-Checksum"
	defaultTimestampHeader = "X-Event-Timestamp"
	stripeSignatureHeader  = "Stripe-Signature"
	maxWebhookBody         = 256 * 1024
)

// WebhookHeaders names the headers that carry a provider's signature and timestamp.
type WebhookHeaders struct {
	Signature string
	Timestamp string
}

// WebhookHandlers receives gateway notifications.
type WebhookHandlers struct {
	reconciliation services.ReconciliationService
	headers        map[string]WebhookHeaders
	fallback       WebhookHeaders
}

// NewWebhookHandlers builds webhook handlers. fallback applies to providers without an entry
// in perProvider; Stripe defaults to Stripe-Signature.
func NewWebhookHandlers(reconciliation services.ReconciliationService, fallback WebhookHeaders, perProvider map[string]WebhookHeaders) *WebhookHandlers {
	if strings.TrimSpace(fallback.Signature) == "" {
		fallback.Signature = defaultSignatureHeader
	}
	if strings.TrimSpace(fallback.Timestamp) == "" {
		fallback.Timestamp = defaultTimestampHeader
	}
	headers := map[string]WebhookHeaders{"stripe": {Signature: stripeSignatureHeader}}
	for name, h := range perProvider {
		headers[strings.ToLower(strings.TrimSpace(name))] = h
	}
	return &WebhookHandlers{reconciliation: reconciliation, headers: headers, fallback: fallback}
}

// Routes registers POST /payments/{provider}.
func (h *WebhookHandlers) Routes(r chi.Router) {
	r.Post("/payments/{provider}", h.receive)
}

type webhookResponse struct {
	Received      bool   `json:"received"`
	Processed     bool   `json:"processed"`
	Ignored       bool   `json:"ignored,omitempty"`
	Reason        string `json:"reason,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status,omitempty"`
}

func (h *WebhookHandlers) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		writeBadRequest(ctx, w, "unable to read request body")
		return
	}
	if len(payload) > maxWebhookBody {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload too large", http.StatusRequestEntityTooLarge))
		return
	}

	names := h.fallback
	if custom, ok := h.headers[provider]; ok {
		names = custom
	}
	cmd := services.WebhookCommand{
		Provider:  provider,
		Payload:   payload,
		Signature: r.Header.Get(names.Signature),
	}
	if names.Timestamp != "" {
		cmd.Timestamp = r.Header.Get(names.Timestamp)
	}

	ack, err := h.reconciliation.HandleWebhook(ctx, cmd)
	if err != nil {
		// only an unknown provider or a bad signature gets here; the rest is acknowledged
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, webhookResponse{
		Received:      true,
		Processed:     ack.Processed,
		Ignored:       ack.Ignored,
		Reason:        ack.Reason,
		TransactionID: ack.TransactionID,
		Status:        string(ack.Status),
	})
}
