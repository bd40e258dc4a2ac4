package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/httpx"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

const (
	defaultAttemptLimit  = 5
	defaultAttemptWindow = 10 * time.Minute
	maxPollDelay         = 10 * time.Second
)

// PaymentHandlers serves payment attempts and client-driven status polling.
type PaymentHandlers struct {
	payments       services.PaymentService
	reconciliation services.ReconciliationService
	attempts       *attemptWindow
}

// PaymentOption customises PaymentHandlers.
type PaymentOption func(*PaymentHandlers)

// WithPaymentAttemptLimit caps attempts per order reference. A non-positive limit disables it.
func WithPaymentAttemptLimit(limit int, window time.Duration, clock func() time.Time) PaymentOption {
	return func(h *PaymentHandlers) {
		h.attempts = newAttemptWindow(limit, window, clock)
	}
}

// NewPaymentHandlers constructs payment handlers.
func NewPaymentHandlers(payments services.PaymentService, reconciliation services.ReconciliationService, opts ...PaymentOption) *PaymentHandlers {
	h := &PaymentHandlers{
		payments:       payments,
		reconciliation: reconciliation,
		attempts:       newAttemptWindow(defaultAttemptLimit, defaultAttemptWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers payment and transaction status endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	r.Post("/orders/{reference}/payments", h.processPayment)
	r.Get("/payments/acceptance-token", h.acceptanceToken)
	r.Get("/transactions/{transactionId}/status", h.transactionStatus)
}

type processPaymentRequest struct {
	PaymentMethod paymentMethodRequest `json:"payment_method"`
	Provider      string               `json:"provider"`
	RedirectURL   string               `json:"redirect_url"`
}

type processPaymentResponse struct {
	Order       orderView       `json:"order"`
	Transaction transactionView `json:"transaction"`
}

func (h *PaymentHandlers) processPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	var req processPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(ctx, w, "request body must be valid JSON")
		return
	}
	if wait, ok := h.attempts.take(reference); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		httpx.WriteError(ctx, w, httpx.NewError("too_many_attempts", "too many payment attempts for this order", http.StatusTooManyRequests))
		return
	}

	outcome, err := h.payments.ProcessPayment(ctx, services.ProcessPaymentCommand{
		OrderReference: reference,
		PaymentMethod:  req.PaymentMethod.toInput(),
		Provider:       strings.TrimSpace(req.Provider),
		RedirectURL:    strings.TrimSpace(req.RedirectURL),
	})
	if err != nil {
		if failed, ok := asPaymentFailed(err); ok {
			writePaymentFailed(ctx, w, failed, reference, &outcome)
			return
		}
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, processPaymentResponse{
		Order:       newOrderView(outcome.Order),
		Transaction: newTransactionView(outcome.Transaction),
	})
}

type acceptanceTokenResponse struct {
	Provider  string `json:"provider"`
	Token     string `json:"acceptance_token"`
	Permalink string `json:"permalink,omitempty"`
	Type      string `json:"type,omitempty"`
}

func (h *PaymentHandlers) acceptanceToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := strings.TrimSpace(r.URL.Query().Get("provider"))
	token, err := h.payments.AcceptanceToken(ctx, provider)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, acceptanceTokenResponse{
		Provider:  provider,
		Token:     token.Token,
		Permalink: token.Permalink,
		Type:      token.Type,
	})
}

type transactionStatusResponse struct {
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	Final       bool            `json:"final"`
	Pending     bool            `json:"pending"`
	Transaction transactionView `json:"transaction"`
}

// transactionStatus polls the gateway. Without query params it makes a single attempt so the
// client drives the loop; attempts and delay (e.g. "2s") opt into a bounded server-side poll.
func (h *PaymentHandlers) transactionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	transactionID := strings.TrimSpace(chi.URLParam(r, "transactionId"))
	query := r.URL.Query()

	var (
		result services.PollResult
		err    error
	)
	if raw := strings.TrimSpace(query.Get("attempts")); raw != "" {
		attempts, convErr := strconv.Atoi(raw)
		if convErr != nil || attempts <= 0 {
			writeBadRequest(ctx, w, "attempts must be a positive integer")
			return
		}
		var delay time.Duration
		if rawDelay := strings.TrimSpace(query.Get("delay")); rawDelay != "" {
			delay, convErr = time.ParseDuration(rawDelay)
			if convErr != nil || delay <= 0 {
				writeBadRequest(ctx, w, "delay must be a positive duration")
				return
			}
			if delay > maxPollDelay {
				delay = maxPollDelay
			}
		}
		result, err = h.reconciliation.PollTransaction(ctx, services.PollCommand{
			TransactionID: transactionID,
			MaxAttempts:   attempts,
			Delay:         delay,
		})
	} else {
		result, err = h.reconciliation.PollOnce(ctx, transactionID)
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, transactionStatusResponse{
		Status:      string(result.Status),
		Attempts:    result.Attempts,
		Final:       result.Final,
		Pending:     result.Pending,
		Transaction: newTransactionView(result.Transaction),
	})
}
