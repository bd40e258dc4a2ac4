package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/payments"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/httpx"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/requestctx"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

// writeServiceError maps the services error taxonomy onto the JSON envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		validation *services.ValidationError
		payment    *services.PaymentFailedError
	)
	switch {
	case errors.As(err, &validation):
		details := map[string]any{}
		if len(validation.Fields) > 0 {
			details["fields"] = validation.Fields
		}
		for k, v := range validation.Details {
			details[k] = v
		}
		httpx.WriteError(ctx, w, httpx.NewError("validation_error", validation.Error(), http.StatusBadRequest).WithDetails(details))
	case errors.Is(err, services.ErrValidation), errors.Is(err, payments.ErrUnsupportedGateway):
		httpx.WriteError(ctx, w, httpx.NewError("validation_error", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	case errors.As(err, &payment):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be completed", http.StatusPaymentRequired).
			WithDetails(map[string]any{"details": map[string]any{"reason": payment.Reason, "kind": string(payment.Kind)}}))
	case errors.Is(err, services.ErrOrderNotPayable):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_payable", "order does not accept new payment attempts", http.StatusConflict))
	case errors.Is(err, services.ErrConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "resource changed concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentUnavailable), errors.Is(err, services.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "service temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrInvalidSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusUnauthorized))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("server_error", "internal server error", http.StatusInternalServerError))
	}
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

// writePaymentFailed reports a gateway failure together with the order reference and the
// recorded ERROR transaction.
func writePaymentFailed(ctx context.Context, w http.ResponseWriter, failed *services.PaymentFailedError, reference string, outcome *services.PaymentOutcome) {
	details := map[string]any{
		"reason":    failed.Reason,
		"kind":      string(failed.Kind),
		"reference": reference,
	}
	if outcome != nil && outcome.Transaction.ID != "" {
		details["transaction_id"] = outcome.Transaction.ID
	}
	httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be completed", http.StatusPaymentRequired).
		WithDetails(map[string]any{"details": details}))
}

func asPaymentFailed(err error) (*services.PaymentFailedError, bool) {
	var failed *services.PaymentFailedError
	return failed, errors.As(err, &failed)
}
