package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/httpx"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

const maxSweepLimit = 500

// InternalHandlers serves scheduler-triggered maintenance endpoints.
type InternalHandlers struct {
	reconciliation services.ReconciliationService
}

// NewInternalHandlers constructs internal handlers.
func NewInternalHandlers(reconciliation services.ReconciliationService) *InternalHandlers {
	return &InternalHandlers{reconciliation: reconciliation}
}

// Routes registers POST /payments:reconcile.
func (h *InternalHandlers) Routes(r chi.Router) {
	r.Post("/payments:reconcile", h.reconcile)
}

type reconcileRequest struct {
	OlderThan string `json:"older_than"`
	Limit     int    `json:"limit"`
}

type reconcileResponse struct {
	Checked   int `json:"checked"`
	Finalized int `json:"finalized"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
}

func (h *InternalHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req reconcileRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
			writeBadRequest(ctx, w, "request body must be valid JSON")
			return
		}
	}
	var cmd services.ReconcileSweepCommand
	if req.OlderThan != "" {
		age, err := time.ParseDuration(req.OlderThan)
		if err != nil || age < 0 {
			writeBadRequest(ctx, w, "older_than must be a duration such as 10m")
			return
		}
		cmd.OlderThan = age
	}
	if req.Limit < 0 || req.Limit > maxSweepLimit {
		writeBadRequest(ctx, w, "limit must be between 0 and 500")
		return
	}
	cmd.Limit = req.Limit

	result, err := h.reconciliation.ReconcilePending(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reconcileResponse{
		Checked:   result.Checked,
		Finalized: result.Finalized,
		Pending:   result.Pending,
		Failed:    result.Failed,
	})
}
