package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-perle/api/internal/platform/httpx"
	"github.com/atelier-perle/api/internal/services"
)

const defaultReconcileAge = time.Hour

// InternalHandlers exposes maintenance endpoints invoked by the scheduler.
type InternalHandlers struct {
	checkout services.CheckoutService
}

// NewInternalHandlers constructs internal handlers.
func NewInternalHandlers(checkout services.CheckoutService) *InternalHandlers {
	return &InternalHandlers{checkout: checkout}
}

// Routes registers internal endpoints under the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/reconcile-intents", h.reconcileIntents)
}

// reconcileIntents sweeps stale pending-capture records: captured charges
// whose order never committed are refunded, never-charged ones abandoned.
func (h *InternalHandlers) reconcileIntents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	olderThan := defaultReconcileAge
	if raw := r.URL.Query().Get("olderThanMinutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "olderThanMinutes must be a positive integer", http.StatusBadRequest))
			return
		}
		olderThan = time.Duration(minutes) * time.Minute
	}

	report, err := h.checkout.ReconcileAbandonedIntents(ctx, olderThan)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconcile_error", "failed to reconcile payment intents", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"refunded":  report.Refunded,
		"abandoned": report.Abandoned,
		"failed":    report.Failed,
	})
}
