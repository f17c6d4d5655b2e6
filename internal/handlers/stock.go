package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-perle/api/internal/domain"
	"github.com/atelier-perle/api/internal/platform/auth"
	"github.com/atelier-perle/api/internal/platform/httpx"
	"github.com/atelier-perle/api/internal/services"

	pfirestore "github.com/atelier-perle/api/internal/platform/firestore"
)

const maxStockRequestBody = 4 * 1024

// StockHandlers exposes the stock ledger to staff, with restocking gated to admins.
type StockHandlers struct {
	authn  *auth.Authenticator
	stocks services.StockService
}

// NewStockHandlers constructs stock handlers.
func NewStockHandlers(authn *auth.Authenticator, stocks services.StockService) *StockHandlers {
	return &StockHandlers{authn: authn, stocks: stocks}
}

// Routes registers stock endpoints under the provided router.
func (h *StockHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	staff := r
	if h.authn != nil {
		staff = r.With(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	staff.Get("/", h.listStock)
	staff.Get("/{kind}/{itemID}", h.getStock)

	admin := r
	if h.authn != nil {
		admin = r.With(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	admin.Post("/{kind}/{itemID}/restock", h.restock)
}

type stockPayload struct {
	Kind          string `json:"kind"`
	ItemID        string `json:"itemId"`
	Quantity      int    `json:"quantity"`
	LastOrderedAt string `json:"lastOrderedAt,omitempty"`
	RestockedAt   string `json:"restockedAt,omitempty"`
}

func stockPayloadFromDomain(record domain.StockRecord) stockPayload {
	return stockPayload{
		Kind:          string(record.Key.Kind),
		ItemID:        record.Key.ID,
		Quantity:      record.Quantity,
		LastOrderedAt: formatTimePtr(record.LastOrderedAt),
		RestockedAt:   formatTimePtr(record.RestockedAt),
	}
}

func (h *StockHandlers) listStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stocks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	records, err := h.stocks.List(ctx)
	if err != nil {
		h.writeStockError(ctx, w, err)
		return
	}
	payload := make([]stockPayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, stockPayloadFromDomain(record))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"stock": payload})
}

func (h *StockHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stocks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	kind := chi.URLParam(r, "kind")
	if _, err := domain.ParseItemKind(kind); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	record, err := h.stocks.Get(ctx, kind, chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stockPayloadFromDomain(record))
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *StockHandlers) restock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stocks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxStockRequestBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	var req restockRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if req.Quantity <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity must be > 0", http.StatusBadRequest))
		return
	}
	kind := chi.URLParam(r, "kind")
	if _, err := domain.ParseItemKind(kind); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	record, err := h.stocks.Restock(ctx, services.RestockCommand{
		Kind:     kind,
		ItemID:   chi.URLParam(r, "itemID"),
		Quantity: req.Quantity,
	})
	if err != nil {
		h.writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stockPayloadFromDomain(record))
}

func (h *StockHandlers) writeStockError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case pfirestore.IsNotFound(err):
		httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", "stock record not found", http.StatusNotFound))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("stock_timeout", "stock lookup timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("stock_error", "failed to process stock request", http.StatusInternalServerError))
	}
}
