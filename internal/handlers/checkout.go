package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-perle/api/internal/domain"
	"github.com/atelier-perle/api/internal/payments"
	"github.com/atelier-perle/api/internal/platform/auth"
	"github.com/atelier-perle/api/internal/platform/httpx"
	"github.com/atelier-perle/api/internal/repositories"
	"github.com/atelier-perle/api/internal/services"
)

const maxCheckoutRequestBody = 64 * 1024

// CheckoutHandlers exposes the order placement endpoint for authenticated customers.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	limiter  rateLimiter
}

// CheckoutHandlerOption customises checkout handlers.
type CheckoutHandlerOption func(*CheckoutHandlers)

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutHandlerOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithCheckoutRateLimiter throttles order placement per customer.
func WithCheckoutRateLimiter(limiter rateLimiter) CheckoutHandlerOption {
	return func(h *CheckoutHandlers) {
		h.limiter = limiter
	}
}

// Routes registers the checkout endpoint under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Post("/", h.placeOrder)
}

type charmRequest struct {
	CharmID   string `json:"charmId"`
	Name      string `json:"name"`
	WithClasp bool   `json:"withClasp"`
}

type orderLineRequest struct {
	ModelID         string         `json:"modelId"`
	ModelKind       string         `json:"modelKind"`
	ModelName       string         `json:"modelName"`
	Charms          []charmRequest `json:"charms"`
	CreatorID       string         `json:"creatorId"`
	CreationID      string         `json:"creationId"`
	CreationName    string         `json:"creationName"`
	PreviewImageURL string         `json:"previewImageUrl"`
}

type placeOrderRequest struct {
	Lines           []orderLineRequest `json:"lines"`
	CouponCode      string             `json:"couponCode"`
	PointsToUse     int                `json:"pointsToUse"`
	DeliveryMethod  string             `json:"deliveryMethod"`
	ShippingAddress *domain.Address    `json:"shippingAddress"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout attempts; retry later", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req placeOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	lines := make([]domain.CartLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		kind, err := domain.ParseItemKind(line.ModelKind)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		charms := make([]domain.CharmRef, 0, len(line.Charms))
		for _, charm := range line.Charms {
			charms = append(charms, domain.CharmRef{
				CharmID:   strings.TrimSpace(charm.CharmID),
				Name:      strings.TrimSpace(charm.Name),
				WithClasp: charm.WithClasp,
			})
		}
		lines = append(lines, domain.CartLine{
			ModelID:         strings.TrimSpace(line.ModelID),
			ModelKind:       kind,
			ModelName:       strings.TrimSpace(line.ModelName),
			Charms:          charms,
			CreatorID:       strings.TrimSpace(line.CreatorID),
			CreationID:      strings.TrimSpace(line.CreationID),
			CreationName:    strings.TrimSpace(line.CreationName),
			PreviewImageURL: strings.TrimSpace(line.PreviewImageURL),
		})
	}

	confirmation, err := h.checkout.PlaceOrder(ctx, services.PlaceOrderCommand{
		CustomerID:      identity.UID,
		CustomerEmail:   identity.Email,
		Lines:           lines,
		CouponCode:      req.CouponCode,
		PointsRequested: req.PointsToUse,
		DeliveryMethod:  req.DeliveryMethod,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderPayloadFromDomain(confirmation.Order))
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var unavailable *repositories.StockUnavailableError
	switch {
	case errors.As(err, &unavailable):
		httpx.WriteError(ctx, w, httpx.NewError("stock_unavailable", "some items are out of stock", http.StatusConflict).
			WithDetails(map[string]any{
				"modelIds": unavailable.ModelIDs,
				"charmIds": unavailable.CharmIDs,
			}))
	case errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, services.ErrCustomerRequired),
		errors.Is(err, services.ErrShippingAddressRequired):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponInvalidCode),
		errors.Is(err, services.ErrCouponNotFound),
		errors.Is(err, services.ErrCouponExpired),
		errors.Is(err, services.ErrCouponValueInvalid),
		errors.Is(err, services.ErrCouponMinPurchase):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_invalid", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, repositories.ErrInsufficientPoints):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_points", "loyalty balance is insufficient", http.StatusConflict))
	case errors.Is(err, payments.ErrChargeDeclined):
		httpx.WriteError(ctx, w, httpx.NewError("payment_declined", "payment was declined", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrOrderNumberExhausted):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_retry", "could not allocate an order number; retry", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to place order", http.StatusInternalServerError))
	}
}
