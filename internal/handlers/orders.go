package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-perle/api/internal/domain"
	"github.com/atelier-perle/api/internal/platform/auth"
	"github.com/atelier-perle/api/internal/platform/httpx"
	"github.com/atelier-perle/api/internal/repositories"
	"github.com/atelier-perle/api/internal/services"
)

const maxOrderRequestBody = 8 * 1024

// OrderHandlers exposes the post-checkout order lifecycle endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers guarded by Firebase authentication.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Get("/", h.listOrders)
	group.Get("/{orderID}", h.getOrder)

	staff := group
	if h.authn != nil {
		staff = r.With(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	staff.Post("/{orderID}/status", h.changeStatus)
	staff.Patch("/{orderID}/items/{itemIndex}", h.setItemCompleted)
}

type charmPayload struct {
	CharmID   string `json:"charmId"`
	Name      string `json:"name,omitempty"`
	WithClasp bool   `json:"withClasp"`
}

type orderItemPayload struct {
	ModelID         string         `json:"modelId"`
	ModelKind       string         `json:"modelKind"`
	ModelName       string         `json:"modelName,omitempty"`
	Charms          []charmPayload `json:"charms,omitempty"`
	Price           float64        `json:"price"`
	PreviewImageURL string         `json:"previewImageUrl,omitempty"`
	IsCompleted     bool           `json:"isCompleted"`
	CreatorID       string         `json:"creatorId,omitempty"`
	CreationID      string         `json:"creationId,omitempty"`
	CreationName    string         `json:"creationName,omitempty"`
}

type orderPayload struct {
	ID                 string             `json:"id"`
	OrderNumber        string             `json:"orderNumber"`
	CustomerID         string             `json:"customerId"`
	CustomerEmail      string             `json:"customerEmail,omitempty"`
	Subtotal           float64            `json:"subtotal"`
	TotalPrice         float64            `json:"totalPrice"`
	Items              []orderItemPayload `json:"items"`
	Status             string             `json:"status"`
	PaymentReference   string             `json:"paymentReference,omitempty"`
	DeliveryMethod     string             `json:"deliveryMethod,omitempty"`
	ShippingAddress    *domain.Address    `json:"shippingAddress,omitempty"`
	Carrier            string             `json:"carrier,omitempty"`
	TrackingNumber     string             `json:"trackingNumber,omitempty"`
	CouponCode         string             `json:"couponCode,omitempty"`
	CouponDiscount     float64            `json:"couponDiscount,omitempty"`
	PointsUsed         int                `json:"pointsUsed,omitempty"`
	PointsValue        float64            `json:"pointsValue,omitempty"`
	CancellationReason string             `json:"cancellationReason,omitempty"`
	CanceledAt         string             `json:"canceledAt,omitempty"`
	CreatedAt          string             `json:"createdAt"`
}

func orderPayloadFromDomain(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		charms := make([]charmPayload, 0, len(item.Charms))
		for _, charm := range item.Charms {
			charms = append(charms, charmPayload{CharmID: charm.CharmID, Name: charm.Name, WithClasp: charm.WithClasp})
		}
		items = append(items, orderItemPayload{
			ModelID:         item.ModelID,
			ModelKind:       string(item.ModelKind),
			ModelName:       item.ModelName,
			Charms:          charms,
			Price:           item.Price,
			PreviewImageURL: item.PreviewImageURL,
			IsCompleted:     item.IsCompleted,
			CreatorID:       item.CreatorID,
			CreationID:      item.CreationID,
			CreationName:    item.CreationName,
		})
	}
	return orderPayload{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		CustomerID:         order.CustomerID,
		CustomerEmail:      order.CustomerEmail,
		Subtotal:           domain.RoundMonetary(order.Subtotal),
		TotalPrice:         domain.RoundMonetary(order.TotalPrice),
		Items:              items,
		Status:             string(order.Status),
		PaymentReference:   order.PaymentReference,
		DeliveryMethod:     order.DeliveryMethod,
		ShippingAddress:    order.ShippingAddress,
		Carrier:            order.Carrier,
		TrackingNumber:     order.TrackingNumber,
		CouponCode:         order.CouponCode,
		CouponDiscount:     domain.RoundMonetary(order.CouponDiscount),
		PointsUsed:         order.PointsUsed,
		PointsValue:        domain.RoundMonetary(order.PointsValue),
		CancellationReason: order.CancellationReason,
		CanceledAt:         formatTimePtr(order.CanceledAt),
		CreatedAt:          formatTime(order.CreatedAt),
	}
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	cmd := services.OrderListCommand{
		CustomerID: strings.TrimSpace(r.URL.Query().Get("customerId")),
		Status:     domain.OrderStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
	}
	if limit := strings.TrimSpace(r.URL.Query().Get("limit")); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil || parsed <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		cmd.Limit = parsed
	}

	// Customers only ever see their own orders; staff may scope freely.
	if !identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin) {
		cmd.CustomerID = identity.UID
	}

	orders, err := h.orders.List(ctx, cmd)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payload := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payload = append(payload, orderPayloadFromDomain(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": payload})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	if order.CustomerID != identity.UID && !identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, orderPayloadFromDomain(order))
}

type changeStatusRequest struct {
	Status         string `json:"status"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
	Reason         string `json:"reason"`
}

// changeStatus advances the order lifecycle. The cancelled status routes to
// the cancellation compensator rather than the plain transition path.
func (h *OrderHandlers) changeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req changeStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	orderID := chi.URLParam(r, "orderID")
	target := domain.OrderStatus(strings.TrimSpace(req.Status))

	var order domain.Order
	if target == domain.OrderStatusCanceled {
		order, err = h.orders.Cancel(ctx, services.CancelCommand{
			OrderID: orderID,
			Reason:  req.Reason,
		})
	} else {
		order, err = h.orders.Transition(ctx, services.TransitionCommand{
			OrderID:        orderID,
			To:             target,
			Carrier:        req.Carrier,
			TrackingNumber: req.TrackingNumber,
		})
	}
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderPayloadFromDomain(order))
}

type setItemCompletedRequest struct {
	IsCompleted *bool `json:"isCompleted"`
}

func (h *OrderHandlers) setItemCompleted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	itemIndex, err := strconv.Atoi(chi.URLParam(r, "itemIndex"))
	if err != nil || itemIndex < 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item index must be a non-negative integer", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	var req setItemCompletedRequest
	if err := json.Unmarshal(body, &req); err != nil || req.IsCompleted == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "isCompleted is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.SetItemCompleted(ctx, chi.URLParam(r, "orderID"), itemIndex, *req.IsCompleted)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderPayloadFromDomain(order))
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repositories.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCancelViaTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cancellation requires a reason via the cancel path", http.StatusBadRequest))
	case errors.Is(err, services.ErrCarrierTrackingRequired):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "carrier and trackingNumber are required to ship", http.StatusBadRequest))
	case errors.Is(err, services.ErrCancellationReasonRequired):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cancellation reason is required", http.StatusBadRequest))
	case errors.Is(err, services.ErrRefundRequired):
		httpx.WriteError(ctx, w, httpx.NewError("refund_failed", "refund could not be issued; order left unchanged", http.StatusBadGateway))
	case errors.Is(err, domain.ErrUnknownStatus):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, domain.ErrSameStatus),
		errors.Is(err, domain.ErrTerminalStatus),
		errors.Is(err, domain.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
