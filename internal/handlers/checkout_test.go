package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-perle/api/internal/domain"
	"github.com/atelier-perle/api/internal/payments"
	"github.com/atelier-perle/api/internal/platform/auth"
	"github.com/atelier-perle/api/internal/repositories"
	"github.com/atelier-perle/api/internal/services"
)

type stubCheckoutService struct {
	placeFn     func(context.Context, services.PlaceOrderCommand) (services.OrderConfirmation, error)
	reconcileFn func(context.Context, time.Duration) (services.ReconcileReport, error)
}

func (s *stubCheckoutService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.OrderConfirmation, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return services.OrderConfirmation{}, nil
}

func (s *stubCheckoutService) ReconcileAbandonedIntents(ctx context.Context, olderThan time.Duration) (services.ReconcileReport, error) {
	if s.reconcileFn != nil {
		return s.reconcileFn(ctx, olderThan)
	}
	return services.ReconcileReport{}, nil
}

func checkoutRouter(service services.CheckoutService, opts ...CheckoutHandlerOption) chi.Router {
	r := chi.NewRouter()
	NewCheckoutHandlers(nil, service, opts...).Routes(r)
	return r
}

func placeOrderBody(t *testing.T) *bytes.Reader {
	t.Helper()
	payload := map[string]any{
		"lines": []map[string]any{
			{
				"modelId":   "model-1",
				"modelKind": "bracelet",
				"charms": []map[string]any{
					{"charmId": "charm-1", "withClasp": true},
				},
				"creatorId": "creator-1",
			},
		},
		"couponCode":  "PROMO20",
		"pointsToUse": 50,
		"shippingAddress": map[string]any{
			"line1":      "1 rue de la Paix",
			"postalCode": "75002",
			"city":       "Paris",
			"country":    "FR",
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return bytes.NewReader(data)
}

func authenticatedRequest(method, target string, body *bytes.Reader, roles ...string) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	identity := &auth.Identity{UID: "user-1", Email: "user@example.com", Roles: roles}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func TestPlaceOrderHandlerSuccess(t *testing.T) {
	var captured services.PlaceOrderCommand
	service := &stubCheckoutService{
		placeFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.OrderConfirmation, error) {
			captured = cmd
			return services.OrderConfirmation{Order: domain.Order{
				ID:          "order-1",
				OrderNumber: "BJX-250301-AB12CD",
				CustomerID:  cmd.CustomerID,
				TotalPrice:  23.20,
				Status:      domain.OrderStatusSubmitted,
				CreatedAt:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
			}}, nil
		},
	}
	router := checkoutRouter(service)

	req := authenticatedRequest(http.MethodPost, "/", placeOrderBody(t))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CustomerID != "user-1" || captured.CustomerEmail != "user@example.com" {
		t.Fatalf("expected identity-derived customer, got %+v", captured)
	}
	if captured.CouponCode != "PROMO20" || captured.PointsRequested != 50 {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if len(captured.Lines) != 1 || captured.Lines[0].ModelKind != domain.ItemKindBracelet {
		t.Fatalf("unexpected lines: %+v", captured.Lines)
	}

	var body struct {
		OrderNumber string `json:"orderNumber"`
		Status      string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body.OrderNumber != "BJX-250301-AB12CD" {
		t.Fatalf("unexpected order number %q", body.OrderNumber)
	}
	if body.Status != string(domain.OrderStatusSubmitted) {
		t.Fatalf("unexpected status %q", body.Status)
	}
}

func TestPlaceOrderHandlerRequiresIdentity(t *testing.T) {
	router := checkoutRouter(&stubCheckoutService{})

	req := httptest.NewRequest(http.MethodPost, "/", placeOrderBody(t))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestPlaceOrderHandlerStockShortage(t *testing.T) {
	service := &stubCheckoutService{
		placeFn: func(context.Context, services.PlaceOrderCommand) (services.OrderConfirmation, error) {
			return services.OrderConfirmation{}, &repositories.StockUnavailableError{
				ModelIDs: []string{"model-1"},
				CharmIDs: []string{"charm-1", "charm-2"},
			}
		},
	}
	router := checkoutRouter(service)

	req := authenticatedRequest(http.MethodPost, "/", placeOrderBody(t))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var body struct {
		Error    string   `json:"error"`
		ModelIDs []string `json:"modelIds"`
		CharmIDs []string `json:"charmIds"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body.Error != "stock_unavailable" {
		t.Fatalf("expected stock_unavailable, got %q", body.Error)
	}
	if len(body.ModelIDs) != 1 || len(body.CharmIDs) != 2 {
		t.Fatalf("expected itemised shortage, got %+v", body)
	}
}

func TestPlaceOrderHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "empty cart", err: services.ErrEmptyCart, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "expired coupon", err: services.ErrCouponExpired, wantStatus: http.StatusUnprocessableEntity, wantCode: "coupon_invalid"},
		{name: "insufficient points", err: repositories.ErrInsufficientPoints, wantStatus: http.StatusConflict, wantCode: "insufficient_points"},
		{name: "declined charge", err: payments.ErrChargeDeclined, wantStatus: http.StatusPaymentRequired, wantCode: "payment_declined"},
		{name: "number exhausted", err: services.ErrOrderNumberExhausted, wantStatus: http.StatusServiceUnavailable, wantCode: "checkout_retry"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubCheckoutService{
				placeFn: func(context.Context, services.PlaceOrderCommand) (services.OrderConfirmation, error) {
					return services.OrderConfirmation{}, tc.err
				},
			}
			router := checkoutRouter(service)

			req := authenticatedRequest(http.MethodPost, "/", placeOrderBody(t))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			var body struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("parse response: %v", err)
			}
			if body.Error != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, body.Error)
			}
		})
	}
}

func TestPlaceOrderHandlerRejectsInvalidKind(t *testing.T) {
	router := checkoutRouter(&stubCheckoutService{})

	payload := []byte(`{"lines":[{"modelId":"m1","modelKind":"ring"}],"shippingAddress":{"line1":"a","postalCode":"1","city":"x","country":"FR"}}`)
	req := authenticatedRequest(http.MethodPost, "/", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPlaceOrderHandlerRateLimited(t *testing.T) {
	service := &stubCheckoutService{
		placeFn: func(context.Context, services.PlaceOrderCommand) (services.OrderConfirmation, error) {
			return services.OrderConfirmation{Order: domain.Order{ID: "order-1"}}, nil
		},
	}
	limiter := NewFixedWindowLimiter(1, time.Minute, nil)
	router := checkoutRouter(service, WithCheckoutRateLimiter(limiter))

	first := authenticatedRequest(http.MethodPost, "/", placeOrderBody(t))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, first)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}

	second := authenticatedRequest(http.MethodPost, "/", placeOrderBody(t))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, second)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}
