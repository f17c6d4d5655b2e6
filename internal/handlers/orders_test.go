package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-perle/api/internal/domain"
	"github.com/atelier-perle/api/internal/platform/auth"
	"github.com/atelier-perle/api/internal/repositories"
	"github.com/atelier-perle/api/internal/services"
)

type stubOrderService struct {
	getFn        func(context.Context, string) (domain.Order, error)
	listFn       func(context.Context, services.OrderListCommand) ([]domain.Order, error)
	transitionFn func(context.Context, services.TransitionCommand) (domain.Order, error)
	cancelFn     func(context.Context, services.CancelCommand) (domain.Order, error)
	itemFn       func(context.Context, string, int, bool) (domain.Order, error)
}

func (s *stubOrderService) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) List(ctx context.Context, cmd services.OrderListCommand) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, cmd)
	}
	return nil, nil
}

func (s *stubOrderService) Transition(ctx context.Context, cmd services.TransitionCommand) (domain.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelCommand) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) SetItemCompleted(ctx context.Context, orderID string, itemIndex int, completed bool) (domain.Order, error) {
	if s.itemFn != nil {
		return s.itemFn(ctx, orderID, itemIndex, completed)
	}
	return domain.Order{}, errors.New("not implemented")
}

func orderRouter(service services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewOrderHandlers(nil, service).Routes(r)
	return r
}

func TestListOrdersScopesCustomers(t *testing.T) {
	var captured services.OrderListCommand
	service := &stubOrderService{
		listFn: func(_ context.Context, cmd services.OrderListCommand) ([]domain.Order, error) {
			captured = cmd
			return []domain.Order{{ID: "order-1", CustomerID: "user-1"}}, nil
		},
	}
	router := orderRouter(service)

	req := authenticatedRequest(http.MethodGet, "/?customerId=someone-else", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.CustomerID != "user-1" {
		t.Fatalf("customer scope must be forced to the caller, got %q", captured.CustomerID)
	}
}

func TestListOrdersStaffMayScopeFreely(t *testing.T) {
	var captured services.OrderListCommand
	service := &stubOrderService{
		listFn: func(_ context.Context, cmd services.OrderListCommand) ([]domain.Order, error) {
			captured = cmd
			return nil, nil
		},
	}
	router := orderRouter(service)

	req := authenticatedRequest(http.MethodGet, "/?customerId=someone-else&status=expédiée", nil, auth.RoleStaff)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.CustomerID != "someone-else" {
		t.Fatalf("staff filter should pass through, got %q", captured.CustomerID)
	}
	if captured.Status != domain.OrderStatusShipped {
		t.Fatalf("expected shipped filter, got %q", captured.Status)
	}
}

func TestGetOrderHidesOtherCustomers(t *testing.T) {
	service := &stubOrderService{
		getFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "order-1", CustomerID: "someone-else"}, nil
		},
	}
	router := orderRouter(service)

	req := authenticatedRequest(http.MethodGet, "/order-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign order, got %d", rr.Code)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	service := &stubOrderService{
		getFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{}, repositories.ErrOrderNotFound
		},
	}
	router := orderRouter(service)

	req := authenticatedRequest(http.MethodGet, "/missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestChangeStatusTransition(t *testing.T) {
	var captured services.TransitionCommand
	service := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.TransitionCommand) (domain.Order, error) {
			captured = cmd
			return domain.Order{ID: cmd.OrderID, Status: cmd.To}, nil
		},
	}
	router := orderRouter(service)

	payload := []byte(`{"status":"expédiée","carrier":"Colissimo","trackingNumber":"TRK-1"}`)
	req := authenticatedRequest(http.MethodPost, "/order-1/status", bytes.NewReader(payload), auth.RoleStaff)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.To != domain.OrderStatusShipped || captured.Carrier != "Colissimo" {
		t.Fatalf("unexpected command: %+v", captured)
	}
}

func TestChangeStatusRoutesCancellation(t *testing.T) {
	var captured services.CancelCommand
	service := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelCommand) (domain.Order, error) {
			captured = cmd
			return domain.Order{ID: cmd.OrderID, Status: domain.OrderStatusCanceled}, nil
		},
	}
	router := orderRouter(service)

	payload := []byte(`{"status":"annulée","reason":"changement d'avis"}`)
	req := authenticatedRequest(http.MethodPost, "/order-1/status", bytes.NewReader(payload), auth.RoleStaff)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "order-1" || captured.Reason != "changement d'avis" {
		t.Fatalf("unexpected cancel command: %+v", captured)
	}
}

func TestChangeStatusMapsTransitionErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "same status", err: domain.ErrSameStatus, wantStatus: http.StatusConflict},
		{name: "terminal", err: domain.ErrTerminalStatus, wantStatus: http.StatusConflict},
		{name: "invalid hop", err: domain.ErrInvalidTransition, wantStatus: http.StatusConflict},
		{name: "unknown status", err: domain.ErrUnknownStatus, wantStatus: http.StatusBadRequest},
		{name: "missing carrier", err: services.ErrCarrierTrackingRequired, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubOrderService{
				transitionFn: func(context.Context, services.TransitionCommand) (domain.Order, error) {
					return domain.Order{}, tc.err
				},
			}
			router := orderRouter(service)

			payload := []byte(`{"status":"livrée"}`)
			req := authenticatedRequest(http.MethodPost, "/order-1/status", bytes.NewReader(payload), auth.RoleStaff)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
		})
	}
}

func TestChangeStatusRefundFailure(t *testing.T) {
	service := &stubOrderService{
		cancelFn: func(context.Context, services.CancelCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrRefundRequired
		},
	}
	router := orderRouter(service)

	payload := []byte(`{"status":"annulée","reason":"défaut"}`)
	req := authenticatedRequest(http.MethodPost, "/order-1/status", bytes.NewReader(payload), auth.RoleStaff)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestSetItemCompleted(t *testing.T) {
	var capturedIndex int
	var capturedCompleted bool
	service := &stubOrderService{
		itemFn: func(_ context.Context, orderID string, itemIndex int, completed bool) (domain.Order, error) {
			capturedIndex = itemIndex
			capturedCompleted = completed
			return domain.Order{ID: orderID}, nil
		},
	}
	router := orderRouter(service)

	payload := []byte(`{"isCompleted":true}`)
	req := authenticatedRequest(http.MethodPatch, "/order-1/items/2", bytes.NewReader(payload), auth.RoleStaff)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedIndex != 2 || !capturedCompleted {
		t.Fatalf("unexpected capture: index=%d completed=%v", capturedIndex, capturedCompleted)
	}
}

func TestSetItemCompletedRequiresFlag(t *testing.T) {
	router := orderRouter(&stubOrderService{})

	payload := []byte(`{}`)
	req := authenticatedRequest(http.MethodPatch, "/order-1/items/0", bytes.NewReader(payload), auth.RoleStaff)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
