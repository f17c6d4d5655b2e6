package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atelier-perle/api/internal/domain"
	"github.com/atelier-perle/api/internal/payments"
	"github.com/atelier-perle/api/internal/repositories"
)

// OrderServiceDeps bundles dependencies required to construct an OrderService.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Payments  payments.Provider
	Publisher NotificationPublisher
	Clock     func() time.Time
	Logger    Logger
}

type orderService struct {
	orders    repositories.OrderRepository
	payments  payments.Provider
	publisher NotificationPublisher
	clock     func() time.Time
	logger    Logger
}

// NewOrderService wires an OrderService.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service requires order repository")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service requires payment provider")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:    deps.Orders,
		payments:  deps.Payments,
		publisher: deps.Publisher,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return s.orders.FindByID(ctx, orderID)
}

func (s *orderService) List(ctx context.Context, cmd OrderListCommand) ([]domain.Order, error) {
	return s.orders.List(ctx, repositories.OrderListQuery{
		CustomerID: cmd.CustomerID,
		Status:     cmd.Status,
		Limit:      cmd.Limit,
	})
}

// Transition moves an order one step forward along the lifecycle. Shipping
// requires carrier and tracking number; cancellation is rejected here and
// must go through Cancel so compensation always runs.
func (s *orderService) Transition(ctx context.Context, cmd TransitionCommand) (domain.Order, error) {
	if cmd.To == domain.OrderStatusCanceled {
		return domain.Order{}, ErrCancelViaTransition
	}
	if cmd.To == domain.OrderStatusShipped {
		if strings.TrimSpace(cmd.Carrier) == "" || strings.TrimSpace(cmd.TrackingNumber) == "" {
			return domain.Order{}, ErrCarrierTrackingRequired
		}
	}

	order, err := s.orders.Transition(ctx, repositories.OrderTransitionRequest{
		OrderID:        cmd.OrderID,
		To:             cmd.To,
		Carrier:        strings.TrimSpace(cmd.Carrier),
		TrackingNumber: strings.TrimSpace(cmd.TrackingNumber),
		Now:            s.clock(),
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": order.ID,
		"status":  string(order.Status),
	})
	return order, nil
}

// Cancel runs the cancellation compensator. The refund happens first: if it
// fails nothing else changes. The compensating transaction then restores
// stock and points and flips the status, guarded so it applies at most once.
// The cancellation notification goes out after commit, best-effort.
func (s *orderService) Cancel(ctx context.Context, cmd CancelCommand) (domain.Order, error) {
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return domain.Order{}, ErrCancellationReasonRequired
	}

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := domain.ValidateTransition(order.Status, domain.OrderStatusCanceled); err != nil {
		return domain.Order{}, err
	}

	if order.PaymentReference != "" && order.PaymentReference != domain.NoPaymentReference {
		if _, err := s.payments.Refund(ctx, payments.RefundRequest{
			Reference:      order.PaymentReference,
			Reason:         "requested_by_customer",
			IdempotencyKey: "refund:" + order.ID,
		}); err != nil {
			s.logger(ctx, "order.cancel.refund_failed", map[string]any{
				"orderId":   order.ID,
				"reference": order.PaymentReference,
				"error":     err.Error(),
			})
			return domain.Order{}, fmt.Errorf("%w: %v", ErrRefundRequired, err)
		}
	}

	result, err := s.orders.Cancel(ctx, repositories.OrderCancelRequest{
		OrderID: order.ID,
		Reason:  reason,
		Now:     s.clock(),
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"orderId": result.Order.ID,
		"reason":  reason,
	})
	s.publish(ctx, OrderNotification{
		Type:        NotificationTypeOrderCancelled,
		OrderID:     result.Order.ID,
		OrderNumber: result.Order.OrderNumber,
		Recipient:   result.Order.CustomerEmail,
		Subject:     "Votre commande a été annulée",
		Body:        fmt.Sprintf("Commande %s annulée : %s. Le remboursement est en cours.", result.Order.OrderNumber, reason),
		OccurredAt:  s.clock(),
	})

	return result.Order, nil
}

func (s *orderService) SetItemCompleted(ctx context.Context, orderID string, itemIndex int, completed bool) (domain.Order, error) {
	return s.orders.SetItemCompleted(ctx, orderID, itemIndex, completed, s.clock())
}

func (s *orderService) publish(ctx context.Context, message OrderNotification) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.PublishOrderNotification(ctx, message); err != nil {
		s.logger(ctx, "order.notification.publish_failed", map[string]any{
			"orderId": message.OrderID,
			"type":    message.Type,
			"error":   err.Error(),
		})
	}
}
