package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/atelier-perle/api/internal/domain"
	"github.com/atelier-perle/api/internal/payments"
	"github.com/atelier-perle/api/internal/repositories"
)

const (
	orderNumberPrefix   = "BJX"
	orderNumberAttempts = 3
	paymentCurrency     = "EUR"
	deliveryMethodHome  = "domicile"
)

// CheckoutServiceDeps bundles dependencies required to construct a
// CheckoutService.
type CheckoutServiceDeps struct {
	Checkout  repositories.CheckoutRepository
	Coupons   CouponService
	Intents   repositories.PaymentIntentRepository
	Payments  payments.Provider
	Publisher NotificationPublisher
	Clock     func() time.Time
	// IDGenerator supplies document ids (orders, pending intents).
	IDGenerator func() string
	// NumberToken supplies the random 6-character order number suffix.
	NumberToken func() string
	Logger      Logger
}

type checkoutService struct {
	checkout    repositories.CheckoutRepository
	coupons     CouponService
	intents     repositories.PaymentIntentRepository
	payments    payments.Provider
	publisher   NotificationPublisher
	clock       func() time.Time
	idGenerator func() string
	numberToken func() string
	logger      Logger
}

// NewCheckoutService wires a CheckoutService.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Checkout == nil {
		return nil, errors.New("checkout service requires checkout repository")
	}
	if deps.Coupons == nil {
		return nil, errors.New("checkout service requires coupon service")
	}
	if deps.Intents == nil {
		return nil, errors.New("checkout service requires payment intent repository")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service requires payment provider")
	}
	if deps.IDGenerator == nil {
		return nil, errors.New("checkout service requires id generator")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	numberToken := deps.NumberToken
	if numberToken == nil {
		numberToken = randomNumberToken
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		checkout:    deps.Checkout,
		coupons:     deps.Coupons,
		intents:     deps.Intents,
		payments:    deps.Payments,
		publisher:   deps.Publisher,
		clock:       func() time.Time { return clock().UTC() },
		idGenerator: deps.IDGenerator,
		numberToken: numberToken,
		logger:      logger,
	}, nil
}

// PlaceOrder runs the full checkout flow: price the cart, resolve coupon and
// points, charge the processor, then commit the atomic order transaction.
// The charge happens outside the transaction; a pending-capture record
// bridges the gap so an orphaned charge is always found and refunded.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (OrderConfirmation, error) {
	if strings.TrimSpace(cmd.CustomerID) == "" {
		return OrderConfirmation{}, ErrCustomerRequired
	}
	if len(cmd.Lines) == 0 {
		return OrderConfirmation{}, ErrEmptyCart
	}
	deliveryMethod := strings.TrimSpace(cmd.DeliveryMethod)
	if deliveryMethod == "" {
		deliveryMethod = deliveryMethodHome
	}
	if deliveryMethod == deliveryMethodHome && cmd.ShippingAddress == nil {
		return OrderConfirmation{}, ErrShippingAddressRequired
	}
	for _, line := range cmd.Lines {
		if strings.TrimSpace(line.ModelID) == "" {
			return OrderConfirmation{}, errors.New("cart line is missing a model id")
		}
		if !line.ModelKind.IsModel() {
			return OrderConfirmation{}, fmt.Errorf("cart line %s has invalid model kind %q", line.ModelID, line.ModelKind)
		}
	}

	now := s.clock()

	// Price each line and snapshot the cart into immutable order items.
	items := make([]domain.OrderItem, 0, len(cmd.Lines))
	subtotal := 0.0
	for _, line := range cmd.Lines {
		price := domain.LinePrice(line)
		subtotal += price
		items = append(items, domain.OrderItem{
			ModelID:         line.ModelID,
			ModelKind:       line.ModelKind,
			ModelName:       line.ModelName,
			Charms:          line.Charms,
			Price:           domain.RoundMonetary(price),
			PreviewImageURL: line.PreviewImageURL,
			CreatorID:       line.CreatorID,
			CreationID:      line.CreationID,
			CreationName:    line.CreationName,
		})
	}

	var coupon domain.Coupon
	couponDiscount := 0.0
	if strings.TrimSpace(cmd.CouponCode) != "" {
		var err error
		coupon, err = s.coupons.ValidateCoupon(ctx, cmd.CouponCode, subtotal)
		if err != nil {
			return OrderConfirmation{}, err
		}
		couponDiscount = s.coupons.ComputeDiscount(coupon, subtotal)
	}

	totalAfterCoupon := math.Max(0, subtotal-couponDiscount)
	spend, err := s.coupons.ResolvePointsSpend(ctx, cmd.CustomerID, cmd.PointsRequested, totalAfterCoupon)
	if err != nil {
		return OrderConfirmation{}, err
	}
	total := domain.RoundMonetary(math.Max(0, totalAfterCoupon-spend.Value))

	orderID := s.idGenerator()
	order := domain.Order{
		ID:              orderID,
		OrderNumber:     s.newOrderNumber(now),
		CustomerID:      cmd.CustomerID,
		CustomerEmail:   cmd.CustomerEmail,
		Subtotal:        subtotal,
		TotalPrice:      total,
		Items:           items,
		Status:          domain.OrderStatusSubmitted,
		DeliveryMethod:  deliveryMethod,
		ShippingAddress: cmd.ShippingAddress,
		CouponID:        coupon.ID,
		CouponCode:      coupon.Code,
		CouponDiscount:  couponDiscount,
		PointsUsed:      spend.Points,
		PointsValue:     spend.Value,
		CreatedAt:       now,
	}

	// Charge before the transaction. Free orders skip the processor and
	// carry the sentinel reference.
	intentID := ""
	if total > 0 {
		intentID = s.idGenerator()
		if err := s.intents.Create(ctx, repositories.PaymentIntentRecord{
			ID:        intentID,
			OrderID:   orderID,
			Amount:    total,
			Currency:  paymentCurrency,
			Status:    repositories.PaymentIntentStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return OrderConfirmation{}, fmt.Errorf("record pending capture: %w", err)
		}

		charge, err := s.payments.Charge(ctx, payments.ChargeRequest{
			OrderID:        orderID,
			Amount:         int64(math.Round(total * 100)),
			Currency:       paymentCurrency,
			PayerEmail:     cmd.CustomerEmail,
			Description:    fmt.Sprintf("Commande %s", order.OrderNumber),
			IdempotencyKey: intentID,
		})
		if err != nil {
			if markErr := s.intents.MarkAbandoned(ctx, intentID, s.clock()); markErr != nil {
				s.logger(ctx, "checkout.intent.abandon_failed", map[string]any{
					"intentId": intentID,
					"error":    markErr.Error(),
				})
			}
			return OrderConfirmation{}, err
		}
		order.PaymentReference = charge.Reference
		if err := s.intents.SetReference(ctx, intentID, charge.Reference, s.clock()); err != nil {
			s.logger(ctx, "checkout.intent.reference_failed", map[string]any{
				"intentId": intentID,
				"error":    err.Error(),
			})
		}
	} else {
		order.PaymentReference = domain.NoPaymentReference
	}

	demand := domain.AggregateDemand(cmd.Lines)
	awards := domain.AccrueCreatorAwards(items)

	var result repositories.PlaceOrderResult
	for attempt := 0; ; attempt++ {
		result, err = s.checkout.PlaceOrder(ctx, repositories.PlaceOrderRequest{
			Order:           order,
			Demand:          demand,
			Awards:          awards,
			PaymentIntentID: intentID,
			Now:             s.clock(),
		})
		if err == nil {
			break
		}
		if errors.Is(err, repositories.ErrOrderNumberTaken) && attempt < orderNumberAttempts-1 {
			order.OrderNumber = s.newOrderNumber(s.clock())
			continue
		}
		if errors.Is(err, repositories.ErrOrderNumberTaken) {
			err = ErrOrderNumberExhausted
		}
		s.compensateFailedPersist(ctx, order, intentID)
		return OrderConfirmation{}, err
	}

	s.logger(ctx, "checkout.order.committed", map[string]any{
		"orderId":     result.Order.ID,
		"orderNumber": result.Order.OrderNumber,
		"total":       result.Order.TotalPrice,
	})
	s.publish(ctx, OrderNotification{
		Type:        NotificationTypeOrderCreated,
		OrderID:     result.Order.ID,
		OrderNumber: result.Order.OrderNumber,
		Recipient:   result.Order.CustomerEmail,
		Subject:     "Votre commande est confirmée",
		Body:        fmt.Sprintf("Commande %s enregistrée pour un total de %.2f €.", result.Order.OrderNumber, result.Order.TotalPrice),
		OccurredAt:  s.clock(),
	})

	return OrderConfirmation{Order: result.Order, Stocks: result.Stocks}, nil
}

// compensateFailedPersist refunds a captured charge whose order transaction
// did not commit. Best-effort: the reconcile pass catches anything missed
// here.
func (s *checkoutService) compensateFailedPersist(ctx context.Context, order domain.Order, intentID string) {
	if intentID == "" || order.PaymentReference == "" || order.PaymentReference == domain.NoPaymentReference {
		return
	}
	if _, err := s.payments.Refund(ctx, payments.RefundRequest{
		Reference:      order.PaymentReference,
		Reason:         "requested_by_customer",
		IdempotencyKey: "refund:" + intentID,
	}); err != nil {
		s.logger(ctx, "checkout.compensation.refund_failed", map[string]any{
			"intentId":  intentID,
			"reference": order.PaymentReference,
			"error":     err.Error(),
		})
		return
	}
	if err := s.intents.MarkRefunded(ctx, intentID, s.clock()); err != nil {
		s.logger(ctx, "checkout.compensation.mark_failed", map[string]any{
			"intentId": intentID,
			"error":    err.Error(),
		})
	}
}

// ReconcileAbandonedIntents sweeps pending-capture records older than the
// given age: charged ones are refunded, never-charged ones marked abandoned.
func (s *checkoutService) ReconcileAbandonedIntents(ctx context.Context, olderThan time.Duration) (ReconcileReport, error) {
	if olderThan <= 0 {
		return ReconcileReport{}, errors.New("reconcile: olderThan must be positive")
	}

	cutoff := s.clock().Add(-olderThan)
	records, err := s.intents.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return ReconcileReport{}, err
	}

	var report ReconcileReport
	for _, record := range records {
		if record.Reference == "" {
			if err := s.intents.MarkAbandoned(ctx, record.ID, s.clock()); err != nil {
				report.Failed++
				s.logger(ctx, "checkout.reconcile.abandon_failed", map[string]any{
					"intentId": record.ID,
					"error":    err.Error(),
				})
				continue
			}
			report.Abandoned++
			continue
		}

		if _, err := s.payments.Refund(ctx, payments.RefundRequest{
			Reference:      record.Reference,
			Reason:         "requested_by_customer",
			IdempotencyKey: "refund:" + record.ID,
		}); err != nil {
			report.Failed++
			s.logger(ctx, "checkout.reconcile.refund_failed", map[string]any{
				"intentId":  record.ID,
				"reference": record.Reference,
				"error":     err.Error(),
			})
			continue
		}
		if err := s.intents.MarkRefunded(ctx, record.ID, s.clock()); err != nil {
			report.Failed++
			s.logger(ctx, "checkout.reconcile.mark_failed", map[string]any{
				"intentId": record.ID,
				"error":    err.Error(),
			})
			continue
		}
		report.Refunded++
	}

	s.logger(ctx, "checkout.reconcile.completed", map[string]any{
		"refunded":  report.Refunded,
		"abandoned": report.Abandoned,
		"failed":    report.Failed,
	})
	return report, nil
}

func (s *checkoutService) publish(ctx context.Context, message OrderNotification) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.PublishOrderNotification(ctx, message); err != nil {
		s.logger(ctx, "checkout.notification.publish_failed", map[string]any{
			"orderId": message.OrderID,
			"type":    message.Type,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) newOrderNumber(now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", orderNumberPrefix, now.Format("060102"), s.numberToken())
}

const numberTokenAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ0123456789"

func randomNumberToken() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("order number token: %v", err))
	}
	for i, b := range buf {
		buf[i] = numberTokenAlphabet[int(b)%len(numberTokenAlphabet)]
	}
	return string(buf)
}
