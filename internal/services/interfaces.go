package services

import (
	"context"
	"time"

	"github.com/atelier-perle/api/internal/domain"
)

// Logger is the logging contract services depend on.
type Logger func(ctx context.Context, event string, fields map[string]any)

// PointsSpend is a resolved loyalty-point redemption: the points actually
// spendable and their monetary value at the fixed 10:1 rate.
type PointsSpend struct {
	Points int
	Value  float64
}

// CouponService validates coupons and resolves loyalty-point spending.
type CouponService interface {
	ValidateCoupon(ctx context.Context, code string, subtotal float64) (domain.Coupon, error)
	ComputeDiscount(coupon domain.Coupon, subtotal float64) float64
	ResolvePointsSpend(ctx context.Context, userID string, requested int, totalAfterCoupon float64) (PointsSpend, error)
}

// PlaceOrderCommand carries one checkout attempt.
type PlaceOrderCommand struct {
	CustomerID      string
	CustomerEmail   string
	Lines           []domain.CartLine
	CouponCode      string
	PointsRequested int
	DeliveryMethod  string
	ShippingAddress *domain.Address
}

// OrderConfirmation is the result of a committed checkout.
type OrderConfirmation struct {
	Order  domain.Order
	Stocks map[string]domain.StockRecord
}

// ReconcileReport summarises one pass over stale pending-capture records.
type ReconcileReport struct {
	Refunded  int
	Abandoned int
	Failed    int
}

// CheckoutService prices a cart, charges the payment processor, and runs the
// atomic order transaction.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (OrderConfirmation, error)
	ReconcileAbandonedIntents(ctx context.Context, olderThan time.Duration) (ReconcileReport, error)
}

// TransitionCommand moves an order one lifecycle step forward.
type TransitionCommand struct {
	OrderID        string
	To             domain.OrderStatus
	Carrier        string
	TrackingNumber string
}

// CancelCommand triggers the cancellation compensator.
type CancelCommand struct {
	OrderID string
	Reason  string
}

// OrderListCommand filters order listings.
type OrderListCommand struct {
	CustomerID string
	Status     domain.OrderStatus
	Limit      int
}

// OrderService exposes the post-checkout order lifecycle.
type OrderService interface {
	Get(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, cmd OrderListCommand) ([]domain.Order, error)
	Transition(ctx context.Context, cmd TransitionCommand) (domain.Order, error)
	Cancel(ctx context.Context, cmd CancelCommand) (domain.Order, error)
	SetItemCompleted(ctx context.Context, orderID string, itemIndex int, completed bool) (domain.Order, error)
}

// RestockCommand replenishes one stock record.
type RestockCommand struct {
	Kind     string
	ItemID   string
	Quantity int
}

// StockService reads and replenishes the stock ledger.
type StockService interface {
	Get(ctx context.Context, kind, itemID string) (domain.StockRecord, error)
	List(ctx context.Context) ([]domain.StockRecord, error)
	Restock(ctx context.Context, cmd RestockCommand) (domain.StockRecord, error)
}

// OrderNotification is the message published after an order commits or is
// cancelled. Delivery is best-effort and never blocks the transaction result.
type OrderNotification struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	Recipient   string    `json:"recipient"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Notification types published on the order lifecycle topic.
const (
	NotificationTypeOrderCreated   = "order.created"
	NotificationTypeOrderCancelled = "order.cancelled"
)

// NotificationPublisher publishes order lifecycle notifications.
type NotificationPublisher interface {
	PublishOrderNotification(ctx context.Context, message OrderNotification) (string, error)
}
