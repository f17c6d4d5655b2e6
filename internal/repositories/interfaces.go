package repositories

import (
	"context"
	"time"

	"github.com/atelier-perle/api/internal/domain"
)

// PlaceOrderRequest carries everything the checkout transaction persists
// atomically: the pre-built order, the aggregated stock demand, and the
// per-creator reward accruals.
type PlaceOrderRequest struct {
	Order           domain.Order
	Demand          map[domain.ItemKey]int
	Awards          []domain.CreatorAward
	PaymentIntentID string
	Now             time.Time
}

// PlaceOrderResult reports the committed order and the stock records as
// written by the transaction.
type PlaceOrderResult struct {
	Order  domain.Order
	Stocks map[string]domain.StockRecord
}

// CheckoutRepository runs the single atomic order transaction: stock
// validation and decrement, loyalty spend, creator credits, notification
// enqueue and order persistence all commit or abort together.
type CheckoutRepository interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error)
}

// OrderTransitionRequest moves an order one step along its lifecycle.
type OrderTransitionRequest struct {
	OrderID        string
	To             domain.OrderStatus
	Carrier        string
	TrackingNumber string
	Now            time.Time
}

// OrderCancelRequest compensates a committed order. The refund has already
// succeeded (or been skipped for free orders) by the time this runs.
type OrderCancelRequest struct {
	OrderID string
	Reason  string
	Now     time.Time
}

// OrderCancelResult reports the cancelled order and the restored stock.
type OrderCancelResult struct {
	Order  domain.Order
	Stocks map[string]domain.StockRecord
}

// OrderListQuery filters order listings. Empty fields match everything.
type OrderListQuery struct {
	CustomerID string
	Status     domain.OrderStatus
	Limit      int
}

// OrderRepository persists the order lifecycle after checkout.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, query OrderListQuery) ([]domain.Order, error)
	Transition(ctx context.Context, req OrderTransitionRequest) (domain.Order, error)
	Cancel(ctx context.Context, req OrderCancelRequest) (OrderCancelResult, error)
	SetItemCompleted(ctx context.Context, orderID string, itemIndex int, completed bool, now time.Time) (domain.Order, error)
}

// CouponRepository looks coupons up by their normalised code.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
}

// LoyaltyRepository reads loyalty balances outside transactions. The balance
// is re-read and re-checked inside the checkout transaction; this read only
// bounds the requested spend up front.
type LoyaltyRepository interface {
	Balance(ctx context.Context, userID string) (int, error)
}

// RestockRequest adds quantity to one stock record.
type RestockRequest struct {
	Key      domain.ItemKey
	Quantity int
	Now      time.Time
}

// StockRepository reads and replenishes the stock ledger. Decrements only
// ever happen inside the checkout and cancellation transactions.
type StockRepository interface {
	Get(ctx context.Context, key domain.ItemKey) (domain.StockRecord, error)
	List(ctx context.Context) ([]domain.StockRecord, error)
	Restock(ctx context.Context, req RestockRequest) (domain.StockRecord, error)
}

// Payment intent record statuses.
const (
	PaymentIntentStatusPending   = "pending"
	PaymentIntentStatusAttached  = "attached"
	PaymentIntentStatusRefunded  = "refunded"
	PaymentIntentStatusAbandoned = "abandoned"
)

// PaymentIntentRecord tracks a capture attempt across the window between the
// external charge and the order transaction commit. A record stuck in
// "pending" past a cutoff marks a charge whose order never persisted.
type PaymentIntentRecord struct {
	ID        string
	OrderID   string
	Amount    float64
	Currency  string
	Reference string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentIntentRepository persists pending-capture records.
type PaymentIntentRepository interface {
	Create(ctx context.Context, record PaymentIntentRecord) error
	SetReference(ctx context.Context, id, reference string, now time.Time) error
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]PaymentIntentRecord, error)
	MarkRefunded(ctx context.Context, id string, now time.Time) error
	MarkAbandoned(ctx context.Context, id string, now time.Time) error
}

// HealthRepository probes runtime dependencies for the health endpoint.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
