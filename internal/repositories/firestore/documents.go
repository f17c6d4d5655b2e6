package firestore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atelier-perle/api/internal/domain"
	"github.com/atelier-perle/api/internal/repositories"
)

const (
	stocksCollection         = "stocks"
	couponsCollection        = "coupons"
	usersCollection          = "users"
	ordersCollection         = "orders"
	orderNumbersCollection   = "orderNumbers"
	notificationsCollection  = "notifications"
	paymentIntentsCollection = "paymentIntents"

	loyaltyPointsField = "loyaltyPoints"
)

type stockDocument struct {
	Kind          string     `firestore:"kind"`
	ItemID        string     `firestore:"itemId"`
	Quantity      int        `firestore:"quantity"`
	LastOrderedAt *time.Time `firestore:"lastOrderedAt,omitempty"`
	RestockedAt   *time.Time `firestore:"restockedAt,omitempty"`
}

func newStockDocument(record domain.StockRecord) stockDocument {
	return stockDocument{
		Kind:          string(record.Key.Kind),
		ItemID:        record.Key.ID,
		Quantity:      record.Quantity,
		LastOrderedAt: record.LastOrderedAt,
		RestockedAt:   record.RestockedAt,
	}
}

func (d stockDocument) toDomain() domain.StockRecord {
	return domain.StockRecord{
		Key:           domain.ItemKey{Kind: domain.ItemKind(d.Kind), ID: d.ItemID},
		Quantity:      d.Quantity,
		LastOrderedAt: d.LastOrderedAt,
		RestockedAt:   d.RestockedAt,
	}
}

type orderDocument struct {
	OrderNumber        string             `firestore:"orderNumber"`
	CustomerID         string             `firestore:"customerId"`
	CustomerEmail      string             `firestore:"customerEmail,omitempty"`
	Subtotal           float64            `firestore:"subtotal"`
	TotalPrice         float64            `firestore:"totalPrice"`
	Items              []domain.OrderItem `firestore:"items"`
	Status             string             `firestore:"status"`
	PaymentReference   string             `firestore:"paymentReference"`
	DeliveryMethod     string             `firestore:"deliveryMethod,omitempty"`
	ShippingAddress    *domain.Address    `firestore:"shippingAddress,omitempty"`
	Carrier            string             `firestore:"carrier,omitempty"`
	TrackingNumber     string             `firestore:"trackingNumber,omitempty"`
	CouponID           string             `firestore:"couponId,omitempty"`
	CouponCode         string             `firestore:"couponCode,omitempty"`
	CouponDiscount     float64            `firestore:"couponDiscount"`
	PointsUsed         int                `firestore:"pointsUsed"`
	PointsValue        float64            `firestore:"pointsValue"`
	CancellationReason string             `firestore:"cancellationReason,omitempty"`
	CanceledAt         *time.Time         `firestore:"canceledAt,omitempty"`
	CreatedAt          time.Time          `firestore:"createdAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		OrderNumber:        order.OrderNumber,
		CustomerID:         order.CustomerID,
		CustomerEmail:      order.CustomerEmail,
		Subtotal:           domain.RoundMonetary(order.Subtotal),
		TotalPrice:         domain.RoundMonetary(order.TotalPrice),
		Items:              order.Items,
		Status:             string(order.Status),
		PaymentReference:   order.PaymentReference,
		DeliveryMethod:     order.DeliveryMethod,
		ShippingAddress:    order.ShippingAddress,
		Carrier:            order.Carrier,
		TrackingNumber:     order.TrackingNumber,
		CouponID:           order.CouponID,
		CouponCode:         order.CouponCode,
		CouponDiscount:     domain.RoundMonetary(order.CouponDiscount),
		PointsUsed:         order.PointsUsed,
		PointsValue:        domain.RoundMonetary(order.PointsValue),
		CancellationReason: order.CancellationReason,
		CanceledAt:         order.CanceledAt,
		CreatedAt:          order.CreatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	return domain.Order{
		ID:                 id,
		OrderNumber:        d.OrderNumber,
		CustomerID:         d.CustomerID,
		CustomerEmail:      d.CustomerEmail,
		Subtotal:           d.Subtotal,
		TotalPrice:         d.TotalPrice,
		Items:              d.Items,
		Status:             domain.OrderStatus(d.Status),
		PaymentReference:   d.PaymentReference,
		DeliveryMethod:     d.DeliveryMethod,
		ShippingAddress:    d.ShippingAddress,
		Carrier:            d.Carrier,
		TrackingNumber:     d.TrackingNumber,
		CouponID:           d.CouponID,
		CouponCode:         d.CouponCode,
		CouponDiscount:     d.CouponDiscount,
		PointsUsed:         d.PointsUsed,
		PointsValue:        d.PointsValue,
		CancellationReason: d.CancellationReason,
		CanceledAt:         d.CanceledAt,
		CreatedAt:          d.CreatedAt,
	}
}

type couponDocument struct {
	Code         string      `firestore:"code"`
	DiscountType string      `firestore:"discountType"`
	Value        interface{} `firestore:"value"`
	ExpiresAt    *time.Time  `firestore:"expiresAt,omitempty"`
	MinPurchase  float64     `firestore:"minPurchase,omitempty"`
}

func (d couponDocument) toDomain(id string) (domain.Coupon, error) {
	value, err := coerceCouponValue(d.Value)
	if err != nil {
		return domain.Coupon{}, err
	}
	return domain.Coupon{
		ID:           id,
		Code:         strings.ToUpper(strings.TrimSpace(d.Code)),
		DiscountType: domain.CouponType(strings.ToLower(strings.TrimSpace(d.DiscountType))),
		Value:        value,
		ExpiresAt:    d.ExpiresAt,
		MinPurchase:  d.MinPurchase,
	}, nil
}

// coerceCouponValue tolerates the number representations legacy documents
// carry: integers, floats, or numeric strings.
func coerceCouponValue(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", repositories.ErrCouponValueInvalid, v)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", repositories.ErrCouponValueInvalid, raw)
	}
}

type userDocument struct {
	LoyaltyPoints int `firestore:"loyaltyPoints"`
}

type orderNumberClaimDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type notificationDocument struct {
	Type      string    `firestore:"type"`
	Recipient string    `firestore:"recipient"`
	Subject   string    `firestore:"subject"`
	Body      string    `firestore:"body"`
	OrderID   string    `firestore:"orderId,omitempty"`
	Sent      bool      `firestore:"sent"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type paymentIntentDocument struct {
	OrderID   string    `firestore:"orderId"`
	Amount    float64   `firestore:"amount"`
	Currency  string    `firestore:"currency"`
	Reference string    `firestore:"reference,omitempty"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newPaymentIntentDocument(record repositories.PaymentIntentRecord) paymentIntentDocument {
	return paymentIntentDocument{
		OrderID:   record.OrderID,
		Amount:    domain.RoundMonetary(record.Amount),
		Currency:  record.Currency,
		Reference: record.Reference,
		Status:    record.Status,
		CreatedAt: record.CreatedAt.UTC(),
		UpdatedAt: record.UpdatedAt.UTC(),
	}
}

func (d paymentIntentDocument) toDomain(id string) repositories.PaymentIntentRecord {
	return repositories.PaymentIntentRecord{
		ID:        id,
		OrderID:   d.OrderID,
		Amount:    d.Amount,
		Currency:  d.Currency,
		Reference: d.Reference,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
