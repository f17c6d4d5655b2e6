package domain

import (
	"fmt"
	"strings"
	"time"
)

// ItemKind enumerates the closed set of stockable item kinds. Jewelry models
// and charms share the stock ledger but are reported separately when a cart
// cannot be fulfilled.
type ItemKind string

const (
	// ItemKindBracelet is a base bracelet model.
	ItemKindBracelet ItemKind = "bracelet"
	// ItemKindNecklace is a base necklace model.
	ItemKindNecklace ItemKind = "necklace"
	// ItemKindAnklet is a base anklet model.
	ItemKindAnklet ItemKind = "anklet"
	// ItemKindCharm is an individual charm attached to a model.
	ItemKindCharm ItemKind = "charm"
)

// ParseItemKind maps a wire value onto the closed ItemKind set.
func ParseItemKind(value string) (ItemKind, error) {
	switch kind := ItemKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case ItemKindBracelet, ItemKindNecklace, ItemKindAnklet, ItemKindCharm:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown item kind %q", value)
	}
}

// IsModel reports whether the kind is a base jewelry model rather than a charm.
func (k ItemKind) IsModel() bool {
	return k == ItemKindBracelet || k == ItemKindNecklace || k == ItemKindAnklet
}

// ItemKey identifies one stock ledger entry.
type ItemKey struct {
	Kind ItemKind
	ID   string
}

// DocID renders the key as a single Firestore document identifier.
func (k ItemKey) DocID() string {
	return string(k.Kind) + ":" + k.ID
}

// CharmRef references a charm placed on a cart line, with its clasp option.
type CharmRef struct {
	CharmID   string `firestore:"charmId" json:"charmId"`
	Name      string `firestore:"name,omitempty" json:"name,omitempty"`
	WithClasp bool   `firestore:"withClasp" json:"withClasp"`
}

// CartLine is one configured piece in a cart: a base model plus its charm
// arrangement. Lines exist only client-side until checkout snapshots them
// into OrderItems.
type CartLine struct {
	ModelID         string     `json:"modelId"`
	ModelKind       ItemKind   `json:"modelKind"`
	ModelName       string     `json:"modelName,omitempty"`
	Charms          []CharmRef `json:"charms,omitempty"`
	CreatorID       string     `json:"creatorId,omitempty"`
	CreationID      string     `json:"creationId,omitempty"`
	CreationName    string     `json:"creationName,omitempty"`
	PreviewImageURL string     `json:"previewImageUrl,omitempty"`
}

// StockRecord tracks the remaining quantity for one stockable item.
// Quantity never goes negative; all mutations happen inside transactions.
type StockRecord struct {
	Key           ItemKey
	Quantity      int
	LastOrderedAt *time.Time
	RestockedAt   *time.Time
}

// CouponType distinguishes percentage from fixed-amount coupons.
type CouponType string

const (
	// CouponTypePercentage discounts a percentage of the subtotal.
	CouponTypePercentage CouponType = "percentage"
	// CouponTypeFixed discounts a fixed amount, clamped so totals stay >= 0.
	CouponTypeFixed CouponType = "fixed"
)

// Coupon is a discount instrument identified by a case-insensitive code.
type Coupon struct {
	ID           string
	Code         string
	DiscountType CouponType
	Value        float64
	ExpiresAt    *time.Time
	MinPurchase  float64
}

// PointsPerCurrencyUnit fixes the loyalty conversion rate: 10 points equal
// one currency unit.
const PointsPerCurrencyUnit = 10

// NoPaymentReference marks orders settled without a payment processor charge
// (free orders). Cancellation skips the refund call for it.
const NoPaymentReference = "no-payment"

// OrderStatus enumerates lifecycle states for orders. The values are the
// customer-facing French labels persisted by the store.
type OrderStatus string

const (
	// OrderStatusSubmitted is the initial state written by the checkout transaction.
	OrderStatusSubmitted OrderStatus = "commandée"
	// OrderStatusInPreparation indicates the workshop started assembling the piece.
	OrderStatusInPreparation OrderStatus = "en cours de préparation"
	// OrderStatusShipped indicates the order was handed to a carrier.
	OrderStatusShipped OrderStatus = "expédiée"
	// OrderStatusDelivered is terminal: the order reached the customer.
	OrderStatusDelivered OrderStatus = "livrée"
	// OrderStatusCanceled is terminal: the order was cancelled and compensated.
	OrderStatusCanceled OrderStatus = "annulée"
)

// IsTerminal reports whether no further transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCanceled
}

// OrderItem is the immutable snapshot of one cart line at purchase time.
// Only IsCompleted may change after the order transaction commits.
type OrderItem struct {
	ModelID         string     `firestore:"modelId"`
	ModelKind       ItemKind   `firestore:"modelKind"`
	ModelName       string     `firestore:"modelName,omitempty"`
	Charms          []CharmRef `firestore:"charms,omitempty"`
	Price           float64    `firestore:"price"`
	PreviewImageURL string     `firestore:"previewImageUrl,omitempty"`
	IsCompleted     bool       `firestore:"isCompleted"`
	CreatorID       string     `firestore:"creatorId,omitempty"`
	CreationID      string     `firestore:"creationId,omitempty"`
	CreationName    string     `firestore:"creationName,omitempty"`
}

// Address captures the shipping destination for home delivery orders.
type Address struct {
	Line1      string `firestore:"line1" json:"line1"`
	Line2      string `firestore:"line2,omitempty" json:"line2,omitempty"`
	PostalCode string `firestore:"postalCode" json:"postalCode"`
	City       string `firestore:"city" json:"city"`
	Country    string `firestore:"country" json:"country"`
}

// Order is the persisted order document. After creation it is immutable
// except for status, carrier/tracking fields, per-item completion flags,
// and cancellation metadata.
type Order struct {
	ID                 string
	OrderNumber        string
	CustomerID         string
	CustomerEmail      string
	Subtotal           float64
	TotalPrice         float64
	Items              []OrderItem
	Status             OrderStatus
	PaymentReference   string
	DeliveryMethod     string
	ShippingAddress    *Address
	Carrier            string
	TrackingNumber     string
	CouponID           string
	CouponCode         string
	CouponDiscount     float64
	PointsUsed         int
	PointsValue        float64
	CancellationReason string
	CanceledAt         *time.Time
	CreatedAt          time.Time
}

// CreatorAward is the per-creator aggregation of loyalty points owed after a
// sale. It is never persisted directly: the checkout transaction applies it
// to the creator's balance and enqueues one notification per creator.
type CreatorAward struct {
	CreatorID     string
	Points        int
	CreationNames []string
}
