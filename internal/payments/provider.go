package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised payment states reported by the provider.
type Status string

const (
	// StatusPending indicates the payment is awaiting PSP confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP captured the full amount.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP declined the payment.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the captured amount was returned to the payer.
	StatusRefunded Status = "refunded"
)

// ErrChargeDeclined is returned when the PSP refuses to capture the payment.
var ErrChargeDeclined = errors.New("payments: charge declined")

// ErrRefundFailed is returned when the PSP cannot return the captured amount.
var ErrRefundFailed = errors.New("payments: refund failed")

// ChargeRequest captures the payload required to charge an order total.
// Amount is expressed in minor currency units (cents).
type ChargeRequest struct {
	OrderID        string
	Amount         int64
	Currency       string
	PayerEmail     string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Charge is the normalised outcome of a successful capture. Reference is the
// PSP identifier stored on the order for later refunds.
type Charge struct {
	Reference string
	Status    Status
	Amount    int64
	Currency  string
	CreatedAt time.Time
}

// RefundRequest identifies a previously captured payment to return in full.
type RefundRequest struct {
	Reference      string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// Refund is the normalised outcome of a refund attempt.
type Refund struct {
	ID        string
	Reference string
	Status    Status
	Amount    int64
}

// Provider defines the PSP contract the order engine depends on. Checkout
// charges the full total up front; cancellation refunds it in full.
type Provider interface {
	Charge(ctx context.Context, req ChargeRequest) (Charge, error)
	Refund(ctx context.Context, req RefundRequest) (Refund, error)
}
