package repositories

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOrderNotFound indicates the order document does not exist.
	ErrOrderNotFound = errors.New("repositories: order not found")
	// ErrCouponNotFound indicates no coupon matches the normalised code.
	ErrCouponNotFound = errors.New("repositories: coupon not found")
	// ErrCouponValueInvalid indicates the stored coupon value could not be
	// interpreted as a number.
	ErrCouponValueInvalid = errors.New("repositories: coupon value invalid")
	// ErrUserNotFound indicates the loyalty account document is missing.
	ErrUserNotFound = errors.New("repositories: user not found")
	// ErrInsufficientPoints indicates the balance read inside the transaction
	// no longer covers the requested spend.
	ErrInsufficientPoints = errors.New("repositories: insufficient loyalty points")
	// ErrOrderNumberTaken indicates the order number claim already exists; the
	// caller retries with a freshly generated number.
	ErrOrderNumberTaken = errors.New("repositories: order number already taken")
	// ErrPaymentIntentNotFound indicates the pending-capture record is missing.
	ErrPaymentIntentNotFound = errors.New("repositories: payment intent record not found")
)

// StockUnavailableError itemizes which cart references could not be fulfilled,
// split between base models and charms so the caller can highlight exact lines.
type StockUnavailableError struct {
	ModelIDs []string
	CharmIDs []string
}

// Error implements the error interface.
func (e *StockUnavailableError) Error() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if len(e.ModelIDs) > 0 {
		parts = append(parts, fmt.Sprintf("models [%s]", strings.Join(e.ModelIDs, ", ")))
	}
	if len(e.CharmIDs) > 0 {
		parts = append(parts, fmt.Sprintf("charms [%s]", strings.Join(e.CharmIDs, ", ")))
	}
	if len(parts) == 0 {
		return "stock unavailable"
	}
	return "stock unavailable: " + strings.Join(parts, ", ")
}

// Empty reports whether no item was actually short.
func (e *StockUnavailableError) Empty() bool {
	return e == nil || (len(e.ModelIDs) == 0 && len(e.CharmIDs) == 0)
}
