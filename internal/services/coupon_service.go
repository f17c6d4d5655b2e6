package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/atelier-perle/api/internal/domain"
	"github.com/atelier-perle/api/internal/repositories"
)

// CouponServiceDeps bundles dependencies required to construct a CouponService.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Loyalty repositories.LoyaltyRepository
	Clock   func() time.Time
}

type couponService struct {
	coupons repositories.CouponRepository
	loyalty repositories.LoyaltyRepository
	clock   func() time.Time
}

// NewCouponService wires a CouponService backed by the provided repositories.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service requires coupon repository")
	}
	if deps.Loyalty == nil {
		return nil, errors.New("coupon service requires loyalty repository")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &couponService{
		coupons: deps.Coupons,
		loyalty: deps.Loyalty,
		clock:   func() time.Time { return clock().UTC() },
	}, nil
}

// ValidateCoupon resolves and checks a coupon against the cart subtotal.
// Expiry is enforced here, at validation time, never inside the order
// transaction.
func (s *couponService) ValidateCoupon(ctx context.Context, code string, subtotal float64) (domain.Coupon, error) {
	normalised := strings.ToUpper(strings.TrimSpace(code))
	if normalised == "" {
		return domain.Coupon{}, ErrCouponInvalidCode
	}

	coupon, err := s.coupons.FindByCode(ctx, normalised)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrCouponNotFound):
			return domain.Coupon{}, ErrCouponNotFound
		case errors.Is(err, repositories.ErrCouponValueInvalid):
			return domain.Coupon{}, ErrCouponValueInvalid
		}
		return domain.Coupon{}, err
	}

	if coupon.DiscountType != domain.CouponTypePercentage && coupon.DiscountType != domain.CouponTypeFixed {
		return domain.Coupon{}, ErrCouponValueInvalid
	}
	if coupon.Value < 0 {
		return domain.Coupon{}, ErrCouponValueInvalid
	}
	if coupon.ExpiresAt != nil && s.clock().After(*coupon.ExpiresAt) {
		return domain.Coupon{}, ErrCouponExpired
	}
	if coupon.MinPurchase > 0 && subtotal < coupon.MinPurchase {
		return domain.Coupon{}, ErrCouponMinPurchase
	}
	return coupon, nil
}

// ComputeDiscount converts the coupon into a monetary discount, clamped so
// the total never goes negative.
func (s *couponService) ComputeDiscount(coupon domain.Coupon, subtotal float64) float64 {
	if subtotal <= 0 {
		return 0
	}

	var discount float64
	switch coupon.DiscountType {
	case domain.CouponTypePercentage:
		discount = subtotal * coupon.Value / 100
	case domain.CouponTypeFixed:
		discount = coupon.Value
	default:
		return 0
	}

	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount
}

// ResolvePointsSpend bounds a requested loyalty spend by the current balance
// and by the remaining total: an order can become free, never negative. The
// balance is re-checked inside the order transaction; this resolution only
// shapes the request.
func (s *couponService) ResolvePointsSpend(ctx context.Context, userID string, requested int, totalAfterCoupon float64) (PointsSpend, error) {
	if requested <= 0 || totalAfterCoupon <= 0 {
		return PointsSpend{}, nil
	}
	if strings.TrimSpace(userID) == "" {
		return PointsSpend{}, ErrCustomerRequired
	}

	balance, err := s.loyalty.Balance(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return PointsSpend{}, nil
		}
		return PointsSpend{}, err
	}

	points := requested
	if balance < points {
		points = balance
	}
	if bound := int(math.Floor(totalAfterCoupon * domain.PointsPerCurrencyUnit)); bound < points {
		points = bound
	}
	if points <= 0 {
		return PointsSpend{}, nil
	}

	return PointsSpend{
		Points: points,
		Value:  float64(points) / domain.PointsPerCurrencyUnit,
	}, nil
}
