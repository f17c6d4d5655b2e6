package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atelier-perle/api/internal/domain"
	"github.com/atelier-perle/api/internal/repositories"
)

type stubCouponRepo struct {
	findByCode func(ctx context.Context, code string) (domain.Coupon, error)
}

func (s *stubCouponRepo) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	return s.findByCode(ctx, code)
}

type stubLoyaltyRepo struct {
	balance func(ctx context.Context, userID string) (int, error)
}

func (s *stubLoyaltyRepo) Balance(ctx context.Context, userID string) (int, error) {
	return s.balance(ctx, userID)
}

func fixedClock() time.Time {
	return time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
}

func newTestCouponService(t *testing.T, coupons *stubCouponRepo, loyalty *stubLoyaltyRepo) CouponService {
	t.Helper()
	if coupons == nil {
		coupons = &stubCouponRepo{findByCode: func(context.Context, string) (domain.Coupon, error) {
			return domain.Coupon{}, repositories.ErrCouponNotFound
		}}
	}
	if loyalty == nil {
		loyalty = &stubLoyaltyRepo{balance: func(context.Context, string) (int, error) {
			return 0, repositories.ErrUserNotFound
		}}
	}
	svc, err := NewCouponService(CouponServiceDeps{
		Coupons: coupons,
		Loyalty: loyalty,
		Clock:   fixedClock,
	})
	if err != nil {
		t.Fatalf("NewCouponService: %v", err)
	}
	return svc
}

func TestValidateCouponNormalisesCode(t *testing.T) {
	var requested string
	coupons := &stubCouponRepo{findByCode: func(_ context.Context, code string) (domain.Coupon, error) {
		requested = code
		return domain.Coupon{ID: "c1", Code: code, DiscountType: domain.CouponTypePercentage, Value: 20}, nil
	}}
	svc := newTestCouponService(t, coupons, nil)

	coupon, err := svc.ValidateCoupon(context.Background(), "  bienvenue20 ", 100)
	if err != nil {
		t.Fatalf("ValidateCoupon: %v", err)
	}
	if requested != "BIENVENUE20" {
		t.Fatalf("expected upper-cased lookup, got %q", requested)
	}
	if coupon.ID != "c1" {
		t.Fatalf("unexpected coupon: %+v", coupon)
	}
}

func TestValidateCouponErrors(t *testing.T) {
	expired := fixedClock().Add(-time.Hour)
	cases := []struct {
		name    string
		coupon  domain.Coupon
		repoErr error
		want    error
	}{
		{name: "not found", repoErr: repositories.ErrCouponNotFound, want: ErrCouponNotFound},
		{name: "value invalid", repoErr: repositories.ErrCouponValueInvalid, want: ErrCouponValueInvalid},
		{name: "unknown type", coupon: domain.Coupon{DiscountType: "mystery", Value: 5}, want: ErrCouponValueInvalid},
		{name: "negative value", coupon: domain.Coupon{DiscountType: domain.CouponTypeFixed, Value: -1}, want: ErrCouponValueInvalid},
		{name: "expired", coupon: domain.Coupon{DiscountType: domain.CouponTypeFixed, Value: 5, ExpiresAt: &expired}, want: ErrCouponExpired},
		{name: "below minimum", coupon: domain.Coupon{DiscountType: domain.CouponTypeFixed, Value: 5, MinPurchase: 200}, want: ErrCouponMinPurchase},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			coupons := &stubCouponRepo{findByCode: func(context.Context, string) (domain.Coupon, error) {
				return tc.coupon, tc.repoErr
			}}
			svc := newTestCouponService(t, coupons, nil)
			if _, err := svc.ValidateCoupon(context.Background(), "CODE", 100); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateCouponRejectsEmptyCode(t *testing.T) {
	svc := newTestCouponService(t, nil, nil)
	if _, err := svc.ValidateCoupon(context.Background(), "   ", 100); !errors.Is(err, ErrCouponInvalidCode) {
		t.Fatalf("expected ErrCouponInvalidCode, got %v", err)
	}
}

func TestComputeDiscountPercentage(t *testing.T) {
	svc := newTestCouponService(t, nil, nil)
	coupon := domain.Coupon{DiscountType: domain.CouponTypePercentage, Value: 20}
	if got := svc.ComputeDiscount(coupon, 100); got != 20.00 {
		t.Fatalf("expected 20.00, got %v", got)
	}
}

func TestComputeDiscountFixedClamped(t *testing.T) {
	svc := newTestCouponService(t, nil, nil)
	coupon := domain.Coupon{DiscountType: domain.CouponTypeFixed, Value: 15}
	if got := svc.ComputeDiscount(coupon, 10); got != 10 {
		t.Fatalf("expected discount clamped to 10, got %v", got)
	}
}

func TestResolvePointsSpendBoundedByTotal(t *testing.T) {
	loyalty := &stubLoyaltyRepo{balance: func(context.Context, string) (int, error) {
		return 500, nil
	}}
	svc := newTestCouponService(t, nil, loyalty)

	spend, err := svc.ResolvePointsSpend(context.Background(), "user-1", 500, 3.00)
	if err != nil {
		t.Fatalf("ResolvePointsSpend: %v", err)
	}
	if spend.Points != 30 {
		t.Fatalf("expected 30 points, got %d", spend.Points)
	}
	if spend.Value != 3.00 {
		t.Fatalf("expected value 3.00, got %v", spend.Value)
	}
}

func TestResolvePointsSpendBoundedByBalance(t *testing.T) {
	loyalty := &stubLoyaltyRepo{balance: func(context.Context, string) (int, error) {
		return 12, nil
	}}
	svc := newTestCouponService(t, nil, loyalty)

	spend, err := svc.ResolvePointsSpend(context.Background(), "user-1", 100, 50)
	if err != nil {
		t.Fatalf("ResolvePointsSpend: %v", err)
	}
	if spend.Points != 12 || spend.Value != 1.2 {
		t.Fatalf("expected 12 points worth 1.2, got %+v", spend)
	}
}

func TestResolvePointsSpendMissingAccount(t *testing.T) {
	svc := newTestCouponService(t, nil, nil)
	spend, err := svc.ResolvePointsSpend(context.Background(), "user-unknown", 100, 50)
	if err != nil {
		t.Fatalf("ResolvePointsSpend: %v", err)
	}
	if spend.Points != 0 || spend.Value != 0 {
		t.Fatalf("expected zero spend for missing account, got %+v", spend)
	}
}

func TestResolvePointsSpendZeroRequest(t *testing.T) {
	svc := newTestCouponService(t, nil, nil)
	spend, err := svc.ResolvePointsSpend(context.Background(), "user-1", 0, 50)
	if err != nil {
		t.Fatalf("ResolvePointsSpend: %v", err)
	}
	if spend.Points != 0 {
		t.Fatalf("expected no spend, got %+v", spend)
	}
}
