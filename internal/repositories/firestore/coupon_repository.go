package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/atelier-perle/api/internal/domain"
	pfirestore "github.com/atelier-perle/api/internal/platform/firestore"
	"github.com/atelier-perle/api/internal/repositories"
)

// CouponRepository looks coupons up by code. Codes are stored upper-case; the
// lookup normalises its input the same way so matching is case-insensitive.
type CouponRepository struct {
	coupons *pfirestore.BaseRepository[couponDocument]
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

// NewCouponRepository constructs a CouponRepository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		coupons: pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection, nil),
	}, nil
}

// FindByCode returns the coupon matching the normalised code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.coupons == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	normalised := strings.ToUpper(strings.TrimSpace(code))
	if normalised == "" {
		return domain.Coupon{}, repositories.ErrCouponNotFound
	}

	docs, err := r.coupons.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalised).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, repositories.ErrCouponNotFound
	}

	return docs[0].Data.toDomain(docs[0].ID)
}
