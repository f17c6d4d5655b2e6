package firestore

import (
	"context"
	"errors"
	"strings"

	pfirestore "github.com/atelier-perle/api/internal/platform/firestore"
	"github.com/atelier-perle/api/internal/repositories"
)

// LoyaltyRepository reads loyalty balances outside transactions. All balance
// mutations happen inside the checkout and cancellation transactions.
type LoyaltyRepository struct {
	users *pfirestore.BaseRepository[userDocument]
}

var _ repositories.LoyaltyRepository = (*LoyaltyRepository)(nil)

// NewLoyaltyRepository constructs a LoyaltyRepository.
func NewLoyaltyRepository(provider *pfirestore.Provider) (*LoyaltyRepository, error) {
	if provider == nil {
		return nil, errors.New("loyalty repository requires firestore provider")
	}
	return &LoyaltyRepository{
		users: pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil),
	}, nil
}

// Balance returns the current loyalty point balance for the user.
func (r *LoyaltyRepository) Balance(ctx context.Context, userID string) (int, error) {
	if r == nil || r.users == nil {
		return 0, errors.New("loyalty repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.New("loyalty balance: user id is required")
	}

	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return 0, repositories.ErrUserNotFound
		}
		return 0, err
	}
	return doc.Data.LoyaltyPoints, nil
}
