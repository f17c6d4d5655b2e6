package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/atelier-perle/api/internal/domain"
	pfirestore "github.com/atelier-perle/api/internal/platform/firestore"
	"github.com/atelier-perle/api/internal/repositories"
)

// StockRepository reads and replenishes the stock ledger. Order-driven
// decrements never go through here; they live in the checkout and
// cancellation transactions.
type StockRepository struct {
	provider *pfirestore.Provider
	stocks   *pfirestore.BaseRepository[stockDocument]
}

var _ repositories.StockRepository = (*StockRepository)(nil)

// NewStockRepository constructs a StockRepository.
func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	return &StockRepository{
		provider: provider,
		stocks:   pfirestore.NewBaseRepository[stockDocument](provider, stocksCollection, nil),
	}, nil
}

// Get loads one stock record.
func (r *StockRepository) Get(ctx context.Context, key domain.ItemKey) (domain.StockRecord, error) {
	if r == nil || r.stocks == nil {
		return domain.StockRecord{}, errors.New("stock repository not initialised")
	}
	if strings.TrimSpace(key.ID) == "" {
		return domain.StockRecord{}, errors.New("stock get: item id is required")
	}

	doc, err := r.stocks.Get(ctx, key.DocID())
	if err != nil {
		return domain.StockRecord{}, err
	}
	return doc.Data.toDomain(), nil
}

// List returns the whole stock ledger ordered by document id.
func (r *StockRepository) List(ctx context.Context) ([]domain.StockRecord, error) {
	if r == nil || r.stocks == nil {
		return nil, errors.New("stock repository not initialised")
	}

	docs, err := r.stocks.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	records := make([]domain.StockRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.Data.toDomain())
	}
	return records, nil
}

// Restock adds quantity to one stock record, creating it when absent, and
// stamps restockedAt.
func (r *StockRepository) Restock(ctx context.Context, req repositories.RestockRequest) (domain.StockRecord, error) {
	if r == nil || r.provider == nil {
		return domain.StockRecord{}, errors.New("stock repository not initialised")
	}
	if strings.TrimSpace(req.Key.ID) == "" {
		return domain.StockRecord{}, errors.New("stock restock: item id is required")
	}
	if req.Quantity <= 0 {
		return domain.StockRecord{}, errors.New("stock restock: quantity must be > 0")
	}

	now := req.Now.UTC()
	var updated domain.StockRecord

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.stocks.DocumentRef(ctx, req.Key.DocID())
		if err != nil {
			return err
		}

		doc := stockDocument{Kind: string(req.Key.Kind), ItemID: req.Key.ID}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
		} else if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode stock %s: %w", req.Key.DocID(), err)
		}

		doc.Kind = string(req.Key.Kind)
		doc.ItemID = req.Key.ID
		doc.Quantity += req.Quantity
		doc.RestockedAt = &now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}

		updated = doc.toDomain()
		return nil
	})
	if err != nil {
		return domain.StockRecord{}, pfirestore.WrapError("stock.restock", err)
	}
	return updated, nil
}
