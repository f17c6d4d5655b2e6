package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/atelier-perle/api/internal/domain"
	pfirestore "github.com/atelier-perle/api/internal/platform/firestore"
	"github.com/atelier-perle/api/internal/repositories"
)

// OrderRepository persists the order lifecycle after the checkout transaction
// committed. Status moves and cancellation run inside transactions with the
// current status re-read as a guard.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	stocks   *pfirestore.BaseRepository[stockDocument]
	users    *pfirestore.BaseRepository[userDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs an OrderRepository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
		stocks:   pfirestore.NewBaseRepository[stockDocument](provider, stocksCollection, nil),
		users:    pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil),
	}, nil
}

// FindByID loads a single order document.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Order{}, repositories.ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns orders matching the query, newest first.
func (r *OrderRepository) List(ctx context.Context, query repositories.OrderListQuery) ([]domain.Order, error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("order repository not initialised")
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if query.CustomerID != "" {
			q = q.Where("customerId", "==", query.CustomerID)
		}
		if query.Status != "" {
			q = q.Where("status", "==", string(query.Status))
		}
		return q.OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

// Transition moves the order one step forward along the lifecycle. The
// current status is re-read inside the transaction so concurrent moves cannot
// skip or repeat a step. Cancellation goes through Cancel, never here.
func (r *OrderRepository) Transition(ctx context.Context, req repositories.OrderTransitionRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.Order{}, errors.New("order transition: id is required")
	}
	if req.To == domain.OrderStatusCanceled {
		return domain.Order{}, errors.New("order transition: cancellation must go through Cancel")
	}

	var updated domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, req.OrderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.ErrOrderNotFound
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", req.OrderID, err)
		}

		if err := domain.ValidateTransition(domain.OrderStatus(doc.Status), req.To); err != nil {
			return err
		}

		updates := []firestore.Update{
			{Path: "status", Value: string(req.To)},
		}
		if req.To == domain.OrderStatusShipped {
			updates = append(updates,
				firestore.Update{Path: "carrier", Value: req.Carrier},
				firestore.Update{Path: "trackingNumber", Value: req.TrackingNumber},
			)
			doc.Carrier = req.Carrier
			doc.TrackingNumber = req.TrackingNumber
		}
		if err := tx.Update(orderRef, updates); err != nil {
			return err
		}

		doc.Status = string(req.To)
		updated = doc.toDomain(req.OrderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("order.transition", err)
	}
	return updated, nil
}

// Cancel applies the compensating writes for an already-refunded order in one
// transaction: stock restored by the original aggregated demand, spent points
// returned, status flipped to annulée with the reason. The status guard runs
// inside the transaction, so compensation applies at most once per order.
func (r *OrderRepository) Cancel(ctx context.Context, req repositories.OrderCancelRequest) (repositories.OrderCancelResult, error) {
	if r == nil || r.provider == nil {
		return repositories.OrderCancelResult{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return repositories.OrderCancelResult{}, errors.New("order cancel: id is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return repositories.OrderCancelResult{}, errors.New("order cancel: reason is required")
	}

	now := req.Now.UTC()
	var result repositories.OrderCancelResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.OrderCancelResult{}

		orderRef, err := r.orders.DocumentRef(ctx, req.OrderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.ErrOrderNotFound
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", req.OrderID, err)
		}

		if err := domain.ValidateTransition(domain.OrderStatus(doc.Status), domain.OrderStatusCanceled); err != nil {
			return err
		}

		// Restore demand is re-derived from the order item snapshots, so the
		// increments mirror the decrements of the original transaction.
		demand := domain.DemandFromItems(doc.Items)
		keys := domain.SortedKeys(demand)

		stockRefs := make(map[string]*firestore.DocumentRef, len(keys))
		stockDocs := make(map[string]stockDocument, len(keys))
		for _, key := range keys {
			ref, err := r.stocks.DocumentRef(ctx, key.DocID())
			if err != nil {
				return err
			}
			stockRefs[key.DocID()] = ref
			stockSnap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					stockDocs[key.DocID()] = stockDocument{Kind: string(key.Kind), ItemID: key.ID}
					continue
				}
				return err
			}
			var stockDoc stockDocument
			if err := stockSnap.DataTo(&stockDoc); err != nil {
				return fmt.Errorf("decode stock %s: %w", key.DocID(), err)
			}
			stockDocs[key.DocID()] = stockDoc
		}

		balance := 0
		var userRef *firestore.DocumentRef
		if doc.PointsUsed > 0 {
			userRef, err = r.users.DocumentRef(ctx, doc.CustomerID)
			if err != nil {
				return err
			}
			userSnap, err := tx.Get(userRef)
			if err != nil && status.Code(err) != codes.NotFound {
				return err
			}
			if err == nil {
				var userDoc userDocument
				if err := userSnap.DataTo(&userDoc); err != nil {
					return fmt.Errorf("decode user %s: %w", doc.CustomerID, err)
				}
				balance = userDoc.LoyaltyPoints
			}
		}

		stocks := make(map[string]domain.StockRecord, len(keys))
		for _, key := range keys {
			stockDoc := stockDocs[key.DocID()]
			stockDoc.Kind = string(key.Kind)
			stockDoc.ItemID = key.ID
			stockDoc.Quantity += demand[key]
			stockDoc.RestockedAt = &now
			if err := tx.Set(stockRefs[key.DocID()], stockDoc); err != nil {
				return err
			}
			stocks[key.DocID()] = stockDoc.toDomain()
		}

		if doc.PointsUsed > 0 {
			update := map[string]interface{}{
				loyaltyPointsField: balance + doc.PointsUsed,
				"updatedAt":        now,
			}
			if err := tx.Set(userRef, update, firestore.MergeAll); err != nil {
				return err
			}
		}

		if err := tx.Update(orderRef, []firestore.Update{
			{Path: "status", Value: string(domain.OrderStatusCanceled)},
			{Path: "cancellationReason", Value: req.Reason},
			{Path: "canceledAt", Value: now},
		}); err != nil {
			return err
		}

		doc.Status = string(domain.OrderStatusCanceled)
		doc.CancellationReason = req.Reason
		doc.CanceledAt = &now
		result = repositories.OrderCancelResult{
			Order:  doc.toDomain(req.OrderID),
			Stocks: stocks,
		}
		return nil
	})
	if err != nil {
		return repositories.OrderCancelResult{}, wrapOrderError("order.cancel", err)
	}
	return result, nil
}

// SetItemCompleted toggles the fulfillment flag on one order item. Firestore
// cannot address an array element by path, so the full items slice is
// rewritten.
func (r *OrderRepository) SetItemCompleted(ctx context.Context, orderID string, itemIndex int, completed bool, now time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order item completion: id is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.ErrOrderNotFound
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		if itemIndex < 0 || itemIndex >= len(doc.Items) {
			return fmt.Errorf("order item completion: index %d out of range", itemIndex)
		}
		if domain.OrderStatus(doc.Status).IsTerminal() {
			return domain.ErrTerminalStatus
		}

		doc.Items[itemIndex].IsCompleted = completed
		if err := tx.Update(orderRef, []firestore.Update{
			{Path: "items", Value: doc.Items},
		}); err != nil {
			return err
		}

		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("order.setItemCompleted", err)
	}
	return updated, nil
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repositories.ErrOrderNotFound),
		errors.Is(err, domain.ErrSameStatus),
		errors.Is(err, domain.ErrTerminalStatus),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrUnknownStatus):
		return err
	}
	return pfirestore.WrapError(op, err)
}
