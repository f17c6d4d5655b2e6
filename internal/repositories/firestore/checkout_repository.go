package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/atelier-perle/api/internal/domain"
	pfirestore "github.com/atelier-perle/api/internal/platform/firestore"
	"github.com/atelier-perle/api/internal/repositories"
)

// CheckoutRepository runs the single order transaction. Every side effect of a
// successful checkout — stock decrements, loyalty spend, creator credits,
// reward notifications, the order number claim and the order document itself —
// commits atomically or not at all.
type CheckoutRepository struct {
	provider *pfirestore.Provider
	stocks   *pfirestore.BaseRepository[stockDocument]
	orders   *pfirestore.BaseRepository[orderDocument]
	users    *pfirestore.BaseRepository[userDocument]
	numbers  *pfirestore.BaseRepository[orderNumberClaimDocument]
	intents  *pfirestore.BaseRepository[paymentIntentDocument]
}

var _ repositories.CheckoutRepository = (*CheckoutRepository)(nil)

// NewCheckoutRepository constructs a CheckoutRepository.
func NewCheckoutRepository(provider *pfirestore.Provider) (*CheckoutRepository, error) {
	if provider == nil {
		return nil, errors.New("checkout repository requires firestore provider")
	}
	return &CheckoutRepository{
		provider: provider,
		stocks:   pfirestore.NewBaseRepository[stockDocument](provider, stocksCollection, nil),
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
		users:    pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil),
		numbers:  pfirestore.NewBaseRepository[orderNumberClaimDocument](provider, orderNumbersCollection, nil),
		intents:  pfirestore.NewBaseRepository[paymentIntentDocument](provider, paymentIntentsCollection, nil),
	}, nil
}

// PlaceOrder executes the order transaction. The body is re-entrant: the
// store may re-run it on write conflict, so every read and all derived state
// happen inside the closure. Reads strictly precede writes.
func (r *CheckoutRepository) PlaceOrder(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
	if r == nil || r.provider == nil {
		return repositories.PlaceOrderResult{}, errors.New("checkout repository not initialised")
	}
	if strings.TrimSpace(req.Order.ID) == "" {
		return repositories.PlaceOrderResult{}, errors.New("place order: order id is required")
	}
	if strings.TrimSpace(req.Order.OrderNumber) == "" {
		return repositories.PlaceOrderResult{}, errors.New("place order: order number is required")
	}
	if len(req.Order.Items) == 0 {
		return repositories.PlaceOrderResult{}, errors.New("place order: at least one item is required")
	}
	if len(req.Demand) == 0 {
		return repositories.PlaceOrderResult{}, errors.New("place order: stock demand is empty")
	}
	if req.Order.Status != domain.OrderStatusSubmitted {
		return repositories.PlaceOrderResult{}, fmt.Errorf("place order: initial status must be %q", domain.OrderStatusSubmitted)
	}
	for key, quantity := range req.Demand {
		if quantity <= 0 {
			return repositories.PlaceOrderResult{}, fmt.Errorf("place order: demand for %s must be > 0", key.DocID())
		}
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.PlaceOrderResult{}, err
	}

	now := req.Now.UTC()
	var result repositories.PlaceOrderResult

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.PlaceOrderResult{}

		// Read phase. Firestore rejects reads after the first write, so the
		// claim, every stock record and every loyalty balance are read before
		// anything is staged.
		numberRef, err := r.numbers.DocumentRef(ctx, req.Order.OrderNumber)
		if err != nil {
			return err
		}
		if _, err := tx.Get(numberRef); err == nil {
			return repositories.ErrOrderNumberTaken
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		keys := domain.SortedKeys(req.Demand)
		stockRefs := make(map[string]*firestore.DocumentRef, len(keys))
		stockDocs := make(map[string]stockDocument, len(keys))
		missing := make(map[string]bool, len(keys))
		for _, key := range keys {
			ref, err := r.stocks.DocumentRef(ctx, key.DocID())
			if err != nil {
				return err
			}
			stockRefs[key.DocID()] = ref
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					missing[key.DocID()] = true
					continue
				}
				return err
			}
			var doc stockDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode stock %s: %w", key.DocID(), err)
			}
			stockDocs[key.DocID()] = doc
		}

		deltas := make(map[string]int)
		if req.Order.PointsUsed > 0 {
			deltas[req.Order.CustomerID] -= req.Order.PointsUsed
		}
		for _, award := range req.Awards {
			deltas[award.CreatorID] += award.Points
		}
		userIDs := make([]string, 0, len(deltas))
		for id := range deltas {
			userIDs = append(userIDs, id)
		}
		sort.Strings(userIDs)

		balances := make(map[string]int, len(userIDs))
		userRefs := make(map[string]*firestore.DocumentRef, len(userIDs))
		for _, id := range userIDs {
			ref, err := r.users.DocumentRef(ctx, id)
			if err != nil {
				return err
			}
			userRefs[id] = ref
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					balances[id] = 0
					continue
				}
				return err
			}
			var doc userDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode user %s: %w", id, err)
			}
			balances[id] = doc.LoyaltyPoints
		}

		// Validate phase. Shortages are collected across the whole cart so
		// the caller can report every unavailable item at once.
		shortage := &repositories.StockUnavailableError{}
		for _, key := range keys {
			available := 0
			if !missing[key.DocID()] {
				available = stockDocs[key.DocID()].Quantity
			}
			if available < req.Demand[key] {
				if key.Kind.IsModel() {
					shortage.ModelIDs = append(shortage.ModelIDs, key.ID)
				} else {
					shortage.CharmIDs = append(shortage.CharmIDs, key.ID)
				}
			}
		}
		if !shortage.Empty() {
			return shortage
		}
		if req.Order.PointsUsed > 0 && balances[req.Order.CustomerID] < req.Order.PointsUsed {
			return repositories.ErrInsufficientPoints
		}

		// Write phase.
		stocks := make(map[string]domain.StockRecord, len(keys))
		for _, key := range keys {
			doc := stockDocs[key.DocID()]
			doc.Kind = string(key.Kind)
			doc.ItemID = key.ID
			doc.Quantity -= req.Demand[key]
			doc.LastOrderedAt = &now
			if err := tx.Set(stockRefs[key.DocID()], doc); err != nil {
				return err
			}
			stocks[key.DocID()] = doc.toDomain()
		}

		for _, id := range userIDs {
			update := map[string]interface{}{
				loyaltyPointsField: balances[id] + deltas[id],
				"updatedAt":        now,
			}
			if err := tx.Set(userRefs[id], update, firestore.MergeAll); err != nil {
				return err
			}
		}

		for _, award := range req.Awards {
			notifRef := client.Collection(notificationsCollection).NewDoc()
			if err := tx.Create(notifRef, creatorRewardNotification(req.Order, award, now)); err != nil {
				return err
			}
		}

		if req.PaymentIntentID != "" {
			intentRef, err := r.intents.DocumentRef(ctx, req.PaymentIntentID)
			if err != nil {
				return err
			}
			if err := tx.Update(intentRef, []firestore.Update{
				{Path: "status", Value: repositories.PaymentIntentStatusAttached},
				{Path: "orderId", Value: req.Order.ID},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		if err := tx.Create(numberRef, orderNumberClaimDocument{
			OrderID:   req.Order.ID,
			CreatedAt: now,
		}); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return repositories.ErrOrderNumberTaken
			}
			return err
		}

		order := req.Order
		order.CreatedAt = now
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}

		result = repositories.PlaceOrderResult{
			Order:  newOrderDocument(order).toDomain(order.ID),
			Stocks: stocks,
		}
		return nil
	})
	if err != nil {
		return repositories.PlaceOrderResult{}, wrapCheckoutError("checkout.placeOrder", err)
	}
	return result, nil
}

func creatorRewardNotification(order domain.Order, award domain.CreatorAward, now time.Time) notificationDocument {
	names := strings.Join(award.CreationNames, ", ")
	return notificationDocument{
		Type:      "creator.reward",
		Recipient: award.CreatorID,
		Subject:   "Vos créations ont été commandées",
		Body:      fmt.Sprintf("Commande %s : %s — %d points de fidélité crédités.", order.OrderNumber, names, award.Points),
		OrderID:   order.ID,
		Sent:      false,
		CreatedAt: now,
	}
}

// wrapCheckoutError keeps typed domain failures intact and classifies the
// rest through the shared firestore error wrapper.
func wrapCheckoutError(op string, err error) error {
	if err == nil {
		return nil
	}
	var shortage *repositories.StockUnavailableError
	if errors.As(err, &shortage) {
		return err
	}
	if errors.Is(err, repositories.ErrOrderNumberTaken) ||
		errors.Is(err, repositories.ErrInsufficientPoints) {
		return err
	}
	return pfirestore.WrapError(op, err)
}
