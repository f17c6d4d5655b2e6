package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/atelier-perle/api/internal/platform/firestore"
	"github.com/atelier-perle/api/internal/repositories"
)

// PaymentIntentRepository persists pending-capture records. A record is
// created before the external charge, tagged with the PSP reference once the
// charge succeeds, and flipped to attached by the order transaction. Records
// stuck in pending mark charges whose order never persisted.
type PaymentIntentRepository struct {
	intents *pfirestore.BaseRepository[paymentIntentDocument]
}

var _ repositories.PaymentIntentRepository = (*PaymentIntentRepository)(nil)

// NewPaymentIntentRepository constructs a PaymentIntentRepository.
func NewPaymentIntentRepository(provider *pfirestore.Provider) (*PaymentIntentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment intent repository requires firestore provider")
	}
	return &PaymentIntentRepository{
		intents: pfirestore.NewBaseRepository[paymentIntentDocument](provider, paymentIntentsCollection, nil),
	}, nil
}

// Create writes a new pending-capture record.
func (r *PaymentIntentRepository) Create(ctx context.Context, record repositories.PaymentIntentRecord) error {
	if r == nil || r.intents == nil {
		return errors.New("payment intent repository not initialised")
	}
	if strings.TrimSpace(record.ID) == "" {
		return errors.New("payment intent create: id is required")
	}
	if record.Status == "" {
		record.Status = repositories.PaymentIntentStatusPending
	}
	return r.intents.Set(ctx, record.ID, newPaymentIntentDocument(record))
}

// SetReference stores the PSP reference after the charge succeeded.
func (r *PaymentIntentRepository) SetReference(ctx context.Context, id, reference string, now time.Time) error {
	return r.update(ctx, id, []firestore.Update{
		{Path: "reference", Value: reference},
		{Path: "updatedAt", Value: now.UTC()},
	})
}

// ListPendingBefore returns pending records created before the cutoff.
func (r *PaymentIntentRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]repositories.PaymentIntentRecord, error) {
	if r == nil || r.intents == nil {
		return nil, errors.New("payment intent repository not initialised")
	}

	docs, err := r.intents.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", repositories.PaymentIntentStatusPending).
			Where("createdAt", "<", cutoff.UTC()).
			OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	records := make([]repositories.PaymentIntentRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.Data.toDomain(doc.ID))
	}
	return records, nil
}

// MarkRefunded records that the orphaned charge was returned to the payer.
func (r *PaymentIntentRepository) MarkRefunded(ctx context.Context, id string, now time.Time) error {
	return r.update(ctx, id, []firestore.Update{
		{Path: "status", Value: repositories.PaymentIntentStatusRefunded},
		{Path: "updatedAt", Value: now.UTC()},
	})
}

// MarkAbandoned records that no charge ever happened for the record.
func (r *PaymentIntentRepository) MarkAbandoned(ctx context.Context, id string, now time.Time) error {
	return r.update(ctx, id, []firestore.Update{
		{Path: "status", Value: repositories.PaymentIntentStatusAbandoned},
		{Path: "updatedAt", Value: now.UTC()},
	})
}

func (r *PaymentIntentRepository) update(ctx context.Context, id string, updates []firestore.Update) error {
	if r == nil || r.intents == nil {
		return errors.New("payment intent repository not initialised")
	}
	if strings.TrimSpace(id) == "" {
		return errors.New("payment intent update: id is required")
	}
	ref, err := r.intents.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Update(ctx, updates); err != nil {
		wrapped := pfirestore.WrapError("paymentIntents.update", err)
		var repoErr *pfirestore.Error
		if errors.As(wrapped, &repoErr) && repoErr.IsNotFound() {
			return repositories.ErrPaymentIntentNotFound
		}
		return wrapped
	}
	return nil
}
