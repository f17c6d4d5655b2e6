package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentAPI struct {
	intent *stripe.PaymentIntent
	err    error
	params *stripe.PaymentIntentParams
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.params = params
	return s.intent, s.err
}

type stubRefundAPI struct {
	refund *stripe.Refund
	err    error
	params *stripe.RefundParams
}

func (s *stubRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	s.params = params
	return s.refund, s.err
}

func newTestProvider(t *testing.T, intents *stubIntentAPI, refunds *stubRefundAPI) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		Clients: &stripeClients{intents: intents, refunds: refunds},
		Clock:   func() time.Time { return time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	return provider
}

func TestStripeChargeSucceeds(t *testing.T) {
	intents := &stubIntentAPI{intent: &stripe.PaymentIntent{
		ID:       "pi_123",
		Amount:   3480,
		Currency: "eur",
		Status:   stripe.PaymentIntentStatusSucceeded,
	}}
	provider := newTestProvider(t, intents, &stubRefundAPI{})

	charge, err := provider.Charge(context.Background(), ChargeRequest{
		OrderID:        "order-1",
		Amount:         3480,
		Currency:       "EUR",
		PayerEmail:     "claire@example.com",
		IdempotencyKey: "order-1",
	})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if charge.Reference != "pi_123" {
		t.Fatalf("expected reference pi_123, got %s", charge.Reference)
	}
	if charge.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", charge.Status)
	}
	if charge.Currency != "EUR" {
		t.Fatalf("expected EUR, got %s", charge.Currency)
	}
	if intents.params == nil || intents.params.Metadata["orderId"] != "order-1" {
		t.Fatal("expected order id metadata on the intent")
	}
}

func TestStripeChargeDeclined(t *testing.T) {
	intents := &stubIntentAPI{err: &stripe.Error{
		Type: stripe.ErrorTypeCard,
		Code: stripe.ErrorCodeCardDeclined,
	}}
	provider := newTestProvider(t, intents, &stubRefundAPI{})

	_, err := provider.Charge(context.Background(), ChargeRequest{Amount: 990, Currency: "EUR"})
	if !errors.Is(err, ErrChargeDeclined) {
		t.Fatalf("expected ErrChargeDeclined, got %v", err)
	}
}

func TestStripeChargeRejectsNonPositiveAmount(t *testing.T) {
	provider := newTestProvider(t, &stubIntentAPI{}, &stubRefundAPI{})
	if _, err := provider.Charge(context.Background(), ChargeRequest{Amount: 0}); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestStripeRefundSucceeds(t *testing.T) {
	refunds := &stubRefundAPI{refund: &stripe.Refund{
		ID:     "re_123",
		Amount: 3480,
		Status: stripe.RefundStatusSucceeded,
	}}
	provider := newTestProvider(t, &stubIntentAPI{}, refunds)

	refund, err := provider.Refund(context.Background(), RefundRequest{
		Reference:      "pi_123",
		Reason:         "requested_by_customer",
		IdempotencyKey: "refund:order-1",
	})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.ID != "re_123" || refund.Reference != "pi_123" {
		t.Fatalf("unexpected refund: %+v", refund)
	}
	if refunds.params == nil || refunds.params.PaymentIntent == nil || *refunds.params.PaymentIntent != "pi_123" {
		t.Fatal("expected refund against the charged intent")
	}
}

func TestStripeRefundFailureSurfaces(t *testing.T) {
	refunds := &stubRefundAPI{err: errors.New("boom")}
	provider := newTestProvider(t, &stubIntentAPI{}, refunds)

	if _, err := provider.Refund(context.Background(), RefundRequest{Reference: "pi_123"}); !errors.Is(err, ErrRefundFailed) {
		t.Fatalf("expected ErrRefundFailed, got %v", err)
	}
}
