package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-perle/api/internal/services"
)

func TestReconcileIntentsEndpoint(t *testing.T) {
	var capturedAge time.Duration
	service := &stubCheckoutService{
		reconcileFn: func(_ context.Context, olderThan time.Duration) (services.ReconcileReport, error) {
			capturedAge = olderThan
			return services.ReconcileReport{Refunded: 2, Abandoned: 1}, nil
		},
	}
	r := chi.NewRouter()
	NewInternalHandlers(service).Routes(r)

	req := httptest.NewRequest(http.MethodPost, "/reconcile-intents?olderThanMinutes=30", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedAge != 30*time.Minute {
		t.Fatalf("expected 30m cutoff, got %v", capturedAge)
	}
	var body struct {
		Refunded  int `json:"refunded"`
		Abandoned int `json:"abandoned"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body.Refunded != 2 || body.Abandoned != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestReconcileIntentsRejectsBadCutoff(t *testing.T) {
	r := chi.NewRouter()
	NewInternalHandlers(&stubCheckoutService{}).Routes(r)

	req := httptest.NewRequest(http.MethodPost, "/reconcile-intents?olderThanMinutes=-5", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
