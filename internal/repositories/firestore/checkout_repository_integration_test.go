//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atelier-perle/api/internal/domain"
	pconfig "github.com/atelier-perle/api/internal/platform/config"
	pfirestore "github.com/atelier-perle/api/internal/platform/firestore"
	"github.com/atelier-perle/api/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestCheckoutRepositoryIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "checkout-test",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() { _ = provider.Close() })

	checkout, err := NewCheckoutRepository(provider)
	if err != nil {
		t.Fatalf("new checkout repository: %v", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	braceletKey := domain.ItemKey{Kind: domain.ItemKindBracelet, ID: "modele-perle"}
	charmKey := domain.ItemKey{Kind: domain.ItemKindCharm, ID: "charm-etoile"}

	seed := func(key domain.ItemKey, qty int) {
		t.Helper()
		if _, err := client.Collection(stocksCollection).Doc(key.DocID()).Set(ctx, map[string]any{
			"kind":     string(key.Kind),
			"itemId":   key.ID,
			"quantity": qty,
		}); err != nil {
			t.Fatalf("seed stock %s: %v", key.DocID(), err)
		}
	}
	seed(braceletKey, 3)
	seed(charmKey, 5)

	if _, err := client.Collection(usersCollection).Doc("user-buyer").Set(ctx, map[string]any{
		"loyaltyPoints": 100,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	order := domain.Order{
		ID:            "order-1",
		OrderNumber:   "BJX-250301-A1B2C3",
		CustomerID:    "user-buyer",
		CustomerEmail: "buyer@example.com",
		Subtotal:      21.90,
		TotalPrice:    16.90,
		Items: []domain.OrderItem{{
			ModelID:      braceletKey.ID,
			ModelKind:    braceletKey.Kind,
			Price:        21.90,
			Charms:       []domain.CharmRef{{CharmID: charmKey.ID}},
			CreatorID:    "creator-1",
			CreationID:   "creation-1",
			CreationName: "Etoile filante",
		}},
		Status:           domain.OrderStatusSubmitted,
		PaymentReference: "pi_test_1",
		PointsUsed:       50,
		PointsValue:      5.00,
	}
	demand := map[domain.ItemKey]int{braceletKey: 1, charmKey: 1}
	awards := []domain.CreatorAward{{CreatorID: "creator-1", Points: 10, CreationNames: []string{"Etoile filante"}}}

	result, err := checkout.PlaceOrder(ctx, repositories.PlaceOrderRequest{
		Order:  order,
		Demand: demand,
		Awards: awards,
		Now:    now,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if result.Order.Status != domain.OrderStatusSubmitted {
		t.Fatalf("expected commandée, got %s", result.Order.Status)
	}
	if got := result.Stocks[braceletKey.DocID()].Quantity; got != 2 {
		t.Fatalf("expected bracelet stock 2, got %d", got)
	}
	if got := result.Stocks[charmKey.DocID()].Quantity; got != 4 {
		t.Fatalf("expected charm stock 4, got %d", got)
	}

	buyerSnap, err := client.Collection(usersCollection).Doc("user-buyer").Get(ctx)
	if err != nil {
		t.Fatalf("read buyer: %v", err)
	}
	if points, _ := buyerSnap.DataAt("loyaltyPoints"); points != int64(50) {
		t.Fatalf("expected buyer balance 50, got %v", points)
	}
	creatorSnap, err := client.Collection(usersCollection).Doc("creator-1").Get(ctx)
	if err != nil {
		t.Fatalf("read creator: %v", err)
	}
	if points, _ := creatorSnap.DataAt("loyaltyPoints"); points != int64(10) {
		t.Fatalf("expected creator balance 10, got %v", points)
	}

	notifs, err := client.Collection(notificationsCollection).Documents(ctx).GetAll()
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifs) != 1 {
		t.Fatalf("expected 1 creator notification, got %d", len(notifs))
	}

	// Same order number again must abort with the claim error.
	dup := order
	dup.ID = "order-dup"
	_, err = checkout.PlaceOrder(ctx, repositories.PlaceOrderRequest{Order: dup, Demand: demand, Awards: nil, Now: now})
	if !errors.Is(err, repositories.ErrOrderNumberTaken) {
		t.Fatalf("expected ErrOrderNumberTaken, got %v", err)
	}

	// One available plus one unavailable item: nothing may change.
	scarceKey := domain.ItemKey{Kind: domain.ItemKindNecklace, ID: "modele-rare"}
	seed(scarceKey, 0)
	mixed := order
	mixed.ID = "order-mixed"
	mixed.OrderNumber = "BJX-250301-D4E5F6"
	mixed.PointsUsed = 0
	mixed.PointsValue = 0
	_, err = checkout.PlaceOrder(ctx, repositories.PlaceOrderRequest{
		Order:  mixed,
		Demand: map[domain.ItemKey]int{braceletKey: 1, scarceKey: 1},
		Now:    now,
	})
	var shortage *repositories.StockUnavailableError
	if !errors.As(err, &shortage) {
		t.Fatalf("expected StockUnavailableError, got %v", err)
	}
	if len(shortage.ModelIDs) != 1 || shortage.ModelIDs[0] != scarceKey.ID {
		t.Fatalf("expected itemized shortage for %s, got %+v", scarceKey.ID, shortage)
	}
	braceletSnap, err := client.Collection(stocksCollection).Doc(braceletKey.DocID()).Get(ctx)
	if err != nil {
		t.Fatalf("read bracelet stock: %v", err)
	}
	if qty, _ := braceletSnap.DataAt("quantity"); qty != int64(2) {
		t.Fatalf("partial write detected: bracelet stock %v", qty)
	}

	// Two concurrent attempts for the last unit: exactly one succeeds.
	lastKey := domain.ItemKey{Kind: domain.ItemKindAnklet, ID: "modele-unique"}
	seed(lastKey, 1)
	var wg sync.WaitGroup
	outcomes := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			concurrent := domain.Order{
				ID:               fmt.Sprintf("order-race-%d", i),
				OrderNumber:      fmt.Sprintf("BJX-250301-RACE0%d", i),
				CustomerID:       "user-buyer",
				Status:           domain.OrderStatusSubmitted,
				PaymentReference: domain.NoPaymentReference,
				Subtotal:         9.90,
				TotalPrice:       9.90,
				Items: []domain.OrderItem{{
					ModelID:   lastKey.ID,
					ModelKind: lastKey.Kind,
					Price:     9.90,
				}},
			}
			_, outcomes[i] = checkout.PlaceOrder(ctx, repositories.PlaceOrderRequest{
				Order:  concurrent,
				Demand: map[domain.ItemKey]int{lastKey: 1},
				Now:    now,
			})
		}(i)
	}
	wg.Wait()
	successes, shortages := 0, 0
	for _, outcome := range outcomes {
		if outcome == nil {
			successes++
			continue
		}
		var short *repositories.StockUnavailableError
		if errors.As(outcome, &short) {
			shortages++
		}
	}
	if successes != 1 || shortages != 1 {
		t.Fatalf("expected one success and one shortage, got %d/%d (%v, %v)", successes, shortages, outcomes[0], outcomes[1])
	}

	// Cancellation restores stock and points exactly once.
	cancelResult, err := orders.Cancel(ctx, repositories.OrderCancelRequest{
		OrderID: "order-1",
		Reason:  "demande du client",
		Now:     now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelResult.Order.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected annulée, got %s", cancelResult.Order.Status)
	}
	if got := cancelResult.Stocks[braceletKey.DocID()].Quantity; got != 3 {
		t.Fatalf("expected bracelet stock restored to 3, got %d", got)
	}
	buyerSnap, err = client.Collection(usersCollection).Doc("user-buyer").Get(ctx)
	if err != nil {
		t.Fatalf("re-read buyer: %v", err)
	}
	if points, _ := buyerSnap.DataAt("loyaltyPoints"); points != int64(100) {
		t.Fatalf("expected buyer balance restored to 100, got %v", points)
	}

	// Second cancel is rejected, not re-executed.
	_, err = orders.Cancel(ctx, repositories.OrderCancelRequest{
		OrderID: "order-1",
		Reason:  "doublon",
		Now:     now.Add(2 * time.Minute),
	})
	if !errors.Is(err, domain.ErrTerminalStatus) {
		t.Fatalf("expected ErrTerminalStatus on repeat cancel, got %v", err)
	}
	buyerSnap, err = client.Collection(usersCollection).Doc("user-buyer").Get(ctx)
	if err != nil {
		t.Fatalf("re-read buyer after repeat cancel: %v", err)
	}
	if points, _ := buyerSnap.DataAt("loyaltyPoints"); points != int64(100) {
		t.Fatalf("points restored more than once: %v", points)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}
	out, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
