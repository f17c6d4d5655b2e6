package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/atelier-perle/api/internal/handlers"
	"github.com/atelier-perle/api/internal/payments"
	"github.com/atelier-perle/api/internal/platform/auth"
	"github.com/atelier-perle/api/internal/platform/config"
	pfirestore "github.com/atelier-perle/api/internal/platform/firestore"
	"github.com/atelier-perle/api/internal/platform/jobs"
	"github.com/atelier-perle/api/internal/platform/observability"
	"github.com/atelier-perle/api/internal/platform/secrets"
	platformstorage "github.com/atelier-perle/api/internal/platform/storage"
	"github.com/atelier-perle/api/internal/repositories"
	firestoreRepo "github.com/atelier-perle/api/internal/repositories/firestore"
	"github.com/atelier-perle/api/internal/services"
)

const (
	reconcileInterval = 15 * time.Minute
	reconcileAge      = time.Hour
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher := newSecretFetcher(ctx, logger)
	if fetcher != nil {
		defer func() {
			if err := fetcher.Close(); err != nil {
				logger.Warn("secret fetcher close error", zap.Error(err))
			}
		}()
	}

	loadOpts := []config.Option{}
	if fetcher != nil {
		loadOpts = append(loadOpts, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	}
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var uploader *platformstorage.Uploader
	if strings.TrimSpace(cfg.Storage.PreviewsBucket) != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		uploader, err = platformstorage.NewUploader(storageClient, cfg.Storage.PreviewsBucket)
		if err != nil {
			logger.Fatal("failed to initialise preview uploader", zap.Error(err))
		}
	} else {
		logger.Warn("previews bucket not configured; preview uploads disabled")
	}

	var publisher services.NotificationPublisher
	var notificationTopic *pubsub.Topic
	if strings.TrimSpace(cfg.PubSub.ProjectID) != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		notificationTopic = pubsubClient.Topic(cfg.PubSub.NotificationTopic)
		defer notificationTopic.Stop()
		publisher, err = jobs.NewPubSubNotificationPublisher(notificationTopic)
		if err != nil {
			logger.Fatal("failed to initialise notification publisher", zap.Error(err))
		}
	} else {
		logger.Warn("pubsub project not configured; order notifications disabled")
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	if strings.TrimSpace(cfg.Payments.StripeAPIKey) == "" {
		logger.Fatal("stripe api key is required")
	}
	paymentsLogger := logger.Named("payments")
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.Payments.StripeAPIKey,
		Logger: observability.EventLogger(paymentsLogger),
		Clock:  time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}

	checkoutRepo, err := firestoreRepo.NewCheckoutRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise checkout repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	couponRepo, err := firestoreRepo.NewCouponRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise coupon repository", zap.Error(err))
	}
	loyaltyRepo, err := firestoreRepo.NewLoyaltyRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise loyalty repository", zap.Error(err))
	}
	stockRepo, err := firestoreRepo.NewStockRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise stock repository", zap.Error(err))
	}
	intentRepo, err := firestoreRepo.NewPaymentIntentRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise payment intent repository", zap.Error(err))
	}

	couponService, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons: couponRepo,
		Loyalty: loyaltyRepo,
		Clock:   time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise coupon service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Checkout:    checkoutRepo,
		Coupons:     couponService,
		Intents:     intentRepo,
		Payments:    stripeProvider,
		Publisher:   publisher,
		Clock:       time.Now,
		IDGenerator: func() string { return ulid.Make().String() },
		Logger:      observability.EventLogger(logger.Named("checkout")),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    orderRepo,
		Payments:  stripeProvider,
		Publisher: publisher,
		Clock:     time.Now,
		Logger:    observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	stockService, err := services.NewStockService(services.StockServiceDeps{
		Stocks: stockRepo,
		Clock:  time.Now,
		Logger: observability.EventLogger(logger.Named("stock")),
	})
	if err != nil {
		logger.Fatal("failed to initialise stock service", zap.Error(err))
	}

	healthRepo, err := newHealthRepository(firestoreClient, notificationTopic)
	if err != nil {
		logger.Warn("health: dependency prober init failed", zap.Error(err))
	}

	healthOpts := []handlers.HealthOption{
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
	}
	if healthRepo != nil {
		healthOpts = append(healthOpts, handlers.WithHealthRepository(healthRepo))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, checkoutService,
		handlers.WithCheckoutRateLimiter(handlers.NewFixedWindowLimiter(10, time.Minute, time.Now)),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService)
	stockHandlers := handlers.NewStockHandlers(authenticator, stockService)
	internalHandlers := handlers.NewInternalHandlers(checkoutService)
	var previewUploader handlers.PreviewUploader
	if uploader != nil {
		previewUploader = uploader
	}
	previewHandlers := handlers.NewPreviewHandlers(authenticator, previewUploader, func() string { return ulid.Make().String() })

	router := handlers.NewRouter(
		handlers.WithMiddlewares(observability.Middleware(logger.Named("http"))),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(func(r chi.Router) {
			checkoutHandlers.Routes(r)
			orderHandlers.Routes(r)
			previewHandlers.Routes(r)
		}),
		handlers.WithStockRoutes(stockHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
		handlers.WithInternalMiddlewares(authenticator.RequireFirebaseAuth(auth.RoleAdmin)),
	)

	reconcileCtx, reconcileCancel := context.WithCancel(context.Background())
	var reconcileWG sync.WaitGroup
	reconcileTicker := time.NewTicker(reconcileInterval)
	reconcileWG.Add(1)
	go func() {
		defer reconcileWG.Done()
		reconcileLogger := logger.Named("reconcile")
		for {
			select {
			case <-reconcileTicker.C:
				runCtx, cancel := context.WithTimeout(reconcileCtx, time.Minute)
				report, err := checkoutService.ReconcileAbandonedIntents(runCtx, reconcileAge)
				cancel()
				if err != nil {
					reconcileLogger.Error("intent reconcile error", zap.Error(err))
					continue
				}
				if report.Refunded > 0 || report.Abandoned > 0 || report.Failed > 0 {
					reconcileLogger.Info("intent reconcile pass",
						zap.Int("refunded", report.Refunded),
						zap.Int("abandoned", report.Abandoned),
						zap.Int("failed", report.Failed),
					)
				}
			case <-reconcileCtx.Done():
				return
			}
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("atelier-perle api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	reconcileTicker.Stop()
	reconcileCancel()
	reconcileWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newSecretFetcher initialises the Secret Manager fetcher when a project is
// configured; without one, config falls back to plain environment values.
func newSecretFetcher(ctx context.Context, logger *zap.Logger) *secrets.Fetcher {
	projectID := strings.TrimSpace(os.Getenv("SECRETS_PROJECT_ID"))
	if projectID == "" {
		projectID = strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT"))
	}
	if projectID == "" {
		return nil
	}
	fetcher, err := secrets.NewFetcher(ctx, projectID)
	if err != nil {
		logger.Warn("secret fetcher init failed; secret references will not resolve", zap.Error(err))
		return nil
	}
	return fetcher
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(client *firestore.Client, topic *pubsub.Topic) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
					return err
				}
				return nil
			},
		})
	}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := t.Exists(ctx)
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}
