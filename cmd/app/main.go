package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/adapters/events"
	"storefront-checkout/internal/infra/adapters/payment"
	"storefront-checkout/internal/infra/api"
	"storefront-checkout/internal/infra/api/apiv1"
	pg "storefront-checkout/internal/infra/db/postgres"
	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/infra/metrics"
	red "storefront-checkout/internal/infra/redis"
	"storefront-checkout/internal/infra/sched"
	"storefront-checkout/internal/infra/worker"
	"storefront-checkout/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted fields)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("storefront-checkout stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("commit", commit).Bool("dev", cfg.Runtime.Dev).Msg("starting")

	// ---- Postgres ----
	if cfg.Database.MigrateOnStart {
		if err := pg.Migrate(ctx, cfg.Database.URL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("schema migrations applied")
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	// ---- Repositories ----
	packages := pg.NewPackageRepoCacheDecorator(pg.NewPackageRepo(pool), redisClient, cfg.Redis.TTL, logger)
	sessions := pg.NewCheckoutSessionRepo(pool)
	purchases := pg.NewPurchaseRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Adapters ----
	var provider adapter.CheckoutProvider
	if cfg.Stripe.SecretKey != "" {
		sp, err := payment.NewStripeCheckout(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
		if err != nil {
			return fmt.Errorf("stripe: %w", err)
		}
		provider = sp
	} else {
		logger.Warn().Msg("stripe.secret_key not set; using the noop checkout provider")
		provider = payment.NewNoopCheckoutProvider()
	}

	var publisher adapter.PurchaseEventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer kp.Close()
		publisher = kp
	} else {
		publisher = events.NewLogPublisher(logger, cfg.Runtime.Dev)
	}

	// ---- Use cases ----
	fee := decimal.NewFromFloat(*cfg.Checkout.FeePercent)
	catalogUC := usecase.NewCatalogUseCase(packages, fee, logger)
	purchaseUC := usecase.NewPurchaseUseCase(purchases, packages, sessions, publisher, tm, logger)
	checkoutUC := usecase.NewCheckoutUseCase(usecase.CheckoutConfig{
		SessionTTL:    cfg.Checkout.SessionTTL,
		FeePercent:    fee,
		PublicBaseURL: cfg.Checkout.PublicBaseURL,
		BatchSize:     cfg.Scheduler.ExpiryBatchSize,
	}, packages, sessions, purchases, provider, publisher, tm, logger)

	// ---- Workers ----
	// Webhook handlers wait on the pool, so it stops after the HTTP server.
	webhooks := worker.NewPool("webhooks", cfg.Scheduler.WebhookWorkers, cfg.Scheduler.WebhookQueue, logger)
	webhooks.Start(context.WithoutCancel(ctx))
	defer webhooks.Stop()

	expiry := sched.NewSessionExpiryWorker(cfg.Scheduler.ExpiryInterval, checkoutUC, red.NewLocker(redisClient), logger)
	go func() {
		if err := expiry.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("session expiry worker stopped")
		}
	}()

	// ---- HTTP ----
	handler := api.NewRouter(api.RouterConfig{
		BasePath:       cfg.HTTP.BasePath,
		RequestTimeout: cfg.HTTP.WriteTimeout,
		RateLimit:      cfg.HTTP.RateLimit,
		TrustedProxies: cfg.HTTP.TrustedNets,
		IdempotencyTTL: cfg.Checkout.IdempotencyTTL,
		JWTSecret:      cfg.Auth.JWTSecret,
		JWTIssuer:      cfg.Auth.Issuer,
	}, api.Deps{
		API:         apiv1.NewServer(checkoutUC, purchaseUC, catalogUC, provider, webhooks, logger),
		Limiter:     red.NewRateLimiter(redisClient),
		Idempotency: red.NewIdempotencyStore(redisClient),
		Checks: map[string]api.HealthCheck{
			"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
			"redis":    redisClient.Ping,
		},
		Logger: logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("base_path", cfg.HTTP.BasePath).
			Str("provider", provider.Name()).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}
	return nil
}
