package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/config"
	"github.com/ariefcatur/go-shop-orders/internal/httpx"
	"github.com/ariefcatur/go-shop-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/observability"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/payment"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("api exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, 16)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderLifecycle, 1024, logger.Named("producer"))
	prod.Start()

	gateway, err := newGateway(cfg.Payment)
	if err != nil {
		return err
	}
	bridge, err := payment.NewBridge(payment.BridgeConfig{
		Gateway:   gateway,
		ServerURL: cfg.ServerURL,
		Currency:  cfg.Payment.Currency,
		Timeout:   cfg.Payment.Timeout,
		Logger:    logger.Named("payment"),
	})
	if err != nil {
		return err
	}

	charge := cfg.DefaultDeliveryCharge
	svc, err := orders.NewService(orders.ServiceDeps{
		Store:          &orders.Repo{DB: db},
		Ledger:         inventory.Ledger{Logger: logger.Named("ledger")},
		Checkout:       bridge,
		Events:         &kafkax.EventPublisher{Producer: prod, Service: cfg.ServiceName},
		Cache:          redisx.NewStatusCache(rdb),
		Logger:         logger.Named("orders"),
		DeliveryCharge: &charge,
	})
	if err != nil {
		return err
	}

	verifier, err := auth.NewVerifier(cfg.SecretKey)
	if err != nil {
		return err
	}

	router := httpx.NewRouter(logger, map[string]httpx.HealthCheck{
		"postgres": func(r *http.Request) error { return db.Ping(r.Context()) },
		"redis":    func(r *http.Request) error { return redisx.Ping(r.Context(), rdb) },
	})
	(&httpx.OrdersHandler{
		Orders:  svc,
		Auth:    auth.NewAuthenticator(verifier, httpx.WriteError),
		Timeout: cfg.Payment.Timeout + 5*time.Second,
	}).Register(router)
	(&httpx.PaymentHandler{
		Callbacks: payment.NewCallbacks(svc, redisx.NewCallbackGuard(rdb), logger.Named("callbacks")),
		ClientURL: cfg.ClientURL,
	}).Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("gateway", gateway.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		prod.Close() // flush buffered events, then close the writer
		prod.WaitClosed()
		return err
	})
	return g.Wait()
}

func newGateway(cfg config.Payment) (payment.Gateway, error) {
	switch cfg.Gateway {
	case payment.GatewayStripe:
		return payment.NewStripe(payment.StripeConfig{APIKey: cfg.StripeAPIKey})
	case payment.GatewaySSLCommerz:
		return payment.NewSSLCommerz(payment.SSLCommerzConfig{
			StoreID:       cfg.StoreID,
			StorePassword: cfg.StorePassword,
			Live:          cfg.SSLCommerzLive,
			HTTP:          &http.Client{Timeout: cfg.Timeout},
		})
	default:
		return nil, fmt.Errorf("%w: unknown gateway %q", payment.ErrConfig, cfg.Gateway)
	}
}
