package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderpay/internal/app/plans"
	"orderpay/internal/app/reconciliation"
	"orderpay/internal/catalog"
	"orderpay/internal/config"
	orderpay_http "orderpay/internal/handler/http/orderpay"
	kafka_handler "orderpay/internal/handler/kafka"
	"orderpay/internal/infrastructure/database"
	kafka_infra "orderpay/internal/infrastructure/kafka"
	"orderpay/internal/infrastructure/natsbus"
	"orderpay/internal/outbox"
	"orderpay/internal/payhere"
	"orderpay/internal/repository/inbox_repo"
	"orderpay/internal/repository/order_repo"
	"orderpay/internal/repository/outbox_repo"
	"orderpay/internal/repository/payment_repo"
	"orderpay/internal/repository/plan_repo"
	"orderpay/internal/util"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the outbox relay and the fulfilment consumer",
		RunE:  runServe,
	}
	cmd.Flags().Bool("skip-migrate", false, "do not apply migrations on boot")
	return cmd
}

// publisher is the outbox transport selected by NOTIFY_TRANSPORT.
type publisher interface {
	outbox.Publisher
	Close() error
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, appLogger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() { _ = appLogger.Sync() }()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	appLogger.Info("Orderpay service starting...", zap.String("version", Version))

	db, err := connectDB(cfg, appLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	if skip, _ := cmd.Flags().GetBool("skip-migrate"); !skip {
		source, _ := cmd.Flags().GetString("migrations")
		appLogger.Info("Running database migrations...", zap.String("source", source))
		if err := migrateUp(source, cfg.GetDBMigrationConnectionString(), appLogger); err != nil {
			return err
		}
	}

	kafkaBrokers := cfg.GetKafkaBrokers()
	requiredTopics := []string{cfg.KafkaFulfilmentTopic}
	if cfg.NotifyTransport == config.NotifyTransportKafka {
		requiredTopics = append(requiredTopics, cfg.KafkaNotificationsTopic)
	}
	topicCtx, topicCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = kafka_infra.EnsureTopics(topicCtx, kafkaBrokers, requiredTopics, appLogger)
	topicCancel()
	if err != nil {
		return fmt.Errorf("failed to ensure Kafka topics: %w", err)
	}

	transactor := database.NewTransactor(db, cfg.OrderLockTimeout, appLogger.With(zap.String("component", "Transactor")))
	orderRepository := order_repo.NewOrderRepository()
	planRepository := plan_repo.NewPlanRepository()
	paymentRepository := payment_repo.NewPaymentRepository()
	outboxRepository := outbox_repo.NewOutboxRepository()
	inboxRepository := inbox_repo.NewInboxRepository()

	reconciliationService := reconciliation.NewService(reconciliation.Deps{
		Tx:       transactor,
		Orders:   orderRepository,
		Plans:    planRepository,
		Payments: paymentRepository,
		Outbox:   outboxRepository,
		Inbox:    inboxRepository,
		Catalog: catalog.NewClient(cfg.CatalogServiceURL, cfg.CatalogTimeout,
			appLogger.With(zap.String("component", "CatalogClient"))),
		PayHere: payhere.MerchantConfig{
			MerchantID: cfg.PayHere.MerchantID,
			AppID:      cfg.PayHere.AppID,
			AppSecret:  cfg.PayHere.AppSecret,
			Currency:   cfg.PayHere.Currency,
			ReturnURL:  cfg.PayHere.ReturnURL,
			CancelURL:  cfg.PayHere.CancelURL,
			NotifyURL:  cfg.PayHere.NotifyURL,
			Sandbox:    cfg.PayHere.Sandbox,
		},
		OrderNumbers: util.RandomOrderNumbers{},
		NewID:        util.GenerateUUID,
		Logger:       appLogger.With(zap.String("component", "ReconciliationService")),
	})
	planService := plans.NewService(db, planRepository, util.GenerateUUID,
		appLogger.With(zap.String("component", "PlanService")))
	appLogger.Info("Services initialized.")

	notifier, err := newPublisher(cfg, appLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			appLogger.Error("Error closing notification publisher", zap.Error(err))
		}
	}()

	outboxProcessor := outbox.NewProcessor(
		transactor,
		outboxRepository,
		notifier,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxMaxAttempts,
		appLogger.With(zap.String("component", "OutboxProcessor")),
	)

	fulfilmentConsumer := kafka_infra.NewConsumer(
		kafkaBrokers,
		cfg.KafkaConsumerGroup,
		cfg.KafkaFulfilmentTopic,
		appLogger.With(zap.String("component", "FulfilmentConsumer")),
	)
	fulfilmentHandler := kafka_handler.FulfilmentMessageHandler(
		reconciliationService,
		appLogger.With(zap.String("component", "FulfilmentHandler")),
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	orderpay_http.RegisterRoutes(
		router,
		reconciliationService,
		planService,
		orderpay_http.Authenticator([]byte(cfg.JWTSecret), appLogger.With(zap.String("component", "Authenticator"))),
		orderpay_http.NewIPRateLimiter(float64(cfg.WebhookRatePerSec), cfg.WebhookRateBurst, 10*time.Minute),
		appLogger,
	)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctxMain, cancelMain := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancelMain()

	var wg sync.WaitGroup
	serverErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		outboxProcessor.Start(ctxMain)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fulfilmentConsumer.Start(ctxMain, fulfilmentHandler); err != nil {
			appLogger.Error("Fulfilment consumer failed", zap.Error(err))
		}
		appLogger.Info("Fulfilment consumer stopped.")
	}()

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctxMain.Done():
		appLogger.Info("Shutting down application...")
	case err = <-serverErr:
		appLogger.Error("HTTP server failed", zap.Error(err))
		cancelMain()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(shutdownErr))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	workersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		appLogger.Warn("Background workers did not stop before the shutdown deadline.")
	}

	appLogger.Info("Application gracefully shut down.")
	return err
}

func newPublisher(cfg *config.Config, logger *zap.Logger) (publisher, error) {
	switch cfg.NotifyTransport {
	case config.NotifyTransportNATS:
		p, err := natsbus.Connect(cfg.NATSURL, cfg.NATSNotifySubject, logger.With(zap.String("component", "NATSPublisher")))
		if err != nil {
			return nil, err
		}
		logger.Info("Notifications go to NATS", zap.String("subject_prefix", cfg.NATSNotifySubject))
		return p, nil
	default:
		logger.Info("Notifications go to Kafka", zap.String("topic", cfg.KafkaNotificationsTopic))
		return kafka_infra.NewProducer(cfg.GetKafkaBrokers(), cfg.KafkaNotificationsTopic,
			logger.With(zap.String("component", "KafkaProducer"))), nil
	}
}
