package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop-service/config"
	"shop-service/internal/api"
	"shop-service/internal/broker"
	"shop-service/internal/provider"
	"shop-service/internal/redisclient"
	"shop-service/internal/service"
	"shop-service/internal/store"
	"shop-service/internal/util"
	"shop-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting shop service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	tp, err := util.InitTracer("shop-service", cfg.Observ.JaegerEndpoint, cfg.Observ.TraceSampleRatio)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	providers, err := paymentProviders(cfg.Payments, logger)
	if err != nil {
		logger.Fatal("Failed to configure payment providers", zap.Error(err))
	}

	inventoryClient := service.NewInventoryClient(db)
	cartService := service.NewCartService(db, inventoryClient, redisClient)
	checkoutService := service.NewCheckoutService(db, redisClient, eventPublisher)
	purchaseService := service.NewPurchaseService(db, eventPublisher)
	refundService := service.NewRefundService(db, providers, eventPublisher)
	paymentService := service.NewPaymentService(db, providers, refundService, redisClient, eventPublisher, cfg.Payments.Currency)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(consumer, worker.NewLogNotifier())
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil {
			logger.Error("Notification worker stopped", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(
		api.Services{
			Cart:      cartService,
			Checkout:  checkoutService,
			Purchases: purchaseService,
			Payments:  paymentService,
			Refunds:   refundService,
		},
		api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := notificationWorker.Stop(); err != nil {
		logger.Error("Failed to stop notification worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

// paymentProviders builds the integrations that have credentials configured
func paymentProviders(cfg config.PaymentsConfig, logger *zap.Logger) ([]provider.Provider, error) {
	var providers []provider.Provider

	if cfg.Card.Enabled() {
		providers = append(providers, provider.NewCardProvider(provider.CardConfig{
			BaseURL:          cfg.Card.BaseURL,
			SecretKey:        cfg.Card.SecretKey,
			WebhookSecret:    cfg.Card.WebhookSecret,
			WebhookTolerance: cfg.Card.WebhookTolerance,
			Timeout:          cfg.ProviderTimeout,
		}))
	}
	if cfg.Wallet.Enabled() {
		wallet, err := provider.NewWalletProvider(provider.WalletConfig{
			BaseURL:      cfg.Wallet.BaseURL,
			ClientID:     cfg.Wallet.ClientID,
			ClientSecret: cfg.Wallet.ClientSecret,
			WebhookID:    cfg.Wallet.WebhookID,
			ReturnURL:    cfg.Wallet.ReturnURL,
			CancelURL:    cfg.Wallet.CancelURL,
			Timeout:      cfg.ProviderTimeout,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, wallet)
	}

	for _, p := range providers {
		logger.Info("Payment provider enabled", zap.String("provider", string(p.Name())))
	}
	if len(providers) == 0 {
		logger.Warn("No payment providers configured")
	}
	return providers, nil
}
