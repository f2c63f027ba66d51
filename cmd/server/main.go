// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-engine/config"
	"payment-engine/internal/cache"
	"payment-engine/internal/domain"
	"payment-engine/internal/handler"
	"payment-engine/internal/provider"
	"payment-engine/internal/provider/midtranspay"
	"payment-engine/internal/provider/paylink"
	"payment-engine/internal/pub"
	"payment-engine/internal/repository"
	"payment-engine/internal/risk"
	"payment-engine/internal/router"
	"payment-engine/internal/task"
	"payment-engine/internal/usecase"
	"payment-engine/internal/worker"
	"payment-engine/pkg/transport"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	// Stores.
	txm := repository.NewTxManager(db)
	trxStore := repository.NewTransactionStore(db)
	walletStore := repository.NewWalletStore(db)
	entryStore := repository.NewEntryStore(db)
	reserveStore := repository.NewReserveStore(db)
	webhookStore := repository.NewWebhookStore(db)

	// Provider registry.
	registry := provider.NewRegistry()
	httpClient := transport.New(logger)

	var paylinkClient provider.Client = paylink.New(paylink.Config{
		BaseURL:       cfg.PaylinkBaseURL,
		APIKey:        cfg.PaylinkAPIKey,
		APISecret:     cfg.PaylinkAPISecret,
		WebhookSecret: cfg.PaylinkWebhookSecret,
		CallbackURL:   cfg.PaylinkCallbackURL,
	}, httpClient, logger)

	var midtransClient provider.Client = midtranspay.New(midtranspay.Config{
		ServerKey:  cfg.MidtransServerKey,
		Production: cfg.IsProduction(),
	}, logger)

	if !cfg.IsProduction() {
		capAmt, err := decimal.NewFromString(cfg.SandboxCapAmount)
		if err != nil {
			logger.Fatal("invalid sandbox cap", zap.Error(err))
		}
		maxAmt := domain.NewMoney(capAmt, cfg.SandboxCapCurrency)
		paylinkClient = provider.NewSandbox(paylinkClient, maxAmt, logger)
		midtransClient = provider.NewSandbox(midtransClient, maxAmt, logger)
	}

	for _, client := range []provider.Client{paylinkClient, midtransClient} {
		if err := registry.Register(client); err != nil {
			logger.Fatal("failed to register provider", zap.Error(err))
		}
	}

	// Core services.
	ledger := usecase.NewLedgerService(walletStore, entryStore, txm, logger)
	reserveSvc := usecase.NewReserveService(walletStore, reserveStore, ledger, txm, logger)

	riskAmount, err := decimal.NewFromString(cfg.RiskMaxDailyAmount)
	if err != nil {
		logger.Fatal("invalid risk amount limit", zap.Error(err))
	}

	publisher := pub.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	defer publisher.Close()

	hub := handler.NewHub(logger)
	pool := task.NewPool(logger)

	controller := usecase.NewController(usecase.ControllerDeps{
		Transactions: trxStore,
		Wallets:      walletStore,
		Webhooks:     webhookStore,
		TxManager:    txm,
		Ledger:       ledger,
		Providers:    registry,
		Scheduler:    pool,
		Risk:         risk.NewVelocityChecker(rdb, cfg.RiskMaxDailyCount, riskAmount, logger),
		Publisher:    publisher,
		Replay:       cache.NewReplayGuard(rdb, 72*time.Hour, logger),
		Notifier:     hub,
		Logger:       logger,
	}, usecase.ControllerConfig{
		DepositTTL:    cfg.DepositTTL,
		WithdrawalTTL: cfg.WithdrawalTTL,
		CheckDelay:    cfg.CheckDelay,
	})

	if err := controller.RegisterTasks(pool); err != nil {
		logger.Fatal("failed to register tasks", zap.Error(err))
	}
	pool.Start()
	defer pool.Stop()

	// Background sweeps.
	statusWorker := worker.NewStatusWorker(trxStore, pool, cfg.PollInterval, cfg.PollCadence, cfg.SweepBatch, logger)
	timeoutWorker := worker.NewTimeoutWorker(trxStore, controller, cfg.PollInterval, cfg.SweepBatch, logger)
	reserveWorker := worker.NewReserveWorker(reserveSvc, cfg.PollInterval, cfg.SweepBatch, logger)

	statusWorker.Start()
	timeoutWorker.Start()
	reserveWorker.Start()
	defer func() {
		statusWorker.Stop()
		timeoutWorker.Stop()
		reserveWorker.Stop()
	}()

	// HTTP.
	payments := handler.NewPaymentHandler(controller, walletStore, entryStore, logger)
	webhooks := handler.NewWebhookHandler(controller, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: router.New(payments, webhooks, hub, logger),
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.AppPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}
