package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian/internal/accounts"
	"github.com/meridian-erp/meridian/internal/app"
	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/observability"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/posting"
	"github.com/meridian-erp/meridian/internal/replenish"
	"github.com/meridian-erp/meridian/internal/shared"
	"github.com/meridian-erp/meridian/internal/stock"
	"github.com/meridian-erp/meridian/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, auditLogger)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, metrics)

	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, auditLogger, metrics, stock.ServiceConfig{
		ReservationTTL: cfg.ReservationTTL,
	})
	stockHandler := stock.NewHandler(logger, stockService)

	postingRepo := posting.NewRepository(pool)
	postingService := posting.NewService(postingRepo, ledgerService, stockService, idempotencyStore, auditLogger, metrics, posting.Config{
		RevenueAccountID:   cfg.RevenueAccountID,
		InventoryAccountID: cfg.InventoryAccountID,
		EarningsAccountID:  cfg.EarningsAccountID,
	})
	postingHandler := posting.NewHandler(logger, postingService)

	replenishService := replenish.NewService(redisClient, cfg.ReplenishCacheTTL, logger)
	replenishHandler := replenish.NewHandler(logger, replenishService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AccountsHandler:  accountsHandler,
		LedgerHandler:    ledgerHandler,
		StockHandler:     stockHandler,
		PostingHandler:   postingHandler,
		ReplenishHandler: replenishHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
