package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian/internal/app"
	"github.com/meridian-erp/meridian/internal/observability"
	"github.com/meridian-erp/meridian/internal/platform/db"
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, auditLogger, metrics, stock.ServiceConfig{
		ReservationTTL: cfg.ReservationTTL,
	})

	replenishService := replenish.NewService(redisClient, cfg.ReplenishCacheTTL, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockExpire, Handler: jobs.NewStockExpireHandler(stockService, logger)},
			{Type: jobs.TaskReplenishWarm, Handler: jobs.NewReplenishWarmHandler(replenishService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/5 * * * *", Task: jobs.NewStockExpireTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
