package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian/internal/replenish"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockExpire sweeps reservations that outlived their TTL.
	TaskStockExpire = "stock:expire_reservations"
	// TaskReplenishWarm precomputes replenishment suggestions into cache.
	TaskReplenishWarm = "replenish:warm_cache"
)

// ReservationSweeper is the slice of the stock service the expiry task needs.
type ReservationSweeper interface {
	ExpireStale(ctx context.Context) (int, error)
}

// NewStockExpireTask constructs the periodic reservation sweep task.
func NewStockExpireTask() *asynq.Task {
	return asynq.NewTask(TaskStockExpire, nil)
}

// NewStockExpireHandler returns the handler for TaskStockExpire.
func NewStockExpireHandler(sweeper ReservationSweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		expired, err := sweeper.ExpireStale(ctx)
		if err != nil {
			return err
		}
		if expired > 0 {
			logger.Info("expired stale reservations", slog.Int("count", expired))
		}
		return nil
	}
}

// ReplenishWarmPayload carries the catalogue snapshot to precompute.
type ReplenishWarmPayload struct {
	Items []replenish.Item `json:"items"`
}

// NewReplenishWarmTask constructs a cache-warm task.
func NewReplenishWarmTask(payload ReplenishWarmPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReplenishWarm, data), nil
}

// NewReplenishWarmHandler returns the handler for TaskReplenishWarm.
func NewReplenishWarmHandler(svc *replenish.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ReplenishWarmPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := svc.Warm(ctx, payload.Items); err != nil {
			return err
		}
		logger.Info("warmed replenishment cache", slog.Int("items", len(payload.Items)))
		return nil
	}
}
