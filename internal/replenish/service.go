package replenish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Service wraps the pure calculator with a short-lived cache so repeated
// dashboard refreshes over the same input do not recompute.
type Service struct {
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewService builds Service. A nil cache client disables caching.
func NewService(cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{cache: cache, ttl: ttl, logger: logger}
}

// Compute returns buy suggestions for the given items, serving from cache
// when the exact same input was computed recently. Cache failures degrade
// to a plain compute, never to an error.
func (s *Service) Compute(ctx context.Context, items []Item) ([]Suggestion, error) {
	if len(items) == 0 {
		return []Suggestion{}, nil
	}
	if s.cache == nil {
		return Compute(items), nil
	}

	key, err := cacheKey(items)
	if err != nil {
		return nil, err
	}

	cached, err := s.cache.Get(ctx, key).Bytes()
	if err == nil {
		var out []Suggestion
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
		// Corrupt entry, fall through and overwrite it.
	} else if !errors.Is(err, redis.Nil) && s.logger != nil {
		s.logger.Warn("replenish cache read failed", slog.Any("error", err))
	}

	out := Compute(items)
	if payload, err := json.Marshal(out); err == nil {
		if err := s.cache.Set(ctx, key, payload, s.ttl).Err(); err != nil && s.logger != nil {
			s.logger.Warn("replenish cache write failed", slog.Any("error", err))
		}
	}
	return out, nil
}

// Warm precomputes and caches suggestions for the given items. Used by the
// background warm task.
func (s *Service) Warm(ctx context.Context, items []Item) error {
	_, err := s.Compute(ctx, items)
	return err
}

func cacheKey(items []Item) (string, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return "replenish:" + hex.EncodeToString(sum[:]), nil
}
