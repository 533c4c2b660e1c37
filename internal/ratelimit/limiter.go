package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Decision is the outcome of a single limiter check.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Reset     time.Time
}

// Limiter decides whether an event identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// StoreLimiter adapts a ulule limiter to the Limiter interface.
type StoreLimiter struct {
	L *limiter.Limiter
}

// NewStoreLimiter builds a limiter over store using a formatted rate such as
// "120-M" (120 requests per minute).
func NewStoreLimiter(store limiter.Store, formatted string) (*StoreLimiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", formatted, err)
	}
	return &StoreLimiter{L: limiter.New(store, rate)}, nil
}

// NewRedisLimiter builds a limiter whose counters live in Redis under prefix.
func NewRedisLimiter(rdb *redis.Client, prefix, formatted string) (*StoreLimiter, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	return NewStoreLimiter(store, formatted)
}

// Allow increments the counter for key and reports the resulting decision.
func (s *StoreLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	lctx, err := s.L.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lctx.Reached,
		Limit:     lctx.Limit,
		Remaining: lctx.Remaining,
		Reset:     time.Unix(lctx.Reset, 0),
	}, nil
}
