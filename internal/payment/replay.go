package payment

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/gocardless-connect/internal/common"
)

// ReplayGuard remembers accepted webhook signatures for TTL using Redis
// SETNX semantics. A nil client accepts everything.
type ReplayGuard struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

func (g ReplayGuard) key(signature string) string {
	prefix := g.Prefix
	if prefix == "" {
		prefix = "wh:gocardless"
	}
	return common.ScopedKey(prefix, signature)
}

// Acquire claims signature and reports whether it had not been seen before.
func (g ReplayGuard) Acquire(ctx context.Context, signature string) (bool, error) {
	return common.Claim(ctx, g.Client, g.key(signature), g.TTL)
}

// Release forgets signature so a redelivery is accepted again.
func (g ReplayGuard) Release(ctx context.Context, signature string) error {
	if g.Client == nil {
		return nil
	}
	return g.Client.Del(ctx, g.key(signature)).Err()
}
