// internal/cache/replay.go
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ReplayGuard answers "is this the first time we see this payload".
// Callers consult it only after the payload passed signature
// verification and parsing: a rejected delivery must not burn the key
// for the genuine one carrying the same bytes.
type ReplayGuard interface {
	FirstSeen(ctx context.Context, provider, eventType, bodyHash string) (bool, error)
}

type redisReplayGuard struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewReplayGuard(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) ReplayGuard {
	return &redisReplayGuard{rdb: rdb, ttl: ttl, logger: logger}
}

// FirstSeen is a SETNX with expiry. Redis being down degrades to
// letting the payload through: the sync gate downstream makes a
// replayed terminal status a no-op anyway, this guard only saves work.
func (g *redisReplayGuard) FirstSeen(ctx context.Context, provider, eventType, bodyHash string) (bool, error) {
	key := fmt.Sprintf("webhook:seen:%s:%s:%s", provider, eventType, bodyHash)

	ok, err := g.rdb.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		g.logger.Error("replay guard unavailable, passing through", zap.Error(err))
		return true, nil
	}
	return ok, nil
}
