package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

// RedisReplayGuard records consumed challenges with SET NX and a TTL
type RedisReplayGuard struct {
	client *redis.Client
	prefix string
}

// NewRedisReplayGuard creates a new Redis replay guard
func NewRedisReplayGuard(client *redis.Client, prefix string) *RedisReplayGuard {
	return &RedisReplayGuard{client: client, prefix: prefix + "challenge:"}
}

var _ ports.ReplayGuard = (*RedisReplayGuard)(nil)

func (g *RedisReplayGuard) MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return ok, nil
}
