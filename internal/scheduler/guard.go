package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard claims a fire key so that a reminder is delivered once even when
// two processes, or a restarted one, hit the same minute.
type Guard interface {
	Claim(ctx context.Context, key string) (bool, error)
}

type RedisGuard struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{Redis: rdb, TTL: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.Redis.SetNX(ctx, key, "sent", g.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	return ok, nil
}
