package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares counters between API instances. The first hit in a window
// creates the key and sets its expiry; the key vanishing ends the window.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	length time.Duration
}

func NewRedis(client *redis.Client, name string, limit int, length time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: "linkpage:ratelimit:" + name + ":",
		limit:  limit,
		length: length,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := r.prefix + key

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("incr rate limit counter: %w", err)
	}
	if count == 1 {
		if err := r.client.PExpire(ctx, redisKey, r.length).Err(); err != nil {
			return Decision{}, fmt.Errorf("expire rate limit counter: %w", err)
		}
	}

	ttl, err := r.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ttl rate limit counter: %w", err)
	}
	if ttl < 0 {
		// A crash between INCR and PEXPIRE leaves a key without expiry.
		if err := r.client.PExpire(ctx, redisKey, r.length).Err(); err != nil {
			return Decision{}, fmt.Errorf("expire rate limit counter: %w", err)
		}
		ttl = r.length
	}

	return decide(r.limit, int(count), time.Now().Add(ttl)), nil
}
