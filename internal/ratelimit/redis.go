package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lt:"

// Redis is a shared limiter for multi-process deployments. Fixed-window
// counters: INCR plus EXPIRE on the first hit; reaching the threshold
// restarts the TTL so the block lasts a full window from the final failure.
type Redis struct {
	client      redis.UniversalClient
	maxFailures int
	window      time.Duration
}

// NewRedis constructs a Redis-backed limiter.
func NewRedis(client redis.UniversalClient, maxFailures int, window time.Duration) *Redis {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{client: client, maxFailures: maxFailures, window: window}
}

var _ Limiter = (*Redis)(nil)

func (r *Redis) key(key string) string { return redisKeyPrefix + key }

// Allow denies once the counter has reached the threshold, reporting the
// remaining TTL as the retry hint.
func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	count, err := r.client.Get(ctx, r.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Decision{Allowed: true}, nil
		}
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count < int64(r.maxFailures) {
		return Decision{Allowed: true}, nil
	}
	ttl, err := r.client.TTL(ctx, r.key(key)).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl < 0 {
		ttl = r.window
	}
	return Decision{Allowed: false, RetryAfter: ttl}, nil
}

// RecordFailure increments the window counter.
func (r *Redis) RecordFailure(ctx context.Context, key string) error {
	count, err := r.client.Incr(ctx, r.key(key)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 || count >= int64(r.maxFailures) {
		if err := r.client.Expire(ctx, r.key(key), r.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// RecordSuccess deletes the counter.
func (r *Redis) RecordSuccess(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
