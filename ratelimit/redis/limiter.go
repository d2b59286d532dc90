// Package redislimiter provides a Redis-backed sliding-window request limiter
// shared across API instances.
package redislimiter

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit caps requests per key within the window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Limiter implements a sliding window over a Redis sorted set per key.
type Limiter struct {
	rdb   *redis.Client
	keyNS string
	limit Limit
}

// New constructs a limiter. An empty keyPrefix defaults to "auth:ratelimit:";
// non-positive limit fields fall back to 120 requests per minute.
func New(rdb *redis.Client, keyPrefix string, limit Limit) *Limiter {
	if keyPrefix == "" {
		keyPrefix = "auth:ratelimit:"
	}
	if limit.Requests <= 0 {
		limit.Requests = 120
	}
	if limit.Window <= 0 {
		limit.Window = time.Minute
	}
	return &Limiter{rdb: rdb, keyNS: keyPrefix, limit: limit}
}

// Allow reports whether the key may make another request now. The request is
// recorded optimistically and removed again on denial so throttled callers do
// not extend their own penalty.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - l.limit.Window.Nanoseconds()
	redisKey := l.keyNS + key

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now), Member: now})
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.limit.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	count, err := countCmd.Result()
	if err != nil {
		return false, err
	}
	if count > int64(l.limit.Requests) {
		l.rdb.ZRem(ctx, redisKey, now)
		return false, nil
	}
	return true, nil
}
