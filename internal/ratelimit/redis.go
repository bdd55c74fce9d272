package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements a sliding-window rate limiter backed by a
// per-key sorted set of request timestamps.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow evicts entries older than the window, compares the remaining
// cardinality against the limit, and records the current timestamp when
// admitted. The multi-command pipeline is atomic on the store side.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" || l == nil || l.client == nil {
		return Result{Allowed: true}, nil
	}

	nowScore := float64(now.UnixNano()) / float64(time.Second)
	windowStart := nowScore - window.Seconds()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatFloat(windowStart, 'f', -1, 64))
	cardCmd := pipe.ZCard(ctx, key)
	if _, errExec := pipe.Exec(ctx); errExec != nil {
		return Result{}, errExec
	}

	count := int(cardCmd.Val())
	reset := now.Add(window)
	if count >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}

	member := strconv.FormatFloat(nowScore, 'f', -1, 64)
	addPipe := l.client.TxPipeline()
	addPipe.ZAdd(ctx, key, redis.Z{Score: nowScore, Member: member})
	addPipe.Expire(ctx, key, window)
	if _, errExec := addPipe.Exec(ctx); errExec != nil {
		return Result{}, errExec
	}

	return Result{Allowed: true, Remaining: limit - count - 1, Reset: reset}, nil
}
