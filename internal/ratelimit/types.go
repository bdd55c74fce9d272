package ratelimit

import (
	"context"
	"strconv"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter admits at most limit events per key within any trailing window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Key builds the limiter key for a user.
func Key(userID uint64) string {
	return "rate_limit:" + strconv.FormatUint(userID, 10)
}
