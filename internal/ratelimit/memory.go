package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter implements a process-local sliding-window rate limiter.
// It has no cross-process sharing and exists as the fallback when the
// shared store is unavailable.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{entries: make(map[string][]time.Time)}
}

// Allow checks whether the request fits in the trailing window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	windowStart := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[key][:0]
	for _, ts := range l.entries[key] {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	l.entries[key] = kept

	if len(kept) >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: kept[0].Add(window)}, nil
	}

	l.entries[key] = append(kept, now)
	return Result{
		Allowed:   true,
		Remaining: limit - len(l.entries[key]),
		Reset:     now.Add(window),
	}, nil
}
