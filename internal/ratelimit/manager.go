package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/convert-iq/convertiq/internal/config"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Manager selects a limiter backend and enforces rate limits. The
// shared-store path is preferred; any store failure trips a breaker and
// falls back to the process-local limiter so callers never see an error.
type Manager struct {
	cfg            config.RedisConfig
	nowFn          func() time.Time
	memoryLimiter  Limiter
	newRedisClient RedisClientFactory

	mu           sync.Mutex
	redisLimiter *RedisLimiter
	redisClient  *redis.Client
	breakerUntil time.Time
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(cfg config.RedisConfig, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &Manager{
		cfg:            cfg,
		nowFn:          nowFn,
		memoryLimiter:  NewMemoryLimiter(),
		newRedisClient: newRedisClient,
	}
}

// Allow checks whether the request should be allowed using the best
// available backend.
func (m *Manager) Allow(ctx context.Context, key string, limit int, window time.Duration) Result {
	if m == nil || limit <= 0 || key == "" {
		return Result{Allowed: true}
	}
	now := m.nowFn()

	if m.cfg.Enabled {
		if result, ok := m.allowRedis(ctx, key, limit, window, now); ok {
			return result
		}
	}

	result, errMemory := m.memoryLimiter.Allow(ctx, key, limit, window, now)
	if errMemory != nil {
		return Result{Allowed: true}
	}
	return result
}

func (m *Manager) allowRedis(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.isBreakerActive(now) {
		return Result{}, false
	}
	limiter, errEnsure := m.ensureRedis(ctx)
	if errEnsure != nil {
		m.tripBreaker(errEnsure, now)
		return Result{}, false
	}
	result, errAllow := limiter.Allow(ctx, key, limit, window, now)
	if errAllow != nil {
		m.tripBreaker(errAllow, now)
		return Result{}, false
	}
	return result, true
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis unavailable, falling back to memory")
}

func (m *Manager) ensureRedis(ctx context.Context) (*RedisLimiter, error) {
	addr := strings.TrimSpace(m.cfg.Addr)
	if addr == "" {
		return nil, errors.New("rate limit redis: missing address")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redisLimiter != nil {
		return m.redisLimiter, nil
	}

	client := m.newRedisClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(m.cfg.Password),
		DB:       m.cfg.DB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redisClient = client
	m.redisLimiter = NewRedisLimiter(client)
	return m.redisLimiter, nil
}

// Close releases the Redis connection if one was established.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisClient != nil {
		_ = m.redisClient.Close()
		m.redisClient = nil
		m.redisLimiter = nil
	}
}
