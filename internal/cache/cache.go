// Package cache stores first-stage pipeline output keyed by user and input.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/convert-iq/convertiq/internal/config"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// TTL is the shared-store expiry for cached entries. The local fallback
// enforces no expiry.
const TTL = 24 * time.Hour

// Store caches serialized values in a shared key-value store when
// configured, degrading to a process-local map on any store error.
type Store struct {
	client *redis.Client

	mu    sync.Mutex
	local map[string]string
}

// New constructs a Store. When the shared store is enabled but
// unreachable, the constructor logs the failure and returns a
// local-only store; it never fails.
func New(cfg config.RedisConfig) *Store {
	s := &Store{local: make(map[string]string)}
	if !cfg.Enabled || strings.TrimSpace(cfg.Addr) == "" {
		return s
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Addr),
		Password: strings.TrimSpace(cfg.Password),
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctx).Err(); errPing != nil {
		_ = client.Close()
		log.WithError(errPing).Warn("cache: redis unavailable, using memory cache")
		return s
	}
	s.client = client
	return s
}

// key derives the deterministic cache key for a (user, input) pair.
func key(userID uint64, input string) string {
	return "prompt1:" + strconv.FormatUint(userID, 10) + ":" + input
}

// Put serializes and stores the value for the (user, input) pair.
// Shared-store failures degrade to the local map, never the caller.
func (s *Store) Put(ctx context.Context, userID uint64, input string, value any) {
	data, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		log.WithError(errMarshal).Warn("cache: marshal failed, skipping store")
		return
	}
	cacheKey := key(userID, input)

	if s.client != nil {
		if errSet := s.client.Set(ctx, cacheKey, string(data), TTL).Err(); errSet == nil {
			return
		} else {
			log.WithError(errSet).Warn("cache: redis set failed, using memory cache")
		}
	}

	s.mu.Lock()
	s.local[cacheKey] = string(data)
	s.mu.Unlock()
}

// Get loads the cached value for the (user, input) pair into dest and
// reports whether an entry was found.
func (s *Store) Get(ctx context.Context, userID uint64, input string, dest any) bool {
	cacheKey := key(userID, input)

	var data string
	if s.client != nil {
		val, errGet := s.client.Get(ctx, cacheKey).Result()
		switch {
		case errGet == nil:
			data = val
		case errGet == redis.Nil:
			return false
		default:
			log.WithError(errGet).Warn("cache: redis get failed, using memory cache")
		}
	}

	if data == "" {
		s.mu.Lock()
		data = s.local[cacheKey]
		s.mu.Unlock()
	}
	if data == "" {
		return false
	}

	if errUnmarshal := json.Unmarshal([]byte(data), dest); errUnmarshal != nil {
		return false
	}
	return true
}

// Close releases the shared-store connection if one was established.
func (s *Store) Close() {
	if s != nil && s.client != nil {
		_ = s.client.Close()
	}
}
