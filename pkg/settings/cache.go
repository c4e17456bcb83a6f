package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"spindrift/pkg/logger"
	"spindrift/pkg/metrics"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the subset of a key/value cache the decorator needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

const (
	defaultInvalidateDelay = 500 * time.Millisecond
	invalidateTimeout      = 5 * time.Second
)

// CachedStore is a read-through cache in front of another Store.
// Writes go to the inner store first and then invalidate the user's key.
// The key is deleted again after a short delay, which drops a value that a
// concurrent Get read from the inner store before the write and cached after
// the first delete. Only a failed invalidation serves a stale value, and only
// until the TTL expires.
type CachedStore struct {
	inner  Store
	cache  Cache
	prefix string
	ttl    time.Duration
	delay  time.Duration
	log    *logger.Logger

	pending sync.WaitGroup
}

var _ Store = (*CachedStore)(nil)

// CachedOption customizes a CachedStore.
type CachedOption func(*CachedStore)

// WithInvalidateDelay sets the pause before the second delete after a write.
// Zero disables the second delete.
func WithInvalidateDelay(d time.Duration) CachedOption {
	return func(s *CachedStore) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// NewCachedStore wraps inner with cache.
func NewCachedStore(inner Store, cache Cache, prefix string, ttl time.Duration, log *logger.Logger, opts ...CachedOption) *CachedStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}
	s := &CachedStore{inner: inner, cache: cache, prefix: prefix, ttl: ttl, delay: defaultInvalidateDelay, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CachedStore) key(userID int64) string {
	return s.prefix + "config:" + strconv.FormatInt(userID, 10)
}

// Record writes through and drops the cached copy.
func (s *CachedStore) Record(ctx context.Context, userID int64, parameter, value string) error {
	if err := s.inner.Record(ctx, userID, parameter, value); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	if s.delay > 0 {
		s.pending.Add(1)
		time.AfterFunc(s.delay, func() {
			defer s.pending.Done()
			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
			defer cancel()
			s.invalidate(dctx, userID)
		})
	}
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context, userID int64) {
	if err := s.cache.Del(ctx, s.key(userID)); err != nil {
		s.log.Warn("Failed to invalidate cached config",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}
}

// Flush waits for delayed invalidations scheduled by Record.
func (s *CachedStore) Flush() {
	s.pending.Wait()
}

// Get serves from the cache when possible.
func (s *CachedStore) Get(ctx context.Context, userID int64) (UserConfig, error) {
	key := s.key(userID)

	raw, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var cfg UserConfig
		if jsonErr := json.Unmarshal([]byte(raw), &cfg); jsonErr == nil {
			metrics.IncCacheRequest("hit")
			if cfg == nil {
				cfg = make(UserConfig)
			}
			return cfg, nil
		}
		metrics.IncCacheRequest("error")
	case errors.Is(err, ErrCacheMiss):
		metrics.IncCacheRequest("miss")
	default:
		metrics.IncCacheRequest("error")
		s.log.Warn("Settings cache read failed", zap.Int64("user_id", userID), zap.Error(err))
	}

	cfg, err := s.inner.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg, nil
	}
	if err := s.cache.Set(ctx, key, string(data), s.ttl); err != nil {
		s.log.Warn("Settings cache write failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	return cfg, nil
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Del implements Cache.
func (c *RedisCache) Del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
