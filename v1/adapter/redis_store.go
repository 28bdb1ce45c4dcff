package adapter

import (
	"context"
	stdErrors "errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	perrors "github.com/mirkobrombin/go-presence/v1/errors"
)

const defaultScanCount = 100

// RedisStore implements Store using a Redis backend.
type RedisStore struct {
	client    *redis.Client
	timeout   time.Duration
	scanCount int64
}

// RedisOption configures a RedisStore.
type RedisOption func(*redisStoreOptions)

type redisStoreOptions struct {
	timeout   time.Duration
	scanCount int64
}

// WithTimeout bounds every Redis call. Zero, the default, leaves calls
// bounded only by the caller's context.
func WithTimeout(d time.Duration) RedisOption {
	return func(o *redisStoreOptions) {
		o.timeout = d
	}
}

// WithScanCount sets the COUNT hint used when iterating keys with SCAN.
func WithScanCount(n int64) RedisOption {
	return func(o *redisStoreOptions) {
		if n > 0 {
			o.scanCount = n
		}
	}
}

// NewRedisStore returns a new RedisStore using the provided Redis client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	o := redisStoreOptions{scanCount: defaultScanCount}
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisStore{client: client, timeout: o.timeout, scanCount: o.scanCount}
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, mapRedisErr(err)
	}
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	v, err := s.client.Get(cctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapRedisErr(err)
	}
	return v, true, nil
}

// SetEx implements Store.SetEx. Whole-second ttls are sent as SET EX, anything
// finer as SET PX so the lease is never rounded down.
func (s *RedisStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return mapRedisErr(err)
	}
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Set(cctx, key, value, ttl).Err(); err != nil {
		return mapRedisErr(err)
	}
	return nil
}

// Keys implements Store.Keys using SCAN MATCH so large keyspaces are not
// blocked by a single KEYS call.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapRedisErr(err)
	}
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var cursor uint64
	seen := make(map[string]struct{})
	var keys []string
	for {
		batch, next, err := s.client.Scan(cctx, cursor, pattern, s.scanCount).Result()
		if err != nil {
			return nil, mapRedisErr(err)
		}
		// SCAN may return a key more than once across iterations.
		for _, k := range batch {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return keys, nil
}

func mapRedisErr(err error) error {
	switch {
	case stdErrors.Is(err, context.DeadlineExceeded):
		return perrors.ErrTimeout
	case stdErrors.Is(err, redis.ErrClosed):
		return perrors.ErrConnectionClosed
	}
	return err
}
