package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoCache is a typed cache backed by dgraph-io/ristretto.
type RistrettoCache[T any] struct {
	c    *ristretto.Cache
	cost func(T) int64
}

// RistrettoOption configures the underlying ristretto cache.
type RistrettoOption func(*ristretto.Config)

// WithRistretto applies a custom ristretto configuration.
//
// If cfg is nil, defaults are used.
func WithRistretto(cfg *ristretto.Config) RistrettoOption {
	return func(c *ristretto.Config) {
		if cfg == nil {
			return
		}
		*c = *cfg
	}
}

// NewRistretto returns a cache backed by ristretto. cost weighs each value
// against MaxCost; nil counts every entry as 1.
func NewRistretto[T any](cost func(T) int64, opts ...RistrettoOption) (*RistrettoCache[T], error) {
	cfg := &ristretto.Config{
		NumCounters: 1e4,     // number of keys to track frequency of (10k).
		MaxCost:     1 << 20, // maximum cost of cache.
		BufferItems: 64,      // number of keys per Get buffer.
	}
	for _, opt := range opts {
		opt(cfg)
	}
	rc, err := ristretto.NewCache(cfg)
	if err != nil {
		return nil, err
	}
	if cost == nil {
		cost = func(T) int64 { return 1 }
	}
	return &RistrettoCache[T]{c: rc, cost: cost}, nil
}

// Get returns the cached value for key.
func (r *RistrettoCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	v, ok := r.c.Get(key)
	if !ok {
		return zero, false, nil
	}
	val, ok := v.(T)
	if !ok {
		return zero, false, nil
	}
	return val, true, nil
}

// Set stores value under key for ttl. The write is visible to Get once Set
// returns.
func (r *RistrettoCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.c.SetWithTTL(key, value, r.cost(value), ttl)
	r.c.Wait()
	return nil
}

// Invalidate drops key.
func (r *RistrettoCache[T]) Invalidate(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.c.Del(key)
	r.c.Wait()
	return nil
}

// Close releases resources held by the cache.
func (r *RistrettoCache[T]) Close() {
	r.c.Close()
}
