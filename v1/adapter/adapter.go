package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tidwall/match"
)

// Store abstracts the key-value store presence keys live in.
type Store interface {
	// Get retrieves the value for a key.
	// The boolean return indicates whether the key was found.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetEx stores value under key and expires it after ttl.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	// Keys returns the live keys matching a glob pattern such as "running:*".
	// Order is unspecified.
	Keys(ctx context.Context, pattern string) ([]string, error)
}

type entry struct {
	value    string
	expireAt time.Time
}

// InMemoryStore is a Store backed by a map. Entries expire according to the
// configured clock, which lets tests step through lease lifetimes.
type InMemoryStore struct {
	clock clockwork.Clock

	mu    sync.RWMutex
	items map[string]entry
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithClock sets the clock used to evaluate expiry.
func WithClock(c clockwork.Clock) InMemoryOption {
	return func(s *InMemoryStore) {
		s.clock = c
	}
}

// NewInMemoryStore returns a new InMemoryStore.
func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{clock: clockwork.NewRealClock(), items: make(map[string]entry)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	now := s.clock.Now()
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || e.expired(now) {
		return "", false, nil
	}
	return e.value, true, nil
}

// SetEx implements Store.SetEx.
func (s *InMemoryStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expireAt = s.clock.Now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = e
	s.mu.Unlock()
	return nil
}

// Keys implements Store.Keys with Redis glob semantics, so "*" also matches
// "/". Expired entries are evicted as a side effect.
func (s *InMemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.items))
	for k, e := range s.items {
		if e.expired(now) {
			delete(s.items, k)
			continue
		}
		if match.Match(k, pattern) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// TTL reports the remaining lifetime of key. The boolean is false when the
// key is missing or has no expiry.
func (s *InMemoryStore) TTL(key string) (time.Duration, bool) {
	now := s.clock.Now()
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || e.expireAt.IsZero() || e.expired(now) {
		return 0, false
	}
	return e.expireAt.Sub(now), true
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}
