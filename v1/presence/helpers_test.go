package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mirkobrombin/go-presence/v1/adapter"
)

var errBoom = errors.New("boom")

// blockUntil waits until exactly n timers are pending on fc.
func blockUntil(t *testing.T, fc *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("waiting for %d pending timers: %v", n, err)
	}
}

// recordingStore wraps a Store, records the clock time of every SetEx and can
// be told to fail.
type recordingStore struct {
	adapter.Store
	clock clockwork.Clock

	mu       sync.Mutex
	writes   []time.Time
	failSet  bool
	failKeys bool
	failGet  bool
}

func newRecordingStore(c clockwork.Clock) *recordingStore {
	return &recordingStore{Store: adapter.NewInMemoryStore(adapter.WithClock(c)), clock: c}
}

func (s *recordingStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	fail := s.failGet
	s.mu.Unlock()
	if fail {
		return "", false, errBoom
	}
	return s.Store.Get(ctx, key)
}

func (s *recordingStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	fail := s.failSet
	if !fail {
		s.writes = append(s.writes, s.clock.Now())
	}
	s.mu.Unlock()
	if fail {
		return errBoom
	}
	return s.Store.SetEx(ctx, key, value, ttl)
}

func (s *recordingStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	fail := s.failKeys
	s.mu.Unlock()
	if fail {
		return nil, errBoom
	}
	return s.Store.Keys(ctx, pattern)
}

func (s *recordingStore) writeTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.writes...)
}

func (s *recordingStore) ttl(key string) (time.Duration, bool) {
	return s.Store.(*adapter.InMemoryStore).TTL(key)
}
