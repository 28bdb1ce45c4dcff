package presence

import (
	"context"
	"time"

	"github.com/mirkobrombin/go-presence/v1/adapter"
	"github.com/mirkobrombin/go-presence/v1/cache"
)

// DefaultDirectoryTTL bounds how stale a Directory answer can be.
const DefaultDirectoryTTL = 250 * time.Millisecond

const directoryKey = "active"

// Directory answers active set queries from a short-lived cache so frequent
// readers do not each scan the store.
type Directory struct {
	store adapter.Store
	cache *cache.RistrettoCache[[]string]
	ttl   time.Duration
}

// NewDirectory returns a Directory over store. A non-positive ttl selects
// DefaultDirectoryTTL.
func NewDirectory(store adapter.Store, ttl time.Duration) (*Directory, error) {
	if ttl <= 0 {
		ttl = DefaultDirectoryTTL
	}
	c, err := cache.NewRistretto[[]string](func(v []string) int64 { return int64(len(v)) + 1 })
	if err != nil {
		return nil, err
	}
	return &Directory{store: store, cache: c, ttl: ttl}, nil
}

// Active returns the sorted active set, from cache when fresh.
func (d *Directory) Active(ctx context.Context) ([]string, error) {
	if v, ok, err := d.cache.Get(ctx, directoryKey); err == nil && ok {
		return append([]string(nil), v...), nil
	}
	active, err := ActiveSet(ctx, d.store)
	if err != nil {
		return nil, err
	}
	if err := d.cache.Set(ctx, directoryKey, active, d.ttl); err != nil {
		return nil, err
	}
	return append([]string(nil), active...), nil
}

// Invalidate forces the next Active call to read the store.
func (d *Directory) Invalidate(ctx context.Context) error {
	return d.cache.Invalidate(ctx, directoryKey)
}

// Close releases the cache.
func (d *Directory) Close() {
	d.cache.Close()
}
