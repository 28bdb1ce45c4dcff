package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/ristretto"
)

// newRistrettoCache returns a Ristretto-backed cache for testing.
func newRistrettoCache[T any](t *testing.T) (*RistrettoCache[T], context.Context) {
	t.Helper()
	c, err := NewRistretto[T](nil)
	if err != nil {
		t.Fatalf("NewRistretto: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, context.Background()
}

func TestRistrettoCacheGetSetInvalidate(t *testing.T) {
	c, ctx := newRistrettoCache[[]string](t)

	if err := c.Set(ctx, "active", []string{"a", "b"}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := c.Get(ctx, "active")
	if err != nil || !ok || len(v) != 2 || v[0] != "a" {
		t.Fatalf("Get: expected [a b], got %v ok=%v err=%v", v, ok, err)
	}
	if err := c.Invalidate(ctx, "active"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, err := c.Get(ctx, "active"); ok || err != nil {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestRistrettoCacheExpiration(t *testing.T) {
	c, ctx := newRistrettoCache[string](t)

	if err := c.Set(ctx, "foo", "bar", 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok, err := c.Get(ctx, "foo"); ok || err != nil {
		t.Fatalf("expected key to expire")
	}
}

func TestRistrettoCacheContext(t *testing.T) {
	c, _ := newRistrettoCache[string](t)

	ctxSet, cancelSet := context.WithCancel(context.Background())
	cancelSet()
	if err := c.Set(ctxSet, "a", "b", time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
	if _, ok, err := c.Get(context.Background(), "a"); ok || err != nil {
		t.Fatalf("item should not be stored when context is canceled")
	}
	if _, _, err := c.Get(ctxSet, "a"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error on Get, got %v", err)
	}
}

func TestRistrettoInvalidConfig(t *testing.T) {
	_, err := NewRistretto[string](nil, WithRistretto(&ristretto.Config{}))
	if err == nil {
		t.Fatal("expected error for zero ristretto config")
	}
}
