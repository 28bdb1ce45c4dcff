package presence

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-presence/v1/adapter"
)

// benchmarkRenew measures one renewal cycle against store with peers other
// live workers registered.
func benchmarkRenew(b *testing.B, store adapter.Store, peers int) {
	ctx := context.Background()
	for i := 0; i < peers; i++ {
		name := "peer-" + strconv.Itoa(i)
		if err := store.SetEx(ctx, Key(name), name, DefaultLeaseTTL*100); err != nil {
			b.Fatalf("setup failed: %v", err)
		}
	}
	a, err := New(ctx, "bench", store, WithLogging(false))
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := a.Renew(ctx); err != nil {
			b.Fatalf("renew failed: %v", err)
		}
	}
}

func BenchmarkRenewInMemory(b *testing.B) {
	benchmarkRenew(b, adapter.NewInMemoryStore(), 100)
}

func BenchmarkRenewRedis(b *testing.B) {
	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis run: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	benchmarkRenew(b, adapter.NewRedisStore(client), 100)
}

func BenchmarkDirectoryActive(b *testing.B) {
	ctx := context.Background()
	store := adapter.NewInMemoryStore()
	for i := 0; i < 100; i++ {
		name := "peer-" + strconv.Itoa(i)
		if err := store.SetEx(ctx, Key(name), name, DefaultLeaseTTL*100); err != nil {
			b.Fatalf("setup failed: %v", err)
		}
	}
	dir, err := NewDirectory(store, 0)
	if err != nil {
		b.Fatalf("NewDirectory: %v", err)
	}
	defer dir.Close()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := dir.Active(ctx); err != nil {
			b.Fatalf("active failed: %v", err)
		}
	}
}
