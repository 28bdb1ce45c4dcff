// Package presets wires the store, agent and event bus from a config.Config
// so binaries stay small.
package presets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	nats "github.com/nats-io/nats.go"
	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-presence/v1/adapter"
	"github.com/mirkobrombin/go-presence/v1/config"
	"github.com/mirkobrombin/go-presence/v1/presence"
	"github.com/mirkobrombin/go-presence/v1/syncbus"
)

// Breaker settings applied to network buses.
const (
	BreakerThreshold = 5
	BreakerTimeout   = 10 * time.Second
)

// RedisOptions configures the connection to Redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Timeout bounds each store call. Zero leaves calls unbounded.
	Timeout time.Duration
}

// RedisOptionsFrom converts the redis section of a config.
func RedisOptionsFrom(c config.RedisConfig) RedisOptions {
	return RedisOptions{Addr: c.Addr, Password: c.Password, DB: c.DB, Timeout: c.Timeout}
}

// NewRedisClient opens a client for opts. The connection is lazy.
func NewRedisClient(opts RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// NewRedisStore wraps client in an adapter.RedisStore honouring opts.Timeout.
func NewRedisStore(client *redis.Client, opts RedisOptions) *adapter.RedisStore {
	return adapter.NewRedisStore(client, adapter.WithTimeout(opts.Timeout))
}

// NewRedisAgent opens a Redis client and constructs an Agent for name on it.
// The caller owns the returned client and must close it. On error the client
// is already closed.
func NewRedisAgent(ctx context.Context, name string, opts RedisOptions, agentOpts ...presence.Option) (*presence.Agent, *redis.Client, error) {
	client := NewRedisClient(opts)
	a, err := presence.New(ctx, name, NewRedisStore(client, opts), agentOpts...)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return a, client, nil
}

// NewInMemoryAgent constructs an Agent on a fresh in-memory store driven by
// c, for local runs and tests. A nil clock selects the real one.
func NewInMemoryAgent(ctx context.Context, name string, c clockwork.Clock, agentOpts ...presence.Option) (*presence.Agent, *adapter.InMemoryStore, error) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	store := adapter.NewInMemoryStore(adapter.WithClock(c))
	a, err := presence.New(ctx, name, store, append([]presence.Option{presence.WithClock(c)}, agentOpts...)...)
	if err != nil {
		return nil, nil, err
	}
	return a, store, nil
}

// RandomName returns a fresh UUID suitable as a throwaway worker identity.
func RandomName() string {
	return uuid.NewString()
}

// NewBus builds the event bus selected by cfg.Kind. It returns a nil Bus for
// config.BusNone. Network buses are wrapped in a circuit breaker. The returned
// close function releases everything NewBus opened and is never nil; the Redis
// client is shared and left open.
func NewBus(ctx context.Context, cfg config.BusConfig, client *redis.Client) (syncbus.Bus, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case "", config.BusNone:
		return nil, noop, nil
	case config.BusMemory:
		return syncbus.NewInMemoryBus(), noop, nil
	case config.BusRedis:
		if client == nil {
			return nil, noop, errors.New("presets: redis bus needs a client")
		}
		bus := syncbus.NewRedisBus(syncbus.RedisBusOptions{Client: client, Channel: cfg.Channel})
		return syncbus.NewCircuitBreaker(bus, BreakerThreshold, BreakerTimeout), bus.Close, nil
	case config.BusNATS:
		conn, err := nats.Connect(cfg.NATSURL, nats.Name("go-presence"))
		if err != nil {
			return nil, noop, fmt.Errorf("presets: connect nats: %w", err)
		}
		bus := syncbus.NewNATSBus(conn, cfg.Channel)
		closeFn := func() error {
			err := bus.Close()
			conn.Close()
			return err
		}
		return syncbus.NewCircuitBreaker(bus, BreakerThreshold, BreakerTimeout), closeFn, nil
	case config.BusKafka:
		sc := sarama.NewConfig()
		sc.ClientID = "go-presence"
		bus, err := syncbus.NewKafkaBus(cfg.KafkaBrokers, cfg.Channel, sc)
		if err != nil {
			return nil, noop, fmt.Errorf("presets: connect kafka: %w", err)
		}
		return syncbus.NewCircuitBreaker(bus, BreakerThreshold, BreakerTimeout), bus.Close, nil
	}
	return nil, noop, fmt.Errorf("presets: unknown bus kind %q", cfg.Kind)
}
