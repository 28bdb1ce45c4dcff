// Package config loads the settings shared by the presence binaries from
// defaults, an optional TOML or YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRedisPort = "6379"
	DefaultName      = "no-name"
	DefaultLeaseTTL  = 2 * time.Second
	DefaultHTTPAddr  = ":8080"
)

// Bus kinds accepted in BusConfig.Kind.
const (
	BusNone   = "none"
	BusMemory = "memory"
	BusRedis  = "redis"
	BusNATS   = "nats"
	BusKafka  = "kafka"
)

// RedisConfig holds the store connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Timeout bounds each store call. Zero means unbounded.
	Timeout time.Duration
}

// BusConfig selects where presence change events are published.
type BusConfig struct {
	Kind         string
	Channel      string
	NATSURL      string
	KafkaBrokers []string
}

// Config is the full set of options.
type Config struct {
	Redis    RedisConfig
	Name     string
	Logging  bool
	LeaseTTL time.Duration
	HTTPAddr string
	Bus      BusConfig
	Trace    bool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Redis:    RedisConfig{Addr: "localhost:" + DefaultRedisPort},
		Name:     DefaultName,
		Logging:  true,
		LeaseTTL: DefaultLeaseTTL,
		HTTPAddr: DefaultHTTPAddr,
		Bus:      BusConfig{Kind: BusNone},
	}
}

// fileConfig mirrors Config for decoding. Pointers distinguish absent keys
// from zero values in YAML; TOML uses MetaData.IsDefined.
type fileConfig struct {
	Redis struct {
		Addr     *string `toml:"addr" yaml:"addr"`
		Password *string `toml:"password" yaml:"password"`
		DB       *int    `toml:"db" yaml:"db"`
		Timeout  *string `toml:"timeout" yaml:"timeout"`
	} `toml:"redis" yaml:"redis"`
	Name     *string `toml:"name" yaml:"name"`
	Logging  *bool   `toml:"logging" yaml:"logging"`
	LeaseTTL *string `toml:"lease_ttl" yaml:"lease_ttl"`
	HTTPAddr *string `toml:"http_addr" yaml:"http_addr"`
	Trace    *bool   `toml:"trace" yaml:"trace"`
	Bus      struct {
		Kind         *string  `toml:"kind" yaml:"kind"`
		Channel      *string  `toml:"channel" yaml:"channel"`
		NATSURL      *string  `toml:"nats_url" yaml:"nats_url"`
		KafkaBrokers []string `toml:"kafka_brokers" yaml:"kafka_brokers"`
	} `toml:"bus" yaml:"bus"`
}

// LoadFile overlays the file at path onto cfg. The format is chosen by
// extension: .toml, .yaml or .yml.
func LoadFile(cfg *Config, path string) error {
	var raw fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &raw); err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("load config %s: unsupported format", path)
	}
	return raw.apply(cfg)
}

func (f *fileConfig) apply(cfg *Config) error {
	if f.Redis.Addr != nil {
		cfg.Redis.Addr = NormalizeAddr(*f.Redis.Addr)
	}
	if f.Redis.Password != nil {
		cfg.Redis.Password = *f.Redis.Password
	}
	if f.Redis.DB != nil {
		cfg.Redis.DB = *f.Redis.DB
	}
	if f.Redis.Timeout != nil {
		d, err := time.ParseDuration(strings.TrimSpace(*f.Redis.Timeout))
		if err != nil {
			return fmt.Errorf("parse redis.timeout: %w", err)
		}
		cfg.Redis.Timeout = d
	}
	if f.Name != nil {
		cfg.Name = strings.TrimSpace(*f.Name)
	}
	if f.Logging != nil {
		cfg.Logging = *f.Logging
	}
	if f.LeaseTTL != nil {
		d, err := time.ParseDuration(strings.TrimSpace(*f.LeaseTTL))
		if err != nil {
			return fmt.Errorf("parse lease_ttl: %w", err)
		}
		cfg.LeaseTTL = d
	}
	if f.HTTPAddr != nil {
		cfg.HTTPAddr = *f.HTTPAddr
	}
	if f.Trace != nil {
		cfg.Trace = *f.Trace
	}
	if f.Bus.Kind != nil {
		cfg.Bus.Kind = strings.ToLower(strings.TrimSpace(*f.Bus.Kind))
	}
	if f.Bus.Channel != nil {
		cfg.Bus.Channel = *f.Bus.Channel
	}
	if f.Bus.NATSURL != nil {
		cfg.Bus.NATSURL = *f.Bus.NATSURL
	}
	if f.Bus.KafkaBrokers != nil {
		cfg.Bus.KafkaBrokers = normalizeList(f.Bus.KafkaBrokers)
	}
	return nil
}

// ApplyEnv overlays environment variables read through lookup, typically
// os.LookupEnv:
//
//	REDIS_HOST, REDIS_PASSWORD, REDIS_DB, APP_NAME, PRESENCE_LEASE_TTL,
//	PRESENCE_HTTP_ADDR, PRESENCE_BUS, NATS_URL, KAFKA_BROKERS
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("REDIS_HOST"); ok && v != "" {
		cfg.Redis.Addr = NormalizeAddr(v)
	}
	if v, ok := lookup("REDIS_PASSWORD"); ok {
		cfg.Redis.Password = v
	}
	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse REDIS_DB: %w", err)
		}
		cfg.Redis.DB = db
	}
	if v, ok := lookup("APP_NAME"); ok && v != "" {
		cfg.Name = strings.TrimSpace(v)
	}
	if v, ok := lookup("PRESENCE_LEASE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse PRESENCE_LEASE_TTL: %w", err)
		}
		cfg.LeaseTTL = d
	}
	if v, ok := lookup("PRESENCE_HTTP_ADDR"); ok && v != "" {
		cfg.HTTPAddr = v
	}
	if v, ok := lookup("PRESENCE_BUS"); ok && v != "" {
		cfg.Bus.Kind = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup("NATS_URL"); ok && v != "" {
		cfg.Bus.NATSURL = v
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		cfg.Bus.KafkaBrokers = normalizeList(strings.Split(v, ","))
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Redis.Addr == "" {
		return errors.New("config: redis address is empty")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("config: worker name is empty")
	}
	// Redis PX expiries are whole milliseconds.
	if c.LeaseTTL < time.Millisecond || c.LeaseTTL%time.Millisecond != 0 {
		return fmt.Errorf("config: lease ttl %v must be a positive whole number of milliseconds", c.LeaseTTL)
	}
	if c.Redis.Timeout < 0 {
		return fmt.Errorf("config: negative redis timeout %v", c.Redis.Timeout)
	}
	switch c.Bus.Kind {
	case BusNone, BusMemory, BusRedis:
	case BusNATS:
		if c.Bus.NATSURL == "" {
			return errors.New("config: nats bus needs NATS_URL")
		}
	case BusKafka:
		if len(c.Bus.KafkaBrokers) == 0 {
			return errors.New("config: kafka bus needs KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("config: unknown bus kind %q", c.Bus.Kind)
	}
	return nil
}

// NormalizeAddr appends DefaultRedisPort to a bare host.
func NormalizeAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return addr
	}
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), DefaultRedisPort)
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
