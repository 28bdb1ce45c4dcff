// Package cli holds the flag, logging, tracing and exit handling shared by
// the presence binaries.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mirkobrombin/go-presence/v1/config"
	"github.com/mirkobrombin/go-presence/v1/presence"
)

// Flags are the command line options common to every binary.
type Flags struct {
	fs *pflag.FlagSet

	ConfigPath string
	RedisAddr  string
	Name       string
	LeaseTTL   time.Duration
	Timeout    time.Duration
	HTTPAddr   string
	Bus        string
	Quiet      bool
	LogJSON    bool
	Trace      bool
}

// Bind registers the common flags on fs.
func Bind(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "TOML or YAML config file")
	fs.StringVar(&f.RedisAddr, "redis-addr", "", "Redis address, overrides REDIS_HOST")
	fs.StringVarP(&f.Name, "name", "n", "", "worker name, overrides APP_NAME")
	fs.DurationVar(&f.LeaseTTL, "lease-ttl", 0, "presence lease, whole milliseconds")
	fs.DurationVar(&f.Timeout, "redis-timeout", 0, "per call Redis timeout, 0 for none")
	fs.StringVar(&f.HTTPAddr, "http-addr", "", "HTTP listen address")
	fs.StringVar(&f.Bus, "bus", "", "event bus: none, memory, redis, nats or kafka")
	fs.BoolVarP(&f.Quiet, "quiet", "q", false, "disable presence log lines")
	fs.BoolVar(&f.LogJSON, "log-json", false, "log as JSON")
	fs.BoolVar(&f.Trace, "trace", false, "print OpenTelemetry spans to stdout")
	return f
}

// Load parses args and resolves the configuration from defaults, the
// config file, the environment read through lookup and finally the flags
// that were set explicitly.
func (f *Flags) Load(args []string, lookup func(string) (string, bool)) (config.Config, error) {
	cfg := config.Default()
	if err := f.fs.Parse(args); err != nil {
		return cfg, err
	}
	if f.ConfigPath != "" {
		if err := config.LoadFile(&cfg, f.ConfigPath); err != nil {
			return cfg, err
		}
	}
	if err := config.ApplyEnv(&cfg, lookup); err != nil {
		return cfg, err
	}
	f.apply(&cfg)
	return cfg, cfg.Validate()
}

func (f *Flags) apply(cfg *config.Config) {
	if f.fs.Changed("redis-addr") {
		cfg.Redis.Addr = config.NormalizeAddr(f.RedisAddr)
	}
	if f.fs.Changed("name") {
		cfg.Name = f.Name
	}
	if f.fs.Changed("lease-ttl") {
		cfg.LeaseTTL = f.LeaseTTL
	}
	if f.fs.Changed("redis-timeout") {
		cfg.Redis.Timeout = f.Timeout
	}
	if f.fs.Changed("http-addr") {
		cfg.HTTPAddr = f.HTTPAddr
	}
	if f.fs.Changed("bus") {
		cfg.Bus.Kind = f.Bus
	}
	if f.Quiet {
		cfg.Logging = false
	}
	if f.Trace {
		cfg.Trace = true
	}
}

// NewLogger returns a text logger on w, or a JSON one when json is set.
func NewLogger(w io.Writer, json bool) *slog.Logger {
	if json {
		return slog.New(slog.NewJSONHandler(w, nil))
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

// SetupTracing installs a stdout span exporter as the global provider when
// enabled. The returned shutdown flushes pending spans and is never nil.
func SetupTracing(enabled bool, w io.Writer) (func(context.Context) error, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// ExitCode maps the error a binary finished with to its exit status,
// printing it to w. A stopped agent or a cancelled context is a clean exit.
func ExitCode(w io.Writer, err error) int {
	if err == nil || errors.Is(err, presence.ErrStopped) || errors.Is(err, context.Canceled) {
		return 0
	}
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
