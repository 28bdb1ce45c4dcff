// Command presence-watch polls the registry, publishes join and leave events
// and serves the roster, the event streams and metrics over HTTP.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-presence/internal/cli"
	"github.com/mirkobrombin/go-presence/v1/config"
	"github.com/mirkobrombin/go-presence/v1/metrics"
	"github.com/mirkobrombin/go-presence/v1/presence"
	"github.com/mirkobrombin/go-presence/v1/presets"
	"github.com/mirkobrombin/go-presence/v1/watch"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(cli.ExitCode(os.Stderr, run(os.Args[1:], os.Stdout, os.Stderr)))
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("presence-watch", pflag.ContinueOnError)
	poll := fs.Duration("poll", 0, "active set poll interval, defaults to the renewal interval")
	cacheTTL := fs.Duration("cache-ttl", presence.DefaultDirectoryTTL, "roster cache lifetime")
	flags := cli.Bind(fs)
	cfg, err := flags.Load(args, os.LookupEnv)
	if err != nil {
		return err
	}
	// Events still flow to local SSE and WebSocket clients without a shared bus.
	if cfg.Bus.Kind == config.BusNone {
		cfg.Bus.Kind = config.BusMemory
	}
	logger := cli.NewLogger(stderr, flags.LogJSON)
	slog.SetDefault(logger)

	shutdown, err := cli.SetupTracing(cfg.Trace, stdout)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := presets.RedisOptionsFrom(cfg.Redis)
	client := presets.NewRedisClient(opts)
	defer client.Close()
	store := presets.NewRedisStore(client, opts)

	bus, closeBus, err := presets.NewBus(ctx, cfg.Bus, client)
	if err != nil {
		return err
	}
	defer func() { _ = closeBus() }()

	dir, err := presence.NewDirectory(store, *cacheTTL)
	if err != nil {
		return err
	}
	defer dir.Close()

	interval := *poll
	if interval <= 0 {
		interval = presence.RenewInterval(cfg.LeaseTTL)
	}
	observer := presence.NewObserver(store, bus,
		presence.WithObserverInterval(interval),
		presence.WithObserverLogger(logger),
	)

	reg := metrics.NewRegistry()
	metrics.RegisterPresenceMetrics(reg)
	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           watch.NewMux(dir, bus, reg),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}
	g.Go(func() error { return observer.Run(gctx) })
	g.Go(func() error {
		logger.Info("presence: watch listening", "addr", cfg.HTTPAddr, "bus", cfg.Bus.Kind)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
