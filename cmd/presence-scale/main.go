// Command presence-scale runs one or more throwaway workers with random
// names and presence logging off, for load and scaling checks.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-presence/internal/cli"
	"github.com/mirkobrombin/go-presence/v1/presence"
	"github.com/mirkobrombin/go-presence/v1/presets"
)

func main() {
	os.Exit(cli.ExitCode(os.Stderr, run(os.Args[1:], os.Stdout, os.Stderr)))
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("presence-scale", pflag.ContinueOnError)
	replicas := fs.IntP("replicas", "r", 1, "workers to run in this process")
	verbose := fs.BoolP("verbose", "v", false, "enable presence log lines")
	flags := cli.Bind(fs)
	cfg, err := flags.Load(args, os.LookupEnv)
	if err != nil {
		return err
	}
	if *replicas < 1 {
		return fmt.Errorf("replicas must be positive, got %d", *replicas)
	}
	logger := cli.NewLogger(stderr, flags.LogJSON)

	shutdown, err := cli.SetupTracing(cfg.Trace, stdout)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := presets.RedisOptionsFrom(cfg.Redis)
	client := presets.NewRedisClient(opts)
	defer client.Close()
	store := presets.NewRedisStore(client, opts)

	agents := make([]*presence.Agent, 0, *replicas)
	for i := 0; i < *replicas; i++ {
		a, err := presence.New(sigCtx, presets.RandomName(), store,
			presence.WithLogger(logger),
			presence.WithLogging(*verbose),
			presence.WithLeaseTTL(cfg.LeaseTTL),
		)
		if err != nil {
			return err
		}
		if !*verbose {
			logger.Info("presence: launching worker", "name", a.Name())
		}
		agents = append(agents, a)
	}
	logger.Info("presence: scale started", "replicas", len(agents))

	g, ctx := errgroup.WithContext(context.Background())
	for _, a := range agents {
		g.Go(func() error { return a.Run(ctx) })
	}
	go func() {
		select {
		case <-sigCtx.Done():
		case <-ctx.Done():
		}
		for _, a := range agents {
			a.Stop()
		}
	}()
	return g.Wait()
}
