// Command presence-agent registers one named worker in Redis and keeps its
// lease alive until interrupted.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mirkobrombin/go-presence/internal/cli"
	"github.com/mirkobrombin/go-presence/v1/presence"
	"github.com/mirkobrombin/go-presence/v1/presets"
)

func main() {
	os.Exit(cli.ExitCode(os.Stderr, run(os.Args[1:], os.Stdout, os.Stderr)))
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("presence-agent", pflag.ContinueOnError)
	flags := cli.Bind(fs)
	cfg, err := flags.Load(args, os.LookupEnv)
	if err != nil {
		return err
	}
	logger := cli.NewLogger(stderr, flags.LogJSON)

	shutdown, err := cli.SetupTracing(cfg.Trace, stdout)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent, client, err := presets.NewRedisAgent(ctx, cfg.Name, presets.RedisOptionsFrom(cfg.Redis),
		presence.WithLogger(logger),
		presence.WithLogging(cfg.Logging),
		presence.WithLeaseTTL(cfg.LeaseTTL),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	go func() {
		<-ctx.Done()
		agent.Stop()
	}()
	return agent.Run(context.Background())
}
