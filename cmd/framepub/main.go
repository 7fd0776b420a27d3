// Command framepub runs a periodic publishing node: every timer period it
// publishes a counter value and a framed binary payload on the configured
// transport.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/drblury/framepub/internal/cli"
	runtimepkg "github.com/drblury/framepub/internal/runtime"
	loggingpkg "github.com/drblury/framepub/internal/runtime/logging"
)

const appName = "framepub"

func main() {
	if err := run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := cli.Parse(appName, args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		return err
	}
	if opts.ShowVersion {
		fmt.Printf("%s version %s\n", appName, cli.Version)
		return nil
	}

	logger := opts.Logger(os.Stdout, appName)
	slog.SetDefault(logger)

	cfg, err := opts.Config()
	if err != nil {
		logger.Error("Failed to load configuration. Aborting.", "error", err)
		return err
	}
	if opts.Validate {
		withDefaults := cfg.WithDefaults()
		if err := withDefaults.Validate(); err != nil {
			logger.Error("Configuration is invalid", "error", err)
			return err
		}
		logger.Info("Configuration is valid", "config", withDefaults.String())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := runtimepkg.TryNewService(cfg, loggingpkg.NewSlogServiceLogger(logger), ctx, runtimepkg.ServiceDependencies{})
	if err != nil {
		logger.Error("Failed to create node. Aborting.", "error", err)
		return err
	}

	err = svc.Start(ctx)
	if closeErr := svc.Close(); closeErr != nil {
		logger.Error("Failed to release node resources", "error", closeErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Failed to run node. Aborting.", "error", err)
		return err
	}

	logger.Info("Node stopped", "ticks", svc.Executor().Ticks())
	return nil
}
