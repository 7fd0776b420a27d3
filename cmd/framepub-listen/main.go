// Command framepub-listen subscribes to the counter and image topics of a
// framepub node and logs every message it receives.
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

const appName = "framepub-listen"

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := runtimepkg.TryNewListener(cfg, loggingpkg.NewSlogServiceLogger(logger), ctx, runtimepkg.ListenerDependencies{})
	if err != nil {
		logger.Error("Failed to create listener. Aborting.", "error", err)
		return err
	}
	defer func() {
		if err := l.Close(); err != nil {
			logger.Error("Failed to close listener", "error", err)
		}
	}()

	if err := l.Start(ctx); err != nil {
		logger.Error("Failed to run listener. Aborting.", "error", err)
		return err
	}

	counters, frames := l.Received()
	logger.Info("Listener stopped", "counters", counters, "frames", frames, "dropped", l.Dropped())
	return nil
}
