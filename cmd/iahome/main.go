package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/iahome/platform/adapter/cli"
	"github.com/iahome/platform/internal/app"
	"github.com/iahome/platform/pkg/config"
	"github.com/iahome/platform/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		// Commands that need storage report this themselves; version and
		// help still work.
		logger.Warn("container initialization failed", "error", err)
	} else {
		defer container.Close()
		cli.SetContainer(container)
	}

	cli.Execute(ctx)
}
