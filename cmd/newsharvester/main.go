package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"NewsHarvester/internal/app"
	"NewsHarvester/internal/config"
	"NewsHarvester/internal/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		os.Exit(1)
	}

	err = application.Run(ctx)
	application.Close()
	if err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
