// Command server runs the FolderDrop HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/FolderDrop/internal/api"
	"github.com/dharsanguruparan/FolderDrop/internal/app"
	"github.com/dharsanguruparan/FolderDrop/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := config.SetupLogger(cfg)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("init services", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	if err := api.New(a).Run(ctx); err != nil {
		logger.Error("server stopped", slog.String("error", err.Error()))
		a.Close()
		os.Exit(1)
	}
}
