// Command worker processes FolderDrop background tasks from asynq.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/FolderDrop/internal/app"
	"github.com/dharsanguruparan/FolderDrop/internal/config"
	"github.com/dharsanguruparan/FolderDrop/internal/queue"
	"github.com/dharsanguruparan/FolderDrop/internal/worker"
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

	processor := worker.NewProcessor(a.Folders, a.Archives, logger)
	if err := worker.Serve(ctx, queue.RedisOpt(cfg), cfg.Workers, processor); err != nil {
		logger.Error("worker stopped", slog.String("error", err.Error()))
		a.Close()
		os.Exit(1)
	}
}
