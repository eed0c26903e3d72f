// Package app assembles the FolderDrop services from configuration. Both the
// API server and the worker build their dependencies through New.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/FolderDrop/internal/access"
	"github.com/dharsanguruparan/FolderDrop/internal/archive"
	"github.com/dharsanguruparan/FolderDrop/internal/config"
	"github.com/dharsanguruparan/FolderDrop/internal/database"
	"github.com/dharsanguruparan/FolderDrop/internal/folders"
	"github.com/dharsanguruparan/FolderDrop/internal/objectstore"
	"github.com/dharsanguruparan/FolderDrop/internal/queue"
	"github.com/dharsanguruparan/FolderDrop/internal/repository"
	"github.com/dharsanguruparan/FolderDrop/internal/signing"
)

// App holds the wired services.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   repository.Store
	Gateway objectstore.Gateway
	// Objects is set when the in-memory gateway is used; the API must serve
	// it under objectstore.ObjectsPath.
	Objects  *objectstore.MemoryGateway
	Access   *access.Service
	Archives *archive.Service
	Local    *archive.LocalStore
	Folders  *folders.Service
	// Queue is nil unless background work is routed through asynq.
	Queue *queue.Client

	pool        *pgxpool.Pool
	queueClient *asynq.Client
}

// New connects the configured backends and builds every service.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	signer := signing.NewSigner(cfg.SigningSecret)

	switch cfg.MetadataBackend {
	case config.BackendMemory:
		a.Store = repository.NewMemoryStore()
	default:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.pool = pool
		if err := database.EnsureSchema(ctx, pool); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.Store = repository.NewPostgresStore(pool)
	}

	switch cfg.StorageBackend {
	case config.BackendMemory:
		a.Objects = objectstore.NewMemoryGateway(signer, cfg.PublicURL)
		a.Gateway = a.Objects
	default:
		gw, err := objectstore.NewMinio(cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init object store: %w", err)
		}
		if err := gw.EnsureBucket(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		a.Gateway = gw
	}

	a.Access = access.NewService(a.Store, cfg.MasterTokenHash, logger)
	if cfg.MasterTokenHash == "" {
		logger.Warn("no master token configured, admin endpoints are disabled")
	}

	fetcher := archive.NewSignedFetcher(a.Gateway, a.Store, cfg.MemberURLTTL, cfg.FetchTimeout)
	sched := archive.NewScheduler(fetcher.Fetch, cfg.FetchBatchSize)
	a.Local = archive.NewLocalStore(signer, cfg.PublicURL, cfg.LocalArchiveSlots, cfg.LocalArchiveTTL)
	a.Archives = archive.NewService(a.Access, a.Store, archive.NewCache(a.Gateway, cfg.ArchiveURLTTL), sched, a.Local, logger)

	var purger folders.Purger
	if cfg.QueueEnabled {
		a.queueClient = asynq.NewClient(queue.RedisOpt(cfg))
		a.Queue = queue.NewClient(a.queueClient)
		purger = a.Queue
	}
	a.Folders = folders.NewService(a.Store, a.Gateway, a.Access, a.Archives, purger, folders.Options{
		MaxFileSize:         cfg.MaxFileSize,
		ForbiddenExtensions: cfg.ForbiddenExtensions,
		UploadURLTTL:        cfg.UploadURLTTL,
		DownloadURLTTL:      cfg.MemberURLTTL,
	}, logger)
	return a, nil
}

// Close releases the database pool and queue client.
func (a *App) Close() {
	if a.queueClient != nil {
		if err := a.queueClient.Close(); err != nil {
			a.Logger.Warn("close queue client", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
