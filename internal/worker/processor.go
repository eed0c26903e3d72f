package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/FolderDrop/internal/archive"
	"github.com/dharsanguruparan/FolderDrop/internal/common"
	"github.com/dharsanguruparan/FolderDrop/internal/queue"
)

// Purger removes the member objects of a folder.
type Purger interface {
	PurgeObjects(ctx context.Context, folderID string) (int, error)
}

// Warmer prebuilds a folder archive.
type Warmer interface {
	Warm(ctx context.Context, folderID string) (*archive.Result, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	purger Purger
	warmer Warmer
	logger *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(purger Purger, warmer Warmer, logger *slog.Logger) *Processor {
	return &Processor{purger: purger, warmer: warmer, logger: logger.With(slog.String("component", "worker"))}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.PurgeFolderTask, p.handlePurge)
	mux.HandleFunc(queue.WarmArchiveTask, p.handleWarm)
	return mux
}

func (p *Processor) handlePurge(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeFolderPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	n, err := p.purger.PurgeObjects(ctx, payload.FolderID)
	if err != nil {
		p.logger.Error("purge failed", slog.String("folder_id", payload.FolderID), slog.String("error", err.Error()))
		return err
	}
	p.logger.Info("folder purged", slog.String("folder_id", payload.FolderID), slog.Int("objects", n))
	return nil
}

func (p *Processor) handleWarm(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeFolderPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	res, err := p.warmer.Warm(ctx, payload.FolderID)
	switch {
	case err == nil:
		p.logger.Info("archive warmed",
			slog.String("folder_id", payload.FolderID), slog.String("source", string(res.Source)))
		return nil
	case errors.Is(err, common.ErrEmptyFolder), errors.Is(err, common.ErrNotFound):
		// Nothing to build; retrying will not change that.
		p.logger.Info("archive warm skipped", slog.String("folder_id", payload.FolderID), slog.String("reason", err.Error()))
		return nil
	default:
		p.logger.Error("archive warm failed", slog.String("folder_id", payload.FolderID), slog.String("error", err.Error()))
		return err
	}
}

// Serve runs an asynq server for the processor until ctx is cancelled.
func Serve(ctx context.Context, redis asynq.RedisClientOpt, concurrency int, p *Processor) error {
	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
	})
	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()
	p.logger.Info("worker started", slog.Int("concurrency", concurrency))
	if err := srv.Run(p.Handler()); err != nil {
		return fmt.Errorf("run worker: %w", err)
	}
	return nil
}
