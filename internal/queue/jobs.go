package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/FolderDrop/internal/config"
)

const (
	// PurgeFolderTask deletes the member objects of a deleted folder.
	PurgeFolderTask = "folder:purge"
	// WarmArchiveTask prebuilds and caches a folder archive.
	WarmArchiveTask = "archive:warm"
)

// warmUniqueTTL bounds how long a pending warm task blocks duplicates. The
// lock also expires if the task ends up archived, so later warms still run.
const warmUniqueTTL = 10 * time.Minute

// Enqueuer is the part of *asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// FolderPayload is serialized into both task payloads so the worker knows
// which folder to act on.
type FolderPayload struct {
	FolderID string `json:"folder_id"`
}

// EnqueuePurge enqueues a member object purge for a deleted folder.
func EnqueuePurge(ctx context.Context, client Enqueuer, payload FolderPayload) error {
	return enqueue(ctx, client, PurgeFolderTask, payload, asynq.MaxRetry(5))
}

// EnqueueWarm enqueues an archive prebuild. Duplicate requests for the same
// folder collapse while one is pending.
func EnqueueWarm(ctx context.Context, client Enqueuer, payload FolderPayload) error {
	return enqueue(ctx, client, WarmArchiveTask, payload, warmOptions()...)
}

func warmOptions() []asynq.Option {
	return []asynq.Option{asynq.MaxRetry(2), asynq.Unique(warmUniqueTTL)}
}

func enqueue(ctx context.Context, client Enqueuer, taskType string, payload FolderPayload, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s task: %w", taskType, err)
	}
	return nil
}

// DecodeFolderPayload reads the folder id out of a task.
func DecodeFolderPayload(task *asynq.Task) (FolderPayload, error) {
	var payload FolderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.FolderID == "" {
		return payload, errors.New("decode payload: missing folder_id")
	}
	return payload, nil
}

// Client adapts an asynq client to the enqueue hooks used by the services.
type Client struct {
	client Enqueuer
}

// NewClient wraps an asynq client.
func NewClient(client Enqueuer) *Client {
	return &Client{client: client}
}

// EnqueuePurge implements folders.Purger.
func (c *Client) EnqueuePurge(ctx context.Context, folderID string) error {
	return EnqueuePurge(ctx, c.client, FolderPayload{FolderID: folderID})
}

// EnqueueWarm schedules an archive prebuild for folderID.
func (c *Client) EnqueueWarm(ctx context.Context, folderID string) error {
	return EnqueueWarm(ctx, c.client, FolderPayload{FolderID: folderID})
}

// RedisOpt builds the asynq redis connection options from configuration.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
