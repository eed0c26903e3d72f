// Package repository persists folder, file and token metadata. PostgresStore
// backs production; MemoryStore backs tests and single-process runs.
package repository

import (
	"context"
	"time"

	"github.com/dharsanguruparan/FolderDrop/internal/model"
)

// Store is the metadata surface used by the services. Lookups of missing rows
// return common.ErrNotFound.
type Store interface {
	CreateFolder(ctx context.Context, folder *model.Folder) error
	GetFolder(ctx context.Context, id string) (*model.Folder, error)
	ListFolders(ctx context.Context) ([]model.Folder, error)
	SetFolderPause(ctx context.Context, id string, kind model.PauseKind, paused bool) error
	// DeleteFolder removes the folder row and every file row inside it.
	DeleteFolder(ctx context.Context, id string) error

	CreateFile(ctx context.Context, file *model.FileRecord) error
	GetFile(ctx context.Context, id string) (*model.FileRecord, error)
	// ListFolderFiles returns members in upload order.
	ListFolderFiles(ctx context.Context, folderID string) ([]model.FileRecord, error)
	DeleteFile(ctx context.Context, id string) error
	// ConsumeDownload counts one download. Non-master callers get
	// common.ErrDownloadLimitExceeded once the file's limit is reached.
	ConsumeDownload(ctx context.Context, fileID string, master bool) error

	CreateToken(ctx context.Context, token *model.Token) error
	GetToken(ctx context.Context, id string) (*model.Token, error)
	GetTokenByHash(ctx context.Context, hash string) (*model.Token, error)
	// ListTokens returns every token, newest first.
	ListTokens(ctx context.Context) ([]model.Token, error)
	// UpdateToken rewrites the mutable fields of a token: expiry, use
	// counters and allowed folders.
	UpdateToken(ctx context.Context, token *model.Token) error
	IncrementTokenUses(ctx context.Context, id string) error
	CountTokensSince(ctx context.Context, ip string, since time.Time) (int, error)
	DeleteToken(ctx context.Context, id string) error
	// DeleteExpiredTokens removes tokens that expired before the given time
	// and reports how many were removed.
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int, error)
}
