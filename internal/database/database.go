package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the folders, files and tokens tables if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS folders (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	is_auto_generated BOOLEAN NOT NULL DEFAULT FALSE,
	zip_password TEXT,
	is_paused_upload BOOLEAN NOT NULL DEFAULT FALSE,
	is_paused_download BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	folder_id TEXT,
	storage_path TEXT NOT NULL,
	original_name TEXT NOT NULL,
	title TEXT,
	size BIGINT NOT NULL,
	content_type TEXT NOT NULL,
	kind TEXT NOT NULL,
	token_hash TEXT NOT NULL,
	uploader_name TEXT,
	purpose TEXT,
	ip_address TEXT,
	user_agent TEXT,
	download_limit INTEGER,
	downloads_done INTEGER NOT NULL DEFAULT 0,
	expires_at TIMESTAMPTZ,
	uploaded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_folder ON files(folder_id, uploaded_at);
CREATE TABLE IF NOT EXISTS tokens (
	id TEXT PRIMARY KEY,
	token_hash TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	purpose TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	max_uses INTEGER NOT NULL,
	uses INTEGER NOT NULL DEFAULT 0,
	ip_address TEXT,
	permission TEXT NOT NULL,
	allowed_folders TEXT[] NOT NULL DEFAULT '{}',
	max_upload_size BIGINT
);
CREATE INDEX IF NOT EXISTS idx_tokens_ip_created ON tokens(ip_address, created_at);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
