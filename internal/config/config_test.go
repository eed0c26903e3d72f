package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FOLDERDROP_METADATA_BACKEND", "memory")
	t.Setenv("FOLDERDROP_STORAGE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, 10, cfg.FetchBatchSize)
	assert.Equal(t, time.Hour, cfg.ArchiveURLTTL)
	assert.Equal(t, 5*time.Minute, cfg.MemberURLTTL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Contains(t, cfg.ForbiddenExtensions, ".exe")
	assert.Len(t, cfg.SigningSecret, 32)
	assert.False(t, cfg.QueueEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FOLDERDROP_METADATA_BACKEND", "memory")
	t.Setenv("FOLDERDROP_STORAGE_BACKEND", "memory")
	t.Setenv("FOLDERDROP_FETCH_BATCH_SIZE", "4")
	t.Setenv("FOLDERDROP_PUBLIC_URL", "https://drop.example.com/")
	t.Setenv("FOLDERDROP_SIGNING_SECRET", "s3cr3t")
	t.Setenv("FOLDERDROP_LOG_LEVEL", "debug")
	t.Setenv("FOLDERDROP_S3_USE_SSL", "true")
	t.Setenv("FOLDERDROP_QUEUE_ENABLED", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.FetchBatchSize)
	assert.Equal(t, "https://drop.example.com", cfg.PublicURL)
	assert.Equal(t, []byte("s3cr3t"), cfg.SigningSecret)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.S3UseSSL)
	assert.True(t, cfg.QueueEnabled)
}

func TestLoadClampsArchiveTTL(t *testing.T) {
	t.Setenv("FOLDERDROP_METADATA_BACKEND", "memory")
	t.Setenv("FOLDERDROP_ARCHIVE_URL_TTL", "6h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.ArchiveURLTTL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"backend":  {"FOLDERDROP_METADATA_BACKEND": "sqlite"},
		"storage":  {"FOLDERDROP_METADATA_BACKEND": "memory", "FOLDERDROP_STORAGE_BACKEND": "ftp"},
		"format":   {"FOLDERDROP_METADATA_BACKEND": "memory", "FOLDERDROP_LOG_FORMAT": "xml"},
		"level":    {"FOLDERDROP_METADATA_BACKEND": "memory", "FOLDERDROP_LOG_LEVEL": "loud"},
		"dsn":      {"FOLDERDROP_METADATA_BACKEND": "postgres"},
		"int":      {"FOLDERDROP_METADATA_BACKEND": "memory", "FOLDERDROP_FETCH_BATCH_SIZE": "ten"},
		"int64":    {"FOLDERDROP_METADATA_BACKEND": "memory", "FOLDERDROP_MAX_FILE_BYTES": "big"},
		"bool":     {"FOLDERDROP_METADATA_BACKEND": "memory", "FOLDERDROP_QUEUE_ENABLED": "maybe"},
		"duration": {"FOLDERDROP_METADATA_BACKEND": "memory", "FOLDERDROP_FETCH_TIMEOUT": "soon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadNamesEveryBadVariable(t *testing.T) {
	t.Setenv("FOLDERDROP_METADATA_BACKEND", "memory")
	t.Setenv("FOLDERDROP_STORAGE_BACKEND", "memory")
	t.Setenv("FOLDERDROP_WORKERS", "two")
	t.Setenv("FOLDERDROP_MEMBER_URL_TTL", "5")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, `FOLDERDROP_WORKERS: invalid value "two"`)
	assert.ErrorContains(t, err, `FOLDERDROP_MEMBER_URL_TTL: invalid value "5"`)
}
