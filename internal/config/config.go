// Package config centralizes how FolderDrop reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted for METADATA_BACKEND and STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Config represents runtime configuration for every FolderDrop binary.
type Config struct {
	Address             string
	PublicURL           string
	MaxFileSize         int64
	ForbiddenExtensions []string
	SigningSecret       []byte
	MasterTokenHash     string

	// Signed URL lifetimes.
	MemberURLTTL  time.Duration
	ArchiveURLTTL time.Duration
	UploadURLTTL  time.Duration

	// Archive engine tuning.
	FetchBatchSize    int
	FetchTimeout      time.Duration
	LocalArchiveTTL   time.Duration
	LocalArchiveSlots int

	MetadataBackend string
	StorageBackend  string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Workers       int
	// QueueEnabled routes background work through asynq instead of running
	// it inline in the API process.
	QueueEnabled bool

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3Region    string
	S3Bucket    string

	LogLevel  slog.Level
	LogFormat string
}

const (
	envPrefix = "FOLDERDROP_"

	defaultAddress             = ":8080"
	defaultPublicURL           = "http://localhost:8080"
	defaultMaxFileSize         = 500 << 20 // 500 MiB
	defaultForbiddenExtensions = ".exe,.js,.html,.php,.dll,.bat,.lnk,.url,.sh,.py,.vbs,.msi,.bin"
	defaultMemberURLTTL        = 5 * time.Minute
	defaultArchiveURLTTL       = time.Hour
	defaultUploadURLTTL        = time.Minute
	defaultFetchBatchSize      = 10
	defaultFetchTimeout        = 2 * time.Minute
	defaultLocalArchiveTTL     = 10 * time.Minute
	defaultLocalArchiveSlots   = 32
	defaultWorkerCount         = 2
	defaultRedisAddr           = "localhost:6379"
	defaultS3Region            = "us-east-1"
	defaultS3Bucket            = "folderdrop"

	// maxArchiveURLTTL caps how long a cached archive link stays usable.
	maxArchiveURLTTL = time.Hour
)

// Load reads configuration from environment variables falling back to defaults.
func Load() (*Config, error) {
	var l loader
	cfg := &Config{
		Address:             readEnv("ADDRESS", defaultAddress),
		PublicURL:           strings.TrimRight(readEnv("PUBLIC_URL", defaultPublicURL), "/"),
		MaxFileSize:         l.parseInt64("MAX_FILE_BYTES", defaultMaxFileSize),
		ForbiddenExtensions: parseList("FORBIDDEN_EXTENSIONS", defaultForbiddenExtensions),
		SigningSecret:       parseSecret("SIGNING_SECRET"),
		MasterTokenHash:     strings.ToLower(readEnv("MASTER_TOKEN_HASH", "")),
		MemberURLTTL:        l.parseDuration("MEMBER_URL_TTL", defaultMemberURLTTL),
		ArchiveURLTTL:       l.parseDuration("ARCHIVE_URL_TTL", defaultArchiveURLTTL),
		UploadURLTTL:        l.parseDuration("UPLOAD_URL_TTL", defaultUploadURLTTL),
		FetchBatchSize:      l.parseInt("FETCH_BATCH_SIZE", defaultFetchBatchSize),
		FetchTimeout:        l.parseDuration("FETCH_TIMEOUT", defaultFetchTimeout),
		LocalArchiveTTL:     l.parseDuration("LOCAL_ARCHIVE_TTL", defaultLocalArchiveTTL),
		LocalArchiveSlots:   l.parseInt("LOCAL_ARCHIVE_SLOTS", defaultLocalArchiveSlots),
		MetadataBackend:     strings.ToLower(readEnv("METADATA_BACKEND", BackendPostgres)),
		StorageBackend:      strings.ToLower(readEnv("STORAGE_BACKEND", BackendS3)),
		DatabaseURL:         readEnv("DATABASE_URL", ""),
		RedisAddr:           readEnv("REDIS_ADDR", defaultRedisAddr),
		RedisPassword:       readEnv("REDIS_PASSWORD", ""),
		RedisDB:             l.parseInt("REDIS_DB", 0),
		Workers:             l.parseInt("WORKERS", defaultWorkerCount),
		QueueEnabled:        l.parseBool("QUEUE_ENABLED", false),
		S3Endpoint:          readEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:         readEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:         readEnv("S3_SECRET_KEY", ""),
		S3UseSSL:            l.parseBool("S3_USE_SSL", false),
		S3Region:            readEnv("S3_REGION", defaultS3Region),
		S3Bucket:            readEnv("S3_BUCKET", defaultS3Bucket),
		LogFormat:           strings.ToLower(readEnv("LOG_FORMAT", "json")),
	}
	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	level, err := parseLogLevel(readEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("%sLOG_LEVEL: %w", envPrefix, err)
	}
	cfg.LogLevel = level
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("%sLOG_FORMAT: unsupported format %q", envPrefix, cfg.LogFormat)
	}
	switch cfg.MetadataBackend {
	case BackendPostgres, BackendMemory:
	default:
		return nil, fmt.Errorf("%sMETADATA_BACKEND: unsupported backend %q", envPrefix, cfg.MetadataBackend)
	}
	switch cfg.StorageBackend {
	case BackendS3, BackendMemory:
	default:
		return nil, fmt.Errorf("%sSTORAGE_BACKEND: unsupported backend %q", envPrefix, cfg.StorageBackend)
	}
	if cfg.MetadataBackend == BackendPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%sDATABASE_URL is required for the postgres backend", envPrefix)
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.FetchBatchSize <= 0 {
		cfg.FetchBatchSize = defaultFetchBatchSize
	}
	if cfg.MemberURLTTL <= 0 {
		cfg.MemberURLTTL = defaultMemberURLTTL
	}
	if cfg.ArchiveURLTTL <= 0 || cfg.ArchiveURLTTL > maxArchiveURLTTL {
		cfg.ArchiveURLTTL = defaultArchiveURLTTL
	}
	if cfg.UploadURLTTL <= 0 {
		cfg.UploadURLTTL = defaultUploadURLTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.LocalArchiveTTL <= 0 {
		cfg.LocalArchiveTTL = defaultLocalArchiveTTL
	}
	if cfg.LocalArchiveSlots <= 0 {
		cfg.LocalArchiveSlots = defaultLocalArchiveSlots
	}
	return cfg, nil
}

// SetupLogger builds the process-wide slog logger and installs it as default.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	out := make([]string, 0)
	for _, item := range strings.Split(val, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// loader collects parse failures so Load can report every bad variable at
// once. Unset or empty variables take the default.
type loader struct {
	errs []error
}

func (l *loader) fail(key, value string, err error) {
	l.errs = append(l.errs, fmt.Errorf("%s%s: invalid value %q: %w", envPrefix, key, value, err))
}

func (l *loader) parseInt64(key string, def int64) int64 {
	v := readEnv(key, "")
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		l.fail(key, v, err)
		return def
	}
	return parsed
}

func (l *loader) parseInt(key string, def int) int {
	v := readEnv(key, "")
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		l.fail(key, v, err)
		return def
	}
	return parsed
}

func (l *loader) parseBool(key string, def bool) bool {
	v := readEnv(key, "")
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		l.fail(key, v, err)
		return def
	}
	return parsed
}

func (l *loader) parseDuration(key string, def time.Duration) time.Duration {
	v := readEnv(key, "")
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		l.fail(key, v, err)
		return def
	}
	return parsed
}

func parseSecret(key string) []byte {
	if v := readEnv(key, ""); v != "" {
		return []byte(v)
	}
	return nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown level %q", level)
	}
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
