package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dharsanguruparan/FolderDrop/internal/access"
	"github.com/dharsanguruparan/FolderDrop/internal/common"
	"github.com/dharsanguruparan/FolderDrop/internal/model"
)

// FolderStore is the metadata the orchestrator reads.
type FolderStore interface {
	GetFolder(ctx context.Context, id string) (*model.Folder, error)
	ListFolderFiles(ctx context.Context, folderID string) ([]model.FileRecord, error)
}

// Authorizer checks a raw token against a folder.
type Authorizer interface {
	AuthorizeFolder(ctx context.Context, raw, folderID string, perm model.Permission) (*access.Grant, error)
}

// Source tells where a returned URL points.
type Source string

const (
	SourceCache Source = "cache"
	SourceBuilt Source = "built"
	SourceLocal Source = "local"
)

// Result is a download link for a folder archive.
type Result struct {
	URL     string `json:"url"`
	Source  Source `json:"source"`
	Entries int    `json:"entries,omitempty"`
	Failed  int    `json:"failed,omitempty"`
}

// Service serves folder archives from the cache and builds them on a miss.
type Service struct {
	auth    Authorizer
	folders FolderStore
	cache   *Cache
	sched   *Scheduler
	local   *LocalStore
	logger  *slog.Logger
}

// NewService wires the orchestrator. local may be nil, in which case a failed
// cache store surfaces as common.ErrInfrastructure.
func NewService(auth Authorizer, folders FolderStore, cache *Cache, sched *Scheduler, local *LocalStore, logger *slog.Logger) *Service {
	return &Service{
		auth:    auth,
		folders: folders,
		cache:   cache,
		sched:   sched,
		local:   local,
		logger:  logger.With(slog.String("component", "archive")),
	}
}

// GetOrBuild returns a download URL for the folder's archive. The token must
// grant download on folderID and the folder must not have downloads paused;
// master tokens skip both checks.
func (s *Service) GetOrBuild(ctx context.Context, folderID, token string) (*Result, error) {
	grant, err := s.auth.AuthorizeFolder(ctx, token, folderID, model.PermDownload)
	if err != nil {
		return nil, err
	}
	folder, err := s.folders.GetFolder(ctx, folderID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("folder %s: %w", folderID, common.ErrEmptyFolder)
		}
		return nil, fmt.Errorf("%w: load folder %s: %w", common.ErrInfrastructure, folderID, err)
	}
	if folder.DownloadPaused && !grant.Master {
		return nil, common.ErrDownloadPaused
	}
	return s.serve(ctx, folder, grant, true)
}

// Warm builds and caches the archive of a folder unless a cache entry is
// already present. Warm builds skip download accounting and never use the
// local fallback.
func (s *Service) Warm(ctx context.Context, folderID string) (*Result, error) {
	folder, err := s.folders.GetFolder(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("load folder %s: %w", folderID, err)
	}
	return s.serve(ctx, folder, nil, false)
}

// OnFolderMutated drops the folder's cached archive. Every path that adds or
// removes members calls it before reporting success. Failures are logged.
func (s *Service) OnFolderMutated(ctx context.Context, folderID string) {
	if err := s.cache.Invalidate(ctx, folderID); err != nil {
		s.logger.Warn("archive invalidation failed",
			slog.String("folder_id", folderID), slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("archive invalidated", slog.String("folder_id", folderID))
}

func (s *Service) serve(ctx context.Context, folder *model.Folder, grant *access.Grant, fallback bool) (*Result, error) {
	hit, err := s.cache.Lookup(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	if hit {
		archiveCacheLookupsTotal.WithLabelValues("hit").Inc()
		u, err := s.cache.SignedURL(ctx, folder.ID)
		if err != nil {
			return nil, err
		}
		return &Result{URL: u, Source: SourceCache}, nil
	}
	archiveCacheLookupsTotal.WithLabelValues("miss").Inc()
	return s.build(ctx, folder, grant, fallback)
}

func (s *Service) build(ctx context.Context, folder *model.Folder, grant *access.Grant, fallback bool) (*Result, error) {
	start := time.Now()
	files, err := s.folders.ListFolderFiles(ctx, folder.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: list members of %s: %w", common.ErrInfrastructure, folder.ID, err)
	}
	if len(files) == 0 {
		archiveBuildsTotal.WithLabelValues(buildEmpty).Inc()
		return nil, common.ErrEmptyFolder
	}
	members := make([]MemberRef, len(files))
	for i := range files {
		members[i] = MemberRef{
			FileID:      files[i].ID,
			StoragePath: files[i].StoragePath,
			DisplayName: files[i].DisplayName(),
			Size:        files[i].Size,
		}
	}

	outcomes := s.sched.FetchAll(ctx, members, grant)

	var (
		failed  int
		limited bool
		lastErr error
	)
	for _, o := range outcomes {
		if o.Err == nil {
			continue
		}
		failed++
		lastErr = o.Err
		cause := "transfer"
		if errors.Is(o.Err, common.ErrDownloadLimitExceeded) {
			limited = true
			cause = "limit"
		}
		archiveMemberFailuresTotal.WithLabelValues(cause).Inc()
		s.logger.Warn("member fetch failed",
			slog.String("folder_id", folder.ID),
			slog.String("member", o.Member.StoragePath),
			slog.String("error", o.Err.Error()))
	}
	if failed == len(outcomes) {
		if limited {
			archiveBuildsTotal.WithLabelValues(buildLimited).Inc()
			return nil, fmt.Errorf("%w: no member of %s could be downloaded", common.ErrDownloadLimitExceeded, folder.ID)
		}
		archiveBuildsTotal.WithLabelValues(buildFailed).Inc()
		return nil, fmt.Errorf("%w: all %d members failed: %w", common.ErrArchiveBuildFailed, failed, lastErr)
	}

	w := NewWriter(folder.ArchivePassword)
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		if err := w.Append(o.Member.DisplayName, o.Data); err != nil {
			archiveBuildsTotal.WithLabelValues(buildFailed).Inc()
			return nil, fmt.Errorf("%w: %w", common.ErrArchiveBuildFailed, err)
		}
	}
	data, err := w.Finalize()
	if err != nil {
		archiveBuildsTotal.WithLabelValues(buildFailed).Inc()
		return nil, fmt.Errorf("%w: %w", common.ErrArchiveBuildFailed, err)
	}
	archiveBuildDuration.Observe(time.Since(start).Seconds())
	if failed > 0 {
		archiveBuildsTotal.WithLabelValues(buildPartial).Inc()
	} else {
		archiveBuildsTotal.WithLabelValues(buildSucceeded).Inc()
	}
	s.logger.Info("archive built",
		slog.String("folder_id", folder.ID),
		slog.Int("entries", w.Entries()),
		slog.Int("failed", failed),
		slog.Int("bytes", len(data)),
		slog.Bool("encrypted", folder.HasPassword()))

	result := &Result{Entries: w.Entries(), Failed: failed}
	if err := s.cache.Store(ctx, folder.ID, data); err != nil {
		s.logger.Warn("archive cache store failed",
			slog.String("folder_id", folder.ID), slog.String("error", err.Error()))
		if !fallback || s.local == nil {
			return nil, fmt.Errorf("%w: %w", common.ErrInfrastructure, err)
		}
		result.URL = s.local.Put(folder.ID, data)
		result.Source = SourceLocal
		return result, nil
	}
	u, err := s.cache.SignedURL(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	result.URL = u
	result.Source = SourceBuilt
	return result, nil
}
