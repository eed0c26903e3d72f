// Package folders implements folder administration and every flow that
// changes folder membership. Each of those flows invalidates the folder's
// cached archive before it returns.
package folders

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/FolderDrop/internal/access"
	"github.com/dharsanguruparan/FolderDrop/internal/common"
	"github.com/dharsanguruparan/FolderDrop/internal/model"
	"github.com/dharsanguruparan/FolderDrop/internal/objectstore"
	"github.com/dharsanguruparan/FolderDrop/internal/repository"
)

const (
	autoIDLength   = 6
	autoIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	autoIDTries    = 5
	// looseNamespace holds uploads made without a folder.
	looseNamespace = "drops/"
)

// Authorizer is the token surface the folder flows need.
type Authorizer interface {
	Validate(ctx context.Context, raw string) (*access.Grant, error)
	AuthorizeFolder(ctx context.Context, raw, folderID string, perm model.Permission) (*access.Grant, error)
	RecordUse(ctx context.Context, g *access.Grant) error
}

// Invalidator drops a folder's cached archive.
type Invalidator interface {
	OnFolderMutated(ctx context.Context, folderID string)
}

// Purger schedules member object cleanup in the background.
type Purger interface {
	EnqueuePurge(ctx context.Context, folderID string) error
}

// Options tunes upload validation and signed URL lifetimes.
type Options struct {
	MaxFileSize         int64
	ForbiddenExtensions []string
	UploadURLTTL        time.Duration
	DownloadURLTTL      time.Duration
}

// Service runs folder administration and membership changes.
type Service struct {
	store    repository.Store
	gw       objectstore.Gateway
	auth     Authorizer
	archives Invalidator
	purger   Purger
	opts     Options
	logger   *slog.Logger
}

// NewService constructs a Service. purger may be nil, in which case folder
// deletion purges member objects inline.
func NewService(store repository.Store, gw objectstore.Gateway, auth Authorizer, archives Invalidator, purger Purger, opts Options, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		gw:       gw,
		auth:     auth,
		archives: archives,
		purger:   purger,
		opts:     opts,
		logger:   logger.With(slog.String("component", "folders")),
	}
}

// Create adds a folder. Auto folders get a random six character id; manual
// folders use their name as id.
func (s *Service) Create(ctx context.Context, name string, auto bool, password string) (*model.Folder, error) {
	name = strings.TrimSpace(name)
	if !auto {
		if err := validFolderID(name); err != nil {
			return nil, err
		}
		f := &model.Folder{ID: name, Name: name, ArchivePassword: password}
		if err := s.store.CreateFolder(ctx, f); err != nil {
			return nil, err
		}
		s.logger.Info("folder created", slog.String("folder_id", f.ID))
		return f, nil
	}
	for i := 0; i < autoIDTries; i++ {
		id, err := randomFolderID()
		if err != nil {
			return nil, err
		}
		f := &model.Folder{ID: id, Name: name, AutoGenerated: true, ArchivePassword: password}
		if f.Name == "" {
			f.Name = id
		}
		err = s.store.CreateFolder(ctx, f)
		if errors.Is(err, common.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info("folder created", slog.String("folder_id", f.ID), slog.Bool("auto", true))
		return f, nil
	}
	return nil, fmt.Errorf("create folder: no free id after %d attempts", autoIDTries)
}

// List returns every folder, newest first.
func (s *Service) List(ctx context.Context) ([]model.Folder, error) {
	return s.store.ListFolders(ctx)
}

// Files returns the members of a folder in upload order.
func (s *Service) Files(ctx context.Context, folderID string) ([]model.FileRecord, error) {
	if _, err := s.store.GetFolder(ctx, folderID); err != nil {
		return nil, err
	}
	return s.store.ListFolderFiles(ctx, folderID)
}

// SetPause toggles uploads or downloads for a folder.
func (s *Service) SetPause(ctx context.Context, folderID string, kind model.PauseKind, paused bool) error {
	switch kind {
	case model.PauseUpload, model.PauseDownload:
	default:
		return fmt.Errorf("pause kind %q: %w", kind, common.ErrInvalidArgument)
	}
	if err := s.store.SetFolderPause(ctx, folderID, kind, paused); err != nil {
		return err
	}
	s.logger.Info("folder pause changed",
		slog.String("folder_id", folderID), slog.String("kind", string(kind)), slog.Bool("paused", paused))
	return nil
}

// Upload describes one file sent through the API.
type Upload struct {
	Token         string
	FolderID      string
	Name          string
	Body          io.Reader
	Size          int64
	ContentType   string
	Title         string
	UploaderName  string
	Purpose       string
	IPAddress     string
	UserAgent     string
	DownloadLimit *int
}

// Upload stores a file. With a FolderID the file joins that folder and the
// folder's archive is invalidated before Upload returns; without one it is a
// loose drop authorised by any upload token.
func (s *Service) Upload(ctx context.Context, in Upload) (*model.FileRecord, error) {
	name, err := s.checkFile(in.Name, in.Size)
	if err != nil {
		return nil, err
	}
	grant, err := s.authorizeUpload(ctx, in.Token, in.FolderID, in.Size)
	if err != nil {
		return nil, err
	}
	rec := s.newRecord(in.FolderID, name, grant, in)
	if err := s.auth.RecordUse(ctx, grant); err != nil {
		return nil, err
	}
	if err := s.gw.Put(ctx, rec.StoragePath, in.Body, in.Size, rec.ContentType); err != nil {
		return nil, fmt.Errorf("%w: store %s: %w", common.ErrInfrastructure, rec.StoragePath, err)
	}
	// The object may have replaced a member with the same name, so the
	// archive is stale from here on even if the metadata write fails.
	if rec.FolderID != "" {
		defer s.archives.OnFolderMutated(ctx, rec.FolderID)
	}
	if err := s.store.CreateFile(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("file uploaded",
		slog.String("file_id", rec.ID), slog.String("folder_id", rec.FolderID), slog.Int64("size", rec.Size))
	return rec, nil
}

// Ticket is a signed PUT URL handed to a client for a direct upload.
type Ticket struct {
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RequestUpload checks an upload into a folder and returns a signed PUT URL
// for it. Nothing is recorded until CompleteUpload.
func (s *Service) RequestUpload(ctx context.Context, token, folderID, name string, size int64) (*Ticket, error) {
	if folderID == "" {
		return nil, fmt.Errorf("folder is required: %w", common.ErrInvalidArgument)
	}
	name, err := s.checkFile(name, size)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeUpload(ctx, token, folderID, size); err != nil {
		return nil, err
	}
	p := model.MemberPath(folderID, name)
	u, err := s.gw.SignedPutURL(ctx, p, s.opts.UploadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: sign upload %s: %w", common.ErrInfrastructure, p, err)
	}
	return &Ticket{Path: p, URL: u, ExpiresAt: time.Now().Add(s.opts.UploadURLTTL).UTC()}, nil
}

// CompleteUpload records an object uploaded through a ticket and invalidates
// the folder's archive. Once the object is confirmed present the archive is
// invalidated whether or not the record is written.
func (s *Service) CompleteUpload(ctx context.Context, in Upload) (*model.FileRecord, error) {
	if in.FolderID == "" {
		return nil, fmt.Errorf("folder is required: %w", common.ErrInvalidArgument)
	}
	name, err := s.checkFile(in.Name, in.Size)
	if err != nil {
		return nil, err
	}
	grant, err := s.authorizeUpload(ctx, in.Token, in.FolderID, in.Size)
	if err != nil {
		return nil, err
	}
	rec := s.newRecord(in.FolderID, name, grant, in)
	ok, err := s.gw.Exists(ctx, rec.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", common.ErrInfrastructure, rec.StoragePath, err)
	}
	if !ok {
		return nil, fmt.Errorf("uploaded object %s: %w", rec.StoragePath, common.ErrNotFound)
	}
	defer s.archives.OnFolderMutated(ctx, rec.FolderID)
	if err := s.auth.RecordUse(ctx, grant); err != nil {
		return nil, err
	}
	if err := s.store.CreateFile(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DownloadLink is a signed GET URL for a single file. PreviewURL is set for
// images and opens inline.
type DownloadLink struct {
	URL        string            `json:"url"`
	PreviewURL string            `json:"previewUrl,omitempty"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	File       *model.FileRecord `json:"file"`
}

// Download counts one download of fileID and returns a signed link to it.
// Callers other than master need download permission and must either have
// uploaded the file with this token or be scoped to its folder.
func (s *Service) Download(ctx context.Context, token, fileID string) (*DownloadLink, error) {
	grant, err := s.auth.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !grant.Master {
		if err := s.authorizeDownload(ctx, grant, rec); err != nil {
			return nil, err
		}
	}
	if err := s.store.ConsumeDownload(ctx, fileID, grant.Master); err != nil {
		return nil, err
	}
	rec.DownloadsDone++

	ttl := s.opts.DownloadURLTTL
	u, err := s.gw.SignedGetURL(ctx, rec.StoragePath, ttl, objectstore.AttachmentDisposition(downloadName(rec)))
	if err != nil {
		return nil, fmt.Errorf("%w: sign %s: %w", common.ErrInfrastructure, rec.StoragePath, err)
	}
	link := &DownloadLink{URL: u, ExpiresAt: time.Now().Add(ttl).UTC(), File: rec}
	if rec.Kind == model.KindImage {
		if link.PreviewURL, err = s.gw.SignedGetURL(ctx, rec.StoragePath, ttl, ""); err != nil {
			return nil, fmt.Errorf("%w: sign preview %s: %w", common.ErrInfrastructure, rec.StoragePath, err)
		}
	}
	s.logger.Info("file downloaded",
		slog.String("file_id", rec.ID), slog.String("folder_id", rec.FolderID), slog.Bool("master", grant.Master))
	return link, nil
}

func (s *Service) authorizeDownload(ctx context.Context, grant *access.Grant, rec *model.FileRecord) error {
	owner := rec.TokenHash == grant.Hash
	scoped := rec.FolderID != "" && slices.Contains(grant.AllowedFolders, rec.FolderID)
	if !owner && !scoped {
		return common.ErrAccessDenied
	}
	if !grant.Permission.Allows(model.PermDownload) {
		return common.ErrAccessDenied
	}
	if rec.LimitReached() {
		return common.ErrDownloadLimitExceeded
	}
	if rec.FolderID == "" {
		return nil
	}
	folder, err := s.store.GetFolder(ctx, rec.FolderID)
	if err != nil {
		return err
	}
	if folder.DownloadPaused {
		return common.ErrDownloadPaused
	}
	return nil
}

// downloadName prefers the uploader's title, keeping the original extension
// when the title has none.
func downloadName(rec *model.FileRecord) string {
	if rec.Title == "" {
		return rec.DisplayName()
	}
	if path.Ext(rec.Title) == "" {
		return rec.Title + path.Ext(rec.OriginalName)
	}
	return rec.Title
}

// DeleteFile removes one file. A failed object delete is logged and the
// metadata is removed anyway.
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	rec, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if rec.FolderID != "" {
		defer s.archives.OnFolderMutated(ctx, rec.FolderID)
	}
	if err := s.gw.Delete(ctx, rec.StoragePath); err != nil {
		s.logger.Warn("object delete failed",
			slog.String("file_id", fileID), slog.String("path", rec.StoragePath), slog.String("error", err.Error()))
	}
	if err := s.store.DeleteFile(ctx, fileID); err != nil {
		return err
	}
	s.logger.Info("file deleted", slog.String("file_id", fileID), slog.String("folder_id", rec.FolderID))
	return nil
}

// DeleteFolder removes a folder with its files, invalidates its archive and
// purges its member objects, in the background when a Purger is set.
func (s *Service) DeleteFolder(ctx context.Context, folderID string) error {
	if err := s.store.DeleteFolder(ctx, folderID); err != nil {
		return err
	}
	s.archives.OnFolderMutated(ctx, folderID)
	if s.purger != nil {
		err := s.purger.EnqueuePurge(ctx, folderID)
		if err == nil {
			s.logger.Info("folder deleted, purge queued", slog.String("folder_id", folderID))
			return nil
		}
		s.logger.Warn("queue purge failed, purging inline",
			slog.String("folder_id", folderID), slog.String("error", err.Error()))
	}
	n, err := s.PurgeObjects(ctx, folderID)
	if err != nil {
		s.logger.Warn("purge failed", slog.String("folder_id", folderID), slog.String("error", err.Error()))
		return nil
	}
	s.logger.Info("folder deleted", slog.String("folder_id", folderID), slog.Int("objects", n))
	return nil
}

// PurgeObjects deletes every member object under the folder's prefix and
// invalidates its archive again.
func (s *Service) PurgeObjects(ctx context.Context, folderID string) (int, error) {
	keys, err := s.gw.List(ctx, model.MemberPrefix(folderID))
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", folderID, err)
	}
	if len(keys) > 0 {
		if err := s.gw.DeleteMany(ctx, keys); err != nil {
			return 0, fmt.Errorf("delete objects of %s: %w", folderID, err)
		}
	}
	s.archives.OnFolderMutated(ctx, folderID)
	return len(keys), nil
}

func (s *Service) checkFile(name string, size int64) (string, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("file name is required: %w", common.ErrInvalidArgument)
	}
	ext := strings.ToLower(path.Ext(name))
	for _, forbidden := range s.opts.ForbiddenExtensions {
		if ext == forbidden {
			return "", fmt.Errorf("%s: %w", ext, common.ErrForbiddenType)
		}
	}
	if size <= 0 {
		return "", common.ErrEmptyUpload
	}
	if s.opts.MaxFileSize > 0 && size > s.opts.MaxFileSize {
		return "", common.ErrTooLarge
	}
	return name, nil
}

func (s *Service) authorizeUpload(ctx context.Context, token, folderID string, size int64) (*access.Grant, error) {
	var (
		grant *access.Grant
		err   error
	)
	if folderID == "" {
		grant, err = s.auth.Validate(ctx, token)
		if err == nil && !grant.Permission.Allows(model.PermUpload) {
			err = common.ErrAccessDenied
		}
	} else {
		grant, err = s.auth.AuthorizeFolder(ctx, token, folderID, model.PermUpload)
	}
	if err != nil {
		return nil, err
	}
	if grant.MaxUploadSize != nil && size > *grant.MaxUploadSize {
		return nil, common.ErrTooLarge
	}
	if folderID == "" {
		return grant, nil
	}
	folder, err := s.store.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if folder.UploadPaused && !grant.Master {
		return nil, common.ErrUploadPaused
	}
	return grant, nil
}

func (s *Service) newRecord(folderID, name string, grant *access.Grant, in Upload) *model.FileRecord {
	id := uuid.NewString()
	storagePath := looseNamespace + id + "/" + name
	if folderID != "" {
		storagePath = model.MemberPath(folderID, name)
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &model.FileRecord{
		ID:            id,
		FolderID:      folderID,
		StoragePath:   storagePath,
		OriginalName:  name,
		Title:         strings.TrimSpace(in.Title),
		Size:          in.Size,
		ContentType:   contentType,
		Kind:          model.KindFromContentType(contentType),
		TokenHash:     grant.Hash,
		UploaderName:  firstNonEmpty(in.UploaderName, grant.Name),
		Purpose:       firstNonEmpty(in.Purpose, grant.Purpose),
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		DownloadLimit: in.DownloadLimit,
		UploadedAt:    time.Now().UTC(),
	}
}

func validFolderID(id string) error {
	if id == "" {
		return fmt.Errorf("folder name is required: %w", common.ErrInvalidArgument)
	}
	if strings.ContainsAny(id, "/\\?#%\"") || id == "." || id == ".." {
		return fmt.Errorf("folder name %q: %w", id, common.ErrInvalidArgument)
	}
	if strings.ContainsFunc(id, unicode.IsControl) {
		return fmt.Errorf("folder name %q: %w", id, common.ErrInvalidArgument)
	}
	return nil
}

func randomFolderID() (string, error) {
	buf := make([]byte, autoIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate folder id: %w", err)
	}
	for i, b := range buf {
		buf[i] = autoIDAlphabet[int(b)%len(autoIDAlphabet)]
	}
	return string(buf), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
