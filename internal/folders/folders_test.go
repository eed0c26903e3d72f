package folders

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FolderDrop/internal/access"
	"github.com/dharsanguruparan/FolderDrop/internal/common"
	"github.com/dharsanguruparan/FolderDrop/internal/model"
	"github.com/dharsanguruparan/FolderDrop/internal/objectstore"
	"github.com/dharsanguruparan/FolderDrop/internal/repository"
	"github.com/dharsanguruparan/FolderDrop/internal/signing"
)

const masterToken = "root"

// recordingInvalidator notes which folders were invalidated.
type recordingInvalidator struct {
	calls []string
}

func (r *recordingInvalidator) OnFolderMutated(_ context.Context, folderID string) {
	r.calls = append(r.calls, folderID)
}

type stubPurger struct {
	queued []string
	err    error
}

func (s *stubPurger) EnqueuePurge(_ context.Context, folderID string) error {
	if s.err != nil {
		return s.err
	}
	s.queued = append(s.queued, folderID)
	return nil
}

// failingStore fails metadata writes for files after the object store call
// has already succeeded.
type failingStore struct {
	*repository.MemoryStore
	err error
}

func (s *failingStore) CreateFile(context.Context, *model.FileRecord) error { return s.err }
func (s *failingStore) DeleteFile(context.Context, string) error            { return s.err }

type fixture struct {
	svc   *Service
	store *repository.MemoryStore
	gw    *objectstore.MemoryGateway
	auth  *access.Service
	inval *recordingInvalidator
}

func newFixture(t *testing.T, purger Purger) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore()
	gw := objectstore.NewMemoryGateway(signing.NewSigner([]byte("k")), "http://objects.test")
	auth := access.NewService(store, access.HashToken(masterToken), logger)
	inval := &recordingInvalidator{}
	opts := Options{
		MaxFileSize:         1 << 20,
		ForbiddenExtensions: []string{".exe", ".sh"},
		UploadURLTTL:        time.Minute,
		DownloadURLTTL:      time.Minute,
	}
	return &fixture{
		svc:   NewService(store, gw, auth, inval, purger, opts, logger),
		store: store,
		gw:    gw,
		auth:  auth,
		inval: inval,
	}
}

func (f *fixture) uploadToken(t *testing.T, raw string, folders ...string) {
	t.Helper()
	_, err := f.auth.CreateCustom(context.Background(), access.CustomToken{
		Token: raw, ExpiresIn: time.Hour, MaxUses: 10, Permission: model.PermUpload, AllowedFolders: folders,
	})
	require.NoError(t, err)
}

func upload(token, folderID, name, body string) Upload {
	return Upload{
		Token:       token,
		FolderID:    folderID,
		Name:        name,
		Body:        strings.NewReader(body),
		Size:        int64(len(body)),
		ContentType: "image/png",
	}
}

func TestCreateFolders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	manual, err := f.svc.Create(ctx, "Holiday", false, "pw")
	require.NoError(t, err)
	assert.Equal(t, "Holiday", manual.ID)
	assert.True(t, manual.HasPassword())

	_, err = f.svc.Create(ctx, "Holiday", false, "")
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
	_, err = f.svc.Create(ctx, "a/b", false, "")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
	_, err = f.svc.Create(ctx, " ", false, "")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
	for _, bad := range []string{`a"b`, "a\nb", "a\rb", "tab\there", "nul\x00"} {
		_, err = f.svc.Create(ctx, bad, false, "")
		assert.ErrorIs(t, err, common.ErrInvalidArgument, "%q", bad)
	}

	auto, err := f.svc.Create(ctx, "", true, "")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), auto.ID)
	assert.Equal(t, auto.ID, auto.Name)
	assert.True(t, auto.AutoGenerated)

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSetPause(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.svc.Create(ctx, "F", false, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.SetPause(ctx, "F", model.PauseUpload, true))
	folder, _ := f.store.GetFolder(ctx, "F")
	assert.True(t, folder.UploadPaused)

	assert.ErrorIs(t, f.svc.SetPause(ctx, "F", "sideways", true), common.ErrInvalidArgument)
	assert.ErrorIs(t, f.svc.SetPause(ctx, "NOPE", model.PauseDownload, true), common.ErrNotFound)
}

func TestUploadIntoFolderInvalidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.svc.Create(ctx, "F", false, "")
	require.NoError(t, err)
	f.uploadToken(t, "up", "F")

	in := upload("up", "F", "../../etc/photo.png", "pixels")
	in.UploaderName = "ann"
	rec, err := f.svc.Upload(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, "uploads/F/photo.png", rec.StoragePath)
	assert.Equal(t, model.KindImage, rec.Kind)
	assert.Equal(t, "ann", rec.UploaderName)
	assert.Nil(t, rec.DownloadLimit)
	assert.Equal(t, []string{"F"}, f.inval.calls)

	data, ok := f.gw.Get("uploads/F/photo.png")
	require.True(t, ok)
	assert.Equal(t, "pixels", string(data))

	files, err := f.svc.Files(ctx, "F")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, rec.ID, files[0].ID)

	tok, _ := f.store.GetTokenByHash(ctx, access.HashToken("up"))
	assert.Equal(t, 1, tok.Uses)
}

func TestUploadValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.svc.Create(ctx, "F", false, "")
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "G", false, "")
	require.NoError(t, err)
	f.uploadToken(t, "up", "F")
	small := int64(3)
	_, err = f.auth.CreateCustom(ctx, access.CustomToken{
		Token: "tiny", ExpiresIn: time.Hour, MaxUses: 5, Permission: model.PermUpload,
		AllowedFolders: []string{"F"}, MaxUploadSize: &small,
	})
	require.NoError(t, err)
	_, err = f.auth.CreateCustom(ctx, access.CustomToken{
		Token: "reader", ExpiresIn: time.Hour, MaxUses: 5, Permission: model.PermDownload, AllowedFolders: []string{"F"},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   Upload
		want error
	}{
		{"forbidden extension", upload("up", "F", "run.EXE", "x"), common.ErrForbiddenType},
		{"empty file", upload("up", "F", "a.txt", ""), common.ErrEmptyUpload},
		{"over global limit", Upload{Token: "up", FolderID: "F", Name: "a", Size: 2 << 20, Body: strings.NewReader("")}, common.ErrTooLarge},
		{"over token limit", upload("tiny", "F", "a.txt", "four"), common.ErrTooLarge},
		{"wrong folder", upload("up", "G", "a.txt", "x"), common.ErrAccessDenied},
		{"download-only token", upload("reader", "F", "a.txt", "x"), common.ErrAccessDenied},
		{"unknown token", upload("nope", "F", "a.txt", "x"), common.ErrInvalidToken},
		{"missing name", upload("up", "F", " ", "x"), common.ErrInvalidArgument},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Upload(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.inval.calls, "rejected uploads never invalidate")
}

func TestUploadPaused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.svc.Create(ctx, "F", false, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.SetPause(ctx, "F", model.PauseUpload, true))
	f.uploadToken(t, "up", "F")

	_, err = f.svc.Upload(ctx, upload("up", "F", "a.png", "x"))
	assert.ErrorIs(t, err, common.ErrUploadPaused)

	_, err = f.svc.Upload(ctx, upload(masterToken, "F", "a.png", "x"))
	assert.NoError(t, err, "master bypasses the upload pause")
}

func TestLooseUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	raw, _, err := f.auth.Issue(ctx, "visitor", "share", "10.0.0.9")
	require.NoError(t, err)

	rec, err := f.svc.Upload(ctx, upload(raw, "", "notes.txt", "hello"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.StoragePath, looseNamespace))
	assert.Equal(t, "visitor", rec.UploaderName)
	assert.Empty(t, f.inval.calls)

	_, err = f.svc.Upload(ctx, upload(raw, "", "again.txt", "x"))
	assert.ErrorIs(t, err, common.ErrTokenExhausted, "issued tokens are single use")
}

func TestTicketUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.svc.Create(ctx, "F", false, "")
	require.NoError(t, err)
	f.uploadToken(t, "up", "F")

	ticket, err := f.svc.RequestUpload(ctx, "up", "F", "clip.mp4", 5)
	require.NoError(t, err)
	assert.Equal(t, "uploads/F/clip.mp4", ticket.Path)
	assert.Contains(t, ticket.URL, "signature=")

	in := Upload{Token: "up", FolderID: "F", Name: "clip.mp4", Size: 5, ContentType: "video/mp4"}
	_, err = f.svc.CompleteUpload(ctx, in)
	assert.ErrorIs(t, err, common.ErrNotFound, "object must exist before completing")
	assert.Empty(t, f.inval.calls)

	require.NoError(t, f.gw.Put(ctx, ticket.Path, bytes.NewReader([]byte("video")), 5, "video/mp4"))
	rec, err := f.svc.CompleteUpload(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, model.KindVideo, rec.Kind)
	assert.Equal(t, []string{"F"}, f.inval.calls)
}

func TestDeleteFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.svc.Create(ctx, "F", false, "")
	require.NoError(t, err)
	rec, err := f.svc.Upload(ctx, upload(masterToken, "F", "a.png", "x"))
	require.NoError(t, err)
	f.inval.calls = nil

	require.NoError(t, f.svc.DeleteFile(ctx, rec.ID))
	_, ok := f.gw.Get(rec.StoragePath)
	assert.False(t, ok)
	_, err = f.store.GetFile(ctx, rec.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, []string{"F"}, f.inval.calls)

	assert.ErrorIs(t, f.svc.DeleteFile(ctx, rec.ID), common.ErrNotFound)
}

func TestDeleteFolderPurgesInline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.svc.Create(ctx, "F", false, "")
	require.NoError(t, err)
	for _, n := range []string{"a.png", "b.png"} {
		_, err := f.svc.Upload(ctx, upload(masterToken, "F", n, "x"))
		require.NoError(t, err)
	}
	f.inval.calls = nil

	require.NoError(t, f.svc.DeleteFolder(ctx, "F"))

	keys, _ := f.gw.List(ctx, "uploads/F/")
	assert.Empty(t, keys)
	_, err = f.store.GetFolder(ctx, "F")
	assert.ErrorIs(t, err, common.ErrNotFound)
	files, _ := f.store.ListFolderFiles(ctx, "F")
	assert.Empty(t, files)
	assert.Equal(t, []string{"F", "F"}, f.inval.calls, "invalidated on delete and again after purge")
}

func TestDeleteFolderQueuesPurge(t *testing.T) {
	ctx := context.Background()
	purger := &stubPurger{}
	f := newFixture(t, purger)
	_, err := f.svc.Create(ctx, "F", false, "")
	require.NoError(t, err)
	_, err = f.svc.Upload(ctx, upload(masterToken, "F", "a.png", "x"))
	require.NoError(t, err)
	f.inval.calls = nil

	require.NoError(t, f.svc.DeleteFolder(ctx, "F"))
	assert.Equal(t, []string{"F"}, purger.queued)
	assert.Equal(t, []string{"F"}, f.inval.calls)
	_, ok := f.gw.Get("uploads/F/a.png")
	assert.True(t, ok, "objects stay until the worker purges them")

	n, err := f.svc.PurgeObjects(ctx, "F")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteFolderFallsBackWhenQueueFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubPurger{err: errors.New("redis down")})
	_, err := f.svc.Create(ctx, "F", false, "")
	require.NoError(t, err)
	_, err = f.svc.Upload(ctx, upload(masterToken, "F", "a.png", "x"))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteFolder(ctx, "F"))
	_, ok := f.gw.Get("uploads/F/a.png")
	assert.False(t, ok)
}

func TestDeleteMissingFolder(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.svc.DeleteFolder(context.Background(), "NOPE"), common.ErrNotFound)
	assert.Empty(t, f.inval.calls)
}

// Signed upload tickets are usable against the in-memory store.
func TestTicketURLAcceptsPut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.svc.Create(ctx, "F", false, "")
	require.NoError(t, err)
	ticket, err := f.svc.RequestUpload(ctx, masterToken, "F", "doc.txt", 4)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, ticket.URL, strings.NewReader("body"))
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	f.gw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	data, ok := f.gw.Get(ticket.Path)
	require.True(t, ok)
	assert.Equal(t, "body", string(data))
}

func TestMetadataFailureStillInvalidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.svc.Create(ctx, "F", false, "")
	require.NoError(t, err)
	existing, err := f.svc.Upload(ctx, upload(masterToken, "F", "a.png", "old"))
	require.NoError(t, err)
	f.inval.calls = nil

	boom := errors.New("metadata down")
	f.svc.store = &failingStore{MemoryStore: f.store, err: boom}

	_, err = f.svc.Upload(ctx, upload(masterToken, "F", "a.png", "new"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"F"}, f.inval.calls, "the overwritten object makes the archive stale")

	f.inval.calls = nil
	in := Upload{Token: masterToken, FolderID: "F", Name: "a.png", Size: 3, ContentType: "image/png"}
	_, err = f.svc.CompleteUpload(ctx, in)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"F"}, f.inval.calls)

	f.inval.calls = nil
	assert.ErrorIs(t, f.svc.DeleteFile(ctx, existing.ID), boom)
	assert.Equal(t, []string{"F"}, f.inval.calls, "the object is gone even though the record remains")
}

func TestDownload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	for _, id := range []string{"F", "G"} {
		_, err := f.svc.Create(ctx, id, false, "")
		require.NoError(t, err)
	}
	limit := 1
	in := upload(masterToken, "F", "a.png", "pixels")
	in.Title = "holiday"
	in.DownloadLimit = &limit
	rec, err := f.svc.Upload(ctx, in)
	require.NoError(t, err)

	for raw, c := range map[string]struct {
		perm    model.Permission
		folders []string
	}{
		"dl":    {model.PermDownload, []string{"F"}},
		"other": {model.PermDownload, []string{"G"}},
		"up":    {model.PermUpload, []string{"F"}},
	} {
		_, err := f.auth.CreateCustom(ctx, access.CustomToken{
			Token: raw, ExpiresIn: time.Hour, MaxUses: 10, Permission: c.perm, AllowedFolders: c.folders,
		})
		require.NoError(t, err)
	}

	_, err = f.svc.Download(ctx, "other", rec.ID)
	assert.ErrorIs(t, err, common.ErrAccessDenied, "token scoped to another folder")
	_, err = f.svc.Download(ctx, "up", rec.ID)
	assert.ErrorIs(t, err, common.ErrAccessDenied, "upload-only token")
	_, err = f.svc.Download(ctx, "nope", rec.ID)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	_, err = f.svc.Download(ctx, "dl", "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	link, err := f.svc.Download(ctx, "dl", rec.ID)
	require.NoError(t, err)
	assert.Contains(t, link.URL, "response-content-disposition")
	assert.Contains(t, link.URL, "holiday.png")
	assert.NotEmpty(t, link.PreviewURL, "images get an inline preview link")
	assert.Equal(t, 1, link.File.DownloadsDone)

	_, err = f.svc.Download(ctx, "dl", rec.ID)
	assert.ErrorIs(t, err, common.ErrDownloadLimitExceeded)
	_, err = f.svc.Download(ctx, masterToken, rec.ID)
	require.NoError(t, err, "master ignores the download limit")

	stored, _ := f.store.GetFile(ctx, rec.ID)
	assert.Equal(t, 2, stored.DownloadsDone)
}

func TestDownloadOwnerAndPause(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.svc.Create(ctx, "F", false, "")
	require.NoError(t, err)
	_, err = f.auth.CreateCustom(ctx, access.CustomToken{
		Token: "mine", ExpiresIn: time.Hour, MaxUses: 10, Permission: model.PermBoth,
	})
	require.NoError(t, err)
	_, err = f.auth.CreateCustom(ctx, access.CustomToken{
		Token: "dl", ExpiresIn: time.Hour, MaxUses: 10, Permission: model.PermDownload, AllowedFolders: []string{"F"},
	})
	require.NoError(t, err)

	note := upload("mine", "", "notes.txt", "hello")
	note.ContentType = "text/plain"
	loose, err := f.svc.Upload(ctx, note)
	require.NoError(t, err)
	link, err := f.svc.Download(ctx, "mine", loose.ID)
	require.NoError(t, err, "the uploading token may fetch its own file")
	assert.Empty(t, link.PreviewURL)
	_, err = f.svc.Download(ctx, "dl", loose.ID)
	assert.ErrorIs(t, err, common.ErrAccessDenied)

	member, err := f.svc.Upload(ctx, upload(masterToken, "F", "b.png", "x"))
	require.NoError(t, err)
	require.NoError(t, f.svc.SetPause(ctx, "F", model.PauseDownload, true))
	_, err = f.svc.Download(ctx, "dl", member.ID)
	assert.ErrorIs(t, err, common.ErrDownloadPaused)
	_, err = f.svc.Download(ctx, masterToken, member.ID)
	assert.NoError(t, err)
}
