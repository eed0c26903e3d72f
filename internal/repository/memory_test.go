package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FolderDrop/internal/common"
	"github.com/dharsanguruparan/FolderDrop/internal/model"
)

func TestMemoryStoreFolders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateFolder(ctx, &model.Folder{ID: "ABC123", Name: "ABC123", ArchivePassword: "pw"}))
	assert.ErrorIs(t, s.CreateFolder(ctx, &model.Folder{ID: "ABC123"}), common.ErrAlreadyExists)

	require.NoError(t, s.SetFolderPause(ctx, "ABC123", model.PauseDownload, true))
	f, err := s.GetFolder(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, f.DownloadPaused)
	assert.False(t, f.UploadPaused)
	assert.Equal(t, "pw", f.ArchivePassword)

	assert.ErrorIs(t, s.SetFolderPause(ctx, "nope", model.PauseUpload, true), common.ErrNotFound)
	_, err = s.GetFolder(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemoryStoreListFolderFilesKeepsUploadOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"3", "1", "2"} {
		require.NoError(t, s.CreateFile(ctx, &model.FileRecord{ID: id, FolderID: "F", OriginalName: id + ".txt"}))
	}
	require.NoError(t, s.CreateFile(ctx, &model.FileRecord{ID: "x", FolderID: "G"}))

	files, err := s.ListFolderFiles(ctx, "F")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "3", files[0].ID)
	assert.Equal(t, "1", files[1].ID)
	assert.Equal(t, "2", files[2].ID)

	require.NoError(t, s.DeleteFile(ctx, "1"))
	files, _ = s.ListFolderFiles(ctx, "F")
	assert.Len(t, files, 2)
	assert.ErrorIs(t, s.DeleteFile(ctx, "1"), common.ErrNotFound)
}

func TestMemoryStoreDeleteFolderCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateFolder(ctx, &model.Folder{ID: "F"}))
	require.NoError(t, s.CreateFile(ctx, &model.FileRecord{ID: "a", FolderID: "F"}))
	require.NoError(t, s.CreateFile(ctx, &model.FileRecord{ID: "b", FolderID: "G"}))

	require.NoError(t, s.DeleteFolder(ctx, "F"))

	_, err := s.GetFile(ctx, "a")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.GetFile(ctx, "b")
	assert.NoError(t, err)
	assert.ErrorIs(t, s.DeleteFolder(ctx, "F"), common.ErrNotFound)
}

func TestMemoryStoreConsumeDownload(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	limit := 1
	require.NoError(t, s.CreateFile(ctx, &model.FileRecord{ID: "once", DownloadLimit: &limit}))
	require.NoError(t, s.CreateFile(ctx, &model.FileRecord{ID: "free"}))

	require.NoError(t, s.ConsumeDownload(ctx, "once", false))
	assert.ErrorIs(t, s.ConsumeDownload(ctx, "once", false), common.ErrDownloadLimitExceeded)
	require.NoError(t, s.ConsumeDownload(ctx, "once", true), "master bypasses the limit")

	for i := 0; i < 5; i++ {
		require.NoError(t, s.ConsumeDownload(ctx, "free", false))
	}
	f, _ := s.GetFile(ctx, "free")
	assert.Equal(t, 5, f.DownloadsDone)

	assert.ErrorIs(t, s.ConsumeDownload(ctx, "missing", false), common.ErrNotFound)
}

func TestMemoryStoreTokens(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tok := &model.Token{ID: "t1", Hash: "h1", IPAddress: "10.0.0.1", AllowedFolders: []string{"F"}}
	require.NoError(t, s.CreateToken(ctx, tok))
	assert.ErrorIs(t, s.CreateToken(ctx, &model.Token{ID: "t2", Hash: "h1"}), common.ErrAlreadyExists)

	got, err := s.GetTokenByHash(ctx, "h1")
	require.NoError(t, err)
	got.AllowedFolders[0] = "mutated"

	require.NoError(t, s.IncrementTokenUses(ctx, "t1"))
	again, _ := s.GetTokenByHash(ctx, "h1")
	assert.Equal(t, 1, again.Uses)
	assert.Equal(t, []string{"F"}, again.AllowedFolders)

	n, err := s.CountTokensSince(ctx, "10.0.0.1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again.AllowedFolders = append(again.AllowedFolders, "G")
	again.MaxUses = 9
	require.NoError(t, s.UpdateToken(ctx, again))
	byID, err := s.GetToken(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"F", "G"}, byID.AllowedFolders)
	assert.Equal(t, 9, byID.MaxUses)
	assert.ErrorIs(t, s.UpdateToken(ctx, &model.Token{ID: "ghost"}), common.ErrNotFound)

	require.NoError(t, s.DeleteToken(ctx, "t1"))
	_, err = s.GetTokenByHash(ctx, "h1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, s.DeleteToken(ctx, "t1"), common.ErrNotFound)
}

func TestMemoryStoreDeleteExpiredTokens(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	require.NoError(t, s.CreateToken(ctx, &model.Token{ID: "old", Hash: "h1", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, s.CreateToken(ctx, &model.Token{ID: "new", Hash: "h2", ExpiresAt: now.Add(time.Hour)}))

	n, err := s.DeleteExpiredTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := s.ListTokens(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].ID)
}
