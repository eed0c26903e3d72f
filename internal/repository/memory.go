package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/FolderDrop/internal/common"
	"github.com/dharsanguruparan/FolderDrop/internal/model"
)

// MemoryStore provides an in-memory metadata store guarded by an RWMutex.
// Records are copied on the way in and on the way out so callers can never
// mutate internal state.
type MemoryStore struct {
	mu      sync.RWMutex
	folders map[string]*model.Folder
	files   map[string]*model.FileRecord
	// order keeps file ids in insertion order for deterministic listing.
	order  []string
	tokens map[string]*model.Token
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		folders: make(map[string]*model.Folder),
		files:   make(map[string]*model.FileRecord),
		tokens:  make(map[string]*model.Token),
	}
}

func (m *MemoryStore) CreateFolder(_ context.Context, f *model.Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.folders[f.ID]; ok {
		return fmt.Errorf("folder %s: %w", f.ID, common.ErrAlreadyExists)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	c := *f
	m.folders[f.ID] = &c
	return nil
}

func (m *MemoryStore) GetFolder(_ context.Context, id string) (*model.Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.folders[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := *f
	return &c, nil
}

func (m *MemoryStore) ListFolders(_ context.Context) ([]model.Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Folder, 0, len(m.folders))
	for _, f := range m.folders {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) SetFolderPause(_ context.Context, id string, kind model.PauseKind, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[id]
	if !ok {
		return common.ErrNotFound
	}
	switch kind {
	case model.PauseUpload:
		f.UploadPaused = paused
	case model.PauseDownload:
		f.DownloadPaused = paused
	default:
		return fmt.Errorf("unknown pause kind %q", kind)
	}
	return nil
}

func (m *MemoryStore) DeleteFolder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.folders[id]; !ok {
		return common.ErrNotFound
	}
	delete(m.folders, id)
	kept := m.order[:0]
	for _, fid := range m.order {
		if m.files[fid].FolderID == id {
			delete(m.files, fid)
			continue
		}
		kept = append(kept, fid)
	}
	m.order = kept
	return nil
}

func (m *MemoryStore) CreateFile(_ context.Context, f *model.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[f.ID]; ok {
		return fmt.Errorf("file %s: %w", f.ID, common.ErrAlreadyExists)
	}
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}
	m.files[f.ID] = copyFile(f)
	m.order = append(m.order, f.ID)
	return nil
}

func (m *MemoryStore) GetFile(_ context.Context, id string) (*model.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyFile(f), nil
}

func (m *MemoryStore) ListFolderFiles(_ context.Context, folderID string) ([]model.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.FileRecord
	for _, id := range m.order {
		if f := m.files[id]; f.FolderID == folderID {
			out = append(out, *copyFile(f))
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteFile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return common.ErrNotFound
	}
	delete(m.files, id)
	for i, fid := range m.order {
		if fid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) ConsumeDownload(_ context.Context, fileID string, master bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok {
		return common.ErrNotFound
	}
	if !master && f.LimitReached() {
		return common.ErrDownloadLimitExceeded
	}
	f.DownloadsDone++
	return nil
}

func (m *MemoryStore) CreateToken(_ context.Context, t *model.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tokens {
		if existing.Hash == t.Hash {
			return fmt.Errorf("token: %w", common.ErrAlreadyExists)
		}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.tokens[t.ID] = copyToken(t)
	return nil
}

func (m *MemoryStore) GetToken(_ context.Context, id string) (*model.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyToken(t), nil
}

func (m *MemoryStore) ListTokens(_ context.Context) ([]model.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Token, 0, len(m.tokens))
	for _, t := range m.tokens {
		out = append(out, *copyToken(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateToken(_ context.Context, t *model.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tokens[t.ID]
	if !ok {
		return common.ErrNotFound
	}
	existing.ExpiresAt = t.ExpiresAt
	existing.MaxUses = t.MaxUses
	existing.Uses = t.Uses
	existing.AllowedFolders = append([]string(nil), t.AllowedFolders...)
	return nil
}

func (m *MemoryStore) GetTokenByHash(_ context.Context, hash string) (*model.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tokens {
		if t.Hash == hash {
			return copyToken(t), nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *MemoryStore) IncrementTokenUses(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return common.ErrNotFound
	}
	t.Uses++
	return nil
}

func (m *MemoryStore) CountTokensSince(_ context.Context, ip string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.tokens {
		if t.IPAddress == ip && t.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[id]; !ok {
		return common.ErrNotFound
	}
	delete(m.tokens, id)
	return nil
}

func (m *MemoryStore) DeleteExpiredTokens(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.tokens {
		if t.ExpiresAt.Before(before) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func copyFile(f *model.FileRecord) *model.FileRecord {
	c := *f
	if f.DownloadLimit != nil {
		limit := *f.DownloadLimit
		c.DownloadLimit = &limit
	}
	if f.ExpiresAt != nil {
		exp := *f.ExpiresAt
		c.ExpiresAt = &exp
	}
	return &c
}

func copyToken(t *model.Token) *model.Token {
	c := *t
	c.AllowedFolders = append([]string(nil), t.AllowedFolders...)
	if t.MaxUploadSize != nil {
		size := *t.MaxUploadSize
		c.MaxUploadSize = &size
	}
	return &c
}
