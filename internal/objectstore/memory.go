package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dharsanguruparan/FolderDrop/internal/signing"
)

// ObjectsPath is the URL prefix MemoryGateway serves signed requests under.
const ObjectsPath = "/objects/"

type memObject struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// MemoryGateway is an in-process object store. Its signed URLs point back at
// the gateway itself, which serves them as an http.Handler, so code that
// fetches over HTTP works unchanged against it.
type MemoryGateway struct {
	mu      sync.RWMutex
	objects map[string]memObject
	signer  *signing.Signer
	baseURL string
}

// NewMemoryGateway constructs a MemoryGateway whose URLs start at baseURL
// (scheme and host, no trailing slash).
func NewMemoryGateway(signer *signing.Signer, baseURL string) *MemoryGateway {
	return &MemoryGateway{
		objects: make(map[string]memObject),
		signer:  signer,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// SetBaseURL changes the host signed URLs point at; tests call it once the
// httptest server address is known.
func (m *MemoryGateway) SetBaseURL(baseURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseURL = strings.TrimRight(baseURL, "/")
}

func (m *MemoryGateway) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *MemoryGateway) SignedGetURL(_ context.Context, path string, expiry time.Duration, disposition string) (string, error) {
	extra := url.Values{}
	if disposition != "" {
		extra.Set("response-content-disposition", disposition)
	}
	return m.signer.URL(m.objectURL(path), http.MethodGet, path, expiry, extra), nil
}

func (m *MemoryGateway) SignedPutURL(_ context.Context, path string, expiry time.Duration) (string, error) {
	return m.signer.URL(m.objectURL(path), http.MethodPut, path, expiry, nil), nil
}

func (m *MemoryGateway) Put(_ context.Context, path string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read object body: %w", err)
	}
	m.store(path, data, contentType)
	return nil
}

func (m *MemoryGateway) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *MemoryGateway) DeleteMany(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := m.Delete(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryGateway) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0)
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Get returns a copy of an object's bytes.
func (m *MemoryGateway) Get(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// ServeHTTP answers signed GET and PUT requests under ObjectsPath.
func (m *MemoryGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, ObjectsPath)
	if path == "" || path == r.URL.Path {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet, http.MethodPut:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := m.signer.Check(r.Method, path, r.URL.Query()); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	if r.Method == http.MethodPut {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		m.store(path, data, r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		return
	}
	m.mu.RLock()
	obj, ok := m.objects[path]
	m.mu.RUnlock()
	if !ok {
		http.Error(w, "NoSuchKey", http.StatusNotFound)
		return
	}
	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	if d := r.URL.Query().Get("response-content-disposition"); d != "" {
		w.Header().Set("Content-Disposition", d)
	}
	http.ServeContent(w, r, path, obj.modTime, bytes.NewReader(obj.data))
}

func (m *MemoryGateway) store(path string, data []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = memObject{data: data, contentType: contentType, modTime: time.Now().UTC()}
}

func (m *MemoryGateway) objectURL(path string) string {
	m.mu.RLock()
	base := m.baseURL
	m.mu.RUnlock()
	return base + (&url.URL{Path: ObjectsPath + path}).EscapedPath()
}
