package archive

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dharsanguruparan/FolderDrop/internal/common"
	"github.com/dharsanguruparan/FolderDrop/internal/signing"
)

// LocalPath is the URL prefix fallback archives are served under.
const LocalPath = "/archives/local/"

type localArchive struct {
	folderID string
	data     []byte
}

// LocalStore keeps recently built archives in process memory so a caller
// still gets a link when writing the cache entry failed. Entries expire with
// their URLs.
type LocalStore struct {
	lru     *expirable.LRU[string, localArchive]
	signer  *signing.Signer
	baseURL string
	ttl     time.Duration
}

// NewLocalStore constructs a LocalStore holding at most size archives.
func NewLocalStore(signer *signing.Signer, baseURL string, size int, ttl time.Duration) *LocalStore {
	return &LocalStore{
		lru:     expirable.NewLRU[string, localArchive](size, nil, ttl),
		signer:  signer,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
	}
}

// Put stores data and returns a signed URL for it.
func (l *LocalStore) Put(folderID string, data []byte) string {
	id := uuid.NewString()
	l.lru.Add(id, localArchive{folderID: folderID, data: data})
	return l.signer.URL(l.baseURL+LocalPath+id, http.MethodGet, localKey(id), l.ttl, nil)
}

// Open checks the signature in query and returns the archive stored under id.
func (l *LocalStore) Open(id string, query url.Values) (string, []byte, error) {
	if err := l.signer.Check(http.MethodGet, localKey(id), query); err != nil {
		return "", nil, fmt.Errorf("%w: %w", common.ErrAccessDenied, err)
	}
	a, ok := l.lru.Get(id)
	if !ok {
		return "", nil, common.ErrNotFound
	}
	return a.folderID, a.data, nil
}

// Len reports how many archives are held.
func (l *LocalStore) Len() int {
	return l.lru.Len()
}

func localKey(id string) string {
	return strings.TrimPrefix(LocalPath, "/") + id
}
