package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/FolderDrop/internal/access"
	"github.com/dharsanguruparan/FolderDrop/internal/objectstore"
)

// DefaultBatchSize bounds how many member fetches run at once.
const DefaultBatchSize = 10

// MemberRef identifies one member object to fetch.
type MemberRef struct {
	FileID      string
	StoragePath string
	DisplayName string
	Size        int64
}

// Outcome is the result of fetching one member. Err is nil on success.
type Outcome struct {
	Member MemberRef
	Data   []byte
	Err    error
}

// FetchFunc retrieves the bytes of one member on behalf of grant.
type FetchFunc func(ctx context.Context, grant *access.Grant, m MemberRef) ([]byte, error)

// Scheduler fetches members in fixed-size batches. Batches run one after
// another; members inside a batch run concurrently.
type Scheduler struct {
	fetch     FetchFunc
	batchSize int
}

// NewScheduler constructs a Scheduler. A non-positive batchSize falls back to
// DefaultBatchSize.
func NewScheduler(fetch FetchFunc, batchSize int) *Scheduler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Scheduler{fetch: fetch, batchSize: batchSize}
}

// FetchAll returns one Outcome per member, in the same order as members.
// A failing member never stops the others.
func (s *Scheduler) FetchAll(ctx context.Context, members []MemberRef, grant *access.Grant) []Outcome {
	out := make([]Outcome, len(members))
	for start := 0; start < len(members); start += s.batchSize {
		end := min(start+s.batchSize, len(members))
		var g errgroup.Group
		g.SetLimit(s.batchSize)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				data, err := s.fetch(ctx, grant, members[i])
				out[i] = Outcome{Member: members[i], Data: data, Err: err}
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}

// DownloadCounter is the per-file download accounting consulted before each
// transfer.
type DownloadCounter interface {
	ConsumeDownload(ctx context.Context, fileID string, master bool) error
}

// SignedFetcher downloads members through short-lived signed GET URLs.
type SignedFetcher struct {
	gw      objectstore.Gateway
	counter DownloadCounter
	client  *http.Client
	ttl     time.Duration
}

// NewSignedFetcher constructs a SignedFetcher. counter may be nil to skip
// download accounting.
func NewSignedFetcher(gw objectstore.Gateway, counter DownloadCounter, urlTTL, timeout time.Duration) *SignedFetcher {
	return &SignedFetcher{
		gw:      gw,
		counter: counter,
		client:  &http.Client{Timeout: timeout},
		ttl:     urlTTL,
	}
}

// Fetch implements FetchFunc. Download-limit refusals are returned
// unwrapped so callers can tell them apart from transfer failures. A nil
// grant marks a system build and skips download accounting.
func (f *SignedFetcher) Fetch(ctx context.Context, grant *access.Grant, m MemberRef) ([]byte, error) {
	if f.counter != nil && grant != nil && m.FileID != "" {
		if err := f.counter.ConsumeDownload(ctx, m.FileID, grant.Master); err != nil {
			return nil, err
		}
	}
	u, err := f.gw.SignedGetURL(ctx, m.StoragePath, f.ttl, "")
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", m.StoragePath, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", m.StoragePath, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", m.StoragePath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: unexpected status %d", m.StoragePath, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", m.StoragePath, err)
	}
	return data, nil
}
