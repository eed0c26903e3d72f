// Package objectstore is the gateway to the durable object store holding
// member objects and cached folder archives. Two implementations exist: MinIO
// (any S3-compatible endpoint) and an in-memory store for tests and local runs.
package objectstore

import (
	"context"
	"io"
	"mime"
	"time"
)

// Gateway is the primitive object store surface the rest of FolderDrop relies on.
type Gateway interface {
	// Exists is a body-less existence check. Not-found is (false, nil); any other
	// failure is returned as an error.
	Exists(ctx context.Context, path string) (bool, error)
	// SignedGetURL mints a time-limited GET url. A non-empty disposition is
	// sent back as the Content-Disposition response header.
	SignedGetURL(ctx context.Context, path string, expiry time.Duration, disposition string) (string, error)
	SignedPutURL(ctx context.Context, path string, expiry time.Duration) (string, error)
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	// Delete is idempotent: deleting a missing object succeeds.
	Delete(ctx context.Context, path string) error
	DeleteMany(ctx context.Context, paths []string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// AttachmentDisposition formats a Content-Disposition value that downloads
// the object as filename. Quotes are escaped and non-ASCII or control bytes
// are percent-encoded, so the header cannot be split or truncated.
func AttachmentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
