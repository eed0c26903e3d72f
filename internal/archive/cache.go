// Package archive builds one downloadable zip per folder, keeps it in the
// object store as a cache entry and drops that entry whenever the folder's
// membership changes.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dharsanguruparan/FolderDrop/internal/common"
	"github.com/dharsanguruparan/FolderDrop/internal/objectstore"
)

const (
	cacheNamespace     = "zips/"
	archiveContentType = "application/zip"
)

// CachePath derives the object path of a folder's cached archive. Lookup,
// Store and Invalidate all go through it.
func CachePath(folderID string) string {
	return cacheNamespace + folderID + ".zip"
}

// Cache is the per-folder archive cache. Presence of the object at
// CachePath is the only hit signal.
type Cache struct {
	gw  objectstore.Gateway
	ttl time.Duration
}

// NewCache constructs a Cache whose signed URLs live for ttl.
func NewCache(gw objectstore.Gateway, ttl time.Duration) *Cache {
	return &Cache{gw: gw, ttl: ttl}
}

// Lookup reports whether a cached archive exists. Store errors other than
// not-found come back wrapped in common.ErrInfrastructure.
func (c *Cache) Lookup(ctx context.Context, folderID string) (bool, error) {
	ok, err := c.gw.Exists(ctx, CachePath(folderID))
	if err != nil {
		return false, fmt.Errorf("%w: look up archive %s: %w", common.ErrInfrastructure, folderID, err)
	}
	return ok, nil
}

// SignedURL mints a download link for the cached archive with an attachment
// disposition named after the folder.
func (c *Cache) SignedURL(ctx context.Context, folderID string) (string, error) {
	disposition := objectstore.AttachmentDisposition(folderID + ".zip")
	u, err := c.gw.SignedGetURL(ctx, CachePath(folderID), c.ttl, disposition)
	if err != nil {
		return "", fmt.Errorf("%w: sign archive %s: %w", common.ErrInfrastructure, folderID, err)
	}
	return u, nil
}

// Store writes (or overwrites) the cached archive.
func (c *Cache) Store(ctx context.Context, folderID string, data []byte) error {
	err := c.gw.Put(ctx, CachePath(folderID), bytes.NewReader(data), int64(len(data)), archiveContentType)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", common.ErrCacheStoreFailed, folderID, err)
	}
	return nil
}

// Invalidate deletes the cached archive. A missing entry is not an error.
func (c *Cache) Invalidate(ctx context.Context, folderID string) error {
	if err := c.gw.Delete(ctx, CachePath(folderID)); err != nil {
		return fmt.Errorf("invalidate archive %s: %w", folderID, err)
	}
	archiveInvalidationsTotal.Inc()
	return nil
}
