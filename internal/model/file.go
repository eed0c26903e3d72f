// Package model contains the struct definitions shared across packages.
package model

import (
	"strings"
	"time"
)

// FileKind is the coarse content class shown by the admin views.
type FileKind string

const (
	KindImage FileKind = "image"
	KindVideo FileKind = "video"
	KindOther FileKind = "other"
)

// KindFromContentType classifies a MIME type.
func KindFromContentType(contentType string) FileKind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return KindImage
	case strings.HasPrefix(contentType, "video/"):
		return KindVideo
	default:
		return KindOther
	}
}

// FileRecord holds metadata about one member object stored under a folder.
type FileRecord struct {
	ID           string   `json:"id"`
	FolderID     string   `json:"folderId,omitempty"`
	StoragePath  string   `json:"-"`
	OriginalName string   `json:"originalName"`
	Title        string   `json:"title,omitempty"`
	Size         int64    `json:"size"`
	ContentType  string   `json:"contentType"`
	Kind         FileKind `json:"kind"`
	TokenHash    string   `json:"-"`
	UploaderName string   `json:"uploaderName,omitempty"`
	Purpose      string   `json:"purpose,omitempty"`
	IPAddress    string   `json:"ipAddress,omitempty"`
	UserAgent    string   `json:"userAgent,omitempty"`
	// DownloadLimit is nil for unlimited files.
	DownloadLimit *int       `json:"downloadLimit,omitempty"`
	DownloadsDone int        `json:"downloadsDone"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	UploadedAt    time.Time  `json:"uploadedAt"`
}

// DisplayName is the entry name used inside folder archives.
func (f *FileRecord) DisplayName() string {
	if f.OriginalName != "" {
		return f.OriginalName
	}
	return f.ID
}

// LimitReached reports whether a non-master download would exceed the limit.
func (f *FileRecord) LimitReached() bool {
	return f.DownloadLimit != nil && f.DownloadsDone >= *f.DownloadLimit
}

// MemberPath returns the storage path of an object inside a folder namespace.
func MemberPath(folderID, name string) string {
	return MemberPrefix(folderID) + name
}

// MemberPrefix is the namespace every member object of a folder lives under.
func MemberPrefix(folderID string) string {
	return "uploads/" + folderID + "/"
}
