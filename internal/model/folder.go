package model

import "time"

// PauseKind selects which folder direction a pause toggle applies to.
type PauseKind string

const (
	PauseUpload   PauseKind = "upload"
	PauseDownload PauseKind = "download"
)

// Folder groups member objects and is the unit of access control and archival.
type Folder struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CreatedAt       time.Time `json:"createdAt"`
	AutoGenerated   bool      `json:"autoGenerated"`
	ArchivePassword string    `json:"-"`
	UploadPaused    bool      `json:"uploadPaused"`
	DownloadPaused  bool      `json:"downloadPaused"`
}

// HasPassword reports whether archives of this folder are encrypted.
func (f *Folder) HasPassword() bool {
	return f.ArchivePassword != ""
}
