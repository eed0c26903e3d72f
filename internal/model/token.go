package model

import (
	"slices"
	"time"
)

// Permission scopes what a token may do inside its allowed folders.
type Permission string

const (
	PermUpload   Permission = "upload"
	PermDownload Permission = "download"
	PermBoth     Permission = "both"
)

// Allows reports whether p grants the requested permission.
func (p Permission) Allows(want Permission) bool {
	return p == PermBoth || p == want
}

// Valid reports whether p is one of the known permissions.
func (p Permission) Valid() bool {
	switch p {
	case PermUpload, PermDownload, PermBoth:
		return true
	}
	return false
}

// Token is an access token record. Only the sha256 hash of the raw token is
// persisted.
type Token struct {
	ID             string     `json:"id"`
	Hash           string     `json:"-"`
	Name           string     `json:"name"`
	Purpose        string     `json:"purpose,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	MaxUses        int        `json:"maxUses"`
	Uses           int        `json:"uses"`
	IPAddress      string     `json:"ipAddress,omitempty"`
	Permission     Permission `json:"permission"`
	AllowedFolders []string   `json:"allowedFolders,omitempty"`
	// MaxUploadSize is nil when uploads are unlimited.
	MaxUploadSize *int64 `json:"maxUploadSize,omitempty"`
}

// AllowsFolder reports whether folderID is inside the token's scope.
func (t *Token) AllowsFolder(folderID string) bool {
	return slices.Contains(t.AllowedFolders, folderID)
}
