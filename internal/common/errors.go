// Package common defines the sentinel errors shared by the FolderDrop
// services and the HTTP layer. Callers match them with errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Token validation.
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenExhausted = errors.New("token already used")
	ErrRateLimited    = errors.New("rate limit exceeded, try again later")

	// Authorization and folder policy.
	ErrAccessDenied   = errors.New("access denied")
	ErrDownloadPaused = errors.New("downloads are currently paused for this folder")
	ErrUploadPaused   = errors.New("uploads are currently paused for this folder")

	// Upload validation.
	ErrForbiddenType = errors.New("file type prohibited")
	ErrTooLarge      = errors.New("file exceeds upload limit")
	ErrEmptyUpload   = errors.New("empty file")

	// Archive engine.
	ErrEmptyFolder           = errors.New("no files found in this folder")
	ErrDownloadLimitExceeded = errors.New("download limit reached")
	ErrArchiveBuildFailed    = errors.New("could not build archive")
	ErrCacheStoreFailed      = errors.New("archive cache store failed")
	ErrInfrastructure        = errors.New("storage infrastructure error")
)
