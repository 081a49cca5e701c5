package backend

import (
	"context"

	"wallet/internal/media"
	"wallet/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store instance and optional cleanup function
type BackendResult struct {
	Store   store.Store
	Cleanup CleanupFunc
}

// Factory creates stores and image uploaders based on configuration
type Factory interface {
	// CreateBackend opens the account and transaction store named by config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	// CreateUploader returns nil when media hosting is disabled
	CreateUploader(ctx context.Context, config Config) (media.Uploader, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	DatabaseURL string

	// Media hosting
	Media                    MediaType
	CloudinaryCloudName      string
	CloudinaryUploadPreset   string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GDriveFolderID           string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// MediaType selects where receipt and account images are hosted
type MediaType string

const (
	NoMedia         MediaType = "none"
	CloudinaryMedia MediaType = "cloudinary"
	GDriveMedia     MediaType = "gdrive"
)

func (mt MediaType) IsValid() bool {
	switch mt {
	case NoMedia, CloudinaryMedia, GDriveMedia:
		return true
	default:
		return false
	}
}
