package backend

import (
	"context"
	"fmt"

	"wallet/internal/log"
	"wallet/internal/media"
	"wallet/internal/media/cloudinary"
	"wallet/internal/media/gdrive"
	"wallet/internal/storage"
	"wallet/internal/storage/postgres"
	"wallet/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	st, err := postgres.Open(ctx, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
	}

	f.logger.Info("Initialized postgres backend")

	return &BackendResult{Store: st, Cleanup: st.Close}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	st := memory.New()

	f.logger.Warn("Initialized memory backend, data will not survive a restart")

	return &BackendResult{Store: st, Cleanup: st.Close}, nil
}

// CreateUploader implements Factory.CreateUploader
func (f *DefaultFactory) CreateUploader(ctx context.Context, config Config) (media.Uploader, error) {
	switch config.Media {
	case "", NoMedia:
		f.logger.Info("Image hosting disabled, only remote image URLs are accepted")
		return nil, nil
	case CloudinaryMedia:
		c, err := cloudinary.New(config.CloudinaryCloudName, config.CloudinaryUploadPreset)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
		}
		f.logger.Info("Initialized cloudinary image hosting", "cloud_name", config.CloudinaryCloudName)
		return c, nil
	case GDriveMedia:
		c, err := gdrive.New(ctx, gdrive.Credentials{
			JSON: config.GoogleServiceAccountJSON,
			File: config.GoogleServiceAccountFile,
		}, config.GDriveFolderID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize google drive: %w", err)
		}
		f.logger.Info("Initialized google drive image hosting", "folder_id", config.GDriveFolderID)
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported media backend: %s", config.Media)
	}
}
