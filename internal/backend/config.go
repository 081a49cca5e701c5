package backend

import (
	"fmt"

	"wallet/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	mediaType := MediaType(appConfig.MediaBackend)
	if mediaType == "" {
		mediaType = NoMedia
	}
	if !mediaType.IsValid() {
		return Config{}, fmt.Errorf("invalid media backend in config: %s", appConfig.MediaBackend)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,

		Media:                    mediaType,
		CloudinaryCloudName:      appConfig.CloudinaryCloudName,
		CloudinaryUploadPreset:   appConfig.CloudinaryUploadPreset,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		GDriveFolderID:           appConfig.GDriveFolderID,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
	case MemoryBackend:
		// nothing to check, state lives for the process lifetime
	}

	switch c.Media {
	case "", NoMedia:
	case CloudinaryMedia:
		if c.CloudinaryCloudName == "" || c.CloudinaryUploadPreset == "" {
			return fmt.Errorf("cloud name and upload preset are required for cloudinary media")
		}
	case GDriveMedia:
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			return fmt.Errorf("service account JSON or file is required for gdrive media")
		}
	default:
		return fmt.Errorf("invalid media backend: %s", c.Media)
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
