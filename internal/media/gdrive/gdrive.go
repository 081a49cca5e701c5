// Package gdrive hosts images in a Google Drive folder shared by link.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/drive/v3"
	goption "google.golang.org/api/option"

	"wallet/internal/media"
)

const viewURL = "https://drive.google.com/uc?export=view&id="

var _ media.Uploader = (*Client)(nil)

type Client struct {
	svc      *drive.Service
	folderID string
}

// Credentials selects the service account used for Drive calls. JSON wins
// over File when both are set.
type Credentials struct {
	JSON string
	File string
}

func (c Credentials) load() ([]byte, error) {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return []byte(c.JSON), nil
	case strings.TrimSpace(c.File) != "":
		b, err := os.ReadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
}

// New builds a Drive client from service account credentials. Extra options
// are appended after the credentials.
func New(ctx context.Context, creds Credentials, folderID string, opts ...goption.ClientOption) (*Client, error) {
	raw, err := creds.load()
	if err != nil {
		return nil, err
	}
	opts = append([]goption.ClientOption{
		goption.WithCredentialsJSON(raw),
		goption.WithScopes(drive.DriveFileScope),
	}, opts...)
	return NewWithOptions(ctx, folderID, opts...)
}

// NewWithOptions builds a client from raw client options.
func NewWithOptions(ctx context.Context, folderID string, opts ...goption.ClientOption) (*Client, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Client{svc: svc, folderID: strings.TrimSpace(folderID)}, nil
}

// Upload stores the file under the configured folder, names it after the
// logical folder, and shares it read-only with anyone holding the link.
func (c *Client) Upload(ctx context.Context, localPath, folder string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	name := filepath.Base(localPath)
	if folder != "" {
		name = folder + "_" + name
	}
	meta := &drive.File{
		Name:     name,
		MimeType: mime.TypeByExtension(strings.ToLower(filepath.Ext(localPath))),
	}
	if c.folderID != "" {
		meta.Parents = []string{c.folderID}
	}

	created, err := c.svc.Files.Create(meta).Media(f).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create drive file: %w", err)
	}

	perm := &drive.Permission{Type: "anyone", Role: "reader"}
	if _, err := c.svc.Permissions.Create(created.Id, perm).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("share drive file %s: %w", created.Id, err)
	}

	slog.DebugContext(ctx, "Image uploaded to Drive", "file_id", created.Id, "folder", folder)
	return viewURL + created.Id, nil
}
