// Package media hosts receipt and account images on an external service.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wallet/internal/core"
)

// Folders used by the ledger and account service.
const (
	FolderTransactions = "transactions"
	FolderAccounts     = "accounts"
)

// ErrNoUploader is returned when a local image is attached but no hosting
// backend is configured.
var ErrNoUploader = errors.New("image hosting not configured")

// Uploader stores a local file and returns a durable URL for it.
type Uploader interface {
	Upload(ctx context.Context, localPath, folder string) (url string, err error)
}

// Resolve turns ref into a URL: hosted URLs pass through, empty refs stay
// empty, local files are uploaded into folder. A local ref is a server path;
// it must come from the server itself, never from a client.
func Resolve(ctx context.Context, up Uploader, ref core.ImageRef, folder string) (string, error) {
	uri := strings.TrimSpace(ref.URI)
	switch {
	case uri == "":
		return "", nil
	case ref.IsRemote():
		return uri, nil
	case up == nil:
		return "", ErrNoUploader
	}
	url, err := up.Upload(ctx, strings.TrimPrefix(uri, "file://"), folder)
	if err != nil {
		return "", fmt.Errorf("upload %s image: %w", folder, err)
	}
	return url, nil
}
