package http

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"wallet/internal/core"
)

// maxImageBytes caps one decoded image.
const maxImageBytes = 5 << 20

var (
	errImageRef    = errors.New("image must be an http(s) URL or a base64 data URI")
	errImageSize   = fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	errImageFormat = errors.New("image must be jpeg, png, webp or gif")
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// stagedImages turns client supplied image fields into refs the media layer
// can resolve. Hosted URLs pass through. Inline images are written to temp
// files owned by the request. Nothing the client sends is ever read as a
// server path.
type stagedImages struct {
	paths []string
}

// ref validates raw and returns the matching image reference.
func (st *stagedImages) ref(raw string) (core.ImageRef, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return core.ImageRef{}, nil
	case strings.HasPrefix(strings.ToLower(raw), "data:"):
		path, err := st.stage(raw)
		if err != nil {
			return core.ImageRef{}, err
		}
		return core.ImageRef{URI: path}, nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return core.ImageRef{}, core.Validation(errImageRef)
	}
	return core.ImageRef{URI: raw}, nil
}

// stage decodes a data:<mime>;base64,<payload> URI into a temp file.
func (st *stagedImages) stage(raw string) (string, error) {
	meta, payload, ok := strings.Cut(raw[len("data:"):], ",")
	mime, enc, _ := strings.Cut(meta, ";")
	if !ok || !strings.EqualFold(enc, "base64") {
		return "", core.Validation(errImageRef)
	}
	mime = strings.ToLower(mime)
	ext, ok := imageExtensions[mime]
	if !ok {
		return "", core.Validation(errImageFormat)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > maxImageBytes+2 {
		return "", core.Validation(errImageSize)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", core.Validation(fmt.Errorf("invalid image encoding: %w", err))
	}
	if len(data) > maxImageBytes {
		return "", core.Validation(errImageSize)
	}
	if http.DetectContentType(data) != mime {
		return "", core.Validation(errImageFormat)
	}

	f, err := os.CreateTemp("", "wallet-upload-*"+ext)
	if err != nil {
		return "", core.Unavailable(err, "stage image")
	}
	st.paths = append(st.paths, f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", core.Unavailable(err, "stage image")
	}
	if err := f.Close(); err != nil {
		return "", core.Unavailable(err, "stage image")
	}
	return f.Name(), nil
}

// cleanup removes every staged file. Uploads have finished by the time the
// handler returns.
func (st *stagedImages) cleanup() {
	for _, p := range st.paths {
		_ = os.Remove(p)
	}
	st.paths = nil
}
