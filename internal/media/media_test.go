package media

import (
	"context"
	"errors"
	"testing"

	"wallet/internal/core"
)

type stubUploader struct {
	gotPath, gotFolder string
	err                error
}

func (s *stubUploader) Upload(_ context.Context, localPath, folder string) (string, error) {
	s.gotPath, s.gotFolder = localPath, folder
	if s.err != nil {
		return "", s.err
	}
	return "https://cdn.test/x.jpg", nil
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		ref      string
		up       *stubUploader
		want     string
		wantPath string
		wantErr  error
	}{
		{name: "empty", ref: "  ", up: &stubUploader{}, want: ""},
		{name: "remote passes through", ref: "https://img.example.com/a.png", up: &stubUploader{}, want: "https://img.example.com/a.png"},
		{name: "local uploaded", ref: "file:///tmp/a.jpg", up: &stubUploader{}, want: "https://cdn.test/x.jpg", wantPath: "/tmp/a.jpg"},
		{name: "no uploader", ref: "/tmp/a.jpg", wantErr: ErrNoUploader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var up Uploader
			if tt.up != nil {
				up = tt.up
			}
			got, err := Resolve(ctx, up, core.ImageRef{URI: tt.ref}, FolderTransactions)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("url = %q, want %q", got, tt.want)
			}
			if tt.wantPath != "" && (tt.up.gotPath != tt.wantPath || tt.up.gotFolder != FolderTransactions) {
				t.Errorf("uploaded %q to %q", tt.up.gotPath, tt.up.gotFolder)
			}
		})
	}
}

func TestResolveUploadError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Resolve(context.Background(), &stubUploader{err: boom}, core.ImageRef{URI: "/tmp/a.jpg"}, FolderAccounts)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped upload error, got %v", err)
	}
}
