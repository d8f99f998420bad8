package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/storyforge/go-storybook-backend/internal/config"
)

// LocalStore keeps illustrations on the local filesystem under a base
// directory. URLs point back into the API's image route, so no expiry
// applies. Intended for development and single-node deployments.
type LocalStore struct {
	dir      string
	baseURL  string // e.g. "/api/v1/images"
	maxBytes int
	now      func() time.Time
}

// NewLocalStore creates the directory-backed store, making the base
// directory on demand.
func NewLocalStore(cfg config.BlobConfig, apiBasePath string) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.AssetsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create assets dir: %w", err)
	}
	base := strings.TrimRight(apiBasePath, "/") + "/images"
	return &LocalStore{
		dir:      cfg.AssetsDir,
		baseURL:  base,
		maxBytes: cfg.MaxImageBytes,
		now:      time.Now,
	}, nil
}

// resolve maps a key to a path inside the base directory, rejecting
// traversal attempts.
func (l *LocalStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(clean, "..") {
		return "", ErrNotFound
	}
	return filepath.Join(l.dir, filepath.FromSlash(clean)), nil
}

func (l *LocalStore) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if err := validateUpload(in, l.maxBytes); err != nil {
		return nil, err
	}

	fileName := normalizeFileName(in.FileName, in.ContentType)
	key := BuildImageKey(in.StoryID, in.PageNumber, fileName, l.now().UTC())

	full, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image dir: %w", err)
	}
	if err := os.WriteFile(full, in.Data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}

	url, err := l.SignedURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &UploadResult{Key: key, URL: url}, nil
}

// SignedURL returns the API path the image is served from. Local URLs do
// not expire.
func (l *LocalStore) SignedURL(_ context.Context, key string) (string, error) {
	return l.baseURL + "/" + strings.TrimLeft(key, "/"), nil
}

func (l *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, string, error) {
	full, err := l.resolve(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, contentTypeForKey(key), nil
}

func (l *LocalStore) Delete(_ context.Context, key string) error {
	full, err := l.resolve(key)
	if err != nil {
		return nil
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
