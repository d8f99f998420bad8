// Package blob stores generated page illustrations and hands out URLs for
// them. Two backends exist: S3 (presigned GET URLs) and a local directory
// (served back through the API), selected by configuration.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/storyforge/go-storybook-backend/internal/config"
)

// Typed failures callers can branch on. Anything else is a backend error.
var (
	// ErrUnsupportedImageType is returned for content types outside the
	// jpeg/png/webp allowlist.
	ErrUnsupportedImageType = errors.New("blob: unsupported image type")

	// ErrImageTooLarge is returned when an upload exceeds the size cap.
	ErrImageTooLarge = errors.New("blob: image too large")

	// ErrNotFound is returned when a key has no stored object.
	ErrNotFound = errors.New("blob: not found")
)

// UploadInput describes one illustration to store.
type UploadInput struct {
	StoryID     string
	PageNumber  int
	FileName    string // extension appended from ContentType when absent
	ContentType string
	Data        []byte
}

// UploadResult is the stored object's key and a URL a client can fetch it
// from. For S3 the URL is presigned and expires; for the local backend it is
// a stable API path.
type UploadResult struct {
	Key string
	URL string
}

// Store is the illustration blob store.
type Store interface {
	// Upload validates and stores the image, returning its key and URL.
	Upload(ctx context.Context, in UploadInput) (*UploadResult, error)

	// SignedURL returns a fresh fetch URL for an existing key.
	SignedURL(ctx context.Context, key string) (string, error)

	// Open streams the object back, returning the reader and content type.
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// NewStore creates a Store for the configured backend. awsRegion and
// awsEndpoint only apply to S3; apiBasePath is the prefix local URLs are
// served under.
func NewStore(cfg config.BlobConfig, awsRegion, awsEndpoint, apiBasePath string) (Store, error) {
	switch cfg.Backend {
	case config.BlobS3:
		return NewS3Store(cfg, awsRegion, awsEndpoint)
	case config.BlobLocal:
		return NewLocalStore(cfg, apiBasePath)
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", cfg.Backend)
	}
}
