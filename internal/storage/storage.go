// Package storage implements the persistence layer for stories and story
// pages behind a single StoryStore interface, with interchangeable SQLite
// (GORM) and DynamoDB backends selected by configuration.
//
// The interface is deliberately thin: no business logic, only reads, writes
// and query composition. Business rules (generation limits, job state
// transitions) live in the services layer; the store's one hard guarantee
// is that CompletePageImage applies the whole completion record in a single
// write, so a page can never show a new image URL next to stale limiter
// bookkeeping.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/storyforge/go-storybook-backend/internal/config"
	"github.com/storyforge/go-storybook-backend/internal/domain"
)

// ErrNotFound is returned when a requested story or page does not exist.
// Both backends translate their native "missing record" signals into it so
// callers can test with errors.Is regardless of the configured backend.
var ErrNotFound = errors.New("storage: not found")

// PageContentUpdate carries an edit to a page's authored fields. Nil fields
// are left untouched.
type PageContentUpdate struct {
	Text        *string
	ImagePrompt *string
}

// CompletePageImage is the full record persisted when an image-generation
// job succeeds. All fields are written in a single atomic update together
// with the COMPLETED status.
type CompletePageImage struct {
	StoryID    string
	PageNumber int
	JobID      string

	ImageURL string
	ImageKey string

	// Limiter bookkeeping approved before the generation started.
	ImageGenerationCount int
	ImageGenerationDate  string
	LastImageGeneratedAt string
}

// StoryStore is the contract for story persistence.
type StoryStore interface {
	// CreatePendingStory persists the initial story record (status PENDING)
	// before any generation work begins.
	CreatePendingStory(ctx context.Context, story *domain.Story) error

	// UpdateStoryStatus moves the story's text-generation job to status.
	UpdateStoryStatus(ctx context.Context, userID, storyID string, status domain.StoryStatus) error

	// SaveGeneratedStory stores the generated title and pages and marks the
	// story COMPLETED.
	SaveGeneratedStory(ctx context.Context, userID, storyID, title string, pages []domain.StoryPage) error

	// GetStory fetches a story by ID alone.
	GetStory(ctx context.Context, storyID string) (*domain.Story, error)

	// GetStoryInfo fetches a story by owner and ID, enforcing ownership.
	GetStoryInfo(ctx context.Context, userID, storyID string) (*domain.Story, error)

	// ListStories returns all stories owned by userID, newest first.
	ListStories(ctx context.Context, userID string) ([]domain.Story, error)

	// ListPages returns the story's pages ordered by page number.
	ListPages(ctx context.Context, storyID string) ([]domain.StoryPage, error)

	// GetPage fetches a single page by story ID and page number.
	GetPage(ctx context.Context, storyID string, pageNumber int) (*domain.StoryPage, error)

	// UpdateStoryTitle renames a story owned by userID.
	UpdateStoryTitle(ctx context.Context, userID, storyID, title string) error

	// UpdatePageContent applies an edit to a page's text and/or prompt.
	UpdatePageContent(ctx context.Context, storyID string, pageNumber int, upd PageContentUpdate) error

	// UpdatePageImageStatus moves the page's image job to status. jobID, when
	// non-empty, is recorded as the current job.
	UpdatePageImageStatus(ctx context.Context, storyID string, pageNumber int, status domain.GenerationStatus, jobID string) error

	// CompletePageImage atomically records a successful generation: image
	// location, limiter bookkeeping, job ID and COMPLETED status in one write.
	// It returns the updated page.
	CompletePageImage(ctx context.Context, in CompletePageImage) (*domain.StoryPage, error)

	// DeleteStory removes the story and all of its pages.
	DeleteStory(ctx context.Context, userID, storyID string) error

	// Close releases backend resources.
	Close() error
}

// NewStore creates a StoryStore for the configured backend.
func NewStore(cfg config.StoreConfig) (StoryStore, error) {
	switch cfg.Backend {
	case config.StoreSQLite:
		return NewSQLiteStore(cfg.DBPath)
	case config.StoreDynamoDB:
		return NewDynamoStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
