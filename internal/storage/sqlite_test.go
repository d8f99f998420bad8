package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/go-storybook-backend/internal/config"
	"github.com/storyforge/go-storybook-backend/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(t.TempDir() + "/stories.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedStory(t *testing.T, s *SQLiteStore, userID string) *domain.Story {
	t.Helper()
	story := &domain.Story{
		StoryID: uuid.NewString(),
		UserID:  userID,
		Title:   "a brave little fox",
	}
	require.NoError(t, s.CreatePendingStory(context.Background(), story))
	return story
}

func seedPages(t *testing.T, s *SQLiteStore, story *domain.Story, n int) {
	t.Helper()
	pages := make([]domain.StoryPage, 0, n)
	for i := 1; i <= n; i++ {
		pages = append(pages, domain.StoryPage{
			PageNumber:  i,
			PageID:      uuid.NewString(),
			Text:        "once upon a time",
			ImagePrompt: "a fox in a forest",
		})
	}
	require.NoError(t, s.SaveGeneratedStory(context.Background(), story.UserID, story.StoryID, "The Brave Little Fox", pages))
}

func TestSQLiteStore_StoryLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	story := seedStory(t, s, "user-1")

	got, err := s.GetStoryInfo(ctx, "user-1", story.StoryID)
	require.NoError(t, err)
	assert.Equal(t, domain.StoryStatusPending, got.Status)
	assert.Equal(t, "a brave little fox", got.Title)

	require.NoError(t, s.UpdateStoryStatus(ctx, "user-1", story.StoryID, domain.StoryStatusGenerating))

	seedPages(t, s, story, 3)

	got, err = s.GetStory(ctx, story.StoryID)
	require.NoError(t, err)
	assert.Equal(t, domain.StoryStatusCompleted, got.Status)
	assert.Equal(t, "The Brave Little Fox", got.Title)

	pages, err := s.ListPages(ctx, story.StoryID)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, 3, pages[2].PageNumber)
}

func TestSQLiteStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetStory(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetStoryInfo(ctx, "user-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetPage(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateStoryStatus(ctx, "user-1", "missing", domain.StoryStatusFailed)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdatePageImageStatus(ctx, "missing", 1, domain.GenerationPending, "job-1")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.DeleteStory(ctx, "user-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_OwnershipEnforced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	story := seedStory(t, s, "user-1")

	_, err := s.GetStoryInfo(ctx, "user-2", story.StoryID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateStoryTitle(ctx, "user-2", story.StoryID, "stolen")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.DeleteStory(ctx, "user-2", story.StoryID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListStoriesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := seedStory(t, s, "user-1")
	second := seedStory(t, s, "user-1")
	seedStory(t, s, "user-2")

	stories, err := s.ListStories(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stories, 2)
	ids := []string{stories[0].StoryID, stories[1].StoryID}
	assert.Contains(t, ids, first.StoryID)
	assert.Contains(t, ids, second.StoryID)
}

func TestSQLiteStore_UpdatePageContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	story := seedStory(t, s, "user-1")
	seedPages(t, s, story, 2)

	text := "a new beginning"
	require.NoError(t, s.UpdatePageContent(ctx, story.StoryID, 1, PageContentUpdate{Text: &text}))

	p, err := s.GetPage(ctx, story.StoryID, 1)
	require.NoError(t, err)
	assert.Equal(t, "a new beginning", p.Text)
	assert.Equal(t, "a fox in a forest", p.ImagePrompt, "untouched field must survive a partial update")

	prompt := "a fox by the river"
	require.NoError(t, s.UpdatePageContent(ctx, story.StoryID, 2, PageContentUpdate{ImagePrompt: &prompt}))

	p, err = s.GetPage(ctx, story.StoryID, 2)
	require.NoError(t, err)
	assert.Equal(t, "once upon a time", p.Text)
	assert.Equal(t, "a fox by the river", p.ImagePrompt)

	// No fields: no-op, not an error.
	require.NoError(t, s.UpdatePageContent(ctx, story.StoryID, 1, PageContentUpdate{}))
}

func TestSQLiteStore_CompletePageImage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	story := seedStory(t, s, "user-1")
	seedPages(t, s, story, 1)

	require.NoError(t, s.UpdatePageImageStatus(ctx, story.StoryID, 1, domain.GenerationPending, "job-1"))

	p, err := s.GetPage(ctx, story.StoryID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.GenerationPending, p.ImageGenerationStatus)
	assert.Equal(t, "job-1", p.ImageGenerationJobID)

	updated, err := s.CompletePageImage(ctx, CompletePageImage{
		StoryID:              story.StoryID,
		PageNumber:           1,
		JobID:                "job-1",
		ImageURL:             "https://assets.example/page-1.png",
		ImageKey:             "stories/s/pages/page-1/img.png",
		ImageGenerationCount: 1,
		ImageGenerationDate:  "2024-01-01",
		LastImageGeneratedAt: "2024-01-01T10:00:00Z",
	})
	require.NoError(t, err)

	// Everything lands together: location, status, job and bookkeeping.
	assert.Equal(t, domain.GenerationCompleted, updated.ImageGenerationStatus)
	assert.Equal(t, "https://assets.example/page-1.png", updated.ImageURL)
	assert.Equal(t, "stories/s/pages/page-1/img.png", updated.ImageKey)
	assert.Equal(t, 1, updated.ImageGenerationCount)
	assert.Equal(t, "2024-01-01", updated.ImageGenerationDate)
	assert.Equal(t, "2024-01-01T10:00:00Z", updated.LastImageGeneratedAt)
	assert.Equal(t, "job-1", updated.ImageGenerationJobID)

	_, err = s.CompletePageImage(ctx, CompletePageImage{StoryID: story.StoryID, PageNumber: 99})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_DeleteStoryRemovesPages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	story := seedStory(t, s, "user-1")
	seedPages(t, s, story, 2)

	require.NoError(t, s.DeleteStory(ctx, "user-1", story.StoryID))

	_, err := s.GetStory(ctx, story.StoryID)
	assert.ErrorIs(t, err, ErrNotFound)

	pages, err := s.ListPages(ctx, story.StoryID)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestNewStore_Factory(t *testing.T) {
	s, err := NewStore(config.StoreConfig{Backend: config.StoreSQLite, DBPath: t.TempDir() + "/f.db"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = NewStore(config.StoreConfig{Backend: "mongodb"})
	assert.Error(t, err)
}
