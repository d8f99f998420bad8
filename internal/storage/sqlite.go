package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/storyforge/go-storybook-backend/internal/domain"
)

// SQLiteStore implements StoryStore on a local SQLite database via GORM.
// It is the default backend and the one used by tests.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path, applies PRAGMAs,
// installs query tracing and migrates the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		log.Warn().Err(err).Msg("gorm tracing plugin not installed")
	}

	if err := db.AutoMigrate(&domain.Story{}, &domain.StoryPage{}); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// newSQLiteStoreFromDB wraps an already-open handle; used by tests.
func newSQLiteStoreFromDB(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&domain.Story{}, &domain.StoryPage{}); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreatePendingStory(ctx context.Context, story *domain.Story) error {
	now := time.Now().UTC()
	story.CreatedAt = now
	story.UpdatedAt = now
	if story.Status == "" {
		story.Status = domain.StoryStatusPending
	}
	return s.db.WithContext(ctx).Create(story).Error
}

func (s *SQLiteStore) UpdateStoryStatus(ctx context.Context, userID, storyID string, status domain.StoryStatus) error {
	res := s.db.WithContext(ctx).
		Model(&domain.Story{}).
		Where("story_id = ? AND user_id = ?", storyID, userID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveGeneratedStory replaces the provisional title, marks the story
// COMPLETED and inserts its pages, all in one transaction.
func (s *SQLiteStore) SaveGeneratedStory(ctx context.Context, userID, storyID, title string, pages []domain.StoryPage) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Story{}).
			Where("story_id = ? AND user_id = ?", storyID, userID).
			Updates(map[string]any{
				"title":      title,
				"status":     domain.StoryStatusCompleted,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		for i := range pages {
			pages[i].StoryID = storyID
			pages[i].CreatedAt = now
			pages[i].UpdatedAt = now
		}
		if len(pages) == 0 {
			return nil
		}
		return tx.Create(&pages).Error
	})
}

func (s *SQLiteStore) GetStory(ctx context.Context, storyID string) (*domain.Story, error) {
	var st domain.Story
	err := s.db.WithContext(ctx).
		Where("story_id = ?", storyID).
		First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLiteStore) GetStoryInfo(ctx context.Context, userID, storyID string) (*domain.Story, error) {
	var st domain.Story
	err := s.db.WithContext(ctx).
		Where("story_id = ? AND user_id = ?", storyID, userID).
		First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLiteStore) ListStories(ctx context.Context, userID string) ([]domain.Story, error) {
	var out []domain.Story
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

func (s *SQLiteStore) ListPages(ctx context.Context, storyID string) ([]domain.StoryPage, error) {
	var out []domain.StoryPage
	err := s.db.WithContext(ctx).
		Where("story_id = ?", storyID).
		Order("page_number asc").
		Find(&out).Error
	return out, err
}

func (s *SQLiteStore) GetPage(ctx context.Context, storyID string, pageNumber int) (*domain.StoryPage, error) {
	var p domain.StoryPage
	err := s.db.WithContext(ctx).
		Where("story_id = ? AND page_number = ?", storyID, pageNumber).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) UpdateStoryTitle(ctx context.Context, userID, storyID, title string) error {
	res := s.db.WithContext(ctx).
		Model(&domain.Story{}).
		Where("story_id = ? AND user_id = ?", storyID, userID).
		Updates(map[string]any{
			"title":      title,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdatePageContent(ctx context.Context, storyID string, pageNumber int, upd PageContentUpdate) error {
	fields := map[string]any{}
	if upd.Text != nil {
		fields["text"] = *upd.Text
	}
	if upd.ImagePrompt != nil {
		fields["image_prompt"] = *upd.ImagePrompt
	}
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()

	res := s.db.WithContext(ctx).
		Model(&domain.StoryPage{}).
		Where("story_id = ? AND page_number = ?", storyID, pageNumber).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdatePageImageStatus(ctx context.Context, storyID string, pageNumber int, status domain.GenerationStatus, jobID string) error {
	fields := map[string]any{
		"image_generation_status": status,
		"updated_at":              time.Now().UTC(),
	}
	if jobID != "" {
		fields["image_generation_job_id"] = jobID
	}

	res := s.db.WithContext(ctx).
		Model(&domain.StoryPage{}).
		Where("story_id = ? AND page_number = ?", storyID, pageNumber).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompletePageImage writes the image location, limiter bookkeeping, job ID
// and COMPLETED status as one UPDATE, then returns the fresh row.
func (s *SQLiteStore) CompletePageImage(ctx context.Context, in CompletePageImage) (*domain.StoryPage, error) {
	res := s.db.WithContext(ctx).
		Model(&domain.StoryPage{}).
		Where("story_id = ? AND page_number = ?", in.StoryID, in.PageNumber).
		Updates(map[string]any{
			"image_url":               in.ImageURL,
			"image_key":               in.ImageKey,
			"image_generation_count":  in.ImageGenerationCount,
			"image_generation_date":   in.ImageGenerationDate,
			"last_image_generated_at": in.LastImageGeneratedAt,
			"image_generation_status": domain.GenerationCompleted,
			"image_generation_job_id": in.JobID,
			"updated_at":              time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetPage(ctx, in.StoryID, in.PageNumber)
}

func (s *SQLiteStore) DeleteStory(ctx context.Context, userID, storyID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("story_id = ? AND user_id = ?", storyID, userID).
			Delete(&domain.Story{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("story_id = ?", storyID).
			Delete(&domain.StoryPage{}).Error
	})
}

// Close closes the underlying connection pool.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
