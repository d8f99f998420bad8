// Package services – StoryService
//
// This file implements the StoryService, which manages the lifecycle of
// stories: creating the pending record, running text generation in the
// background, polling status, listing, editing, page regeneration, and
// deletion. Ownership rules are enforced here; persistence details live in
// the storage layer.
//
// Text generation follows a PENDING → GENERATING → COMPLETED/FAILED state
// machine. The pending record is persisted before generation starts so the
// client can poll immediately; any generation failure moves the story to
// FAILED rather than leaving it stuck in GENERATING.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/storyforge/go-storybook-backend/internal/domain"
	"github.com/storyforge/go-storybook-backend/internal/providers"
	"github.com/storyforge/go-storybook-backend/internal/storage"
)

// PageEdit is one page's requested changes in an EditStory call.
// Nil fields are left untouched.
type PageEdit struct {
	PageNumber  int
	Text        *string
	ImagePrompt *string
}

// StoryService provides story-level operations. Generation runs in a
// background goroutine; everything else is synchronous.
type StoryService struct {
	Store storage.StoryStore
	Text  providers.TextGenerator

	// MaxPages caps totalPages in a creation request.
	MaxPages int
	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
	// TitleLocale selects the casing rules for provisional titles.
	TitleLocale language.Tag

	// GenerationTimeout bounds one background text-generation run.
	GenerationTimeout time.Duration

	// spawn runs the background generation; tests replace it to run inline.
	spawn func(fn func())
}

// NewStoryService constructs a StoryService with sane defaults.
func NewStoryService(store storage.StoryStore, text providers.TextGenerator, maxPages int) *StoryService {
	if maxPages <= 0 {
		maxPages = 20
	}
	return &StoryService{
		Store:             store,
		Text:              text,
		MaxPages:          maxPages,
		TitleMaxLen:       120,
		TitleLocale:       language.English,
		GenerationTimeout: 5 * time.Minute,
		spawn:             func(fn func()) { go fn() },
	}
}

// Create validates the request, persists the pending story and kicks off
// background generation. The returned story is in state PENDING; the
// client polls Status until it turns COMPLETED or FAILED.
func (s *StoryService) Create(ctx context.Context, userID string, req providers.StoryRequest) (*domain.Story, error) {
	tr := otel.Tracer("services/StoryService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if req.TotalPages < 1 || req.TotalPages > s.MaxPages {
		return nil, ErrInvalidPageCount
	}

	story := &domain.Story{
		StoryID:   uuid.NewString(),
		UserID:    userID,
		Title:     s.provisionalTitle(req.Prompt),
		Status:    domain.StoryStatusPending,
		TargetAge: req.TargetAge,
	}
	if err := s.Store.CreatePendingStory(ctx, story); err != nil {
		return nil, err
	}

	s.spawn(func() { s.processGeneration(story.StoryID, userID, req) })

	return story, nil
}

// processGeneration is the background text-generation job. It moves the
// story to GENERATING, calls the provider, persists the result and marks
// the story COMPLETED; any failure ends in FAILED.
func (s *StoryService) processGeneration(storyID, userID string, req providers.StoryRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), s.GenerationTimeout)
	defer cancel()

	tr := otel.Tracer("services/StoryService")
	ctx, span := tr.Start(ctx, "processGeneration",
		trace.WithAttributes(attribute.String("story.id", storyID)),
	)
	defer span.End()

	if err := s.Store.UpdateStoryStatus(ctx, userID, storyID, domain.StoryStatusGenerating); err != nil {
		log.Error().Err(err).Str("story_id", storyID).Msg("failed to mark story generating")
		return
	}

	generated, err := s.Text.GenerateStory(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("story_id", storyID).Msg("story generation failed")
		s.markFailed(ctx, userID, storyID)
		return
	}

	pages := make([]domain.StoryPage, 0, len(generated.Pages))
	for _, p := range generated.Pages {
		pages = append(pages, domain.StoryPage{
			PageID:      uuid.NewString(),
			PageNumber:  p.PageNumber,
			Text:        p.Text,
			ImagePrompt: p.ImagePrompt,
		})
	}

	if err := s.Store.SaveGeneratedStory(ctx, userID, storyID, s.clip(generated.Title), pages); err != nil {
		log.Error().Err(err).Str("story_id", storyID).Msg("failed to persist generated story")
		s.markFailed(ctx, userID, storyID)
		return
	}

	log.Info().Str("story_id", storyID).Int("pages", len(pages)).Msg("story generated")
}

// markFailed is best-effort; its own failure is only logged.
func (s *StoryService) markFailed(ctx context.Context, userID, storyID string) {
	if err := s.Store.UpdateStoryStatus(ctx, userID, storyID, domain.StoryStatusFailed); err != nil {
		log.Error().Err(err).Str("story_id", storyID).Msg("failed to mark story failed")
	}
}

// Get returns the story and, once text generation has completed, its pages.
// Before completion the page slice is empty.
func (s *StoryService) Get(ctx context.Context, storyID string) (*domain.Story, []domain.StoryPage, error) {
	story, err := s.Store.GetStory(ctx, storyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrStoryNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	if story.Status != domain.StoryStatusCompleted {
		return story, nil, nil
	}
	pages, err := s.Store.ListPages(ctx, storyID)
	if err != nil {
		return nil, nil, err
	}
	return story, pages, nil
}

// List returns all stories owned by userID, newest first.
func (s *StoryService) List(ctx context.Context, userID string) ([]domain.Story, error) {
	return s.Store.ListStories(ctx, userID)
}

// Status returns the story record for polling, enforcing ownership.
func (s *StoryService) Status(ctx context.Context, userID, storyID string) (*domain.Story, error) {
	story, err := s.Store.GetStoryInfo(ctx, userID, storyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrStoryNotFound
	}
	return story, err
}

// Edit applies a title change and/or page edits. The story must belong to
// userID; page edits target pages by number.
func (s *StoryService) Edit(ctx context.Context, userID, storyID string, title *string, edits []PageEdit) error {
	tr := otel.Tracer("services/StoryService")
	ctx, span := tr.Start(ctx, "Edit",
		trace.WithAttributes(attribute.String("story.id", storyID)),
	)
	defer span.End()

	if _, err := s.Store.GetStoryInfo(ctx, userID, storyID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrStoryNotFound
		}
		return err
	}

	if title != nil {
		t := strings.TrimSpace(*title)
		if t != "" {
			if err := s.Store.UpdateStoryTitle(ctx, userID, storyID, s.clip(t)); err != nil {
				return err
			}
		}
	}

	for _, e := range edits {
		upd := storage.PageContentUpdate{Text: e.Text, ImagePrompt: e.ImagePrompt}
		err := s.Store.UpdatePageContent(ctx, storyID, e.PageNumber, upd)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrPageNotFound
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RegeneratePage asks the text provider for a replacement page that fits
// the existing story, and persists it. The page's illustration prompt is
// replaced along with the text; any stored image stays until regenerated.
func (s *StoryService) RegeneratePage(ctx context.Context, userID, storyID string, pageNumber int, instructions string) (*domain.StoryPage, error) {
	tr := otel.Tracer("services/StoryService")
	ctx, span := tr.Start(ctx, "RegeneratePage",
		trace.WithAttributes(
			attribute.String("story.id", storyID),
			attribute.Int("page.number", pageNumber),
		),
	)
	defer span.End()

	story, err := s.Store.GetStoryInfo(ctx, userID, storyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrStoryNotFound
	}
	if err != nil {
		return nil, err
	}
	if story.Status != domain.StoryStatusCompleted {
		return nil, ErrStoryNotReady
	}

	pages, err := s.Store.ListPages(ctx, storyID)
	if err != nil {
		return nil, err
	}

	generated := &providers.GeneratedStory{
		Title:     story.Title,
		TargetAge: story.TargetAge,
	}
	found := false
	for _, p := range pages {
		generated.Pages = append(generated.Pages, providers.GeneratedPage{
			PageNumber:  p.PageNumber,
			Text:        p.Text,
			ImagePrompt: p.ImagePrompt,
		})
		if p.PageNumber == pageNumber {
			found = true
		}
	}
	if !found {
		return nil, ErrPageNotFound
	}

	newPage, err := s.Text.RegeneratePage(ctx, generated, pageNumber, instructions)
	if err != nil {
		return nil, err
	}

	upd := storage.PageContentUpdate{Text: &newPage.Text, ImagePrompt: &newPage.ImagePrompt}
	if err := s.Store.UpdatePageContent(ctx, storyID, pageNumber, upd); err != nil {
		return nil, err
	}
	return s.Store.GetPage(ctx, storyID, pageNumber)
}

// Delete removes the story and its pages.
func (s *StoryService) Delete(ctx context.Context, userID, storyID string) error {
	err := s.Store.DeleteStory(ctx, userID, storyID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrStoryNotFound
	}
	return err
}

// provisionalTitle derives a placeholder title from the prompt: title-cased
// and clipped. It is replaced by the generated title on completion.
func (s *StoryService) provisionalTitle(prompt string) string {
	caser := cases.Title(s.titleLocaleOrDefault())
	return s.clip(caser.String(strings.ToLower(prompt)))
}

func (s *StoryService) titleLocaleOrDefault() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}

// clip truncates a title to the configured maximum rune length.
func (s *StoryService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}
