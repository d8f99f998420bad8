// Package services – ImageService
//
// This file implements the per-page image-generation workflow. Each
// request starts a fresh job: the page's status is set to PENDING with a
// new job ID, the generation limiter is consulted synchronously, and on
// approval the provider call, blob upload and completion write run in the
// background. A job only ever ends COMPLETED or FAILED; re-generation is a
// new job, never a retry of an old one.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/storyforge/go-storybook-backend/internal/blob"
	"github.com/storyforge/go-storybook-backend/internal/domain"
	"github.com/storyforge/go-storybook-backend/internal/limits"
	"github.com/storyforge/go-storybook-backend/internal/providers"
	"github.com/storyforge/go-storybook-backend/internal/storage"
)

// ImageJob is the response to a job-start request.
type ImageJob struct {
	JobID   string                  `json:"jobId"`
	Status  domain.GenerationStatus `json:"status"`
	Message string                  `json:"message"`
}

// ImageStatus is the job-polling response. The limiter bookkeeping fields
// let clients show "2 of 2 generations used today" without a second call.
type ImageStatus struct {
	Status               domain.GenerationStatus `json:"status"`
	JobID                string                  `json:"jobId,omitempty"`
	ImageURL             string                  `json:"imageUrl,omitempty"`
	ImageGenerationCount int                     `json:"imageGenerationCount"`
	LastGeneratedAt      string                  `json:"lastGeneratedAt,omitempty"`
}

// BatchResult is the outcome of a generate-all-images run.
type BatchResult struct {
	Pages     []domain.StoryPage `json:"pages"`
	Generated int                `json:"generated"`
}

// ImageService coordinates page illustration generation: limiter checks,
// provider calls, blob storage and the job state machine.
type ImageService struct {
	Store    storage.StoryStore
	Images   providers.ImageGenerator
	Blobs    blob.Store
	Limiter  limits.Limiter
	Sessions *providers.SessionStore

	// ContextPages bounds how many prior illustrations are replayed to the
	// provider as conversation context. Zero disables context.
	ContextPages int

	// JobTimeout bounds one background generation run.
	JobTimeout time.Duration

	now   func() time.Time
	spawn func(fn func())
}

// NewImageService constructs an ImageService.
func NewImageService(store storage.StoryStore, images providers.ImageGenerator, blobs blob.Store, limiter limits.Limiter, sessions *providers.SessionStore, contextPages int) *ImageService {
	return &ImageService{
		Store:        store,
		Images:       images,
		Blobs:        blobs,
		Limiter:      limiter,
		Sessions:     sessions,
		ContextPages: contextPages,
		JobTimeout:   5 * time.Minute,
		now:          time.Now,
		spawn:        func(fn func()) { go fn() },
	}
}

// Start begins an image-generation job for one page.
//
// The PENDING record is persisted before the limiter runs, so a rejected
// attempt is visible as a FAILED job rather than vanishing. Limiter
// rejections return the *limits.LimitError synchronously; an approved job
// continues in the background and the caller polls Status.
func (s *ImageService) Start(ctx context.Context, storyID string, pageNumber int) (*ImageJob, error) {
	tr := otel.Tracer("services/ImageService")
	ctx, span := tr.Start(ctx, "Start",
		trace.WithAttributes(
			attribute.String("story.id", storyID),
			attribute.Int("page.number", pageNumber),
		),
	)
	defer span.End()

	page, err := s.Store.GetPage(ctx, storyID, pageNumber)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	if err := s.Store.UpdatePageImageStatus(ctx, storyID, pageNumber, domain.GenerationPending, jobID); err != nil {
		return nil, err
	}

	plan, err := s.Limiter.Evaluate(page.GenerationMetadata(), s.now())
	if err != nil {
		// Best-effort: the rejected job must not stay PENDING.
		s.failJob(ctx, storyID, pageNumber, jobID)
		return nil, err
	}

	s.spawn(func() { s.process(storyID, pageNumber, jobID, plan) })

	return &ImageJob{
		JobID:   jobID,
		Status:  domain.GenerationPending,
		Message: "Image generation started. Poll the image-status endpoint to check progress.",
	}, nil
}

// process is the background image job. Whatever happens, the job ends in a
// terminal state: completed holds off the deferred FAILED write once the
// atomic completion update has landed.
func (s *ImageService) process(storyID string, pageNumber int, jobID string, plan *limits.Plan) {
	ctx, cancel := context.WithTimeout(context.Background(), s.JobTimeout)
	defer cancel()

	tr := otel.Tracer("services/ImageService")
	ctx, span := tr.Start(ctx, "process",
		trace.WithAttributes(
			attribute.String("story.id", storyID),
			attribute.String("job.id", jobID),
		),
	)
	defer span.End()

	completed := false
	defer func() {
		if !completed {
			s.failJob(ctx, storyID, pageNumber, jobID)
		}
	}()

	page, err := s.Store.GetPage(ctx, storyID, pageNumber)
	if err != nil {
		log.Error().Err(err).Str("story_id", storyID).Int("page", pageNumber).Msg("image job: page fetch failed")
		return
	}
	if page.ImagePrompt == "" {
		log.Error().Str("story_id", storyID).Int("page", pageNumber).Msg("image job: page has no prompt")
		return
	}

	session := s.Sessions.GetOrCreate(storyID)
	contextImages := s.buildContext(ctx, session, storyID, pageNumber)

	generated, err := s.Images.GenerateImage(ctx, providers.ImageRequest{
		Prompt:  page.ImagePrompt,
		Enhance: true,
		Context: contextImages,
	})
	if err != nil {
		log.Error().Err(err).Str("story_id", storyID).Int("page", pageNumber).Msg("image job: provider call failed")
		return
	}

	upload, err := s.Blobs.Upload(ctx, blob.UploadInput{
		StoryID:     storyID,
		PageNumber:  pageNumber,
		FileName:    fmt.Sprintf("%s_%d", storyID, pageNumber),
		ContentType: generated.ContentType,
		Data:        generated.Data,
	})
	if err != nil {
		log.Error().Err(err).Str("story_id", storyID).Int("page", pageNumber).Msg("image job: blob upload failed")
		return
	}

	// One write carries the image location, limiter bookkeeping, job ID and
	// COMPLETED status; if it fails the job fails and the orphaned blob is
	// left for a later generation to supersede.
	_, err = s.Store.CompletePageImage(ctx, storage.CompletePageImage{
		StoryID:              storyID,
		PageNumber:           pageNumber,
		JobID:                jobID,
		ImageURL:             upload.URL,
		ImageKey:             upload.Key,
		ImageGenerationCount: plan.NextCount,
		ImageGenerationDate:  plan.GenerationDate,
		LastImageGeneratedAt: plan.LastGeneratedAtISO,
	})
	if err != nil {
		log.Error().Err(err).Str("story_id", storyID).Int("page", pageNumber).Msg("image job: completion write failed")
		return
	}

	session.AddImage(providers.ContextImage{MimeType: generated.ContentType, Data: generated.Data}, s.ContextPages)
	completed = true
	log.Info().Str("story_id", storyID).Int("page", pageNumber).Str("job_id", jobID).Msg("image generated")
}

// buildContext collects up to ContextPages prior illustrations, preferring
// the in-memory session and falling back to stored blobs.
func (s *ImageService) buildContext(ctx context.Context, session *providers.Session, storyID string, pageNumber int) []providers.ContextImage {
	if s.ContextPages <= 0 {
		return nil
	}
	if imgs := session.Snapshot(); len(imgs) > 0 {
		return imgs
	}

	pages, err := s.Store.ListPages(ctx, storyID)
	if err != nil {
		log.Warn().Err(err).Str("story_id", storyID).Msg("context build: page list failed")
		return nil
	}

	var out []providers.ContextImage
	for _, p := range pages {
		if p.PageNumber >= pageNumber || p.ImageKey == "" {
			continue
		}
		rc, ct, err := s.Blobs.Open(ctx, p.ImageKey)
		if err != nil {
			log.Warn().Err(err).Str("key", p.ImageKey).Msg("context build: blob open failed")
			continue
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			continue
		}
		out = append(out, providers.ContextImage{MimeType: ct, Data: data})
		if len(out) >= s.ContextPages {
			break
		}
	}
	return out
}

// failJob is best-effort; its own failure is only logged.
func (s *ImageService) failJob(ctx context.Context, storyID string, pageNumber int, jobID string) {
	if err := s.Store.UpdatePageImageStatus(ctx, storyID, pageNumber, domain.GenerationFailed, jobID); err != nil {
		log.Error().Err(err).Str("story_id", storyID).Int("page", pageNumber).Msg("failed to mark image job failed")
	}
}

// Status reports the page's current image job state. A fresh signed URL is
// returned for completed jobs so expired S3 links heal on poll.
func (s *ImageService) Status(ctx context.Context, storyID string, pageNumber int) (*ImageStatus, error) {
	page, err := s.Store.GetPage(ctx, storyID, pageNumber)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, err
	}

	st := &ImageStatus{
		Status:               page.ImageGenerationStatus,
		JobID:                page.ImageGenerationJobID,
		ImageGenerationCount: page.ImageGenerationCount,
		LastGeneratedAt:      page.LastImageGeneratedAt,
	}
	if page.ImageGenerationStatus == domain.GenerationCompleted {
		st.ImageURL = page.ImageURL
		if page.ImageKey != "" {
			if url, err := s.Blobs.SignedURL(ctx, page.ImageKey); err == nil {
				st.ImageURL = url
			}
		}
	}
	return st, nil
}

// GenerateAll generates illustrations for every page of a story in one
// synchronous pass, sharing a consistency prefix so characters look the
// same across pages. Pages run in order; a failed page is skipped and
// returned unchanged rather than aborting the rest. The limiter applies
// per page, and a rejection counts as that page's failure.
func (s *ImageService) GenerateAll(ctx context.Context, storyID, characterDescription string) (*BatchResult, error) {
	tr := otel.Tracer("services/ImageService")
	ctx, span := tr.Start(ctx, "GenerateAll",
		trace.WithAttributes(attribute.String("story.id", storyID)),
	)
	defer span.End()

	story, err := s.Store.GetStory(ctx, storyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrStoryNotFound
	}
	if err != nil {
		return nil, err
	}

	pages, err := s.Store.ListPages(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	prefix := providers.ConsistencyPrefix(story.Title, characterDescription)
	session := s.Sessions.GetOrCreate(storyID)

	result := &BatchResult{Pages: make([]domain.StoryPage, 0, len(pages))}
	for _, page := range pages {
		if page.ImagePrompt == "" {
			result.Pages = append(result.Pages, page)
			continue
		}

		updated, err := s.generateOne(ctx, session, &page, prefix)
		if err != nil {
			log.Warn().Err(err).Str("story_id", storyID).Int("page", page.PageNumber).Msg("batch: page generation failed")
			result.Pages = append(result.Pages, page)
			continue
		}
		result.Pages = append(result.Pages, *updated)
		result.Generated++
	}

	s.Sessions.SweepExpired()
	return result, nil
}

// generateOne runs the synchronous single-page flow used by GenerateAll.
func (s *ImageService) generateOne(ctx context.Context, session *providers.Session, page *domain.StoryPage, prefix string) (*domain.StoryPage, error) {
	plan, err := s.Limiter.Evaluate(page.GenerationMetadata(), s.now())
	if err != nil {
		return nil, err
	}

	generated, err := s.Images.GenerateImage(ctx, providers.ImageRequest{
		Prompt:  providers.ScenePrompt(prefix, page.ImagePrompt),
		Enhance: false, // the prefix already styles the prompt
		Context: session.Snapshot(),
	})
	if err != nil {
		return nil, err
	}

	upload, err := s.Blobs.Upload(ctx, blob.UploadInput{
		StoryID:     page.StoryID,
		PageNumber:  page.PageNumber,
		FileName:    fmt.Sprintf("%s_%d", page.StoryID, page.PageNumber),
		ContentType: generated.ContentType,
		Data:        generated.Data,
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.Store.CompletePageImage(ctx, storage.CompletePageImage{
		StoryID:              page.StoryID,
		PageNumber:           page.PageNumber,
		JobID:                uuid.NewString(),
		ImageURL:             upload.URL,
		ImageKey:             upload.Key,
		ImageGenerationCount: plan.NextCount,
		ImageGenerationDate:  plan.GenerationDate,
		LastImageGeneratedAt: plan.LastGeneratedAtISO,
	})
	if err != nil {
		return nil, err
	}

	session.AddImage(providers.ContextImage{MimeType: generated.ContentType, Data: generated.Data}, s.ContextPages)
	return updated, nil
}

// Regenerate starts a fresh job for a page using its stored prompt plus
// extra instructions. It reuses the normal job machinery, so limiter rules
// and the state machine apply unchanged.
func (s *ImageService) Regenerate(ctx context.Context, storyID string, pageNumber int, instructions string) (*ImageJob, error) {
	page, err := s.Store.GetPage(ctx, storyID, pageNumber)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, err
	}
	if page.ImagePrompt == "" {
		return nil, ErrMissingImagePrompt
	}

	if instructions != "" {
		prompt := providers.RegenerationPrompt(page.ImagePrompt, instructions)
		if err := s.Store.UpdatePageContent(ctx, storyID, pageNumber, storage.PageContentUpdate{ImagePrompt: &prompt}); err != nil {
			return nil, err
		}
	}
	return s.Start(ctx, storyID, pageNumber)
}
