package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/storyforge/go-storybook-backend/internal/blob"
	"github.com/storyforge/go-storybook-backend/internal/domain"
	"github.com/storyforge/go-storybook-backend/internal/limits"
	"github.com/storyforge/go-storybook-backend/internal/providers"
)

func uploadFor(storyID string, pageNumber int, data []byte) blob.UploadInput {
	return blob.UploadInput{
		StoryID:     storyID,
		PageNumber:  pageNumber,
		FileName:    "seed",
		ContentType: "image/png",
		Data:        data,
	}
}

var testClock = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

// newImageService wires an ImageService with a fixed clock and inline spawn.
func newImageService(store *fakeStore, images *fakeImages, blobs *fakeBlob) *ImageService {
	s := NewImageService(store, images, blobs, limits.New(2, 15*time.Minute), providers.NewSessionStore(time.Hour), 3)
	s.now = func() time.Time { return testClock }
	s.spawn = func(fn func()) { fn() }
	return s
}

func seedImageStory(store *fakeStore, pages int) {
	_ = store.CreatePendingStory(context.Background(), &domain.Story{
		StoryID: "s1", UserID: "u1", Title: "The Brave Little Fox",
		Status: domain.StoryStatusCompleted,
	})
	for n := 1; n <= pages; n++ {
		store.seedPage("s1", domain.StoryPage{
			PageNumber:  n,
			PageID:      "p" + string(rune('0'+n)),
			Text:        "text",
			ImagePrompt: "a fox on page " + string(rune('0'+n)),
		})
	}
}

func TestImageService_StartSuccess(t *testing.T) {
	store := newFakeStore()
	images := &fakeImages{}
	blobs := newFakeBlob()
	s := newImageService(store, images, blobs)
	seedImageStory(store, 1)

	job, err := s.Start(context.Background(), "s1", 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.JobID == "" {
		t.Error("empty job id")
	}
	if job.Status != domain.GenerationPending {
		t.Errorf("job status = %q", job.Status)
	}

	// The background job ran inline; the page carries the atomic completion.
	page, _ := store.GetPage(context.Background(), "s1", 1)
	if page.ImageGenerationStatus != domain.GenerationCompleted {
		t.Fatalf("page status = %q", page.ImageGenerationStatus)
	}
	if page.ImageGenerationJobID != job.JobID {
		t.Errorf("job id = %q, want %q", page.ImageGenerationJobID, job.JobID)
	}
	if page.ImageKey == "" || !strings.HasPrefix(page.ImageURL, "https://assets.test/") {
		t.Errorf("image location = %q / %q", page.ImageURL, page.ImageKey)
	}
	if page.ImageGenerationCount != 1 {
		t.Errorf("count = %d", page.ImageGenerationCount)
	}
	if page.ImageGenerationDate != "2024-01-01" {
		t.Errorf("date = %q", page.ImageGenerationDate)
	}
	if page.LastImageGeneratedAt != "2024-01-01T10:00:00Z" {
		t.Errorf("last generated at = %q", page.LastImageGeneratedAt)
	}

	if len(images.requests) != 1 || !images.requests[0].Enhance {
		t.Errorf("requests = %+v", images.requests)
	}
}

func TestImageService_StartPageNotFound(t *testing.T) {
	s := newImageService(newFakeStore(), &fakeImages{}, newFakeBlob())

	if _, err := s.Start(context.Background(), "s1", 1); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestImageService_StartLimiterRejection(t *testing.T) {
	store := newFakeStore()
	images := &fakeImages{}
	s := newImageService(store, images, newFakeBlob())
	seedImageStory(store, 1)
	store.seedPage("s1", domain.StoryPage{
		PageNumber:  1,
		ImagePrompt: "a fox",
		PageGenerationMetadata: domain.PageGenerationMetadata{
			ImageGenerationCount: 2,
			ImageGenerationDate:  "2024-01-01",
		},
	})

	_, err := s.Start(context.Background(), "s1", 1)
	var lerr *limits.LimitError
	if !errors.As(err, &lerr) {
		t.Fatalf("err = %v, want *limits.LimitError", err)
	}
	if lerr.StatusCode != 429 {
		t.Errorf("status code = %d", lerr.StatusCode)
	}

	// The rejected job must land in FAILED, never stay PENDING.
	page, _ := store.GetPage(context.Background(), "s1", 1)
	if page.ImageGenerationStatus != domain.GenerationFailed {
		t.Errorf("page status = %q; want FAILED", page.ImageGenerationStatus)
	}
	if len(images.requests) != 0 {
		t.Errorf("provider was called %d times", len(images.requests))
	}
}

func TestImageService_StartProviderFailure(t *testing.T) {
	store := newFakeStore()
	images := &fakeImages{failWhen: func(providers.ImageRequest) error {
		return errors.New("model refused")
	}}
	s := newImageService(store, images, newFakeBlob())
	seedImageStory(store, 1)

	if _, err := s.Start(context.Background(), "s1", 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	page, _ := store.GetPage(context.Background(), "s1", 1)
	if page.ImageGenerationStatus != domain.GenerationFailed {
		t.Errorf("page status = %q", page.ImageGenerationStatus)
	}
	if page.ImageURL != "" {
		t.Errorf("image url = %q", page.ImageURL)
	}
}

func TestImageService_StartBlobFailure(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlob()
	blobs.failPut = errors.New("bucket unavailable")
	s := newImageService(store, &fakeImages{}, blobs)
	seedImageStory(store, 1)

	if _, err := s.Start(context.Background(), "s1", 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	page, _ := store.GetPage(context.Background(), "s1", 1)
	if page.ImageGenerationStatus != domain.GenerationFailed {
		t.Errorf("page status = %q", page.ImageGenerationStatus)
	}
}

func TestImageService_StartCompletionWriteFailure(t *testing.T) {
	store := newFakeStore()
	store.failCompleteWrite = errors.New("write conflict")
	s := newImageService(store, &fakeImages{}, newFakeBlob())
	seedImageStory(store, 1)

	if _, err := s.Start(context.Background(), "s1", 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	page, _ := store.GetPage(context.Background(), "s1", 1)
	if page.ImageGenerationStatus != domain.GenerationFailed {
		t.Errorf("page status = %q", page.ImageGenerationStatus)
	}
	if page.ImageGenerationCount != 0 || page.ImageURL != "" {
		t.Errorf("bookkeeping leaked onto the page: %+v", page)
	}
}

func TestImageService_StartEmptyPrompt(t *testing.T) {
	store := newFakeStore()
	images := &fakeImages{}
	s := newImageService(store, images, newFakeBlob())
	seedImageStory(store, 1)
	store.seedPage("s1", domain.StoryPage{PageNumber: 1, Text: "text only"})

	if _, err := s.Start(context.Background(), "s1", 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	page, _ := store.GetPage(context.Background(), "s1", 1)
	if page.ImageGenerationStatus != domain.GenerationFailed {
		t.Errorf("page status = %q", page.ImageGenerationStatus)
	}
	if len(images.requests) != 0 {
		t.Errorf("provider was called for a promptless page")
	}
}

func TestImageService_SessionContextCarriesForward(t *testing.T) {
	store := newFakeStore()
	images := &fakeImages{}
	s := newImageService(store, images, newFakeBlob())
	seedImageStory(store, 2)

	if _, err := s.Start(context.Background(), "s1", 1); err != nil {
		t.Fatalf("Start page 1: %v", err)
	}
	if _, err := s.Start(context.Background(), "s1", 2); err != nil {
		t.Fatalf("Start page 2: %v", err)
	}

	if len(images.requests) != 2 {
		t.Fatalf("requests = %d", len(images.requests))
	}
	if len(images.requests[0].Context) != 0 {
		t.Errorf("page 1 carried %d context images", len(images.requests[0].Context))
	}
	if len(images.requests[1].Context) != 1 {
		t.Errorf("page 2 carried %d context images, want 1", len(images.requests[1].Context))
	}
	if string(images.requests[1].Context[0].Data) != "image-1" {
		t.Errorf("page 2 context = %q", images.requests[1].Context[0].Data)
	}
}

func TestImageService_ContextFallsBackToBlobs(t *testing.T) {
	store := newFakeStore()
	images := &fakeImages{}
	blobs := newFakeBlob()
	s := newImageService(store, images, blobs)
	seedImageStory(store, 2)

	// Page 1 already has a stored image, but the in-memory session is cold
	// (e.g. after a restart).
	res, err := blobs.Upload(context.Background(), uploadFor("s1", 1, []byte("stored-1")))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	store.seedPage("s1", domain.StoryPage{
		PageNumber: 1, ImagePrompt: "a fox", ImageKey: res.Key, ImageURL: res.URL,
		ImageGenerationStatus: domain.GenerationCompleted,
	})

	if _, err := s.Start(context.Background(), "s1", 2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(images.requests) != 1 {
		t.Fatalf("requests = %d", len(images.requests))
	}
	if len(images.requests[0].Context) != 1 || string(images.requests[0].Context[0].Data) != "stored-1" {
		t.Errorf("context = %+v", images.requests[0].Context)
	}
}

func TestImageService_Status(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlob()
	s := newImageService(store, &fakeImages{}, blobs)
	seedImageStory(store, 1)

	st, err := s.Status(context.Background(), "s1", 1)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.ImageURL != "" {
		t.Errorf("url before completion = %q", st.ImageURL)
	}
	// A zero count is still part of the payload; clients render "0 of 2 used".
	if body, _ := json.Marshal(st); !strings.Contains(string(body), `"imageGenerationCount":0`) {
		t.Errorf("zero count dropped from payload: %s", body)
	}

	if _, err := s.Start(context.Background(), "s1", 1); err != nil {
		t.Fatalf("Start: %v", err)
	}

	st, err = s.Status(context.Background(), "s1", 1)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != domain.GenerationCompleted {
		t.Errorf("status = %q", st.Status)
	}
	// Completed jobs get a freshly signed URL, not the stored one.
	if !strings.HasPrefix(st.ImageURL, "https://assets.test/signed/") {
		t.Errorf("url = %q", st.ImageURL)
	}
	if st.ImageGenerationCount != 1 || st.LastGeneratedAt != "2024-01-01T10:00:00Z" {
		t.Errorf("bookkeeping = %d / %q", st.ImageGenerationCount, st.LastGeneratedAt)
	}

	if _, err := s.Status(context.Background(), "s1", 9); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestImageService_GenerateAll(t *testing.T) {
	store := newFakeStore()
	images := &fakeImages{}
	s := newImageService(store, images, newFakeBlob())
	seedImageStory(store, 3)

	res, err := s.GenerateAll(context.Background(), "s1", "a small red fox with a blue scarf")
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	if res.Generated != 3 || len(res.Pages) != 3 {
		t.Fatalf("generated = %d, pages = %d", res.Generated, len(res.Pages))
	}
	for _, p := range res.Pages {
		if p.ImageGenerationStatus != domain.GenerationCompleted || p.ImageURL == "" {
			t.Errorf("page %d = %+v", p.PageNumber, p)
		}
	}

	// Every prompt shares the consistency prefix and names the character.
	for i, req := range images.requests {
		if !strings.Contains(req.Prompt, "The Brave Little Fox") {
			t.Errorf("request %d prompt missing title: %q", i, req.Prompt)
		}
		if !strings.Contains(req.Prompt, "a small red fox with a blue scarf") {
			t.Errorf("request %d prompt missing character: %q", i, req.Prompt)
		}
		if !strings.Contains(req.Prompt, "Scene: ") {
			t.Errorf("request %d prompt missing scene: %q", i, req.Prompt)
		}
		if req.Enhance {
			t.Errorf("request %d should not re-enhance a prefixed prompt", i)
		}
	}
	// Later pages see earlier pages' images as context.
	if len(images.requests[2].Context) != 2 {
		t.Errorf("page 3 context = %d images", len(images.requests[2].Context))
	}
}

func TestImageService_GenerateAllPartialFailure(t *testing.T) {
	store := newFakeStore()
	images := &fakeImages{failWhen: func(req providers.ImageRequest) error {
		if strings.Contains(req.Prompt, "page 2") {
			return errors.New("model refused")
		}
		return nil
	}}
	s := newImageService(store, images, newFakeBlob())
	seedImageStory(store, 3)

	res, err := s.GenerateAll(context.Background(), "s1", "")
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	if res.Generated != 2 {
		t.Errorf("generated = %d, want 2", res.Generated)
	}
	if res.Pages[0].ImageURL == "" || res.Pages[2].ImageURL == "" {
		t.Errorf("pages 1 and 3 should have images")
	}
	// The failed page comes back unchanged rather than aborting the batch.
	if res.Pages[1].ImageURL != "" || res.Pages[1].ImageGenerationStatus != "" {
		t.Errorf("page 2 = %+v", res.Pages[1])
	}
}

func TestImageService_GenerateAllLimiterCountsAsFailure(t *testing.T) {
	store := newFakeStore()
	images := &fakeImages{}
	s := newImageService(store, images, newFakeBlob())
	seedImageStory(store, 2)
	store.seedPage("s1", domain.StoryPage{
		PageNumber:  1,
		ImagePrompt: "a fox on page 1",
		PageGenerationMetadata: domain.PageGenerationMetadata{
			ImageGenerationCount: 2,
			ImageGenerationDate:  "2024-01-01",
		},
	})

	res, err := s.GenerateAll(context.Background(), "s1", "")
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	if res.Generated != 1 {
		t.Errorf("generated = %d, want 1", res.Generated)
	}
	if res.Pages[0].ImageURL != "" {
		t.Errorf("quota-exhausted page got an image")
	}
	if res.Pages[1].ImageURL == "" {
		t.Errorf("page 2 should have been generated")
	}
}

func TestImageService_GenerateAllErrors(t *testing.T) {
	store := newFakeStore()
	s := newImageService(store, &fakeImages{}, newFakeBlob())

	if _, err := s.GenerateAll(context.Background(), "missing", ""); !errors.Is(err, ErrStoryNotFound) {
		t.Errorf("err = %v", err)
	}

	_ = store.CreatePendingStory(context.Background(), &domain.Story{StoryID: "empty", UserID: "u1"})
	if _, err := s.GenerateAll(context.Background(), "empty", ""); !errors.Is(err, ErrNoPages) {
		t.Errorf("err = %v", err)
	}
}

func TestImageService_Regenerate(t *testing.T) {
	store := newFakeStore()
	images := &fakeImages{}
	s := newImageService(store, images, newFakeBlob())
	seedImageStory(store, 1)

	job, err := s.Regenerate(context.Background(), "s1", 1, "make it snowy")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if job.JobID == "" {
		t.Error("empty job id")
	}

	// The instructions are folded into the stored prompt before the job runs.
	page, _ := store.GetPage(context.Background(), "s1", 1)
	want := "a fox on page 1. Additional instructions: make it snowy"
	if page.ImagePrompt != want {
		t.Errorf("prompt = %q", page.ImagePrompt)
	}
	if len(images.requests) != 1 || images.requests[0].Prompt != want {
		t.Errorf("requests = %+v", images.requests)
	}
}

func TestImageService_RegenerateValidation(t *testing.T) {
	store := newFakeStore()
	s := newImageService(store, &fakeImages{}, newFakeBlob())
	seedImageStory(store, 1)
	store.seedPage("s1", domain.StoryPage{PageNumber: 1, Text: "no prompt"})

	if _, err := s.Regenerate(context.Background(), "s1", 1, ""); !errors.Is(err, ErrMissingImagePrompt) {
		t.Errorf("err = %v", err)
	}
	if _, err := s.Regenerate(context.Background(), "s1", 9, ""); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("err = %v", err)
	}
}

// Jobs for different pages of one story share a session; they must be able
// to run in parallel without corrupting its image history.
func TestImageService_ConcurrentPageJobs(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlob()
	s := newImageService(store, &fakeImages{}, blobs)
	seedImageStory(store, 2)

	var wg sync.WaitGroup
	s.spawn = func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	for _, n := range []int{1, 2} {
		if _, err := s.Start(context.Background(), "s1", n); err != nil {
			t.Fatalf("Start page %d: %v", n, err)
		}
	}
	wg.Wait()

	for _, n := range []int{1, 2} {
		page, _ := store.GetPage(context.Background(), "s1", n)
		if page.ImageGenerationStatus != domain.GenerationCompleted {
			t.Errorf("page %d status = %q", n, page.ImageGenerationStatus)
		}
	}
	if got := len(s.Sessions.GetOrCreate("s1").Snapshot()); got != 2 {
		t.Errorf("session images = %d; want 2", got)
	}
}
