package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/storyforge/go-storybook-backend/internal/blob"
	"github.com/storyforge/go-storybook-backend/internal/domain"
	"github.com/storyforge/go-storybook-backend/internal/providers"
	"github.com/storyforge/go-storybook-backend/internal/storage"
)

// fakeStore is an in-memory StoryStore with per-method error injection.
type fakeStore struct {
	mu      sync.Mutex
	stories map[string]*domain.Story
	pages   map[string]map[int]*domain.StoryPage

	failStatusWrite   error // UpdatePageImageStatus
	failCompleteWrite error // CompletePageImage
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stories: make(map[string]*domain.Story),
		pages:   make(map[string]map[int]*domain.StoryPage),
	}
}

func (f *fakeStore) CreatePendingStory(_ context.Context, story *domain.Story) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *story
	f.stories[story.StoryID] = &cp
	return nil
}

func (f *fakeStore) UpdateStoryStatus(_ context.Context, userID, storyID string, status domain.StoryStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stories[storyID]
	if !ok || st.UserID != userID {
		return storage.ErrNotFound
	}
	st.Status = status
	return nil
}

func (f *fakeStore) SaveGeneratedStory(_ context.Context, userID, storyID, title string, pages []domain.StoryPage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stories[storyID]
	if !ok || st.UserID != userID {
		return storage.ErrNotFound
	}
	st.Title = title
	st.Status = domain.StoryStatusCompleted
	byNum := make(map[int]*domain.StoryPage, len(pages))
	for i := range pages {
		p := pages[i]
		p.StoryID = storyID
		byNum[p.PageNumber] = &p
	}
	f.pages[storyID] = byNum
	return nil
}

func (f *fakeStore) GetStory(_ context.Context, storyID string) (*domain.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stories[storyID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (f *fakeStore) GetStoryInfo(_ context.Context, userID, storyID string) (*domain.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stories[storyID]
	if !ok || st.UserID != userID {
		return nil, storage.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (f *fakeStore) ListStories(_ context.Context, userID string) ([]domain.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Story
	for _, st := range f.stories {
		if st.UserID == userID {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPages(_ context.Context, storyID string) ([]domain.StoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nums := make([]int, 0, len(f.pages[storyID]))
	for n := range f.pages[storyID] {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	out := make([]domain.StoryPage, 0, len(nums))
	for _, n := range nums {
		out = append(out, *f.pages[storyID][n])
	}
	return out, nil
}

func (f *fakeStore) GetPage(_ context.Context, storyID string, pageNumber int) (*domain.StoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[storyID][pageNumber]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) UpdateStoryTitle(_ context.Context, userID, storyID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stories[storyID]
	if !ok || st.UserID != userID {
		return storage.ErrNotFound
	}
	st.Title = title
	return nil
}

func (f *fakeStore) UpdatePageContent(_ context.Context, storyID string, pageNumber int, upd storage.PageContentUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[storyID][pageNumber]
	if !ok {
		return storage.ErrNotFound
	}
	if upd.Text != nil {
		p.Text = *upd.Text
	}
	if upd.ImagePrompt != nil {
		p.ImagePrompt = *upd.ImagePrompt
	}
	return nil
}

func (f *fakeStore) UpdatePageImageStatus(_ context.Context, storyID string, pageNumber int, status domain.GenerationStatus, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStatusWrite != nil {
		return f.failStatusWrite
	}
	p, ok := f.pages[storyID][pageNumber]
	if !ok {
		return storage.ErrNotFound
	}
	p.ImageGenerationStatus = status
	if jobID != "" {
		p.ImageGenerationJobID = jobID
	}
	return nil
}

func (f *fakeStore) CompletePageImage(_ context.Context, in storage.CompletePageImage) (*domain.StoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCompleteWrite != nil {
		return nil, f.failCompleteWrite
	}
	p, ok := f.pages[in.StoryID][in.PageNumber]
	if !ok {
		return nil, storage.ErrNotFound
	}
	p.ImageURL = in.ImageURL
	p.ImageKey = in.ImageKey
	p.ImageGenerationCount = in.ImageGenerationCount
	p.ImageGenerationDate = in.ImageGenerationDate
	p.LastImageGeneratedAt = in.LastImageGeneratedAt
	p.ImageGenerationStatus = domain.GenerationCompleted
	p.ImageGenerationJobID = in.JobID
	cp := *p
	return &cp, nil
}

func (f *fakeStore) DeleteStory(_ context.Context, userID, storyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stories[storyID]
	if !ok || st.UserID != userID {
		return storage.ErrNotFound
	}
	delete(f.stories, storyID)
	delete(f.pages, storyID)
	return nil
}

func (f *fakeStore) Close() error { return nil }

// seedPage inserts a page directly, bypassing the story flow.
func (f *fakeStore) seedPage(storyID string, p domain.StoryPage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.StoryID = storyID
	if f.pages[storyID] == nil {
		f.pages[storyID] = make(map[int]*domain.StoryPage)
	}
	f.pages[storyID][p.PageNumber] = &p
}

// fakeText is a scriptable TextGenerator.
type fakeText struct {
	generate   func(req providers.StoryRequest) (*providers.GeneratedStory, error)
	regenerate func(story *providers.GeneratedStory, pageNumber int, instructions string) (*providers.GeneratedPage, error)
}

func (f *fakeText) GenerateStory(_ context.Context, req providers.StoryRequest) (*providers.GeneratedStory, error) {
	return f.generate(req)
}

func (f *fakeText) RegeneratePage(_ context.Context, story *providers.GeneratedStory, pageNumber int, instructions string) (*providers.GeneratedPage, error) {
	return f.regenerate(story, pageNumber, instructions)
}

// fakeImages records every request and can fail selected prompts.
type fakeImages struct {
	mu       sync.Mutex
	requests []providers.ImageRequest
	failWhen func(req providers.ImageRequest) error
}

func (f *fakeImages) GenerateImage(_ context.Context, req providers.ImageRequest) (*providers.GeneratedImage, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()

	if f.failWhen != nil {
		if err := f.failWhen(req); err != nil {
			return nil, err
		}
	}
	return &providers.GeneratedImage{
		Data:        []byte(fmt.Sprintf("image-%d", n)),
		ContentType: "image/png",
		FileName:    fmt.Sprintf("story-image-%d.png", n),
		Prompt:      req.Prompt,
	}, nil
}

// fakeBlob is an in-memory blob.Store.
type fakeBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut error
	counter int
	now     time.Time
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{
		objects: make(map[string][]byte),
		now:     time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fakeBlob) Upload(_ context.Context, in blob.UploadInput) (*blob.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != nil {
		return nil, f.failPut
	}
	f.counter++
	key := fmt.Sprintf("stories/%s/pages/page-%d/%d-%s.png", in.StoryID, in.PageNumber, f.counter, in.FileName)
	f.objects[key] = in.Data
	return &blob.UploadResult{Key: key, URL: "https://assets.test/" + key}, nil
}

func (f *fakeBlob) SignedURL(_ context.Context, key string) (string, error) {
	return "https://assets.test/signed/" + key, nil
}

func (f *fakeBlob) Open(_ context.Context, key string) (io.ReadCloser, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, "", blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), "image/png", nil
}

func (f *fakeBlob) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}
