package pdf

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"testing"

	"github.com/storyforge/go-storybook-backend/internal/blob"
	"github.com/storyforge/go-storybook-backend/internal/domain"
)

// onePixelPNG is a valid 1x1 transparent PNG.
var onePixelPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg==")

type stubBlobs struct {
	data        map[string][]byte
	contentType string
}

func (s *stubBlobs) Upload(context.Context, blob.UploadInput) (*blob.UploadResult, error) {
	return nil, errors.New("not implemented")
}

func (s *stubBlobs) SignedURL(context.Context, string) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubBlobs) Open(_ context.Context, key string) (io.ReadCloser, string, error) {
	d, ok := s.data[key]
	if !ok {
		return nil, "", blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(d)), s.contentType, nil
}

func (s *stubBlobs) Delete(context.Context, string) error { return nil }

func testStory() (*domain.Story, []domain.StoryPage) {
	story := &domain.Story{
		StoryID:   "s1",
		Title:     "The Brave Little Fox",
		Status:    domain.StoryStatusCompleted,
		TargetAge: "4-8 years old",
	}
	pages := []domain.StoryPage{
		{StoryID: "s1", PageNumber: 2, Text: "The fox went home."},
		{StoryID: "s1", PageNumber: 1, Text: "Once upon a time there was a fox."},
	}
	return story, pages
}

func TestRender_ProducesPDF(t *testing.T) {
	story, pages := testStory()
	out, err := NewExporter(nil).Render(context.Background(), story, pages)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Errorf("output does not start with a PDF header")
	}
	if len(out) < 1000 {
		t.Errorf("suspiciously small document: %d bytes", len(out))
	}
}

func TestRender_NilStory(t *testing.T) {
	if _, err := NewExporter(nil).Render(context.Background(), nil, nil); !errors.Is(err, ErrNoStory) {
		t.Errorf("err = %v", err)
	}
}

func TestRender_EmbedsStoredImages(t *testing.T) {
	story, pages := testStory()
	pages[1].ImageKey = "stories/s1/pages/page-1/1-img.png"
	blobs := &stubBlobs{
		data:        map[string][]byte{pages[1].ImageKey: onePixelPNG},
		contentType: "image/png",
	}

	withImage, err := NewExporter(blobs).Render(context.Background(), story, pages)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	withoutImage, err := NewExporter(nil).Render(context.Background(), story, pages)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(withImage) <= len(withoutImage) {
		t.Errorf("embedding an image did not grow the document (%d vs %d bytes)", len(withImage), len(withoutImage))
	}
}

func TestRender_MissingBlobFallsBack(t *testing.T) {
	story, pages := testStory()
	pages[0].ImageKey = "stories/s1/pages/page-2/missing.png"
	blobs := &stubBlobs{data: map[string][]byte{}, contentType: "image/png"}

	out, err := NewExporter(blobs).Render(context.Background(), story, pages)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Errorf("output does not start with a PDF header")
	}
}

func TestRender_UnsupportedFormatFallsBack(t *testing.T) {
	story, pages := testStory()
	pages[0].ImageKey = "stories/s1/pages/page-2/1-img.webp"
	blobs := &stubBlobs{
		data:        map[string][]byte{pages[0].ImageKey: []byte("not really webp")},
		contentType: "image/webp",
	}

	if _, err := NewExporter(blobs).Render(context.Background(), story, pages); err != nil {
		t.Fatalf("Render: %v", err)
	}
}

func TestImageTypeFor(t *testing.T) {
	cases := map[string]string{
		"image/png":  "PNG",
		"image/jpeg": "JPG",
		"image/gif":  "GIF",
		"image/webp": "",
		"":           "",
	}
	for ct, want := range cases {
		if got := imageTypeFor(ct); got != want {
			t.Errorf("imageTypeFor(%q) = %q, want %q", ct, got, want)
		}
	}
}
