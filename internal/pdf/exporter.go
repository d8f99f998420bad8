// Package pdf renders a story and its pages into a printable PDF: a
// decorated cover page followed by one page per story page with the
// illustration (when stored) and the narration text.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog/log"

	"github.com/storyforge/go-storybook-backend/internal/blob"
	"github.com/storyforge/go-storybook-backend/internal/domain"
)

// Layout constants, in millimetres on an A4 portrait page.
const (
	margin      = 20.0
	imageHeight = 100.0
	lineHeight  = 7.0
)

// ErrNoStory is returned when Render is called without a story.
var ErrNoStory = errors.New("pdf: no story to render")

// Exporter renders storybook PDFs. Blobs supplies stored illustrations;
// when it is nil, or a page's image cannot be fetched or embedded, the
// page gets a framed placeholder instead.
type Exporter struct {
	Blobs blob.Store
}

// NewExporter returns an Exporter backed by the given blob store.
func NewExporter(blobs blob.Store) *Exporter {
	return &Exporter{Blobs: blobs}
}

// Render produces the PDF bytes for a story. Pages are laid out in
// ascending page-number order regardless of input order.
func (e *Exporter) Render(ctx context.Context, story *domain.Story, pages []domain.StoryPage) ([]byte, error) {
	if story == nil {
		return nil, ErrNoStory
	}

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 12)

	e.coverPage(doc, story)

	sorted := make([]domain.StoryPage, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PageNumber < sorted[j].PageNumber })

	for i := range sorted {
		doc.AddPage()
		e.storyPage(ctx, doc, &sorted[i])
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: render failed: %w", err)
	}
	return buf.Bytes(), nil
}

// coverPage draws the decorated title page.
func (e *Exporter) coverPage(doc *gofpdf.Fpdf, story *domain.Story) {
	doc.AddPage()
	w, h := doc.GetPageSize()

	// Double decorative border, brown outside and orange inside.
	doc.SetDrawColor(139, 69, 19)
	doc.SetLineWidth(2)
	doc.Rect(10, 10, w-20, h-20, "D")
	doc.SetDrawColor(255, 165, 0)
	doc.SetLineWidth(1)
	doc.Rect(15, 15, w-30, h-30, "D")

	doc.SetFont("Helvetica", "B", 28)
	doc.SetTextColor(128, 0, 128)

	titleLines := doc.SplitText(story.Title, w-40)
	titleHeight := float64(len(titleLines)) * 10
	titleY := h/2 - titleHeight - 20
	for i, line := range titleLines {
		x := (w - doc.GetStringWidth(line)) / 2
		doc.Text(x, titleY+float64(i)*10, line)
	}

	subtitle := "A storybook made just for you"
	if story.TargetAge != "" {
		subtitle = fmt.Sprintf("A storybook for readers aged %s", story.TargetAge)
	}
	doc.SetFont("Helvetica", "", 16)
	doc.SetTextColor(100, 100, 100)
	doc.Text((w-doc.GetStringWidth(subtitle))/2, titleY+titleHeight+20, subtitle)
}

// storyPage draws one story page: number, illustration (or placeholder),
// narration text and a footer rule.
func (e *Exporter) storyPage(ctx context.Context, doc *gofpdf.Fpdf, page *domain.StoryPage) {
	w, h := doc.GetPageSize()
	contentWidth := w - 2*margin

	doc.SetFont("Helvetica", "B", 12)
	doc.SetTextColor(128, 0, 128)
	doc.Text(margin, margin, fmt.Sprintf("Page %d", page.PageNumber))

	imageY := margin + 15
	if !e.drawImage(ctx, doc, page, margin, imageY, contentWidth) {
		e.drawPlaceholder(doc, margin, imageY, contentWidth)
	}

	// Narration text, clipped at the bottom margin; stories this renderer
	// sees keep page text short enough that clipping is theoretical.
	textY := imageY + imageHeight + 20
	doc.SetFont("Helvetica", "", 14)
	doc.SetTextColor(0, 0, 0)
	for i, line := range doc.SplitText(page.Text, contentWidth) {
		y := textY + float64(i)*lineHeight
		if y >= h-margin {
			break
		}
		doc.Text(margin, y, line)
	}

	doc.SetDrawColor(255, 165, 0)
	doc.SetLineWidth(0.5)
	doc.Line(margin, h-15, w-margin, h-15)
}

// drawImage embeds the page's stored illustration and reports whether it
// succeeded. Missing blobs and unsupported formats fall back to the
// placeholder rather than failing the export.
func (e *Exporter) drawImage(ctx context.Context, doc *gofpdf.Fpdf, page *domain.StoryPage, x, y, width float64) bool {
	if e.Blobs == nil || page.ImageKey == "" {
		return false
	}

	rc, contentType, err := e.Blobs.Open(ctx, page.ImageKey)
	if err != nil {
		log.Warn().Err(err).Str("key", page.ImageKey).Msg("pdf: image fetch failed")
		return false
	}
	defer rc.Close()

	imageType := imageTypeFor(contentType)
	if imageType == "" {
		return false
	}

	name := fmt.Sprintf("%s-%d", page.StoryID, page.PageNumber)
	opts := gofpdf.ImageOptions{ImageType: imageType}
	doc.RegisterImageOptionsReader(name, opts, rc)
	if doc.Err() {
		// A bad image must not poison the whole document.
		log.Warn().Str("key", page.ImageKey).Str("error", doc.Error().Error()).Msg("pdf: image decode failed")
		doc.ClearError()
		return false
	}

	doc.ImageOptions(name, x, y, width, imageHeight, false, opts, 0, "")
	return !doc.Err()
}

// drawPlaceholder draws the framed "no image" box.
func (e *Exporter) drawPlaceholder(doc *gofpdf.Fpdf, x, y, width float64) {
	doc.SetDrawColor(200, 200, 200)
	doc.SetLineWidth(1)
	doc.Rect(x, y, width, imageHeight, "D")

	doc.SetFont("Helvetica", "I", 10)
	doc.SetTextColor(150, 150, 150)
	label := "[Image will be here]"
	doc.Text(x+(width-doc.GetStringWidth(label))/2, y+imageHeight/2, label)
}

// imageTypeFor maps a MIME type to gofpdf's image-type tag. WebP is not
// supported by the renderer, so WebP illustrations get the placeholder.
func imageTypeFor(contentType string) string {
	switch contentType {
	case "image/png":
		return "PNG"
	case "image/jpeg":
		return "JPG"
	case "image/gif":
		return "GIF"
	default:
		return ""
	}
}
