// Story HTTP handlers.
//
// This file exposes REST endpoints for story resources:
//   - POST   /stories                      (create; text generation runs async)
//   - GET    /stories                      (list, paginated)
//   - GET    /stories/{id}                 (story + pages once generated)
//   - GET    /stories/{id}/status          (poll the text-generation job)
//   - PUT    /stories/{id}                 (rename / edit pages)
//   - PUT    /stories/{id}/pages/{n}       (edit one page)
//   - POST   /stories/{id}/pages/{n}/regenerate (regenerate one page's text)
//   - DELETE /stories/{id}                 (delete story and pages)
//   - GET    /stories/{id}/export/pdf      (download the storybook)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/storyforge/go-storybook-backend/internal/domain"
	"github.com/storyforge/go-storybook-backend/internal/limits"
	"github.com/storyforge/go-storybook-backend/internal/providers"
	"github.com/storyforge/go-storybook-backend/internal/services"
	"github.com/storyforge/go-storybook-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// StoryService defines story lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type StoryService interface {
	// Create persists a pending story and starts background text generation.
	Create(ctx context.Context, userID string, req providers.StoryRequest) (*domain.Story, error)
	// Get returns the story and, once generation completed, its pages.
	Get(ctx context.Context, storyID string) (*domain.Story, []domain.StoryPage, error)
	// List returns all stories owned by userID, newest first.
	List(ctx context.Context, userID string) ([]domain.Story, error)
	// Status returns the story record for generation polling.
	Status(ctx context.Context, userID, storyID string) (*domain.Story, error)
	// Edit applies a title change and/or page content edits.
	Edit(ctx context.Context, userID, storyID string, title *string, edits []services.PageEdit) error
	// RegeneratePage replaces one page's text via the text provider.
	RegeneratePage(ctx context.Context, userID, storyID string, pageNumber int, instructions string) (*domain.StoryPage, error)
	// Delete removes the story and its pages.
	Delete(ctx context.Context, userID, storyID string) error
}

// ImageService defines page-illustration operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ImageService interface {
	// Start begins a background image-generation job for one page.
	Start(ctx context.Context, storyID string, pageNumber int) (*services.ImageJob, error)
	// Status reports the page's current image job state.
	Status(ctx context.Context, storyID string, pageNumber int) (*services.ImageStatus, error)
	// GenerateAll synchronously illustrates every page of a story.
	GenerateAll(ctx context.Context, storyID, characterDescription string) (*services.BatchResult, error)
	// Regenerate starts a fresh job using the stored prompt plus instructions.
	Regenerate(ctx context.Context, storyID string, pageNumber int, instructions string) (*services.ImageJob, error)
}

// Exporter renders a story into a downloadable PDF.
type Exporter interface {
	Render(ctx context.Context, story *domain.Story, pages []domain.StoryPage) ([]byte, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for stories, page images, and exports.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	storySvc StoryService
	imageSvc ImageService
	exporter Exporter
}

// New constructs and returns a Handlers instance bound to the given services.
func New(storySvc StoryService, imageSvc ImageService, exporter Exporter) *Handlers {
	return &Handlers{storySvc: storySvc, imageSvc: imageSvc, exporter: exporter}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// pageNumber parses the :page path parameter, failing the request on junk.
func pageNumber(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("page"))
	if err != nil || n < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "page number must be a positive integer")
		return 0, false
	}
	return n, true
}

//
// DTOs
//

// CreateStoryRequest is the JSON payload for creating a story.
type CreateStoryRequest struct {
	// Prompt describes the story to generate.
	Prompt string `json:"prompt" binding:"required" example:"A brave little fox who learns to share"`
	// TotalPages is the number of pages to generate (1-20).
	TotalPages int `json:"totalPages" binding:"required,min=1" example:"5"`
	// TargetAge optionally overrides the default audience descriptor.
	TargetAge string `json:"targetAge" example:"4-8 years old"`
}

// UpdateStoryRequest is the JSON payload for renaming a story and/or editing
// its pages. All fields are optional; absent fields are left untouched.
type UpdateStoryRequest struct {
	Title *string           `json:"title,omitempty" example:"The Brave Little Fox"`
	Pages []PageEditRequest `json:"pages,omitempty"`
}

// PageEditRequest is one page's requested changes.
type PageEditRequest struct {
	PageNumber  int     `json:"pageNumber" binding:"required,min=1" example:"2"`
	Text        *string `json:"text,omitempty"`
	ImagePrompt *string `json:"imagePrompt,omitempty"`
}

// UpdatePageRequest is the JSON payload for editing a single page.
type UpdatePageRequest struct {
	Text        *string `json:"text,omitempty"`
	ImagePrompt *string `json:"imagePrompt,omitempty"`
}

// RegeneratePageRequest carries optional steering for page regeneration.
type RegeneratePageRequest struct {
	Instructions string `json:"instructions" example:"make it rhyme"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// ListStoriesResponse wraps a page of stories and pagination information.
type ListStoriesResponse struct {
	Stories    []domain.Story `json:"stories"`
	Pagination Pagination     `json:"pagination"`
}

// GetStoryResponse is the story detail payload: the story record plus its
// pages (empty until text generation completes).
type GetStoryResponse struct {
	Story *domain.Story      `json:"story"`
	Pages []domain.StoryPage `json:"pages"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// failService translates service-layer errors into the standard envelope.
// fallbackCode is used for otherwise-unclassified errors (always 500).
func failService(c *gin.Context, err error, fallbackCode string) {
	var lerr *limits.LimitError
	switch {
	case errors.As(err, &lerr):
		fail(c, lerr.StatusCode, ErrCodeRateLimited, lerr.Message)
	case errors.Is(err, services.ErrStoryNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "story not found")
	case errors.Is(err, services.ErrPageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "page not found")
	case errors.Is(err, services.ErrNoPages):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no pages found for story")
	case errors.Is(err, services.ErrEmptyPrompt),
		errors.Is(err, services.ErrInvalidPageCount),
		errors.Is(err, services.ErrMissingImagePrompt):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrStoryNotReady):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

//
// Handlers
//

// CreateStory godoc
// @ID          createStory
// @Summary     Create a new story
// @Description Persists a pending story and starts text generation in the background. Poll the status endpoint until COMPLETED.
// @Tags        Stories
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.CreateStoryRequest  true  "Create story payload"
//
// @Success     202  {object}  domain.Story
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /stories [post]
func (h *Handlers) CreateStory(c *gin.Context) {
	var req CreateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	story, err := h.storySvc.Create(c.Request.Context(), userID(c), providers.StoryRequest{
		Prompt:     req.Prompt,
		TotalPages: req.TotalPages,
		TargetAge:  req.TargetAge,
	})
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusAccepted, story)
}

// ListStories godoc
// @ID          listStories
// @Summary     List stories (paginated)
// @Description Returns a page of the user's stories, newest first.
// @Tags        Stories
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       page       query   int     false "Page number"            minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"         minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListStoriesResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /stories [get]
func (h *Handlers) ListStories(c *gin.Context) {
	page, pageSize := clampPagination(c)

	stories, err := h.storySvc.List(c.Request.Context(), userID(c))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}

	total := len(stories)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	ok(c, http.StatusOK, ListStoriesResponse{
		Stories: stories[start:end],
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetStory godoc
// @ID          getStory
// @Summary     Get a story with its pages
// @Description Returns the story record and its pages. Pages are empty until text generation completes.
// @Tags        Stories
// @Produce     json
//
// @Param       id  path  string  true  "Story ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.GetStoryResponse
// @Failure     404  {object} handlers.ErrorResponse "Story not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /stories/{id} [get]
func (h *Handlers) GetStory(c *gin.Context) {
	story, pages, err := h.storySvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	if pages == nil {
		pages = []domain.StoryPage{}
	}
	ok(c, http.StatusOK, GetStoryResponse{Story: story, Pages: pages})
}

// StoryStatus godoc
// @ID          storyStatus
// @Summary     Poll story generation status
// @Description Returns the story record; clients poll this until status is COMPLETED or FAILED.
// @Tags        Stories
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Story ID (UUID)"        format(uuid)
//
// @Success     200  {object} domain.Story
// @Failure     404  {object} handlers.ErrorResponse "Story not found"
// @Router      /stories/{id}/status [get]
func (h *Handlers) StoryStatus(c *gin.Context) {
	story, err := h.storySvc.Status(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, story)
}

// UpdateStory godoc
// @ID          updateStory
// @Summary     Rename a story and/or edit its pages
// @Description Applies a title change and any page content edits in one call.
// @Tags        Stories
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Story ID (UUID)"        format(uuid)
// @Param       body       body    handlers.UpdateStoryRequest  true  "Edits"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Story or page not found"
// @Router      /stories/{id} [put]
func (h *Handlers) UpdateStory(c *gin.Context) {
	var req UpdateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Title == nil && len(req.Pages) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "nothing to update")
		return
	}

	edits := make([]services.PageEdit, 0, len(req.Pages))
	for _, p := range req.Pages {
		edits = append(edits, services.PageEdit{
			PageNumber:  p.PageNumber,
			Text:        p.Text,
			ImagePrompt: p.ImagePrompt,
		})
	}

	if err := h.storySvc.Edit(c.Request.Context(), userID(c), c.Param("id"), req.Title, edits); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// UpdatePage godoc
// @ID          updatePage
// @Summary     Edit one page
// @Description Updates the text and/or illustration prompt of a single page.
// @Tags        Stories
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Story ID (UUID)"        format(uuid)
// @Param       page       path    int     true  "Page number"            minimum(1)
// @Param       body       body    handlers.UpdatePageRequest  true  "Page edits"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Story or page not found"
// @Router      /stories/{id}/pages/{page} [put]
func (h *Handlers) UpdatePage(c *gin.Context) {
	n, okPage := pageNumber(c)
	if !okPage {
		return
	}

	var req UpdatePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Text == nil && req.ImagePrompt == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "nothing to update")
		return
	}

	edit := []services.PageEdit{{PageNumber: n, Text: req.Text, ImagePrompt: req.ImagePrompt}}
	if err := h.storySvc.Edit(c.Request.Context(), userID(c), c.Param("id"), nil, edit); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// RegeneratePage godoc
// @ID          regeneratePage
// @Summary     Regenerate one page's text
// @Description Asks the text provider for a replacement page that fits the rest of the story.
// @Tags        Stories
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Story ID (UUID)"        format(uuid)
// @Param       page       path    int     true  "Page number"            minimum(1)
// @Param       body       body    handlers.RegeneratePageRequest  false "Optional steering"
//
// @Success     200  {object} domain.StoryPage
// @Failure     404  {object} handlers.ErrorResponse "Story or page not found"
// @Failure     409  {object} handlers.ErrorResponse "Story not generated yet"
// @Router      /stories/{id}/pages/{page}/regenerate [post]
func (h *Handlers) RegeneratePage(c *gin.Context) {
	n, okPage := pageNumber(c)
	if !okPage {
		return
	}

	var req RegeneratePageRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	page, err := h.storySvc.RegeneratePage(c.Request.Context(), userID(c), c.Param("id"), n, strings.TrimSpace(req.Instructions))
	if err != nil {
		failService(c, err, ErrCodeGenerationFailed)
		return
	}
	ok(c, http.StatusOK, page)
}

// DeleteStory godoc
// @ID          deleteStory
// @Summary     Delete a story
// @Description Removes the story and all of its pages.
// @Tags        Stories
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Story ID (UUID)"        format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Story not found"
// @Router      /stories/{id} [delete]
func (h *Handlers) DeleteStory(c *gin.Context) {
	if err := h.storySvc.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// filenameSanitizer strips characters that are unsafe in download filenames.
var filenameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ExportPDF godoc
// @ID          exportPDF
// @Summary     Export a story as PDF
// @Description Renders the story (cover page plus one page per story page) and returns it as a download.
// @Tags        Stories
// @Produce     application/pdf
//
// @Param       id  path  string  true  "Story ID (UUID)"  format(uuid)
//
// @Success     200  {file}   file
// @Failure     404  {object} handlers.ErrorResponse "Story not found"
// @Failure     500  {object} handlers.ErrorResponse "Export failed"
// @Router      /stories/{id}/export/pdf [get]
func (h *Handlers) ExportPDF(c *gin.Context) {
	story, pages, err := h.storySvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}

	data, err := h.exporter.Render(c.Request.Context(), story, pages)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeExportFailed, err.Error())
		return
	}

	filename := filenameSanitizer.ReplaceAllString(story.Title, "_") + "_storybook.pdf"
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	c.Data(http.StatusOK, "application/pdf", data)
}
