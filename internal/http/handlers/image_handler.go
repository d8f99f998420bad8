// Image HTTP handlers.
//
// This file exposes the page-illustration endpoints:
//   - POST /stories/{id}/pages/{page}/image        (start a generation job)
//   - GET  /stories/{id}/pages/{page}/image-status (poll the job)
//   - POST /stories/{id}/pages/{page}/image/regenerate (fresh job with instructions)
//   - POST /stories/{id}/images                    (generate all, synchronous)
//
// Image generation is quota-limited per page (daily limit plus a cooldown);
// rejected attempts surface as HTTP 429 with a user-facing message.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

//
// DTOs
//

// GenerateAllImagesRequest is the JSON payload for the batch endpoint.
type GenerateAllImagesRequest struct {
	// CharacterDescription pins the main character's look across pages.
	CharacterDescription string `json:"characterDescription" example:"a small red fox wearing a blue scarf"`
}

// RegenerateImageRequest carries optional steering for image regeneration.
type RegenerateImageRequest struct {
	Instructions string `json:"instructions" example:"make the scene snowy"`
}

//
// Handlers
//

// StartImage godoc
// @ID          startImage
// @Summary     Start image generation for a page
// @Description Starts a background job that illustrates the page. The job is PENDING until it completes or fails; poll the image-status endpoint.
// @Tags        Images
// @Produce     json
//
// @Param       id    path  string  true  "Story ID (UUID)"  format(uuid)
// @Param       page  path  int     true  "Page number"      minimum(1)
//
// @Success     202  {object} services.ImageJob
// @Failure     404  {object} handlers.ErrorResponse "Page not found"
// @Failure     429  {object} handlers.ErrorResponse "Daily limit reached or cooldown active"
// @Router      /stories/{id}/pages/{page}/image [post]
func (h *Handlers) StartImage(c *gin.Context) {
	n, okPage := pageNumber(c)
	if !okPage {
		return
	}

	job, err := h.imageSvc.Start(c.Request.Context(), c.Param("id"), n)
	if err != nil {
		failService(c, err, ErrCodeGenerationFailed)
		return
	}
	ok(c, http.StatusAccepted, job)
}

// ImageStatus godoc
// @ID          imageStatus
// @Summary     Poll a page's image job
// @Description Returns the page's current image-generation state. Completed jobs include a fresh image URL.
// @Tags        Images
// @Produce     json
//
// @Param       id    path  string  true  "Story ID (UUID)"  format(uuid)
// @Param       page  path  int     true  "Page number"      minimum(1)
//
// @Success     200  {object} services.ImageStatus
// @Failure     404  {object} handlers.ErrorResponse "Page not found"
// @Router      /stories/{id}/pages/{page}/image-status [get]
func (h *Handlers) ImageStatus(c *gin.Context) {
	n, okPage := pageNumber(c)
	if !okPage {
		return
	}

	st, err := h.imageSvc.Status(c.Request.Context(), c.Param("id"), n)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, st)
}

// RegenerateImage godoc
// @ID          regenerateImage
// @Summary     Regenerate a page's image
// @Description Starts a fresh job using the stored prompt plus optional instructions. Quota and cooldown rules apply unchanged.
// @Tags        Images
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Story ID (UUID)"  format(uuid)
// @Param       page  path  int     true  "Page number"      minimum(1)
// @Param       body  body  handlers.RegenerateImageRequest  false "Optional steering"
//
// @Success     202  {object} services.ImageJob
// @Failure     400  {object} handlers.ErrorResponse "Page has no illustration prompt"
// @Failure     404  {object} handlers.ErrorResponse "Page not found"
// @Failure     429  {object} handlers.ErrorResponse "Daily limit reached or cooldown active"
// @Router      /stories/{id}/pages/{page}/image/regenerate [post]
func (h *Handlers) RegenerateImage(c *gin.Context) {
	n, okPage := pageNumber(c)
	if !okPage {
		return
	}

	var req RegenerateImageRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	job, err := h.imageSvc.Regenerate(c.Request.Context(), c.Param("id"), n, strings.TrimSpace(req.Instructions))
	if err != nil {
		failService(c, err, ErrCodeGenerationFailed)
		return
	}
	ok(c, http.StatusAccepted, job)
}

// GenerateAllImages godoc
// @ID          generateAllImages
// @Summary     Generate images for every page
// @Description Illustrates all pages in order with a shared consistency prefix so characters look the same throughout. Pages that fail (including quota rejections) are returned unchanged.
// @Tags        Images
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Story ID (UUID)"  format(uuid)
// @Param       body  body  handlers.GenerateAllImagesRequest  false "Batch options"
//
// @Success     200  {object} services.BatchResult
// @Failure     404  {object} handlers.ErrorResponse "Story not found or has no pages"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /stories/{id}/images [post]
func (h *Handlers) GenerateAllImages(c *gin.Context) {
	var req GenerateAllImagesRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	res, err := h.imageSvc.GenerateAll(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.CharacterDescription))
	if err != nil {
		failService(c, err, ErrCodeGenerationFailed)
		return
	}
	ok(c, http.StatusOK, res)
}
