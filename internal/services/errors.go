// Package services defines the business logic for stories, pages, and
// image-generation jobs. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrStoryNotFound indicates that the requested story does not exist or
	// is not accessible to the current user.
	ErrStoryNotFound = errors.New("story not found")

	// ErrPageNotFound indicates that the requested page does not exist.
	ErrPageNotFound = errors.New("page not found")

	// ErrNoPages is returned when a batch operation targets a story that
	// has no pages yet.
	ErrNoPages = errors.New("no pages found for story")

	// ErrEmptyPrompt is returned when a story creation request contains an
	// empty prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrInvalidPageCount is returned when the requested page count is
	// outside the allowed range.
	ErrInvalidPageCount = errors.New("invalid page count")

	// ErrMissingImagePrompt is returned when image generation is requested
	// for a page that has no illustration prompt.
	ErrMissingImagePrompt = errors.New("image prompt not found for this page")

	// ErrStoryNotReady is returned when an operation needs a completed
	// story but text generation has not finished.
	ErrStoryNotReady = errors.New("story generation not complete")
)
