// Package domain defines the persistence models for stories and story pages.
// The same types are mapped with GORM (SQLite backend) and with dynamodbav
// tags (DynamoDB backend), and form the core data layer of the storybook
// application.
package domain

import (
	"time"
)

// StoryStatus tracks the lifecycle of a whole story's text generation.
type StoryStatus string

// Story generation lifecycle states.
const (
	StoryStatusPending    StoryStatus = "PENDING"
	StoryStatusGenerating StoryStatus = "GENERATING"
	StoryStatusCompleted  StoryStatus = "COMPLETED"
	StoryStatusFailed     StoryStatus = "FAILED"
)

// GenerationStatus tracks a single page-image generation job.
// A job only ever moves PENDING → COMPLETED or PENDING → FAILED; a new
// generation attempt for the same page starts a new job with a new job id.
type GenerationStatus string

// Page image job states.
const (
	GenerationPending   GenerationStatus = "PENDING"
	GenerationCompleted GenerationStatus = "COMPLETED"
	GenerationFailed    GenerationStatus = "FAILED"
)

// Terminal reports whether s is a final job state.
func (s GenerationStatus) Terminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

// Story represents a generated (or in-progress) storybook owned by a user.
//
// Fields:
//   - StoryID: stable UUID primary key (char(36)).
//   - UserID: identifier of the story owner; indexed for efficient listing.
//   - Title: story title; until text generation completes this holds the
//     user's prompt as a provisional title.
//   - Status: PENDING/GENERATING/COMPLETED/FAILED for the text job.
//   - TargetAge: audience descriptor forwarded to the text provider.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM (SQLite) or set
//     explicitly by the DynamoDB backend.
type Story struct {
	StoryID   string      `json:"storyId"    gorm:"type:char(36);primaryKey"          dynamodbav:"storyId"`
	UserID    string      `json:"userId"     gorm:"type:varchar(64);not null;index:idx_user_stories" dynamodbav:"userId"`
	Title     string      `json:"title"      gorm:"type:varchar(255);not null"        dynamodbav:"title"`
	Status    StoryStatus `json:"status"     gorm:"type:varchar(16);not null;default:'PENDING'" dynamodbav:"status"`
	TargetAge string      `json:"targetAge,omitempty" gorm:"type:varchar(32)"         dynamodbav:"targetAge,omitempty"`
	CreatedAt time.Time   `json:"createdAt"                                           dynamodbav:"createdAt,unixtime"`
	UpdatedAt time.Time   `json:"updatedAt"                                           dynamodbav:"updatedAt,unixtime"`
}

// TableName returns the database table name for Story.
func (Story) TableName() string { return "stories" }

// PageGenerationMetadata is the per-page bookkeeping consulted by the
// image-generation limiter. The count is only meaningful while
// ImageGenerationDate equals the current UTC calendar date; a stale date
// implies an effective count of zero, so the quota resets daily without
// any scheduled job.
type PageGenerationMetadata struct {
	// ImageGenerationCount is the number of successful generations counted
	// against ImageGenerationDate.
	ImageGenerationCount int `json:"imageGenerationCount" gorm:"not null;default:0" dynamodbav:"imageGenerationCount"`
	// ImageGenerationDate is the UTC calendar date (YYYY-MM-DD) the count
	// applies to.
	ImageGenerationDate string `json:"imageGenerationDate,omitempty" gorm:"type:varchar(10)" dynamodbav:"imageGenerationDate,omitempty"`
	// LastImageGeneratedAt is the RFC 3339 timestamp of the most recent
	// successful generation, empty when none yet.
	LastImageGeneratedAt string `json:"lastImageGeneratedAt,omitempty" gorm:"type:varchar(40)" dynamodbav:"lastImageGeneratedAt,omitempty"`
}

// StoryPage is a single page of a story: the narration text, the prompt
// used to illustrate it, the stored illustration (if any), and the image
// generation job bookkeeping.
//
// The (StoryID, PageNumber) pair is the natural key in both backends:
// a composite primary key in SQLite and pk=story#id / sk=page#n in DynamoDB.
type StoryPage struct {
	StoryID     string `json:"storyId"     gorm:"type:char(36);primaryKey"  dynamodbav:"storyId"`
	PageNumber  int    `json:"pageNumber"  gorm:"primaryKey"                dynamodbav:"pageNo"`
	PageID      string `json:"pageId"      gorm:"type:char(36);not null"    dynamodbav:"pageId"`
	Text        string `json:"text"        gorm:"type:text;not null"        dynamodbav:"text"`
	ImagePrompt string `json:"imagePrompt" gorm:"type:text"                 dynamodbav:"imageDescription"`

	// Illustration, present once a generation job has completed.
	ImageURL string `json:"imageUrl,omitempty" gorm:"type:text"         dynamodbav:"imageUrl,omitempty"`
	ImageKey string `json:"imageKey,omitempty" gorm:"type:varchar(255)" dynamodbav:"imageKey,omitempty"`

	// Image job state machine (owned exclusively by the image workflow).
	ImageGenerationStatus GenerationStatus `json:"imageGenerationStatus,omitempty" gorm:"type:varchar(16)" dynamodbav:"imageGenerationStatus,omitempty"`
	ImageGenerationJobID  string           `json:"imageGenerationJobId,omitempty"  gorm:"type:char(36)"    dynamodbav:"imageGenerationJobId,omitempty"`

	PageGenerationMetadata `gorm:"embedded"`

	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt,unixtime"`
	UpdatedAt time.Time `json:"updatedAt" dynamodbav:"updatedAt,unixtime"`
}

// TableName returns the database table name for StoryPage.
func (StoryPage) TableName() string { return "story_pages" }

// GenerationMetadata returns the limiter-relevant subset of the page, or
// nil when p is nil (first-ever generation for a page that has no record).
func (p *StoryPage) GenerationMetadata() *PageGenerationMetadata {
	if p == nil {
		return nil
	}
	return &p.PageGenerationMetadata
}
