// Package limits implements the per-page image-generation limiter: a pure
// decision function that enforces a daily quota and a cooldown window
// between successful generations.
//
// The limiter performs no I/O and has no side effects. Given the page's
// current generation metadata and a clock reading, it either approves the
// attempt and returns the bookkeeping values the caller must persist once
// the downstream generation actually succeeds, or rejects it with a
// *LimitError carrying a human-readable message and a 429 status.
//
// Checks run in a fixed order: daily quota first, then cooldown. Quota
// exhaustion is the harder stop (no amount of waiting today helps), so it
// is reported first even though an exhausted quota usually implies recent
// generations that would also trip the cooldown.
//
// The daily quota resets implicitly: the stored count only applies while
// the stored generation date equals the current UTC calendar date. A stale
// date means an effective prior count of zero; no scheduled reset job
// exists or is needed.
package limits

import (
	"fmt"
	"net/http"
	"time"

	"github.com/storyforge/go-storybook-backend/internal/domain"
)

// Defaults, matching the product rules for illustration regeneration.
const (
	// DefaultDailyLimit is the maximum number of successful generations
	// counted against a single UTC calendar date, per page.
	DefaultDailyLimit = 2

	// DefaultCooldown is the minimum wall-clock interval between two
	// successful generations for the same page, independent of the quota.
	DefaultCooldown = 15 * time.Minute

	// dateLayout is the UTC calendar date format stored alongside the count.
	dateLayout = "2006-01-02"
)

// LimitError is returned when an attempt is rejected. It is user-facing
// and recoverable by waiting; StatusCode classifies the rejection for the
// HTTP layer (always 429 today).
type LimitError struct {
	Message    string
	StatusCode int
}

// Error implements the error interface.
func (e *LimitError) Error() string { return e.Message }

// newLimitError builds a LimitError with the default 429 classification.
func newLimitError(msg string) *LimitError {
	return &LimitError{Message: msg, StatusCode: http.StatusTooManyRequests}
}

// Plan is the approved-output bundle. The caller persists these values on
// the page only after the downstream generation call has succeeded.
type Plan struct {
	// NextCount is the generation count that will exist for GenerationDate
	// once this attempt completes.
	NextCount int `json:"nextCount"`
	// GenerationDate is the UTC calendar date (YYYY-MM-DD) of the attempt.
	GenerationDate string `json:"generationDate"`
	// LastGeneratedAtISO is the attempt time formatted as RFC 3339, to be
	// stored as the page's new "last generated" marker.
	LastGeneratedAtISO string `json:"lastGeneratedAtIso"`
}

// Limiter holds the quota configuration. The zero value is not useful;
// construct with New or set both fields explicitly.
type Limiter struct {
	DailyLimit int
	Cooldown   time.Duration
}

// New returns a Limiter with the given settings, substituting the package
// defaults for non-positive values.
func New(dailyLimit int, cooldown time.Duration) Limiter {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return Limiter{DailyLimit: dailyLimit, Cooldown: cooldown}
}

// Evaluate decides whether a new image-generation attempt may proceed.
//
// meta may be nil (first-ever generation for the page); now must be a
// valid instant. On approval it returns the Plan to persist on success.
// On rejection it returns a *LimitError.
//
// A lastImageGeneratedAt value that does not parse as RFC 3339 is treated
// as "no cooldown in effect": bad timestamp data fails open rather than
// blocking generation forever. For fixed meta and now the result is fully
// deterministic.
func (l Limiter) Evaluate(meta *domain.PageGenerationMetadata, now time.Time) (*Plan, error) {
	currentDate := now.UTC().Format(dateLayout)

	lastCount := 0
	if meta != nil && meta.ImageGenerationDate == currentDate {
		lastCount = meta.ImageGenerationCount
	}

	if lastCount >= l.DailyLimit {
		return nil, newLimitError(fmt.Sprintf(
			"You can only generate %d images for this page per day. Try again tomorrow.",
			l.DailyLimit,
		))
	}

	if meta != nil && meta.LastImageGeneratedAt != "" {
		if last, err := time.Parse(time.RFC3339, meta.LastImageGeneratedAt); err == nil {
			if elapsed := now.Sub(last); elapsed < l.Cooldown {
				remaining := l.Cooldown - elapsed
				minutesLeft := (remaining.Milliseconds() + 60_000 - 1) / 60_000
				return nil, newLimitError(fmt.Sprintf(
					"Please wait %d more minute(s) before generating another image for this page.",
					minutesLeft,
				))
			}
		}
	}

	return &Plan{
		NextCount:          lastCount + 1,
		GenerationDate:     currentDate,
		LastGeneratedAtISO: now.UTC().Format(time.RFC3339),
	}, nil
}

// Evaluate applies the default limiter (2/day, 15 minute cooldown).
func Evaluate(meta *domain.PageGenerationMetadata, now time.Time) (*Plan, error) {
	return New(0, 0).Evaluate(meta, now)
}
