// Package providers contains the clients for the external generation
// services: OpenAI chat completions for story text and Gemini for page
// illustrations. Both are plain HTTP clients; failures surface as *Error
// values carrying the provider name and status code.
package providers

import "context"

// StoryRequest asks the text provider for a complete storybook.
type StoryRequest struct {
	Prompt     string `json:"prompt"`
	TotalPages int    `json:"totalPages"`
	TargetAge  string `json:"targetAge,omitempty"`
}

// GeneratedPage is one page of a generated story.
type GeneratedPage struct {
	PageNumber  int    `json:"pageNumber"`
	Text        string `json:"text"`
	ImagePrompt string `json:"imagePrompt"`
}

// GeneratedStory is the text provider's full response.
type GeneratedStory struct {
	Title     string          `json:"title"`
	TargetAge string          `json:"targetAge"`
	Pages     []GeneratedPage `json:"pages"`
}

// ContextImage is a previously generated illustration passed back to the
// image provider as a conversation turn, to keep characters consistent.
type ContextImage struct {
	MimeType string
	Data     []byte
}

// ImageRequest asks the image provider for one illustration.
type ImageRequest struct {
	Prompt string
	// Enhance appends the standard children's-book style suffix to the
	// prompt. Callers that build their own styled prompt set it to false.
	Enhance bool
	// Context holds up to a handful of prior pages' images, oldest first.
	Context []ContextImage
}

// GeneratedImage is the image provider's response: raw bytes plus the
// metadata needed to store them.
type GeneratedImage struct {
	Data        []byte
	ContentType string
	FileName    string
	// Prompt is the final prompt actually sent, after any enhancement.
	Prompt string
}

// TextGenerator is the story text provider.
type TextGenerator interface {
	GenerateStory(ctx context.Context, req StoryRequest) (*GeneratedStory, error)
	RegeneratePage(ctx context.Context, story *GeneratedStory, pageNumber int, instructions string) (*GeneratedPage, error)
}

// ImageGenerator is the illustration provider.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*GeneratedImage, error)
}
