package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/storyforge/go-storybook-backend/internal/config"
)

const openAIProviderName = "openai"

const defaultTargetAge = "4-8 years old"

// OpenAIClient generates story text through the OpenAI chat completions
// API, asking for a JSON object response and validating its shape.
type OpenAIClient struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

// NewOpenAIClient builds the client. The HTTP client enforces the
// configured request timeout.
func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	return &OpenAIClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:      10,
				ForceAttemptHTTP2: true,
			},
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// complete sends one chat completion request and returns the assistant's
// JSON content string.
func (c *OpenAIClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	reqBody.ResponseFormat.Type = "json_object"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", newError(openAIProviderName, 0, "failed to encode request", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", newError(openAIProviderName, 0, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", newError(openAIProviderName, 0, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", newError(openAIProviderName, resp.StatusCode, "failed to read response", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", newError(openAIProviderName, resp.StatusCode, "malformed response", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := "request rejected"
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", newError(openAIProviderName, resp.StatusCode, msg, nil)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", newError(openAIProviderName, resp.StatusCode, "no content received", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

// GenerateStory produces a complete storybook: exactly req.TotalPages
// pages, each with narration text and an illustration prompt. Pages are
// renumbered sequentially regardless of what the model returned.
func (c *OpenAIClient) GenerateStory(ctx context.Context, req StoryRequest) (*GeneratedStory, error) {
	targetAge := req.TargetAge
	if targetAge == "" {
		targetAge = defaultTargetAge
	}

	systemPrompt := fmt.Sprintf(`You are a master children's book author specializing in creating engaging, educational, and age-appropriate stories for children %[1]s.

Your task is to create a complete children's storybook with exactly %[2]d pages based on the user's prompt.

Guidelines:
- Write for children aged %[1]s with appropriate vocabulary and concepts
- Each page should have 1-3 sentences that are easy to read
- Include positive messages, problem-solving, friendship, or learning themes
- Make the story engaging with clear character development
- End with a satisfying conclusion that reinforces the story's message
- For each page, provide both story text and a detailed image description

Respond in JSON format with this exact structure:
{
  "title": "A creative, engaging title",
  "targetAge": "%[1]s",
  "pages": [
    {
      "pageNumber": 1,
      "text": "The story text for this page",
      "imagePrompt": "Detailed description for illustration: characters, setting, mood, art style (colorful children's book illustration style), specific visual elements"
    }
  ]
}

Make sure each imagePrompt is detailed and specific, mentioning:
- Characters and their appearance/clothing
- Setting and background details
- Mood and atmosphere
- Art style (always specify "colorful children's book illustration style")
- Specific visual elements that match the text`, targetAge, req.TotalPages)

	userPrompt := fmt.Sprintf(`Create a %d-page children's storybook about: %s

Make it magical, engaging, and perfect for children aged %s.`, req.TotalPages, req.Prompt, targetAge)

	content, err := c.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var story GeneratedStory
	if err := json.Unmarshal([]byte(content), &story); err != nil {
		return nil, newError(openAIProviderName, 0, "invalid story JSON", err)
	}
	if story.Title == "" || len(story.Pages) != req.TotalPages {
		return nil, newError(openAIProviderName, 0,
			fmt.Sprintf("invalid story structure: got %d pages, want %d", len(story.Pages), req.TotalPages), nil)
	}
	if story.TargetAge == "" {
		story.TargetAge = targetAge
	}

	// The model occasionally numbers pages wrong; trust order, not numbers.
	for i := range story.Pages {
		story.Pages[i].PageNumber = i + 1
	}

	log.Debug().Str("title", story.Title).Int("pages", len(story.Pages)).Msg("story generated")
	return &story, nil
}

// RegeneratePage rewrites a single page so it fits the surrounding story.
// instructions, when non-empty, are passed along as special instructions.
func (c *OpenAIClient) RegeneratePage(ctx context.Context, story *GeneratedStory, pageNumber int, instructions string) (*GeneratedPage, error) {
	extra := ""
	if instructions != "" {
		extra = "Special instructions: " + instructions + "\n\n"
	}

	systemPrompt := fmt.Sprintf(`You are helping to regenerate a single page of an existing children's story.

Story context:
- Title: %q
- Target age: %s
- Total pages: %d

Generate a replacement for page %d that fits naturally with the overall story flow.

%sRespond in JSON format:
{
  "pageNumber": %d,
  "text": "The new story text for this page",
  "imagePrompt": "Detailed description for illustration matching the children's book style"
}`, story.Title, story.TargetAge, len(story.Pages), pageNumber, extra, pageNumber)

	var sb strings.Builder
	for _, p := range story.Pages {
		if p.PageNumber == pageNumber {
			continue
		}
		fmt.Fprintf(&sb, "Page %d: %s\n", p.PageNumber, p.Text)
	}
	userPrompt := fmt.Sprintf(`Here's the story context:
%s
Please generate a new version of page %d that fits naturally with this story.`, sb.String(), pageNumber)

	content, err := c.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var page GeneratedPage
	if err := json.Unmarshal([]byte(content), &page); err != nil {
		return nil, newError(openAIProviderName, 0, "invalid page JSON", err)
	}
	if page.Text == "" {
		return nil, newError(openAIProviderName, 0, "regenerated page has no text", nil)
	}
	page.PageNumber = pageNumber
	return &page, nil
}
