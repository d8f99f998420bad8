package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storyforge/go-storybook-backend/internal/config"
)

const geminiProviderName = "gemini"

// GeminiClient generates page illustrations through the Gemini
// generateContent API with TEXT+IMAGE response modalities. The image comes
// back as base64 inline data in one of the response parts.
type GeminiClient struct {
	cfg    config.GeminiConfig
	client *http.Client
	now    func() time.Time
}

// NewGeminiClient builds the client.
func NewGeminiClient(cfg config.GeminiConfig) *GeminiClient {
	return &GeminiClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:      10,
				ForceAttemptHTTP2: true,
			},
		},
		now: time.Now,
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GenerateImage produces one illustration. Prior pages' images in
// req.Context are sent as earlier user parts so the model keeps characters
// consistent across pages.
func (c *GeminiClient) GenerateImage(ctx context.Context, req ImageRequest) (*GeneratedImage, error) {
	prompt := req.Prompt
	if req.Enhance {
		prompt = EnhanceImagePrompt(prompt)
	}

	parts := make([]geminiPart, 0, len(req.Context)+1)
	for _, img := range req.Context {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: img.MimeType,
				Data:     base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}
	parts = append(parts, geminiPart{Text: prompt})

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	}
	body.GenerationConfig.ResponseModalities = []string{"TEXT", "IMAGE"}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, newError(geminiProviderName, 0, "failed to encode request", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, newError(geminiProviderName, 0, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, newError(geminiProviderName, 0, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, newError(geminiProviderName, resp.StatusCode, "failed to read response", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, newError(geminiProviderName, resp.StatusCode, "malformed response", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := "request rejected"
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, newError(geminiProviderName, resp.StatusCode, msg, nil)
	}
	if len(parsed.Candidates) == 0 {
		return nil, newError(geminiProviderName, resp.StatusCode, "no image generated", nil)
	}

	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, newError(geminiProviderName, resp.StatusCode, "invalid image data", err)
		}
		mime := part.InlineData.MimeType
		if mime == "" {
			mime = "image/png"
		}
		return &GeneratedImage{
			Data:        data,
			ContentType: mime,
			FileName:    fmt.Sprintf("story-image-%d.%s", c.now().UnixMilli(), extensionForMime(mime)),
			Prompt:      prompt,
		}, nil
	}

	return nil, newError(geminiProviderName, resp.StatusCode, "no image data found in response", nil)
}

func extensionForMime(mime string) string {
	switch mime {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}
