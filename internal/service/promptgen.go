package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mirae/stylegen/internal/domain"
	"github.com/mirae/stylegen/internal/logger"
	"github.com/mirae/stylegen/internal/prompts"
	_ "golang.org/x/image/webp"
)

// PromptGenService wraps the vision-language model that turns a fashion
// reference image into Midjourney prompts and product-name suggestions.
type PromptGenService struct {
	client        *resty.Client
	model         string
	fallbackModel string
	endpoint      string
	maxTokens     int
}

// PromptGenConfig holds configuration for the prompt generation service.
type PromptGenConfig struct {
	Model          string
	FallbackModel  string
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
	MaxTokens      int
}

// NewPromptGenService creates a new prompt generation service.
func NewPromptGenService(cfg *PromptGenConfig) *PromptGenService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	return &PromptGenService{
		client:        client,
		model:         cfg.Model,
		fallbackModel: cfg.FallbackModel,
		endpoint:      baseURL + "/chat/completions",
		maxTokens:     maxTokens,
	}
}

// GetModel returns the primary model identifier.
func (s *PromptGenService) GetModel() string {
	return s.model
}

// GenerateInput carries one job's parameters into the vision model call.
type GenerateInput struct {
	ImageBase64 string // may carry a data URL prefix
	Part        string // resolved clothing part label
	PromptType  domain.PromptType
	Gender      domain.GenderType
	Guidance    string
	FileName    string // used as a MIME fallback hint
}

// GenerateResult is the parsed outcome of one generation call.
type GenerateResult struct {
	RawText string   // full model response, kept for diagnostics
	Prompts []string // 1-3 extracted prompts, emission order
	Names   []string // 0-10 extracted name suggestions (outfit mode)
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type chatTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatImageContent struct {
	Type     string       `json:"type"`
	ImageURL chatImageURL `json:"image_url"`
}

type chatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

var dataURLPrefix = regexp.MustCompile(`^data:image/[a-z]+;base64,`)

// Generate asks the vision model to describe the garment and produce
// Midjourney prompts. On transport failure it retries once against the
// fallback model and once more with an alternate declared MIME type
// before giving up. A content-policy refusal and a response with zero
// extractable prompts are both classified as errors; the raw model
// text is preserved in the returned result either way.
func (s *PromptGenService) Generate(ctx context.Context, in *GenerateInput) (*GenerateResult, error) {
	b64 := dataURLPrefix.ReplaceAllString(in.ImageBase64, "")

	imageData, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}

	mimeType := detectMIMEType(imageData, in.FileName)

	if width, height, derr := imageDimensions(imageData); derr == nil {
		logger.CtxDebug(ctx, "Reference image: %dx%d, %s, %dKB", width, height, mimeType, len(imageData)/1024)
	}

	userPrompt := prompts.UserPrompt(in.Part, in.PromptType, in.Gender, in.Guidance)

	// Attempt order: primary model, fallback model, fallback model with
	// the alternate MIME declaration. No further retries.
	attempts := []struct {
		model string
		mime  string
	}{
		{s.model, mimeType},
		{s.fallbackModel, mimeType},
		{s.fallbackModel, alternateMIME(mimeType)},
	}

	var content string
	var lastErr error
	for i, attempt := range attempts {
		if attempt.model == "" {
			continue
		}
		if i > 0 {
			logger.CtxWarn(ctx, "Retrying generation with model=%s mime=%s after: %v",
				attempt.model, attempt.mime, lastErr)
		}

		content, lastErr = s.call(ctx, attempt.model, attempt.mime, b64, userPrompt)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("vision model call failed: %w", lastErr)
	}

	result := &GenerateResult{RawText: content}

	if prompts.IsRefusal(content) {
		return result, fmt.Errorf("vision model refused: %w", domain.ErrPolicyRefusal)
	}

	result.Prompts, result.Names = ParseModelResponse(content)
	if len(result.Prompts) == 0 {
		return result, domain.ErrNoPromptsExtracted
	}
	if in.PromptType != domain.PromptTypeOutfit {
		result.Names = nil
	}

	return result, nil
}

func (s *PromptGenService) call(ctx context.Context, model, mimeType, imageBase64, userPrompt string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, imageBase64)

	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: prompts.SystemPrompt,
			},
			{
				Role: "user",
				Content: []interface{}{
					chatTextContent{
						Type: "text",
						Text: userPrompt,
					},
					chatImageContent{
						Type: "image_url",
						ImageURL: chatImageURL{
							URL:    dataURL,
							Detail: "auto",
						},
					},
				},
			},
		},
		MaxTokens:   s.maxTokens,
		Temperature: 0.7,
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return "", fmt.Errorf("failed to call vision API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return "", fmt.Errorf("vision API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("vision API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from vision API (status: %d)", httpResp.StatusCode())
	}

	return resp.Choices[0].Message.Content, nil
}

var (
	promptLineRe = regexp.MustCompile(`^PROMPT\d+:\s*`)
	nameLineRe   = regexp.MustCompile(`^NAME\d+:\s*`)
)

// ParseModelResponse extracts prompt and name lines from the raw model
// text. Lines are cleaned of markdown bullets, emphasis markers and
// wrapping quotes before matching. Matching lines are kept in the
// order the model emitted them; a PROMPT2 printed before PROMPT1 stays
// ahead of it. Caps: 3 prompts, 10 names.
func ParseModelResponse(content string) (promptsOut, namesOut []string) {
	for _, line := range strings.Split(content, "\n") {
		line = cleanLine(line)
		if line == "" {
			continue
		}

		if loc := promptLineRe.FindStringIndex(line); loc != nil {
			if text := trimWrapping(line[loc[1]:]); text != "" && len(promptsOut) < 3 {
				promptsOut = append(promptsOut, text)
			}
			continue
		}
		if loc := nameLineRe.FindStringIndex(line); loc != nil {
			if text := trimWrapping(line[loc[1]:]); text != "" && len(namesOut) < 10 {
				namesOut = append(namesOut, text)
			}
		}
	}
	return promptsOut, namesOut
}

// cleanLine strips markdown decoration the model sometimes adds despite
// the plain-text instruction: bullets, emphasis markers, wrapping quotes.
func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*>• \t")
	line = strings.ReplaceAll(line, "**", "")
	line = strings.ReplaceAll(line, "__", "")
	return trimWrapping(line)
}

// trimWrapping removes surrounding quotes and backticks.
func trimWrapping(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`")
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// detectMIMEType sniffs the image content signature, falls back to the
// filename extension, and defaults to JPEG.
func detectMIMEType(data []byte, fileName string) string {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "image/gif"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}

	return "image/jpeg"
}

// alternateMIME picks the MIME type declared on the last-resort retry.
func alternateMIME(mimeType string) string {
	if mimeType == "image/jpeg" {
		return "image/png"
	}
	return "image/jpeg"
}

func imageDimensions(data []byte) (int, int, error) {
	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return config.Width, config.Height, nil
}
