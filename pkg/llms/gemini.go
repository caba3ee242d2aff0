package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slate-agents/slate/pkg/httpclient"
)

// GeminiProvider calls the Gemini generateContent API.
// Structured output follows https://ai.google.dev/gemini-api/docs/structured-output
type GeminiProvider struct {
	config *Config
	client *httpclient.Client
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      *float64       `json:"temperature,omitempty"`
	MaxOutputTokens  int            `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGeminiProvider creates a Gemini provider. Transient failures (429, 5xx)
// are retried by the underlying client with exponential backoff and jitter.
func NewGeminiProvider(cfg *Config) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	return &GeminiProvider{
		config: cfg,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
	}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	req := p.buildRequest(messages, nil)
	return p.complete(ctx, req)
}

func (p *GeminiProvider) GenerateJSON(ctx context.Context, messages []Message, out any) error {
	schema, err := SchemaFor(out)
	if err != nil {
		return err
	}
	req := p.buildRequest(messages, schema)

	text, err := p.complete(ctx, req)
	if err != nil {
		return err
	}

	// Some models still wrap constrained output in a markdown fence.
	text = stripCodeFence(text)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("gemini returned non-conforming JSON: %w", err)
	}
	return nil
}

func (p *GeminiProvider) buildRequest(messages []Message, schema map[string]any) *geminiRequest {
	req := &geminiRequest{
		GenerationConfig: &geminiGenerationConfig{
			MaxOutputTokens: p.config.MaxTokens,
		},
	}
	if p.config.Temperature > 0 {
		temp := p.config.Temperature
		req.GenerationConfig.Temperature = &temp
	}
	if schema != nil {
		req.GenerationConfig.ResponseMimeType = "application/json"
		req.GenerationConfig.ResponseSchema = schema
	}

	for _, msg := range messages {
		role := msg.Role
		// Gemini has no system role; system prompts become user turns.
		if role == RoleSystem {
			role = RoleUser
		}
		req.Contents = append(req.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	return req
}

func (p *GeminiProvider) complete(ctx context.Context, req *geminiRequest) (string, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		p.config.Host, p.config.Model, p.config.APIKey)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", p.classify(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return "", fmt.Errorf("failed to parse Gemini response: %w", err)
	}
	if geminiResp.Error != nil {
		if geminiResp.Error.Code == http.StatusTooManyRequests || geminiResp.Error.Status == "RESOURCE_EXHAUSTED" {
			return "", fmt.Errorf("%w: %s", ErrRateLimited, geminiResp.Error.Message)
		}
		return "", fmt.Errorf("Gemini API error: %s", geminiResp.Error.Message)
	}
	if len(geminiResp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in Gemini response")
	}

	var sb strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	slog.Debug("Gemini completion", "model", p.config.Model, "finish_reason", geminiResp.Candidates[0].FinishReason)
	return sb.String(), nil
}

// classify maps an exhausted-retry transport error to the rate limit
// sentinel when the last status was 429.
func (p *GeminiProvider) classify(err error) error {
	var retryErr *httpclient.RetryableError
	if errors.As(err, &retryErr) && retryErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return fmt.Errorf("Gemini API request failed: %w", err)
}

func (p *GeminiProvider) ModelName() string {
	return p.config.Model
}

func (p *GeminiProvider) Close() error {
	return nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

var _ Provider = (*GeminiProvider)(nil)
