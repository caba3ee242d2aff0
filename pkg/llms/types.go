// Package llms provides the LLM providers used by the perception, decision,
// and response agents.
package llms

import (
	"context"
	"errors"
	"fmt"
)

// Message roles follow the Gemini convention: system prompts are folded into
// the first user turn, and assistant turns use "model".
const (
	RoleSystem = "system"
	RoleUser   = "user"
	RoleModel  = "model"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates text and structured JSON completions.
type Provider interface {
	// Generate returns a plain text completion.
	Generate(ctx context.Context, messages []Message) (string, error)

	// GenerateJSON constrains the model to a JSON schema derived from out
	// and unmarshals the completion into it. out must be a non-nil pointer
	// to a struct.
	GenerateJSON(ctx context.Context, messages []Message, out any) error

	ModelName() string
	Close() error
}

// ErrRateLimited reports provider throttling (HTTP 429 or a
// RESOURCE_EXHAUSTED API status) after retries were exhausted. Callers
// surface this to the user instead of treating it as an agent failure.
var ErrRateLimited = errors.New("llm provider rate limited")

// IsRateLimited reports whether err is a throttling failure.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Config selects and parameterizes an LLM provider.
type Config struct {
	Type        string  `yaml:"type"`
	Model       string  `yaml:"model"`
	Host        string  `yaml:"host"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     int     `yaml:"timeout"`
	MaxRetries  int     `yaml:"max_retries"`
}

// SetDefaults fills in zero-valued fields.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = "gemini"
	}
	if c.Model == "" {
		c.Model = "gemini-2.5-flash"
	}
	if c.Host == "" {
		c.Host = "https://generativelanguage.googleapis.com"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 8192
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
}

// Validate checks the config for inconsistencies.
func (c *Config) Validate() error {
	if c.Type != "gemini" {
		return fmt.Errorf("unsupported llm type: %s", c.Type)
	}
	if c.APIKey == "" {
		return fmt.Errorf("llm api key is required (set GEMINI_API_KEY)")
	}
	return nil
}

// New creates a provider from config.
func New(cfg *Config) (Provider, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "gemini":
		return NewGeminiProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm type: %s", cfg.Type)
	}
}
