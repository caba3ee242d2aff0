// Package embedders provides text embedding providers used by the tiered
// memory and the document index.
package embedders

import (
	"context"
	"fmt"
)

// Provider turns text into a fixed-dimension vector.
type Provider interface {
	// Embed returns the embedding for the text. Implementations retry
	// transient failures internally; a returned error is terminal for this
	// text and callers are expected to degrade (skip the tier) rather than
	// abort the query.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector dimension this provider produces.
	Dimension() int

	// ModelName returns the embedding model identifier.
	ModelName() string

	Close() error
}

// Config selects and parameterizes an embedding provider.
type Config struct {
	Type       string `yaml:"type"`
	Model      string `yaml:"model"`
	Host       string `yaml:"host"`
	Dimension  int    `yaml:"dimension"`
	Timeout    int    `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

// SetDefaults fills in zero-valued fields.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = "ollama"
	}
	if c.Model == "" {
		c.Model = "nomic-embed-text"
	}
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.Dimension == 0 {
		c.Dimension = 768
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate checks the config for inconsistencies.
func (c *Config) Validate() error {
	if c.Type != "ollama" {
		return fmt.Errorf("unsupported embedder type: %s", c.Type)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("embedder dimension must be positive, got %d", c.Dimension)
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
	case "ollama":
		return NewOllamaEmbedder(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported embedder type: %s", cfg.Type)
	}
}
