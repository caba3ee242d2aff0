// Package vector provides the vector index stores backing the memory cache
// and the document index.
package vector

import (
	"context"
	"fmt"
)

// Well-known collection names. Memory holds promoted question/answer records;
// documents holds indexed document chunks.
const (
	CollectionMemory    = "memory"
	CollectionDocuments = "documents"
)

// Result is a scored search hit.
type Result struct {
	ID       string
	Score    float32
	Content  string
	Vector   []float32
	Metadata map[string]any
}

// Provider is a vector index store. Vectors are pre-computed by the embedder;
// providers never embed text themselves.
type Provider interface {
	// Upsert stores a vector under id. An existing id is overwritten. The
	// vector dimension must match the provider's configured dimension.
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	// Search returns up to topK hits ordered by descending similarity.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// SearchWithFilter combines similarity search with exact-match metadata
	// filtering.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)

	// Delete removes a document by id. Deleting a missing id is not an error.
	Delete(ctx context.Context, collection string, id string) error

	// DeleteByFilter removes every document whose metadata matches filter.
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error

	Name() string
	Close() error
}

// Config selects and parameterizes a vector store.
type Config struct {
	Type string `yaml:"type"`

	// Dimension is the embedding dimension every stored vector must have.
	// Mismatched vectors are refused at upsert time rather than silently
	// producing garbage similarities.
	Dimension int `yaml:"dimension"`

	Chromem ChromemConfig `yaml:"chromem"`
	Qdrant  QdrantConfig  `yaml:"qdrant"`
}

// SetDefaults fills in zero-valued fields.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	if c.Dimension == 0 {
		c.Dimension = 768
	}
}

// Validate checks the config for inconsistencies.
func (c *Config) Validate() error {
	switch c.Type {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unsupported vector store type: %s", c.Type)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("vector dimension must be positive, got %d", c.Dimension)
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
	case "chromem":
		return NewChromemProvider(cfg.Chromem, cfg.Dimension)
	case "qdrant":
		return NewQdrantProvider(cfg.Qdrant, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported vector store type: %s", cfg.Type)
	}
}
