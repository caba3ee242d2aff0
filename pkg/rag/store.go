package rag

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/slate-agents/slate/pkg/embedders"
	"github.com/slate-agents/slate/pkg/vector"
)

// Config parameterizes the document index.
type Config struct {
	// DocsDir is the watched document directory.
	DocsDir string `yaml:"docs_dir"`

	// TopK is how many chunks a search returns.
	TopK int `yaml:"top_k"`

	Chunker ChunkerConfig `yaml:"chunker"`
}

// SetDefaults fills in zero-valued fields.
func (c *Config) SetDefaults() {
	if c.DocsDir == "" {
		c.DocsDir = "documents"
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	c.Chunker.SetDefaults()
}

// DocumentIndex is tier 3 of the retrieval cascade: a semantic index over a
// local document directory.
type DocumentIndex struct {
	vectors  vector.Provider
	embedder embedders.Provider
	chunker  *Chunker
	config   Config
}

// NewDocumentIndex creates a document index.
func NewDocumentIndex(vectors vector.Provider, embedder embedders.Provider, cfg Config) *DocumentIndex {
	cfg.SetDefaults()
	return &DocumentIndex{
		vectors:  vectors,
		embedder: embedder,
		chunker:  NewChunker(cfg.Chunker),
		config:   cfg,
	}
}

// IndexFile extracts, chunks, embeds, and stores one document. Previously
// indexed chunks of the same file are removed first so a shrinking file
// leaves no stale chunks behind. Returns the number of chunks indexed.
func (idx *DocumentIndex) IndexFile(ctx context.Context, path string) (int, error) {
	if !IsSupported(path) {
		return 0, fmt.Errorf("unsupported document type: %s", path)
	}

	content, err := ExtractText(path)
	if err != nil {
		return 0, err
	}

	if err := idx.RemoveFile(ctx, path); err != nil {
		return 0, err
	}

	chunks := idx.chunker.Chunk(content)
	for _, chunk := range chunks {
		vec, err := idx.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunk %d of %s: %w", chunk.Index, path, err)
		}

		metadata := map[string]any{
			"content":     chunk.Content,
			"path":        path,
			"chunk_index": strconv.Itoa(chunk.Index),
			"chunk_total": strconv.Itoa(chunk.Total),
		}
		if err := idx.vectors.Upsert(ctx, vector.CollectionDocuments, chunkID(path, chunk.Index), vec, metadata); err != nil {
			return 0, fmt.Errorf("failed to store chunk %d of %s: %w", chunk.Index, path, err)
		}
	}

	slog.Info("Indexed document", "path", path, "chunks", len(chunks))
	return len(chunks), nil
}

// RemoveFile drops every chunk of a document from the index.
func (idx *DocumentIndex) RemoveFile(ctx context.Context, path string) error {
	if err := idx.vectors.DeleteByFilter(ctx, vector.CollectionDocuments, map[string]any{"path": path}); err != nil {
		return fmt.Errorf("failed to remove chunks of %s: %w", path, err)
	}
	return nil
}

// IndexDirectory indexes every supported document under dir. Individual file
// failures are logged and skipped so one bad document cannot block the rest.
// Returns the number of files indexed.
func (idx *DocumentIndex) IndexDirectory(ctx context.Context, dir string) (int, error) {
	indexed := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsSupported(path) {
			return nil
		}
		if _, err := idx.IndexFile(ctx, path); err != nil {
			slog.Warn("Skipping document", "path", path, "error", err)
			return nil
		}
		indexed++
		return nil
	})
	if err != nil {
		return indexed, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return indexed, nil
}

// Search returns the top document chunks for a query, best first.
func (idx *DocumentIndex) Search(ctx context.Context, query string, topK int) ([]vector.Result, error) {
	if topK <= 0 {
		topK = idx.config.TopK
	}

	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := idx.vectors.Search(ctx, vector.CollectionDocuments, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("document search failed: %w", err)
	}
	return results, nil
}

// chunkID derives a stable UUID from the file path and chunk index so
// re-indexing overwrites rather than duplicates.
func chunkID(path string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", path, index))).String()
}
