package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemProvider implements Provider using chromem-go for embedded vector
// storage. It is the default store: pure Go, no external services, cosine
// similarity, with optional gob file persistence.
//
// Single-process and memory-bound. For larger corpora use Qdrant.
type ChromemProvider struct {
	db          *chromem.DB
	dimension   int
	persistPath string
	compress    bool
	mu          sync.RWMutex

	collections map[string]*chromem.Collection
}

// ChromemConfig configures the chromem provider.
type ChromemConfig struct {
	// PersistPath is a directory for file persistence. Empty means
	// in-memory only.
	PersistPath string `yaml:"persist_path,omitempty"`

	// Compress enables gzip compression for the persisted file.
	Compress bool `yaml:"compress,omitempty"`
}

// NewChromemProvider creates a chromem-based store that refuses vectors whose
// dimension differs from dimension.
func NewChromemProvider(cfg ChromemConfig, dimension int) (*ChromemProvider, error) {
	db := chromem.NewDB()

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		if err := checkStoredDimension(cfg.PersistPath, dimension); err != nil {
			return nil, err
		}

		dbPath := chromemFilePath(cfg.PersistPath, cfg.Compress)
		if _, statErr := os.Stat(dbPath); statErr == nil {
			if err := db.ImportFromFile(dbPath, ""); err != nil {
				return nil, fmt.Errorf("failed to load vector database %s: %w", dbPath, err)
			}
			slog.Info("Loaded vector database from file", "path", dbPath)
		} else {
			slog.Info("Created new vector database", "path", dbPath)
		}
	} else {
		slog.Debug("Created in-memory vector database (no persistence)")
	}

	return &ChromemProvider{
		db:          db,
		dimension:   dimension,
		persistPath: cfg.PersistPath,
		compress:    cfg.Compress,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func chromemFilePath(dir string, compress bool) string {
	path := dir + "/vectors.gob"
	if compress {
		path += ".gz"
	}
	return path
}

func dimensionFilePath(dir string) string {
	return dir + "/dimension"
}

// checkStoredDimension refuses to open an index built with a different
// embedding dimension. Similarities between vectors from different models
// are meaningless, so the mismatch must fail loudly at startup.
func checkStoredDimension(dir string, dimension int) error {
	raw, err := os.ReadFile(dimensionFilePath(dir))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read stored index dimension: %w", err)
	}
	stored, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("corrupt index dimension record %q: %w", strings.TrimSpace(string(raw)), err)
	}
	if stored != dimension {
		return fmt.Errorf("stored index dimension %d does not match embedder dimension %d", stored, dimension)
	}
	return nil
}

func (p *ChromemProvider) getCollection(name string) (*chromem.Collection, error) {
	p.mu.RLock()
	if col, ok := p.collections[name]; ok {
		p.mu.RUnlock()
		return col, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if col, ok := p.collections[name]; ok {
		return col, nil
	}

	// Vectors arrive pre-computed; the embedding func must never run.
	col, err := p.db.GetOrCreateCollection(name, nil, func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called but vectors are pre-computed")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", name, err)
	}

	p.collections[name] = col
	return col, nil
}

func (p *ChromemProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error {
	if len(vector) != p.dimension {
		return fmt.Errorf("vector dimension mismatch: got %d, collection %q expects %d", len(vector), collection, p.dimension)
	}

	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	strMetadata := make(map[string]string, len(metadata))
	for k, v := range metadata {
		strMetadata[k] = fmt.Sprint(v)
	}

	content := ""
	if c, ok := metadata["content"].(string); ok {
		content = c
	}

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  strMetadata,
		Embedding: vector,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist after upsert", "error", err)
	}
	return nil
}

func (p *ChromemProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, nil)
}

func (p *ChromemProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error) {
	col, err := p.getCollection(collection)
	if err != nil {
		return nil, err
	}

	// chromem errors when topK exceeds the collection size.
	if count := col.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	var whereFilter map[string]string
	if len(filter) > 0 {
		whereFilter = make(map[string]string, len(filter))
		for k, v := range filter {
			whereFilter[k] = fmt.Sprint(v)
		}
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, whereFilter, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		out = append(out, Result{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Metadata: metadata,
		})
	}
	return out, nil
}

func (p *ChromemProvider) Delete(ctx context.Context, collection string, id string) error {
	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist after delete", "error", err)
	}
	return nil
}

func (p *ChromemProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	whereFilter := make(map[string]string, len(filter))
	for k, v := range filter {
		whereFilter[k] = fmt.Sprint(v)
	}

	if err := col.Delete(ctx, whereFilter, nil); err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist after delete", "error", err)
	}
	return nil
}

func (p *ChromemProvider) Name() string {
	return "chromem"
}

// Close persists the database if persistence is enabled.
func (p *ChromemProvider) Close() error {
	return p.persist()
}

func (p *ChromemProvider) persist() error {
	if p.persistPath == "" {
		return nil
	}
	dbPath := chromemFilePath(p.persistPath, p.compress)
	if err := p.db.ExportToFile(dbPath, p.compress, ""); err != nil {
		return fmt.Errorf("failed to persist database: %w", err)
	}
	dim := []byte(strconv.Itoa(p.dimension) + "\n")
	if err := os.WriteFile(dimensionFilePath(p.persistPath), dim, 0644); err != nil {
		return fmt.Errorf("failed to record index dimension: %w", err)
	}
	return nil
}

var _ Provider = (*ChromemProvider)(nil)
