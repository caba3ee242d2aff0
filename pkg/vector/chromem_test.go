package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryProvider(t *testing.T, dimension int) *ChromemProvider {
	t.Helper()
	p, err := NewChromemProvider(ChromemConfig{}, dimension)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestChromemProvider_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	p := newMemoryProvider(t, 3)

	require.NoError(t, p.Upsert(ctx, CollectionMemory, "a", []float32{1, 0, 0}, map[string]any{"content": "alpha"}))
	require.NoError(t, p.Upsert(ctx, CollectionMemory, "b", []float32{0, 1, 0}, map[string]any{"content": "beta"}))

	results, err := p.Search(ctx, CollectionMemory, []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "alpha", results[0].Content)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestChromemProvider_DimensionGuard(t *testing.T) {
	ctx := context.Background()
	p := newMemoryProvider(t, 3)

	err := p.Upsert(ctx, CollectionMemory, "bad", []float32{1, 0}, nil)
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestChromemProvider_SearchWithFilter(t *testing.T) {
	ctx := context.Background()
	p := newMemoryProvider(t, 2)

	require.NoError(t, p.Upsert(ctx, CollectionMemory, "web", []float32{1, 0}, map[string]any{"content": "from web", "source": "web"}))
	require.NoError(t, p.Upsert(ctx, CollectionMemory, "doc", []float32{1, 0}, map[string]any{"content": "from docs", "source": "documents"}))

	results, err := p.SearchWithFilter(ctx, CollectionMemory, []float32{1, 0}, 5, map[string]any{"source": "web"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "web", results[0].ID)
}

func TestChromemProvider_SearchEmptyCollection(t *testing.T) {
	ctx := context.Background()
	p := newMemoryProvider(t, 2)

	// topK larger than the collection must not error.
	results, err := p.Search(ctx, CollectionDocuments, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemProvider_Delete(t *testing.T) {
	ctx := context.Background()
	p := newMemoryProvider(t, 2)

	require.NoError(t, p.Upsert(ctx, CollectionMemory, "a", []float32{1, 0}, map[string]any{"content": "alpha"}))
	require.NoError(t, p.Delete(ctx, CollectionMemory, "a"))

	results, err := p.Search(ctx, CollectionMemory, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemProvider_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	p, err := NewChromemProvider(ChromemConfig{PersistPath: dir}, 2)
	require.NoError(t, err)
	require.NoError(t, p.Upsert(ctx, CollectionMemory, "a", []float32{1, 0}, map[string]any{"content": "alpha"}))
	require.NoError(t, p.Close())

	reloaded, err := NewChromemProvider(ChromemConfig{PersistPath: dir}, 2)
	require.NoError(t, err)
	t.Cleanup(func() { reloaded.Close() })

	results, err := reloaded.Search(ctx, CollectionMemory, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha", results[0].Content)
}

func TestChromemProvider_RefusesDimensionMismatchOnLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	p, err := NewChromemProvider(ChromemConfig{PersistPath: dir}, 2)
	require.NoError(t, err)
	require.NoError(t, p.Upsert(ctx, CollectionMemory, "a", []float32{1, 0}, map[string]any{"content": "alpha"}))
	require.NoError(t, p.Close())

	// An index written at dimension 2 must not open under a 3-dim embedder.
	_, err = NewChromemProvider(ChromemConfig{PersistPath: dir}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stored index dimension 2 does not match embedder dimension 3")
}

func TestConfigValidate(t *testing.T) {
	t.Run("defaults to chromem", func(t *testing.T) {
		cfg := &Config{}
		cfg.SetDefaults()
		assert.Equal(t, "chromem", cfg.Type)
		assert.Equal(t, 768, cfg.Dimension)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		cfg := &Config{Type: "faiss"}
		cfg.SetDefaults()
		assert.ErrorContains(t, cfg.Validate(), "unsupported vector store type")
	})
}
