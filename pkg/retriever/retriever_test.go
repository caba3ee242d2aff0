package retriever

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slate-agents/slate/pkg/blackboard"
	"github.com/slate-agents/slate/pkg/memory"
	"github.com/slate-agents/slate/pkg/rag"
	"github.com/slate-agents/slate/pkg/vector"
)

// fakeEmbedder returns canned vectors per text; unknown texts land far from
// everything else.
type fakeEmbedder struct {
	vectors map[string][]float32
	fail    bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, fmt.Errorf("embedder unavailable")
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeEmbedder) Dimension() int    { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Close() error      { return nil }

func newTiers(t *testing.T, embedder *fakeEmbedder) (*memory.SessionMemory, *memory.Store, *rag.DocumentIndex) {
	t.Helper()
	session, err := memory.NewSessionMemory("s1", t.TempDir(), embedder)
	require.NoError(t, err)

	vectors, err := vector.NewChromemProvider(vector.ChromemConfig{}, embedder.Dimension())
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	cache := memory.NewStore(vectors, embedder, 0.85)
	docs := rag.NewDocumentIndex(vectors, embedder, rag.Config{})
	return session, cache, docs
}

func TestCascadeTier1Wins(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"capital of France?":             {1, 0, 0},
		"what is the capital of France?": {0.98, 0.02, 0},
		"Paris":                          {0.9, 0.1, 0},
	}}
	session, cache, docs := newTiers(t, embedder)
	session.AddTurn("what is the capital of France?", "Paris", 0.95, "documents", true, nil)

	// The cache holds the same answer; tier 1 must still win.
	promoted, err := cache.Promote(ctx, "what is the capital of France?", "Paris (from cache, long enough answer)", 0.95, "documents", true)
	require.NoError(t, err)
	require.True(t, promoted)

	r := New(session, cache, docs, Config{})
	bb := blackboard.New("capital of France?", "")

	result := r.Run(ctx, bb, "capital of France?")
	assert.Equal(t, SourceSession, result.Source)
	assert.Equal(t, "Paris", result.Content)
	assert.True(t, result.Exact)
	assert.Equal(t, "Paris", bb.ContextString("initial_retrieval"))
	assert.Equal(t, SourceSession, bb.ContextString("source"))
	assert.Equal(t, "Paris", bb.ContextString("retrieved_answer"))
}

func TestCascadeFallsToTier2(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"highest mountain?": {1, 0, 0},
	}}
	session, cache, docs := newTiers(t, embedder)

	promoted, err := cache.Promote(ctx, "highest mountain?", "Mount Everest at 8849 metres", 0.95, "documents", true)
	require.NoError(t, err)
	require.True(t, promoted)

	r := New(session, cache, docs, Config{})
	bb := blackboard.New("highest mountain?", "")

	result := r.Run(ctx, bb, "highest mountain?")
	assert.Equal(t, SourceCache, result.Source)
	assert.Equal(t, "Mount Everest at 8849 metres", result.Content)
	assert.True(t, result.Exact)
}

func TestCascadeFallsToDocuments(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"erlang history": {1, 0, 0},
	}}
	session, cache, docs := newTiers(t, embedder)

	dir := t.TempDir()
	path := dir + "/erlang.txt"
	require.NoError(t, writeFile(path, "erlang history\nErlang was created at Ericsson in 1986."))
	_, err := docs.IndexFile(ctx, path)
	require.NoError(t, err)

	r := New(session, cache, docs, Config{})
	bb := blackboard.New("erlang history", "")

	result := r.Run(ctx, bb, "erlang history")
	assert.Equal(t, SourceDocuments, result.Source)
	assert.Contains(t, result.Content, "Ericsson")
	assert.Contains(t, result.Content, "erlang.txt")
	// Document chunks are context, not an exact answer.
	assert.False(t, result.Exact)
	assert.Empty(t, bb.ContextString("retrieved_answer"))
}

func TestCascadeMiss(t *testing.T) {
	session, cache, docs := newTiers(t, &fakeEmbedder{})
	r := New(session, cache, docs, Config{})
	bb := blackboard.New("q", "")

	result := r.Run(context.Background(), bb, "something nobody knows")
	assert.Equal(t, SourceNone, result.Source)
	assert.Empty(t, result.Content)
}

func TestEmbedFailureSkipsTiersGracefully(t *testing.T) {
	session, cache, docs := newTiers(t, &fakeEmbedder{fail: true})
	r := New(session, cache, docs, Config{})
	bb := blackboard.New("q", "")

	result := r.Run(context.Background(), bb, "q")
	assert.Equal(t, SourceNone, result.Source)
}

func TestNilTiersAreSkipped(t *testing.T) {
	r := New(nil, nil, nil, Config{})
	bb := blackboard.New("q", "")

	result := r.Run(context.Background(), bb, "q")
	assert.Equal(t, SourceNone, result.Source)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
