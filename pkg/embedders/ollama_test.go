package embedders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *OllamaEmbedder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &Config{Host: server.URL}
	cfg.SetDefaults()
	e := NewOllamaEmbedder(cfg)
	e.sleep = func(time.Duration) {}
	return e
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Run("returns embedding", func(t *testing.T) {
		e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/embeddings", r.URL.Path)

			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "nomic-embed-text", req.Model)
			assert.Equal(t, "hello", req.Prompt)

			json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
		})

		vec, err := e.Embed(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		})

		_, err := e.Embed(context.Background(), "hello")
		assert.ErrorContains(t, err, "status 404")
	})

	t.Run("empty embedding is an error", func(t *testing.T) {
		e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(ollamaEmbedResponse{})
		})

		_, err := e.Embed(context.Background(), "hello")
		assert.ErrorContains(t, err, "empty embedding")
	})

	t.Run("retries transport failures", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts < 3 {
				// Hijack and drop the connection so the client sees a
				// transport error, not an HTTP status.
				conn, _, err := w.(http.Hijacker).Hijack()
				require.NoError(t, err)
				conn.Close()
				return
			}
			json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{1}})
		}))
		t.Cleanup(server.Close)

		cfg := &Config{Host: server.URL}
		cfg.SetDefaults()
		e := NewOllamaEmbedder(cfg)
		e.sleep = func(time.Duration) {}

		vec, err := e.Embed(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{1}, vec)
		assert.Equal(t, 3, attempts)
	})
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := &Config{}
		cfg.SetDefaults()
		assert.Equal(t, "ollama", cfg.Type)
		assert.Equal(t, "nomic-embed-text", cfg.Model)
		assert.Equal(t, 768, cfg.Dimension)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		cfg := &Config{Type: "tfidf"}
		cfg.SetDefaults()
		assert.Error(t, cfg.Validate())
	})
}

func TestNew(t *testing.T) {
	p, err := New(&Config{})
	require.NoError(t, err)
	assert.Equal(t, 768, p.Dimension())
	assert.Equal(t, "nomic-embed-text", p.ModelName())
}
