// Package retriever runs the tiered context cascade before planning:
// session memory, then the cross-session cache, then the document index.
// The first tier with a qualifying hit short-circuits the rest.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slate-agents/slate/pkg/blackboard"
	"github.com/slate-agents/slate/pkg/memory"
	"github.com/slate-agents/slate/pkg/rag"
)

// Source tags written to context_data.source, consumed by the coordinator
// when it records turns and attempts cache promotion.
const (
	SourceSession   = "session_memory"
	SourceCache     = "memory_cache"
	SourceDocuments = "documents"
	SourceNone      = "unknown"
)

// Config holds the cascade thresholds.
type Config struct {
	// SessionThreshold is the minimum cosine similarity for a tier-1 hit.
	SessionThreshold float64 `yaml:"session_threshold"`
	// DocTopK is how many document chunks tier 3 contributes.
	DocTopK int `yaml:"doc_top_k"`
}

// SetDefaults applies the canonical thresholds.
func (c *Config) SetDefaults() {
	if c.SessionThreshold == 0 {
		c.SessionThreshold = 0.85
	}
	if c.DocTopK == 0 {
		c.DocTopK = 5
	}
}

// Result reports which tier answered and what it contributed.
type Result struct {
	Source  string
	Content string
	// Exact marks a verbatim prior answer (tiers 1 and 2). Document chunks
	// are supporting context, not an answer.
	Exact bool
}

// Retriever owns the three tiers. Any tier may be nil; the cascade skips it.
type Retriever struct {
	session *memory.SessionMemory
	cache   *memory.Store
	docs    *rag.DocumentIndex
	config  Config
}

// New creates a retriever over the configured tiers.
func New(session *memory.SessionMemory, cache *memory.Store, docs *rag.DocumentIndex, config Config) *Retriever {
	config.SetDefaults()
	return &Retriever{session: session, cache: cache, docs: docs, config: config}
}

// Run executes the cascade for query and writes the outcome to the
// blackboard: context_data["initial_retrieval"] carries the content and
// context_data["source"] the winning tier. A tier whose embedder or index
// fails is skipped, not fatal; answering from a lower tier beats failing.
func (r *Retriever) Run(ctx context.Context, bb *blackboard.Blackboard, query string) *Result {
	result := r.lookup(ctx, query)

	bb.SetContext("initial_retrieval", result.Content)
	bb.SetContext("source", result.Source)
	if result.Exact {
		bb.SetContext("retrieved_answer", result.Content)
	}
	return result
}

func (r *Retriever) lookup(ctx context.Context, query string) *Result {
	if r.session != nil {
		match, err := r.session.SearchSimilar(ctx, query, r.config.SessionThreshold)
		if err != nil {
			slog.Warn("session memory search failed, falling through", "error", err)
		} else if match != nil {
			slog.Info("retrieval hit", "tier", 1, "similarity", match.Similarity)
			return &Result{Source: SourceSession, Content: match.Answer, Exact: true}
		}
	}

	if r.cache != nil {
		hit, err := r.cache.Lookup(ctx, query)
		if err != nil {
			slog.Warn("memory cache lookup failed, falling through", "error", err)
		} else if hit != nil {
			slog.Info("retrieval hit", "tier", 2, "similarity", hit.Similarity)
			return &Result{Source: SourceCache, Content: hit.Record.Answer, Exact: true}
		}
	}

	if r.docs != nil {
		chunks, err := r.docs.Search(ctx, query, r.config.DocTopK)
		if err != nil {
			slog.Warn("document search failed, falling through", "error", err)
		} else if len(chunks) > 0 {
			var sb strings.Builder
			sb.WriteString("Local Documents:\n")
			for _, chunk := range chunks {
				path, _ := chunk.Metadata["path"].(string)
				fmt.Fprintf(&sb, "\n[%s]\n%s\n", path, chunk.Content)
			}
			slog.Info("retrieval hit", "tier", 3, "chunks", len(chunks))
			return &Result{Source: SourceDocuments, Content: sb.String()}
		}
	}

	return &Result{Source: SourceNone}
}
