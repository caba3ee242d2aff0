package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/slate-agents/slate/pkg/embedders"
	"github.com/slate-agents/slate/pkg/vector"
)

// Store is the cross-session answer cache, tier 2 of the retrieval cascade.
// Promoted answers are keyed by their query embedding; lookups validate the
// stored metadata (confidence, TTL, freshness) before serving a hit.
type Store struct {
	vectors   vector.Provider
	embedder  embedders.Provider
	threshold float64
	now       func() time.Time
}

// CacheHit is a served tier-2 answer.
type CacheHit struct {
	Record     CacheRecord
	Similarity float64
}

// NewStore creates a tier-2 cache. threshold is the minimum query similarity
// for a hit; zero means the 0.85 default.
func NewStore(vectors vector.Provider, embedder embedders.Provider, threshold float64) *Store {
	if threshold == 0 {
		threshold = 0.85
	}
	return &Store{
		vectors:   vectors,
		embedder:  embedder,
		threshold: threshold,
		now:       time.Now,
	}
}

// Lookup searches the cache for a valid answer to query. A miss is
// (nil, nil): expired or low-confidence candidates are misses, not errors.
func (s *Store) Lookup(ctx context.Context, query string) (*CacheHit, error) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.vectors.Search(ctx, vector.CollectionMemory, queryVec, 3)
	if err != nil {
		return nil, fmt.Errorf("cache search failed: %w", err)
	}

	now := s.now().UTC()
	for _, result := range results {
		if float64(result.Score) < s.threshold {
			continue
		}
		record := recordFromMetadata(result.Metadata)
		if !record.IsValid(query, now) {
			slog.Debug("Cache candidate rejected by validator", "id", result.ID, "score", result.Score)
			continue
		}
		return &CacheHit{Record: record, Similarity: float64(result.Score)}, nil
	}
	return nil, nil
}

// Promote stores a finished answer in the cache if it qualifies. Returns true
// when the answer was stored.
func (s *Store) Promote(ctx context.Context, query, answer string, confidence float64, source string, goalAchieved bool) (bool, error) {
	if !ShouldPromote(confidence, source, answer, goalAchieved) {
		slog.Debug("Answer not promoted to cache", "confidence", confidence, "source", source, "goal_achieved", goalAchieved)
		return false, nil
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return false, fmt.Errorf("failed to embed query: %w", err)
	}

	record := CacheRecord{
		Query:      query,
		Answer:     answer,
		Confidence: confidence,
		Source:     source,
		Timestamp:  s.now().UTC(),
		TTLHours:   TTLHoursFor(source),
	}

	id := uuid.NewString()
	if err := s.vectors.Upsert(ctx, vector.CollectionMemory, id, queryVec, metadataFromRecord(record)); err != nil {
		return false, fmt.Errorf("failed to store cache record: %w", err)
	}

	slog.Info("Answer promoted to cache", "id", id, "source", source, "ttl_hours", record.TTLHours)
	return true, nil
}

// Vector store metadata survives a round trip as strings, so the record is
// flattened to strings on write and parsed leniently on read.
func metadataFromRecord(record CacheRecord) map[string]any {
	return map[string]any{
		"query":      record.Query,
		"content":    record.Answer,
		"confidence": strconv.FormatFloat(record.Confidence, 'f', -1, 64),
		"source":     record.Source,
		"timestamp":  record.Timestamp.Format(time.RFC3339),
		"ttl_hours":  strconv.Itoa(record.TTLHours),
	}
}

func recordFromMetadata(metadata map[string]any) CacheRecord {
	record := CacheRecord{
		Query:  metadataString(metadata, "query"),
		Answer: metadataString(metadata, "content"),
		Source: metadataString(metadata, "source"),
	}
	record.Confidence, _ = strconv.ParseFloat(metadataString(metadata, "confidence"), 64)
	record.TTLHours, _ = strconv.Atoi(metadataString(metadata, "ttl_hours"))
	if ts, err := time.Parse(time.RFC3339, metadataString(metadata, "timestamp")); err == nil {
		record.Timestamp = ts
	}
	return record
}

func metadataString(metadata map[string]any, key string) string {
	v, ok := metadata[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
