// Package memory implements the two persistent answer tiers: per-session
// conversation memory (tier 1) and the cross-session answer cache (tier 2).
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/slate-agents/slate/pkg/embedders"
)

// Turn is one validated question/answer exchange in a session.
type Turn struct {
	TurnID          int       `json:"turn_id"`
	Query           string    `json:"query"`
	Answer          string    `json:"answer"`
	Confidence      float64   `json:"confidence"`
	Source          string    `json:"source"`
	Timestamp       time.Time `json:"timestamp"`
	Validated       bool      `json:"validated"`
	ContextFromTurn *int      `json:"context_from_turn,omitempty"`
}

// TurnMatch is a turn paired with its similarity to the probe query.
type TurnMatch struct {
	Turn
	Similarity float64 `json:"similarity"`
}

// SessionMemory holds the current conversation's turns and answers semantic
// lookups against them. It is tier 1 of the retrieval cascade: hits here are
// served without touching the cache, documents, or any tool.
type SessionMemory struct {
	sessionID string
	createdAt time.Time
	turns     []Turn
	dir       string
	embedder  embedders.Provider

	// vecCache memoizes turn embeddings per (turnID, field) so repeated
	// searches do not re-embed the whole conversation.
	vecCache map[string][]float32
}

type sessionFile struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Turns     []Turn    `json:"conversation"`
}

// NewSessionMemory creates or resumes session memory. If a saved file exists
// for the session id under dir, its turns are loaded.
func NewSessionMemory(sessionID, dir string, embedder embedders.Provider) (*SessionMemory, error) {
	m := &SessionMemory{
		sessionID: sessionID,
		createdAt: time.Now().UTC(),
		dir:       dir,
		embedder:  embedder,
		vecCache:  make(map[string][]float32),
	}

	raw, err := os.ReadFile(m.filePath())
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var saved sessionFile
	if err := json.Unmarshal(raw, &saved); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	m.createdAt = saved.CreatedAt
	m.turns = saved.Turns
	slog.Debug("Resumed session memory", "session_id", sessionID, "turns", len(m.turns))
	return m, nil
}

func (m *SessionMemory) filePath() string {
	return filepath.Join(m.dir, fmt.Sprintf("session_%s.json", m.sessionID))
}

// SessionID returns the owning session id.
func (m *SessionMemory) SessionID() string {
	return m.sessionID
}

// Turns returns all recorded turns in order.
func (m *SessionMemory) Turns() []Turn {
	return m.turns
}

// AddTurn records an exchange and returns its turn id.
func (m *SessionMemory) AddTurn(query, answer string, confidence float64, source string, validated bool, contextFromTurn *int) int {
	turn := Turn{
		TurnID:          len(m.turns),
		Query:           query,
		Answer:          answer,
		Confidence:      confidence,
		Source:          source,
		Timestamp:       time.Now().UTC(),
		Validated:       validated,
		ContextFromTurn: contextFromTurn,
	}
	m.turns = append(m.turns, turn)
	return turn.TurnID
}

// SearchSimilar finds the best validated, high-confidence turn whose query or
// answer is semantically close to query. Both sides are compared and the
// higher similarity wins. Returns nil when nothing clears the threshold.
func (m *SessionMemory) SearchSimilar(ctx context.Context, query string, threshold float64) (*TurnMatch, error) {
	if len(m.turns) == 0 {
		return nil, nil
	}

	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var best *TurnMatch
	for _, turn := range m.turns {
		if !turn.Validated || turn.Confidence < MinConfidence {
			continue
		}

		querySim, err := m.turnSimilarity(ctx, queryVec, turn.TurnID, "query", turn.Query)
		if err != nil {
			return nil, err
		}
		answerSim, err := m.turnSimilarity(ctx, queryVec, turn.TurnID, "answer", turn.Answer)
		if err != nil {
			return nil, err
		}

		sim := math.Max(querySim, answerSim)
		if sim >= threshold && (best == nil || sim > best.Similarity) {
			best = &TurnMatch{Turn: turn, Similarity: sim}
		}
	}

	if best != nil {
		slog.Debug("Session memory hit", "turn_id", best.TurnID, "similarity", best.Similarity)
	}
	return best, nil
}

func (m *SessionMemory) turnSimilarity(ctx context.Context, queryVec []float32, turnID int, field, text string) (float64, error) {
	key := fmt.Sprintf("%d/%s", turnID, field)
	vec, ok := m.vecCache[key]
	if !ok {
		var err error
		vec, err = m.embedder.Embed(ctx, text)
		if err != nil {
			return 0, fmt.Errorf("failed to embed turn %d %s: %w", turnID, field, err)
		}
		m.vecCache[key] = vec
	}
	return cosineSimilarity(queryVec, vec), nil
}

// ValidateTurn marks a turn as validated.
func (m *SessionMemory) ValidateTurn(turnID int) {
	if turnID >= 0 && turnID < len(m.turns) {
		m.turns[turnID].Validated = true
	}
}

// InvalidateTurn marks a turn as invalid so later searches skip it.
func (m *SessionMemory) InvalidateTurn(turnID int) {
	if turnID >= 0 && turnID < len(m.turns) {
		m.turns[turnID].Validated = false
	}
}

// GetTurn returns a turn by id.
func (m *SessionMemory) GetTurn(turnID int) (Turn, bool) {
	if turnID < 0 || turnID >= len(m.turns) {
		return Turn{}, false
	}
	return m.turns[turnID], true
}

// ContextChain returns the turn and every ancestor it drew context from,
// oldest first.
func (m *SessionMemory) ContextChain(turnID int) []Turn {
	var chain []Turn
	current := &turnID
	for current != nil && *current >= 0 && *current < len(m.turns) {
		turn := m.turns[*current]
		chain = append([]Turn{turn}, chain...)
		current = turn.ContextFromTurn
	}
	return chain
}

// Save writes the session to its JSON file.
func (m *SessionMemory) Save() error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}

	raw, err := json.MarshalIndent(sessionFile{
		SessionID: m.sessionID,
		CreatedAt: m.createdAt,
		Turns:     m.turns,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.WriteFile(m.filePath(), raw, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	slog.Debug("Saved session memory", "session_id", m.sessionID, "turns", len(m.turns))
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
