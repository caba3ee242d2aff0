package coordinator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ConversationLogger appends one JSON line per agent event to a per-process
// log file. Logging is fail-soft: a broken disk must not kill a run.
type ConversationLogger struct {
	mu     sync.Mutex
	path   string
	turnID int
	now    func() time.Time
}

type logEntry struct {
	TurnID    int            `json:"turn_id"`
	Role      string         `json:"role"`
	Content   map[string]any `json:"content"`
	Timestamp string         `json:"timestamp"`
}

// NewConversationLogger creates a logger writing to
// dir/conversation_<timestamp>.jsonl.
func NewConversationLogger(dir string) (*ConversationLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	name := fmt.Sprintf("conversation_%s.jsonl", time.Now().Format("20060102_150405"))
	return &ConversationLogger{
		path: filepath.Join(dir, name),
		now:  time.Now,
	}, nil
}

// Path returns the log file location.
func (l *ConversationLogger) Path() string {
	return l.path
}

func (l *ConversationLogger) append(role string, content map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := logEntry{
		TurnID:    l.turnID,
		Role:      role,
		Content:   content,
		Timestamp: l.now().UTC().Format(time.RFC3339),
	}
	l.turnID++

	raw, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("failed to encode conversation log entry", "error", err)
		return
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Warn("failed to open conversation log", "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(raw, '\n')); err != nil {
		slog.Warn("failed to write conversation log", "error", err)
	}
}

// UserQuery logs the incoming query.
func (l *ConversationLogger) UserQuery(query string) {
	l.append("user", map[string]any{"query": query})
}

// Perception logs a critique snapshot.
func (l *ConversationLogger) Perception(kind string, data map[string]any) {
	content := map[string]any{"snapshot_type": kind}
	for k, v := range data {
		content[k] = v
	}
	l.append("perception", content)
}

// Retriever logs a retrieval outcome.
func (l *ConversationLogger) Retriever(query, source string, chars int) {
	l.append("retriever", map[string]any{
		"query":  query,
		"source": source,
		"chars":  chars,
	})
}

// Decision logs a planned step.
func (l *ConversationLogger) Decision(mode string, stepIndex int, stepType, description, code string) {
	l.append("decision", map[string]any{
		"plan_mode": mode,
		"next_step": map[string]any{
			"step_index":  stepIndex,
			"type":        stepType,
			"description": description,
			"code":        code,
		},
	})
}

// Executor logs a step execution outcome. Long results are clipped.
func (l *ConversationLogger) Executor(stepIndex int, status, result string) {
	if len(result) > 500 {
		result = result[:500]
	}
	l.append("executor", map[string]any{
		"step_index":       stepIndex,
		"status":           status,
		"execution_result": result,
	})
}

// Conclusion logs the terminal outcome of a run.
func (l *ConversationLogger) Conclusion(conclusion string) {
	l.append("conclusion", map[string]any{"conclusion": conclusion})
}
