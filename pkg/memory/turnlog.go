package memory

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TurnLog is a durable per-session record of finished exchanges, kept in
// SQLite so server deployments can list and resume past sessions after a
// restart. It complements SessionMemory, which only covers one process's
// lifetime of semantic lookups.
type TurnLog struct {
	db *sql.DB
}

// OpenTurnLog opens (and migrates) the turn log database at path.
func OpenTurnLog(path string) (*TurnLog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open turn log: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	query TEXT NOT NULL,
	answer TEXT NOT NULL,
	confidence REAL NOT NULL,
	source TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, id);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate turn log: %w", err)
	}
	return &TurnLog{db: db}, nil
}

// Append records a finished exchange.
func (l *TurnLog) Append(sessionID, query, answer string, confidence float64, source string) error {
	_, err := l.db.Exec(
		`INSERT INTO turns (session_id, query, answer, confidence, source, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, query, answer, confidence, source, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// History returns a session's exchanges in chronological order.
func (l *TurnLog) History(sessionID string) ([]Turn, error) {
	rows, err := l.db.Query(
		`SELECT query, answer, confidence, source, created_at FROM turns WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read turn history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		if err := rows.Scan(&turn.Query, &turn.Answer, &turn.Confidence, &turn.Source, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.TurnID = len(turns)
		turn.Validated = true
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// Sessions lists known session ids, most recent first.
func (l *TurnLog) Sessions() ([]string, error) {
	rows, err := l.db.Query(`SELECT session_id FROM turns GROUP BY session_id ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the database handle.
func (l *TurnLog) Close() error {
	return l.db.Close()
}
