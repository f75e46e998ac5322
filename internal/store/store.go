// Package store provides a SQLite-backed conversation history store. Each
// conversation ID has its own thread of turns. Turns are persisted across
// server restarts and replayed into the question pipeline on follow-ups,
// so clients only need to carry a conversation identifier.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser is a question from the end user.
	RoleUser Role = "user"
	// RoleAssistant is an answer produced by the system.
	RoleAssistant Role = "assistant"
)

// Turn is a single entry in a conversation.
type Turn struct {
	// Role is the author of the turn.
	Role Role
	// Content is the text of the turn.
	Content string
	// CreatedAt is when the turn was persisted.
	CreatedAt time.Time
}

// ConversationStore persists and retrieves conversation history keyed by
// conversation ID. Implementations must be safe for concurrent use.
type ConversationStore interface {
	// Append persists a single turn for the given conversation.
	Append(ctx context.Context, conversationID string, role Role, content string) error
	// Recent returns the most recent n turns for the conversation, ordered
	// oldest-first so they can be fed to the pipeline directly.
	// If fewer than n turns exist, all are returned.
	Recent(ctx context.Context, conversationID string, n int) ([]Turn, error)
	// Delete removes all turns of the given conversation.
	Delete(ctx context.Context, conversationID string) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a ConversationStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the conversation history database.
// It resolves to ~/.docqa/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS turns (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT    NOT NULL,
    role            TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content         TEXT    NOT NULL,
    created_at      INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_turns_conversation_created
    ON turns (conversation_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single turn for the given conversation.
func (s *SQLiteStore) Append(ctx context.Context, conversationID string, role Role, content string) error {
	const q = `INSERT INTO turns (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, conversationID, string(role), content, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n turns for the conversation, ordered
// oldest-first. Uses a subquery to select the tail then re-order for replay.
func (s *SQLiteStore) Recent(ctx context.Context, conversationID string, n int) ([]Turn, error) {
	const q = `
SELECT role, content, created_at FROM (
    SELECT id, role, content, created_at
    FROM   turns
    WHERE  conversation_id = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var ts int64
		var role string
		if err := rows.Scan(&role, &t.Content, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		t.Role = Role(role)
		t.CreatedAt = time.Unix(ts, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return turns, nil
}

// Delete removes all turns of the given conversation.
func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) error {
	const q = `DELETE FROM turns WHERE conversation_id = ?`
	if _, err := s.db.ExecContext(ctx, q, conversationID); err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
