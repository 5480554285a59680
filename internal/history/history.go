// Package history provides a SQLite-backed log of answered comments. Each
// video has its own thread. Entries are persisted across restarts so the
// creator can review what was suggested, and recent replies can seed future
// prompt context.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Entry is one answered comment.
type Entry struct {
	// VideoID identifies the video the comment was posted on.
	VideoID string
	// Comment is the viewer comment that was answered.
	Comment string
	// ReplyText is the suggested reply.
	ReplyText string
	// ProductIDs are the recommended product IDs, in order.
	ProductIDs []string
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time
}

// Store persists and retrieves answered comments keyed by video.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append persists one answered comment.
	Append(ctx context.Context, e Entry) error
	// Recent returns the most recent n entries for the video, ordered
	// oldest-first. If fewer than n entries exist, all are returned.
	Recent(ctx context.Context, videoID string, n int) ([]Entry, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the reply history database.
// It resolves to ~/.replyrag/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".replyrag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("history: could not create %s: %w", dir, err)
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
		return nil, fmt.Errorf("history: open %s: %w", path, err)
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
CREATE TABLE IF NOT EXISTS replies (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    video_id     TEXT    NOT NULL,
    comment      TEXT    NOT NULL,
    reply        TEXT    NOT NULL,
    product_ids  TEXT    NOT NULL DEFAULT '[]',
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_replies_video_created
    ON replies (video_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Append persists one answered comment.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	ids, err := json.Marshal(e.ProductIDs)
	if err != nil {
		return fmt.Errorf("history: marshal product ids: %w", err)
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	const q = `INSERT INTO replies (video_id, comment, reply, product_ids, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, e.VideoID, e.Comment, e.ReplyText, string(ids), createdAt.Unix()); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries for the video, ordered
// oldest-first. Uses a subquery to select the tail then re-order.
func (s *SQLiteStore) Recent(ctx context.Context, videoID string, n int) ([]Entry, error) {
	const q = `
SELECT video_id, comment, reply, product_ids, created_at FROM (
    SELECT id, video_id, comment, reply, product_ids, created_at
    FROM   replies
    WHERE  video_id = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, videoID, n)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ids string
		var ts int64
		if err := rows.Scan(&e.VideoID, &e.Comment, &e.ReplyText, &ids, &ts); err != nil {
			return nil, fmt.Errorf("history: recent scan: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &e.ProductIDs); err != nil {
			return nil, fmt.Errorf("history: unmarshal product ids: %w", err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("history: close: %w", err)
	}
	return nil
}
