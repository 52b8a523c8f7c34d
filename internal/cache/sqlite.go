package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/ticketdesk/internal/apperr"
	"github.com/starford/ticketdesk/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tickets (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_queue (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	ticket_id           TEXT    NOT NULL,
	patch               TEXT    NOT NULL DEFAULT '{}',
	original_updated_at TEXT    NOT NULL DEFAULT '',
	timestamp           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_queue_timestamp ON sync_queue(timestamp);
`

const dropSQL = `
DROP TABLE IF EXISTS tickets;
DROP TABLE IF EXISTS sync_queue;
`

// SQLite is the default Cache backend. The connection is opened lazily and
// re-opened before the next operation if it was lost.
type SQLite struct {
	dsn string

	mu     sync.Mutex
	conn   *sql.DB
	closed bool
}

// OpenSQLite returns a cache backed by the database file at path. Nothing is
// touched on disk until the first operation.
func OpenSQLite(path string) *SQLite {
	return &SQLite{dsn: path + "?_journal_mode=WAL&_busy_timeout=5000"}
}

// db returns a live connection, (re)initializing it when needed.
func (s *SQLite) db(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apperr.ErrCacheClosed
	}
	if s.conn != nil {
		if err := s.conn.PingContext(ctx); err == nil {
			return s.conn, nil
		}
		_ = s.conn.Close()
		s.conn = nil
	}

	conn, err := sql.Open("sqlite3", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

// migrate applies the schema, re-creating tables on a version mismatch.
func migrate(ctx context.Context, conn *sql.DB) error {
	var version int
	if err := conn.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("cache: read schema version: %w", err)
	}
	if version != SchemaVersion {
		if _, err := conn.ExecContext(ctx, dropSQL); err != nil {
			return fmt.Errorf("cache: drop stale schema: %w", err)
		}
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("cache: apply schema: %w", err)
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion)); err != nil {
		return fmt.Errorf("cache: set schema version: %w", err)
	}
	return nil
}

// Close closes the underlying connection. The cache cannot be reused.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// ReplaceAll clears the mirror and stores tickets in one transaction.
func (s *SQLite) ReplaceAll(ctx context.Context, tickets []models.Ticket) error {
	conn, err := s.db(ctx)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, `DELETE FROM tickets`); err != nil {
		return fmt.Errorf("cache: clear tickets: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO tickets (id, data, updated_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cache: prepare ticket insert: %w", err)
	}
	defer stmt.Close()
	for _, t := range tickets {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("cache: encode ticket %s: %w", t.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, t.ID, string(data), t.UpdatedAt); err != nil {
			return fmt.Errorf("cache: insert ticket %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// ReadAll returns every mirrored ticket ordered by id.
func (s *SQLite) ReadAll(ctx context.Context) ([]models.Ticket, error) {
	conn, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `SELECT data FROM tickets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("cache: read tickets: %w", err)
	}
	defer rows.Close()

	out := []models.Ticket{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var t models.Ticket
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("cache: decode ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertOne inserts or replaces a single mirrored ticket.
func (s *SQLite) UpsertOne(ctx context.Context, t models.Ticket) error {
	conn, err := s.db(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("cache: encode ticket %s: %w", t.ID, err)
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO tickets (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, t.ID, string(data), t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("cache: upsert ticket %s: %w", t.ID, err)
	}
	return nil
}

// Append enqueues a change and returns its assigned key.
func (s *SQLite) Append(ctx context.Context, c models.PendingChange) (int64, error) {
	conn, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	patch, err := json.Marshal(c.Patch)
	if err != nil {
		return 0, fmt.Errorf("cache: encode patch: %w", err)
	}
	res, err := conn.ExecContext(ctx, `
		INSERT INTO sync_queue (ticket_id, patch, original_updated_at, timestamp)
		VALUES (?, ?, ?, ?)
	`, c.TicketID, string(patch), c.OriginalUpdatedAt, c.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("cache: enqueue: %w", err)
	}
	return res.LastInsertId()
}

// ReadAllOrdered returns the queue oldest first.
func (s *SQLite) ReadAllOrdered(ctx context.Context) ([]models.PendingChange, error) {
	conn, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `
		SELECT id, ticket_id, patch, original_updated_at, timestamp
		FROM sync_queue
		ORDER BY timestamp, id
	`)
	if err != nil {
		return nil, fmt.Errorf("cache: read queue: %w", err)
	}
	defer rows.Close()

	out := []models.PendingChange{}
	for rows.Next() {
		var c models.PendingChange
		var patch string
		if err := rows.Scan(&c.Key, &c.TicketID, &patch, &c.OriginalUpdatedAt, &c.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(patch), &c.Patch); err != nil {
			return nil, fmt.Errorf("cache: decode patch %d: %w", c.Key, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Remove deletes one queue entry. Missing keys are not an error.
func (s *SQLite) Remove(ctx context.Context, key int64) error {
	conn, err := s.db(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, key); err != nil {
		return fmt.Errorf("cache: remove %d: %w", key, err)
	}
	return nil
}

// Count returns the queue length.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	conn, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache: count queue: %w", err)
	}
	return n, nil
}

// Clear empties the queue.
func (s *SQLite) Clear(ctx context.Context) error {
	conn, err := s.db(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return fmt.Errorf("cache: clear queue: %w", err)
	}
	return nil
}
