// Package history provides SQLite-backed persistence of finished downloads.
// Failed and cancelled items stay visible here until explicitly cleared.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS downloads (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	identifier  TEXT NOT NULL,
	group_key   TEXT NOT NULL,
	status      TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	bytes       INTEGER NOT NULL DEFAULT 0,
	finished_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_downloads_group ON downloads(group_key);
CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
`

// DB wraps a sql.DB with history-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Row is one finished download.
type Row struct {
	ID         int64     `json:"id"`
	Identifier string    `json:"identifier"`
	GroupKey   string    `json:"group_key"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	Bytes      int64     `json:"bytes"`
	FinishedAt time.Time `json:"finished_at"`
}

// Record inserts a finished download.
func (db *DB) Record(r Row) error {
	finished := r.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO downloads (identifier, group_key, status, message, bytes, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.Identifier, r.GroupKey, r.Status, r.Message, r.Bytes, finished)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// List returns rows newest-first, optionally filtered by group key, with
// the total row count for the filter.
func (db *DB) List(limit, offset int, groupKey string) ([]Row, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{}
	if groupKey != "" {
		where = "WHERE group_key = ?"
		args = append(args, groupKey)
	}

	var total int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM downloads "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("history: count: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, identifier, group_key, status, message, bytes, finished_at
		FROM downloads %s
		ORDER BY finished_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, where)
	rows, err := db.conn.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Identifier, &r.GroupKey, &r.Status, &r.Message, &r.Bytes, &r.FinishedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// Clear removes all rows and returns how many were deleted.
func (db *DB) Clear() (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM downloads`)
	if err != nil {
		return 0, fmt.Errorf("history: clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
