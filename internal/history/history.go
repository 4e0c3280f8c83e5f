// Package history keeps the SQLite changelog of status transitions and
// re-plans, plus the last applied checksum of each project document.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/taskgraph/internal/idgen"
	"github.com/starford/taskgraph/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS changelog (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	ts          DATETIME NOT NULL,
	function_id TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	from_status TEXT NOT NULL DEFAULT '',
	to_status   TEXT NOT NULL DEFAULT '',
	notes       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_changelog_function ON changelog(function_id);

CREATE TABLE IF NOT EXISTS doc_checksums (
	kind     TEXT PRIMARY KEY,
	checksum TEXT NOT NULL
);
`

// Log is the changelog as consumed by the tracker.
type Log interface {
	Append(e models.ChangeLogEntry) (models.ChangeLogEntry, error)
	List(functionID string, limit int) ([]models.ChangeLogEntry, error)
	GetChecksum(kind string) (string, error)
	SetChecksum(kind, sum string) error
	Close() error
}

var _ Log = (*DB)(nil)

// DB is the SQLite-backed Log.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
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

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Append stores e, filling in its id and timestamp when empty, and returns
// the stored entry.
func (db *DB) Append(e models.ChangeLogEntry) (models.ChangeLogEntry, error) {
	if e.ID == "" {
		id, err := idgen.NewChangeID()
		if err != nil {
			return e, err
		}
		e.ID = id
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()

	_, err := db.conn.Exec(`
		INSERT INTO changelog (id, ts, function_id, action, from_status, to_status, notes, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Timestamp, e.FunctionID, e.Action, string(e.From), string(e.To), e.Notes, e.Description)
	if err != nil {
		return e, fmt.Errorf("history: append: %w", err)
	}
	return e, nil
}

// List returns entries newest first. An empty functionID lists every entry;
// limit <= 0 means no limit.
func (db *DB) List(functionID string, limit int) ([]models.ChangeLogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, ts, function_id, action, from_status, to_status, notes, description FROM changelog`
	args := []any{}
	if functionID != "" {
		query += ` WHERE function_id = ?`
		args = append(args, functionID)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	out := []models.ChangeLogEntry{}
	for rows.Next() {
		var (
			e        models.ChangeLogEntry
			from, to string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.FunctionID, &e.Action, &from, &to, &e.Notes, &e.Description); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.From, e.To = models.Status(from), models.Status(to)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetChecksum returns the last applied checksum for a document kind, or ""
// if none was recorded.
func (db *DB) GetChecksum(kind string) (string, error) {
	var sum string
	err := db.conn.QueryRow(`SELECT checksum FROM doc_checksums WHERE kind = ?`, kind).Scan(&sum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("history: get checksum: %w", err)
	}
	return sum, nil
}

// SetChecksum records the checksum of the document version last applied.
func (db *DB) SetChecksum(kind, sum string) error {
	_, err := db.conn.Exec(`
		INSERT INTO doc_checksums (kind, checksum) VALUES (?, ?)
		ON CONFLICT(kind) DO UPDATE SET checksum = excluded.checksum
	`, kind, sum)
	if err != nil {
		return fmt.Errorf("history: set checksum: %w", err)
	}
	return nil
}
