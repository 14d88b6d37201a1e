// Package journal persists an append-only record of observed document
// changes and reload outcomes in SQLite. It exists so a user can audit why
// a notebook was (or was not) reloaded; document content is never stored.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS changes (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_ns  INTEGER NOT NULL,
    path         TEXT NOT NULL,
    observed_ns  INTEGER NOT NULL,
    source       TEXT NOT NULL,
    class        TEXT NOT NULL,
    action       TEXT NOT NULL,
    outcome      TEXT NOT NULL DEFAULT '',
    detail       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_changes_path ON changes(path, recorded_ns);
CREATE INDEX IF NOT EXISTS idx_changes_recorded ON changes(recorded_ns);
`

// Entry is one journaled record: either a classified signal or the
// outcome of a reload attempt.
type Entry struct {
	ID         int64
	RecordedAt time.Time
	Path       string
	ObservedAt time.Time
	Source     string
	Class      string
	Action     string
	Outcome    string
	Detail     string
}

// Journal is the SQLite-backed change journal.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path.
func Open(path string, busyTimeoutMs int) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	if busyTimeoutMs <= 0 {
		busyTimeoutMs = 5000
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record appends an entry and returns its ID. RecordedAt defaults to now.
func (j *Journal) Record(e Entry) (int64, error) {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	result, err := j.db.Exec(`
		INSERT INTO changes (recorded_ns, path, observed_ns, source, class, action, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RecordedAt.UnixNano(), e.Path, e.ObservedAt.UnixNano(),
		e.Source, e.Class, e.Action, e.Outcome, e.Detail,
	)
	if err != nil {
		return 0, fmt.Errorf("insert journal entry: %w", err)
	}
	return result.LastInsertId()
}

// Recent returns the newest entries, most recent first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	return j.query(`
		SELECT id, recorded_ns, path, observed_ns, source, class, action, outcome, detail
		FROM changes ORDER BY recorded_ns DESC, id DESC LIMIT ?`, limit)
}

// RecentByPath returns the newest entries for one path, most recent first.
func (j *Journal) RecentByPath(path string, limit int) ([]Entry, error) {
	return j.query(`
		SELECT id, recorded_ns, path, observed_ns, source, class, action, outcome, detail
		FROM changes WHERE path = ? ORDER BY recorded_ns DESC, id DESC LIMIT ?`, path, limit)
}

func (j *Journal) query(q string, args ...any) ([]Entry, error) {
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recordedNs, observedNs int64
		if err := rows.Scan(&e.ID, &recordedNs, &e.Path, &observedNs,
			&e.Source, &e.Class, &e.Action, &e.Outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.RecordedAt = time.Unix(0, recordedNs)
		e.ObservedAt = time.Unix(0, observedNs)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the total number of journal entries.
func (j *Journal) Count() (int64, error) {
	var n int64
	err := j.db.QueryRow(`SELECT COUNT(*) FROM changes`).Scan(&n)
	return n, err
}
