// Package store persists batch jobs in SQLite so reports and result
// archives survive restarts.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	lipa_max        REAL NOT NULL,
	mpa_max         REAL NOT NULL,
	archive_name    TEXT NOT NULL DEFAULT '',
	files_processed INTEGER NOT NULL DEFAULT 0,
	files_failed    INTEGER NOT NULL DEFAULT 0,
	failures_json   TEXT NOT NULL DEFAULT '[]',
	result_path     TEXT NOT NULL DEFAULT '',
	error_message   TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	started_at      TIMESTAMP,
	finished_at     TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	// WAL for concurrent readers while a worker writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}
