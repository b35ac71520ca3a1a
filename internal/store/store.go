// Package store provides SQLite-based persistent storage for the Jasper
// daemon. Uses WAL mode for concurrent reads and crash-safe writes. The
// connection pool is capped at one open connection, so statements execute
// one at a time; callers never hold the connection across HTTP or LLM work.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps the SQLite connection with migrations applied.
type DB struct {
	db *sql.DB
}

// Open creates or opens the database at dir/jasper.db.
// Enables WAL mode, foreign keys, and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "jasper.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer; one connection keeps statement execution
	// serialized without an extra mutex.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id                  INTEGER PRIMARY KEY,
			service_name        TEXT NOT NULL UNIQUE,
			user_identifier     TEXT,
			refresh_token_ref   TEXT NOT NULL,
			last_sync_timestamp INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS calendars (
			id            INTEGER PRIMARY KEY,
			account_id    INTEGER REFERENCES accounts(id),
			external_id   TEXT NOT NULL,
			calendar_name TEXT NOT NULL,
			calendar_type TEXT,
			color         TEXT,
			UNIQUE(account_id, external_id)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id            INTEGER PRIMARY KEY,
			source_id     TEXT NOT NULL,
			calendar_id   INTEGER REFERENCES calendars(id),
			title         TEXT,
			description   TEXT,
			start_time    INTEGER NOT NULL,
			end_time      INTEGER,
			location      TEXT,
			event_type    TEXT,
			participants  TEXT,
			raw_data_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_source_id ON events(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_start_time ON events(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_events_calendar_start_time ON events(calendar_id, start_time)`,
		`CREATE TABLE IF NOT EXISTS insights (
			id           INTEGER PRIMARY KEY,
			created_at   INTEGER NOT NULL,
			emoji        TEXT NOT NULL,
			insight      TEXT NOT NULL,
			context_hash TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_created_at ON insights(created_at)`,
		`CREATE TABLE IF NOT EXISTS context_snapshots (
			id         INTEGER PRIMARY KEY,
			insight_id INTEGER REFERENCES insights(id),
			kind       TEXT NOT NULL,
			payload    TEXT NOT NULL,
			metadata   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_context_snapshots_insight ON context_snapshots(insight_id)`,
		`CREATE TABLE IF NOT EXISTS frontends (
			frontend_id    TEXT PRIMARY KEY,
			pid            INTEGER,
			first_seen     INTEGER NOT NULL,
			last_heartbeat INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_frontends_heartbeat ON frontends(last_heartbeat)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	// Databases created before the all-day flag existed get the column
	// added here; "duplicate column" means it is already present.
	if _, err := d.db.Exec(`ALTER TABLE events ADD COLUMN is_all_day INTEGER DEFAULT 0`); err != nil {
		if !strings.Contains(err.Error(), "duplicate column") {
			return fmt.Errorf("add is_all_day column: %w", err)
		}
	}

	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
