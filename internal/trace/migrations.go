package trace

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all trace tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		pipeline    TEXT NOT NULL,
		state       TEXT NOT NULL DEFAULT 'RUNNING',
		workers     INTEGER NOT NULL,
		tasks       INTEGER NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		finished_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id  TEXT NOT NULL,
		seq     INTEGER NOT NULL,
		kind    TEXT NOT NULL,
		task_id INTEGER NOT NULL,
		task    TEXT NOT NULL DEFAULT '',
		worker  INTEGER NOT NULL,
		stream  INTEGER NOT NULL DEFAULT 0,
		at      TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
