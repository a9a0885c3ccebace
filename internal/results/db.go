package results

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB is the run index: a small SQLite database next to the results
// directory recording every pass and per-target outcome, so past runs
// stay queryable after their transcripts are gone.
type DB struct {
	conn *sql.DB
}

// Open creates or opens the run index at the given path, enabling WAL
// mode and foreign keys and applying the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run index: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate run index: %w", err)
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
-- Runs table: one row per driver invocation
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    namespace       TEXT NOT NULL,
    image           TEXT NOT NULL,
    source_version  TEXT,
    parallelism     TEXT NOT NULL,
    worst_status    INTEGER,
    halted          INTEGER NOT NULL DEFAULT 0,
    started_at      DATETIME,
    completed_at    DATETIME
);

-- Target results: one row per target per parallelism level
CREATE TABLE IF NOT EXISTS target_results (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    target          TEXT NOT NULL,
    parallelism     TEXT NOT NULL,
    status          INTEGER NOT NULL,
    final_state     TEXT NOT NULL,
    skip_reason     TEXT,
    accel_started   INTEGER NOT NULL DEFAULT 0,
    instance        TEXT,
    transcript      TEXT,
    duration_ms     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_target_results_run_id ON target_results(run_id);
CREATE INDEX IF NOT EXISTS idx_target_results_target ON target_results(target);
`

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}
