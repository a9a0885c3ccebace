package results

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pkgbench/pkgbench/internal/scheduler"
)

// Run is one driver invocation as recorded in the index.
type Run struct {
	ID            string
	Namespace     string
	Image         string
	SourceVersion string
	Parallelism   string // the full requested spec, e.g. "1,4,max"
	WorstStatus   *int
	Halted        bool
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// TargetRow is one target's recorded outcome at one parallelism level.
type TargetRow struct {
	RunID        string
	Target       string
	Parallelism  string
	Status       int
	FinalState   string
	SkipReason   string
	AccelStarted bool
	Instance     string
	Transcript   string
	Duration     time.Duration
}

// BeginRun inserts a new run row and returns its ULID.
func (db *DB) BeginRun(run *Run) (string, error) {
	id := ulid.Make().String()
	now := time.Now()

	query := `
		INSERT INTO runs (id, namespace, image, source_version, parallelism, halted, started_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`
	if _, err := db.conn.Exec(query, id, run.Namespace, run.Image, run.SourceVersion, run.Parallelism, now); err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}

	run.ID = id
	run.StartedAt = &now
	return id, nil
}

// FinishRun stamps the run's final status and completion time.
func (db *DB) FinishRun(id string, worstStatus int, halted bool) error {
	query := `UPDATE runs SET worst_status = ?, halted = ?, completed_at = ? WHERE id = ?`
	result, err := db.conn.Exec(query, worstStatus, halted, time.Now(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// RecordPass stores every target result from one scheduler pass.
func (db *DB) RecordPass(runID, parallelism string, targets []scheduler.TargetResult) error {
	query := `
		INSERT INTO target_results (run_id, target, parallelism, status, final_state,
			skip_reason, accel_started, instance, transcript, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, tr := range targets {
		_, err := db.conn.Exec(query, runID, tr.Target, parallelism, tr.Status,
			string(tr.Final), tr.SkipReason, tr.AccelStarted, tr.Instance,
			tr.Transcript, tr.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("record target %s: %w", tr.Target, err)
		}
	}
	return nil
}

// GetRun retrieves a run by ID. Returns nil, nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	query := `
		SELECT id, namespace, image, source_version, parallelism,
		       worst_status, halted, started_at, completed_at
		FROM runs
		WHERE id = ?
	`
	run := &Run{}
	err := db.conn.QueryRow(query, id).Scan(
		&run.ID,
		&run.Namespace,
		&run.Image,
		&run.SourceVersion,
		&run.Parallelism,
		&run.WorstStatus,
		&run.Halted,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// TargetHistory returns the recorded outcomes of one target across all
// runs, newest first. ULIDs sort lexically by creation time, so ordering
// by run id descending is ordering by time.
func (db *DB) TargetHistory(target string) ([]TargetRow, error) {
	query := `
		SELECT run_id, target, parallelism, status, final_state,
		       skip_reason, accel_started, instance, transcript, duration_ms
		FROM target_results
		WHERE target = ?
		ORDER BY run_id DESC, id
	`
	rows, err := db.conn.Query(query, target)
	if err != nil {
		return nil, fmt.Errorf("query target history: %w", err)
	}
	defer rows.Close()

	var out []TargetRow
	for rows.Next() {
		var tr TargetRow
		var durationMS int64
		err := rows.Scan(
			&tr.RunID,
			&tr.Target,
			&tr.Parallelism,
			&tr.Status,
			&tr.FinalState,
			&tr.SkipReason,
			&tr.AccelStarted,
			&tr.Instance,
			&tr.Transcript,
			&durationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("scan target row: %w", err)
		}
		tr.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate target rows: %w", err)
	}
	return out, nil
}
