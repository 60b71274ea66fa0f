// Package journal persists run and step outcomes in a local SQLite
// file so an interrupted migration can be resumed where it stopped.
// The engine only reports; sequencing and persistence live here and
// in the CLI.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// Step statuses recorded in the journal. A step that is "running" when
// the process died is treated like a failed one: the next invocation
// redoes it from the start.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Run is one invocation of the migration for one tenant scope.
type Run struct {
	ID          string     `json:"id"`
	Tenant      int64      `json:"tenant"`
	Fingerprint string     `json:"fingerprint"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// Finished reports whether the run completed all its steps.
func (r *Run) Finished() bool {
	return r != nil && r.FinishedAt != nil
}

// Counts carries the row totals of a finished or failed step.
type Counts struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Existing  int `json:"existing"`
	Skipped   int `json:"skipped"`
	Errored   int `json:"errored"`
}

// StepRecord is the journaled outcome of one step within a run.
type StepRecord struct {
	RunID      string     `json:"runId"`
	Step       string     `json:"step"`
	Status     string     `json:"status"`
	Counts     Counts     `json:"counts"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Store is the SQLite-backed run journal.
type Store struct {
	db *sql.DB
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id                 TEXT PRIMARY KEY,
	tenant             INTEGER NOT NULL,
	source_fingerprint TEXT NOT NULL,
	started_at         INTEGER NOT NULL,
	finished_at        INTEGER
);
CREATE TABLE IF NOT EXISTS step_runs (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	step        TEXT NOT NULL,
	status      TEXT NOT NULL,
	processed   INTEGER NOT NULL DEFAULT 0,
	inserted    INTEGER NOT NULL DEFAULT 0,
	existing    INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	errored     INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	PRIMARY KEY (run_id, step)
);
`

// Open opens (creating if needed) the journal file and ensures its
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// The journal is read and written by a single CLI process; one
	// connection avoids SQLITE_BUSY between statements.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginRun records a new run and returns it.
func (s *Store) BeginRun(ctx context.Context, tenant int64, fingerprint string) (*Run, error) {
	r := &Run{
		ID:          uuid.New().String(),
		Tenant:      tenant,
		Fingerprint: fingerprint,
		StartedAt:   time.Now().UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, tenant, source_fingerprint, started_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Tenant, r.Fingerprint, r.StartedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	return r, nil
}

// FinishRun marks a run as completed.
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		time.Now().UTC().Unix(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// StartStep records that a step began. Restarting a step that already
// has a record resets its counts and status.
func (s *Store) StartStep(ctx context.Context, runID, step string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO step_runs (run_id, step, status, started_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (run_id, step) DO UPDATE SET
			status = excluded.status,
			processed = 0, inserted = 0, existing = 0, skipped = 0, errored = 0,
			error = NULL,
			started_at = excluded.started_at,
			finished_at = NULL`,
		runID, step, StatusRunning, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("start step %s: %w", step, err)
	}
	return nil
}

// CompleteStep marks a step done with its final counts.
func (s *Store) CompleteStep(ctx context.Context, runID, step string, c Counts) error {
	return s.finishStep(ctx, runID, step, StatusDone, c, "")
}

// FailStep marks a step failed, keeping whatever counts it reached.
func (s *Store) FailStep(ctx context.Context, runID, step string, c Counts, errMsg string) error {
	return s.finishStep(ctx, runID, step, StatusFailed, c, errMsg)
}

func (s *Store) finishStep(ctx context.Context, runID, step, status string, c Counts, errMsg string) error {
	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE step_runs SET
			status = ?, processed = ?, inserted = ?, existing = ?,
			skipped = ?, errored = ?, error = ?, finished_at = ?
		 WHERE run_id = ? AND step = ?`,
		status, c.Processed, c.Inserted, c.Existing, c.Skipped, c.Errored,
		errVal, time.Now().UTC().Unix(), runID, step,
	)
	if err != nil {
		return fmt.Errorf("record step %s: %w", step, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("step %s has no start record in run %s", step, runID)
	}
	return nil
}

// LastRun returns the most recent run for the tenant scope, or nil
// when the journal has none.
func (s *Store) LastRun(ctx context.Context, tenant int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant, source_fingerprint, started_at, finished_at
		 FROM runs WHERE tenant = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		tenant,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func scanRun(row *sql.Row) (*Run, error) {
	var r Run
	var started int64
	var finished sql.NullInt64
	if err := row.Scan(&r.ID, &r.Tenant, &r.Fingerprint, &started, &finished); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(started, 0).UTC()
	if finished.Valid {
		t := time.Unix(finished.Int64, 0).UTC()
		r.FinishedAt = &t
	}
	return &r, nil
}

// StepStatuses returns the step records of a run in start order.
func (s *Store) StepStatuses(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, step, status, processed, inserted, existing,
			skipped, errored, error, started_at, finished_at
		 FROM step_runs WHERE run_id = ? ORDER BY started_at, rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("read step records: %w", err)
	}
	defer rows.Close()

	var result []StepRecord
	for rows.Next() {
		var rec StepRecord
		var errMsg sql.NullString
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(
			&rec.RunID, &rec.Step, &rec.Status,
			&rec.Counts.Processed, &rec.Counts.Inserted, &rec.Counts.Existing,
			&rec.Counts.Skipped, &rec.Counts.Errored,
			&errMsg, &started, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan step record: %w", err)
		}
		rec.Error = errMsg.String
		rec.StartedAt = time.Unix(started, 0).UTC()
		if finished.Valid {
			t := time.Unix(finished.Int64, 0).UTC()
			rec.FinishedAt = &t
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// DoneSteps returns the names of steps already completed in a run.
func (s *Store) DoneSteps(ctx context.Context, runID string) (map[string]bool, error) {
	recs, err := s.StepStatuses(ctx, runID)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool)
	for _, rec := range recs {
		if rec.Status == StatusDone {
			done[rec.Step] = true
		}
	}
	return done, nil
}

// Reset clears the whole journal.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM step_runs`); err != nil {
		return fmt.Errorf("reset journal: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs`); err != nil {
		return fmt.Errorf("reset journal: %w", err)
	}
	return nil
}

// ResetStep removes one step's records across all runs so the next
// migrate redoes it.
func (s *Store) ResetStep(ctx context.Context, step string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM step_runs WHERE step = ?`, step)
	if err != nil {
		return fmt.Errorf("reset step %s: %w", step, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("step %s has no journal records", step)
	}
	return nil
}
