package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gristmigrate/internal/etl"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded migration.
type Run struct {
	ID          string     `json:"id"`
	Plan        string     `json:"plan"`
	Trigger     string     `json:"trigger"` // "manual" | "schedule" | "file_watch" | "mcp"
	SourceDoc   string     `json:"sourceDoc"`
	TargetDoc   string     `json:"targetDoc"`
	Steps       []string   `json:"steps,omitempty"` // empty: every step
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	Status      string     `json:"status"` // "running" | "success" | "error"
	RowsWritten int        `json:"rowsWritten"`
	Error       string     `json:"error,omitempty"`
	StepRuns    []StepRun  `json:"stepRuns,omitempty"`
}

// StepRun is the recorded outcome of one step of a run.
type StepRun struct {
	ID          string        `json:"id"`
	RunID       string        `json:"runId"`
	Step        string        `json:"step"`
	Table       string        `json:"table"`
	Mode        string        `json:"mode"`
	Status      string        `json:"status"`
	RowsDeleted int           `json:"rowsDeleted"`
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// RunStore implements persistence for migration runs.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// ── Runs ───────────────────────────────────────────────────

// StartRun records a run in the "running" state and assigns its id.
func (s *RunStore) StartRun(run *Run) error {
	run.ID = uuid.New().String()
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = "running"
	if run.Trigger == "" {
		run.Trigger = "manual"
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO runs (id, plan, trigger, source_doc, target_doc, steps, started_at, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Plan, run.Trigger, run.SourceDoc, run.TargetDoc,
		strings.Join(run.Steps, ","), run.StartedAt, run.Status,
	)
	return err
}

// FinishRun stores the outcome of a run and its step results.
func (s *RunStore) FinishRun(runID string, res *etl.RunResult) error {
	tx, err := s.db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	r, err := tx.Exec(
		`UPDATE runs SET finished_at=?, status=?, rows_written=?, error=? WHERE id=?`,
		time.Now(), res.Status, res.RowsWritten(), res.Error, runID,
	)
	if err != nil {
		return err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	for i, sr := range res.Steps {
		_, err := tx.Exec(
			`INSERT INTO step_runs (id, run_id, position, step, target_table, mode, status,
			 rows_deleted, rows_read, rows_written, duration_ms, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), runID, i, sr.Step, sr.Table, string(sr.Mode), sr.Status,
			sr.RowsDeleted, sr.RowsRead, sr.RowsWritten, sr.Duration.Milliseconds(), sr.Error,
		)
		if err != nil {
			return fmt.Errorf("step %s: %w", sr.Step, err)
		}
	}
	return tx.Commit()
}

const runColumns = `id, plan, trigger, source_doc, target_doc, steps, started_at, finished_at, status, rows_written, error`

func scanRun(sc interface{ Scan(...any) error }) (*Run, error) {
	var (
		run      Run
		steps    string
		finished sql.NullTime
	)
	if err := sc.Scan(
		&run.ID, &run.Plan, &run.Trigger, &run.SourceDoc, &run.TargetDoc, &steps,
		&run.StartedAt, &finished, &run.Status, &run.RowsWritten, &run.Error,
	); err != nil {
		return nil, err
	}
	if steps != "" {
		run.Steps = strings.Split(steps, ",")
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

// GetRun returns a run with its step results.
func (s *RunStore) GetRun(id string) (*Run, error) {
	run, err := scanRun(s.db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	run.StepRuns, err = s.ListStepRuns(id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first, without step results.
func (s *RunStore) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ── Step runs ──────────────────────────────────────────────

// ListStepRuns returns the step results of a run, in execution order.
func (s *RunStore) ListStepRuns(runID string) ([]StepRun, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, run_id, step, target_table, mode, status, rows_deleted, rows_read,
		 rows_written, duration_ms, error
		 FROM step_runs WHERE run_id = ? ORDER BY position ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StepRun
	for rows.Next() {
		var (
			sr StepRun
			ms int64
		)
		if err := rows.Scan(&sr.ID, &sr.RunID, &sr.Step, &sr.Table, &sr.Mode, &sr.Status,
			&sr.RowsDeleted, &sr.RowsRead, &sr.RowsWritten, &ms, &sr.Error); err != nil {
			return nil, err
		}
		sr.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, sr)
	}
	return out, rows.Err()
}

// LastSuccess returns the most recent successful run of plan, or nil.
func (s *RunStore) LastSuccess(plan string) (*Run, error) {
	run, err := scanRun(s.db.conn.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE plan = ? AND status = 'success'
		 ORDER BY started_at DESC LIMIT 1`, plan,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// MarkInterrupted closes runs still "running" that started before cutoff,
// which a crashed process left behind.
func (s *RunStore) MarkInterrupted(cutoff time.Time) (int64, error) {
	r, err := s.db.conn.Exec(
		`UPDATE runs SET status='error', error='interrupted', finished_at=? WHERE status='running' AND started_at < ?`,
		time.Now(), cutoff,
	)
	if err != nil {
		return 0, err
	}
	return r.RowsAffected()
}
