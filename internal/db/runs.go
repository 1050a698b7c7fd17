package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a run id is not in the registry.
var ErrRunNotFound = errors.New("run not found")

const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusFailed   = "failed"
)

// Run is one tracking run.
type Run struct {
	ID         string
	Name       string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Error      string
}

// RunParam is a string parameter captured at the start of a run.
type RunParam struct {
	Key   string
	Value string
}

// RunMetric is a numeric result; Step distinguishes repeated logs of the
// same key.
type RunMetric struct {
	Key        string
	Value      float64
	Step       int64
	RecordedAt time.Time
}

// RunArtifact is a file produced by a run.
type RunArtifact struct {
	Path       string
	SizeBytes  int64
	RecordedAt time.Time
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// CreateRun inserts r with status running unless r.Status is set.
func (db *DB) CreateRun(r *Run) error {
	if r.ID == "" {
		return errors.New("run id is required")
	}
	if r.Status == "" {
		r.Status = RunStatusRunning
	}
	_, err := db.Exec(
		`INSERT INTO runs (run_id, name, status, started_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Name, r.Status, formatTime(r.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun marks a run finished, or failed when runErr is non-nil.
func (db *DB) FinishRun(id string, at time.Time, runErr error) error {
	status := RunStatusFinished
	var msg sql.NullString
	if runErr != nil {
		status = RunStatusFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := db.Exec(
		`UPDATE runs SET status = ?, finished_at = ?, error = ? WHERE run_id = ?`,
		status, formatTime(at), msg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun loads one run.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(
		`SELECT run_id, name, status, started_at, finished_at, error FROM runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// ListRuns returns every run, oldest first.
func (db *DB) ListRuns() ([]Run, error) {
	rows, err := db.Query(
		`SELECT run_id, name, status, started_at, finished_at, error FROM runs ORDER BY started_at, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r        Run
		started  string
		finished sql.NullString
		msg      sql.NullString
	)
	if err := s.Scan(&r.ID, &r.Name, &r.Status, &started, &finished, &msg); err != nil {
		return nil, err
	}
	t, err := parseTime(started)
	if err != nil {
		return nil, fmt.Errorf("run %s started_at: %w", r.ID, err)
	}
	r.StartedAt = t
	if finished.Valid {
		ft, err := parseTime(finished.String)
		if err != nil {
			return nil, fmt.Errorf("run %s finished_at: %w", r.ID, err)
		}
		r.FinishedAt = &ft
	}
	r.Error = msg.String
	return &r, nil
}

// SetParam stores a parameter, replacing any earlier value for key.
func (db *DB) SetParam(runID, key, value string) error {
	_, err := db.Exec(
		`INSERT INTO params (run_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (run_id, key) DO UPDATE SET value = excluded.value`,
		runID, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set param %s: %w", key, err)
	}
	return nil
}

// RecordMetric stores a metric value at step.
func (db *DB) RecordMetric(runID string, m RunMetric) error {
	_, err := db.Exec(
		`INSERT INTO metrics (run_id, key, value, step, recorded_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, key, step) DO UPDATE SET value = excluded.value, recorded_at = excluded.recorded_at`,
		runID, m.Key, m.Value, m.Step, formatTime(m.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record metric %s: %w", m.Key, err)
	}
	return nil
}

// AddArtifact records a file produced by the run.
func (db *DB) AddArtifact(runID string, a RunArtifact) error {
	_, err := db.Exec(
		`INSERT INTO artifacts (run_id, path, size_bytes, recorded_at) VALUES (?, ?, ?, ?)`,
		runID, a.Path, a.SizeBytes, formatTime(a.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add artifact %s: %w", a.Path, err)
	}
	return nil
}

// Params returns the run's parameters sorted by key.
func (db *DB) Params(runID string) ([]RunParam, error) {
	rows, err := db.Query(`SELECT key, value FROM params WHERE run_id = ? ORDER BY key`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunParam
	for rows.Next() {
		var p RunParam
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Metrics returns the run's metrics ordered by key then step.
func (db *DB) Metrics(runID string) ([]RunMetric, error) {
	rows, err := db.Query(
		`SELECT key, value, step, recorded_at FROM metrics WHERE run_id = ? ORDER BY key, step`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunMetric
	for rows.Next() {
		var (
			m  RunMetric
			at string
		)
		if err := rows.Scan(&m.Key, &m.Value, &m.Step, &at); err != nil {
			return nil, err
		}
		if m.RecordedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Artifacts returns the run's artifacts in insertion order.
func (db *DB) Artifacts(runID string) ([]RunArtifact, error) {
	rows, err := db.Query(
		`SELECT path, size_bytes, recorded_at FROM artifacts WHERE run_id = ? ORDER BY artifact_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunArtifact
	for rows.Next() {
		var (
			a  RunArtifact
			at string
		)
		if err := rows.Scan(&a.Path, &a.SizeBytes, &at); err != nil {
			return nil, err
		}
		if a.RecordedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
