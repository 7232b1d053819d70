package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"curator/internal/generation"
)

// Job is one recorded generation run.
type Job struct {
	ID          string           `json:"id"`
	Selection   string           `json:"selection"`
	State       generation.State `json:"state"`
	Total       int              `json:"total"`
	Done        int              `json:"done"`
	Rounds      int              `json:"rounds"`
	MaxRounds   int              `json:"max_rounds"`
	SubmitError string           `json:"submit_error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Pending     []int64          `json:"pending,omitempty"`
}

// Store persists job outcomes.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the journal database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordJob stores a terminal job result. Recording the same job twice
// replaces the earlier row.
func (s *Store) RecordJob(ctx context.Context, result generation.Result) error {
	if result.JobID == "" {
		return errors.New("record job: missing job id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM generation_pending WHERE job_id = ?`, result.JobID); err != nil {
		return fmt.Errorf("clear pending %s: %w", result.JobID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM generation_jobs WHERE job_id = ?`, result.JobID); err != nil {
		return fmt.Errorf("clear job %s: %w", result.JobID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO generation_jobs (
            job_id, selection, state, total, done, rounds, max_rounds,
            submit_error, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.JobID,
		result.Selection,
		string(result.State),
		result.Total,
		result.Done,
		result.Rounds,
		result.MaxRounds,
		nullableString(result.SubmitError),
		formatTime(result.StartedAt),
		formatTime(result.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", result.JobID, err)
	}
	for _, id := range result.Pending {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO generation_pending (job_id, message_id) VALUES (?, ?)`,
			result.JobID, id,
		); err != nil {
			return fmt.Errorf("insert pending %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit job %s: %w", result.JobID, err)
	}
	return nil
}

// Recent returns up to limit jobs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, selection, state, total, done, rounds, max_rounds,
                submit_error, started_at, finished_at
         FROM generation_jobs
         ORDER BY finished_at DESC, job_id
         LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	for i := range jobs {
		pending, err := s.pending(ctx, jobs[i].ID)
		if err != nil {
			return nil, err
		}
		jobs[i].Pending = pending
	}
	return jobs, nil
}

// Get returns the job with id, or nil when unknown.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT job_id, selection, state, total, done, rounds, max_rounds,
                submit_error, started_at, finished_at
         FROM generation_jobs WHERE job_id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if job.Pending, err = s.pending(ctx, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// Prune deletes jobs finished before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	cut := formatTime(cutoff)
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM generation_pending WHERE job_id IN (SELECT job_id FROM generation_jobs WHERE finished_at < ?)`, cut,
	); err != nil {
		return 0, fmt.Errorf("prune pending: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM generation_jobs WHERE finished_at < ?`, cut)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) pending(ctx context.Context, jobID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id FROM generation_pending WHERE job_id = ? ORDER BY message_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (Job, error) {
	var (
		job         Job
		state       string
		submitError sql.NullString
		started     string
		finished    string
	)
	if err := row.Scan(&job.ID, &job.Selection, &state, &job.Total, &job.Done, &job.Rounds,
		&job.MaxRounds, &submitError, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, err
		}
		return Job{}, fmt.Errorf("scan job: %w", err)
	}
	job.State = generation.State(state)
	job.SubmitError = submitError.String
	job.StartedAt = parseTime(started)
	job.FinishedAt = parseTime(finished)
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
