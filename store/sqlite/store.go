// Package sqlite provides a file-backed ergate.StateStore using the
// pure-Go modernc.org/sqlite driver. It implements StateStore only; a
// SQLite table has no natural blocking-queue semantics, so pair it with
// store/memory's or store/redis's Queue.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	ergate "github.com/ergatehq/ergate"
	"github.com/ergatehq/ergate/internal/validation"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	workflow_name TEXT NOT NULL,
	status TEXT NOT NULL,
	requested_start_time INTEGER,
	record TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

// Store is an ergate.StateStore backed by a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the jobs table exists. path comes from configuration, not
// end-user input, but is still checked for null bytes and parent-
// directory traversal before being handed to the driver.
func Open(path string) (*Store, error) {
	if err := validation.IsPathSafe(path); err != nil {
		return nil, fmt.Errorf("sqlite database path %q: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func startTimeUnix(job ergate.Job) sql.NullInt64 {
	if job.RequestedStartTime == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: job.RequestedStartTime.Unix(), Valid: true}
}

func (s *Store) upsert(ctx context.Context, exec interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, job ergate.Job) error {
	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job %q: %w", job.ID, err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO jobs (id, workflow_name, status, requested_start_time, record)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workflow_name = excluded.workflow_name,
			status = excluded.status,
			requested_start_time = excluded.requested_start_time,
			record = excluded.record
	`, job.ID, job.WorkflowName, string(job.Status), startTimeUnix(job), string(record))
	return err
}

// Create persists a brand-new job record.
func (s *Store) Create(ctx context.Context, job ergate.Job) error {
	if err := s.upsert(ctx, s.db, job); err != nil {
		return fmt.Errorf("creating job %q: %w", job.ID, err)
	}
	return nil
}

// Get returns the current record for id.
func (s *Store) Get(ctx context.Context, id string) (ergate.Job, error) {
	var record string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM jobs WHERE id = ?`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return ergate.Job{}, fmt.Errorf("job %q not found", id)
	}
	if err != nil {
		return ergate.Job{}, fmt.Errorf("fetching job %q: %w", id, err)
	}
	var job ergate.Job
	if err := json.Unmarshal([]byte(record), &job); err != nil {
		return ergate.Job{}, fmt.Errorf("decoding job %q: %w", id, err)
	}
	return job, nil
}

// Update persists job's current state.
func (s *Store) Update(ctx context.Context, job ergate.Job) error {
	if err := s.upsert(ctx, s.db, job); err != nil {
		return fmt.Errorf("updating job %q: %w", job.ID, err)
	}
	return nil
}

// FetchManyAndTransitionToQueued selects every due PENDING/SCHEDULED job
// inside one transaction, marks each QUEUED, and returns the updated
// records. The transaction gives the select-then-update atomicity the
// engine's contract requires, since modernc.org/sqlite doesn't support
// UPDATE ... RETURNING the way PostgreSQL does.
func (s *Store) FetchManyAndTransitionToQueued(ctx context.Context) ([]ergate.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	rows, err := tx.QueryContext(ctx, `
		SELECT record FROM jobs
		WHERE status IN (?, ?)
		  AND (requested_start_time IS NULL OR requested_start_time <= ?)
	`, string(ergate.StatusPending), string(ergate.StatusScheduled), now)
	if err != nil {
		return nil, fmt.Errorf("selecting due jobs: %w", err)
	}

	var jobs []ergate.Job
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning due job: %w", err)
		}
		var job ergate.Job
		if err := json.Unmarshal([]byte(record), &job); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decoding due job: %w", err)
		}
		jobs = append(jobs, job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range jobs {
		jobs[i].Status = ergate.StatusQueued
		if err := s.upsert(ctx, tx, jobs[i]); err != nil {
			return nil, fmt.Errorf("transitioning job %q to queued: %w", jobs[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transition: %w", err)
	}
	return jobs, nil
}
