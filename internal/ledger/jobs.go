package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pitchcam/internal/api"
)

// JobStatus is the lifecycle state of a stitch job.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
	// JobDead marks a session that exhausted its attempts. Scans skip it
	// until Reset is called.
	JobDead JobStatus = "dead"
)

// Job is one row of the stitch ledger.
type Job struct {
	SessionID  string
	Status     JobStatus
	Attempts   int
	LastError  string
	OutputPath string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// API converts the job to its wire form.
func (j Job) API() api.StitchJob {
	return api.StitchJob{
		SessionID:  j.SessionID,
		Status:     string(j.Status),
		Attempts:   j.Attempts,
		LastError:  j.LastError,
		OutputPath: j.OutputPath,
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}

const jobColumns = "session_id, status, attempts, last_error, output_path, created_at, updated_at"

// MarkQueued records that a session was discovered and queued. Dead and
// running sessions keep their state.
func (s *Store) MarkQueued(ctx context.Context, sessionID string) error {
	now := s.stamp()
	return s.exec(ctx, `INSERT INTO stitch_jobs (session_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
		WHERE stitch_jobs.status NOT IN (?, ?)`,
		sessionID, JobQueued, now, now, JobDead, JobRunning)
}

// MarkRunning records the start of an attempt and returns its number.
func (s *Store) MarkRunning(ctx context.Context, sessionID string) (int, error) {
	now := s.stamp()
	err := s.exec(ctx, `INSERT INTO stitch_jobs (session_id, status, attempts, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET status = excluded.status, attempts = stitch_jobs.attempts + 1,
			updated_at = excluded.updated_at`,
		sessionID, JobRunning, now, now)
	if err != nil {
		return 0, fmt.Errorf("mark running: %w", err)
	}
	job, err := s.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return job.Attempts, nil
}

// MarkDone records a successful attempt.
func (s *Store) MarkDone(ctx context.Context, sessionID, outputPath string) error {
	return s.exec(ctx, `UPDATE stitch_jobs SET status = ?, last_error = '', output_path = ?, updated_at = ?
		WHERE session_id = ?`, JobDone, outputPath, s.stamp(), sessionID)
}

// MarkFailed records a failed attempt. When maxAttempts is positive and the
// attempt count has reached it the session is dead-lettered and true is
// returned.
func (s *Store) MarkFailed(ctx context.Context, sessionID, message string, maxAttempts int) (bool, error) {
	ctx = ensureContext(ctx)
	var dead bool
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var attempts int
		err = tx.QueryRowContext(ctx, "SELECT attempts FROM stitch_jobs WHERE session_id = ?", sessionID).Scan(&attempts)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			attempts = 1
			now := s.stamp()
			if _, err := tx.ExecContext(ctx, `INSERT INTO stitch_jobs (session_id, status, attempts, created_at, updated_at)
				VALUES (?, ?, 1, ?, ?)`, sessionID, JobFailed, now, now); err != nil {
				return err
			}
		case err != nil:
			return err
		}

		dead = maxAttempts > 0 && attempts >= maxAttempts
		status := JobFailed
		if dead {
			status = JobDead
		}
		if _, err := tx.ExecContext(ctx, `UPDATE stitch_jobs SET status = ?, last_error = ?, updated_at = ?
			WHERE session_id = ?`, status, truncate(message, 2000), s.stamp(), sessionID); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return dead, nil
}

// MarkInterrupted returns a running attempt to the queue without counting
// it, for attempts cut short by shutdown rather than by a stitch error.
func (s *Store) MarkInterrupted(ctx context.Context, sessionID, message string) error {
	return s.exec(ctx, `UPDATE stitch_jobs SET status = ?, attempts = MAX(attempts - 1, 0), last_error = ?, updated_at = ?
		WHERE session_id = ? AND status = ?`, JobQueued, truncate(message, 2000), s.stamp(), sessionID, JobRunning)
}

// Get returns the job for a session, or nil when none exists.
func (s *Store) Get(ctx context.Context, sessionID string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+jobColumns+" FROM stitch_jobs WHERE session_id = ?", sessionID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns every job, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT "+jobColumns+" FROM stitch_jobs ORDER BY updated_at DESC, session_id")
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// DeadLettered returns the session ids that exhausted their attempts.
func (s *Store) DeadLettered(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT session_id FROM stitch_jobs WHERE status = ? ORDER BY session_id", JobDead)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsDeadLettered reports whether a session is dead-lettered.
func (s *Store) IsDeadLettered(ctx context.Context, sessionID string) (bool, error) {
	job, err := s.Get(ctx, sessionID)
	if err != nil || job == nil {
		return false, err
	}
	return job.Status == JobDead, nil
}

// Reset clears the attempt count of a session so the next scan retries it.
// It reports false when the session is unknown.
func (s *Store) Reset(ctx context.Context, sessionID string) (bool, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE stitch_jobs SET status = ?, attempts = 0, last_error = '', updated_at = ?
			WHERE session_id = ?`, JobQueued, s.stamp(), sessionID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("reset job: %w", err)
	}
	return affected > 0, nil
}

// CountDone returns the number of completed jobs.
func (s *Store) CountDone(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM stitch_jobs WHERE status = ?", JobDone).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		job                  Job
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&job.SessionID, &status, &job.Attempts, &job.LastError, &job.OutputPath, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	job.Status = JobStatus(status)
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}
	}
	return t
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
