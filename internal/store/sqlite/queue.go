package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jobqueue/internal/store"
)

const insertAttempts = 3

// Insert adds a pending job, deduplicating on (type, idempotency_key).
func (s *Store) Insert(ctx context.Context, job *store.Job) (*store.Job, bool, error) {
	for i := 0; i < insertAttempts; i++ {
		if job.IdempotencyKey != nil {
			existing, err := s.FindLiveByKey(ctx, job.Type, *job.IdempotencyKey)
			if err != nil {
				return nil, false, err
			}
			if existing != nil {
				return existing, false, nil
			}
		}

		query := `INSERT INTO jobs (id, type, payload, status, priority, attempts, max_attempts, created_at, idempotency_key)
			VALUES (?, ?, ?, 'pending', ?, 0, ?, ?, ?)
			ON CONFLICT (type, idempotency_key) WHERE status IN ('pending', 'claimed') DO NOTHING
			RETURNING ` + jobColumns

		row := s.db.QueryRowContext(ctx, query,
			job.ID, job.Type, string(job.Payload), job.Priority, job.MaxAttempts,
			s.nanos(), job.IdempotencyKey,
		)
		stored, err := scanJob(row)
		if err == nil {
			return stored, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("failed to insert job %s: %w", job.ID, err)
		}
	}

	return nil, false, fmt.Errorf("failed to insert job %s: idempotency key kept changing hands", job.ID)
}

// FindLiveByKey returns the pending or claimed job for (jobType, key).
func (s *Store) FindLiveByKey(ctx context.Context, jobType, key string) (*store.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE type = ? AND idempotency_key = ? AND status IN ('pending', 'claimed')
		LIMIT 1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobType, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return job, nil
}

// Claim locks the highest priority, oldest pending job for workerID.
func (s *Store) Claim(ctx context.Context, workerID string) (*store.Job, error) {
	now := s.nanos()
	query := `UPDATE jobs
		SET status = 'claimed', locked_by = ?, locked_at = ?, claimed_at = ?, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending'
			ORDER BY ` + claimOrder + `
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, workerID, now, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim query failed: %w", err)
	}
	return job, nil
}

// Complete marks a job claimed by workerID as completed.
func (s *Store) Complete(ctx context.Context, id, workerID string) (*store.Job, error) {
	query := `UPDATE jobs
		SET status = 'completed', completed_at = ?, locked_by = NULL, locked_at = NULL
		WHERE id = ? AND status = 'claimed' AND locked_by = ?
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, s.nanos(), id, workerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.lockMiss(ctx, id)
		}
		return nil, fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	return job, nil
}

// Fail releases a job claimed by workerID, deciding pending vs failed from
// attempts and max_attempts inside the same UPDATE.
func (s *Store) Fail(ctx context.Context, id, workerID, reason string) (*store.Job, error) {
	query := `UPDATE jobs
		SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
			completed_at = CASE WHEN attempts >= max_attempts THEN ? ELSE NULL END,
			last_error = ?,
			locked_by = NULL,
			locked_at = NULL
		WHERE id = ? AND status = 'claimed' AND locked_by = ?
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, s.nanos(), reason, id, workerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.lockMiss(ctx, id)
		}
		return nil, fmt.Errorf("failed to fail job %s: %w", id, err)
	}
	return job, nil
}

// ReclaimStale returns abandoned claims to the pending pool.
func (s *Store) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-olderThan).UnixNano()

	res, err := s.db.ExecContext(ctx, `UPDATE jobs
		SET status = 'pending', locked_by = NULL, locked_at = NULL
		WHERE status = 'claimed' AND locked_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) lockMiss(ctx context.Context, id string) (*store.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	return nil, store.ErrLockNotHeld
}
