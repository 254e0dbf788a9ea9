package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jobqueue/internal/store"
)

// insertAttempts bounds the insert/lookup loop when the live job holding an
// idempotency key finishes between our conflicting insert and the lookup.
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

		// A concurrent insert holding the same key makes this a no-op and
		// RETURNING yields no row; loop back to the lookup.
		query := `
			INSERT INTO jobs (id, type, payload, status, priority, attempts, max_attempts, created_at, idempotency_key)
			VALUES ($1, $2, $3, 'pending', $4, 0, $5, $6, $7)
			ON CONFLICT (type, idempotency_key) WHERE status IN ('pending', 'claimed') DO NOTHING
			RETURNING ` + jobColumns

		row := s.db.QueryRowContext(ctx, query,
			job.ID, job.Type, string(job.Payload), job.Priority, job.MaxAttempts,
			s.timestamp(), job.IdempotencyKey,
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
		WHERE type = $1 AND idempotency_key = $2 AND status IN ('pending', 'claimed')
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
// Selection and transition are one statement; SKIP LOCKED lets concurrent
// claimers move past a row another transaction is already taking.
func (s *Store) Claim(ctx context.Context, workerID string) (*store.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'claimed', locked_by = $1, locked_at = $2, claimed_at = $2, attempts = attempts + 1
		WHERE status = 'pending' AND id = (
			SELECT id FROM jobs
			WHERE status = 'pending'
			ORDER BY priority DESC, created_at ASC, seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, workerID, s.timestamp()))
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
	query := `
		UPDATE jobs
		SET status = 'completed', completed_at = $3, locked_by = NULL, locked_at = NULL
		WHERE id = $1 AND status = 'claimed' AND locked_by = $2
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id, workerID, s.timestamp()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.lockMiss(ctx, id)
		}
		return nil, fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	return job, nil
}

// Fail releases a job claimed by workerID. The pending/failed decision reads
// attempts and max_attempts inside the same UPDATE.
func (s *Store) Fail(ctx context.Context, id, workerID, reason string) (*store.Job, error) {
	query := `
		UPDATE jobs
		SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
			completed_at = CASE WHEN attempts >= max_attempts THEN $4::timestamptz ELSE NULL END,
			last_error = $3,
			locked_by = NULL,
			locked_at = NULL
		WHERE id = $1 AND status = 'claimed' AND locked_by = $2
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id, workerID, reason, s.timestamp()))
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
	cutoff := s.timestamp().Add(-olderThan)

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', locked_by = NULL, locked_at = NULL
		WHERE status = 'claimed' AND locked_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// lockMiss distinguishes an unknown id from a job the caller does not hold.
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
