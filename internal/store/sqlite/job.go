package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobqueue/internal/store"

	sqlite3 "github.com/mattn/go-sqlite3"
)

const jobColumns = `id, type, payload, status, priority, attempts, max_attempts, last_error,
	locked_by, locked_at, created_at, claimed_at, completed_at, idempotency_key`

// claimOrder breaks created_at ties by insertion order.
const claimOrder = `priority DESC, created_at ASC, rowid ASC`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*store.Job, error) {
	var job store.Job
	var payload []byte
	var lockedAt, claimedAt, completedAt sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&job.ID, &job.Type, &payload, &job.Status, &job.Priority,
		&job.Attempts, &job.MaxAttempts, &job.LastError,
		&job.LockedBy, &lockedAt, &createdAt, &claimedAt,
		&completedAt, &job.IdempotencyKey,
	)
	if err != nil {
		return nil, err
	}

	job.Payload = payload
	job.CreatedAt = time.Unix(0, createdAt).UTC()
	job.LockedAt = fromNanos(lockedAt)
	job.ClaimedAt = fromNanos(claimedAt)
	job.CompletedAt = fromNanos(completedAt)
	return &job, nil
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

// Get returns a job by ID, or nil if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*store.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return job, nil
}

// List returns a page of jobs ordered like the claim path.
func (s *Store) List(ctx context.Context, filter store.ListFilter) ([]store.Job, error) {
	var conds []string
	var args []interface{}

	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filter.Type)
	}

	whereClause := ""
	if len(conds) > 0 {
		whereClause = "WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM jobs %s ORDER BY %s LIMIT ? OFFSET ?`, jobColumns, whereClause, claimOrder)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs query failed: %w", err)
	}
	defer rows.Close()

	jobs := []store.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs scan failed: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs rows error: %w", err)
	}
	return jobs, nil
}

// Stats counts jobs per status.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return store.Stats{}, fmt.Errorf("stats query failed: %w", err)
	}
	defer rows.Close()

	var stats store.Stats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return store.Stats{}, fmt.Errorf("stats scan failed: %w", err)
		}
		stats.Add(store.JobStatus(status), count)
	}
	if err := rows.Err(); err != nil {
		return store.Stats{}, fmt.Errorf("stats rows error: %w", err)
	}
	return stats, nil
}

// Retry forces a job back to pending and resets its attempt budget.
func (s *Store) Retry(ctx context.Context, id string) (*store.Job, error) {
	query := `UPDATE jobs
		SET status = 'pending', attempts = 0, last_error = NULL,
			locked_by = NULL, locked_at = NULL, completed_at = NULL
		WHERE id = ?
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("failed to retry job %s: %w: %w", id, store.ErrLiveKeyConflict, err)
		}
		return nil, fmt.Errorf("failed to retry job %s: %w", id, err)
	}
	return job, nil
}

// Delete removes a job in any state.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeCompleted removes every completed job. Failed jobs are kept.
func (s *Store) PurgeCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE status = 'completed'`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed jobs: %w", err)
	}
	return res.RowsAffected()
}
