package store

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotHeld is returned by Complete and Fail when the job exists but is
// not currently claimed by the given worker.
var ErrLockNotHeld = errors.New("job is not claimed by this worker")

// ErrLiveKeyConflict is returned by Retry when reviving a job would give its
// idempotency key a second live job.
var ErrLiveKeyConflict = errors.New("another live job holds this idempotency key")

// JobStore is the durable job table. Every mutation is a single statement
// against one row, except PurgeCompleted and ReclaimStale which sweep.
//
// Lookups that find nothing return a nil job and a nil error.
type JobStore interface {
	// Insert writes job as a new pending row and returns the stored record.
	// If job.IdempotencyKey is set and a live job with the same (type, key)
	// already exists, that job is returned with created=false and nothing is
	// written.
	Insert(ctx context.Context, job *Job) (stored *Job, created bool, err error)

	// FindLiveByKey returns the pending or claimed job holding (jobType, key).
	FindLiveByKey(ctx context.Context, jobType, key string) (*Job, error)

	// Claim moves the best pending job to claimed for workerID in one
	// conditional update. Returns nil when nothing is pending.
	Claim(ctx context.Context, workerID string) (*Job, error)

	// Complete moves a job claimed by workerID to completed.
	Complete(ctx context.Context, id, workerID string) (*Job, error)

	// Fail releases a job claimed by workerID, back to pending when attempts
	// remain or to failed when the budget is spent.
	Fail(ctx context.Context, id, workerID, reason string) (*Job, error)

	// ReclaimStale resets claimed jobs locked longer than olderThan ago back
	// to pending without touching attempts.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)

	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, filter ListFilter) ([]Job, error)
	Stats(ctx context.Context) (Stats, error)

	// Retry forces any job back to pending with a fresh attempt budget.
	Retry(ctx context.Context, id string) (*Job, error)

	Delete(ctx context.Context, id string) (bool, error)
	PurgeCompleted(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
