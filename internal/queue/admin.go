package queue

import (
	"context"

	"jobqueue/internal/payload"
	"jobqueue/internal/store"
)

// GetJob returns the job with id, or nil.
func (e *Engine) GetJob(ctx context.Context, id string) (*store.Job, error) {
	return e.store.Get(ctx, id)
}

// ListJobs returns one page of jobs, highest priority then oldest first.
// Offset paging shifts under concurrent writes; it is meant for inspection,
// not for handing out work.
func (e *Engine) ListJobs(ctx context.Context, filter store.ListFilter) ([]store.Job, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &payload.ValidationError{Field: "status", Reason: "unknown status " + string(filter.Status)}
	}
	if filter.Offset < 0 {
		return nil, &payload.ValidationError{Field: "offset", Reason: "must not be negative"}
	}
	filter.Limit = NormalizeLimit(filter.Limit)
	return e.store.List(ctx, filter)
}

// NormalizeLimit applies the list page size default and cap.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// Stats returns job counts per status.
func (e *Engine) Stats(ctx context.Context) (store.Stats, error) {
	return e.store.Stats(ctx)
}

// RetryJob forces a job in any state back to pending with attempts reset to
// zero. Unlike an automatic retry it grants a fresh attempt budget.
func (e *Engine) RetryJob(ctx context.Context, id string) (*store.Job, error) {
	job, err := e.store.Retry(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	e.logger.Info("job retried manually", "job_id", job.ID, "job_type", job.Type)
	e.publish(ctx, job.Type)
	return job, nil
}

// DeleteJob removes a job regardless of state and reports whether it existed.
// Deleting a claimed job leaves its worker's later Complete or Fail with a
// nil result.
func (e *Engine) DeleteJob(ctx context.Context, id string) (bool, error) {
	deleted, err := e.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		e.logger.Info("job deleted", "job_id", id)
	}
	return deleted, nil
}

// PurgeCompleted removes all completed jobs and returns how many went.
// Failed jobs are kept for inspection and manual retry.
func (e *Engine) PurgeCompleted(ctx context.Context) (int64, error) {
	n, err := e.store.PurgeCompleted(ctx)
	if err != nil {
		return 0, err
	}
	e.logger.Info("purged completed jobs", "count", n)
	return n, nil
}

// Ping checks the store.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}
