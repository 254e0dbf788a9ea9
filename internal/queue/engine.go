// Package queue is the job queue engine: validation, claim dispatch, outcome
// handling and administration on top of a durable store.JobStore.
//
// The engine holds no locks and no in-memory queue. Every guarantee comes
// from the store's single-statement updates, so any number of engines in any
// number of processes may share one database.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"jobqueue/internal/payload"
	"jobqueue/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxAttempts = 3
	DefaultLockTimeout = 5 * time.Minute
	DefaultListLimit   = 50
	MaxListLimit       = 500

	maxIdempotencyKeyLen = 255
)

// ErrUndecodablePayload is returned by Claim when the claimed row's payload
// cannot be decoded. The job has already been failed for the caller.
var ErrUndecodablePayload = errors.New("claimed job has an undecodable payload")

// Publisher is told when new work becomes claimable.
type Publisher interface {
	Publish(ctx context.Context, jobType string) error
}

// EnqueueOptions tune a new job. Zero values select the defaults.
type EnqueueOptions struct {
	Priority       int
	MaxAttempts    int
	IdempotencyKey string
}

// ClaimedJob is a claimed record with its payload decoded.
type ClaimedJob struct {
	Job     *store.Job
	Payload payload.Payload
}

// Engine implements the queue operations.
type Engine struct {
	store       store.JobStore
	publisher   Publisher
	logger      *slog.Logger
	lockTimeout time.Duration
	tracer      trace.Tracer
	metrics     *instruments
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithPublisher sets the ready-work notifier.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLockTimeout sets how long a claim may go untouched before ReclaimStale
// returns the job to pending. Shorter recovers crashes faster and raises the
// odds of re-running a job a slow worker is still executing.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

// WithMeter overrides the meter used for transition counters.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) {
		if ins, err := newInstruments(m); err == nil {
			e.metrics = ins
		}
	}
}

// New creates an engine over s.
func New(s store.JobStore, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		logger:      slog.Default(),
		lockTimeout: DefaultLockTimeout,
		tracer:      otel.Tracer("jobqueue/queue"),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		ins, err := newInstruments(otel.Meter("jobqueue/queue"))
		if err != nil {
			e.logger.Warn("queue metrics disabled", "error", err)
			ins, _ = newInstruments(noop.NewMeterProvider().Meter(""))
		}
		e.metrics = ins
	}
	e.logger = e.logger.With("component", "queue")
	return e
}

// LockTimeout returns the configured stale-lock threshold.
func (e *Engine) LockTimeout() time.Duration {
	return e.lockTimeout
}

// Enqueue validates p and inserts it as a pending job. When an idempotency
// key is given and a pending or claimed job already holds it for the same
// type, that job is returned unchanged with created=false.
func (e *Engine) Enqueue(ctx context.Context, p payload.Payload, opts EnqueueOptions) (*store.Job, bool, error) {
	jobType, data, err := payload.Encode(p)
	if err != nil {
		return nil, false, err
	}

	if opts.MaxAttempts < 0 {
		return nil, false, &payload.ValidationError{Field: "max_attempts", Reason: "must be positive"}
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	job := &store.Job{
		ID:          uuid.NewString(),
		Type:        string(jobType),
		Payload:     data,
		Status:      store.JobStatusPending,
		Priority:    opts.Priority,
		MaxAttempts: opts.MaxAttempts,
	}

	// The key is an opaque caller token, stored byte for byte.
	if key := opts.IdempotencyKey; key != "" {
		if strings.TrimSpace(key) == "" {
			return nil, false, &payload.ValidationError{Field: "idempotency_key", Reason: "must not be blank"}
		}
		if len(key) > maxIdempotencyKeyLen {
			return nil, false, &payload.ValidationError{Field: "idempotency_key", Reason: "is too long"}
		}
		job.IdempotencyKey = &key
	}

	ctx, span := e.tracer.Start(ctx, "queue.enqueue", trace.WithAttributes(
		attribute.String("job.type", job.Type),
		attribute.Int("job.priority", job.Priority),
	))
	defer span.End()

	stored, created, err := e.store.Insert(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, false, err
	}
	span.SetAttributes(attribute.String("job.id", stored.ID), attribute.Bool("job.created", created))

	typeAttr := metric.WithAttributes(attribute.String("job.type", stored.Type))
	if !created {
		e.metrics.deduped.Add(ctx, 1, typeAttr)
		e.logger.Info("enqueue deduplicated", "job_id", stored.ID, "job_type", stored.Type, "status", stored.Status)
		return stored, false, nil
	}

	e.metrics.enqueued.Add(ctx, 1, typeAttr)
	e.logger.Info("job enqueued", "job_id", stored.ID, "job_type", stored.Type, "priority", stored.Priority)
	e.publish(ctx, stored.Type)
	return stored, true, nil
}

// Claim hands the best pending job to workerID, or returns nil when nothing
// is pending. It never blocks waiting for work.
func (e *Engine) Claim(ctx context.Context, workerID string) (*ClaimedJob, error) {
	if strings.TrimSpace(workerID) == "" {
		return nil, &payload.ValidationError{Field: "worker_id", Reason: "is required"}
	}

	ctx, span := e.tracer.Start(ctx, "queue.claim", trace.WithAttributes(
		attribute.String("worker.id", workerID),
	))
	defer span.End()

	job, err := e.store.Claim(ctx, workerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	span.SetAttributes(attribute.String("job.id", job.ID), attribute.String("job.type", job.Type))

	e.metrics.claimed.Add(ctx, 1, metric.WithAttributes(attribute.String("job.type", job.Type)))
	e.logger.Info("job claimed", "job_id", job.ID, "job_type", job.Type, "worker_id", workerID, "attempts", job.Attempts)

	p, err := payload.Decode(payload.Type(job.Type), job.Payload)
	if err != nil {
		span.RecordError(err)
		e.logger.Error("claimed job has bad payload", "job_id", job.ID, "job_type", job.Type, "error", err)
		if _, failErr := e.Fail(ctx, job.ID, workerID, err.Error()); failErr != nil {
			return nil, fmt.Errorf("%w: %v (release failed: %v)", ErrUndecodablePayload, err, failErr)
		}
		return nil, fmt.Errorf("%w: job %s: %v", ErrUndecodablePayload, job.ID, err)
	}

	return &ClaimedJob{Job: job, Payload: p}, nil
}

// Complete marks a job claimed by workerID as completed. An unknown id yields
// nil, nil; a job not held by workerID yields store.ErrLockNotHeld.
func (e *Engine) Complete(ctx context.Context, id, workerID string) (*store.Job, error) {
	ctx, span := e.tracer.Start(ctx, "queue.complete", trace.WithAttributes(
		attribute.String("job.id", id),
		attribute.String("worker.id", workerID),
	))
	defer span.End()

	job, err := e.store.Complete(ctx, id, workerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "complete failed")
		return nil, err
	}
	if job == nil {
		e.logger.Warn("complete for unknown job", "job_id", id, "worker_id", workerID)
		return nil, nil
	}

	e.metrics.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("job.type", job.Type)))
	e.logger.Info("job completed", "job_id", job.ID, "job_type", job.Type, "worker_id", workerID, "attempts", job.Attempts)
	return job, nil
}

// Fail records reason and releases the claim. The job goes back to pending
// if attempts < maxAttempts, otherwise it becomes failed for good.
func (e *Engine) Fail(ctx context.Context, id, workerID, reason string) (*store.Job, error) {
	ctx, span := e.tracer.Start(ctx, "queue.fail", trace.WithAttributes(
		attribute.String("job.id", id),
		attribute.String("worker.id", workerID),
	))
	defer span.End()

	job, err := e.store.Fail(ctx, id, workerID, reason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fail failed")
		return nil, err
	}
	if job == nil {
		e.logger.Warn("fail for unknown job", "job_id", id, "worker_id", workerID)
		return nil, nil
	}
	span.SetAttributes(attribute.String("job.status", string(job.Status)))

	typeAttr := metric.WithAttributes(attribute.String("job.type", job.Type))
	if job.Status == store.JobStatusFailed {
		e.metrics.failed.Add(ctx, 1, typeAttr)
		e.logger.Warn("job failed permanently", "job_id", job.ID, "job_type", job.Type,
			"attempts", job.Attempts, "max_attempts", job.MaxAttempts, "error", reason)
		return job, nil
	}

	e.metrics.requeued.Add(ctx, 1, typeAttr)
	e.logger.Info("job requeued after failure", "job_id", job.ID, "job_type", job.Type,
		"attempts", job.Attempts, "max_attempts", job.MaxAttempts, "error", reason)
	e.publish(ctx, job.Type)
	return job, nil
}

// ReclaimStale returns claims older than the lock timeout to pending and
// reports how many were reset. Attempts are left as they are.
//
// A worker that is slow but alive can lose its job this way and another
// worker will run it again: delivery is at-least-once.
func (e *Engine) ReclaimStale(ctx context.Context) (int64, error) {
	ctx, span := e.tracer.Start(ctx, "queue.reclaim_stale")
	defer span.End()

	n, err := e.store.ReclaimStale(ctx, e.lockTimeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reclaim failed")
		return 0, err
	}
	span.SetAttributes(attribute.Int64("jobs.reclaimed", n))

	if n > 0 {
		e.metrics.reclaimed.Add(ctx, n)
		e.logger.Warn("reclaimed stale jobs", "count", n, "lock_timeout", e.lockTimeout)
		e.publish(ctx, "")
	}
	return n, nil
}

func (e *Engine) publish(ctx context.Context, jobType string) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, jobType); err != nil {
		e.logger.Warn("ready notification failed", "job_type", jobType, "error", err)
	}
}

// IsValidation reports whether err was caused by bad caller input.
func IsValidation(err error) bool {
	var vErr *payload.ValidationError
	return errors.As(err, &vErr)
}
