// Package worker contains the polling agent that claims and executes jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jobqueue/internal/payload"
	"jobqueue/internal/queue"
	"jobqueue/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Queue is the part of the engine the agent drives.
type Queue interface {
	Claim(ctx context.Context, workerID string) (*queue.ClaimedJob, error)
	Complete(ctx context.Context, id, workerID string) (*store.Job, error)
	Fail(ctx context.Context, id, workerID, reason string) (*store.Job, error)
}

// Executor runs one decoded payload.
type Executor interface {
	Execute(ctx context.Context, job *store.Job, p payload.Payload) error
}

// AgentConfig holds configuration for the worker agent.
type AgentConfig struct {
	ID           string
	Concurrency  int
	PollInterval time.Duration
	MaxBackoff   time.Duration // Maximum backoff when queue is empty (default: 30s)
	JobTimeout   time.Duration // Per-job execution limit (default: 30m)
}

// Agent is the main worker agent that runs the pull-loop for job execution.
type Agent struct {
	queue    Queue
	executor Executor
	config   AgentConfig
	logger   *slog.Logger
	wakeups  <-chan string
	tracer   trace.Tracer
	done     chan struct{}
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the agent's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithWakeups makes the agent poll immediately whenever ch yields, instead
// of waiting out its backoff.
func WithWakeups(ch <-chan string) Option {
	return func(a *Agent) { a.wakeups = ch }
}

// New creates a new worker agent.
func New(q Queue, exec Executor, config AgentConfig, opts ...Option) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	if config.MaxBackoff < config.PollInterval {
		config.MaxBackoff = config.PollInterval
	}

	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Minute
	}

	a := &Agent{
		queue:    q,
		executor: exec,
		config:   config,
		logger:   slog.Default(),
		tracer:   otel.Tracer("jobqueue/worker"),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "worker", "worker_id", config.ID)
	return a
}

// Run starts the main pull-loop. It blocks until the context is cancelled.
// On cancellation it stops claiming new work and lets in-flight jobs finish.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting", "concurrency", a.config.Concurrency)

	// Semaphore to limit concurrency
	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	// Channel to signal when a slot becomes available (adaptive polling)
	pollNow := make(chan struct{}, 1)

	// Current backoff duration (increases on empty queue, resets on work found)
	currentBackoff := a.config.PollInterval

	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending
		}
	}

	// Jobs keep running after ctx is cancelled so they can drain.
	execCtx := context.WithoutCancel(ctx)
	wakeups := a.wakeups

	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("context cancelled, waiting for running jobs to finish")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case _, ok := <-wakeups:
			if !ok {
				wakeups = nil
				continue
			}
			currentBackoff = a.config.PollInterval
			triggerPoll()

		case <-pollNow:
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			// A skipped poison job uses up a claim attempt for this round so
			// a large attempt budget cannot spin the loop against the store.
			claimed, skipped := 0, 0
			for claimed+skipped < availableSlots && ctx.Err() == nil {
				job, err := a.queue.Claim(ctx, a.config.ID)
				if err != nil {
					if errors.Is(err, queue.ErrUndecodablePayload) {
						// Already failed by the engine.
						a.logger.Warn("skipped job with undecodable payload", "error", err)
						skipped++
						continue
					}
					if ctx.Err() == nil {
						a.logger.Error("claim failed", "error", err)
					}
					break
				}
				if job == nil {
					break
				}
				claimed++

				sem <- struct{}{}
				wg.Add(1)
				go func(job *queue.ClaimedJob) {
					defer wg.Done()
					defer func() {
						<-sem
						// Signal that a slot is now available - trigger immediate re-poll
						triggerPoll()
					}()
					a.processJob(execCtx, job)
				}(job)
			}

			if claimed == 0 && skipped == 0 {
				// Empty queue - increase backoff (exponential, capped at MaxBackoff)
				currentBackoff = currentBackoff * 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}

			// Found work - reset backoff to minimum
			currentBackoff = a.config.PollInterval
			a.logger.Debug("claimed jobs", "count", claimed)
		}
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// processJob executes one claimed job and reports the outcome.
func (a *Agent) processJob(ctx context.Context, claimed *queue.ClaimedJob) {
	job := claimed.Job

	spanCtx, span := a.tracer.Start(ctx, "process_job",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.type", job.Type),
			attribute.Int("job.attempts", job.Attempts),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	log := a.logger.With("job_id", job.ID, "job_type", job.Type, "attempts", job.Attempts)
	log.Info("processing job")

	execContext, cancel := context.WithTimeout(spanCtx, a.config.JobTimeout)
	defer cancel()

	err := a.execute(execContext, claimed)
	if err != nil && execContext.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("execution timed out after %v: %w", a.config.JobTimeout, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job failed")
		log.Warn("job execution failed", "error", err)

		if _, failErr := a.queue.Fail(spanCtx, job.ID, a.config.ID, err.Error()); failErr != nil {
			log.Error("failed to record job failure", "error", failErr)
		}
		return
	}

	if _, completeErr := a.queue.Complete(spanCtx, job.ID, a.config.ID); completeErr != nil {
		if errors.Is(completeErr, store.ErrLockNotHeld) {
			// Reclaimed while running; the other holder reports the outcome.
			log.Warn("lost claim before completion", "error", completeErr)
			return
		}
		log.Error("failed to record job completion", "error", completeErr)
		return
	}
	log.Info("job completed")
}

// execute runs the executor, turning a panic into an error.
func (a *Agent) execute(ctx context.Context, claimed *queue.ClaimedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return a.executor.Execute(ctx, claimed.Job, claimed.Payload)
}
