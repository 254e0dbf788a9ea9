package handlers

import (
	"context"
	"io"
	"log/slog"
	"time"

	"jobqueue/internal/payload"
	"jobqueue/internal/queue"
	"jobqueue/internal/store"
)

// Mock Queue
type mockQueue struct {
	enqueueResp    *store.Job
	enqueueCreated bool
	enqueueErr     error

	getJobResp *store.Job
	getJobErr  error

	listResp []store.Job
	listErr  error

	statsResp store.Stats
	statsErr  error

	retryResp *store.Job
	retryErr  error

	deleteResp bool
	deleteErr  error

	purgeResp int64
	purgeErr  error

	pingErr error

	// Spies (to verify arguments passed by handlers)
	capturedPayload payload.Payload
	capturedOpts    queue.EnqueueOptions
	capturedFilter  store.ListFilter
	capturedID      string
}

func (m *mockQueue) Enqueue(ctx context.Context, p payload.Payload, opts queue.EnqueueOptions) (*store.Job, bool, error) {
	m.capturedPayload = p
	m.capturedOpts = opts
	return m.enqueueResp, m.enqueueCreated, m.enqueueErr
}

func (m *mockQueue) GetJob(ctx context.Context, id string) (*store.Job, error) {
	m.capturedID = id
	return m.getJobResp, m.getJobErr
}

func (m *mockQueue) ListJobs(ctx context.Context, filter store.ListFilter) ([]store.Job, error) {
	m.capturedFilter = filter
	return m.listResp, m.listErr
}

func (m *mockQueue) Stats(ctx context.Context) (store.Stats, error) {
	return m.statsResp, m.statsErr
}

func (m *mockQueue) RetryJob(ctx context.Context, id string) (*store.Job, error) {
	m.capturedID = id
	return m.retryResp, m.retryErr
}

func (m *mockQueue) DeleteJob(ctx context.Context, id string) (bool, error) {
	m.capturedID = id
	return m.deleteResp, m.deleteErr
}

func (m *mockQueue) PurgeCompleted(ctx context.Context) (int64, error) {
	return m.purgeResp, m.purgeErr
}

func (m *mockQueue) Ping(ctx context.Context) error {
	return m.pingErr
}

func newTestHandlers(m *mockQueue) *Handlers {
	return New(m, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sampleJob(id string, status store.JobStatus) *store.Job {
	return &store.Job{
		ID:          id,
		Type:        "echo",
		Payload:     []byte(`{"message":"hi"}`),
		Status:      status,
		MaxAttempts: 3,
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}
