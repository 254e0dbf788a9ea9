package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jobqueue/internal/payload"
	"jobqueue/internal/queue"
	"jobqueue/internal/store"
)

// MockQueue implements Queue for testing.
type MockQueue struct {
	mu sync.Mutex

	// ClaimFunc allows customizing Claim behavior per test.
	ClaimFunc func(ctx context.Context, workerID string) (*queue.ClaimedJob, error)

	// CompleteErr is returned from Complete when set.
	CompleteErr error

	// Track method calls
	ClaimCalls    int
	CompleteCalls []string
	FailCalls     []FailCall
}

type FailCall struct {
	JobID  string
	Worker string
	Reason string
}

func (m *MockQueue) Claim(ctx context.Context, workerID string) (*queue.ClaimedJob, error) {
	m.mu.Lock()
	m.ClaimCalls++
	m.mu.Unlock()
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, workerID)
	}
	return nil, nil
}

func (m *MockQueue) Complete(ctx context.Context, id, workerID string) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteCalls = append(m.CompleteCalls, id)
	return &store.Job{ID: id, Status: store.JobStatusCompleted}, m.CompleteErr
}

func (m *MockQueue) Fail(ctx context.Context, id, workerID, reason string) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailCalls = append(m.FailCalls, FailCall{JobID: id, Worker: workerID, Reason: reason})
	return &store.Job{ID: id, Status: store.JobStatusPending}, nil
}

func (m *MockQueue) completes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CompleteCalls...)
}

func (m *MockQueue) fails() []FailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FailCall(nil), m.FailCalls...)
}

// MockExecutor implements Executor for testing.
type MockExecutor struct {
	ExecuteFunc func(ctx context.Context, job *store.Job, p payload.Payload) error
}

func (m *MockExecutor) Execute(ctx context.Context, job *store.Job, p payload.Payload) error {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, job, p)
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoJob(id string) *queue.ClaimedJob {
	return &queue.ClaimedJob{
		Job:     &store.Job{ID: id, Type: "echo", Status: store.JobStatusClaimed, Attempts: 1},
		Payload: &payload.Echo{Message: id},
	}
}

// oneJob hands out job once and then reports an empty queue.
func oneJob(job *queue.ClaimedJob) func(context.Context, string) (*queue.ClaimedJob, error) {
	var handed atomic.Bool
	return func(ctx context.Context, workerID string) (*queue.ClaimedJob, error) {
		if handed.CompareAndSwap(false, true) {
			return job, nil
		}
		return nil, nil
	}
}

// runUntil runs the agent until cond holds or the deadline passes, then
// shuts it down and waits for it to stop.
func runUntil(t *testing.T, agent *Agent, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go agent.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !cond() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-agent.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown timeout")
	}
}

// Test: New() Function
func TestNew_Defaults(t *testing.T) {
	agent := New(&MockQueue{}, &MockExecutor{}, AgentConfig{Concurrency: -5, PollInterval: -1})

	if agent.config.Concurrency != 1 {
		t.Errorf("expected default concurrency=1, got %d", agent.config.Concurrency)
	}
	if agent.config.PollInterval != time.Second {
		t.Errorf("expected default poll interval=1s, got %v", agent.config.PollInterval)
	}
	if agent.config.MaxBackoff != 30*time.Second {
		t.Errorf("expected default max backoff=30s, got %v", agent.config.MaxBackoff)
	}
	if agent.config.JobTimeout != 30*time.Minute {
		t.Errorf("expected default job timeout=30m, got %v", agent.config.JobTimeout)
	}
}

func TestNew_CustomConfig(t *testing.T) {
	config := AgentConfig{
		ID:           "worker-1",
		Concurrency:  5,
		PollInterval: 500 * time.Millisecond,
		MaxBackoff:   10 * time.Second,
		JobTimeout:   time.Minute,
	}
	agent := New(&MockQueue{}, &MockExecutor{}, config)

	if agent.config != config {
		t.Errorf("got config %+v, want %+v", agent.config, config)
	}
	if agent.done == nil {
		t.Error("expected done channel to be initialized")
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	agent := New(&MockQueue{}, &MockExecutor{}, AgentConfig{ID: "w", PollInterval: 10 * time.Millisecond}, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- agent.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Run() did not exit in time")
	}

	select {
	case <-agent.Done():
	default:
		t.Error("Done() channel was not closed after shutdown")
	}
}

func TestRun_CompletesSuccessfulJob(t *testing.T) {
	q := &MockQueue{ClaimFunc: oneJob(echoJob("job-1"))}
	var seen atomic.Value
	exec := &MockExecutor{ExecuteFunc: func(ctx context.Context, job *store.Job, p payload.Payload) error {
		seen.Store(p.(*payload.Echo).Message)
		return nil
	}}

	agent := New(q, exec, AgentConfig{ID: "worker-a", PollInterval: 10 * time.Millisecond}, WithLogger(quietLogger()))
	runUntil(t, agent, func() bool { return len(q.completes()) == 1 })

	if got := q.completes(); len(got) != 1 || got[0] != "job-1" {
		t.Errorf("got completes %v, want [job-1]", got)
	}
	if len(q.fails()) != 0 {
		t.Errorf("unexpected fails: %v", q.fails())
	}
	if seen.Load() != "job-1" {
		t.Errorf("executor saw %v", seen.Load())
	}
}

func TestRun_FailsOnExecutorError(t *testing.T) {
	q := &MockQueue{ClaimFunc: oneJob(echoJob("job-1"))}
	exec := &MockExecutor{ExecuteFunc: func(ctx context.Context, job *store.Job, p payload.Payload) error {
		return errors.New("disk full")
	}}

	agent := New(q, exec, AgentConfig{ID: "worker-a", PollInterval: 10 * time.Millisecond}, WithLogger(quietLogger()))
	runUntil(t, agent, func() bool { return len(q.fails()) == 1 })

	fails := q.fails()
	if len(fails) != 1 {
		t.Fatalf("got %d fails, want 1", len(fails))
	}
	if fails[0].JobID != "job-1" || fails[0].Worker != "worker-a" || fails[0].Reason != "disk full" {
		t.Errorf("unexpected fail call %+v", fails[0])
	}
	if len(q.completes()) != 0 {
		t.Error("failed job was also completed")
	}
}

func TestRun_FailsOnPanic(t *testing.T) {
	q := &MockQueue{ClaimFunc: oneJob(echoJob("job-1"))}
	exec := &MockExecutor{ExecuteFunc: func(ctx context.Context, job *store.Job, p payload.Payload) error {
		panic("nil map")
	}}

	agent := New(q, exec, AgentConfig{ID: "w", PollInterval: 10 * time.Millisecond}, WithLogger(quietLogger()))
	runUntil(t, agent, func() bool { return len(q.fails()) == 1 })

	fails := q.fails()
	if len(fails) != 1 || !strings.Contains(fails[0].Reason, "panicked") {
		t.Errorf("got fails %+v, want one panic failure", fails)
	}
}

func TestRun_FailsOnTimeout(t *testing.T) {
	q := &MockQueue{ClaimFunc: oneJob(echoJob("job-1"))}
	exec := &MockExecutor{ExecuteFunc: func(ctx context.Context, job *store.Job, p payload.Payload) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	agent := New(q, exec, AgentConfig{
		ID:           "w",
		PollInterval: 10 * time.Millisecond,
		JobTimeout:   50 * time.Millisecond,
	}, WithLogger(quietLogger()))
	runUntil(t, agent, func() bool { return len(q.fails()) == 1 })

	fails := q.fails()
	if len(fails) != 1 || !strings.Contains(fails[0].Reason, "timed out") {
		t.Errorf("got fails %+v, want one timeout failure", fails)
	}
}

func TestRun_LostClaimIsNotFailed(t *testing.T) {
	q := &MockQueue{ClaimFunc: oneJob(echoJob("job-1")), CompleteErr: store.ErrLockNotHeld}

	agent := New(q, &MockExecutor{}, AgentConfig{ID: "w", PollInterval: 10 * time.Millisecond}, WithLogger(quietLogger()))
	runUntil(t, agent, func() bool { return len(q.completes()) == 1 })

	if len(q.fails()) != 0 {
		t.Errorf("a lost claim must not be failed, got %+v", q.fails())
	}
}

func TestRun_ConcurrencyLimit(t *testing.T) {
	var runningJobs int32
	var maxConcurrent int32
	var finished int32

	var next atomic.Int32
	q := &MockQueue{
		ClaimFunc: func(ctx context.Context, workerID string) (*queue.ClaimedJob, error) {
			n := next.Add(1)
			if n > 10 {
				return nil, nil
			}
			return echoJob("job-" + string(rune('a'+n))), nil
		},
	}

	exec := &MockExecutor{ExecuteFunc: func(ctx context.Context, job *store.Job, p payload.Payload) error {
		current := atomic.AddInt32(&runningJobs, 1)
		for {
			prev := atomic.LoadInt32(&maxConcurrent)
			if current <= prev || atomic.CompareAndSwapInt32(&maxConcurrent, prev, current) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&runningJobs, -1)
		atomic.AddInt32(&finished, 1)
		return nil
	}}

	concurrencyLimit := 3
	agent := New(q, exec, AgentConfig{
		ID:           "w",
		Concurrency:  concurrencyLimit,
		PollInterval: 10 * time.Millisecond,
	}, WithLogger(quietLogger()))
	runUntil(t, agent, func() bool { return atomic.LoadInt32(&finished) == 10 })

	if int(maxConcurrent) > concurrencyLimit {
		t.Errorf("max concurrent jobs=%d exceeded limit=%d", maxConcurrent, concurrencyLimit)
	}
	if atomic.LoadInt32(&finished) != 10 {
		t.Errorf("finished %d jobs, want 10", finished)
	}
}

func TestRun_GracefulDrainInFlight(t *testing.T) {
	var jobCompleted int32
	started := make(chan struct{})

	q := &MockQueue{ClaimFunc: oneJob(echoJob("job-1"))}
	exec := &MockExecutor{ExecuteFunc: func(ctx context.Context, job *store.Job, p payload.Payload) error {
		close(started)
		time.Sleep(200 * time.Millisecond)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		atomic.StoreInt32(&jobCompleted, 1)
		return nil
	}}

	agent := New(q, exec, AgentConfig{ID: "w", PollInterval: 10 * time.Millisecond}, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	go agent.Run(ctx)

	<-started
	cancel()

	select {
	case <-agent.Done():
		if atomic.LoadInt32(&jobCompleted) != 1 {
			t.Error("Run() returned before in-flight job completed")
		}
		if len(q.completes()) != 1 {
			t.Error("drained job was not completed")
		}
	case <-time.After(1 * time.Second):
		t.Error("shutdown timeout")
	}
}

func TestRun_SkipsUndecodablePayload(t *testing.T) {
	var calls atomic.Int32
	q := &MockQueue{
		ClaimFunc: func(ctx context.Context, workerID string) (*queue.ClaimedJob, error) {
			switch calls.Add(1) {
			case 1:
				return nil, queue.ErrUndecodablePayload
			case 2:
				return echoJob("good"), nil
			}
			return nil, nil
		},
	}

	agent := New(q, &MockExecutor{}, AgentConfig{ID: "w", PollInterval: 10 * time.Millisecond}, WithLogger(quietLogger()))
	runUntil(t, agent, func() bool { return len(q.completes()) == 1 })

	if got := q.completes(); len(got) != 1 || got[0] != "good" {
		t.Errorf("got completes %v, want [good]", got)
	}
}

func TestRun_UndecodablePayloadsDoNotSpin(t *testing.T) {
	q := &MockQueue{
		ClaimFunc: func(ctx context.Context, workerID string) (*queue.ClaimedJob, error) {
			return nil, queue.ErrUndecodablePayload
		},
	}

	agent := New(q, &MockExecutor{}, AgentConfig{ID: "w", Concurrency: 2, PollInterval: 50 * time.Millisecond}, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	go agent.Run(ctx)
	time.Sleep(120 * time.Millisecond)
	cancel()
	<-agent.Done()

	q.mu.Lock()
	calls := q.ClaimCalls
	q.mu.Unlock()

	// Three rounds at most (immediate, +50ms, +100ms), two slots each.
	if calls == 0 || calls > 8 {
		t.Errorf("got %d claim calls, want a bounded number per poll round", calls)
	}
}

func TestRun_WakeupPollsImmediately(t *testing.T) {
	var ready atomic.Bool
	q := &MockQueue{
		ClaimFunc: func(ctx context.Context, workerID string) (*queue.ClaimedJob, error) {
			if ready.CompareAndSwap(true, false) {
				return echoJob("woken"), nil
			}
			return nil, nil
		},
	}

	wakeups := make(chan string, 1)
	// A long poll interval so only the wakeup can explain a quick claim.
	agent := New(q, &MockExecutor{}, AgentConfig{ID: "w", PollInterval: time.Hour}, WithLogger(quietLogger()), WithWakeups(wakeups))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.Run(ctx)

	// Let the initial empty poll happen.
	time.Sleep(20 * time.Millisecond)
	ready.Store(true)
	wakeups <- "echo"

	deadline := time.Now().Add(time.Second)
	for len(q.completes()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := q.completes(); len(got) != 1 || got[0] != "woken" {
		t.Errorf("got completes %v, want [woken]", got)
	}
}
