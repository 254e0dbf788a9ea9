package executor

import (
	"context"
	"log/slog"

	"jobqueue/internal/payload"
	"jobqueue/internal/store"
)

// Echo logs the message and succeeds.
type Echo struct {
	logger *slog.Logger
}

func NewEcho(logger *slog.Logger) *Echo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Echo{logger: logger}
}

func (e *Echo) Execute(ctx context.Context, job *store.Job, p payload.Payload) error {
	msg, ok := p.(*payload.Echo)
	if !ok {
		return unexpected(payload.TypeEcho, p)
	}
	e.logger.InfoContext(ctx, "echo", "job_id", job.ID, "message", msg.Message)
	return nil
}
