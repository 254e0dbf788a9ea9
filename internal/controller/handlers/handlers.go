// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"jobqueue/internal/logger"
	"jobqueue/internal/payload"
	"jobqueue/internal/queue"
	"jobqueue/internal/store"
	"jobqueue/pkg/api"
)

// Queue is the engine surface the handlers need.
type Queue interface {
	Enqueue(ctx context.Context, p payload.Payload, opts queue.EnqueueOptions) (*store.Job, bool, error)
	GetJob(ctx context.Context, id string) (*store.Job, error)
	ListJobs(ctx context.Context, filter store.ListFilter) ([]store.Job, error)
	Stats(ctx context.Context) (store.Stats, error)
	RetryJob(ctx context.Context, id string) (*store.Job, error)
	DeleteJob(ctx context.Context, id string) (bool, error)
	PurgeCompleted(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	queue  Queue
	logger *slog.Logger
}

// New creates a new Handlers instance over q.
func New(q Queue, l *slog.Logger) *Handlers {
	if l == nil {
		l = slog.Default()
	}
	return &Handlers{queue: q, logger: l}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// internalError logs err against the request and answers 500 with message.
func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, message string, err error) {
	logger.FromContext(r.Context(), h.logger).Error(message, "error", err, "path", r.URL.Path)
	h.httpError(w, message, http.StatusInternalServerError)
}

// validationError answers 400 with the offending field in Details.
func (h *Handlers) validationError(w http.ResponseWriter, err error) {
	h.respondJson(w, http.StatusBadRequest, api.ErrorResponse{
		Error:   "Invalid request",
		Code:    strconv.Itoa(http.StatusBadRequest),
		Details: err.Error(),
	})
}

func toJobResponse(j *store.Job) api.JobResponse {
	return api.JobResponse{
		ID:             j.ID,
		Type:           j.Type,
		Payload:        j.Payload,
		Status:         string(j.Status),
		Priority:       j.Priority,
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		LastError:      j.LastError,
		LockedBy:       j.LockedBy,
		LockedAt:       j.LockedAt,
		CreatedAt:      j.CreatedAt,
		ClaimedAt:      j.ClaimedAt,
		CompletedAt:    j.CompletedAt,
		IdempotencyKey: j.IdempotencyKey,
	}
}
