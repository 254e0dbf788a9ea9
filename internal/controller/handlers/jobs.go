package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"jobqueue/internal/payload"
	"jobqueue/internal/queue"
	"jobqueue/internal/store"
	"jobqueue/pkg/api"
)

// maxRequestBody bounds POST /jobs bodies.
const maxRequestBody = 1 << 20

// EnqueueJob handles POST /jobs.
// It answers 201 for a new job and 200 when an idempotency key matched an
// existing live job.
func (h *Handlers) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.EnqueueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Type == "" {
		h.httpError(w, "Type is required", http.StatusBadRequest)
		return
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage(`{}`)
	}

	p, err := payload.Parse(payload.Type(req.Type), req.Payload)
	if err != nil {
		h.validationError(w, err)
		return
	}

	job, created, err := h.queue.Enqueue(ctx, p, queue.EnqueueOptions{
		Priority:       req.Priority,
		MaxAttempts:    req.MaxAttempts,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		if queue.IsValidation(err) {
			h.validationError(w, err)
			return
		}
		h.internalError(w, r, "Failed to enqueue job", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.respondJson(w, status, api.EnqueueResponse{Job: toJobResponse(job), Created: created})
}

// ListJobs handles GET /jobs?status=&type=&limit=&offset=.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"))
	if err != nil {
		h.httpError(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		h.httpError(w, "Invalid offset", http.StatusBadRequest)
		return
	}

	filter := store.ListFilter{
		Status: store.JobStatus(q.Get("status")),
		Type:   q.Get("type"),
		Limit:  limit,
		Offset: offset,
	}

	jobs, err := h.queue.ListJobs(r.Context(), filter)
	if err != nil {
		if queue.IsValidation(err) {
			h.validationError(w, err)
			return
		}
		h.internalError(w, r, "Failed to list jobs", err)
		return
	}

	resp := api.ListJobsResponse{
		Jobs:   make([]api.JobResponse, 0, len(jobs)),
		Limit:  queue.NormalizeLimit(limit),
		Offset: offset,
	}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(&jobs[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		h.internalError(w, r, "Failed to load job", err)
		return
	}
	if job == nil {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(job))
}

// RetryJob handles POST /jobs/{id}/retry.
// The job goes back to pending with a fresh attempt budget.
func (h *Handlers) RetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.RetryJob(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrLiveKeyConflict) {
			h.httpError(w, "Another live job holds this idempotency key", http.StatusConflict)
			return
		}
		h.internalError(w, r, "Failed to retry job", err)
		return
	}
	if job == nil {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(job))
}

// DeleteJob handles DELETE /jobs/{id}.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.queue.DeleteJob(r.Context(), r.PathValue("id"))
	if err != nil {
		h.internalError(w, r, "Failed to delete job", err)
		return
	}
	if !deleted {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PurgeCompleted handles POST /jobs/purge.
func (h *Handlers) PurgeCompleted(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.PurgeCompleted(r.Context())
	if err != nil {
		h.internalError(w, r, "Failed to purge jobs", err)
		return
	}
	h.respondJson(w, http.StatusOK, api.PurgeResponse{Deleted: n})
}

// Stats handles GET /stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.queue.Stats(r.Context())
	if err != nil {
		h.internalError(w, r, "Failed to load stats", err)
		return
	}
	h.respondJson(w, http.StatusOK, api.StatsResponse{
		Pending:   s.Pending,
		Claimed:   s.Claimed,
		Completed: s.Completed,
		Failed:    s.Failed,
		Total:     s.Total,
	})
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
