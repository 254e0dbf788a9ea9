// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import (
	"encoding/json"
	"time"
)

// EnqueueRequest is the request body for POST /jobs.
type EnqueueRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	// Priority is unbounded; higher is served first.
	Priority       int    `json:"priority,omitempty"`
	MaxAttempts    int    `json:"max_attempts,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// EnqueueResponse is returned by POST /jobs. Created is false when an
// existing live job with the same idempotency key was returned instead.
type EnqueueResponse struct {
	Job     JobResponse `json:"job"`
	Created bool        `json:"created"`
}

// JobResponse represents a job in API responses.
type JobResponse struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	Priority       int             `json:"priority"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	LastError      *string         `json:"last_error,omitempty"`
	LockedBy       *string         `json:"locked_by,omitempty"`
	LockedAt       *time.Time      `json:"locked_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ClaimedAt      *time.Time      `json:"claimed_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
}

// ListJobsResponse is one page of GET /jobs.
type ListJobsResponse struct {
	Jobs   []JobResponse `json:"jobs"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// StatsResponse holds job counts per status.
type StatsResponse struct {
	Pending   int64 `json:"pending"`
	Claimed   int64 `json:"claimed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Total     int64 `json:"total"`
}

// PurgeResponse reports how many completed jobs were removed.
type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
