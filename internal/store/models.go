// Package store contains the database layer for jobqueue.
package store

import (
	"encoding/json"
	"time"
)

// Job is the single durable record of the queue.
// LockedBy and LockedAt are either both set (status claimed) or both nil.
type Job struct {
	ID             string
	Type           string
	Payload        json.RawMessage
	Status         JobStatus
	Priority       int
	Attempts       int
	MaxAttempts    int
	LastError      *string
	LockedBy       *string
	LockedAt       *time.Time
	CreatedAt      time.Time
	ClaimedAt      *time.Time
	CompletedAt    *time.Time
	IdempotencyKey *string
}

// JobStatus represents the state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusClaimed   JobStatus = "claimed"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusClaimed, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no automatic transition leaves s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ListFilter narrows a job listing. Zero values mean "any".
type ListFilter struct {
	Status JobStatus
	Type   string
	Limit  int
	Offset int
}

// Stats holds job counts per status.
type Stats struct {
	Pending   int64
	Claimed   int64
	Completed int64
	Failed    int64
	Total     int64
}

// Add records count jobs in status. Unknown statuses still count toward Total.
func (s *Stats) Add(status JobStatus, count int64) {
	switch status {
	case JobStatusPending:
		s.Pending += count
	case JobStatusClaimed:
		s.Claimed += count
	case JobStatusCompleted:
		s.Completed += count
	case JobStatusFailed:
		s.Failed += count
	}
	s.Total += count
}
