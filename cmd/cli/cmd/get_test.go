package cmd

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"jobqueue/pkg/api"
)

func TestGetCommand_Success(t *testing.T) {
	claimed := time.Now().Add(-10 * time.Minute)
	completed := time.Now().Add(-9 * time.Minute)

	server := jsonServer(t, http.StatusOK, api.JobResponse{
		ID:          "job-123",
		Type:        "echo",
		Payload:     json.RawMessage(`{"message":"hi"}`),
		Status:      "completed",
		Priority:    4,
		Attempts:    1,
		MaxAttempts: 3,
		CreatedAt:   claimed.Add(-time.Minute),
		ClaimedAt:   &claimed,
		CompletedAt: &completed,
	}, func(r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		if r.URL.Path != "/jobs/job-123" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("expected Bearer token, got: %s", r.Header.Get("Authorization"))
		}
	})

	output, err := runCommand(t, server.URL, "get", "job-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"job-123", "completed", "1/3", `{"message":"hi"}`, "1m 0s"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "Error:") {
		t.Errorf("expected no Error line without last_error, got: %s", output)
	}
}

func TestGetCommand_FailedJob(t *testing.T) {
	errMsg := "disk full"
	worker := "host-1"

	server := jsonServer(t, http.StatusOK, api.JobResponse{
		ID:          "job-456",
		Type:        "create_file",
		Payload:     json.RawMessage(`{}`),
		Status:      "failed",
		Attempts:    3,
		MaxAttempts: 3,
		LastError:   &errMsg,
		LockedBy:    &worker,
		CreatedAt:   time.Now(),
	}, nil)

	output, err := runCommand(t, server.URL, "get", "job-456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "failed") || !strings.Contains(output, "disk full") {
		t.Errorf("expected failed status and error, got: %s", output)
	}
	if !strings.Contains(output, "host-1") {
		t.Errorf("expected lock holder, got: %s", output)
	}
}

func TestGetCommand_NotFound(t *testing.T) {
	server := jsonServer(t, http.StatusNotFound, api.ErrorResponse{Error: "Job not found"}, nil)

	output, err := runCommand(t, server.URL, "get", "missing")
	if err == nil {
		t.Fatal("expected error for missing job")
	}
	if !strings.Contains(output, "404") || !strings.Contains(output, "Job not found") {
		t.Errorf("expected 404 error, got: %s", output)
	}
}

func TestGetCommand_RequiresIDArgument(t *testing.T) {
	if _, err := runCommand(t, "http://127.0.0.1:1", "get"); err == nil {
		t.Error("expected error when no job ID provided")
	}
}

func TestColorizeStatus(t *testing.T) {
	for _, status := range []string{"pending", "claimed", "completed", "failed", "unknown"} {
		result := colorizeStatus(status)
		if !strings.Contains(result, status) {
			t.Errorf("colorizeStatus(%s) should contain %s, got: %s", status, status, result)
		}
	}
}

func TestStatusIcon(t *testing.T) {
	tests := []struct {
		status   string
		contains string
	}{
		{"completed", "✓"},
		{"failed", "✗"},
		{"claimed", "⏳"},
		{"pending", "◯"},
		{"unknown", "•"},
	}

	for _, tt := range tests {
		result := statusIcon(tt.status)
		if !strings.Contains(result, tt.contains) {
			t.Errorf("statusIcon(%s) should contain %s, got: %s", tt.status, tt.contains, result)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{65 * time.Second, "1m 5s"},
		{125 * time.Minute, "2h 5m"},
	}

	for _, tt := range tests {
		result := formatDuration(tt.duration)
		if result != tt.expected {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.duration, result, tt.expected)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	tests := []struct {
		offset   time.Duration
		contains string
	}{
		{30 * time.Second, "s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{30 * time.Hour, "1 day"},
		{48 * time.Hour, "2 days"},
	}

	for _, tt := range tests {
		result := relativeTime(time.Now().Add(-tt.offset))
		if !strings.Contains(result, tt.contains) {
			t.Errorf("relativeTime(-%v) = %s, want it to contain %s", tt.offset, result, tt.contains)
		}
	}

	if got := formatTimeWithRelative(nil); got != "-" {
		t.Errorf("formatTimeWithRelative(nil) = %q, want -", got)
	}
}
