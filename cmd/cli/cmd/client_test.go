package cmd

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJobClient_OmitsAuthWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := r.Header.Get("Authorization"); h != "" {
			t.Errorf("expected no Authorization header, got %q", h)
		}
		w.Write([]byte(`{"pending":1,"total":1}`))
	}))
	defer server.Close()

	stats, err := NewJobClient(server.URL+"/", "").Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Pending != 1 || stats.Total != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestJobClient_APIErrorFromPlainBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewJobClient(server.URL, "tok").GetJob("x")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError || apiErr.Message != "boom" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestJobClient_BadResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	if _, err := NewJobClient(server.URL, "").GetJob("x"); err == nil {
		t.Error("expected parse error")
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{StatusCode: 400, Message: "Invalid payload", Details: "path: is required"}
	if got := err.Error(); got != "API error (400): Invalid payload: path: is required" {
		t.Errorf("unexpected message: %s", got)
	}
	err = &APIError{StatusCode: 404, Message: "Job not found"}
	if got := err.Error(); got != "API error (404): Job not found" {
		t.Errorf("unexpected message: %s", got)
	}
}
