package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimitMiddleware_AllowsRequestUnderLimit(t *testing.T) {
	handler := NewRateLimiter(100, 200).Middleware()(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1:5000"))

	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRateLimitMiddleware_RejectsRequestOverLimit(t *testing.T) {
	handler := NewRateLimiter(1, 1).Middleware()(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1:5000"))
	if rr.Code != http.StatusOK {
		t.Fatalf("first request: got status %d, want %d", rr.Code, http.StatusOK)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1:5001"))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("second request: got status %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After header, got %q", rr.Header().Get("Retry-After"))
	}
}

func TestRateLimitMiddleware_SeparateBucketsPerClient(t *testing.T) {
	handler := NewRateLimiter(1, 1).Middleware()(okHandler())

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom(addr))
		if rr.Code != http.StatusOK {
			t.Errorf("client %s: got status %d, want %d", addr, rr.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_ZeroRateIsUnlimited(t *testing.T) {
	handler := NewRateLimiter(0, 0).Middleware()(okHandler())

	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom("10.0.0.1:5000"))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d", i, rr.Code)
		}
	}
}

func TestRateLimiter_ExpiredBucketIsReplaced(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1, WithTTL(time.Minute), WithRateLimitClock(func() time.Time { return now }))

	first := rl.limiterFor("10.0.0.1")
	if rl.limiterFor("10.0.0.1") != first {
		t.Error("expected cached limiter before TTL")
	}

	now = now.Add(2 * time.Minute)
	if rl.limiterFor("10.0.0.1") == first {
		t.Error("expected a fresh limiter after TTL")
	}
}

func bucketCount(rl *RateLimiter) int {
	n := 0
	rl.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func TestRateLimiter_ActiveBucketOutlivesTTL(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1, WithTTL(time.Minute), WithRateLimitClock(func() time.Time { return now }))

	first := rl.limiterFor("10.0.0.1")
	for i := 0; i < 3; i++ {
		now = now.Add(40 * time.Second)
		if rl.limiterFor("10.0.0.1") != first {
			t.Fatalf("step %d: bucket in active use was replaced", i)
		}
	}
}

func TestRateLimiter_SweepsClientsThatNeverReturn(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1, WithTTL(time.Minute), WithRateLimitClock(func() time.Time { return now }))

	for _, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		rl.limiterFor(addr)
	}
	if got := bucketCount(rl); got != 3 {
		t.Fatalf("got %d buckets, want 3", got)
	}

	now = now.Add(2 * time.Minute)
	rl.limiterFor("10.0.0.9")

	if got := bucketCount(rl); got != 1 {
		t.Errorf("got %d buckets after sweep, want 1", got)
	}
	if _, ok := rl.limiters.Load("10.0.0.1"); ok {
		t.Error("idle bucket still present")
	}
}

func TestRateLimiter_ConcurrentFirstRequestsShareBucket(t *testing.T) {
	// Refill is negligible over the test, so the burst is all that is available.
	handler := NewRateLimiter(0.001, 1).Middleware()(okHandler())

	var allowed atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, requestFrom("10.0.0.7:4000"))
			if rr.Code == http.StatusOK {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := allowed.Load(); got != 1 {
		t.Errorf("got %d allowed requests, want exactly the burst of 1", got)
	}
}
