package middleware

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per client address with a token bucket.
// A bucket left idle for its TTL is dropped, at the latest by the sweep that
// runs once per TTL on the request path.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
	limiters sync.Map // client address -> *cachedLimiter

	sweepMu   sync.Mutex
	nextSweep time.Time
}

// RateLimitOption configures a RateLimiter.
type RateLimitOption func(*RateLimiter)

// WithTTL sets how long an idle client's bucket is kept.
func WithTTL(ttl time.Duration) RateLimitOption {
	return func(rl *RateLimiter) { rl.ttl = ttl }
}

// WithRateLimitClock overrides time.Now for expiry checks.
func WithRateLimitClock(now func() time.Time) RateLimitOption {
	return func(rl *RateLimiter) { rl.now = now }
}

// NewRateLimiter allows rps requests per second per client with the given
// burst. A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int, opts ...RateLimitOption) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		limit: rate.Limit(rps),
		burst: burst,
		ttl:   5 * time.Minute,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Middleware returns the HTTP middleware.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		// rps=0 means unlimited
		if rl.limit <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.limiterFor(clientAddr(r)).Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

func (c *cachedLimiter) idle(now time.Time, ttl time.Duration) bool {
	return now.UnixNano()-c.lastSeen.Load() >= int64(ttl)
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()
	rl.sweep(now)

	if v, ok := rl.limiters.Load(key); ok {
		cached := v.(*cachedLimiter)
		if !cached.idle(now, rl.ttl) {
			cached.lastSeen.Store(now.UnixNano())
			return cached.limiter
		}
	}

	fresh := &cachedLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
	fresh.lastSeen.Store(now.UnixNano())

	for {
		v, loaded := rl.limiters.LoadOrStore(key, fresh)
		if !loaded {
			return fresh.limiter
		}
		cached := v.(*cachedLimiter)
		if !cached.idle(now, rl.ttl) {
			// Another request created it first; share its bucket.
			cached.lastSeen.Store(now.UnixNano())
			return cached.limiter
		}
		if rl.limiters.CompareAndSwap(key, cached, fresh) {
			return fresh.limiter
		}
	}
}

// sweep deletes idle buckets, at most once per TTL.
func (rl *RateLimiter) sweep(now time.Time) {
	rl.sweepMu.Lock()
	if now.Before(rl.nextSweep) {
		rl.sweepMu.Unlock()
		return
	}
	rl.nextSweep = now.Add(rl.ttl)
	rl.sweepMu.Unlock()

	rl.limiters.Range(func(k, v any) bool {
		if cached := v.(*cachedLimiter); cached.idle(now, rl.ttl) {
			rl.limiters.CompareAndDelete(k, cached)
		}
		return true
	})
}

// clientAddr is the request's remote host without the port.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
