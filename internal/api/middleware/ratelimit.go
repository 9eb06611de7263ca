package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter caps requests per client IP inside a rolling window. It
// guards the login endpoint against credential stuffing.
type RateLimiter struct {
	mu      sync.Mutex
	resetAt map[string]time.Time
	counts  map[string]int
	limit   int
	window  time.Duration
}

// NewRateLimiter allows limit requests per window per IP.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		resetAt: make(map[string]time.Time),
		counts:  make(map[string]int),
		limit:   limit,
		window:  window,
	}
	go rl.sweep()
	return rl
}

// sweep drops expired windows so idle IPs don't accumulate.
func (rl *RateLimiter) sweep() {
	for range time.Tick(time.Minute) {
		rl.mu.Lock()
		now := time.Now()
		for ip, reset := range rl.resetAt {
			if now.After(reset) {
				delete(rl.resetAt, ip)
				delete(rl.counts, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// take counts a request from ip and reports whether it is allowed and,
// if not, how long until the window resets.
func (rl *RateLimiter) take(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	reset, ok := rl.resetAt[ip]
	if !ok || now.After(reset) {
		reset = now.Add(rl.window)
		rl.resetAt[ip] = reset
		rl.counts[ip] = 0
	}
	rl.counts[ip]++
	if rl.counts[ip] > rl.limit {
		return false, time.Until(reset)
	}
	return true, 0
}

// Handler enforces the limit. RemoteAddr is the client IP when the
// router runs chi's RealIP first.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, wait := rl.take(r.RemoteAddr)
		if !allowed {
			secs := int(wait.Seconds()) + 1
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many requests, try again later"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
