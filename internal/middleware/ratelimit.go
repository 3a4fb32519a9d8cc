package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is per-IP token bucket rate limiting middleware built on
// x/time/rate limiters, one per client IP.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*client
	rate       rate.Limit
	burst      int
	maxClients int // max tracked IPs (prevents memory exhaustion)
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter with the given sustained rate
// (requests per second) and burst size.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*client),
		rate:       rate.Limit(rps),
		burst:      burst,
		maxClients: 100000, // 100k IPs max
	}
}

// Handler returns HTTP middleware that enforces per-IP rate limiting.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := realIP(r)

		lim, ok := rl.limiterFor(ip)
		if !ok {
			// Tracking table full; reject rather than grow unbounded.
			tooManyRequests(w, 1)
			return
		}

		res := lim.Reserve()
		if !res.OK() {
			tooManyRequests(w, 1)
			return
		}
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			w.Header().Set("X-RateLimit-Remaining", "0")
			tooManyRequests(w, delay.Seconds())
			return
		}

		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", int(lim.Tokens())))
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) limiterFor(ip string) (*rate.Limiter, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, exists := rl.limiters[ip]
	if !exists {
		if len(rl.limiters) >= rl.maxClients {
			return nil, false
		}
		c = &client{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ip] = c
	}
	c.lastSeen = time.Now()
	return c.limiter, true
}

// StartCleanup spawns a goroutine that removes stale limiters every interval.
// A limiter is stale if its IP has not been seen for longer than maxIdle.
// Returns a cancel function that stops the cleanup goroutine.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.cleanup(maxIdle)
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (rl *RateLimiter) cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for ip, c := range rl.limiters {
		if c.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

// Len returns the number of tracked IP limiters (for metrics and testing).
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func tooManyRequests(w http.ResponseWriter, retryAfter float64) {
	w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(retryAfter)))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
}

// realIP extracts the client IP from RemoteAddr.
// Proxy headers (X-Forwarded-For, X-Real-Ip) are NOT trusted because
// they can be spoofed by attackers to bypass rate limiting.
func realIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
