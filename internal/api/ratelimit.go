package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per client IP with a shared token bucket
// configuration. Idle buckets are dropped after an hour.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rps     rate.Limit
	burst   int
}

type clientBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 { rps = 50 }
	if burst <= 0 { burst = 100 }
	rl := &RateLimiter{clients: map[string]*clientBucket{}, rps: rate.Limit(rps), burst: burst}
	go rl.evictLoop()
	return rl
}

func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-time.Hour)
		rl.mu.Lock()
		for ip, cb := range rl.clients {
			if cb.seen.Before(cutoff) { delete(rl.clients, ip) }
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	cb, ok := rl.clients[ip]
	if !ok {
		cb = &clientBucket{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[ip] = cb
	}
	cb.seen = time.Now()
	rl.mu.Unlock()
	return cb.lim.Allow()
}

// Middleware rejects over-limit requests with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil { ip = r.RemoteAddr }
		if !rl.allow(ip) {
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
