package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/pdfrag-go/internal/logging"
)

// Per-IP token bucket defaults for /api/* routes.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// staleAfter is how long an idle client keeps its bucket.
const staleAfter = 5 * time.Minute

// ipLimiter is one client's bucket and when it was last used.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter throttles HTTP clients by remote IP. It is separate from
// package ratelimit, which paces the pipeline's outbound model calls.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rps      rate.Limit
	burst    int
	log      *slog.Logger
}

// newRateLimiter starts a limiter and its eviction goroutine. The returned
// stop function may be called more than once.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		log:      log,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	var once sync.Once
	return rl, func() { once.Do(func() { close(stopCh) }) }
}

func (rl *rateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *rateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-staleAfter)
	evicted := 0
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
			evicted++
		}
	}
	if evicted > 0 {
		rl.log.Debug("server: evicted idle rate limit buckets",
			slog.Int("evicted", evicted),
			slog.Int("remaining", len(rl.limiters)),
		)
	}
}

// middleware rejects requests over the client's budget with 429 and a
// Retry-After header.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		limiter := rl.getLimiter(ip)

		if !limiter.Allow() {
			logging.FromContext(r.Context()).Warn("server: rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP returns RemoteAddr without its port. X-Forwarded-For is ignored;
// put a proxy that rewrites RemoteAddr in front if one is needed.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[:i]
	}
	return addr
}
