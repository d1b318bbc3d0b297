package monitor

import (
	"net/http"
	"sync"
	"time"

	"github.com/arcflow-dev/powerpool/internal/logger"
)

// rateLimiter is a token bucket: one per client under ClientRateLimit,
// or one shared instance if a caller wants pool-wide limiting instead.
type rateLimiter struct {
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newRateLimiter(rps int) *rateLimiter {
	if rps <= 0 {
		rps = 1000
	}
	return &rateLimiter{
		tokens:     float64(rps),
		maxTokens:  float64(rps),
		refillRate: float64(rps),
		lastRefill: time.Now(),
	}
}

func (rl *rateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// clientRateLimiter maintains one rateLimiter per client identifier,
// periodically reset so long-lived monitor connections don't pin an
// ever-growing map.
type clientRateLimiter struct {
	limiters map[string]*rateLimiter
	rps      int
	mu       sync.RWMutex
	cleanup  time.Duration
}

func newClientRateLimiter(rps int) *clientRateLimiter {
	crl := &clientRateLimiter{
		limiters: make(map[string]*rateLimiter),
		rps:      rps,
		cleanup:  5 * time.Minute,
	}
	go crl.cleanupLoop()
	return crl
}

func (crl *clientRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(crl.cleanup)
	defer ticker.Stop()
	for range ticker.C {
		crl.mu.Lock()
		crl.limiters = make(map[string]*rateLimiter)
		crl.mu.Unlock()
	}
}

func (crl *clientRateLimiter) get(clientID string) *rateLimiter {
	crl.mu.RLock()
	rl, ok := crl.limiters[clientID]
	crl.mu.RUnlock()
	if ok {
		return rl
	}

	crl.mu.Lock()
	defer crl.mu.Unlock()
	if rl, ok = crl.limiters[clientID]; ok {
		return rl
	}
	rl = newRateLimiter(crl.rps)
	crl.limiters[clientID] = rl
	return rl
}

// ClientRateLimit returns middleware enforcing rps requests per second
// per client (identified by X-Forwarded-For, falling back to
// RemoteAddr). rps <= 0 disables it.
func ClientRateLimit(rps int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newClientRateLimiter(rps)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := r.Header.Get("X-Forwarded-For")
			if clientID == "" {
				clientID = r.RemoteAddr
			}

			if !limiter.get(clientID).Allow() {
				logger.Warn().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("client", clientID).
					Msg("monitor rate limit exceeded")

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
