package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/platinummonkey/taskdesk/pkg/contextkeys"
	"github.com/platinummonkey/taskdesk/pkg/httputil"
	"github.com/platinummonkey/taskdesk/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns the credential endpoint defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
	}
}

func (c *RateLimitConfig) capacity() float64 {
	return float64(c.RequestsPerWindow + c.BurstSize)
}

// Decision is the outcome of a rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is the time until the next request would be allowed
	Reset time.Duration
}

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimiter implements rate limiting using token bucket algorithm
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewRateLimiter creates a new in-memory rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil || config.RequestsPerWindow <= 0 || config.WindowDuration <= 0 {
		config = DefaultRateLimitConfig()
	}

	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes a token from the bucket for key
func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.config.capacity(), lastUpdate: now}
		rl.buckets[key] = b
	}

	// Refill tokens based on elapsed time
	requests := float64(rl.config.RequestsPerWindow)
	window := rl.config.WindowDuration.Seconds()
	if elapsed := now.Sub(b.lastUpdate).Seconds(); elapsed > 0 {
		b.tokens = math.Min(rl.config.capacity(), b.tokens+elapsed*requests/window)
		b.lastUpdate = now
	}

	d := Decision{Limit: rl.config.RequestsPerWindow}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	}
	d.Remaining = int(b.tokens)
	if b.tokens < 1 {
		wait := (1 - b.tokens) * window / requests
		d.Reset = time.Duration(wait * float64(time.Second)).Round(time.Millisecond)
	}
	return d, nil
}

// Cleanup removes buckets idle for more than two windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
	}
}

// Len returns the number of tracked keys
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// RateLimitMiddleware limits requests per client IP
type RateLimitMiddleware struct {
	name    string
	limiter Limiter
	metrics *observability.Metrics
}

// NewRateLimitMiddleware creates a rate limit middleware. name labels the
// rejection metric and prefixes the limiter keys.
func NewRateLimitMiddleware(name string, limiter Limiter, metrics *observability.Metrics) *RateLimitMiddleware {
	return &RateLimitMiddleware{name: name, limiter: limiter, metrics: metrics}
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := contextkeys.GetClientIP(r.Context())
		if ip == "" {
			ip = httputil.ClientIP(r, false)
		}

		d, err := m.limiter.Allow(r.Context(), m.name+":ip:"+ip)
		if err != nil {
			// Fail open
			observability.FromContext(r.Context()).WithError(err).Warn("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, d)
		if !d.Allowed {
			m.metrics.ObserveRateLimited(m.name)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.Reset)))
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(d.Reset).Unix(), 10))
}

func retryAfterSeconds(reset time.Duration) int {
	seconds := int(math.Ceil(reset.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
