package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// RateLimiter allows a fixed number of requests per client address per
// window. Counters expire with the window.
type RateLimiter struct {
	counters *gocache.Cache
	limit    int
	window   time.Duration
	logger   *zerolog.Logger
}

// NewRateLimiter creates a limiter of limit requests per minute.
func NewRateLimiter(limit int, logger *zerolog.Logger) *RateLimiter {
	return NewRateLimiterWindow(limit, time.Minute, logger)
}

// NewRateLimiterWindow creates a limiter of limit requests per window.
func NewRateLimiterWindow(limit int, window time.Duration, logger *zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		counters: gocache.New(window, 5*window),
		limit:    limit,
		window:   window,
		logger:   logger,
	}
}

// Allow records a request from key and reports whether it is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	// the first request of a window creates the counter
	if err := rl.counters.Add(key, 1, rl.window); err == nil {
		return rl.limit > 0
	}
	n, err := rl.counters.IncrementInt(key, 1)
	if err != nil {
		// expired between Add and Increment
		rl.counters.Set(key, 1, rl.window)
		return rl.limit > 0
	}
	return n <= rl.limit
}

// Visitors returns the number of addresses with a live counter.
func (rl *RateLimiter) Visitors() int {
	return rl.counters.ItemCount()
}

// RateLimit rejects requests over the limiter's budget with 429.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.Allow(ip) {
				rl.logger.Warn().
					Str("ip", ip).
					Str("path", r.URL.Path).
					Msg("Rate limit exceeded")

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				if _, writeErr := w.Write([]byte(`{"data":null,"error":{"code":"RATE_LIMITED","message":"Rate limit exceeded","details":"Too many requests. Please try again later."}}`)); writeErr != nil {
					rl.logger.Error().Err(writeErr).Msg("Failed to write rate limit error response")
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the first X-Forwarded-For hop, or the remote host.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
