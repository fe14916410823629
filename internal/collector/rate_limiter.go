package collector

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter manages GitHub API rate limiting
type RateLimiter interface {
	Wait(ctx context.Context) error
	CheckLimit() (remaining int, resetTime time.Time)
	UpdateLimit(remaining int, resetTime time.Time)
}

// githubRateLimiter implements RateLimiter for GitHub API
type githubRateLimiter struct {
	mu        sync.Mutex
	remaining int
	resetTime time.Time
	minDelay  time.Duration
	lastCall  time.Time
	logger    *slog.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(logger *slog.Logger) RateLimiter {
	return newRateLimiter(logger, 50*time.Millisecond)
}

func newRateLimiter(logger *slog.Logger, minDelay time.Duration) *githubRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &githubRateLimiter{
		remaining: 5000, // GitHub API default limit
		resetTime: time.Now().Add(time.Hour),
		minDelay:  minDelay,
		logger:    logger,
	}
}

// Wait waits until it's safe to make another API call.
// The lock is released while sleeping so UpdateLimit is never blocked.
func (r *githubRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	var wait time.Duration
	if r.remaining <= 10 {
		if d := time.Until(r.resetTime); d > 0 {
			r.logger.Warn("rate limit low, waiting for reset",
				"remaining", r.remaining, "wait", d.Round(time.Second))
			wait = d
		}
		// Assume a fresh window after the reset
		r.remaining = 5000
		r.resetTime = time.Now().Add(time.Hour)
	}
	if elapsed := time.Since(r.lastCall); wait == 0 && elapsed < r.minDelay {
		wait = r.minDelay - elapsed
	}
	r.lastCall = time.Now().Add(wait)
	r.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CheckLimit returns the current rate limit status
func (r *githubRateLimiter) CheckLimit() (int, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining, r.resetTime
}

// UpdateLimit updates the rate limit from API response headers
func (r *githubRateLimiter) UpdateLimit(remaining int, resetTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = remaining
	r.resetTime = resetTime
}

// updateFromHeaders reads the X-RateLimit headers GitHub sends on every response
func updateFromHeaders(r RateLimiter, h http.Header) {
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return
	}
	r.UpdateLimit(remaining, time.Unix(reset, 0))
}
