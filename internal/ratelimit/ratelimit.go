// Package ratelimit implements sliding-window request admission control
// backed by the shared Redis cache.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/promptlab/promptlab/internal/cache"
)

// Config bounds admissions for one identifier.
type Config struct {
	MaxRequests   int
	WindowSeconds int
}

// Result reports the admission decision and the quota state communicated
// back to the caller via response headers.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Total     int
}

// Limiter is a sliding-window rate limiter keyed by caller identity.
//
// The window count and insert run as one Redis pipeline, but concurrent
// requests for the same identifier at the boundary may still transiently
// admit one extra request; the limiter is protective, not correctness
// critical. For the same reason it fails open: when Redis is unavailable
// the request is admitted and the error logged.
type Limiter struct {
	cache cache.Cache
	cfg   Config
}

// NewLimiter creates a Limiter with the given default config.
func NewLimiter(c cache.Cache, cfg Config) *Limiter {
	return &Limiter{cache: c, cfg: cfg}
}

// Admit records a request for identifier and decides whether it is within
// the window budget.
func (l *Limiter) Admit(ctx context.Context, identifier string) Result {
	now := time.Now().UTC()
	window := time.Duration(l.cfg.WindowSeconds) * time.Second
	resetAt := now.Add(window)

	count, err := l.cache.SlidingWindowCount(ctx, cache.RateLimitKey(identifier), now, window)
	if err != nil {
		slog.Warn("rate limit check failed, admitting request", "identifier", identifier, "error", err)
		return Result{
			Allowed:   true,
			Remaining: l.cfg.MaxRequests,
			ResetAt:   resetAt,
			Total:     l.cfg.MaxRequests,
		}
	}

	remaining := l.cfg.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(l.cfg.MaxRequests),
		Remaining: remaining,
		ResetAt:   resetAt,
		Total:     l.cfg.MaxRequests,
	}
}
