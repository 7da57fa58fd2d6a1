package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/promptlab/promptlab/internal/api/response"
	"github.com/promptlab/promptlab/internal/ratelimit"
)

// RateLimit applies sliding-window admission control per caller identity.
type RateLimit struct {
	limiter *ratelimit.Limiter
}

func NewRateLimit(l *ratelimit.Limiter) *RateLimit {
	return &RateLimit{limiter: l}
}

func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := rl.limiter.Admit(r.Context(), CallerID(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Total))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retryAfter := int64(time.Until(res.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(w, http.StatusTooManyRequests,
				response.CodeRateLimited, "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
