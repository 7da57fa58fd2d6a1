package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/promptlab/promptlab/internal/api/response"
)

// Pinger is satisfied by both the store and the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
// The database is required; Redis is reported but does not fail the check,
// since both the dedup cache and the rate limiter degrade without it.
func NewHealthHandler(db, redis Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		dbStatus, redisStatus := "up", "up"
		if err := db.Ping(ctx); err != nil {
			dbStatus = "down"
		}
		if err := redis.Ping(ctx); err != nil {
			redisStatus = "down"
		}

		body := map[string]string{
			"status":   "ok",
			"database": dbStatus,
			"redis":    redisStatus,
		}
		if dbStatus == "down" {
			body["status"] = "degraded"
			response.Error(w, http.StatusServiceUnavailable, response.CodeInternalError,
				"Database unavailable", body)
			return
		}

		response.JSON(w, body)
	}
}
