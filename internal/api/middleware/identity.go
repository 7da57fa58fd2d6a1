package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	callerIDKey contextKey = "caller_id"
	userIDKey   contextKey = "user_id"
)

// userIDHeader is set by an upstream gateway after authentication. There is
// no auth in this service itself; the header is trusted as-is.
const userIDHeader = "X-User-ID"

// Identity resolves who is calling: the upstream user id when present,
// otherwise the client IP. The caller id keys the rate limiter; the user
// id, when it parses as a UUID, is attached to created jobs.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		caller := r.Header.Get(userIDHeader)
		if caller == "" {
			caller = clientIP(r)
		} else if id, err := uuid.Parse(caller); err == nil {
			ctx = context.WithValue(ctx, userIDKey, id)
		}
		ctx = context.WithValue(ctx, callerIDKey, caller)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerID returns the rate limit identity for the request. Identity always
// sets it; the fallback covers handlers tested without the middleware.
func CallerID(r *http.Request) string {
	if id, ok := r.Context().Value(callerIDKey).(string); ok {
		return id
	}
	return clientIP(r)
}

// UserID returns the authenticated user id, if the request carried one.
func UserID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(userIDKey).(uuid.UUID)
	return id, ok
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
