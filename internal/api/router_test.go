package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/promptlab/promptlab/internal/api"
	mw "github.com/promptlab/promptlab/internal/api/middleware"
	"github.com/promptlab/promptlab/internal/cache"
	"github.com/promptlab/promptlab/internal/ratelimit"
	"github.com/stretchr/testify/assert"
)

// allowAllCache satisfies cache.Cache enough for the limiter to admit
// everything.
type allowAllCache struct{ cache.Cache }

func (allowAllCache) SlidingWindowCount(context.Context, string, time.Time, time.Duration) (int64, error) {
	return 1, nil
}

func handlerReturning(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}

func testDeps() api.Dependencies {
	limiter := ratelimit.NewLimiter(&allowAllCache{}, ratelimit.Config{MaxRequests: 100, WindowSeconds: 60})
	return api.Dependencies{
		RateLimit:             mw.NewRateLimit(limiter),
		HealthHandler:         handlerReturning(http.StatusOK),
		GenerateHandler:       handlerReturning(http.StatusAccepted),
		GetJobHandler:         handlerReturning(http.StatusOK),
		CreateTemplateHandler: handlerReturning(http.StatusCreated),
		ListTemplatesHandler:  handlerReturning(http.StatusOK),
		GetTemplateHandler:    handlerReturning(http.StatusOK),
	}
}

func TestRouter_Routes(t *testing.T) {
	router := api.NewRouter(testDeps())

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodPost, "/api/v1/generate", http.StatusAccepted},
		{http.MethodGet, "/api/v1/jobs/some-id", http.StatusOK},
		{http.MethodPost, "/api/v1/templates", http.StatusCreated},
		{http.MethodGet, "/api/v1/templates", http.StatusOK},
		{http.MethodGet, "/api/v1/templates/some-id", http.StatusOK},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.want, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := api.NewRouter(testDeps())
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_NilHandlerIs501(t *testing.T) {
	deps := testDeps()
	deps.GenerateHandler = nil
	router := api.NewRouter(deps)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil))

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestRouter_RateLimitHeadersOnProtectedRoutes(t *testing.T) {
	router := api.NewRouter(testDeps())
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil))

	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRouter_HealthSkipsRateLimit(t *testing.T) {
	router := api.NewRouter(testDeps())
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}
