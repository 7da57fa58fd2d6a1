// Package api wires handlers and middleware into the HTTP router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/promptlab/promptlab/internal/api/middleware"
	"github.com/promptlab/promptlab/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler         http.HandlerFunc
	GenerateHandler       http.HandlerFunc
	GetJobHandler         http.HandlerFunc
	CreateTemplateHandler http.HandlerFunc
	ListTemplatesHandler  http.HandlerFunc
	GetTemplateHandler    http.HandlerFunc
}

// NewRouter builds the Chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		r.Use(mw.Identity)
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/generate", orNotImplemented(deps.GenerateHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))

		r.Post("/api/v1/templates", orNotImplemented(deps.CreateTemplateHandler))
		r.Get("/api/v1/templates", orNotImplemented(deps.ListTemplatesHandler))
		r.Get("/api/v1/templates/{templateID}", orNotImplemented(deps.GetTemplateHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, response.CodeInternalError,
			"Endpoint not yet implemented", nil)
	}
}
