package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/promptlab/promptlab/internal/api/response"
	"github.com/promptlab/promptlab/internal/store"
	"github.com/promptlab/promptlab/pkg/models"
)

// NewCreateTemplateHandler returns an http.HandlerFunc for POST /api/v1/templates.
func NewCreateTemplateHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name         string `json:"name"`
			SystemPrompt string `json:"system_prompt"`
			UserPrompt   string `json:"user_prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidationError, "Invalid JSON body", nil)
			return
		}

		if strings.TrimSpace(req.Name) == "" {
			response.Error(w, http.StatusBadRequest, response.CodeValidationError, "name is required", nil)
			return
		}
		if strings.TrimSpace(req.UserPrompt) == "" {
			response.Error(w, http.StatusBadRequest, response.CodeValidationError, "user_prompt is required", nil)
			return
		}
		if !strings.Contains(req.UserPrompt, models.InputPlaceholder) {
			response.Error(w, http.StatusBadRequest, response.CodeValidationError,
				"user_prompt must contain the {{input}} placeholder", nil)
			return
		}

		now := time.Now().UTC()
		tmpl := &models.Template{
			ID:           uuid.New(),
			Name:         req.Name,
			SystemPrompt: req.SystemPrompt,
			UserPrompt:   req.UserPrompt,
			Version:      1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := st.CreateTemplate(r.Context(), tmpl); err != nil {
			slog.Error("creating template failed", "error", err)
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError,
				"Failed to create template", nil)
			return
		}

		response.Created(w, tmpl)
	}
}

// NewListTemplatesHandler returns an http.HandlerFunc for GET /api/v1/templates.
func NewListTemplatesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templates, err := st.ListTemplates(r.Context())
		if err != nil {
			slog.Error("listing templates failed", "error", err)
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError,
				"Failed to list templates", nil)
			return
		}
		if templates == nil {
			templates = []*models.Template{}
		}
		response.JSON(w, templates)
	}
}

// NewGetTemplateHandler returns an http.HandlerFunc for GET /api/v1/templates/{templateID}.
func NewGetTemplateHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templateID, err := uuid.Parse(chi.URLParam(r, "templateID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidationError,
				"templateID must be a valid UUID", nil)
			return
		}

		tmpl, err := st.GetTemplate(r.Context(), templateID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, response.CodeNotFound, "Template not found", nil)
				return
			}
			slog.Error("fetching template failed", "template_id", templateID, "error", err)
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError,
				"Failed to fetch template", nil)
			return
		}

		response.JSON(w, tmpl)
	}
}
