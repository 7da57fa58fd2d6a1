// Package handler contains the HTTP handlers. Handlers validate, call a
// service interface, and translate errors into response codes; they hold
// no business logic of their own.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"
	mw "github.com/promptlab/promptlab/internal/api/middleware"
	"github.com/promptlab/promptlab/internal/api/response"
	"github.com/promptlab/promptlab/internal/generate"
	"github.com/promptlab/promptlab/pkg/models"
)

// maxInputLen bounds a single generation input, counted in characters,
// not bytes.
const maxInputLen = 10000

// Submitter defines the interface the generate handler depends on.
type Submitter interface {
	Submit(ctx context.Context, params generate.SubmitParams) (*generate.SubmitResult, error)
}

// NewGenerateHandler returns an http.HandlerFunc for POST /api/v1/generate.
func NewGenerateHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TemplateID string `json:"template_id"`
			Provider   string `json:"provider"`
			Input      string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidationError, "Invalid JSON body", nil)
			return
		}

		if req.TemplateID == "" {
			response.Error(w, http.StatusBadRequest, response.CodeValidationError, "template_id is required", nil)
			return
		}
		templateID, err := uuid.Parse(req.TemplateID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidationError, "template_id must be a valid UUID", nil)
			return
		}

		if !models.ValidProvider(req.Provider) {
			response.Error(w, http.StatusBadRequest, response.CodeValidationError,
				"provider must be one of: openai, anthropic", nil)
			return
		}

		if req.Input == "" {
			response.Error(w, http.StatusBadRequest, response.CodeValidationError, "input is required", nil)
			return
		}
		if utf8.RuneCountInString(req.Input) > maxInputLen {
			response.Error(w, http.StatusBadRequest, response.CodeValidationError,
				"input exceeds maximum length of 10000 characters", nil)
			return
		}

		params := generate.SubmitParams{
			TemplateID: templateID,
			Provider:   req.Provider,
			Input:      req.Input,
		}
		if userID, ok := mw.UserID(r); ok {
			params.UserID = &userID
		}

		result, err := svc.Submit(r.Context(), params)
		if err != nil {
			if errors.Is(err, generate.ErrTemplateNotFound) {
				response.Error(w, http.StatusNotFound, response.CodeNotFound, "Template not found", nil)
				return
			}
			slog.Error("generate submission failed", "error", err)
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError,
				"Failed to submit generation request", nil)
			return
		}

		response.Accepted(w, map[string]any{
			"job_id": result.JobID,
			"cached": result.Cached,
		})
	}
}
