package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/promptlab/promptlab/internal/api/response"
	"github.com/promptlab/promptlab/internal/store"
)

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// Clients poll this until the job status is terminal.
func NewGetJobHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeValidationError,
				"jobID must be a valid UUID", nil)
			return
		}

		job, err := st.GetJob(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, response.CodeNotFound, "Job not found", nil)
				return
			}
			slog.Error("fetching job failed", "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, response.CodeInternalError,
				"Failed to fetch job", nil)
			return
		}

		response.JSON(w, job)
	}
}
