// Package generate accepts generation requests and turns them into jobs,
// deduplicating identical requests against cached and in-flight work.
package generate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/promptlab/promptlab/internal/cache"
	"github.com/promptlab/promptlab/internal/store"
	"github.com/promptlab/promptlab/pkg/models"
)

var ErrTemplateNotFound = errors.New("template not found")

// Service is the submission pipeline. It owns content hashing and the
// dedup lookup order: result cache, then completed jobs, then in-flight
// jobs, then a fresh job.
type Service struct {
	store    store.Store
	cache    cache.Cache
	cacheTTL time.Duration
}

func NewService(st store.Store, c cache.Cache, cacheTTL time.Duration) *Service {
	return &Service{store: st, cache: c, cacheTTL: cacheTTL}
}

type SubmitParams struct {
	TemplateID uuid.UUID
	Provider   string
	Input      string
	UserID     *uuid.UUID
}

type SubmitResult struct {
	JobID uuid.UUID
	// Cached is true when the request was answered by an existing job,
	// finished or in flight, instead of a newly created one.
	Cached bool
}

// hashEnvelope fixes the field order of the hashed payload. Changing the
// order or the field names invalidates every cached result.
type hashEnvelope struct {
	TemplateID string `json:"templateId"`
	Provider   string `json:"provider"`
	Input      string `json:"input"`
	Version    int    `json:"version"`
}

// ContentHash returns the hex SHA-256 identity of a generation request.
// Two requests share a hash iff they would produce the same output:
// same template at the same version, same provider, same input.
func ContentHash(templateID uuid.UUID, provider, input string, version int) string {
	payload, _ := json.Marshal(hashEnvelope{
		TemplateID: templateID.String(),
		Provider:   provider,
		Input:      input,
		Version:    version,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Submit resolves a generation request to a job id. The caller is expected
// to have validated provider and input already.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*SubmitResult, error) {
	tmpl, err := s.store.GetTemplate(ctx, params.TemplateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("loading template: %w", err)
	}

	inputHash := ContentHash(tmpl.ID, params.Provider, params.Input, tmpl.Version)

	// Fast path: the hash already resolved to a completed job recently.
	if jobID, ok, err := s.cache.GetJobForHash(ctx, inputHash); err != nil {
		slog.Warn("dedup cache lookup failed, falling back to store", "error", err)
	} else if ok {
		return &SubmitResult{JobID: jobID, Cached: true}, nil
	}

	// A completed job with this hash serves the result; re-warm the cache.
	if job, err := s.store.FindJobByHash(ctx, inputHash, models.JobStatusCompleted); err == nil {
		if err := s.cache.SetJobForHash(ctx, inputHash, job.ID, s.cacheTTL); err != nil {
			slog.Warn("dedup cache write failed", "error", err)
		}
		return &SubmitResult{JobID: job.ID, Cached: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up completed jobs: %w", err)
	}

	// An in-flight job with this hash will serve the result when it lands;
	// point the caller at it rather than doing the work twice.
	if job, err := s.store.FindJobByHash(ctx, inputHash, models.JobStatusQueued, models.JobStatusRunning); err == nil {
		return &SubmitResult{JobID: job.ID, Cached: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up in-flight jobs: %w", err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:            uuid.New(),
		TemplateID:    tmpl.ID,
		UserID:        params.UserID,
		Provider:      params.Provider,
		Input:         params.Input,
		InputHash:     inputHash,
		Status:        models.JobStatusQueued,
		Attempts:      0,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	return &SubmitResult{JobID: job.ID, Cached: false}, nil
}
