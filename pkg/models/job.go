// Package models contains shared data models used across the PromptLab codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ValidProvider reports whether name is a supported generation provider.
func ValidProvider(name string) bool {
	return name == ProviderOpenAI || name == ProviderAnthropic
}

// TerminalStatus reports whether a job status admits no further transitions.
func TerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// Job tracks an async generation request. The API returns a job id on
// POST /api/v1/generate; the client polls GET /api/v1/jobs/{id} until the
// status is completed or failed.
//
// Attempts only ever increases; it is incremented by the conditional claim
// that moves the job into running, before the provider call is made. Output
// is non-nil iff status is completed. Error holds the most recent failure
// message and may be set while the job is still queued, pending a retry.
type Job struct {
	ID         uuid.UUID  `db:"id"          json:"id"`
	TemplateID uuid.UUID  `db:"template_id" json:"template_id"`
	UserID     *uuid.UUID `db:"user_id"     json:"user_id,omitempty"`
	Provider   string     `db:"provider"    json:"provider"`
	Input      string     `db:"input"       json:"input"`
	InputHash  string     `db:"input_hash"  json:"input_hash"`
	Status     string     `db:"status"      json:"status"`
	Attempts   int        `db:"attempts"    json:"attempts"`
	Output     *string    `db:"output"      json:"output,omitempty"`
	Error      *string    `db:"error"       json:"error,omitempty"`

	Model            *string  `db:"model"              json:"model,omitempty"`
	InputTokens      *int64   `db:"input_tokens"       json:"input_tokens,omitempty"`
	OutputTokens     *int64   `db:"output_tokens"      json:"output_tokens,omitempty"`
	TotalTokens      *int64   `db:"total_tokens"       json:"total_tokens,omitempty"`
	EstimatedCostUSD *float64 `db:"estimated_cost_usd" json:"estimated_cost_usd,omitempty"`

	// NextAttemptAt gates re-pickup after a retryable failure; the scheduler
	// never sees a queued job before this instant.
	NextAttemptAt time.Time  `db:"next_attempt_at" json:"-"`
	StartedAt     *time.Time `db:"started_at"      json:"started_at,omitempty"`
	FinishedAt    *time.Time `db:"finished_at"     json:"finished_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"      json:"updated_at"`
}
