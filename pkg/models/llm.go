package models

import (
	"context"
	"errors"
	"fmt"
)

// GenerationProvider is the core interface every text-generation backend
// must implement. Never call a specific backend directly — always inject
// this interface.
type GenerationProvider interface {
	// Generate produces text for the given prompts. Callers bound the call
	// with a context deadline; on expiry the backend must return a
	// retryable *ProviderError.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string
}

// GenerateRequest is the input to a generation call.
type GenerateRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string // empty selects the backend's configured default
	MaxTokens    int
	Temperature  float64
}

// UsageMetrics reports backend token counts and the estimated cost derived
// from the backend's price table.
type UsageMetrics struct {
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// GenerateResponse is the output of a successful generation call.
type GenerateResponse struct {
	Text         string
	Model        string
	FinishReason string
	Usage        UsageMetrics
}

// ProviderError is the classified failure every backend reports. Retryable
// failures (timeouts, rate limits, 5xx, transient network errors) may
// succeed on a later attempt; non-retryable ones (malformed requests, auth
// failures, empty responses) never will.
type ProviderError struct {
	Provider   string
	Message    string
	Retryable  bool
	StatusCode int // zero when no HTTP status applies
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsRetryableError reports whether err is a provider failure worth retrying.
// Unclassified errors are treated as non-retryable.
func IsRetryableError(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
