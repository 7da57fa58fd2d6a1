package mock

import (
	"context"
	"fmt"

	"github.com/promptlab/promptlab/pkg/models"
)

// MockProvider satisfies models.GenerationProvider for testing.
type MockProvider struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &models.GenerateResponse{}, nil
}

// NewMockProvider returns a MockProvider with sensible default responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
			return &models.GenerateResponse{
				Text:         fmt.Sprintf("Mock completion for: %s", req.UserPrompt),
				Model:        "mock-v1",
				FinishReason: "stop",
				Usage: models.UsageMetrics{
					InputTokens:      10,
					OutputTokens:     20,
					TotalTokens:      30,
					EstimatedCostUSD: 0.0001,
				},
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (*models.GenerateResponse, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (*models.GenerateResponse, error) {
			<-ctx.Done()
			return nil, &models.ProviderError{
				Provider:  "mock-timeout",
				Message:   "generation timed out",
				Retryable: true,
			}
		},
	}
}

// Compile-time check that MockProvider implements GenerationProvider.
var _ models.GenerationProvider = (*MockProvider)(nil)
