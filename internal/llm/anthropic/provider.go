// Package anthropic implements models.GenerationProvider against the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/pkg/models"
)

// modelPricing is USD per one million tokens.
var modelPricing = map[string]struct{ input, output float64 }{
	"claude-3-5-sonnet-20240620": {input: 3.0, output: 15.0},
	"claude-3-5-sonnet-20241022": {input: 3.0, output: 15.0},
	"claude-3-haiku-20240307":    {input: 0.25, output: 1.25},
	"claude-3-opus-20240229":     {input: 15.0, output: 75.0},
}

// defaultPricingModel is the tier charged for models missing from the table.
const defaultPricingModel = "claude-3-5-sonnet-20240620"

// Provider implements models.GenerationProvider using Anthropic.
type Provider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
}

func NewProvider(cfg config.AnthropicConfig, maxTokens int) *Provider {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Provider{
		client:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		defaultModel: cfg.Model,
		maxTokens:    maxTokens,
	}
}

func (p *Provider) Name() string { return models.ProviderAnthropic }

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.classifyError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &models.ProviderError{
			Provider:  p.Name(),
			Message:   "no text content in response",
			Retryable: false,
		}
	}

	return &models.GenerateResponse{
		Text:         text.String(),
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
		Usage:        calculateUsage(model, resp.Usage.InputTokens, resp.Usage.OutputTokens),
	}, nil
}

// classifyError maps SDK and transport failures into the retryable /
// non-retryable contract.
func (p *Provider) classifyError(err error) *models.ProviderError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &models.ProviderError{
			Provider:  p.Name(),
			Message:   fmt.Sprintf("request timeout: %v", err),
			Retryable: true,
		}
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		retryable := apierr.StatusCode == 429 || apierr.StatusCode >= 500
		return &models.ProviderError{
			Provider:   p.Name(),
			Message:    apierr.Error(),
			Retryable:  retryable,
			StatusCode: apierr.StatusCode,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &models.ProviderError{
			Provider:  p.Name(),
			Message:   fmt.Sprintf("network error: %v", err),
			Retryable: true,
		}
	}

	return &models.ProviderError{
		Provider:  p.Name(),
		Message:   err.Error(),
		Retryable: false,
	}
}

func calculateUsage(model string, inputTokens, outputTokens int64) models.UsageMetrics {
	pricing, ok := modelPricing[model]
	if !ok {
		pricing = modelPricing[defaultPricingModel]
	}

	inputCost := float64(inputTokens) / 1_000_000 * pricing.input
	outputCost := float64(outputTokens) / 1_000_000 * pricing.output

	return models.UsageMetrics{
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		TotalTokens:      inputTokens + outputTokens,
		EstimatedCostUSD: inputCost + outputCost,
	}
}

// Compile-time check that Provider implements GenerationProvider.
var _ models.GenerationProvider = (*Provider)(nil)
