// Package openai implements models.GenerationProvider against the OpenAI
// chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/pkg/models"
)

// modelPricing is USD per one million tokens.
var modelPricing = map[string]struct{ input, output float64 }{
	"gpt-4o":        {input: 2.5, output: 10.0},
	"gpt-4o-mini":   {input: 0.15, output: 0.6},
	"gpt-4-turbo":   {input: 10.0, output: 30.0},
	"gpt-4":         {input: 30.0, output: 60.0},
	"gpt-3.5-turbo": {input: 0.5, output: 1.5},
}

// defaultPricingModel is the tier charged for models missing from the table.
const defaultPricingModel = "gpt-4o"

// Provider implements models.GenerationProvider using OpenAI's HTTP API.
// Per-call deadlines come from the caller's context.
type Provider struct {
	apiKey       string
	baseURL      string
	defaultModel string
	maxTokens    int
	client       *http.Client
}

func NewProvider(cfg config.OpenAIConfig, maxTokens int) *Provider {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Provider{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.Model,
		maxTokens:    maxTokens,
		client:       &http.Client{},
	}
}

func (p *Provider) Name() string { return models.ProviderOpenAI }

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	body, err := json.Marshal(chatRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Messages:    messages,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	u := p.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.classifyStatusError(resp)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &models.ProviderError{
			Provider:  p.Name(),
			Message:   fmt.Sprintf("decoding response: %v", err),
			Retryable: false,
		}
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return nil, &models.ProviderError{
			Provider:  p.Name(),
			Message:   "no text content in response",
			Retryable: false,
		}
	}
	choice := chatResp.Choices[0]

	respModel := chatResp.Model
	if respModel == "" {
		respModel = model
	}

	return &models.GenerateResponse{
		Text:         choice.Message.Content,
		Model:        respModel,
		FinishReason: choice.FinishReason,
		Usage:        calculateUsage(model, chatResp.Usage.PromptTokens, chatResp.Usage.CompletionTokens),
	}, nil
}

func (p *Provider) classifyTransportError(err error) *models.ProviderError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &models.ProviderError{
			Provider:  p.Name(),
			Message:   fmt.Sprintf("request timeout: %v", err),
			Retryable: true,
		}
	}

	// Connection resets, DNS hiccups and timeouts are all worth another try.
	return &models.ProviderError{
		Provider:  p.Name(),
		Message:   fmt.Sprintf("network error: %v", err),
		Retryable: true,
	}
}

func (p *Provider) classifyStatusError(resp *http.Response) *models.ProviderError {
	message := fmt.Sprintf("unexpected status %d", resp.StatusCode)

	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	return &models.ProviderError{
		Provider:   p.Name(),
		Message:    message,
		Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		StatusCode: resp.StatusCode,
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

// --- OpenAI wire types ---

type chatRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Compile-time check that Provider implements GenerationProvider.
var _ models.GenerationProvider = (*Provider)(nil)
