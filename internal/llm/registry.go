// Package llm selects and constructs generation backends.
package llm

import (
	"errors"
	"fmt"
	"sort"

	"github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/internal/llm/anthropic"
	"github.com/promptlab/promptlab/internal/llm/openai"
	"github.com/promptlab/promptlab/pkg/models"
)

// ErrNotConfigured is returned when a request names a provider that has no
// credentials configured.
var ErrNotConfigured = errors.New("provider not configured")

// Registry holds the generation backends that were configured at startup.
// Constructed once in main and injected everywhere a provider is selected
// by name.
type Registry struct {
	providers map[string]models.GenerationProvider
}

// NewRegistry builds a backend for every provider with credentials in cfg.
// Selecting an unconfigured provider fails at request time via Get, not at
// startup, so a deployment can run with a single backend.
func NewRegistry(cfg config.LLMConfig) *Registry {
	providers := make(map[string]models.GenerationProvider)
	if cfg.OpenAI.APIKey != "" {
		providers[models.ProviderOpenAI] = openai.NewProvider(cfg.OpenAI, cfg.MaxTokens)
	}
	if cfg.Anthropic.APIKey != "" {
		providers[models.ProviderAnthropic] = anthropic.NewProvider(cfg.Anthropic, cfg.MaxTokens)
	}
	return &Registry{providers: providers}
}

// NewRegistryWith builds a registry from explicit providers. Used by tests
// and by the worker harness to inject mocks.
func NewRegistryWith(providers ...models.GenerationProvider) *Registry {
	m := make(map[string]models.GenerationProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (models.GenerationProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	return p, nil
}

// Names returns the configured provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
