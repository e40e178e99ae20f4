package llms

import (
	"fmt"

	"github.com/Ravikumarchavva/agent-framework/pkg/config"
	"github.com/Ravikumarchavva/agent-framework/pkg/registry"
)

// ProviderRegistry holds named providers.
type ProviderRegistry struct {
	*registry.BaseRegistry[Provider]
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// NewProvider builds a provider from config by type.
func NewProvider(cfg *config.LLMProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "openai", "":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider type %q", cfg.Type)
	}
}
