// Package providers constructs LLM clients for the configured backend.
package providers

import (
	"fmt"

	"ghostwriter/pkg/config"
	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/llm/providers/anthropic"
	"ghostwriter/pkg/llm/providers/google"
	"ghostwriter/pkg/llm/providers/ollama"
	"ghostwriter/pkg/llm/providers/openai"
)

// NewClient creates a raw client for the configured provider. Middleware
// (retry, timeout, metrics) is applied by the caller so labels can be bound
// per session.
func NewClient(cfg *config.Config, apiKey string) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case config.ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return anthropic.NewClient(apiKey, cfg.LLM.Model), nil
	case config.ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return openai.NewClient(apiKey, cfg.LLM.Model), nil
	case config.ProviderGoogle:
		if apiKey == "" {
			return nil, fmt.Errorf("google provider requires an API key")
		}
		return google.NewClient(apiKey, cfg.LLM.Model), nil
	case config.ProviderOllama:
		return ollama.NewClient(cfg.LLM.OllamaHost, cfg.LLM.Model), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLM.Provider)
	}
}
