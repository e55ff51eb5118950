package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostwriter/pkg/config"
)

func TestNewClientPerProvider(t *testing.T) {
	cfg := config.Default()

	client, err := NewClient(cfg, "sk-ant-test")
	require.NoError(t, err)
	assert.Equal(t, cfg.LLM.Model, client.GetModelName())

	cfg.LLM.Provider = config.ProviderOpenAI
	cfg.LLM.Model = config.ModelGPT4o
	client, err = NewClient(cfg, "sk-test")
	require.NoError(t, err)
	assert.Equal(t, config.ModelGPT4o, client.GetModelName())

	cfg.LLM.Provider = config.ProviderGoogle
	cfg.LLM.Model = config.ModelGeminiFlash
	client, err = NewClient(cfg, "key")
	require.NoError(t, err)
	assert.Equal(t, config.ModelGeminiFlash, client.GetModelName())

	// Ollama needs no key
	cfg.LLM.Provider = config.ProviderOllama
	cfg.LLM.Model = config.ModelLlama3
	client, err = NewClient(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, config.ModelLlama3, client.GetModelName())
}

func TestNewClientRequiresKey(t *testing.T) {
	cfg := config.Default()
	_, err := NewClient(cfg, "")
	assert.Error(t, err)

	cfg.LLM.Provider = "bogus"
	_, err = NewClient(cfg, "key")
	assert.Error(t, err)
}
