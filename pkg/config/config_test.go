package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, ModelClaudeSonnetLatest, cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Interview.MaxIterations)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9090
llm:
  provider: openai
  model: gpt-4o
  max_tokens: 4096
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, ModelGPT4o, cfg.LLM.Model)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	// Untouched fields keep defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	t.Setenv("GHOSTWRITER_PORT", "7070")
	t.Setenv("GHOSTWRITER_MODEL", ModelGeminiFlash)
	t.Setenv("GHOSTWRITER_PROVIDER", "google")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, ProviderGoogle, cfg.LLM.Provider)
	assert.Equal(t, ModelGeminiFlash, cfg.LLM.Model)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "skynet" }},
		{"empty model", func(c *Config) { c.LLM.Model = "" }},
		{"zero max tokens", func(c *Config) { c.LLM.MaxTokens = 0 }},
		{"temperature out of range", func(c *Config) { c.LLM.Temperature = 3.0 }},
		{"zero interview iterations", func(c *Config) { c.Interview.MaxIterations = 0 }},
		{"empty db path", func(c *Config) { c.DatabasePath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestKnownModelsHaveLimits(t *testing.T) {
	for name, info := range KnownModels {
		assert.Positive(t, info.MaxContextTokens, "model %s", name)
		assert.Positive(t, info.MaxOutputTokens, "model %s", name)
	}
}

func TestSecretsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	secrets := map[string]string{
		"ANTHROPIC_API_KEY": "sk-ant-test-123",
		"OPENAI_API_KEY":    "sk-test-456",
	}

	require.NoError(t, EncryptSecretsFile(dir, "correct horse", secrets))
	assert.True(t, SecretsFileExists(dir))

	got, err := DecryptSecretsFile(dir, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, secrets, got)
}

func TestSecretsWrongPassword(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "right", map[string]string{"K": "v"}))

	_, err := DecryptSecretsFile(dir, "wrong")
	assert.Error(t, err)
}

func TestSecretsFilePermissions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "pw", map[string]string{"K": "v"}))

	info, err := os.Stat(filepath.Join(dir, secretsFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestGetSecretPrecedence(t *testing.T) {
	t.Setenv("GW_TEST_SECRET", "from-env")

	SetDecryptedSecrets(nil)
	val, err := GetSecret("GW_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", val)

	SetSecret("GW_TEST_SECRET", "from-file")
	val, err = GetSecret("GW_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-file", val)

	SetDecryptedSecrets(nil)
	_, err = GetSecret("GW_TEST_MISSING")
	assert.Error(t, err)
}
