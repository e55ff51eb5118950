// Package config provides configuration loading and the known-model table.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider identifies an LLM backend implementation.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderOllama    Provider = "ollama"
)

// Model name constants for the known-model table.
const (
	ModelClaudeSonnetLatest = "claude-sonnet-4-20250514"
	ModelClaudeOpusLatest   = "claude-opus-4-20250514"
	ModelGPT5               = "gpt-5"
	ModelGPT4o              = "gpt-4o"
	ModelGeminiFlash        = "gemini-2.0-flash"
	ModelLlama3             = "llama3.1"
)

// ModelInfo describes limits and pricing for a known model.
type ModelInfo struct {
	MaxContextTokens int     // Total context window
	MaxOutputTokens  int     // Maximum completion size
	InputCostPerMTok float64 // USD per million input tokens
	OutputCostPerMTok float64 // USD per million output tokens
}

// KnownModels maps model names to their limits and pricing.
//
//nolint:gochecknoglobals // Static model table
var KnownModels = map[string]ModelInfo{
	ModelClaudeSonnetLatest: {MaxContextTokens: 200000, MaxOutputTokens: 64000, InputCostPerMTok: 3.0, OutputCostPerMTok: 15.0},
	ModelClaudeOpusLatest:   {MaxContextTokens: 200000, MaxOutputTokens: 32000, InputCostPerMTok: 15.0, OutputCostPerMTok: 75.0},
	ModelGPT5:               {MaxContextTokens: 400000, MaxOutputTokens: 128000, InputCostPerMTok: 1.25, OutputCostPerMTok: 10.0},
	ModelGPT4o:              {MaxContextTokens: 128000, MaxOutputTokens: 16384, InputCostPerMTok: 2.5, OutputCostPerMTok: 10.0},
	ModelGeminiFlash:        {MaxContextTokens: 1000000, MaxOutputTokens: 8192, InputCostPerMTok: 0.1, OutputCostPerMTok: 0.4},
	ModelLlama3:             {MaxContextTokens: 128000, MaxOutputTokens: 8192},
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LLMConfig holds completion backend settings. The API key itself is not
// part of the config file; it arrives via environment or the first client
// connect and is persisted encrypted (see secrets.go).
type LLMConfig struct {
	Provider         Provider      `yaml:"provider"`
	Model            string        `yaml:"model"`
	OllamaHost       string        `yaml:"ollama_host"`
	MaxTokens        int           `yaml:"max_tokens"`
	Temperature      float32       `yaml:"temperature"`
	InterviewTimeout time.Duration `yaml:"interview_timeout"`
}

// InterviewConfig bounds the interview agent loop.
type InterviewConfig struct {
	MaxIterations int `yaml:"max_iterations"`
}

// Config is the root configuration object.
type Config struct {
	Server        ServerConfig    `yaml:"server"`
	LLM           LLMConfig       `yaml:"llm"`
	Interview     InterviewConfig `yaml:"interview"`
	DatabasePath  string          `yaml:"database_path"`
	PrometheusURL string          `yaml:"prometheus_url"`
	DataDir       string          `yaml:"data_dir"`
}

// Default returns a config populated with defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		LLM: LLMConfig{
			Provider:         ProviderAnthropic,
			Model:            ModelClaudeSonnetLatest,
			OllamaHost:       "http://localhost:11434",
			MaxTokens:        8192,
			Temperature:      0.7,
			InterviewTimeout: 60 * time.Second,
		},
		Interview: InterviewConfig{
			MaxIterations: 5,
		},
		DatabasePath: "ghostwriter.db",
		DataDir:      ".ghostwriter",
	}
}

// Load builds the configuration: defaults, then the optional YAML file at
// path, then environment overrides. A .env file in the working directory is
// honored before environment variables are read.
func Load(path string) (*Config, error) {
	// .env is optional; absence is not an error
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GHOSTWRITER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("GHOSTWRITER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GHOSTWRITER_DB"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("GHOSTWRITER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("GHOSTWRITER_PROVIDER"); v != "" {
		cfg.LLM.Provider = Provider(v)
	}
	if v := os.Getenv("GHOSTWRITER_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.LLM.OllamaHost = v
	}
	if v := os.Getenv("PROMETHEUS_URL"); v != "" {
		cfg.PrometheusURL = v
	}
}

// APIKeyFromEnv returns the API key for the configured provider, if set.
func (c *Config) APIKeyFromEnv() string {
	switch c.LLM.Provider {
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderGoogle:
		return os.Getenv("GEMINI_API_KEY")
	case ProviderOllama:
		return "" // Local runtime, no key
	default:
		return ""
	}
}

// Validate checks the configuration for basic sanity.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
	default:
		return fmt.Errorf("unknown LLM provider: %s", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM model cannot be empty")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.LLM.Temperature < 0.0 || c.LLM.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if c.Interview.MaxIterations <= 0 {
		return fmt.Errorf("interview max iterations must be positive")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	return nil
}
