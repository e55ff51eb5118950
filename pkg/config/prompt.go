package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// PromptForSecret reads a secret from the terminal without echo. Falls back
// to a plain line read when stdin is not a TTY (piped input, tests).
func PromptForSecret(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// EnsureAPIKey resolves the provider API key: environment first, then the
// encrypted secrets file, then an interactive prompt. A key obtained by
// prompt is persisted encrypted for subsequent runs.
func EnsureAPIKey(cfg *Config) (string, error) {
	if cfg.LLM.Provider == ProviderOllama {
		return "", nil
	}

	envVar := providerKeyName(cfg.LLM.Provider)
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}

	if SecretsFileExists(cfg.DataDir) {
		password, err := PromptForSecret("Secrets password")
		if err != nil {
			return "", err
		}
		secrets, err := DecryptSecretsFile(cfg.DataDir, password)
		if err != nil {
			return "", err
		}
		SetDecryptedSecrets(secrets)
		if key, err := GetSecret(envVar); err == nil {
			return key, nil
		}
	}

	key, err := PromptForSecret(fmt.Sprintf("Enter %s", envVar))
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("no API key provided for provider %s", cfg.LLM.Provider)
	}

	password, err := PromptForSecret("Password to encrypt stored credentials")
	if err != nil {
		return "", err
	}
	if password != "" {
		SetSecret(envVar, key)
		if err := SaveSecretsToFile(cfg.DataDir, password); err != nil {
			return "", fmt.Errorf("failed to persist credentials: %w", err)
		}
	}

	return key, nil
}

func providerKeyName(p Provider) string {
	switch p {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}
