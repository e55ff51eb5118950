// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides accurate token counting for different models.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a new token counter for the specified model.
// All supported chat models approximate well with the GPT-4 encoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	// Claude and Gemini tokenizers are not public; GPT-4 encoding is a close
	// enough proxy for context budgeting.
	tikModel := tokenizer.GPT4
	if strings.HasPrefix(model, "gpt-3.5") {
		tikModel = tokenizer.GPT35Turbo
	}

	codec, err := tokenizer.ForModel(tikModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}

	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}

	return count
}

//nolint:gochecknoglobals // Cached codec for the package-level helper
var (
	simpleCounter     *TokenCounter
	simpleCounterOnce sync.Once
)

// CountTokensSimple provides a simple token counting function without
// requiring a TokenCounter instance. Uses GPT-4 encoding by default.
func CountTokensSimple(text string) int {
	simpleCounterOnce.Do(func() {
		counter, err := NewTokenCounter("gpt-4")
		if err == nil {
			simpleCounter = counter
		}
	})

	if simpleCounter == nil {
		return len(text) / 4
	}
	return simpleCounter.CountTokens(text)
}
