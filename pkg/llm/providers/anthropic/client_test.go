package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostwriter/pkg/llm"
)

func TestEnsureAlternationExtractsSystem(t *testing.T) {
	system, msgs, err := ensureAlternation([]llm.CompletionMessage{
		llm.NewSystemMessage("You are a ghostwriter."),
		llm.NewUserMessage("Tell me about the farm."),
	})
	require.NoError(t, err)
	assert.Equal(t, "You are a ghostwriter.", system)
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
}

func TestEnsureAlternationMergesConsecutiveUserMessages(t *testing.T) {
	_, msgs, err := ensureAlternation([]llm.CompletionMessage{
		llm.NewUserMessage("first"),
		llm.NewUserMessage("second"),
		llm.NewAssistantMessage("reply"),
		llm.NewUserMessage("third"),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first\n\nsecond", msgs[0].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "third", msgs[2].Content)
}

func TestEnsureAlternationRejectsEmptyAndTrailingAssistant(t *testing.T) {
	_, _, err := ensureAlternation(nil)
	assert.Error(t, err)

	_, _, err = ensureAlternation([]llm.CompletionMessage{
		llm.NewSystemMessage("only system"),
	})
	assert.Error(t, err)

	_, _, err = ensureAlternation([]llm.CompletionMessage{
		llm.NewUserMessage("hi"),
		llm.NewAssistantMessage("trailing"),
	})
	assert.Error(t, err)
}

func TestValidatePreSend(t *testing.T) {
	require.NoError(t, validatePreSend([]llm.CompletionMessage{
		llm.NewUserMessage("q"),
		llm.NewAssistantMessage("a"),
		llm.NewUserMessage("q2"),
	}))

	assert.Error(t, validatePreSend([]llm.CompletionMessage{
		llm.NewSystemMessage("stray system"),
	}))
	assert.Error(t, validatePreSend([]llm.CompletionMessage{
		llm.NewAssistantMessage("starts with assistant"),
	}))
	assert.Error(t, validatePreSend([]llm.CompletionMessage{
		llm.NewUserMessage("a"),
		llm.NewUserMessage("b"),
	}))
}

func TestExtractStatusCode(t *testing.T) {
	assert.Equal(t, 429, extractStatusCode("request failed, status code: 429"))
	assert.Equal(t, 401, extractStatusCode("HTTP 401 Unauthorized"))
	assert.Equal(t, 503, extractStatusCode("upstream error status: 503"))
	assert.Equal(t, 0, extractStatusCode("no code here"))
}

func TestBuildParamsRejectsBadOrdering(t *testing.T) {
	c := &ClaudeClient{model: "claude-sonnet-4-20250514"}

	badReq := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewAssistantMessage("bad start")})
	_, err := c.buildParams(badReq)
	assert.Error(t, err)
}
