package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostwriter/pkg/config"
	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/llmerrors"
)

// captureRecorder collects observations for assertions.
type captureRecorder struct {
	mu           sync.Mutex
	observations []observation
}

type observation struct {
	model, bookID, agent string
	promptTokens         int
	completionTokens     int
	cost                 float64
	success              bool
	errorType            string
}

func (c *captureRecorder) ObserveRequest(
	model, bookID, agent string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	_ time.Duration,
) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observations = append(c.observations, observation{
		model: model, bookID: bookID, agent: agent,
		promptTokens: promptTokens, completionTokens: completionTokens,
		cost: cost, success: success, errorType: errorType,
	})
}

func (c *captureRecorder) all() []observation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]observation, len(c.observations))
	copy(out, c.observations)
	return out
}

func TestCompleteRecordsSuccess(t *testing.T) {
	rec := &captureRecorder{}
	mock := llm.NewMockClient([]llm.CompletionResponse{{
		Content: "a fine answer",
		Usage:   llm.Usage{InputTokens: 100, OutputTokens: 50},
	}}, nil)

	client := Middleware(rec, nil, "book-1", "interviewer", nil)(mock)
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)

	obs := rec.all()
	require.Len(t, obs, 1)
	assert.Equal(t, "mock-model", obs[0].model)
	assert.Equal(t, "book-1", obs[0].bookID)
	assert.Equal(t, "interviewer", obs[0].agent)
	assert.Equal(t, 100, obs[0].promptTokens)
	assert.Equal(t, 50, obs[0].completionTokens)
	assert.True(t, obs[0].success)
}

func TestCompleteRecordsErrorType(t *testing.T) {
	rec := &captureRecorder{}
	mock := llm.NewMockClient(nil, []error{
		llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429"),
	})

	client := Middleware(rec, nil, "book-1", "writer", nil)(mock)
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)

	obs := rec.all()
	require.Len(t, obs, 1)
	assert.False(t, obs[0].success)
	assert.Equal(t, "rate_limit", obs[0].errorType)
	assert.Zero(t, obs[0].cost)
}

func TestStreamRecordsAfterDrain(t *testing.T) {
	rec := &captureRecorder{}
	mock := llm.NewMockClient([]llm.CompletionResponse{{Content: "streamed chapter text"}}, nil)

	client := Middleware(rec, nil, "book-2", "writer", nil)(mock)
	ch, err := client.Stream(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)

	for range ch {
	}

	// Recording happens on the forwarding goroutine after the channel closes
	require.Eventually(t, func() bool {
		return len(rec.all()) == 1
	}, time.Second, 10*time.Millisecond)

	obs := rec.all()
	assert.True(t, obs[0].success)
	assert.Positive(t, obs[0].completionTokens)
}

func TestRequestCostUsesPricingTable(t *testing.T) {
	info := config.KnownModels[config.ModelClaudeSonnetLatest]
	cost := requestCost(config.ModelClaudeSonnetLatest, 1_000_000, 1_000_000)
	assert.InDelta(t, info.InputCostPerMTok+info.OutputCostPerMTok, cost, 1e-9)

	assert.Zero(t, requestCost("unknown-model", 1000, 1000))
}

func TestDefaultUsageExtractorFallback(t *testing.T) {
	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewUserMessage("Tell me about your childhood in Kansas."),
	})

	// Provider-reported usage wins
	p, c := DefaultUsageExtractor(req, llm.CompletionResponse{
		Content: "text",
		Usage:   llm.Usage{InputTokens: 7, OutputTokens: 3},
	})
	assert.Equal(t, 7, p)
	assert.Equal(t, 3, c)

	// Without usage, counts are estimated from text
	p, c = DefaultUsageExtractor(req, llm.CompletionResponse{Content: "It was flat and wide."})
	assert.Positive(t, p)
	assert.Positive(t, c)
}
