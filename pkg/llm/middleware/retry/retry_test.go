package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/llmerrors"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetriesTransientErrors(t *testing.T) {
	mock := llm.NewMockClient(
		[]llm.CompletionResponse{{Content: "ok"}},
		[]error{
			llmerrors.NewError(llmerrors.ErrorTypeTransient, "connection reset"),
			llmerrors.NewError(llmerrors.ErrorTypeTransient, "connection reset"),
			nil,
		},
	)
	client := Middleware(NewPolicy(fastConfig(3), nil))(mock)

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestDoesNotRetryAuthErrors(t *testing.T) {
	mock := llm.NewMockClient(
		[]llm.CompletionResponse{{Content: "never reached"}},
		[]error{llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")},
	)
	client := Middleware(NewPolicy(fastConfig(3), nil))(mock)

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth))

	// Only one request was attempted
	assert.Len(t, mock.Requests(), 1)
}

func TestExhaustsAttempts(t *testing.T) {
	mock := llm.NewMockClient(
		nil,
		[]error{
			llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429"),
			llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429"),
			llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429"),
		},
	)
	client := Middleware(NewPolicy(fastConfig(3), nil))(mock)

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)
	assert.Len(t, mock.Requests(), 3)
}

func TestStreamRetries(t *testing.T) {
	mock := llm.NewMockClient(
		[]llm.CompletionResponse{{Content: "streamed"}},
		[]error{llmerrors.NewError(llmerrors.ErrorTypeTransient, "timeout"), nil},
	)
	client := Middleware(NewPolicy(fastConfig(2), nil))(mock)

	ch, err := client.Stream(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)

	var content string
	for chunk := range ch {
		require.NoError(t, chunk.Error)
		content += chunk.Content
	}
	assert.Equal(t, "streamed", content)
}

func TestShouldRetryClassification(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.False(t, ShouldRetry(context.Canceled))
	assert.False(t, ShouldRetry(context.DeadlineExceeded))

	assert.True(t, ShouldRetry(llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow down")))
	assert.False(t, ShouldRetry(llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "too long")))

	// Unclassified errors fall back to string matching
	assert.True(t, ShouldRetry(fmt.Errorf("dial tcp: connection refused")))
	assert.True(t, ShouldRetry(fmt.Errorf("HTTP 503 service unavailable")))
	assert.False(t, ShouldRetry(fmt.Errorf("something else entirely")))
}

func TestCalculateDelayBackoff(t *testing.T) {
	p := NewPolicy(Config{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}, nil)

	assert.Equal(t, time.Duration(0), p.CalculateDelay(1))
	assert.Equal(t, 100*time.Millisecond, p.CalculateDelay(2))
	assert.Equal(t, 200*time.Millisecond, p.CalculateDelay(3))
	assert.Equal(t, 400*time.Millisecond, p.CalculateDelay(4))
	// Capped at MaxDelay
	assert.Equal(t, time.Second, p.CalculateDelay(6))
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	mock := llm.NewMockClient(
		nil,
		[]error{llmerrors.NewError(llmerrors.ErrorTypeTransient, "flaky")},
	)
	client := Middleware(NewPolicy(Config{
		MaxAttempts:   3,
		InitialDelay:  time.Hour,
		MaxDelay:      time.Hour,
		BackoffFactor: 2.0,
	}, nil))(mock)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.Complete(ctx, llm.NewCompletionRequest(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
