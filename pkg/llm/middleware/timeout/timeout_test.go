package timeout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostwriter/pkg/llm"
)

// slowClient blocks until the context expires.
type slowClient struct{}

func (s *slowClient) Complete(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	<-ctx.Done()
	return llm.CompletionResponse{}, ctx.Err()
}

func (s *slowClient) Stream(ctx context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		<-ctx.Done()
		ch <- llm.StreamChunk{Error: ctx.Err()}
	}()
	return ch, nil
}

func (s *slowClient) GetModelName() string { return "slow-model" }

func TestCompleteTimesOut(t *testing.T) {
	client := Middleware(10 * time.Millisecond)(&slowClient{})

	start := time.Now()
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStreamDeadlineReachesChunks(t *testing.T) {
	client := Middleware(10 * time.Millisecond)(&slowClient{})

	ch, err := client.Stream(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)

	var streamErr error
	for chunk := range ch {
		if chunk.Error != nil {
			streamErr = chunk.Error
		}
	}
	assert.ErrorIs(t, streamErr, context.DeadlineExceeded)
}

func TestFastStreamCompletesWithinDeadline(t *testing.T) {
	mock := llm.NewMockClient([]llm.CompletionResponse{{Content: "quick"}}, nil)
	client := Middleware(time.Second)(mock)

	ch, err := client.Stream(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)

	var content string
	for chunk := range ch {
		require.NoError(t, chunk.Error)
		content += chunk.Content
	}
	assert.Equal(t, "quick", content)
}
