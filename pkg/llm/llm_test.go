package llm

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string

	tag := func(name string) Middleware {
		return func(next Client) Client {
			return WrapClient(
				func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
					order = append(order, name)
					return next.Complete(ctx, req)
				},
				next.Stream,
				next.GetModelName,
			)
		}
	}

	mock := NewMockClient([]CompletionResponse{{Content: "done"}}, nil)
	client := Chain(mock, tag("outer"), tag("middle"), tag("inner"))

	_, err := client.Complete(context.Background(), NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "middle", "inner"}, order)
	assert.Equal(t, "mock-model", client.GetModelName())
}

func TestStreamToReader(t *testing.T) {
	mock := NewMockClient([]CompletionResponse{{Content: "hello stream"}}, nil)
	ch, err := mock.Stream(context.Background(), NewCompletionRequest(nil))
	require.NoError(t, err)

	data, err := io.ReadAll(StreamToReader(ch))
	require.NoError(t, err)
	assert.Equal(t, "hello stream", string(data))
}

func TestMockClientExhaustion(t *testing.T) {
	mock := NewMockClient([]CompletionResponse{{Content: "only one"}}, nil)

	_, err := mock.Complete(context.Background(), NewCompletionRequest(nil))
	require.NoError(t, err)

	_, err = mock.Complete(context.Background(), NewCompletionRequest(nil))
	assert.Error(t, err)
}

func TestMockClientGatedStreamCancellation(t *testing.T) {
	mock := NewMockClient([]CompletionResponse{{Content: "one two three four"}}, nil)
	gate := mock.Gate()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := mock.Stream(ctx, NewCompletionRequest(nil))
	require.NoError(t, err)

	// Release two words, then cancel mid-stream
	gate <- struct{}{}
	gate <- struct{}{}

	var content string
	var streamErr error
	got := 0
	for chunk := range ch {
		if chunk.Error != nil {
			streamErr = chunk.Error
			break
		}
		content += chunk.Content
		got++
		if got == 2 {
			cancel()
		}
	}

	assert.ErrorIs(t, streamErr, context.Canceled)
	assert.Equal(t, "one two ", content)
}

func TestClientConfigValidate(t *testing.T) {
	cfg := ClientConfig{ModelName: "m", MaxTokens: 100, Temperature: 0.5}
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.ModelName = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MaxTokens = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Temperature = 5
	assert.Error(t, bad.Validate())
}
