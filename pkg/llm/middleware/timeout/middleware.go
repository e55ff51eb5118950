// Package timeout provides timeout middleware for LLM clients.
package timeout

import (
	"context"
	"time"

	"ghostwriter/pkg/llm"
)

// Middleware returns a middleware function that wraps an LLM client with per-request timeout logic.
// Each request gets a timeout context to prevent hanging requests. For streams
// the deadline covers the whole stream; the context is released once the
// stream drains.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				return next.Complete(timeoutCtx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)

				ch, err := next.Stream(timeoutCtx, req)
				if err != nil {
					cancel()
					return nil, err
				}

				// Forward chunks; release the timeout context when the
				// upstream channel closes.
				out := make(chan llm.StreamChunk)
				go func() {
					defer close(out)
					defer cancel()
					for chunk := range ch {
						out <- chunk
					}
				}()
				return out, nil
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}
