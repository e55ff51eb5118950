package metrics

import (
	"context"
	"errors"
	"time"

	"ghostwriter/pkg/config"
	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/llmerrors"
	"ghostwriter/pkg/logx"
	"ghostwriter/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor prefers provider-reported usage and falls back to
// TikToken counting when the provider reports nothing.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		return resp.Usage.InputTokens, resp.Usage.OutputTokens
	}

	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
	}
	promptTokens = utils.CountTokensSimple(promptText)
	completionTokens = utils.CountTokensSimple(resp.Content)
	return promptTokens, completionTokens
}

// Middleware returns a middleware function that records metrics for LLM operations.
// It tracks request latency, token usage, success/failure rates, and error types.
// bookID and agent label the recorded series.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, bookID, agent string, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.Client) llm.Client {
		model := next.GetModelName()

		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				errorType := ""
				if err != nil {
					errorType = getErrorType(err)
				}

				recorder.ObserveRequest(
					model,
					bookID,
					agent,
					promptTokens,
					completionTokens,
					requestCost(model, promptTokens, completionTokens),
					err == nil,
					errorType,
					duration,
				)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Debug("LLM request: model=%s book=%s agent=%s tokens=%d+%d status=%s duration=%dms",
						model, bookID, agent, promptTokens, completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()

				ch, err := next.Stream(ctx, req)
				if err != nil {
					recorder.ObserveRequest(model, bookID, agent, 0, 0, 0, false, getErrorType(err), time.Since(start))
					return nil, err //nolint:wrapcheck // Middleware should pass through errors unchanged
				}

				// Accumulate streamed content so token usage can be recorded
				// once the stream finishes.
				out := make(chan llm.StreamChunk)
				go func() {
					defer close(out)
					var content string
					var streamErr error
					for chunk := range ch {
						if chunk.Error != nil {
							streamErr = chunk.Error
						}
						content += chunk.Content
						out <- chunk
					}

					duration := time.Since(start)
					var promptTokens, completionTokens int
					errorType := ""
					if streamErr != nil {
						errorType = getErrorType(streamErr)
					} else {
						promptTokens, completionTokens = usageExtractor(req, llm.CompletionResponse{Content: content})
					}

					recorder.ObserveRequest(
						model,
						bookID,
						agent,
						promptTokens,
						completionTokens,
						requestCost(model, promptTokens, completionTokens),
						streamErr == nil,
						errorType,
						duration,
					)

					if logger != nil {
						status := statusSuccess
						if streamErr != nil {
							status = statusError
						}
						logger.Debug("LLM stream: model=%s book=%s agent=%s tokens=%d+%d status=%s duration=%dms",
							model, bookID, agent, promptTokens, completionTokens, status, duration.Milliseconds())
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

// requestCost computes the USD cost of a request from the known-model
// pricing table. Unknown models cost zero.
func requestCost(model string, promptTokens, completionTokens int) float64 {
	info, ok := config.KnownModels[model]
	if !ok {
		return 0
	}
	return float64(promptTokens)/1e6*info.InputCostPerMTok +
		float64(completionTokens)/1e6*info.OutputCostPerMTok
}

// getErrorType classifies errors for metrics labeling.
func getErrorType(err error) string {
	if err == nil {
		return ""
	}

	var classified *llmerrors.Error
	if errors.As(err, &classified) {
		return classified.Type.String()
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}
