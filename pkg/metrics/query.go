// Package metrics provides services for querying and aggregating metrics data.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// BookMetrics represents aggregated LLM usage for one book.
type BookMetrics struct {
	BookID           string  `json:"book_id"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetBookMetrics retrieves aggregated token and cost metrics for a book,
// summed across every agent that worked on it (interviewer, writer,
// outline expander).
func (q *QueryService) GetBookMetrics(ctx context.Context, bookID string) (*BookMetrics, error) {
	metrics := &BookMetrics{
		BookID: bookID,
	}

	promptTokensQuery := fmt.Sprintf(`sum(llm_tokens_total{book_id=%q, type="prompt"})`, bookID)
	promptResult, _, err := q.queryAPI.Query(ctx, promptTokensQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}

	if vector, ok := promptResult.(model.Vector); ok && len(vector) > 0 {
		metrics.PromptTokens = int64(vector[0].Value)
	}

	completionTokensQuery := fmt.Sprintf(`sum(llm_tokens_total{book_id=%q, type="completion"})`, bookID)
	completionResult, _, err := q.queryAPI.Query(ctx, completionTokensQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}

	if vector, ok := completionResult.(model.Vector); ok && len(vector) > 0 {
		metrics.CompletionTokens = int64(vector[0].Value)
	}

	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

	costQuery := fmt.Sprintf(`sum(llm_costs_total{book_id=%q})`, bookID)
	costResult, _, err := q.queryAPI.Query(ctx, costQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}

	if vector, ok := costResult.(model.Vector); ok && len(vector) > 0 {
		metrics.TotalCost = float64(vector[0].Value)
	}

	return metrics, nil
}

// GetBookMetricsByAgent retrieves metrics broken down by agent for a book,
// showing how much of the spend went to interviewing versus drafting.
func (q *QueryService) GetBookMetricsByAgent(ctx context.Context, bookID string) (map[string]*BookMetrics, error) {
	result := make(map[string]*BookMetrics)

	agentsQuery := fmt.Sprintf(`group by (agent) (llm_tokens_total{book_id=%q})`, bookID)
	agentsResult, _, err := q.queryAPI.Query(ctx, agentsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}

	var agents []string
	if vector, ok := agentsResult.(model.Vector); ok {
		for _, sample := range vector {
			if agent, ok := sample.Metric["agent"]; ok {
				agents = append(agents, string(agent))
			}
		}
	}

	for _, agent := range agents {
		metrics := &BookMetrics{
			BookID: bookID,
		}

		promptQuery := fmt.Sprintf(`sum(llm_tokens_total{book_id=%q, agent=%q, type="prompt"})`, bookID, agent)
		promptResult, _, err := q.queryAPI.Query(ctx, promptQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for agent %s: %w", agent, err)
		}

		if vector, ok := promptResult.(model.Vector); ok && len(vector) > 0 {
			metrics.PromptTokens = int64(vector[0].Value)
		}

		completionQuery := fmt.Sprintf(`sum(llm_tokens_total{book_id=%q, agent=%q, type="completion"})`, bookID, agent)
		completionResult, _, err := q.queryAPI.Query(ctx, completionQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for agent %s: %w", agent, err)
		}

		if vector, ok := completionResult.(model.Vector); ok && len(vector) > 0 {
			metrics.CompletionTokens = int64(vector[0].Value)
		}

		metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

		costQuery := fmt.Sprintf(`sum(llm_costs_total{book_id=%q, agent=%q})`, bookID, agent)
		costResult, _, err := q.queryAPI.Query(ctx, costQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query cost for agent %s: %w", agent, err)
		}

		if vector, ok := costResult.(model.Vector); ok && len(vector) > 0 {
			metrics.TotalCost = float64(vector[0].Value)
		}

		result[agent] = metrics
	}

	return result, nil
}
