package webui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/persistence"
	"ghostwriter/pkg/tools"
)

const bootstrapTimeout = 90 * time.Second

// planCollector receives the chapters the model proposes during bootstrap.
type planCollector struct {
	plans []tools.ChapterPlan
}

func (p *planCollector) AppendChapters(plans []tools.ChapterPlan) error {
	p.plans = append(p.plans, plans...)
	return nil
}

// bootstrapOutline asks the model for an initial chapter plan with one forced
// add_chapters completion and persists the result. A book with an empty
// outline is still usable; expansion from inside the session covers it.
func (s *Server) bootstrapOutline(ctx context.Context, user *persistence.User, book *persistence.Book, premise string) ([]*persistence.OutlineChapter, error) {
	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	collector := &planCollector{}
	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewAddChaptersTool(collector)); err != nil {
		return nil, fmt.Errorf("failed to register add_chapters: %w", err)
	}

	if premise == "" {
		premise = "Plan a memoir that covers the subject's life chronologically, from childhood to the present."
	}

	req := llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(bootstrapSystemPrompt(user, book)),
			llm.NewUserMessage(premise),
		},
		Tools:       registry.Definitions(),
		ToolChoice:  tools.ToolAddChapters,
		MaxTokens:   s.cfg.LLM.MaxTokens,
		Temperature: llm.TemperatureDrafting,
	}

	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("outline planning failed: %w", err)
	}

	for _, call := range resp.ToolCalls {
		if call.Name != tools.ToolAddChapters {
			continue
		}
		tool, err := registry.Get(call.Name)
		if err != nil {
			continue
		}
		if _, err := tool.Exec(ctx, call.Parameters); err != nil {
			s.logger.Warn("add_chapters rejected during bootstrap: %v", err)
		}
	}

	if len(collector.plans) == 0 {
		return nil, fmt.Errorf("the model proposed no chapters")
	}

	toAppend := make([]*persistence.OutlineChapter, 0, len(collector.plans))
	for _, plan := range collector.plans {
		toAppend = append(toAppend, &persistence.OutlineChapter{Title: plan.Title, Summary: plan.Summary})
	}
	appended, err := s.store.AppendOutlineChapters(book.ID, toAppend)
	if err != nil {
		return nil, fmt.Errorf("failed to persist outline: %w", err)
	}

	return appended, nil
}

func bootstrapSystemPrompt(user *persistence.User, book *persistence.Book) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You plan the structure of memoirs. Plan the chapters for %q, the memoir of %s.\n", book.Title, user.Name)
	if user.Bio != "" {
		fmt.Fprintf(&b, "\nAbout the subject: %s\n", user.Bio)
	}
	b.WriteString("\nPropose the full initial chapter plan using the add_chapters tool, in reading order.")
	return b.String()
}
