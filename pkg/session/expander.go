package session

import (
	"context"
	"fmt"
	"strings"

	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/notes"
	"ghostwriter/pkg/persistence"
	"ghostwriter/pkg/proto"
	"ghostwriter/pkg/tools"
)

// chapterCollector captures the chapters the model proposes through the
// add_chapters tool.
type chapterCollector struct {
	plans []tools.ChapterPlan
}

func (c *chapterCollector) AppendChapters(plans []tools.ChapterPlan) error {
	c.plans = append(c.plans, plans...)
	return nil
}

// handleExpandOutline appends new planned chapters to the outline via one
// forced tool call. On success the ephemeral state is reset and the session
// greets the first newly added chapter; on failure nothing is mutated.
func (s *Session) handleExpandOutline(ctx context.Context, instruction string) {
	if s.Phase() != proto.ModeInterview {
		s.broadcast(proto.ErrorMsg("finish or cancel the current chapter before expanding the outline"))
		return
	}
	if !s.isProcessing.CompareAndSwap(false, true) {
		return
	}
	defer s.isProcessing.Store(false)

	collector := &chapterCollector{}
	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewAddChaptersTool(collector)); err != nil {
		s.logger.Error("failed to register add_chapters: %v", err)
		return
	}

	if instruction == "" {
		instruction = "Continue the story naturally from where the planned chapters leave off."
	}

	req := llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(s.expanderSystemPrompt()),
			llm.NewUserMessage(instruction),
		},
		Tools:       registry.Definitions(),
		ToolChoice:  tools.ToolAddChapters,
		MaxTokens:   s.cfg.LLM.MaxTokens,
		Temperature: llm.TemperatureDrafting,
	}

	resp, err := s.expanderClient.Complete(ctx, req)
	if err != nil {
		s.logger.Warn("outline expansion failed: %v", err)
		s.broadcast(proto.ErrorMsg("outline expansion failed; try again"))
		return
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
			s.logger.Warn("add_chapters rejected: %v", err)
		}
	}

	if len(collector.plans) == 0 {
		s.broadcast(proto.ErrorMsg("the model did not propose any new chapters"))
		return
	}

	toAppend := make([]*persistence.OutlineChapter, 0, len(collector.plans))
	for _, plan := range collector.plans {
		toAppend = append(toAppend, &persistence.OutlineChapter{Title: plan.Title, Summary: plan.Summary})
	}
	appended, err := s.store.AppendOutlineChapters(s.bookID, toAppend)
	if err != nil {
		s.logger.Error("failed to persist expanded outline: %v", err)
		s.broadcast(proto.ErrorMsg("outline expansion could not be saved"))
		return
	}

	outline, err := s.store.GetOutline(s.bookID)
	if err != nil {
		s.logger.Warn("failed to re-read outline after expansion: %v", err)
	}

	// The expansion moves the session to genuinely new territory: clear the
	// ephemeral state and point at the first newly planned chapter.
	s.stateMu.Lock()
	if outline != nil {
		s.outline = outline
	}
	s.transcript = nil
	s.draft = ""
	s.phase = proto.ModeInterview
	if first := appended[0].Index; s.chapterIndex < first {
		s.chapterIndex = first
	}
	s.notes = notes.NewStore()
	views := s.outlineViewsLocked()
	index := s.chapterIndex
	s.stateMu.Unlock()

	s.persist()
	s.broadcast(
		proto.OutlineMsg(views),
		proto.ModeSyncMsg(proto.ModeInterview),
		proto.ChapterIndexSyncMsg(index),
		proto.NotesSyncMsg(s.noteViews()),
		s.historyMsg(),
	)
	s.greet()
}

func (s *Session) expanderSystemPrompt() string {
	s.stateMu.RLock()
	var b strings.Builder
	for _, ch := range s.outline {
		fmt.Fprintf(&b, "%d. %s — %s\n", ch.Index, ch.Title, ch.Summary)
	}
	s.stateMu.RUnlock()

	existing := b.String()
	if existing == "" {
		existing = "(no chapters planned yet)\n"
	}

	return fmt.Sprintf(`You plan the structure of a memoir. The chapters planned so far:

%s
Propose the next chapters using the add_chapters tool. Never revise or reorder existing chapters; only add new ones that continue the story.`, existing)
}
