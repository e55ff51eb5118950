package session

import (
	"context"
	"encoding/json"
	"fmt"

	"ghostwriter/pkg/contextmgr"
	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/proto"
	"ghostwriter/pkg/tools"
)

// runInterviewTurn drives one bounded tool-calling loop against the LLM for
// the user turn that was just appended. The loop ends when the model answers
// in plain text, requests the end of the interview, errors out, or hits the
// iteration cap.
func (s *Session) runInterviewTurn(ctx context.Context) {
	registry := s.interviewRegistry()

	maxIterations := s.cfg.Interview.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 5
	}

	conversation := s.conversationMessages()

	for iteration := 0; iteration < maxIterations; iteration++ {
		req := llm.CompletionRequest{
			Messages:    append([]llm.CompletionMessage{llm.NewSystemMessage(s.interviewSystemPrompt(registry))}, conversation...),
			Tools:       registry.Definitions(),
			MaxTokens:   s.cfg.LLM.MaxTokens,
			Temperature: llm.TemperatureInterview,
		}

		resp, err := s.interviewClient.Complete(ctx, req)
		if err != nil {
			// The turn simply ends without a visible reply; the user can
			// resend.
			s.logger.Warn("interview completion failed: %v", err)
			return
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Content != "" && s.appendTurn(roleAssistant, resp.Content) {
				s.persist()
				s.broadcast(proto.ResponseMsg(resp.Content))
			}
			return
		}

		notesChanged := false
		endRequested := false
		for _, call := range resp.ToolCalls {
			result, invocation := s.execToolCall(ctx, registry, call)
			conversation = append(conversation,
				llm.NewAssistantMessage(invocation),
				llm.NewUserMessage(result),
			)
			switch call.Name {
			case tools.ToolCreateNote, tools.ToolAppendNote, tools.ToolDeleteNote:
				notesChanged = true
			case tools.ToolEndInterview:
				endRequested = true
			}
		}

		if notesChanged {
			s.persist()
			s.broadcast(proto.NotesSyncMsg(s.noteViews()))
		}

		if endRequested {
			s.stateMu.Lock()
			s.phase = proto.ModeWriting
			s.stateMu.Unlock()
			s.persist()
			s.broadcast(proto.ModeSyncMsg(proto.ModeWriting))
			s.runWriter(ctx)
			return
		}
	}
}

// interviewRegistry builds the per-turn tool set bound to the current notes
// store.
func (s *Session) interviewRegistry() *tools.Registry {
	store := s.notesStore()
	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		tools.NewCreateNoteTool(store),
		tools.NewAppendNoteTool(store),
		tools.NewDeleteNoteTool(store),
		tools.NewEndInterviewTool(),
	} {
		if err := registry.Register(tool); err != nil {
			s.logger.Error("failed to register tool %s: %v", tool.Name(), err)
		}
	}
	return registry
}

// execToolCall applies one tool call, records the invocation/result pair in
// the transcript, and returns the result text fed back to the model.
// Semantic failures (unknown note id, bad arguments) are surfaced to the
// model as structured results so it can self-correct; they are never fatal.
func (s *Session) execToolCall(ctx context.Context, registry *tools.Registry, call llm.ToolCall) (result, invocation string) {
	argsJSON, _ := json.Marshal(call.Parameters)
	invocation = fmt.Sprintf("%s(%s)", call.Name, argsJSON)
	s.appendTurn(roleTool, invocation)

	tool, err := registry.Get(call.Name)
	if err != nil {
		result = fmt.Sprintf(`{"success": false, "error": %q}`, err.Error())
	} else if out, execErr := tool.Exec(ctx, call.Parameters); execErr != nil {
		result = fmt.Sprintf(`{"success": false, "error": %q}`, execErr.Error())
	} else {
		data, _ := json.Marshal(out)
		result = string(data)
	}

	s.appendTurn(roleTool, fmt.Sprintf("%s -> %s", call.Name, result))
	return fmt.Sprintf("Tool result for %s: %s", call.Name, result), invocation
}

// interviewSystemPrompt builds the system instruction: chapter plan, tool
// documentation, then the assembled background context.
func (s *Session) interviewSystemPrompt(registry *tools.Registry) string {
	s.stateMu.RLock()
	ch := s.chapterAtLocked(s.chapterIndex)
	index := s.chapterIndex
	s.stateMu.RUnlock()

	plan := fmt.Sprintf("chapter %d", index)
	if ch != nil {
		plan = fmt.Sprintf("chapter %d, %q: %s", ch.Index, ch.Title, ch.Summary)
	}

	return fmt.Sprintf(`You are a ghostwriter interviewing the subject of a memoir. You are gathering material for %s.

Ask one warm, specific question at a time. Capture every concrete fact the subject shares as a note. When the notes hold enough material to draft this chapter, call end_interview instead of asking another question.

Available tools:
%s

%s`, plan, registry.PromptDocumentation(), s.assembleBackground(nil))
}

// conversationMessages maps the visible transcript onto completion messages.
// Tool turns are internal and are replayed to the model only within the
// current loop, not across turns.
func (s *Session) conversationMessages() []llm.CompletionMessage {
	s.stateMu.RLock()
	visible := s.visibleTranscriptLocked()
	s.stateMu.RUnlock()

	messages := make([]llm.CompletionMessage, 0, len(visible)+1)
	for _, turn := range visible {
		switch turn.Role {
		case roleUser:
			messages = append(messages, llm.NewUserMessage(turn.Content))
		case roleAssistant:
			messages = append(messages, llm.NewAssistantMessage(turn.Content))
		}
	}

	// Each chapter opens with a synthesized assistant greeting, but Anthropic
	// requires the first non-system message to be user role. Seed a neutral
	// user turn so the replay always starts user-first.
	if len(messages) > 0 && messages[0].Role == llm.RoleAssistant {
		messages = append([]llm.CompletionMessage{llm.NewUserMessage("Let's begin.")}, messages...)
	}
	return messages
}

// assembleBackground reads the user's identity, timeline and documents and
// flattens them together with the current notes. A non-nil transcript is
// included for single-prompt callers like the writer.
func (s *Session) assembleBackground(transcript []proto.Turn) string {
	in := contextmgr.Input{
		Notes:      s.notesStore().Snapshot(),
		Transcript: transcript,
	}

	if user, err := s.store.GetUserByID(s.userID); err == nil {
		in.User = user
	} else {
		s.logger.Warn("failed to read user profile: %v", err)
	}
	if timeline, err := s.store.GetTimelineByUser(s.userID); err == nil {
		in.Timeline = timeline
	} else {
		s.logger.Warn("failed to read timeline: %v", err)
	}
	if docs, err := s.store.GetDocumentsByUser(s.userID); err == nil {
		in.Documents = docs
	} else {
		s.logger.Warn("failed to read documents: %v", err)
	}

	return s.assembler.Assemble(in)
}
