package session

import (
	"context"
	"fmt"

	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/proto"
)

// runWriter issues one streaming completion for the current chapter and
// republishes every fragment to all viewers while accumulating and
// progressively persisting the draft. The stream has no timeout; it is
// cancelled only by an explicit user request, through the session's cancel
// hook.
func (s *Session) runWriter(ctx context.Context) {
	s.stateMu.Lock()
	s.draft = ""
	ch := s.chapterAtLocked(s.chapterIndex)
	index := s.chapterIndex
	visible := s.visibleTranscriptLocked()
	s.stateMu.Unlock()

	streamCtx, cancel := context.WithCancel(ctx)
	s.setCancelStream(cancel)
	defer func() {
		s.setCancelStream(nil)
		cancel()
	}()

	title := fmt.Sprintf("Chapter %d", index)
	summary := ""
	if ch != nil {
		title = fmt.Sprintf("Chapter %d: %s", ch.Index, ch.Title)
		summary = ch.Summary
	}

	system := fmt.Sprintf(`You are ghostwriting one chapter of a memoir, written in the first person in the subject's voice.

Write %q. %s

Begin with the chapter heading %q on its own line, then flowing narrative prose. Ground every detail in the interview notes and background below; invent nothing. Do not address the reader or mention the interview.`,
		title, summary, title)

	req := llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(system),
			llm.NewUserMessage(s.assembleBackground(visible)),
		},
		MaxTokens:   s.cfg.LLM.MaxTokens,
		Temperature: llm.TemperatureDrafting,
	}

	stream, err := s.writerClient.Stream(streamCtx, req)
	if err != nil {
		s.logger.Error("failed to start chapter stream: %v", err)
		s.broadcast(proto.ErrorMsg("chapter generation failed to start; retry when ready"))
		return
	}

	reset := true
	for chunk := range stream {
		if chunk.Error != nil {
			// Cancellation lands here too. Whatever already streamed stays
			// visible and persisted.
			s.logger.Warn("chapter stream ended early: %v", chunk.Error)
			break
		}
		if chunk.Content != "" {
			s.stateMu.Lock()
			s.draft += chunk.Content
			s.stateMu.Unlock()

			s.persist()
			s.broadcast(proto.DraftChunkMsg(chunk.Content, reset))
			reset = false
		}
		if chunk.Done {
			break
		}
	}

	s.persist()
	s.broadcast(proto.NewMsg(proto.MsgTypeDraftComplete))
}
