// Package contextmgr assembles the background context fed to every
// completion call: who the subject is, where they lived, what material they
// uploaded, the current notes, and the visible transcript.
package contextmgr

import (
	"fmt"
	"strings"

	"ghostwriter/pkg/config"
	"ghostwriter/pkg/logx"
	"ghostwriter/pkg/notes"
	"ghostwriter/pkg/persistence"
	"ghostwriter/pkg/proto"
	"ghostwriter/pkg/utils"
)

// Input carries everything the assembler reads. Assembly is a pure function
// of this struct; the assembler itself only adds token accounting.
type Input struct {
	User       *persistence.User
	Timeline   []*persistence.TimelineEntry
	Documents  []*persistence.Document
	Notes      []notes.Note
	Transcript []proto.Turn
}

// Assembler builds context strings and tracks their token cost against the
// configured model's context window.
type Assembler struct {
	logger    *logx.Logger
	counter   *utils.TokenCounter
	model     string
	maxTokens int
}

// NewAssembler creates an assembler for the given model. The model's context
// limit is looked up in the known-model table; unknown models get no limit
// check.
func NewAssembler(model string) *Assembler {
	a := &Assembler{
		logger: logx.NewLogger("contextmgr"),
		model:  model,
	}
	if info, ok := config.KnownModels[model]; ok {
		a.maxTokens = info.MaxContextTokens
	}
	if counter, err := utils.NewTokenCounter(model); err == nil {
		a.counter = counter
	}
	return a
}

// Assemble flattens the input into one context string and logs a warning if
// it exceeds the model's context window. Ordering matters for model quality:
// identity facts first, then documents, then notes, then transcript. Nothing
// is truncated; oversize context is the model's problem to reject, not ours
// to silently corrupt.
func (a *Assembler) Assemble(in Input) string {
	text := Build(in)

	tokens := a.CountTokens(text)
	if a.maxTokens > 0 && tokens > a.maxTokens {
		a.logger.Warn("assembled context is %d tokens, over the %d-token window for %s",
			tokens, a.maxTokens, a.model)
	}
	return text
}

// CountTokens returns the token count of the given text, falling back to a
// character-based estimate when no tokenizer is available.
func (a *Assembler) CountTokens(text string) int {
	if a.counter != nil {
		return a.counter.CountTokens(text)
	}
	return len(text) / 4
}

// Build is the pure assembly step, exposed separately so callers that do not
// care about token accounting can use it directly.
func Build(in Input) string {
	var b strings.Builder

	writeIdentity(&b, in.User, in.Timeline)
	writeDocuments(&b, in.Documents)
	writeNotes(&b, in.Notes)
	writeTranscript(&b, in.Transcript)

	return strings.TrimRight(b.String(), "\n")
}

func writeIdentity(b *strings.Builder, user *persistence.User, timeline []*persistence.TimelineEntry) {
	b.WriteString("## About the subject\n\n")
	if user != nil {
		fmt.Fprintf(b, "Name: %s\n", user.Name)
		if user.Bio != "" {
			fmt.Fprintf(b, "Background: %s\n", user.Bio)
		}
	}

	if len(timeline) == 0 {
		b.WriteString("\n")
		return
	}

	// Timeline arrives in chronological order; the earliest entry is the
	// birthplace, the rest form the trail of places lived.
	birth := timeline[0]
	fmt.Fprintf(b, "Born in %s (%s).\n", birth.Location, birth.DateStart.Format("2006"))
	if len(timeline) > 1 {
		b.WriteString("Places lived, in order:\n")
		for _, entry := range timeline[1:] {
			fmt.Fprintf(b, "- %s, from %s", entry.Location, entry.DateStart.Format("Jan 2006"))
			if entry.DateEnd != nil {
				fmt.Fprintf(b, " to %s", entry.DateEnd.Format("Jan 2006"))
			}
			if entry.Description != "" {
				fmt.Fprintf(b, " (%s)", entry.Description)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
}

func writeDocuments(b *strings.Builder, docs []*persistence.Document) {
	if len(docs) == 0 {
		return
	}
	b.WriteString("## Background material\n\n")
	for _, doc := range docs {
		fmt.Fprintf(b, "### %s\n%s\n\n", doc.Title, doc.Content)
	}
}

func writeNotes(b *strings.Builder, items []notes.Note) {
	b.WriteString("## Interview notes\n\n")
	if len(items) == 0 {
		b.WriteString("(no notes yet)\n\n")
		return
	}
	for _, note := range items {
		fmt.Fprintf(b, "- [%s] %s\n", note.ID, note.Text)
	}
	b.WriteString("\n")
}

func writeTranscript(b *strings.Builder, transcript []proto.Turn) {
	if len(transcript) == 0 {
		return
	}
	b.WriteString("## Conversation so far\n\n")
	for _, turn := range transcript {
		fmt.Fprintf(b, "%s: %s\n", turn.Role, turn.Content)
	}
}
