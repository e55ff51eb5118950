package tools

import (
	"context"
	"fmt"
)

// ChapterPlan is one planned chapter produced by outline expansion.
type ChapterPlan struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// OutlineAppender is the subset of the session the add_chapters tool needs.
// Chapters are always appended after the existing outline, never inserted.
type OutlineAppender interface {
	AppendChapters(chapters []ChapterPlan) error
}

// AddChaptersTool extends the book outline with new planned chapters.
type AddChaptersTool struct {
	outline OutlineAppender
}

// NewAddChaptersTool creates an add_chapters tool bound to an outline.
func NewAddChaptersTool(outline OutlineAppender) *AddChaptersTool {
	return &AddChaptersTool{outline: outline}
}

func (a *AddChaptersTool) Name() string {
	return ToolAddChapters
}

// Definition returns the tool's definition in Claude API format.
func (a *AddChaptersTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolAddChapters,
		Description: "Append new chapters to the book outline. Chapters are added after the existing outline in the order given.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"chapters": {
					Type:        "array",
					Description: "Chapters to append, in reading order",
					Items: &Property{
						Type: "object",
						Properties: map[string]Property{
							"title": {
								Type:        "string",
								Description: "Chapter title",
							},
							"summary": {
								Type:        "string",
								Description: "One-paragraph summary of what the chapter covers",
							},
						},
						Required: []string{"title", "summary"},
					},
				},
			},
			Required: []string{"chapters"},
		},
	}
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (a *AddChaptersTool) PromptDocumentation() string {
	return `- **add_chapters** - Append chapters to the book outline
  - Parameters: chapters (array of {title, summary})
  - New chapters always follow the existing outline; never reorder`
}

// Exec executes the add_chapters operation.
func (a *AddChaptersTool) Exec(_ context.Context, args map[string]any) (any, error) {
	raw, exists := args["chapters"]
	if !exists {
		return nil, fmt.Errorf("missing required argument: chapters")
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("chapters argument must be an array")
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("chapters argument cannot be empty")
	}

	chapters := make([]ChapterPlan, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("chapter %d is not an object", i)
		}
		title, ok := stringArg(entry, "title")
		if !ok {
			return nil, fmt.Errorf("chapter %d missing title", i)
		}
		summary, ok := stringArg(entry, "summary")
		if !ok {
			return nil, fmt.Errorf("chapter %d missing summary", i)
		}
		chapters = append(chapters, ChapterPlan{Title: title, Summary: summary})
	}

	if err := a.outline.AppendChapters(chapters); err != nil {
		return nil, err
	}

	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Added %d chapters to the outline", len(chapters)),
	}, nil
}
