package tools

import (
	"context"
	"fmt"
)

// NoteStore is the subset of the session notes store the note tools need.
type NoteStore interface {
	Create(id, text string) error
	Append(id, text string) error
	Delete(id string) error
}

// CreateNoteTool records a new fact captured during the interview.
type CreateNoteTool struct {
	store NoteStore
}

// NewCreateNoteTool creates a create_note tool bound to a notes store.
func NewCreateNoteTool(store NoteStore) *CreateNoteTool {
	return &CreateNoteTool{store: store}
}

func (c *CreateNoteTool) Name() string {
	return ToolCreateNote
}

// Definition returns the tool's definition in Claude API format.
func (c *CreateNoteTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolCreateNote,
		Description: "Record a new fact learned from the subject. Use a short snake_case id that names the topic.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"id": {
					Type:        "string",
					Description: "Short snake_case identifier for the fact, e.g. childhood_home",
				},
				"text": {
					Type:        "string",
					Description: "The fact, written as one or two complete sentences",
				},
			},
			Required: []string{"id", "text"},
		},
	}
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (c *CreateNoteTool) PromptDocumentation() string {
	return `- **create_note** - Record a new fact learned from the subject
  - Parameters: id (snake_case topic identifier), text (the fact)
  - Use once per distinct fact; use append_note to extend an existing one`
}

// Exec executes the create_note operation.
func (c *CreateNoteTool) Exec(_ context.Context, args map[string]any) (any, error) {
	id, text, err := noteArgs(args)
	if err != nil {
		return nil, err
	}
	if err := c.store.Create(id, text); err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Note %s created", id),
	}, nil
}

// AppendNoteTool extends an existing fact with additional detail.
type AppendNoteTool struct {
	store NoteStore
}

// NewAppendNoteTool creates an append_note tool bound to a notes store.
func NewAppendNoteTool(store NoteStore) *AppendNoteTool {
	return &AppendNoteTool{store: store}
}

func (a *AppendNoteTool) Name() string {
	return ToolAppendNote
}

// Definition returns the tool's definition in Claude API format.
func (a *AppendNoteTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolAppendNote,
		Description: "Add detail to an existing note. The text is appended to the note's current content.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"id": {
					Type:        "string",
					Description: "Identifier of the note to extend",
				},
				"text": {
					Type:        "string",
					Description: "Additional detail to append",
				},
			},
			Required: []string{"id", "text"},
		},
	}
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (a *AppendNoteTool) PromptDocumentation() string {
	return `- **append_note** - Add detail to an existing note
  - Parameters: id (existing note identifier), text (detail to append)
  - Fails if the note does not exist; use create_note first`
}

// Exec executes the append_note operation.
func (a *AppendNoteTool) Exec(_ context.Context, args map[string]any) (any, error) {
	id, text, err := noteArgs(args)
	if err != nil {
		return nil, err
	}
	if err := a.store.Append(id, text); err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Note %s extended", id),
	}, nil
}

// DeleteNoteTool removes a note that turned out to be wrong or redundant.
type DeleteNoteTool struct {
	store NoteStore
}

// NewDeleteNoteTool creates a delete_note tool bound to a notes store.
func NewDeleteNoteTool(store NoteStore) *DeleteNoteTool {
	return &DeleteNoteTool{store: store}
}

func (d *DeleteNoteTool) Name() string {
	return ToolDeleteNote
}

// Definition returns the tool's definition in Claude API format.
func (d *DeleteNoteTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolDeleteNote,
		Description: "Remove a note that is incorrect or no longer relevant. Deletion must be explicit; never assume omission deletes a note.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"id": {
					Type:        "string",
					Description: "Identifier of the note to remove",
				},
			},
			Required: []string{"id"},
		},
	}
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (d *DeleteNoteTool) PromptDocumentation() string {
	return `- **delete_note** - Remove an incorrect or redundant note
  - Parameters: id (existing note identifier)
  - Only use when the subject corrects or retracts a fact`
}

// Exec executes the delete_note operation.
func (d *DeleteNoteTool) Exec(_ context.Context, args map[string]any) (any, error) {
	id, ok := stringArg(args, "id")
	if !ok {
		return nil, fmt.Errorf("missing required argument: id")
	}
	if err := d.store.Delete(id); err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Note %s deleted", id),
	}, nil
}

func noteArgs(args map[string]any) (id, text string, err error) {
	id, ok := stringArg(args, "id")
	if !ok {
		return "", "", fmt.Errorf("missing required argument: id")
	}
	text, ok = stringArg(args, "text")
	if !ok {
		return "", "", fmt.Errorf("missing required argument: text")
	}
	return id, text, nil
}

func stringArg(args map[string]any, key string) (string, bool) {
	val, exists := args[key]
	if !exists {
		return "", false
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
