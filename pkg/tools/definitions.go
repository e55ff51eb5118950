// Package tools provides the tool definitions and registry the LLM agents
// expose during interview and outline expansion.
package tools

import (
	"context"
)

// Tool is the interface every agent-callable tool implements.
type Tool interface {
	// Name returns the tool's identifier
	Name() string
	// Definition returns the tool's definition in Claude API format
	Definition() ToolDefinition
	// PromptDocumentation returns markdown documentation for LLM prompts
	PromptDocumentation() string
	// Exec executes the tool with the given arguments
	Exec(ctx context.Context, args map[string]any) (any, error)
}

// ToolDefinition describes a tool in Claude API format. The other providers
// convert from this shape.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// InputSchema is a JSON Schema object describing tool parameters.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Property describes a single parameter in an InputSchema.
type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`
}

// Tool name constants.
const (
	ToolCreateNote   = "create_note"
	ToolAppendNote   = "append_note"
	ToolDeleteNote   = "delete_note"
	ToolEndInterview = "end_interview"
	ToolAddChapters  = "add_chapters"
)
