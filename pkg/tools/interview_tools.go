package tools

import (
	"context"
)

// EndInterviewTool lets the interview agent signal that enough material has
// been gathered to begin writing. It mirrors the sentinel pattern used for
// phase transitions: Exec returns a marker the session loop inspects.
type EndInterviewTool struct{}

// NewEndInterviewTool creates an end_interview tool instance.
func NewEndInterviewTool() *EndInterviewTool {
	return &EndInterviewTool{}
}

func (e *EndInterviewTool) Name() string {
	return ToolEndInterview
}

// Definition returns the tool's definition in Claude API format.
func (e *EndInterviewTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolEndInterview,
		Description: "Signal that the interview has gathered enough material and the writing phase should begin. Only call when the subject agrees the story is complete.",
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]Property{},
			Required:   []string{},
		},
	}
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (e *EndInterviewTool) PromptDocumentation() string {
	return `- **end_interview** - Move from interviewing to writing
  - No parameters required
  - Call only when the subject confirms there is nothing more to add`
}

// Exec executes the end_interview operation.
func (e *EndInterviewTool) Exec(_ context.Context, _ map[string]any) (any, error) {
	return map[string]any{
		"success":       true,
		"message":       "Interview complete, moving to writing phase",
		"end_interview": true, // Session loop inspects this marker
	}, nil
}

// EndInterviewRequested reports whether a tool result carries the
// end_interview marker.
func EndInterviewRequested(result any) bool {
	m, ok := result.(map[string]any)
	if !ok {
		return false
	}
	flag, ok := m["end_interview"].(bool)
	return ok && flag
}
