// Package tool implements the function / tool calling subsystem that lets the
// runtime invoke structured capabilities (searches, file edits, computations)
// with schema validated arguments, consistent error handling and rich metadata
// for LLM guidance. It also hosts the three control tools every agent variant
// carries: reasoning, clarification and final answer.
package tool

import (
	"context"
	"fmt"

	"github.com/sgrlabs/sgragent/core"
)

// Capability classifies a tool for resource accounting. The selector uses the
// capability tag to exclude tools whose per-session counter has reached its
// configured ceiling.
type Capability string

const (
	// CapabilityGeneral marks tools with no per-session resource counter.
	CapabilityGeneral Capability = "general"

	// CapabilitySearch marks tools counted against the session search limit.
	CapabilitySearch Capability = "search"

	// CapabilityClarification marks tools counted against the session
	// clarification limit.
	CapabilityClarification Capability = "clarification"
)

// Control tool names. The selector and the execution loop key on these.
const (
	ReasoningToolName     = "reasoning"
	ClarificationToolName = "clarification"
	FinalAnswerToolName   = "final_answer"
)

// Result is the outcome of a tool execution. Content is appended to the
// conversation as the tool result message and streamed to the caller. Data
// optionally carries the parsed, typed arguments for control tools so the
// execution loop can inspect them without re-parsing JSON.
//
// Search and Sources are session-state deltas the execution loop applies
// after a successful execution: a search tool reports the query it ran and
// the sources it found, and the loop folds them into the session's records
// and counters.
type Result struct {
	Content string
	Data    any
	Search  *core.SearchRecord
	Sources []core.Source
}

// Tool defines the interface for extending agent capabilities with structured
// actions.
//
// Tools are registered per agent variant and offered to the model via function
// calling. The selector constrains which tools are permitted on each step, so
// implementations never need to enforce ordering themselves.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be thread-safe if used concurrently
//   - Follow consistent naming conventions (snake_case recommended)
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and
	// how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for argument validation and LLM function calling.
	Parameters() map[string]any

	// Capability returns the resource accounting class of this tool.
	Capability() Capability

	// Execute runs the tool with already validated arguments against the
	// session. Execution must honor ctx cancellation; a cancelled execution
	// must not leave partial session mutations behind.
	Execute(ctx context.Context, session *core.Session, args map[string]any) (*Result, error)
}

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
