package tool

import (
	"context"
	"fmt"

	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds a JSON-Schema-like parameter specification (parameters)
//   - Invokes the wrapped function with the session and already validated args
//   - Normalizes error handling so callers receive *ToolError with consistent
//     codes: EXECUTION_ERROR for plain errors, custom codes preserved when the
//     function returns *ToolError directly
//
// Argument validation happens in Registry.ParseArguments before Execute is
// reached, so the wrapped function can rely on the schema having been
// enforced.
//
// Concurrency:
//
//	A FunctionTool has no internal mutable state after construction and is
//	safe for concurrent use by multiple goroutines.
type FunctionTool struct {
	// Tool identifier (snake_case recommended)
	name string
	// Human-readable description shown to models
	description string
	// JSON schema describing accepted arguments
	parameters map[string]any
	// Resource accounting class
	capability Capability
	// User supplied implementation
	fn func(ctx context.Context, session *core.Session, args map[string]any) (*Result, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	searchTool := NewFunctionTool(
//	  "web_search",
//	  "Search the web for information",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "query": map[string]any{"type": "string"},
//	    },
//	    "required": []string{"query"},
//	  },
//	  CapabilitySearch,
//	  func(ctx context.Context, s *core.Session, args map[string]any) (*Result, error) {
//	    return &Result{Content: runSearch(args["query"].(string))}, nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	capability Capability,
	fn func(ctx context.Context, session *core.Session, args map[string]any) (*Result, error),
) *FunctionTool {
	if capability == "" {
		capability = CapabilityGeneral
	}
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		capability:  capability,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection. It is a convenience for simple argument containers and produces
// a schema equivalent to util.CreateSchema(structType).
//
// Example:
//
//	type SearchArgs struct {
//	  Query string `json:"query" description:"Search query"`
//	}
//
//	searchTool := NewFunctionToolFromStruct(
//	  "web_search", "Search the web for information", SearchArgs{}, CapabilitySearch, fn,
//	)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	capability Capability,
	fn func(ctx context.Context, session *core.Session, args map[string]any) (*Result, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), capability, fn)
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Capability returns the resource accounting class of this tool.
func (t *FunctionTool) Capability() Capability { return t.capability }

// Execute invokes the underlying function. Execution failures are wrapped (or
// passed through) as *ToolError for uniform downstream handling.
//
// Error Semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	other error                     -> *ToolError{Code: "EXECUTION_ERROR"}
func (t *FunctionTool) Execute(ctx context.Context, session *core.Session, args map[string]any) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := t.fn(ctx, session, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			return nil, toolErr
		}
		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    "EXECUTION_ERROR",
		}
	}
	if result == nil {
		result = &Result{Content: fmt.Sprintf("%s completed", t.name)}
	}

	return result, nil
}
