package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/sgrlabs/sgragent/core"
)

// SessionStatusTool exposes the session's own progress to the model. It lets
// the agent consult what it has already gathered (sources, searches,
// iteration budget) instead of repeating work.
type SessionStatusTool struct {
	name        string
	description string
}

// NewSessionStatusTool creates a session status tool.
//
// Supported operations:
//   - get_progress: iteration and resource counter summary
//   - list_sources: numbered citation list gathered so far
//   - list_searches: queries already executed
func NewSessionStatusTool() *SessionStatusTool {
	return &SessionStatusTool{
		name: "session_status",
		description: "Inspects the current session's progress. " +
			"Supports operations: get_progress, list_sources, list_searches.",
	}
}

// Name returns the tool identifier.
func (t *SessionStatusTool) Name() string {
	return t.name
}

// Description returns the tool description.
func (t *SessionStatusTool) Description() string {
	return t.description
}

// Parameters returns the JSON schema for tool parameters.
func (t *SessionStatusTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []any{"get_progress", "list_sources", "list_searches"},
				"description": "The status operation to perform",
			},
		},
		"required": []string{"operation"},
	}
}

// Capability returns the resource accounting class of this tool.
func (t *SessionStatusTool) Capability() Capability {
	return CapabilityGeneral
}

// Execute dispatches the requested status operation against the session.
func (t *SessionStatusTool) Execute(ctx context.Context, session *core.Session, args map[string]any) (*Result, error) {
	operation, _ := args["operation"].(string)

	switch operation {
	case "get_progress":
		return t.getProgress(session), nil
	case "list_sources":
		return t.listSources(session), nil
	case "list_searches":
		return t.listSearches(session), nil
	default:
		return nil, NewToolError(t.name, fmt.Sprintf("unknown operation: %s", operation), "VALIDATION_ERROR")
	}
}

func (t *SessionStatusTool) getProgress(session *core.Session) *Result {
	snapshot := session.Clone()
	content := fmt.Sprintf(
		"iteration=%d searches=%d clarifications=%d sources=%d state=%s",
		snapshot.Iteration, snapshot.SearchCount, snapshot.ClarificationCount,
		len(snapshot.Sources), snapshot.State,
	)
	return &Result{Content: content}
}

func (t *SessionStatusTool) listSources(session *core.Session) *Result {
	snapshot := session.Clone()
	if len(snapshot.Sources) == 0 {
		return &Result{Content: "No sources gathered yet."}
	}

	var b strings.Builder
	for i, src := range snapshot.Sources {
		fmt.Fprintf(&b, "[%d] %s (%s)\n", i+1, src.Title, src.URI)
	}
	return &Result{Content: b.String(), Data: snapshot.Sources}
}

func (t *SessionStatusTool) listSearches(session *core.Session) *Result {
	snapshot := session.Clone()
	if len(snapshot.Searches) == 0 {
		return &Result{Content: "No searches executed yet."}
	}

	var b strings.Builder
	for i, rec := range snapshot.Searches {
		fmt.Fprintf(&b, "%d. %q (%d results)\n", i+1, rec.Query, len(rec.ResultRefs))
	}
	return &Result{Content: b.String(), Data: snapshot.Searches}
}
