package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/internal/util"
)

// ClarificationArgs asks the user to resolve ambiguity before the agent
// continues. The model is expected to name the unclear terms and pose a small
// set of concrete questions.
type ClarificationArgs struct {
	Reasoning    string   `json:"reasoning" description:"Why the task cannot proceed without clarification"`
	UnclearTerms []string `json:"unclear_terms" description:"Terms or requirements that are ambiguous" minItems:"1"`
	Questions    []string `json:"questions" description:"Specific questions for the user" minItems:"1" maxItems:"5"`
}

// ClarificationTool suspends the session until an external actor answers. The
// tool itself only records the questions; the execution loop observes the
// tool name and blocks on the session's clarification gate.
type ClarificationTool struct{}

// NewClarificationTool creates the clarification control tool.
func NewClarificationTool() *ClarificationTool { return &ClarificationTool{} }

func (t *ClarificationTool) Name() string { return ClarificationToolName }

func (t *ClarificationTool) Description() string {
	return "Ask the user clarifying questions when the task is ambiguous. " +
		"The session pauses until the user answers."
}

func (t *ClarificationTool) Parameters() map[string]any {
	return util.CreateSchema(ClarificationArgs{})
}

func (t *ClarificationTool) Capability() Capability { return CapabilityClarification }

func (t *ClarificationTool) Execute(ctx context.Context, session *core.Session, args map[string]any) (*Result, error) {
	var parsed ClarificationArgs
	if err := decodeArgs(args, &parsed); err != nil {
		return nil, NewToolError(t.Name(), err.Error(), "VALIDATION_ERROR")
	}
	if len(parsed.Questions) == 0 {
		return nil, NewToolError(t.Name(), "no questions provided", "VALIDATION_ERROR")
	}

	var b strings.Builder
	b.WriteString("Clarification requested:\n")
	for i, q := range parsed.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}

	return &Result{Content: b.String(), Data: parsed}, nil
}
