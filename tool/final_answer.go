package tool

import (
	"context"

	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/internal/util"
)

// FinalAnswerArgs is the terminal action of a session. The answer text is
// what the caller ultimately receives.
type FinalAnswerArgs struct {
	Reasoning      string   `json:"reasoning" description:"Brief reasoning behind the final answer"`
	CompletedSteps []string `json:"completed_steps" description:"Steps completed while working on the task" minItems:"1"`
	Answer         string   `json:"answer" description:"Complete final answer for the user"`
}

// FinalAnswerTool ends the session. It is permitted on any step after at
// least one reasoning step, so a session can always terminate.
type FinalAnswerTool struct{}

// NewFinalAnswerTool creates the final answer control tool.
func NewFinalAnswerTool() *FinalAnswerTool { return &FinalAnswerTool{} }

func (t *FinalAnswerTool) Name() string { return FinalAnswerToolName }

func (t *FinalAnswerTool) Description() string {
	return "Provide the complete final answer and finish the task."
}

func (t *FinalAnswerTool) Parameters() map[string]any {
	return util.CreateSchema(FinalAnswerArgs{})
}

func (t *FinalAnswerTool) Capability() Capability { return CapabilityGeneral }

func (t *FinalAnswerTool) Execute(ctx context.Context, session *core.Session, args map[string]any) (*Result, error) {
	var parsed FinalAnswerArgs
	if err := decodeArgs(args, &parsed); err != nil {
		return nil, NewToolError(t.Name(), err.Error(), "VALIDATION_ERROR")
	}
	if parsed.Answer == "" {
		return nil, NewToolError(t.Name(), "empty answer", "VALIDATION_ERROR")
	}

	return &Result{Content: parsed.Answer, Data: parsed}, nil
}
