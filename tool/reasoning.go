package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/internal/util"
)

// ReasoningArgs is the structured reasoning the model must produce before any
// other action. The field set mirrors the schema offered to the model.
type ReasoningArgs struct {
	ReasoningSteps   []string `json:"reasoning_steps" description:"Explicit reasoning steps taken to assess the task" minItems:"2" maxItems:"4"`
	CurrentSituation string   `json:"current_situation" description:"Summary of the current situation and what is known so far"`
	PlanStatus       string   `json:"plan_status" description:"Status of the overall plan and what has changed since the last step"`
	EnoughData       bool     `json:"enough_data" description:"Whether enough information has been gathered to produce the final answer"`
	RemainingSteps   []string `json:"remaining_steps" description:"Concrete next steps, most immediate first" minItems:"1" maxItems:"3"`
	TaskCompleted    bool     `json:"task_completed" description:"Whether the task is complete and only the final answer remains"`
}

// ReasoningTool is the mandatory first action of every step sequence. It does
// not touch external systems; executing it records the model's structured
// plan in the conversation so subsequent actions are grounded in it.
type ReasoningTool struct{}

// NewReasoningTool creates the reasoning control tool.
func NewReasoningTool() *ReasoningTool { return &ReasoningTool{} }

func (t *ReasoningTool) Name() string { return ReasoningToolName }

func (t *ReasoningTool) Description() string {
	return "Record structured reasoning about the task before taking any action. " +
		"Must be used before every other tool."
}

func (t *ReasoningTool) Parameters() map[string]any {
	return util.CreateSchema(ReasoningArgs{})
}

func (t *ReasoningTool) Capability() Capability { return CapabilityGeneral }

// Execute parses the structured reasoning and summarizes it as the tool
// result. The typed arguments travel back to the loop in Result.Data so it
// can evaluate completion hints without re-parsing.
func (t *ReasoningTool) Execute(ctx context.Context, session *core.Session, args map[string]any) (*Result, error) {
	var parsed ReasoningArgs
	if err := decodeArgs(args, &parsed); err != nil {
		return nil, NewToolError(t.Name(), err.Error(), "VALIDATION_ERROR")
	}

	var b strings.Builder
	b.WriteString("Reasoning recorded.\n")
	fmt.Fprintf(&b, "Situation: %s\n", parsed.CurrentSituation)
	fmt.Fprintf(&b, "Plan: %s\n", parsed.PlanStatus)
	if len(parsed.RemainingSteps) > 0 {
		fmt.Fprintf(&b, "Next: %s\n", strings.Join(parsed.RemainingSteps, "; "))
	}
	fmt.Fprintf(&b, "Enough data: %t, task completed: %t", parsed.EnoughData, parsed.TaskCompleted)

	return &Result{Content: b.String(), Data: parsed}, nil
}

// decodeArgs round-trips a validated argument map into a typed struct.
func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
