package agent

import (
	"fmt"

	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/model"
	"github.com/sgrlabs/sgragent/tool"
)

// StepChoice is the selector's output for one step: either a single forced
// tool or a required choice over a permitted set. It carries both the tools
// offered to the model and the tool_choice constraint for the request.
type StepChoice struct {
	choice model.ToolChoice
	tools  []tool.Tool
}

// Forced reports whether this choice obliges the model to call one
// specific tool.
func (c StepChoice) Forced() bool { return c.choice.Mode == model.ToolChoiceForced }

// ToolChoice returns the per-request tool selection constraint.
func (c StepChoice) ToolChoice() model.ToolChoice { return c.choice }

// Tools returns the tools offered to the model for this step.
func (c StepChoice) Tools() []tool.Tool { return c.tools }

// Contains reports whether the named tool is permitted by this choice.
func (c StepChoice) Contains(name string) bool {
	for _, t := range c.tools {
		if t.Name() == name {
			return true
		}
	}
	return false
}

// Definitions converts the permitted set into gateway tool definitions.
func (c StepChoice) Definitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, len(c.tools))
	for i, t := range c.tools {
		defs[i] = model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		}
	}
	return defs
}

// Selector computes the permitted tool choice for each step. Selection is a
// hard ordering rule, not a preference: a step whose predecessor was not a
// reasoning step gets the reasoning tool forced, everything else gets the
// variant's permitted set filtered by resource counters.
type Selector struct {
	cfg      Config
	registry *tool.Registry
}

// NewSelector builds a selector over the registry for one session's config.
func NewSelector(cfg Config, registry *tool.Registry) *Selector {
	return &Selector{cfg: cfg, registry: registry}
}

// Choose computes the step choice. lastStepReasoning reports whether the
// session's most recent completed step executed the reasoning tool; a fresh
// session passes false, which forces reasoning at iteration 0.
func (s *Selector) Choose(session *core.Session, lastStepReasoning bool) (StepChoice, error) {
	if !lastStepReasoning {
		return s.reasoningChoice()
	}
	return s.actionChoice(session)
}

func (s *Selector) reasoningChoice() (StepChoice, error) {
	reasoning, ok := s.registry.Get(tool.ReasoningToolName)
	if !ok {
		return StepChoice{}, &core.ConfigurationError{
			Reason: fmt.Sprintf("variant %q has no %s tool registered", s.cfg.Variant, tool.ReasoningToolName),
		}
	}
	return StepChoice{
		choice: model.ForceTool(reasoning.Name()),
		tools:  []tool.Tool{reasoning},
	}, nil
}

// actionChoice returns the permitted set after a reasoning step: every
// registered tool except the reasoning tool, minus capability-tagged tools
// whose session counter has reached its ceiling. The final answer tool is
// always present so the session can terminate.
func (s *Selector) actionChoice(session *core.Session) (StepChoice, error) {
	snapshot := session.Clone()

	var allowed []tool.Tool
	for _, t := range s.registry.List() {
		if t.Name() == tool.ReasoningToolName {
			continue
		}
		if s.capabilityExhausted(t, snapshot) {
			continue
		}
		allowed = append(allowed, t)
	}

	if len(allowed) == 0 {
		return StepChoice{}, &core.ConfigurationError{
			Reason: fmt.Sprintf("variant %q has no permitted tools for the action step", s.cfg.Variant),
		}
	}
	hasFinal := false
	for _, t := range allowed {
		if t.Name() == tool.FinalAnswerToolName {
			hasFinal = true
			break
		}
	}
	if !hasFinal {
		return StepChoice{}, &core.ConfigurationError{
			Reason: fmt.Sprintf("variant %q has no %s tool registered", s.cfg.Variant, tool.FinalAnswerToolName),
		}
	}

	return StepChoice{choice: model.RequireTool(), tools: allowed}, nil
}

func (s *Selector) capabilityExhausted(t tool.Tool, session *core.Session) bool {
	switch t.Capability() {
	case tool.CapabilitySearch:
		return s.cfg.MaxSearches > 0 && session.SearchCount >= s.cfg.MaxSearches
	case tool.CapabilityClarification:
		return s.cfg.MaxClarifications > 0 && session.ClarificationCount >= s.cfg.MaxClarifications
	default:
		return false
	}
}
