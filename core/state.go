package core

// AgentState is one phase of a session's execution state machine.
type AgentState string

const (
	// StateInitialized is the state of a freshly created session before its
	// first step.
	StateInitialized AgentState = "initialized"
	// StateReasoning means the loop is streaming a model turn for the
	// current step.
	StateReasoning AgentState = "reasoning"
	// StateSelecting means a complete tool invocation has been assembled and
	// its arguments are being validated.
	StateSelecting AgentState = "selecting"
	// StateActing means the chosen tool is executing against the session.
	StateActing AgentState = "acting"
	// StateClarifying means the loop is blocked on the clarification gate
	// waiting for external input.
	StateClarifying AgentState = "clarifying"
	// StateFinished is the successful terminal state.
	StateFinished AgentState = "finished"
	// StateFailed is the unsuccessful terminal state.
	StateFailed AgentState = "failed"
)

// IsTerminal reports whether a state ends the session. It is deliberately a
// plain function rather than a set-valued enum member so membership testing
// never depends on how individual states are declared.
func IsTerminal(s AgentState) bool {
	return s == StateFinished || s == StateFailed
}

// validTransitions is the closed transition table of the execution loop.
// Transitions not listed here indicate a bug in the caller.
var validTransitions = map[AgentState][]AgentState{
	StateInitialized: {StateReasoning},
	StateReasoning:   {StateSelecting, StateFinished, StateFailed},
	StateSelecting:   {StateActing, StateFinished, StateFailed},
	StateActing:      {StateReasoning, StateClarifying, StateFinished, StateFailed},
	StateClarifying:  {StateReasoning, StateFailed},
}

// CanTransition reports whether moving from one state to another is allowed
// by the execution loop's transition table.
func CanTransition(from, to AgentState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
