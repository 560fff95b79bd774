package core

import (
	"context"
	"sync"
	"time"
)

// Session represents one agent run: its state machine position, resource
// counters, conversation history and retrieved sources. It is safe for
// concurrent reads; mutation happens inside at most one in-flight step at a
// time, owned by the execution loop that created the session.
//
// Contract:
//   - Iteration increases only after a step fully completes, never mid-step
//   - State transitions follow the loop's transition table (CanTransition)
//   - SearchCount / ClarificationCount never exceed their configured maxima;
//     the loop terminates before the ceiling is crossed
//   - Sources always contain every source referenced by Searches
//   - WorkingDirectory is set once at creation and read-only thereafter
type Session struct {
	ID                 string         `json:"id"`
	State              AgentState     `json:"state"`
	Iteration          int            `json:"iteration"`
	SearchCount        int            `json:"search_count"`
	ClarificationCount int            `json:"clarification_count"`
	WorkingDirectory   string         `json:"working_directory"`
	Conversation       []Message      `json:"conversation"`
	Searches           []SearchRecord `json:"searches,omitempty"`
	Sources            []Source       `json:"sources,omitempty"`
	Created            time.Time      `json:"created"`
	Updated            time.Time      `json:"updated"`

	pending *ClarificationGate
	mu      sync.RWMutex
}

// NewSession creates a fresh session rooted at the given working directory.
func NewSession(id, workingDirectory string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:               id,
		State:            StateInitialized,
		WorkingDirectory: workingDirectory,
		Created:          now,
		Updated:          now,
	}
}

// CurrentState returns the session's state machine position.
func (s *Session) CurrentState() AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// SetState moves the session to the given state. Transitions outside the
// loop's transition table indicate a programming error and are reported so
// the session can be failed instead of silently corrupted.
func (s *Session) SetState(next AgentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransition(s.State, next) {
		return &ConfigurationError{Reason: "invalid state transition " + string(s.State) + " -> " + string(next)}
	}
	s.State = next
	s.Updated = time.Now().UTC()
	return nil
}

// BeginRun reopens a terminal session for a new run over the same
// conversation. Counters, gathered sources and history are preserved; only
// the state machine restarts. Non-terminal sessions are left untouched.
func (s *Session) BeginRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if IsTerminal(s.State) {
		s.State = StateInitialized
		s.Updated = time.Now().UTC()
	}
}

// RewindStep rolls a mid-step state (SELECTING or ACTING) back to REASONING
// so an interrupted step leaves the session exactly where it began. Any other
// state is left untouched.
func (s *Session) RewindStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State == StateSelecting || s.State == StateActing {
		s.State = StateReasoning
		s.Updated = time.Now().UTC()
	}
}

// CompleteStep increments the iteration counter. It must be called exactly
// once per fully completed loop step, after the acting phase.
func (s *Session) CompleteStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Iteration++
	s.Updated = time.Now().UTC()
}

// Append adds messages to the conversation history.
func (s *Session) Append(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Conversation = append(s.Conversation, msgs...)
	s.Updated = time.Now().UTC()
}

// History returns a defensive copy of the conversation so callers cannot
// mutate internal state.
func (s *Session) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]Message, len(s.Conversation))
	copy(history, s.Conversation)
	return history
}

// Truncate bounds the conversation history in place, keeping the system
// message plus the most recent entries and never splitting a tool-call/result
// pair. The loop calls this before each model request so the bound holds in
// the request actually sent.
func (s *Session) Truncate(maxMessages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	truncated := TruncateConversation(s.Conversation, maxMessages)
	if len(truncated) == len(s.Conversation) {
		return
	}
	s.Conversation = truncated
	s.Updated = time.Now().UTC()
}

// RecordSearch appends a search record and merges its sources, keeping
// Sources a superset of everything Searches reference.
func (s *Session) RecordSearch(rec SearchRecord, sources []Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addSourcesLocked(sources)
	s.Searches = append(s.Searches, rec)
	s.SearchCount++
	s.Updated = time.Now().UTC()
}

// AddSources merges sources into the session, deduplicating by URI.
func (s *Session) AddSources(sources []Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addSourcesLocked(sources)
	s.Updated = time.Now().UTC()
}

func (s *Session) addSourcesLocked(sources []Source) {
	for _, src := range sources {
		known := false
		for _, existing := range s.Sources {
			if existing.URI == src.URI {
				known = true
				break
			}
		}
		if !known {
			s.Sources = append(s.Sources, src)
		}
	}
}

// RecordClarification increments the clarification counter.
func (s *Session) RecordClarification() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClarificationCount++
	s.Updated = time.Now().UTC()
}

// SetPending installs the clarification gate the loop is about to block on.
func (s *Session) SetPending(gate *ClarificationGate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = gate
}

// Pending returns the clarification gate the loop is blocked on, or nil.
func (s *Session) Pending() *ClarificationGate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// ClearPending discards the clarification gate after resolution or timeout.
func (s *Session) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// Clone returns a deep copy of the session safe for independent mutation.
// The pending gate is intentionally not copied; it is scoped to the live run.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:                 s.ID,
		State:              s.State,
		Iteration:          s.Iteration,
		SearchCount:        s.SearchCount,
		ClarificationCount: s.ClarificationCount,
		WorkingDirectory:   s.WorkingDirectory,
		Conversation:       make([]Message, len(s.Conversation)),
		Searches:           make([]SearchRecord, len(s.Searches)),
		Sources:            make([]Source, len(s.Sources)),
		Created:            s.Created,
		Updated:            s.Updated,
	}
	copy(clone.Conversation, s.Conversation)
	copy(clone.Searches, s.Searches)
	copy(clone.Sources, s.Sources)
	return clone
}

// SessionStore persists sessions. The runtime depends on it only through
// these four operations so a durable store can be substituted without
// touching the execution loop. Eviction policy belongs to the store, not
// the core.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
}
