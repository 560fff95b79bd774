package core

import (
	"context"
	"sync"
	"time"
)

// ClarificationGate is a one-shot synchronization point scoped to a session.
// The execution loop suspends on it with a timeout; an external actor
// resolves it with an answer. The gate delivers exactly one resolution and
// is discarded after first resolution or timeout.
type ClarificationGate struct {
	questions []string
	answer    chan string
	once      sync.Once
}

// NewClarificationGate creates a gate carrying the questions the agent asked.
func NewClarificationGate(questions []string) *ClarificationGate {
	return &ClarificationGate{
		questions: questions,
		answer:    make(chan string, 1),
	}
}

// Questions returns the questions the agent is waiting to have answered.
func (g *ClarificationGate) Questions() []string {
	qs := make([]string, len(g.questions))
	copy(qs, g.questions)
	return qs
}

// Resolve delivers the answer. Only the first resolution succeeds; later
// calls return ErrClarificationResolved.
func (g *ClarificationGate) Resolve(answer string) error {
	delivered := false
	g.once.Do(func() {
		g.answer <- answer
		delivered = true
	})
	if !delivered {
		return ErrClarificationResolved
	}
	return nil
}

// Wait blocks until the gate is resolved, the timeout elapses or the context
// is cancelled. On timeout it returns a ClarificationTimeoutError so the
// loop fails the session instead of hanging indefinitely.
func (g *ClarificationGate) Wait(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case answer := <-g.answer:
		return answer, nil
	case <-timer.C:
		return "", &ClarificationTimeoutError{Timeout: timeout}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
