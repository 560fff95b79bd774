package core

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across the runtime and its stores.
var (
	// ErrSessionBusy is returned when a request addresses a session that is
	// still processing a step. Callers must retry, never interleave.
	ErrSessionBusy = errors.New("session busy")
	// ErrSessionNotFound is returned by stores for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrClarificationResolved is returned when a gate is resolved twice.
	ErrClarificationResolved = errors.New("clarification already resolved")
	// ErrNotClarifying is returned when a clarification targets a session
	// that is not blocked on one.
	ErrNotClarifying = errors.New("session is not waiting for clarification")
)

// MissingToolCallError indicates the model produced no structured tool
// selection for a step. Recoverable: the loop synthesizes a final answer and
// finishes the session.
type MissingToolCallError struct {
	FinishReason string
	Content      string
}

func (e *MissingToolCallError) Error() string {
	if e.FinishReason != "" {
		return fmt.Sprintf("model emitted no tool call (finish_reason=%s)", e.FinishReason)
	}
	return "model emitted no tool call"
}

// ToolArgumentError indicates the selected tool's arguments failed schema
// validation. Recoverable with the same fallback as MissingToolCallError.
type ToolArgumentError struct {
	Tool string
	Err  error
}

func (e *ToolArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %v", e.Tool, e.Err)
}

func (e *ToolArgumentError) Unwrap() error { return e.Err }

// ToolExecutionError indicates a tool ran and failed internally. The loop
// folds the message into the tool result so the model can recover, up to a
// retry budget.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// IterationLimitError reports that the configured iteration ceiling was
// reached. The loop forces a final-answer step instead of crossing it.
type IterationLimitError struct {
	Max int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("iteration limit reached (max %d)", e.Max)
}

// SearchLimitError reports that the configured search ceiling was reached.
type SearchLimitError struct {
	Max int
}

func (e *SearchLimitError) Error() string {
	return fmt.Sprintf("search limit reached (max %d)", e.Max)
}

// ClarificationTimeoutError reports that the clarification gate was not
// resolved in time. The session terminates as failed.
type ClarificationTimeoutError struct {
	Timeout time.Duration
}

func (e *ClarificationTimeoutError) Error() string {
	return fmt.Sprintf("clarification not resolved within %s", e.Timeout)
}

// GatewayError wraps a model backend transport or timeout failure. The loop
// retries once with backoff; an exhausted retry fails the session.
type GatewayError struct {
	Provider string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Provider, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ConfigurationError indicates an unusable runtime configuration (unknown
// agent variant, empty tool selection set). Fatal, never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}
