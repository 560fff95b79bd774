package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/sgrlabs/sgragent/core"
)

// Fragment is a single incremental event emitted by a streaming model
// backend, unified across vendors so downstream logic does not need
// per-provider branching. Exactly one of the three aspects is populated:
// a content delta, a tool-call delta, or a finish reason marking the end
// of the model turn.
type Fragment struct {
	// Content is a piece of assistant text, in emission order.
	Content string `json:"content,omitempty"`

	// ToolCall carries a partial tool invocation delta. Deltas for the same
	// Index accumulate; Arguments arrives as raw JSON fragments.
	ToolCall *ToolCallDelta `json:"tool_call,omitempty"`

	// FinishReason is non-empty on the terminal fragment of a model turn:
	// "stop", "length", "tool_calls", etc.
	FinishReason string `json:"finish_reason,omitempty"`
}

// ToolCallDelta is an incremental piece of a tool invocation. ID and Name are
// typically present only on the first delta for an index; Arguments fragments
// concatenate into the complete JSON argument string.
type ToolCallDelta struct {
	Index     int64  `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolChoiceMode selects how strongly the request constrains tool use.
type ToolChoiceMode string

const (
	// ToolChoiceAuto lets the model decide whether to call a tool.
	ToolChoiceAuto ToolChoiceMode = "auto"

	// ToolChoiceRequired obliges the model to call some tool from the
	// offered set.
	ToolChoiceRequired ToolChoiceMode = "required"

	// ToolChoiceForced obliges the model to call one specific tool.
	ToolChoiceForced ToolChoiceMode = "forced"
)

// ToolChoice constrains the model's tool selection for one request.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Tool string         `json:"tool,omitempty"` // set when Mode is ToolChoiceForced
}

// ForceTool returns a choice that obliges the model to call the named tool.
func ForceTool(name string) ToolChoice {
	return ToolChoice{Mode: ToolChoiceForced, Tool: name}
}

// RequireTool returns a choice that obliges the model to call some tool.
func RequireTool() ToolChoice {
	return ToolChoice{Mode: ToolChoiceRequired}
}

// Request captures the normalized model input produced by the execution loop.
type Request struct {
	Instructions string           `json:"instructions"` // system instructions, prepended to the conversation
	Messages     []core.Message   `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Choice       ToolChoice       `json:"choice"`
}

// Info contains metadata about a gateway implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Gateway is the minimal interface the execution loop needs to drive
// generation. Stream returns a fragment channel and an error channel; both
// are closed when the model turn ends. At most one error is delivered, after
// which no further fragments arrive.
type Gateway interface {
	Stream(ctx context.Context, req Request) (<-chan Fragment, <-chan error)

	// Info returns information about the gateway implementation.
	Info() Info
}

// ContentFragment builds a text delta fragment.
func ContentFragment(text string) Fragment {
	return Fragment{Content: text}
}

// ToolCallFragment builds a tool-call delta fragment.
func ToolCallFragment(index int64, id, name, arguments string) Fragment {
	return Fragment{ToolCall: &ToolCallDelta{Index: index, ID: id, Name: name, Arguments: arguments}}
}

// CompletionFragment builds the terminal fragment of a model turn.
func CompletionFragment(finishReason string) Fragment {
	return Fragment{FinishReason: finishReason}
}

// MockGateway is a lightweight in-memory Gateway useful for tests. Each call
// to Stream consumes the next enqueued script; the requests it receives are
// recorded for assertions.
type MockGateway struct {
	mu      sync.Mutex
	scripts []script
	calls   []Request
}

type script struct {
	fragments []Fragment
	err       error
}

// NewMockGateway constructs an empty MockGateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Enqueue registers the fragment sequence for the next unconsumed Stream call.
func (m *MockGateway) Enqueue(fragments ...Fragment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, script{fragments: fragments})
}

// EnqueueError registers a Stream call that emits the given fragments and
// then fails with err.
func (m *MockGateway) EnqueueError(err error, fragments ...Fragment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, script{fragments: fragments, err: err})
}

// Calls returns a copy of the requests received so far.
func (m *MockGateway) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]Request, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// Stream implements Gateway; it replays the next enqueued script.
func (m *MockGateway) Stream(ctx context.Context, req Request) (<-chan Fragment, <-chan error) {
	out := make(chan Fragment, 32)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls = append(m.calls, req)
	var next script
	if len(m.scripts) > 0 {
		next = m.scripts[0]
		m.scripts = m.scripts[1:]
	} else {
		next = script{err: fmt.Errorf("mock gateway: no script enqueued for call %d", len(m.calls))}
	}
	m.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errCh)
		for _, f := range next.fragments {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- f:
			}
		}
		if next.err != nil {
			errCh <- next.err
		}
	}()

	return out, errCh
}

// Info implements Gateway.
func (m *MockGateway) Info() Info {
	return Info{Name: "mock", Provider: "mock", SupportsTools: true}
}
