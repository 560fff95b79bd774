package stream

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/model"
)

// Turn is the assembled result of one model turn: the full assistant text,
// the tool calls reconstructed from their argument deltas in index order,
// and the finish reason reported by the gateway.
type Turn struct {
	Content      string
	ToolCalls    []core.ToolCall
	FinishReason string
}

// FirstCompleteCall returns the lowest-index tool call whose accumulated
// arguments parse as complete JSON, or false if none does.
func (t *Turn) FirstCompleteCall() (core.ToolCall, bool) {
	for _, tc := range t.ToolCalls {
		if tc.Arguments == "" || json.Valid([]byte(tc.Arguments)) {
			return tc, true
		}
	}
	return core.ToolCall{}, false
}

// callBuffer accumulates partial tool call deltas for one call index.
type callBuffer struct {
	id   string
	name string
	args strings.Builder
}

// Encoder translates one gateway fragment stream into client frames while
// assembling the turn for the execution loop. Frames are emitted in the exact
// order fragments arrive; content and partial tool-call text are forwarded
// immediately so clients can render progress. Exactly one terminal frame is
// emitted per turn, on success and on failure alike.
//
// An Encoder handles a single turn and is not safe for concurrent use.
type Encoder struct {
	id       string
	model    string
	sink     Sink
	sentRole bool
	terminal bool
}

// NewEncoder creates an encoder writing frames for the given stream id and
// advertised model name.
func NewEncoder(streamID, modelName string, sink Sink) *Encoder {
	return &Encoder{id: streamID, model: modelName, sink: sink}
}

// Encode drains the fragment stream, forwarding frames to the sink and
// accumulating tool call buffers. It returns the assembled turn, or an error
// when the gateway stream fails or the context is cancelled mid-turn; in the
// failure case an error frame with a terminal finish reason has already been
// sent, so the caller can treat the step as recoverable without the client
// hanging.
func (e *Encoder) Encode(ctx context.Context, fragments <-chan model.Fragment, errs <-chan error) (*Turn, error) {
	var content strings.Builder
	buffers := map[int64]*callBuffer{}
	finishReason := ""

	for fragment := range fragments {
		select {
		case <-ctx.Done():
			e.emitError(ctx.Err())
			return nil, ctx.Err()
		default:
		}

		switch {
		case fragment.Content != "":
			content.WriteString(fragment.Content)
			if err := e.emitContent(fragment.Content); err != nil {
				return nil, err
			}
		case fragment.ToolCall != nil:
			delta := fragment.ToolCall
			buf, ok := buffers[delta.Index]
			if !ok {
				buf = &callBuffer{}
				buffers[delta.Index] = buf
			}
			if delta.ID != "" {
				buf.id = delta.ID
			}
			if delta.Name != "" {
				buf.name = delta.Name
			}
			buf.args.WriteString(delta.Arguments)
			if err := e.emitToolCall(delta); err != nil {
				return nil, err
			}
		case fragment.FinishReason != "":
			finishReason = fragment.FinishReason
			if err := e.emitTerminal(finishReason); err != nil {
				return nil, err
			}
		}
	}

	if err := drainError(errs); err != nil {
		e.emitError(err)
		return nil, err
	}

	if !e.terminal {
		// Gateway closed without a completion fragment; close the turn so
		// the client is never left waiting.
		if finishReason == "" {
			finishReason = "stop"
		}
		if err := e.emitTerminal(finishReason); err != nil {
			return nil, err
		}
	}

	return &Turn{
		Content:      content.String(),
		ToolCalls:    assembleCalls(buffers),
		FinishReason: finishReason,
	}, nil
}

func drainError(errs <-chan error) error {
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func assembleCalls(buffers map[int64]*callBuffer) []core.ToolCall {
	indexes := make([]int64, 0, len(buffers))
	for idx := range buffers {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	calls := make([]core.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		buf := buffers[idx]
		calls = append(calls, core.ToolCall{
			ID:        buf.id,
			Name:      buf.name,
			Arguments: buf.args.String(),
		})
	}
	return calls
}

func (e *Encoder) emitContent(text string) error {
	frame := newFrame(e.id, e.model)
	frame.Choices[0].Delta = Delta{Role: e.roleOnce(), Content: text}
	return e.sink.Send(frame)
}

func (e *Encoder) emitToolCall(delta *model.ToolCallDelta) error {
	chunk := ToolCallChunk{
		Index:    delta.Index,
		ID:       delta.ID,
		Function: FunctionChunk{Name: delta.Name, Arguments: delta.Arguments},
	}
	if delta.ID != "" || delta.Name != "" {
		chunk.Type = "function"
	}

	frame := newFrame(e.id, e.model)
	frame.Choices[0].Delta = Delta{Role: e.roleOnce(), ToolCalls: []ToolCallChunk{chunk}}
	return e.sink.Send(frame)
}

func (e *Encoder) emitTerminal(finishReason string) error {
	if e.terminal {
		return nil
	}
	e.terminal = true

	frame := newFrame(e.id, e.model)
	frame.Choices[0].FinishReason = &finishReason
	return e.sink.Send(frame)
}

// emitError sends a terminal error frame, best effort: the stream is already
// failing, so a sink error here is not propagated over the original cause.
func (e *Encoder) emitError(cause error) {
	if e.terminal {
		return
	}
	e.terminal = true

	_ = e.sink.Send(ErrorFrame(e.id, e.model, cause))
}

func (e *Encoder) roleOnce() string {
	if e.sentRole {
		return ""
	}
	e.sentRole = true
	return "assistant"
}
