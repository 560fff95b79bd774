// Package stream translates the model gateway's fragment sequence into the
// client-facing frame protocol: OpenAI-style chat.completion.chunk JSON
// objects delivered as server-sent events, terminated by a [DONE] sentinel.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Frame is one chat.completion.chunk object on the wire.
type Frame struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"`
	Created int64       `json:"created"`
	Model   string      `json:"model"`
	Choices []Choice    `json:"choices"`
	Error   *FrameError `json:"error,omitempty"`
}

// Choice carries the incremental delta for one completion choice. The runtime
// always emits a single choice at index 0.
type Choice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental payload of a frame: assistant text and/or partial
// tool calls. Clients accumulate tool call argument text by index until a
// finish reason arrives.
type Delta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallChunk `json:"tool_calls,omitempty"`
}

// ToolCallChunk is a partial tool invocation inside a delta.
type ToolCallChunk struct {
	Index    int64         `json:"index"`
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function FunctionChunk `json:"function"`
}

// FunctionChunk carries the function name (first chunk only) and an argument
// text fragment.
type FunctionChunk struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// FrameError reports a stream-level failure to the client inside an
// otherwise well-formed frame.
type FrameError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Sink receives frames in emission order. Implementations must not reorder
// or drop frames; a returned error aborts the encode.
type Sink interface {
	Send(Frame) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Frame) error

// Send implements Sink.
func (f SinkFunc) Send(frame Frame) error { return f(frame) }

// NewStreamID returns a fresh chunk stream identifier.
func NewStreamID() string {
	return "chatcmpl-" + uuid.NewString()
}

// newFrame builds an empty chunk frame for the given stream.
func newFrame(id, model string) Frame {
	return Frame{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []Choice{{Index: 0}},
	}
}

// ContentFrame builds a standalone content delta frame. The execution loop
// uses it to stream loop-generated text (tool results, synthesized answers)
// between model turns.
func ContentFrame(id, model, text string) Frame {
	frame := newFrame(id, model)
	frame.Choices[0].Delta = Delta{Role: "assistant", Content: text}
	return frame
}

// TerminalFrame builds a frame closing a turn with the given finish reason.
func TerminalFrame(id, model, finishReason string) Frame {
	frame := newFrame(id, model)
	frame.Choices[0].FinishReason = &finishReason
	return frame
}

// ErrorFrame builds a terminal frame reporting a stream-level failure, with
// finish reason "error" and the cause carried in the error payload.
func ErrorFrame(id, model string, cause error) Frame {
	reason := "error"
	frame := newFrame(id, model)
	frame.Choices[0].FinishReason = &reason
	frame.Error = &FrameError{Message: cause.Error(), Type: "stream_error"}
	return frame
}

// WriteFrame serializes a frame as one server-sent event: "data: <json>\n\n".
func WriteFrame(w io.Writer, frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteDone writes the terminal sentinel event closing a stream.
func WriteDone(w io.Writer) error {
	if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write done sentinel: %w", err)
	}
	return nil
}
