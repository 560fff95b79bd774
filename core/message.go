package core

import "time"

// Conversation roles. They mirror the chat-completions wire format so a
// session's history can be replayed to any gateway backend without mapping.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall records a structured tool invocation selected by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // Serialized JSON argument payload
}

// Message is one entry of a session's conversation history.
//
// Assistant messages may carry tool calls; tool messages carry the result of
// the call referenced by ToolCallID. The pairing is load-bearing: truncation
// must never separate an assistant tool call from its tool result.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// HasToolCalls reports whether the message carries at least one tool call.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// IsToolResult reports whether the message is the result of a tool call.
func (m Message) IsToolResult() bool { return m.Role == RoleTool }

// SystemMessage builds a system prompt message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantToolCallMessage builds an assistant message carrying a single tool
// invocation, the shape the loop records after each model turn.
func AssistantToolCallMessage(callID, name, arguments string) Message {
	return Message{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: callID, Name: name, Arguments: arguments}},
	}
}

// ToolResultMessage builds a tool message answering the call with the given id.
func ToolResultMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// Source is one deduplicated reference retrieved during a session.
type Source struct {
	ID      string `json:"id"`
	URI     string `json:"uri"`
	Title   string `json:"title,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
}

// SearchRecord captures one search performed during a session. ResultRefs
// point at Source ids held by the owning session.
type SearchRecord struct {
	Query       string    `json:"query"`
	RetrievedAt time.Time `json:"retrieved_at"`
	ResultRefs  []string  `json:"result_refs,omitempty"`
}
