// Package core provides the foundational domain types used by the agent
// runtime. It defines the core abstractions for:
//
//   - Sessions (stateful agent runs with conversation history and counters)
//   - Messages (role-based conversation records with tool invocations)
//   - Agent states and the terminal-state predicate
//   - History truncation with tool-call/result pair atomicity
//   - The clarification gate (one-shot human-in-the-loop synchronization)
//   - The error taxonomy shared by the loop, encoder and server
//   - A pluggable SessionStore for session persistence
//
// The package intentionally keeps implementation concerns (persistence,
// model backends, the execution loop itself) out of scope, exposing small
// interfaces to enable custom backends and extensions.
package core
