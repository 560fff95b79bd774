// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language models in the agent runtime.
//
// Core goals:
//   - Unify streaming generation behind a single fragment protocol
//   - Normalize tool / function call representation (ToolDefinition, ToolCallDelta)
//   - Express per-request tool selection constraints (forced / required)
//   - Facilitate lightweight mocking for tests (MockGateway)
//
// Providers (e.g. OpenAI, Anthropic) implement the Gateway interface from
// this package so higher layers (selector, execution loop, encoder) remain
// decoupled from vendor SDKs.
package model
