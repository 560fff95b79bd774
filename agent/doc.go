// Package agent implements the per-session execution loop: a state machine
// driving reason/select/act cycles against a model gateway.
//
// Each cycle forces a structured reasoning step first, then lets the model
// pick exactly one action from a dynamically constrained tool set. The
// Selector enforces the ordering rule and resource ceilings, the loop applies
// tool results to session state, evaluates termination predicates once per
// completed step and streams every frame to the caller while it works.
// Recoverable failures (missing tool call, malformed arguments, resource
// caps) end the session with a synthesized final answer rather than an
// error, so clients always receive a well-formed terminal frame.
//
// Per-variant behavior is expressed purely through Config values threaded in
// at construction; the loop itself is variant-agnostic.
package agent
