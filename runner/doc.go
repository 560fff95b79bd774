// Package runner coordinates session execution across concurrent requests.
//
// A Runner owns the mapping from agent variant names to configured agents and
// enforces the concurrency contract of the runtime: at most one in-flight run
// per session id, with later requests rejected as busy rather than
// interleaved. It also routes clarification answers and cancellations to the
// live run and persists the session snapshot after every run.
package runner
