// Package session provides SessionStore implementations: a volatile
// in-memory store for tests and single-process servers, and a SQLite-backed
// store for durable deployments. Both satisfy core.SessionStore, so the
// runtime never depends on which one is wired in.
package session
