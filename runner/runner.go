package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sgrlabs/sgragent/agent"
	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/logging"
	"github.com/sgrlabs/sgragent/stream"
)

// Options holds dependency overrides passed to New().
type Options struct {
	// Logger receives runner lifecycle events.
	Logger logging.Logger
}

// Runner coordinates session execution: it resolves the agent variant, loads
// or creates the session, enforces the one-in-flight-step-per-session rule,
// and persists the session after every run. Public methods are safe for
// concurrent use.
//
// The runner holds the only live Session object for an active run; clones in
// the store are snapshots. Clarification answers must therefore be routed
// through the runner, never resolved against a store copy.
type Runner struct {
	store  core.SessionStore
	agents map[string]*agent.Agent
	logger logging.Logger

	mu     sync.Mutex
	active map[string]*activeRun
}

// activeRun tracks one in-flight session run.
type activeRun struct {
	session *core.Session
	cancel  context.CancelFunc
}

// New constructs a Runner over the store with one agent per variant name.
func New(store core.SessionStore, agents map[string]*agent.Agent, optFns ...func(o *Options)) *Runner {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		store:  store,
		agents: agents,
		logger: opts.Logger,
		active: make(map[string]*activeRun),
	}
}

// Variants returns the variant names this runner can execute.
func (r *Runner) Variants() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// Run executes one user turn against the session, streaming every frame to
// the sink, and returns the session id (generated when the request carried
// none). A request addressed to an existing id continues that session; an
// unknown id creates one. A second request for a session that is still
// processing is rejected with core.ErrSessionBusy.
//
// Run blocks until the session reaches a terminal state or suspends fatally;
// the caller owns the sink for the whole duration, including any
// clarification wait resolved through ProvideClarification.
func (r *Runner) Run(ctx context.Context, variant, sessionID, userMessage string, sink stream.Sink) (string, error) {
	a, ok := r.agents[variant]
	if !ok {
		return "", &core.ConfigurationError{Reason: fmt.Sprintf("unknown agent variant %q", variant)}
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session, created, err := r.loadOrCreate(ctx, sessionID, a.Config().WorkingDirectory)
	if err != nil {
		return sessionID, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.acquire(sessionID, session, cancel); err != nil {
		return sessionID, err
	}
	defer r.release(sessionID)

	// A finished session addressed again is reopened for continuation.
	session.BeginRun()
	session.Append(core.UserMessage(userMessage))

	r.logger.Info("runner.run.start", "session_id", sessionID, "variant", variant, "created", created)
	runErr := a.Run(ctx, session, sink)

	if err := r.persist(session); err != nil {
		r.logger.Error("runner.persist.failed", "session_id", sessionID, "error", err.Error())
		if runErr == nil {
			runErr = err
		}
	}

	r.logger.Info("runner.run.done", "session_id", sessionID, "state", string(session.CurrentState()))
	return sessionID, runErr
}

// ProvideClarification resolves the pending clarification of an active run.
// It returns core.ErrNotClarifying when the session exists but is not blocked
// on a clarification, and core.ErrSessionNotFound for unknown ids.
func (r *Runner) ProvideClarification(ctx context.Context, sessionID, answer string) error {
	r.mu.Lock()
	run, ok := r.active[sessionID]
	r.mu.Unlock()

	if !ok {
		if _, err := r.store.Get(ctx, sessionID); err != nil {
			return err
		}
		return core.ErrNotClarifying
	}
	return agent.ProvideClarification(run.session, answer)
}

// Cancel aborts the active run for a session. The suspended step leaves no
// trace on the session; a later request resumes it.
func (r *Runner) Cancel(sessionID string) error {
	r.mu.Lock()
	run, ok := r.active[sessionID]
	r.mu.Unlock()

	if !ok {
		return core.ErrSessionNotFound
	}
	run.cancel()
	return nil
}

// PendingQuestions returns the questions of an active run blocked on
// clarification, or false when the session has no live pending gate.
func (r *Runner) PendingQuestions(sessionID string) ([]string, bool) {
	r.mu.Lock()
	run, ok := r.active[sessionID]
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	gate := run.session.Pending()
	if gate == nil {
		return nil, false
	}
	return gate.Questions(), true
}

// Session returns a snapshot of the session: the live copy for an active run,
// the stored one otherwise.
func (r *Runner) Session(ctx context.Context, sessionID string) (*core.Session, error) {
	r.mu.Lock()
	run, ok := r.active[sessionID]
	r.mu.Unlock()

	if ok {
		return run.session.Clone(), nil
	}
	return r.store.Get(ctx, sessionID)
}

func (r *Runner) loadOrCreate(ctx context.Context, sessionID, workingDirectory string) (*core.Session, bool, error) {
	session, err := r.store.Get(ctx, sessionID)
	if err == nil {
		return session, false, nil
	}
	if err != core.ErrSessionNotFound {
		return nil, false, fmt.Errorf("load session: %w", err)
	}

	session = core.NewSession(sessionID, workingDirectory)
	if err := r.store.Create(ctx, session); err != nil {
		// Lost a create race against a concurrent first request for the same
		// id; continue with the stored session and let the busy check
		// arbitrate between the two runs.
		if existing, getErr := r.store.Get(ctx, sessionID); getErr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create session: %w", err)
	}
	return session, true, nil
}

func (r *Runner) acquire(sessionID string, session *core.Session, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[sessionID]; busy {
		return core.ErrSessionBusy
	}
	r.active[sessionID] = &activeRun{session: session, cancel: cancel}
	return nil
}

func (r *Runner) release(sessionID string) {
	r.mu.Lock()
	delete(r.active, sessionID)
	r.mu.Unlock()
}

func (r *Runner) persist(session *core.Session) error {
	// The store context must outlive the (possibly cancelled) run context.
	return r.store.Update(context.Background(), session)
}
