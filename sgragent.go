// Package sgragent provides a high-level façade over the agent runtime
// (sessions, execution loop, streaming) for embedding an agent in a Go
// program without wiring every package by hand. Most applications interact
// with this package by:
//  1. Creating a Runtime via New() with a model gateway (optionally
//     overriding the variant, store, tools or logger)
//  2. Running user turns against a session id, streaming frames to a sink
//     (Run) or collecting them (RunSync)
//
// The façade delegates orchestration to runner.Runner while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable session store
// and a structured logger.
package sgragent

import (
	"context"
	"strings"

	"github.com/sgrlabs/sgragent/agent"
	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/logging"
	"github.com/sgrlabs/sgragent/model"
	"github.com/sgrlabs/sgragent/runner"
	"github.com/sgrlabs/sgragent/session"
	"github.com/sgrlabs/sgragent/stream"
	"github.com/sgrlabs/sgragent/tool"
)

// Options configures the Runtime.
type Options struct {
	// Config is the agent configuration; defaults to the research preset.
	Config agent.Config

	// ExtraTools are registered alongside the control tools (reasoning,
	// clarification, final answer, session status).
	ExtraTools []tool.Tool

	// Store defaults to an in-memory implementation.
	Store core.SessionStore

	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// Runtime aggregates the runner and its collaborators behind a small API.
type Runtime struct {
	variant string
	runner  *runner.Runner
}

// New creates a Runtime driving the given gateway. Any unset service is
// initialized with an in-memory implementation.
func New(gateway model.Gateway, optFns ...func(o *Options)) (*Runtime, error) {
	opts := Options{
		Config: agent.ResearchConfig(),
		Store:  session.NewInMemoryStore(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	tools := append([]tool.Tool{
		tool.NewReasoningTool(),
		tool.NewClarificationTool(),
		tool.NewFinalAnswerTool(),
		tool.NewSessionStatusTool(),
	}, opts.ExtraTools...)

	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		return nil, err
	}

	a, err := agent.New(opts.Config, gateway, registry, agent.WithLogger(opts.Logger))
	if err != nil {
		return nil, err
	}

	agents := map[string]*agent.Agent{opts.Config.Variant: a}
	run := runner.New(opts.Store, agents, func(o *runner.Options) { o.Logger = opts.Logger })

	return &Runtime{variant: opts.Config.Variant, runner: run}, nil
}

// Runner exposes the underlying runner for callers that need session
// inspection or cancellation.
func (r *Runtime) Runner() *runner.Runner { return r.runner }

// Run executes one user turn, streaming every frame to the sink, and returns
// the session id (generated when empty).
func (r *Runtime) Run(ctx context.Context, sessionID, message string, sink stream.Sink) (string, error) {
	return r.runner.Run(ctx, r.variant, sessionID, message, sink)
}

// RunSync executes one user turn, collects all frames and returns the
// accumulated assistant text alongside them. Pass a non-empty session id to
// continue the conversation across calls.
func (r *Runtime) RunSync(ctx context.Context, sessionID, message string) (string, []stream.Frame, error) {
	var frames []stream.Frame
	var text strings.Builder

	_, err := r.Run(ctx, sessionID, message, stream.SinkFunc(func(f stream.Frame) error {
		frames = append(frames, f)
		if len(f.Choices) > 0 {
			text.WriteString(f.Choices[0].Delta.Content)
		}
		return nil
	}))
	if err != nil {
		return "", frames, err
	}
	return text.String(), frames, nil
}

// ProvideClarification resolves a pending clarification for a session.
func (r *Runtime) ProvideClarification(ctx context.Context, sessionID, answer string) error {
	return r.runner.ProvideClarification(ctx, sessionID, answer)
}

// Cancel aborts the active run for a session.
func (r *Runtime) Cancel(sessionID string) error {
	return r.runner.Cancel(sessionID)
}
