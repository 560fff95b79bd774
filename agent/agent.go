package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/logging"
	"github.com/sgrlabs/sgragent/model"
	"github.com/sgrlabs/sgragent/stream"
	"github.com/sgrlabs/sgragent/tool"
)

// gatewayRetryDelay is the backoff before the single gateway retry.
const gatewayRetryDelay = 2 * time.Second

// Option configures an Agent.
type Option func(*Agent)

// WithLogger installs a logger; the default is a no-op.
func WithLogger(l logging.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithInstruction overrides the instruction derived from Config.Instructions,
// typically with a dynamic provider.
func WithInstruction(in Instruction) Option {
	return func(a *Agent) { a.instruction = in }
}

// Agent drives one session through reason/select/act cycles against a model
// gateway until a termination predicate fires. An Agent is immutable after
// construction and safe to share across sessions; all mutable state lives in
// the session itself.
type Agent struct {
	cfg         Config
	gateway     model.Gateway
	registry    *tool.Registry
	selector    *Selector
	instruction Instruction
	logger      logging.Logger
	retryDelay  time.Duration
}

// New constructs an agent for one variant configuration.
func New(cfg Config, gateway model.Gateway, registry *tool.Registry, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, &core.ConfigurationError{Reason: "gateway must not be nil"}
	}
	if registry == nil {
		return nil, &core.ConfigurationError{Reason: "tool registry must not be nil"}
	}

	a := &Agent{
		cfg:         cfg,
		gateway:     gateway,
		registry:    registry,
		selector:    NewSelector(cfg, registry),
		instruction: NewInstructionFromText(cfg.Instructions),
		logger:      logging.NoOpLogger{},
		retryDelay:  gatewayRetryDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns the agent's per-session configuration.
func (a *Agent) Config() Config { return a.cfg }

// Run executes the session until it reaches a terminal state, streaming every
// frame to the sink. The caller appends the user message before Run and
// writes the [DONE] sentinel after it.
//
// Run returns nil whenever the session ended in a well-formed terminal frame,
// including the recoverable failure paths. It returns an error only for
// cancellation (state and iteration are left as they were before the
// suspended step), exhausted gateway retries, configuration faults and
// clarification timeouts.
func (a *Agent) Run(ctx context.Context, session *core.Session, sink stream.Sink) error {
	logger := a.logger
	if rl, ok := logger.(*logging.RuntimeLogger); ok {
		logger = rl.WithSession(session.ID)
	}

	run := &runState{
		agent:    a,
		session:  session,
		sink:     sink,
		streamID: stream.NewStreamID(),
		logger:   logger,
	}

	switch session.CurrentState() {
	case core.StateInitialized:
		if err := session.SetState(core.StateReasoning); err != nil {
			return err
		}
	case core.StateClarifying:
		// A run abandoned while waiting for clarification resumes here; the
		// incoming user message stands in for the answer.
		session.ClearPending()
		if err := session.SetState(core.StateReasoning); err != nil {
			return err
		}
	case core.StateSelecting, core.StateActing:
		// A snapshot persisted mid-step (cancelled run, crashed process)
		// restarts the interrupted step from its reasoning phase.
		session.RewindStep()
	}

	for !core.IsTerminal(session.CurrentState()) {
		if err := run.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runState bundles the per-run streaming context so step methods stay small.
type runState struct {
	agent    *Agent
	session  *core.Session
	sink     stream.Sink
	streamID string
	logger   logging.Logger

	lastStepReasoning bool
	pendingStep       string
	toolFailures      int
}

// step performs one full reason+act cycle, or the clarification suspension
// replacing it. Iteration only advances once the cycle completes, and a
// cancelled suspension rolls the state back to where the step began so the
// session stays resumable.
func (r *runState) step(ctx context.Context) (err error) {
	defer func() {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.session.RewindStep()
		}
	}()

	session := r.session
	cfg := r.agent.cfg

	if cfg.MaxIterations > 0 && session.Iteration >= cfg.MaxIterations {
		return r.forceFinal(&core.IterationLimitError{Max: cfg.MaxIterations},
			fmt.Sprintf("Iteration limit of %d reached; answering with the information gathered so far.", cfg.MaxIterations))
	}

	// Reasoning phase: the reasoning tool is forced.
	done, err := r.reasoningPhase(ctx)
	if err != nil || done {
		return err
	}

	// Action phase: required choice over the permitted set.
	return r.actionPhase(ctx)
}

// reasoningPhase runs the forced reasoning turn. Its boolean return reports
// that the session terminated (recoverable fallback).
func (r *runState) reasoningPhase(ctx context.Context) (bool, error) {
	session := r.session

	choice, err := r.agent.selector.Choose(session, false)
	if err != nil {
		r.fail(err)
		return true, err
	}

	turn, err := r.modelTurn(ctx, choice)
	if err != nil {
		return true, r.handleTurnError(err)
	}

	call, ok := completeCall(turn, tool.ReasoningToolName)
	if !ok {
		// The model answered in plain text instead of reasoning; treat it
		// as the final answer rather than crashing the session.
		return true, r.recoverWithFinal(&core.MissingToolCallError{
			FinishReason: turn.FinishReason,
			Content:      turn.Content,
		})
	}

	callID := fmt.Sprintf("%d-reasoning", session.Iteration)
	result, err := r.executeCall(ctx, call, callID)
	if err != nil {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		return true, r.recoverWithFinal(err)
	}

	session.Append(
		core.AssistantToolCallMessage(callID, call.Name, call.Arguments),
		core.ToolResultMessage(callID, result.Content),
	)
	r.lastStepReasoning = true

	// The most immediate remaining step annotates the action message so the
	// conversation records what the following tool call was meant to do.
	r.pendingStep = ""
	if parsed, ok := result.Data.(tool.ReasoningArgs); ok && len(parsed.RemainingSteps) > 0 {
		r.pendingStep = parsed.RemainingSteps[0]
	}

	if err := session.SetState(core.StateSelecting); err != nil {
		return true, err
	}
	return false, nil
}

// actionPhase runs the required-choice turn and executes the selected tool.
func (r *runState) actionPhase(ctx context.Context) error {
	session := r.session
	cfg := r.agent.cfg

	choice, err := r.agent.selector.Choose(session, true)
	if err != nil {
		r.fail(err)
		return err
	}

	turn, err := r.modelTurn(ctx, choice)
	if err != nil {
		return r.handleTurnError(err)
	}

	call, ok := turn.FirstCompleteCall()
	if !ok || call.Name == "" {
		return r.recoverWithFinal(&core.MissingToolCallError{
			FinishReason: turn.FinishReason,
			Content:      turn.Content,
		})
	}

	selected, registered := r.agent.registry.Get(call.Name)
	if registered && selected.Capability() == tool.CapabilitySearch &&
		cfg.MaxSearches > 0 && session.SearchCount >= cfg.MaxSearches {
		return r.forceFinal(&core.SearchLimitError{Max: cfg.MaxSearches},
			fmt.Sprintf("Search limit of %d reached; answering with the sources gathered so far.", cfg.MaxSearches))
	}
	if !registered || !choice.Contains(call.Name) {
		return r.recoverWithFinal(&core.ToolArgumentError{
			Tool: call.Name,
			Err:  fmt.Errorf("tool not permitted on this step"),
		})
	}

	if err := session.SetState(core.StateActing); err != nil {
		return err
	}

	callID := fmt.Sprintf("%d-action", session.Iteration)
	result, err := r.executeCall(ctx, call, callID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var argErr *core.ToolArgumentError
		if errors.As(err, &argErr) {
			return r.recoverWithFinal(argErr)
		}
		// Tool-level failure: fold the error text into the result and let
		// the next reasoning step see it, up to the consecutive budget.
		r.toolFailures++
		r.logger.Warn("agent.tool.failed", "tool", call.Name, "failures", r.toolFailures, "error", err.Error())
		if r.toolFailures >= cfg.MaxToolFailures {
			return r.forceFinal(&core.ToolExecutionError{Tool: call.Name, Err: err},
				fmt.Sprintf("Tool %s failed %d times in a row; stopping with the information gathered so far.", call.Name, r.toolFailures))
		}
		result = &tool.Result{Content: fmt.Sprintf("Tool %s failed: %v", call.Name, err)}
	} else {
		r.toolFailures = 0
	}

	assistant := core.AssistantToolCallMessage(callID, call.Name, call.Arguments)
	assistant.Content = r.pendingStep
	session.Append(assistant, core.ToolResultMessage(callID, result.Content))
	r.applyStateDeltas(selected, result)
	r.emitContent(result.Content)
	r.lastStepReasoning = false

	switch call.Name {
	case tool.FinalAnswerToolName:
		return r.finish()
	case tool.ClarificationToolName:
		return r.clarify(ctx, result)
	default:
		session.CompleteStep()
		return session.SetState(core.StateReasoning)
	}
}

// clarify suspends the loop on the session's gate until an external actor
// answers or the timeout fires. Iteration is not advanced while suspended.
func (r *runState) clarify(ctx context.Context, result *tool.Result) error {
	session := r.session

	questions := []string{}
	if parsed, ok := result.Data.(tool.ClarificationArgs); ok {
		questions = parsed.Questions
	}

	if err := session.SetState(core.StateClarifying); err != nil {
		return err
	}
	gate := core.NewClarificationGate(questions)
	session.SetPending(gate)

	r.logger.Info("agent.clarification.waiting", "questions", len(questions))

	answer, err := gate.Wait(ctx, r.agent.cfg.ClarificationTimeout)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation keeps the gate pending so the session can be
			// resumed by a later request.
			return ctx.Err()
		}
		session.ClearPending()
		// The client still receives a terminal frame; only the error return
		// escalates to the caller.
		_ = r.emit(stream.ErrorFrame(r.streamID, r.agent.cfg.Variant, err))
		r.fail(err)
		return err
	}

	session.ClearPending()
	session.RecordClarification()
	session.Append(core.UserMessage(answer))
	r.lastStepReasoning = false
	return session.SetState(core.StateReasoning)
}

// modelTurn streams one gateway call through the encoder, retrying once on
// gateway failure.
func (r *runState) modelTurn(ctx context.Context, choice StepChoice) (*stream.Turn, error) {
	turn, err := r.streamOnce(ctx, choice)
	if err == nil || ctx.Err() != nil {
		return turn, err
	}

	var gwErr *core.GatewayError
	if !errors.As(err, &gwErr) {
		return nil, err
	}

	r.logger.Warn("agent.gateway.retry", "error", err.Error())
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.agent.retryDelay):
	}
	return r.streamOnce(ctx, choice)
}

func (r *runState) streamOnce(ctx context.Context, choice StepChoice) (*stream.Turn, error) {
	instructions, err := r.agent.instruction.Resolve(r.session)
	if err != nil {
		return nil, &core.ConfigurationError{Reason: fmt.Sprintf("resolve instructions: %v", err)}
	}

	r.session.Truncate(r.agent.cfg.MaxHistoryMessages)

	req := model.Request{
		Instructions: instructions,
		Messages:     r.session.History(),
		Tools:        choice.Definitions(),
		Choice:       choice.ToolChoice(),
	}

	start := time.Now()
	fragments, errs := r.agent.gateway.Stream(ctx, req)
	encoder := stream.NewEncoder(r.streamID, r.agent.cfg.Variant, r.sink)
	turn, err := encoder.Encode(ctx, fragments, errs)
	if rl, ok := r.logger.(*logging.RuntimeLogger); ok {
		rl.LogGatewayCall(r.agent.gateway.Info().Name, time.Since(start), err == nil, err)
	}
	return turn, err
}

// handleTurnError distinguishes cancellation (session untouched) from
// exhausted gateway failures (session FAILED).
func (r *runState) handleTurnError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	r.fail(err)
	return err
}

// executeCall validates the call's arguments and executes the tool.
func (r *runState) executeCall(ctx context.Context, call core.ToolCall, callID string) (*tool.Result, error) {
	selected, ok := r.agent.registry.Get(call.Name)
	if !ok {
		return nil, &core.ToolArgumentError{Tool: call.Name, Err: fmt.Errorf("tool not registered")}
	}

	args, err := r.agent.registry.ParseArguments(selected, call.Arguments)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := selected.Execute(ctx, r.session, args)
	if rl, ok := r.logger.(*logging.RuntimeLogger); ok {
		rl.LogToolCall(call.Name, time.Since(start), err == nil, err)
	}
	if err != nil {
		return nil, &core.ToolExecutionError{Tool: call.Name, Err: err}
	}
	if result == nil {
		result = &tool.Result{Content: fmt.Sprintf("%s completed", call.Name)}
	}
	return result, nil
}

// applyStateDeltas folds a tool result's session-state deltas into the
// session, keeping the search counter accurate for capability accounting.
func (r *runState) applyStateDeltas(selected tool.Tool, result *tool.Result) {
	switch {
	case result.Search != nil:
		r.session.RecordSearch(*result.Search, result.Sources)
	case selected.Capability() == tool.CapabilitySearch:
		r.session.RecordSearch(core.SearchRecord{RetrievedAt: time.Now()}, result.Sources)
	case len(result.Sources) > 0:
		r.session.AddSources(result.Sources)
	}
}

// recoverWithFinal handles the recoverable error taxonomy: the loop
// synthesizes a final answer so the caller always receives a well-formed
// terminal frame, and the session ends FINISHED, not FAILED.
func (r *runState) recoverWithFinal(cause error) error {
	var answer string

	var missing *core.MissingToolCallError
	if errors.As(cause, &missing) && missing.Content != "" {
		answer = missing.Content
	} else {
		answer = fmt.Sprintf("The session could not continue normally (%v). No complete answer was produced.", cause)
	}

	r.logger.Warn("agent.recovered", "cause", cause.Error())
	return r.synthesizeFinal(answer)
}

// forceFinal terminates on a resource ceiling with a synthetic final answer
// summarizing the cap hit.
func (r *runState) forceFinal(cause error, answer string) error {
	r.logger.Info("agent.limit", "cause", cause.Error())
	return r.synthesizeFinal(answer)
}

func (r *runState) synthesizeFinal(answer string) error {
	r.session.Append(core.Message{Role: core.RoleAssistant, Content: answer})
	r.emitContent(answer)
	return r.finish()
}

func (r *runState) finish() error {
	if err := r.emit(stream.TerminalFrame(r.streamID, r.agent.cfg.Variant, "stop")); err != nil {
		return err
	}
	return r.session.SetState(core.StateFinished)
}

func (r *runState) fail(cause error) {
	r.logger.Error("agent.failed", "error", cause.Error())
	_ = r.session.SetState(core.StateFailed)
}

func (r *runState) emitContent(text string) {
	if text == "" {
		return
	}
	_ = r.emit(stream.ContentFrame(r.streamID, r.agent.cfg.Variant, text))
}

func (r *runState) emit(frame stream.Frame) error {
	return r.sink.Send(frame)
}

// completeCall returns the named call from the turn when its arguments
// parse as complete JSON.
func completeCall(turn *stream.Turn, name string) (core.ToolCall, bool) {
	for _, call := range turn.ToolCalls {
		if call.Name != name {
			continue
		}
		if call.Arguments == "" || json.Valid([]byte(call.Arguments)) {
			return call, true
		}
	}
	return core.ToolCall{}, false
}

// ProvideClarification resolves the session's pending clarification gate.
// It returns core.ErrNotClarifying when the session is not suspended on one.
func ProvideClarification(session *core.Session, answer string) error {
	if session.CurrentState() != core.StateClarifying {
		return core.ErrNotClarifying
	}
	gate := session.Pending()
	if gate == nil {
		return core.ErrNotClarifying
	}
	return gate.Resolve(answer)
}
