package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/model"
	"github.com/sgrlabs/sgragent/stream"
	"github.com/sgrlabs/sgragent/tool"
)

const (
	reasoningArgs = `{"reasoning_steps":["inspect the task","plan the next action"],` +
		`"current_situation":"under way","plan_status":"on track","enough_data":false,` +
		`"remaining_steps":["act"],"task_completed":false}`
	finalAnswerArgs = `{"reasoning":"done","completed_steps":["searched"],"answer":"The answer is 42."}`
	clarifyArgs     = `{"reasoning":"ambiguous","unclear_terms":["the report"],"questions":["Which report?"]}`
)

type frameSink struct {
	mu     sync.Mutex
	frames []stream.Frame
}

func (s *frameSink) Send(f stream.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *frameSink) all() []stream.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stream.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *frameSink) contentText() string {
	var b strings.Builder
	for _, f := range s.all() {
		b.WriteString(f.Choices[0].Delta.Content)
	}
	return b.String()
}

type searchArgs struct {
	Query string `json:"query" description:"Search query"`
}

func newSearchTool(fail *int) tool.Tool {
	return tool.NewFunctionToolFromStruct("web_search", "Search the web", searchArgs{}, tool.CapabilitySearch,
		func(ctx context.Context, s *core.Session, args map[string]any) (*tool.Result, error) {
			if fail != nil && *fail > 0 {
				*fail--
				return nil, errors.New("upstream unavailable")
			}
			query, _ := args["query"].(string)
			return &tool.Result{
				Content: fmt.Sprintf("results for %q", query),
				Search:  &core.SearchRecord{Query: query, RetrievedAt: time.Now(), ResultRefs: []string{"src-1"}},
				Sources: []core.Source{{ID: "src-1", URI: "https://example.com/a", Title: "A"}},
			}, nil
		})
}

func newTestRegistry(t *testing.T, extra ...tool.Tool) *tool.Registry {
	t.Helper()
	tools := append([]tool.Tool{
		tool.NewReasoningTool(),
		tool.NewClarificationTool(),
		tool.NewFinalAnswerTool(),
	}, extra...)
	registry, err := tool.NewRegistry(tools...)
	require.NoError(t, err)
	return registry
}

func newTestAgent(t *testing.T, cfg Config, gw model.Gateway, extra ...tool.Tool) *Agent {
	t.Helper()
	a, err := New(cfg, gw, newTestRegistry(t, extra...))
	require.NoError(t, err)
	a.retryDelay = time.Millisecond
	return a
}

func reasoningTurn(iter int) []model.Fragment {
	return []model.Fragment{
		model.ToolCallFragment(0, fmt.Sprintf("llm-%d-r", iter), "reasoning", reasoningArgs),
		model.CompletionFragment("tool_calls"),
	}
}

func actionTurn(name, args string) []model.Fragment {
	return []model.Fragment{
		model.ToolCallFragment(0, "llm-a", name, args),
		model.CompletionFragment("tool_calls"),
	}
}

func runSession(t *testing.T, a *Agent, gw *model.MockGateway) (*core.Session, *frameSink, error) {
	t.Helper()
	session := core.NewSession("s1", "/tmp")
	session.Append(core.UserMessage("What is the answer?"))
	sink := &frameSink{}
	err := a.Run(context.Background(), session, sink)
	return session, sink, err
}

func TestRunReasonActsThenFinishes(t *testing.T) {
	gw := model.NewMockGateway()
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("final_answer", finalAnswerArgs)...)

	a := newTestAgent(t, ResearchConfig(), gw)
	session, sink, err := runSession(t, a, gw)
	require.NoError(t, err)

	assert.Equal(t, core.StateFinished, session.CurrentState())
	assert.Contains(t, sink.contentText(), "The answer is 42.")

	// first call forces the reasoning tool, second requires an action
	calls := gw.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, model.ToolChoiceForced, calls[0].Choice.Mode)
	assert.Equal(t, "reasoning", calls[0].Choice.Tool)
	assert.Equal(t, model.ToolChoiceRequired, calls[1].Choice.Mode)

	// reasoning is not offered on the action step
	for _, def := range calls[1].Tools {
		assert.NotEqual(t, "reasoning", def.Name)
	}

	// synthetic call ids keyed by iteration
	history := session.History()
	var ids []string
	for _, msg := range history {
		for _, tc := range msg.ToolCalls {
			ids = append(ids, tc.ID)
		}
	}
	assert.Equal(t, []string{"0-reasoning", "0-action"}, ids)

	// the action message carries the reasoning's most immediate next step
	for _, msg := range history {
		for _, tc := range msg.ToolCalls {
			if tc.ID == "0-action" {
				assert.Equal(t, "act", msg.Content)
			}
		}
	}
}

func TestRunMultipleIterations(t *testing.T) {
	gw := model.NewMockGateway()
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("web_search", `{"query":"go"}`)...)
	gw.Enqueue(reasoningTurn(1)...)
	gw.Enqueue(actionTurn("final_answer", finalAnswerArgs)...)

	a := newTestAgent(t, ResearchConfig(), gw, newSearchTool(nil))
	session, _, err := runSession(t, a, gw)
	require.NoError(t, err)

	assert.Equal(t, core.StateFinished, session.CurrentState())
	assert.Equal(t, 1, session.Iteration)
	assert.Equal(t, 1, session.SearchCount)
	require.Len(t, session.Sources, 1)
	assert.Equal(t, "https://example.com/a", session.Sources[0].URI)
}

func TestPlainTextReasoningBecomesFinalAnswer(t *testing.T) {
	gw := model.NewMockGateway()
	gw.Enqueue(
		model.ContentFragment("I cannot use tools, but the answer is 7."),
		model.CompletionFragment("stop"),
	)

	a := newTestAgent(t, ResearchConfig(), gw)
	session, sink, err := runSession(t, a, gw)
	require.NoError(t, err)

	assert.Equal(t, core.StateFinished, session.CurrentState())
	assert.Contains(t, sink.contentText(), "the answer is 7")

	frames := sink.all()
	last := frames[len(frames)-1]
	require.NotNil(t, last.Choices[0].FinishReason)
}

func TestMissingToolCallSynthesizesExplanation(t *testing.T) {
	gw := model.NewMockGateway()
	gw.Enqueue(model.CompletionFragment("stop")) // no content, no tool call

	a := newTestAgent(t, ResearchConfig(), gw)
	session, sink, err := runSession(t, a, gw)
	require.NoError(t, err)

	assert.Equal(t, core.StateFinished, session.CurrentState())
	assert.NotEmpty(t, sink.contentText())
}

func TestMalformedActionArgumentsRecover(t *testing.T) {
	gw := model.NewMockGateway()
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("final_answer", `{"answer": 12}`)...) // schema violation

	a := newTestAgent(t, ResearchConfig(), gw)
	session, sink, err := runSession(t, a, gw)
	require.NoError(t, err)

	assert.Equal(t, core.StateFinished, session.CurrentState())
	assert.NotEmpty(t, sink.contentText())
}

func TestIterationCapForcesFinalAnswer(t *testing.T) {
	cfg := ResearchConfig()
	cfg.MaxIterations = 1

	gw := model.NewMockGateway()
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("web_search", `{"query":"go"}`)...)

	a := newTestAgent(t, cfg, gw, newSearchTool(nil))
	session, sink, err := runSession(t, a, gw)
	require.NoError(t, err)

	assert.Equal(t, core.StateFinished, session.CurrentState())
	assert.Equal(t, 1, session.Iteration)
	assert.Contains(t, sink.contentText(), "Iteration limit")
	assert.Len(t, gw.Calls(), 2) // no third model call
}

func TestSearchCapExcludesSearchTool(t *testing.T) {
	cfg := ResearchConfig()
	cfg.MaxSearches = 1

	gw := model.NewMockGateway()
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("web_search", `{"query":"go"}`)...)
	gw.Enqueue(reasoningTurn(1)...)
	gw.Enqueue(actionTurn("final_answer", finalAnswerArgs)...)

	a := newTestAgent(t, cfg, gw, newSearchTool(nil))
	session, _, err := runSession(t, a, gw)
	require.NoError(t, err)
	assert.Equal(t, core.StateFinished, session.CurrentState())

	calls := gw.Calls()
	require.Len(t, calls, 4)
	for _, def := range calls[3].Tools {
		assert.NotEqual(t, "web_search", def.Name, "search tool must be excluded at the cap")
	}
}

func TestSearchCapForcedActRaisesLimit(t *testing.T) {
	cfg := ResearchConfig()
	cfg.MaxSearches = 1

	gw := model.NewMockGateway()
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("web_search", `{"query":"go"}`)...)
	gw.Enqueue(reasoningTurn(1)...)
	gw.Enqueue(actionTurn("web_search", `{"query":"again"}`)...) // model ignores the constraint

	a := newTestAgent(t, cfg, gw, newSearchTool(nil))
	session, sink, err := runSession(t, a, gw)
	require.NoError(t, err)

	assert.Equal(t, core.StateFinished, session.CurrentState())
	assert.Equal(t, 1, session.SearchCount)
	assert.Contains(t, sink.contentText(), "Search limit")
}

func TestToolFailureFoldedIntoConversation(t *testing.T) {
	failures := 1
	gw := model.NewMockGateway()
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("web_search", `{"query":"go"}`)...)
	gw.Enqueue(reasoningTurn(1)...)
	gw.Enqueue(actionTurn("final_answer", finalAnswerArgs)...)

	a := newTestAgent(t, ResearchConfig(), gw, newSearchTool(&failures))
	session, _, err := runSession(t, a, gw)
	require.NoError(t, err)

	assert.Equal(t, core.StateFinished, session.CurrentState())

	folded := false
	for _, msg := range session.History() {
		if msg.IsToolResult() && strings.Contains(msg.Content, "failed") {
			folded = true
		}
	}
	assert.True(t, folded, "tool error text must be fed back into the conversation")
}

func TestToolFailureBudgetForcesTermination(t *testing.T) {
	cfg := ResearchConfig()
	cfg.MaxToolFailures = 1
	failures := 5

	gw := model.NewMockGateway()
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("web_search", `{"query":"go"}`)...)

	a := newTestAgent(t, cfg, gw, newSearchTool(&failures))
	session, sink, err := runSession(t, a, gw)
	require.NoError(t, err)

	assert.Equal(t, core.StateFinished, session.CurrentState())
	assert.Contains(t, sink.contentText(), "failed")
}

func TestClarificationSuspendsAndResumes(t *testing.T) {
	gw := model.NewMockGateway()
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("clarification", clarifyArgs)...)
	gw.Enqueue(reasoningTurn(1)...)
	gw.Enqueue(actionTurn("final_answer", finalAnswerArgs)...)

	a := newTestAgent(t, ResearchConfig(), gw)
	session := core.NewSession("s1", "/tmp")
	session.Append(core.UserMessage("Summarize the report"))
	sink := &frameSink{}

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), session, sink) }()

	require.Eventually(t, func() bool {
		return session.CurrentState() == core.StateClarifying
	}, time.Second, 5*time.Millisecond)

	gate := session.Pending()
	require.NotNil(t, gate)
	assert.Equal(t, []string{"Which report?"}, gate.Questions())

	require.NoError(t, ProvideClarification(session, "the Q2 revenue report"))
	require.NoError(t, <-done)

	assert.Equal(t, core.StateFinished, session.CurrentState())
	assert.Equal(t, 1, session.ClarificationCount)
	assert.Nil(t, session.Pending())

	answered := false
	for _, msg := range session.History() {
		if msg.Role == core.RoleUser && msg.Content == "the Q2 revenue report" {
			answered = true
		}
	}
	assert.True(t, answered)
}

func TestClarificationTimeoutFailsSession(t *testing.T) {
	cfg := ResearchConfig()
	cfg.ClarificationTimeout = 10 * time.Millisecond

	gw := model.NewMockGateway()
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("clarification", clarifyArgs)...)

	a := newTestAgent(t, cfg, gw)
	session, sink, err := runSession(t, a, gw)
	require.Error(t, err)

	var timeoutErr *core.ClarificationTimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, core.StateFailed, session.CurrentState())

	// even on timeout the stream closes with a terminal error frame
	frames := sink.all()
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, "error", *last.Choices[0].FinishReason)
	require.NotNil(t, last.Error)
	assert.Contains(t, last.Error.Message, "clarification")
}

func TestProvideClarificationOnIdleSession(t *testing.T) {
	session := core.NewSession("s1", "/tmp")
	err := ProvideClarification(session, "answer")
	assert.ErrorIs(t, err, core.ErrNotClarifying)
}

func TestGatewayRetrySucceeds(t *testing.T) {
	gw := model.NewMockGateway()
	gw.EnqueueError(&core.GatewayError{Provider: "mock", Err: errors.New("transient")})
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("final_answer", finalAnswerArgs)...)

	a := newTestAgent(t, ResearchConfig(), gw)
	session, _, err := runSession(t, a, gw)
	require.NoError(t, err)
	assert.Equal(t, core.StateFinished, session.CurrentState())
}

func TestGatewayExhaustedRetriesFailSession(t *testing.T) {
	gw := model.NewMockGateway()
	gw.EnqueueError(&core.GatewayError{Provider: "mock", Err: errors.New("down")})
	gw.EnqueueError(&core.GatewayError{Provider: "mock", Err: errors.New("still down")})

	a := newTestAgent(t, ResearchConfig(), gw)
	session, _, err := runSession(t, a, gw)
	require.Error(t, err)

	var gwErr *core.GatewayError
	assert.ErrorAs(t, err, &gwErr)
	assert.Equal(t, core.StateFailed, session.CurrentState())
}

func TestCancellationLeavesSessionUntouched(t *testing.T) {
	gw := model.NewMockGateway()
	gw.Enqueue(reasoningTurn(0)...)

	a := newTestAgent(t, ResearchConfig(), gw)
	session := core.NewSession("s1", "/tmp")
	session.Append(core.UserMessage("hi"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Run(ctx, session, &frameSink{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, session.Iteration)
	assert.False(t, core.IsTerminal(session.CurrentState()))
}

func TestCancellationDuringToolCallResumes(t *testing.T) {
	gw := model.NewMockGateway()
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("web_search", `{"query":"go"}`)...)

	entered := make(chan struct{})
	blocking := tool.NewFunctionToolFromStruct("web_search", "Search the web", searchArgs{}, tool.CapabilitySearch,
		func(ctx context.Context, s *core.Session, args map[string]any) (*tool.Result, error) {
			close(entered)
			<-ctx.Done()
			return nil, ctx.Err()
		})

	a := newTestAgent(t, ResearchConfig(), gw, blocking)
	session := core.NewSession("s1", "/tmp")
	session.Append(core.UserMessage("What is the answer?"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, session, &frameSink{}) }()

	<-entered
	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	// the aborted step leaves no mid-step state behind
	assert.Equal(t, core.StateReasoning, session.CurrentState())
	assert.Equal(t, 0, session.Iteration)

	// a later run picks the session up and completes
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("final_answer", finalAnswerArgs)...)
	require.NoError(t, a.Run(context.Background(), session, &frameSink{}))
	assert.Equal(t, core.StateFinished, session.CurrentState())
}

// stallSecondTurnGateway replays the mock's scripts except for its second
// call, which blocks until the context is cancelled.
type stallSecondTurnGateway struct {
	*model.MockGateway
	calls   int
	entered chan struct{}
}

func (g *stallSecondTurnGateway) Stream(ctx context.Context, req model.Request) (<-chan model.Fragment, <-chan error) {
	g.calls++
	if g.calls == 2 {
		close(g.entered)
		out := make(chan model.Fragment)
		errCh := make(chan error, 1)
		go func() {
			<-ctx.Done()
			errCh <- ctx.Err()
			close(out)
			close(errCh)
		}()
		return out, errCh
	}
	return g.MockGateway.Stream(ctx, req)
}

func TestCancellationDuringActionTurnResumes(t *testing.T) {
	inner := model.NewMockGateway()
	inner.Enqueue(reasoningTurn(0)...)
	gw := &stallSecondTurnGateway{MockGateway: inner, entered: make(chan struct{})}

	a := newTestAgent(t, ResearchConfig(), gw)
	session := core.NewSession("s1", "/tmp")
	session.Append(core.UserMessage("What is the answer?"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, session, &frameSink{}) }()

	<-gw.entered
	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, core.StateReasoning, session.CurrentState())
	assert.Equal(t, 0, session.Iteration)

	inner.Enqueue(reasoningTurn(0)...)
	inner.Enqueue(actionTurn("final_answer", finalAnswerArgs)...)
	require.NoError(t, a.Run(context.Background(), session, &frameSink{}))
	assert.Equal(t, core.StateFinished, session.CurrentState())
}

func TestRunRecoversStaleMidStepState(t *testing.T) {
	gw := model.NewMockGateway()
	gw.Enqueue(reasoningTurn(0)...)
	gw.Enqueue(actionTurn("final_answer", finalAnswerArgs)...)

	// a snapshot persisted mid-step, as an older runtime could have stored it
	session := core.NewSession("s1", "/tmp")
	session.Append(core.UserMessage("What is the answer?"))
	require.NoError(t, session.SetState(core.StateReasoning))
	require.NoError(t, session.SetState(core.StateSelecting))
	require.NoError(t, session.SetState(core.StateActing))

	a := newTestAgent(t, ResearchConfig(), gw)
	require.NoError(t, a.Run(context.Background(), session, &frameSink{}))
	assert.Equal(t, core.StateFinished, session.CurrentState())
}

func TestNewValidatesConfig(t *testing.T) {
	gw := model.NewMockGateway()

	_, err := New(Config{}, gw, newTestRegistry(t))
	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = New(ResearchConfig(), nil, newTestRegistry(t))
	assert.ErrorAs(t, err, &cfgErr)
}
