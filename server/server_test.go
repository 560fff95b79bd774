package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgrlabs/sgragent/agent"
	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/model"
	"github.com/sgrlabs/sgragent/runner"
	"github.com/sgrlabs/sgragent/session"
	"github.com/sgrlabs/sgragent/tool"
)

const (
	reasoningArgs = `{"reasoning_steps":["read the request","answer it"],` +
		`"current_situation":"working","plan_status":"on track","enough_data":true,` +
		`"remaining_steps":["answer"],"task_completed":true}`
	finalAnswerArgs = `{"reasoning":"done","completed_steps":["reasoned"],"answer":"Paris."}`
	clarifyArgs     = `{"reasoning":"ambiguous","unclear_terms":["capital"],"questions":["Capital of what?"]}`
)

func newTestServer(t *testing.T, gw model.Gateway) (*Server, core.SessionStore) {
	t.Helper()
	registry, err := tool.NewRegistry(
		tool.NewReasoningTool(),
		tool.NewClarificationTool(),
		tool.NewFinalAnswerTool(),
	)
	require.NoError(t, err)

	a, err := agent.New(agent.ResearchConfig(), gw, registry)
	require.NoError(t, err)

	store := session.NewInMemoryStore()
	r := runner.New(store, map[string]*agent.Agent{agent.VariantResearch: a})
	return New(r), store
}

func enqueueAnswerTurn(gw *model.MockGateway) {
	gw.Enqueue(
		model.ToolCallFragment(0, "r", "reasoning", reasoningArgs),
		model.CompletionFragment("tool_calls"),
	)
	gw.Enqueue(
		model.ToolCallFragment(0, "a", "final_answer", finalAnswerArgs),
		model.CompletionFragment("tool_calls"),
	)
}

func completionsBody(variant, content string) string {
	return `{"model":"` + variant + `","messages":[{"role":"user","content":"` + content + `"}],"stream":true}`
}

func TestCompletionsStreamsFramesAndDone(t *testing.T) {
	gw := model.NewMockGateway()
	enqueueAnswerTurn(gw)

	srv, store := newTestServer(t, gw)
	handler := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(completionsBody("research", "capital of France?")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	sessionID := rec.Header().Get(SessionHeader)
	require.NotEmpty(t, sessionID)

	body := rec.Body.String()
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
	assert.Contains(t, body, `"object":"chat.completion.chunk"`)
	assert.Contains(t, body, "Paris.")
	assert.Contains(t, body, `"finish_reason":"stop"`)

	stored, err := store.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, core.StateFinished, stored.CurrentState())
}

func TestCompletionsContinuesSessionByHeader(t *testing.T) {
	gw := model.NewMockGateway()
	enqueueAnswerTurn(gw)
	enqueueAnswerTurn(gw)

	srv, store := newTestServer(t, gw)
	handler := srv.Routes()

	first := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(completionsBody("research", "first question")))
	first.Header.Set(SessionHeader, "sess-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sess-42", rec.Header().Get(SessionHeader))

	second := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(completionsBody("research", "second question")))
	second.Header.Set(SessionHeader, "sess-42")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := store.Get(context.Background(), "sess-42")
	require.NoError(t, err)

	var userMessages []string
	for _, msg := range stored.History() {
		if msg.Role == core.RoleUser {
			userMessages = append(userMessages, msg.Content)
		}
	}
	assert.Equal(t, []string{"first question", "second question"}, userMessages)
}

func TestCompletionsRejectsUnknownVariant(t *testing.T) {
	srv, _ := newTestServer(t, model.NewMockGateway())
	handler := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(completionsBody("poetry", "hi")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompletionsRejectsEmptyUserMessage(t *testing.T) {
	srv, _ := newTestServer(t, model.NewMockGateway())
	handler := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"research","messages":[],"stream":true}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompletionsBusySession(t *testing.T) {
	gw := model.NewMockGateway()
	gw.Enqueue(
		model.ToolCallFragment(0, "r", "reasoning", reasoningArgs),
		model.CompletionFragment("tool_calls"),
	)
	gw.Enqueue(
		model.ToolCallFragment(0, "a", "clarification", clarifyArgs),
		model.CompletionFragment("tool_calls"),
	)
	enqueueAnswerTurn(gw)

	srv, _ := newTestServer(t, gw)
	handler := srv.Routes()

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
			strings.NewReader(completionsBody("research", "do the thing")))
		req.Header.Set(SessionHeader, "busy-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		done <- rec
	}()

	// wait for the run to block on clarification
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions/busy-1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return false
		}
		var snapshot core.Session
		if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
			return false
		}
		return snapshot.State == core.StateClarifying
	}, time.Second, 5*time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(completionsBody("research", "again")))
	req.Header.Set(SessionHeader, "busy-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// resolve the clarification so the first request can finish
	clarify := httptest.NewRequest(http.MethodPost, "/v1/sessions/busy-1/clarification",
		strings.NewReader(`{"answer":"that thing"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, clarify)
	assert.Equal(t, http.StatusOK, rec.Code)

	first := <-done
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), "data: [DONE]")
}

func TestClarificationEndpointErrors(t *testing.T) {
	gw := model.NewMockGateway()
	srv, store := newTestServer(t, gw)
	handler := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/missing/clarification",
		strings.NewReader(`{"answer":"x"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, store.Create(context.Background(), core.NewSession("idle", "")))
	req = httptest.NewRequest(http.MethodPost, "/v1/sessions/idle/clarification",
		strings.NewReader(`{"answer":"x"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/sessions/idle/clarification",
		strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t, model.NewMockGateway())
	handler := srv.Routes()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelWithoutActiveRun(t *testing.T) {
	srv, _ := newTestServer(t, model.NewMockGateway())
	handler := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/missing/cancel", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, model.NewMockGateway())
	handler := srv.Routes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
