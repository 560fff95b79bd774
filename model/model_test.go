package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgrlabs/sgragent/core"
)

func collect(t *testing.T, frags <-chan Fragment, errs <-chan error) ([]Fragment, error) {
	t.Helper()
	var out []Fragment
	for f := range frags {
		out = append(out, f)
	}
	select {
	case err := <-errs:
		return out, err
	case <-time.After(time.Second):
		t.Fatal("error channel not closed")
		return nil, nil
	}
}

func TestMockGatewayReplaysScripts(t *testing.T) {
	gw := NewMockGateway()
	gw.Enqueue(
		ContentFragment("Thinking"),
		ToolCallFragment(0, "0-reasoning", "reasoning", `{"plan_status":`),
		ToolCallFragment(0, "", "", `"ok"}`),
		CompletionFragment("tool_calls"),
	)

	frags, errs := gw.Stream(context.Background(), Request{
		Messages: []core.Message{core.UserMessage("hi")},
		Choice:   ForceTool("reasoning"),
	})
	got, err := collect(t, frags, errs)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "Thinking", got[0].Content)
	assert.Equal(t, "reasoning", got[1].ToolCall.Name)
	assert.Equal(t, `"ok"}`, got[2].ToolCall.Arguments)
	assert.Equal(t, "tool_calls", got[3].FinishReason)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, ToolChoiceForced, calls[0].Choice.Mode)
	assert.Equal(t, "reasoning", calls[0].Choice.Tool)
}

func TestMockGatewayFailsWithoutScript(t *testing.T) {
	gw := NewMockGateway()

	frags, errs := gw.Stream(context.Background(), Request{})
	_, err := collect(t, frags, errs)
	assert.Error(t, err)
}

func TestMockGatewayEnqueueError(t *testing.T) {
	gw := NewMockGateway()
	gw.EnqueueError(assert.AnError, ContentFragment("partial"))

	frags, errs := gw.Stream(context.Background(), Request{})
	got, err := collect(t, frags, errs)
	require.Len(t, got, 1)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestToolChoiceHelpers(t *testing.T) {
	forced := ForceTool("final_answer")
	assert.Equal(t, ToolChoiceForced, forced.Mode)
	assert.Equal(t, "final_answer", forced.Tool)

	required := RequireTool()
	assert.Equal(t, ToolChoiceRequired, required.Mode)
	assert.Empty(t, required.Tool)
}
