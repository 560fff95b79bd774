package sgragent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgrlabs/sgragent/model"
)

const (
	reasoningArgs = `{"reasoning_steps":["read the question","answer it"],` +
		`"current_situation":"working","plan_status":"on track","enough_data":true,` +
		`"remaining_steps":["answer"],"task_completed":true}`
	finalAnswerArgs = `{"reasoning":"done","completed_steps":["reasoned"],"answer":"42"}`
)

func TestRunSync(t *testing.T) {
	gw := model.NewMockGateway()
	gw.Enqueue(
		model.ToolCallFragment(0, "r", "reasoning", reasoningArgs),
		model.CompletionFragment("tool_calls"),
	)
	gw.Enqueue(
		model.ToolCallFragment(0, "a", "final_answer", finalAnswerArgs),
		model.CompletionFragment("tool_calls"),
	)

	rt, err := New(gw)
	require.NoError(t, err)

	answer, frames, err := rt.RunSync(context.Background(), "s1", "the ultimate question")
	require.NoError(t, err)
	assert.Contains(t, answer, "42")
	assert.NotEmpty(t, frames)

	snapshot, err := rt.Runner().Session(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "the ultimate question", snapshot.History()[0].Content)
}
