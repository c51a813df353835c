package interpreter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	calls []ToolCall
	usage TokenUsage
	err   error
}

func (s stubClient) Interpret(_ context.Context, _ string, _ []ObservationAction) ([]ToolCall, TokenUsage, error) {
	return s.calls, s.usage, s.err
}

func TestNarrativeInterpreter_FoldsToolCallsIntoResult(t *testing.T) {
	client := stubClient{
		calls: []ToolCall{
			{Name: "report_movement", Input: map[string]any{"destination": "garden", "arrival_starts_with": "I arrived"}},
			{Name: "report_mood", Input: map[string]any{"mood": "happy"}},
			{Name: "report_action", Input: map[string]any{"description": "watered the plants"}},
		},
		usage: TokenUsage{InputTokens: 10, OutputTokens: 5},
	}

	ni := New(client, "workshop", []string{"garden", "library"}, []string{"Sage"})
	result, usage, err := ni.Interpret(context.Background(), "I walked to the garden. I arrived and watered the plants, feeling happy.")

	require.NoError(t, err)
	assert.Equal(t, "garden", result.Movement)
	assert.Equal(t, "happy", result.MoodExpressed)
	assert.Equal(t, []string{"watered the plants"}, result.ActionsDescribed)
	assert.Equal(t, TokenUsage{InputTokens: 10, OutputTokens: 5}, usage)
	assert.False(t, ni.HasError())
}

func TestNarrativeInterpreter_ClientErrorYieldsBestEffort(t *testing.T) {
	client := stubClient{err: errors.New("model unavailable")}

	ni := New(client, "workshop", nil, nil)
	result, _, err := ni.Interpret(context.Background(), "I sat quietly.")

	require.NoError(t, err)
	assert.Equal(t, "I sat quietly.", result.Narrative)
	assert.Empty(t, result.Movement)
	assert.True(t, ni.HasError())
}

func TestAgentTurnResult_ArrivalNarrative(t *testing.T) {
	result := AgentTurnResult{
		Narrative:              "I walked over. I arrived at the garden and sat down.",
		MovementNarrativeStart: "I arrived",
	}
	assert.Equal(t, "I arrived at the garden and sat down.", result.ArrivalNarrative())

	noStart := AgentTurnResult{Narrative: "Just sat around."}
	assert.Equal(t, "Just sat around.", noStart.ArrivalNarrative())
}
