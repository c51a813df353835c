package phases

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime"
	"github.com/codeready-toolchain/tarsy/internal/runtime/interpreter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInterpreterClient struct {
	calls []interpreter.ToolCall
	usage interpreter.TokenUsage
	err   error
}

func (s stubInterpreterClient) Interpret(_ context.Context, _ string, _ []interpreter.ObservationAction) ([]interpreter.ToolCall, interpreter.TokenUsage, error) {
	return s.calls, s.usage, s.err
}

func newInterpretTestContext(agents map[domain.AgentName]domain.AgentSnapshot, convs map[domain.ConversationID]domain.Conversation, narratives map[domain.AgentName]string) runtime.TickContext {
	world := domain.WorldSnapshot{
		Locations: map[domain.LocationID]domain.Location{
			"cabin": {ID: "cabin", Connections: []domain.LocationID{"garden"}},
		},
	}
	tc := runtime.NewTickContext(1, time.Now(), domain.TimeSnapshot{}, world, agents, convs, nil, nil)
	for name, narrative := range narratives {
		tc = tc.WithTurnResult(name, interpreter.AgentTurnResult{Narrative: narrative})
	}
	return tc
}

func TestInterpretPhase_MovementProducesMoveEffect(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{"Sage": {Name: "Sage", Location: "cabin"}}
	tc := newInterpretTestContext(agents, nil, map[domain.AgentName]string{"Sage": "I walked to the garden."})

	client := stubInterpreterClient{calls: []interpreter.ToolCall{
		{Name: "report_movement", Input: map[string]any{"destination": "garden"}},
	}}
	phase := NewInterpretPhase(client)

	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	var found domain.MoveAgentEffect
	for _, e := range result.Effects {
		if m, ok := e.(domain.MoveAgentEffect); ok {
			found = m
		}
	}
	assert.Equal(t, domain.LocationID("garden"), found.ToLocation)
	assert.Equal(t, domain.LocationID("cabin"), found.FromLocation)
}

func TestInterpretPhase_ConversationTurnAddedWhenParticipant(t *testing.T) {
	conv := domain.Conversation{
		ID: "conv-1", Location: "cabin",
		Participants: map[domain.AgentName]struct{}{"Sage": {}, "River": {}},
	}
	agents := map[domain.AgentName]domain.AgentSnapshot{
		"Sage": {Name: "Sage", Location: "cabin"}, "River": {Name: "River", Location: "cabin"},
	}
	convs := map[domain.ConversationID]domain.Conversation{"conv-1": conv}
	tc := newInterpretTestContext(agents, convs, map[domain.AgentName]string{"Sage": "Hello there."})

	client := stubInterpreterClient{}
	phase := NewInterpretPhase(client)

	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	var found bool
	for _, e := range result.Effects {
		if turn, ok := e.(domain.AddConversationTurnEffect); ok {
			found = true
			assert.Equal(t, domain.ConversationID("conv-1"), turn.ConversationID)
			assert.Equal(t, "Hello there.", turn.Narrative)
		}
	}
	assert.True(t, found)
}

func TestInterpretPhase_MoodEffectSkippedWhenUnchanged(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{"Sage": {Name: "Sage", Location: "cabin", Mood: "happy"}}
	tc := newInterpretTestContext(agents, nil, map[domain.AgentName]string{"Sage": "Still happy."})

	client := stubInterpreterClient{calls: []interpreter.ToolCall{
		{Name: "report_mood", Input: map[string]any{"mood": "happy"}},
	}}
	phase := NewInterpretPhase(client)

	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	for _, e := range result.Effects {
		_, ok := e.(domain.UpdateMoodEffect)
		assert.False(t, ok)
	}
}

func TestInterpretPhase_NoTurnResultsIsNoop(t *testing.T) {
	tc := runtime.NewTickContext(1, time.Now(), domain.TimeSnapshot{}, domain.WorldSnapshot{}, nil, nil, nil, nil)
	phase := NewInterpretPhase(stubInterpreterClient{})

	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)
	assert.Empty(t, result.Effects)
}
