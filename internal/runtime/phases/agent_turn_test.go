package phases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	narrative string
	usage     TurnUsage
	sessionID string
	err       error
	onExecute func(toolCtx *ToolContext)
}

func (s stubProvider) ExecuteTurn(_ context.Context, _ AgentContext, toolCtx *ToolContext, _ []AgentTool) (TurnOutput, error) {
	if s.err != nil {
		return TurnOutput{}, s.err
	}
	if s.onExecute != nil {
		s.onExecute(toolCtx)
	}
	return TurnOutput{Narrative: s.narrative, SessionID: s.sessionID, Usage: s.usage}, nil
}

func newAgentTurnTestContext(agents map[domain.AgentName]domain.AgentSnapshot, toAct map[domain.AgentName]struct{}) runtime.TickContext {
	world := domain.WorldSnapshot{
		Locations: map[domain.LocationID]domain.Location{
			"cabin": {ID: "cabin", Connections: []domain.LocationID{"garden"}},
		},
	}
	tc := runtime.NewTickContext(1, time.Now(), domain.TimeSnapshot{}, world, agents, nil, nil, nil)
	return tc.WithAgentsToAct(toAct)
}

func TestAgentTurnPhase_RecordsNarrativeAndMarksActed(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{"Sage": {Name: "Sage", Location: "cabin"}}
	tc := newAgentTurnTestContext(agents, map[domain.AgentName]struct{}{"Sage": {}})

	provider := stubProvider{narrative: "I tended the garden.", usage: TurnUsage{InputTokens: 100, SessionTokens: 500}}
	phase := NewAgentTurnPhase(provider, nil)

	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	_, acted := result.AgentsActed["Sage"]
	assert.True(t, acted)
	assert.Equal(t, "I tended the garden.", result.TurnResults["Sage"].Narrative)

	var sawTokenUsage, sawLastActive bool
	for _, e := range result.Effects {
		switch e.(type) {
		case domain.RecordAgentTokenUsageEffect:
			sawTokenUsage = true
		case domain.UpdateLastActiveTickEffect:
			sawLastActive = true
		}
	}
	assert.True(t, sawTokenUsage)
	assert.True(t, sawLastActive)
}

func TestAgentTurnPhase_EmitsCriticalCompactionAboveThreshold(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{"Sage": {Name: "Sage", Location: "cabin"}}
	tc := newAgentTurnTestContext(agents, map[domain.AgentName]struct{}{"Sage": {}})

	provider := stubProvider{narrative: "...", usage: TurnUsage{SessionTokens: 160_000}}
	phase := NewAgentTurnPhase(provider, nil)

	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	var found domain.ShouldCompactEffect
	for _, e := range result.Effects {
		if sc, ok := e.(domain.ShouldCompactEffect); ok {
			found = sc
		}
	}
	assert.True(t, found.Critical)
}

func TestAgentTurnPhase_ToolCallEffectsFoldIn(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{
		"Sage": {Name: "Sage", Location: "cabin"}, "River": {Name: "River", Location: "cabin"},
	}
	tc := newAgentTurnTestContext(agents, map[domain.AgentName]struct{}{"Sage": {}})

	provider := stubProvider{
		narrative: "I invited River to talk.",
		onExecute: func(toolCtx *ToolContext) {
			toolCtx.AddEffect(domain.InviteToConversationEffect{Inviter: "Sage", Invitee: "River", Location: "cabin", Privacy: domain.PrivacyPrivate})
		},
	}
	phase := NewAgentTurnPhase(provider, nil)

	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	var sawInvite bool
	for _, e := range result.Effects {
		if _, ok := e.(domain.InviteToConversationEffect); ok {
			sawInvite = true
		}
	}
	assert.True(t, sawInvite)
}

func TestAgentTurnPhase_ProviderErrorSkipsAgentButDoesNotAbortPhase(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{"Sage": {Name: "Sage", Location: "cabin"}}
	tc := newAgentTurnTestContext(agents, map[domain.AgentName]struct{}{"Sage": {}})

	provider := stubProvider{err: errors.New("model unavailable")}
	phase := NewAgentTurnPhase(provider, nil)

	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)
	assert.Empty(t, result.AgentsActed)
	assert.Empty(t, result.Effects)
}
