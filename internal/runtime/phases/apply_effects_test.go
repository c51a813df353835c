package phases

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime"
	"github.com/codeready-toolchain/tarsy/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompactionService struct {
	postTokens int
	err        error
	calls      []domain.AgentName
}

func (s *stubCompactionService) ExecuteCompact(_ context.Context, agent domain.AgentSnapshot, _ bool) (int, error) {
	s.calls = append(s.calls, agent.Name)
	return s.postTokens, s.err
}

func newApplyEffectsTestContext(agents map[domain.AgentName]domain.AgentSnapshot, convs map[domain.ConversationID]domain.Conversation, invites map[domain.AgentName]domain.Invitation) runtime.TickContext {
	world := domain.WorldSnapshot{
		Tick: 5,
		Locations: map[domain.LocationID]domain.Location{
			"cabin": {ID: "cabin", Connections: []domain.LocationID{"garden"}},
			"garden": {ID: "garden", Connections: []domain.LocationID{"cabin"}},
		},
		AgentLocations: map[domain.AgentName]domain.LocationID{},
	}
	for name, a := range agents {
		world.AgentLocations[name] = a.Location
	}
	return runtime.NewTickContext(5, time.Now(), domain.TimeSnapshot{}, world, agents, convs, invites, nil)
}

func withFixedIDGenerator(id string) func() string {
	return func() string { return id }
}

func TestApplyEffectsPhase_MoveAgentUpdatesWorldAndAgent(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{"Sage": {Name: "Sage", Location: "cabin"}}
	tc := newApplyEffectsTestContext(agents, nil, nil)
	tc = tc.WithEffect(domain.MoveAgentEffect{Agent: "Sage", FromLocation: "cabin", ToLocation: "garden"})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	agent, _ := result.GetAgent("Sage")
	assert.Equal(t, domain.LocationID("garden"), agent.Location)
	assert.Equal(t, domain.LocationID("garden"), result.World.AgentLocations["Sage"])

	var found bool
	for _, e := range result.Events {
		if moved, ok := e.(domain.AgentMovedEvent); ok {
			found = true
			assert.Equal(t, domain.LocationID("garden"), moved.ToLocation)
		}
	}
	assert.True(t, found)
}

func TestApplyEffectsPhase_MoveAgentSkipsUnknownAgent(t *testing.T) {
	tc := newApplyEffectsTestContext(nil, nil, nil)
	tc = tc.WithEffect(domain.MoveAgentEffect{Agent: "Ghost", FromLocation: "cabin", ToLocation: "garden"})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)
	assert.Empty(t, result.Events)
}

func TestApplyEffectsPhase_AgentSleepCancelsScheduledEvents(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{"Sage": {Name: "Sage", Location: "cabin"}}
	tc := newApplyEffectsTestContext(agents, nil, nil)
	tc = tc.WithEffect(domain.AgentSleepEffect{Agent: "Sage"})

	sched := scheduler.New()
	sched.ScheduleAgentTurn("Sage", "cabin", time.Now().Add(time.Hour))

	phase := NewApplyEffectsPhase(sched, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	agent, _ := result.GetAgent("Sage")
	assert.True(t, agent.IsSleeping)
	assert.False(t, sched.HasPendingEvent("Sage"))
}

func TestApplyEffectsPhase_AgentWakeReschedulesTurn(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{
		"Sage": {Name: "Sage", Location: "cabin", IsSleeping: true},
	}
	tc := newApplyEffectsTestContext(agents, nil, nil)
	tc = tc.WithEffect(domain.AgentWakeEffect{Agent: "Sage", Reason: "morning"})

	sched := scheduler.New()
	phase := NewApplyEffectsPhase(sched, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	agent, _ := result.GetAgent("Sage")
	assert.False(t, agent.IsSleeping)
	assert.True(t, sched.HasPendingAgentTurn("Sage"))
}

func TestApplyEffectsPhase_InviteMintsNewConversationAndSchedulesResponse(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{
		"Sage": {Name: "Sage", Location: "cabin"}, "River": {Name: "River", Location: "cabin"},
	}
	tc := newApplyEffectsTestContext(agents, nil, nil)
	tc = tc.WithEffect(domain.InviteToConversationEffect{Inviter: "Sage", Invitee: "River", Location: "cabin", Privacy: domain.PrivacyPrivate})

	sched := scheduler.New()
	phase := NewApplyEffectsPhase(sched, nil)
	phase.SetIDGenerator(withFixedIDGenerator("conv-abc"))

	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	invite, ok := result.PendingInvites["River"]
	require.True(t, ok)
	assert.Equal(t, domain.ConversationID("conv-abc"), invite.ConversationID)
	assert.Equal(t, 7, invite.ExpiresAtTick)
	assert.True(t, sched.HasPendingInviteResponse("River"))
}

func TestApplyEffectsPhase_InviteSkipsWhenInviteeAlreadyPending(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{
		"Sage": {Name: "Sage", Location: "cabin"}, "River": {Name: "River", Location: "cabin"}, "Bram": {Name: "Bram", Location: "cabin"},
	}
	existing := domain.Invitation{ConversationID: "conv-1", Inviter: "Bram", Invitee: "River", Location: "cabin", ExpiresAtTick: 10}
	tc := newApplyEffectsTestContext(agents, nil, map[domain.AgentName]domain.Invitation{"River": existing})
	tc = tc.WithEffect(domain.InviteToConversationEffect{Inviter: "Sage", Invitee: "River", Location: "cabin", Privacy: domain.PrivacyPublic})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	assert.Equal(t, existing, result.PendingInvites["River"])
}

func TestApplyEffectsPhase_AcceptInviteStartsNewConversation(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{
		"Sage": {Name: "Sage", Location: "cabin"}, "River": {Name: "River", Location: "cabin"},
	}
	invite := domain.Invitation{ConversationID: "conv-1", Inviter: "Sage", Invitee: "River", Location: "cabin", Privacy: domain.PrivacyPrivate, ExpiresAtTick: 10}
	tc := newApplyEffectsTestContext(agents, nil, map[domain.AgentName]domain.Invitation{"River": invite})
	tc = tc.WithEffect(domain.AcceptInviteEffect{Agent: "River", ConversationID: "conv-1"})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	conv, ok := result.GetConversation("conv-1")
	require.True(t, ok)
	assert.True(t, conv.HasParticipant("Sage"))
	assert.True(t, conv.HasParticipant("River"))
	_, stillPending := result.PendingInvites["River"]
	assert.False(t, stillPending)

	var sawStarted bool
	for _, e := range result.Events {
		if _, ok := e.(domain.ConversationStartedEvent); ok {
			sawStarted = true
		}
	}
	assert.True(t, sawStarted)
}

func TestApplyEffectsPhase_AcceptInviteJoinsExistingConversation(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{
		"Sage": {Name: "Sage", Location: "cabin"}, "River": {Name: "River", Location: "cabin"}, "Bram": {Name: "Bram", Location: "cabin"},
	}
	conv := domain.Conversation{ID: "conv-1", Location: "cabin", Privacy: domain.PrivacyPublic, Participants: map[domain.AgentName]struct{}{"Sage": {}}}
	invite := domain.Invitation{ConversationID: "conv-1", Inviter: "Sage", Invitee: "Bram", Location: "cabin", ExpiresAtTick: 10}
	tc := newApplyEffectsTestContext(agents, map[domain.ConversationID]domain.Conversation{"conv-1": conv}, map[domain.AgentName]domain.Invitation{"Bram": invite})
	tc = tc.WithEffect(domain.AcceptInviteEffect{Agent: "Bram", ConversationID: "conv-1"})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	updated, ok := result.GetConversation("conv-1")
	require.True(t, ok)
	assert.True(t, updated.HasParticipant("Bram"))

	var sawJoined bool
	for _, e := range result.Events {
		if _, ok := e.(domain.ConversationJoinedEvent); ok {
			sawJoined = true
		}
	}
	assert.True(t, sawJoined)
}

func TestApplyEffectsPhase_DeclineInviteRemovesPending(t *testing.T) {
	invite := domain.Invitation{ConversationID: "conv-1", Inviter: "Sage", Invitee: "River", ExpiresAtTick: 10}
	tc := newApplyEffectsTestContext(nil, nil, map[domain.AgentName]domain.Invitation{"River": invite})
	tc = tc.WithEffect(domain.DeclineInviteEffect{Agent: "River"})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	_, ok := result.PendingInvites["River"]
	assert.False(t, ok)
}

func TestApplyEffectsPhase_ExpiredInvitesSweptAtTickEnd(t *testing.T) {
	expired := domain.Invitation{ConversationID: "conv-1", Inviter: "Sage", Invitee: "River", ExpiresAtTick: 5}
	stillValid := domain.Invitation{ConversationID: "conv-2", Inviter: "Bram", Invitee: "Wren", ExpiresAtTick: 20}
	tc := newApplyEffectsTestContext(nil, nil, map[domain.AgentName]domain.Invitation{"River": expired, "Wren": stillValid})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	_, riverPending := result.PendingInvites["River"]
	_, wrenPending := result.PendingInvites["Wren"]
	assert.False(t, riverPending)
	assert.True(t, wrenPending)

	var sawExpired bool
	for _, e := range result.Events {
		if ev, ok := e.(domain.ConversationInviteExpiredEvent); ok && ev.Invitee == "River" {
			sawExpired = true
		}
	}
	assert.True(t, sawExpired)
}

func TestApplyEffectsPhase_JoinConversationRejectsPrivate(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{"Wren": {Name: "Wren", Location: "cabin"}}
	conv := domain.Conversation{ID: "conv-1", Location: "cabin", Privacy: domain.PrivacyPrivate, Participants: map[domain.AgentName]struct{}{"Sage": {}, "River": {}}}
	tc := newApplyEffectsTestContext(agents, map[domain.ConversationID]domain.Conversation{"conv-1": conv}, nil)
	tc = tc.WithEffect(domain.JoinConversationEffect{Agent: "Wren", ConversationID: "conv-1"})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	updated, _ := result.GetConversation("conv-1")
	assert.False(t, updated.HasParticipant("Wren"))
}

func TestApplyEffectsPhase_LeaveConversationEndsTwoPersonAndEmitsUnseenEnding(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{
		"Sage": {Name: "Sage", Location: "cabin"}, "River": {Name: "River", Location: "cabin"},
	}
	conv := domain.Conversation{ID: "conv-1", Location: "cabin", Participants: map[domain.AgentName]struct{}{"Sage": {}, "River": {}}}
	tc := newApplyEffectsTestContext(agents, map[domain.ConversationID]domain.Conversation{"conv-1": conv}, nil)
	farewell := "I have to go now."
	tc = tc.WithEffect(domain.LeaveConversationEffect{Agent: "Sage", ConversationID: "conv-1", LastMessage: &farewell})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	_, stillExists := result.GetConversation("conv-1")
	assert.False(t, stillExists)

	var sawEnded, sawUnseen, sawDeparture bool
	for _, e := range result.Events {
		switch ev := e.(type) {
		case domain.ConversationEndedEvent:
			sawEnded = true
		case domain.ConversationEndingUnseenEvent:
			sawUnseen = true
			assert.Equal(t, domain.AgentName("River"), ev.Agent)
			assert.Equal(t, domain.AgentName("Sage"), ev.OtherParticipant)
		case domain.ConversationTurnEvent:
			if ev.IsDeparture {
				sawDeparture = true
			}
		}
	}
	assert.True(t, sawEnded)
	assert.True(t, sawUnseen)
	assert.True(t, sawDeparture)
}

func TestApplyEffectsPhase_LeaveConversationContinuesWithThreeParticipants(t *testing.T) {
	conv := domain.Conversation{ID: "conv-1", Location: "cabin", Participants: map[domain.AgentName]struct{}{"Sage": {}, "River": {}, "Bram": {}}}
	tc := newApplyEffectsTestContext(nil, map[domain.ConversationID]domain.Conversation{"conv-1": conv}, nil)
	tc = tc.WithEffect(domain.LeaveConversationEffect{Agent: "Sage", ConversationID: "conv-1"})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	updated, ok := result.GetConversation("conv-1")
	require.True(t, ok)
	assert.False(t, updated.HasParticipant("Sage"))
	assert.True(t, updated.HasParticipant("River"))
}

func TestApplyEffectsPhase_MoveConversationRelocatesParticipants(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{
		"Sage": {Name: "Sage", Location: "cabin"}, "River": {Name: "River", Location: "cabin"},
	}
	conv := domain.Conversation{ID: "conv-1", Location: "cabin", Participants: map[domain.AgentName]struct{}{"Sage": {}, "River": {}}}
	tc := newApplyEffectsTestContext(agents, map[domain.ConversationID]domain.Conversation{"conv-1": conv}, nil)
	tc = tc.WithEffect(domain.MoveConversationEffect{InitiatedBy: "Sage", ConversationID: "conv-1", ToLocation: "garden"})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	updated, _ := result.GetConversation("conv-1")
	assert.Equal(t, domain.LocationID("garden"), updated.Location)

	sage, _ := result.GetAgent("Sage")
	river, _ := result.GetAgent("River")
	assert.Equal(t, domain.LocationID("garden"), sage.Location)
	assert.Equal(t, domain.LocationID("garden"), river.Location)
	assert.Equal(t, domain.LocationID("garden"), result.World.AgentLocations["Sage"])
}

func TestApplyEffectsPhase_AddConversationTurnClearsMatchingNextSpeaker(t *testing.T) {
	next := domain.AgentName("River")
	conv := domain.Conversation{ID: "conv-1", Location: "cabin", Participants: map[domain.AgentName]struct{}{"Sage": {}, "River": {}}, NextSpeaker: &next}
	tc := newApplyEffectsTestContext(nil, map[domain.ConversationID]domain.Conversation{"conv-1": conv}, nil)
	tc = tc.WithEffect(domain.AddConversationTurnEffect{ConversationID: "conv-1", Speaker: "River", Narrative: "Hello again."})

	sched := scheduler.New()
	phase := NewApplyEffectsPhase(sched, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	updated, _ := result.GetConversation("conv-1")
	require.Len(t, updated.History, 1)
	assert.Equal(t, "Hello again.", updated.History[0].Narrative)
	assert.Nil(t, updated.NextSpeaker)
	assert.True(t, sched.HasPendingConversationTurn("conv-1"))
}

func TestApplyEffectsPhase_SetNextSpeakerRejectsNonParticipant(t *testing.T) {
	conv := domain.Conversation{ID: "conv-1", Location: "cabin", Participants: map[domain.AgentName]struct{}{"Sage": {}, "River": {}}}
	tc := newApplyEffectsTestContext(nil, map[domain.ConversationID]domain.Conversation{"conv-1": conv}, nil)
	tc = tc.WithEffect(domain.SetNextSpeakerEffect{ConversationID: "conv-1", Speaker: "Bram"})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	updated, _ := result.GetConversation("conv-1")
	assert.Nil(t, updated.NextSpeaker)
}

func TestApplyEffectsPhase_EndConversationRemovesIt(t *testing.T) {
	conv := domain.Conversation{ID: "conv-1", Location: "cabin", Participants: map[domain.AgentName]struct{}{"Sage": {}, "River": {}}}
	tc := newApplyEffectsTestContext(nil, map[domain.ConversationID]domain.Conversation{"conv-1": conv}, nil)
	tc = tc.WithEffect(domain.EndConversationEffect{ConversationID: "conv-1", Reason: "dispersed"})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	_, ok := result.GetConversation("conv-1")
	assert.False(t, ok)
}

func TestApplyEffectsPhase_RecordAgentTokenUsageComputesSessionTokens(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{"Sage": {Name: "Sage", Location: "cabin"}}
	tc := newApplyEffectsTestContext(agents, nil, nil)
	tc = tc.WithEffect(domain.RecordAgentTokenUsageEffect{Agent: "Sage", InputTokens: 200, OutputTokens: 50, CacheReadInputTokens: 800})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	agent, _ := result.GetAgent("Sage")
	assert.Equal(t, 1000, agent.TokenUsage.SessionTokens)
	assert.Equal(t, 200, agent.TokenUsage.TotalInputTokens)
	assert.Equal(t, 1, agent.TokenUsage.TurnCount)
}

func TestApplyEffectsPhase_ChangeWeatherUpdatesWorld(t *testing.T) {
	tc := newApplyEffectsTestContext(nil, nil, nil)
	tc = tc.WithEffect(domain.ChangeWeatherEffect{Weather: domain.WeatherRainy})

	phase := NewApplyEffectsPhase(nil, nil)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	assert.Equal(t, domain.WeatherRainy, result.World.Weather)
}

func TestApplyEffectsPhase_CriticalCompactionAlwaysRuns(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{"Sage": {Name: "Sage", Location: "cabin", TokenUsage: domain.TokenUsage{SessionTokens: 160_000}}}
	tc := newApplyEffectsTestContext(agents, nil, nil)
	tc = tc.WithEffect(domain.ShouldCompactEffect{Agent: "Sage", PreTokens: 160_000, Critical: true})

	compaction := &stubCompactionService{postTokens: 2_000}
	phase := NewApplyEffectsPhase(nil, compaction)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	assert.Equal(t, []domain.AgentName{"Sage"}, compaction.calls)
	agent, _ := result.GetAgent("Sage")
	assert.Equal(t, 2_000, agent.TokenUsage.SessionTokens)

	var sawCompact bool
	for _, e := range result.Events {
		if _, ok := e.(domain.DidCompactEvent); ok {
			sawCompact = true
		}
	}
	assert.True(t, sawCompact)
}

func TestApplyEffectsPhase_NonCriticalCompactionOnlyWhenAgentSleptThisTick(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{"Sage": {Name: "Sage", Location: "cabin", TokenUsage: domain.TokenUsage{SessionTokens: 120_000}}}
	tc := newApplyEffectsTestContext(agents, nil, nil)
	tc = tc.WithEffect(domain.ShouldCompactEffect{Agent: "Sage", PreTokens: 120_000, Critical: false})

	compaction := &stubCompactionService{postTokens: 1_000}
	phase := NewApplyEffectsPhase(nil, compaction)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	assert.Empty(t, compaction.calls)
	agent, _ := result.GetAgent("Sage")
	assert.Equal(t, 120_000, agent.TokenUsage.SessionTokens)
}

func TestApplyEffectsPhase_NonCriticalCompactionRunsWhenAgentSleptThisTick(t *testing.T) {
	agents := map[domain.AgentName]domain.AgentSnapshot{"Sage": {Name: "Sage", Location: "cabin", TokenUsage: domain.TokenUsage{SessionTokens: 120_000}}}
	tc := newApplyEffectsTestContext(agents, nil, nil)
	tc = tc.WithEffect(domain.AgentSleepEffect{Agent: "Sage"})
	tc = tc.WithEffect(domain.ShouldCompactEffect{Agent: "Sage", PreTokens: 120_000, Critical: false})

	compaction := &stubCompactionService{postTokens: 1_000}
	phase := NewApplyEffectsPhase(nil, compaction)
	result, err := phase.Execute(context.Background(), tc)
	require.NoError(t, err)

	assert.Equal(t, []domain.AgentName{"Sage"}, compaction.calls)
	agent, _ := result.GetAgent("Sage")
	assert.Equal(t, 1_000, agent.TokenUsage.SessionTokens)
}
