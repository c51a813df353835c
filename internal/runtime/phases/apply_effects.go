package phases

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime"
	"github.com/codeready-toolchain/tarsy/internal/scheduler"
)

// CompactionService summarizes or truncates an agent's accumulated LLM
// session context, returning the resulting token count. Compaction may
// block on external I/O and is invoked out-of-line from the rest of
// effect application.
type CompactionService interface {
	ExecuteCompact(ctx context.Context, agent domain.AgentSnapshot, critical bool) (postTokens int, err error)
}

// ApplyEffectsPhase translates every effect accumulated this tick into
// zero or more DomainEvents, the only place effects become events.
// Effects referencing a nonexistent agent, conversation, or invite are
// skipped with a warning; the event log must never contain orphaned
// references.
type ApplyEffectsPhase struct {
	runtime.BasePhase
	scheduler  *scheduler.Scheduler
	compaction CompactionService
	idGen      func() string
}

// NewApplyEffectsPhase returns an ApplyEffectsPhase. sched and
// compaction may be nil; without a scheduler no events are re-scheduled
// as a side effect of applying them, and without a compaction service
// ShouldCompactEffects are left unresolved.
func NewApplyEffectsPhase(sched *scheduler.Scheduler, compaction CompactionService) *ApplyEffectsPhase {
	p := &ApplyEffectsPhase{scheduler: sched, compaction: compaction, idGen: defaultConversationID}
	p.BasePhase = runtime.NewBasePhase("ApplyEffectsPhase", p.run)
	return p
}

// SetIDGenerator overrides how fresh conversation ids are minted.
// Intended for deterministic tests.
func (p *ApplyEffectsPhase) SetIDGenerator(gen func() string) {
	p.idGen = gen
}

func defaultConversationID() string {
	return uuid.New().String()[:8]
}

func (p *ApplyEffectsPhase) run(ctx context.Context, tc runtime.TickContext) (runtime.TickContext, error) {
	for _, effect := range tc.Effects {
		tc = p.applyEffect(tc, effect)
	}

	tc = p.sweepExpiredInvites(tc)

	tc, err := p.handleCompaction(ctx, tc)
	if err != nil {
		return tc, err
	}

	slog.Debug("applied effects", "effects", len(tc.Effects), "events", len(tc.Events))
	return tc, nil
}

func (p *ApplyEffectsPhase) applyEffect(tc runtime.TickContext, effect domain.Effect) runtime.TickContext {
	switch e := effect.(type) {
	case domain.MoveAgentEffect:
		return p.applyMoveAgent(tc, e)
	case domain.UpdateMoodEffect:
		return p.applyUpdateMood(tc, e)
	case domain.UpdateEnergyEffect:
		return p.applyUpdateEnergy(tc, e)
	case domain.RecordActionEffect:
		return p.applyRecordAction(tc, e)
	case domain.AgentSleepEffect:
		return p.applyAgentSleep(tc, e)
	case domain.AgentWakeEffect:
		return p.applyAgentWake(tc, e)
	case domain.UpdateLastActiveTickEffect:
		return p.applyUpdateLastActiveTick(tc, e)
	case domain.UpdateSessionIDEffect:
		return p.applyUpdateSessionID(tc, e)
	case domain.InviteToConversationEffect:
		return p.applyInvite(tc, e)
	case domain.AcceptInviteEffect:
		return p.applyAcceptInvite(tc, e)
	case domain.DeclineInviteEffect:
		return p.applyDeclineInvite(tc, e)
	case domain.ExpireInviteEffect:
		return p.applyExpireInvite(tc, e)
	case domain.JoinConversationEffect:
		return p.applyJoinConversation(tc, e)
	case domain.LeaveConversationEffect:
		return p.applyLeaveConversation(tc, e)
	case domain.MoveConversationEffect:
		return p.applyMoveConversation(tc, e)
	case domain.AddConversationTurnEffect:
		return p.applyAddConversationTurn(tc, e)
	case domain.SetNextSpeakerEffect:
		return p.applySetNextSpeaker(tc, e)
	case domain.EndConversationEffect:
		return p.applyEndConversation(tc, e)
	case domain.ConversationEndingSeenEffect:
		return p.applyConversationEndingSeen(tc, e)
	case domain.RecordAgentTokenUsageEffect:
		return p.applyRecordAgentTokenUsage(tc, e)
	case domain.RecordInterpreterTokenUsageEffect:
		return p.applyRecordInterpreterTokenUsage(tc, e)
	case domain.ResetSessionTokensEffect:
		return p.applyResetSessionTokens(tc, e)
	case domain.TriggerWorldEventEffect:
		return p.applyTriggerWorldEvent(tc, e)
	case domain.ChangeWeatherEffect:
		return p.applyChangeWeather(tc, e)
	case domain.ShouldCompactEffect:
		// Resolved separately in handleCompaction, after every other
		// effect for the tick has applied, so it can see co-occurring
		// AgentSleepEffects.
		return tc
	default:
		return tc
	}
}

// --- Agent effects ---

func (p *ApplyEffectsPhase) applyMoveAgent(tc runtime.TickContext, e domain.MoveAgentEffect) runtime.TickContext {
	agent, ok := tc.GetAgent(e.Agent)
	if !ok {
		slog.Warn("move_agent effect: unknown agent", "agent", e.Agent)
		return tc
	}
	tc = tc.WithUpdatedAgent(agent.WithLocation(e.ToLocation))
	tc = tc.WithUpdatedWorld(tc.World.WithAgentLocation(e.Agent, e.ToLocation))
	return tc.WithEvent(domain.NewAgentMovedEvent(tc.Tick, tc.Timestamp, e.Agent, e.FromLocation, e.ToLocation))
}

func (p *ApplyEffectsPhase) applyUpdateMood(tc runtime.TickContext, e domain.UpdateMoodEffect) runtime.TickContext {
	agent, ok := tc.GetAgent(e.Agent)
	if !ok {
		slog.Warn("update_mood effect: unknown agent", "agent", e.Agent)
		return tc
	}
	old := agent.Mood
	tc = tc.WithUpdatedAgent(agent.WithMood(e.Mood))
	return tc.WithEvent(domain.NewAgentMoodChangedEvent(tc.Tick, tc.Timestamp, e.Agent, old, e.Mood))
}

func (p *ApplyEffectsPhase) applyUpdateEnergy(tc runtime.TickContext, e domain.UpdateEnergyEffect) runtime.TickContext {
	agent, ok := tc.GetAgent(e.Agent)
	if !ok {
		slog.Warn("update_energy effect: unknown agent", "agent", e.Agent)
		return tc
	}
	old := agent.Energy
	updated := agent.WithEnergy(e.Energy)
	tc = tc.WithUpdatedAgent(updated)
	return tc.WithEvent(domain.NewAgentEnergyChangedEvent(tc.Tick, tc.Timestamp, e.Agent, old, updated.Energy))
}

func (p *ApplyEffectsPhase) applyRecordAction(tc runtime.TickContext, e domain.RecordActionEffect) runtime.TickContext {
	agent, ok := tc.GetAgent(e.Agent)
	if !ok {
		slog.Warn("record_action effect: unknown agent", "agent", e.Agent)
		return tc
	}
	return tc.WithEvent(domain.NewAgentActionEvent(tc.Tick, tc.Timestamp, e.Agent, agent.Location, e.Description))
}

func (p *ApplyEffectsPhase) applyAgentSleep(tc runtime.TickContext, e domain.AgentSleepEffect) runtime.TickContext {
	agent, ok := tc.GetAgent(e.Agent)
	if !ok {
		slog.Warn("agent_sleep effect: unknown agent", "agent", e.Agent)
		return tc
	}
	if agent.IsSleeping {
		return tc
	}
	tc = tc.WithUpdatedAgent(agent.WithSleep(tc.Tick, tc.TimeSnapshot.Period()))
	tc = tc.WithEvent(domain.NewAgentSleptEvent(tc.Tick, tc.Timestamp, e.Agent, agent.Location))
	if p.scheduler != nil {
		p.scheduler.CancelAgentEvents(e.Agent)
	}
	return tc
}

func (p *ApplyEffectsPhase) applyAgentWake(tc runtime.TickContext, e domain.AgentWakeEffect) runtime.TickContext {
	agent, ok := tc.GetAgent(e.Agent)
	if !ok {
		slog.Warn("agent_wake effect: unknown agent", "agent", e.Agent)
		return tc
	}
	if !agent.IsSleeping {
		return tc
	}
	tc = tc.WithUpdatedAgent(agent.WithWake())
	tc = tc.WithEvent(domain.NewAgentWokeEvent(tc.Tick, tc.Timestamp, e.Agent, agent.Location, e.Reason))
	if p.scheduler != nil && !p.scheduler.HasPendingEvent(e.Agent) {
		p.scheduler.ScheduleAgentTurn(e.Agent, agent.Location, tc.Timestamp.Add(scheduler.SoloPaceMinutes*time.Minute))
	}
	return tc
}

func (p *ApplyEffectsPhase) applyUpdateLastActiveTick(tc runtime.TickContext, e domain.UpdateLastActiveTickEffect) runtime.TickContext {
	agent, ok := tc.GetAgent(e.Agent)
	if !ok {
		slog.Warn("update_last_active_tick effect: unknown agent", "agent", e.Agent)
		return tc
	}
	old := agent.LastActiveTick
	tc = tc.WithUpdatedAgent(agent.WithLastActiveTick(e.Tick))
	return tc.WithEvent(domain.NewAgentLastActiveTickUpdatedEvent(tc.Tick, tc.Timestamp, e.Agent, old, e.Tick))
}

func (p *ApplyEffectsPhase) applyUpdateSessionID(tc runtime.TickContext, e domain.UpdateSessionIDEffect) runtime.TickContext {
	agent, ok := tc.GetAgent(e.Agent)
	if !ok {
		slog.Warn("update_session_id effect: unknown agent", "agent", e.Agent)
		return tc
	}
	old := agent.SessionID
	tc = tc.WithUpdatedAgent(agent.WithSessionID(e.SessionID))
	return tc.WithEvent(domain.NewAgentSessionIDUpdatedEvent(tc.Tick, tc.Timestamp, e.Agent, old, e.SessionID))
}

// --- Conversation effects ---

func (p *ApplyEffectsPhase) applyInvite(tc runtime.TickContext, e domain.InviteToConversationEffect) runtime.TickContext {
	if _, ok := tc.GetAgent(e.Inviter); !ok {
		slog.Warn("invite_to_conversation effect: unknown inviter", "inviter", e.Inviter)
		return tc
	}
	if _, ok := tc.GetAgent(e.Invitee); !ok {
		slog.Warn("invite_to_conversation effect: unknown invitee", "invitee", e.Invitee)
		return tc
	}
	if existing, ok := tc.PendingInvites[e.Invitee]; ok {
		slog.Warn("invite_to_conversation effect: invitee already has a pending invite",
			"invitee", e.Invitee, "existing_conversation", existing.ConversationID)
		return tc
	}

	convID := p.reuseOrMintConversationID(tc, e.Inviter, e.Location)
	invite := domain.Invitation{
		ConversationID: convID,
		Inviter:        e.Inviter,
		Invitee:        e.Invitee,
		Location:       e.Location,
		Privacy:        e.Privacy,
		CreatedAtTick:  tc.Tick,
		ExpiresAtTick:  tc.Tick + domain.InviteExpiryTicks,
		InvitedAt:      tc.Timestamp,
	}
	tc = tc.WithAddedInvite(invite)
	tc = tc.WithEvent(domain.NewConversationInvitedEvent(tc.Tick, tc.Timestamp, convID, e.Inviter, e.Invitee, e.Location, e.Privacy))
	if p.scheduler != nil {
		p.scheduler.ScheduleInviteResponse(e.Invitee, e.Location, tc.Timestamp.Add(scheduler.InviteResponseMinutes*time.Minute))
	}
	return tc
}

// reuseOrMintConversationID reuses the inviter's existing conversation
// at loc if they are already a participant there, rather than starting
// a second one at the same location.
func (p *ApplyEffectsPhase) reuseOrMintConversationID(tc runtime.TickContext, inviter domain.AgentName, loc domain.LocationID) domain.ConversationID {
	for _, conv := range tc.GetConversationsForAgent(inviter) {
		if conv.Location == loc {
			return conv.ID
		}
	}
	return domain.ConversationID(p.idGen())
}

func (p *ApplyEffectsPhase) applyAcceptInvite(tc runtime.TickContext, e domain.AcceptInviteEffect) runtime.TickContext {
	invite, ok := tc.PendingInvites[e.Agent]
	if !ok || invite.ConversationID != e.ConversationID {
		slog.Warn("accept_invite effect: no matching pending invite", "agent", e.Agent, "conversation", e.ConversationID)
		return tc
	}
	tc = tc.WithRemovedInvite(e.Agent)
	tc = tc.WithEvent(domain.NewConversationInviteAcceptedEvent(tc.Tick, tc.Timestamp, invite.ConversationID, invite.Inviter, invite.Invitee))

	conv, exists := tc.GetConversation(invite.ConversationID)
	if !exists {
		conv = domain.Conversation{
			ID: invite.ConversationID, Location: invite.Location, Privacy: invite.Privacy,
			Participants: map[domain.AgentName]struct{}{}, StartedAtTick: tc.Tick, CreatedBy: invite.Inviter,
		}
		conv = conv.WithParticipant(invite.Inviter)
		conv = conv.WithParticipant(e.Agent)
		tc = tc.WithUpdatedConversation(conv)
		// Fixed order, not conv.ParticipantNames(): recovery reconstructs
		// CreatedBy from initialParticipants[0] (replay.go), so it must
		// always be the inviter, never map-iteration order.
		initialParticipants := []domain.AgentName{invite.Inviter, e.Agent}
		tc = tc.WithEvent(domain.NewConversationStartedEvent(tc.Tick, tc.Timestamp, conv.ID, conv.Location, conv.Privacy, initialParticipants))
	} else {
		conv = conv.WithParticipant(e.Agent)
		tc = tc.WithUpdatedConversation(conv)
		tc = tc.WithEvent(domain.NewConversationJoinedEvent(tc.Tick, tc.Timestamp, conv.ID, e.Agent))
	}

	if p.scheduler != nil && !p.scheduler.HasPendingConversationTurn(conv.ID) {
		p.scheduler.ScheduleConversationTurn(conv.ID, conv.Location, tc.Timestamp.Add(scheduler.ConversationPaceMinutes*time.Minute))
	}

	if e.FirstMessage != nil {
		conv, _ = tc.GetConversation(conv.ID)
		turn := domain.ConversationTurn{Speaker: e.Agent, Narrative: *e.FirstMessage, Tick: tc.Tick, Timestamp: tc.Timestamp}
		conv = conv.WithTurn(turn)
		tc = tc.WithUpdatedConversation(conv)
		tc = tc.WithEvent(domain.NewConversationTurnEvent(tc.Tick, tc.Timestamp, conv.ID, e.Agent, *e.FirstMessage, nil, false))
		if p.scheduler != nil {
			p.scheduler.RecordLocationSpeaker(conv.Location, e.Agent)
		}
	}

	return tc
}

func (p *ApplyEffectsPhase) applyDeclineInvite(tc runtime.TickContext, e domain.DeclineInviteEffect) runtime.TickContext {
	invite, ok := tc.PendingInvites[e.Agent]
	if !ok {
		slog.Warn("decline_invite effect: no pending invite", "agent", e.Agent)
		return tc
	}
	tc = tc.WithRemovedInvite(e.Agent)
	return tc.WithEvent(domain.NewConversationInviteDeclinedEvent(tc.Tick, tc.Timestamp, invite.ConversationID, invite.Inviter, invite.Invitee))
}

func (p *ApplyEffectsPhase) applyExpireInvite(tc runtime.TickContext, e domain.ExpireInviteEffect) runtime.TickContext {
	invite, ok := tc.PendingInvites[e.Agent]
	if !ok {
		slog.Warn("expire_invite effect: no pending invite", "agent", e.Agent)
		return tc
	}
	tc = tc.WithRemovedInvite(e.Agent)
	return tc.WithEvent(domain.NewConversationInviteExpiredEvent(tc.Tick, tc.Timestamp, invite.ConversationID, invite.Inviter, invite.Invitee))
}

func (p *ApplyEffectsPhase) applyJoinConversation(tc runtime.TickContext, e domain.JoinConversationEffect) runtime.TickContext {
	conv, ok := tc.GetConversation(e.ConversationID)
	if !ok {
		slog.Warn("join_conversation effect: unknown conversation", "conversation", e.ConversationID)
		return tc
	}
	if conv.Privacy != domain.PrivacyPublic {
		slog.Warn("join_conversation effect: conversation is private", "conversation", e.ConversationID, "agent", e.Agent)
		return tc
	}
	if _, ok := tc.GetAgent(e.Agent); !ok {
		slog.Warn("join_conversation effect: unknown agent", "agent", e.Agent)
		return tc
	}

	conv = conv.WithParticipant(e.Agent)
	tc = tc.WithUpdatedConversation(conv)
	tc = tc.WithEvent(domain.NewConversationJoinedEvent(tc.Tick, tc.Timestamp, conv.ID, e.Agent))

	if p.scheduler != nil && !p.scheduler.HasPendingConversationTurn(conv.ID) {
		p.scheduler.ScheduleConversationTurn(conv.ID, conv.Location, tc.Timestamp.Add(scheduler.ConversationPaceMinutes*time.Minute))
	}

	if e.FirstMessage != nil {
		turn := domain.ConversationTurn{Speaker: e.Agent, Narrative: *e.FirstMessage, Tick: tc.Tick, Timestamp: tc.Timestamp}
		conv = conv.WithTurn(turn)
		tc = tc.WithUpdatedConversation(conv)
		tc = tc.WithEvent(domain.NewConversationTurnEvent(tc.Tick, tc.Timestamp, conv.ID, e.Agent, *e.FirstMessage, nil, false))
		if p.scheduler != nil {
			p.scheduler.RecordLocationSpeaker(conv.Location, e.Agent)
		}
	}
	return tc
}

func (p *ApplyEffectsPhase) applyLeaveConversation(tc runtime.TickContext, e domain.LeaveConversationEffect) runtime.TickContext {
	conv, ok := tc.GetConversation(e.ConversationID)
	if !ok {
		slog.Warn("leave_conversation effect: unknown conversation", "conversation", e.ConversationID)
		return tc
	}
	if !conv.HasParticipant(e.Agent) {
		slog.Warn("leave_conversation effect: agent not a participant", "agent", e.Agent, "conversation", e.ConversationID)
		return tc
	}

	wasTwoPerson := len(conv.Participants) == 2
	var remainingOther domain.AgentName
	if wasTwoPerson {
		for name := range conv.Participants {
			if name != e.Agent {
				remainingOther = name
			}
		}
	}

	if e.LastMessage != nil {
		turn := domain.ConversationTurn{
			Speaker: e.Agent, Narrative: *e.LastMessage, Tick: tc.Tick, Timestamp: tc.Timestamp, IsDeparture: true,
		}
		conv = conv.WithTurn(turn)
		tc = tc.WithUpdatedConversation(conv)
		tc = tc.WithEvent(domain.NewConversationTurnEvent(tc.Tick, tc.Timestamp, conv.ID, e.Agent, *e.LastMessage, nil, true))
	}

	conv = conv.WithoutParticipant(e.Agent)
	tc = tc.WithEvent(domain.NewConversationLeftEvent(tc.Tick, tc.Timestamp, conv.ID, e.Agent))

	if len(conv.Participants) < 2 {
		tc = tc.WithRemovedConversation(conv.ID)
		tc = tc.WithEvent(domain.NewConversationEndedEvent(tc.Tick, tc.Timestamp, conv.ID, "participant_left", sortedParticipants(conv), ""))
		if wasTwoPerson && e.LastMessage != nil && remainingOther != "" {
			msg := *e.LastMessage
			tc = tc.WithEvent(domain.NewConversationEndingUnseenEvent(tc.Tick, tc.Timestamp, remainingOther, conv.ID, e.Agent, &msg))
		}
	} else {
		tc = tc.WithUpdatedConversation(conv)
	}

	return tc
}

func (p *ApplyEffectsPhase) applyMoveConversation(tc runtime.TickContext, e domain.MoveConversationEffect) runtime.TickContext {
	conv, ok := tc.GetConversation(e.ConversationID)
	if !ok {
		slog.Warn("move_conversation effect: unknown conversation", "conversation", e.ConversationID)
		return tc
	}
	from := conv.Location
	conv = conv.WithLocation(e.ToLocation)
	tc = tc.WithUpdatedConversation(conv)

	participants := conv.ParticipantNames()
	sort.Slice(participants, func(i, j int) bool { return participants[i] < participants[j] })
	for _, name := range participants {
		agent, ok := tc.GetAgent(name)
		if !ok {
			continue
		}
		tc = tc.WithUpdatedAgent(agent.WithLocation(e.ToLocation))
		tc = tc.WithUpdatedWorld(tc.World.WithAgentLocation(name, e.ToLocation))
	}

	return tc.WithEvent(domain.NewConversationMovedEvent(tc.Tick, tc.Timestamp, conv.ID, e.InitiatedBy, from, e.ToLocation, participants))
}

func (p *ApplyEffectsPhase) applyAddConversationTurn(tc runtime.TickContext, e domain.AddConversationTurnEffect) runtime.TickContext {
	conv, ok := tc.GetConversation(e.ConversationID)
	if !ok {
		slog.Warn("add_conversation_turn effect: unknown conversation", "conversation", e.ConversationID)
		return tc
	}

	var narrativeWithTools *string
	if e.NarrativeWithTools != "" {
		n := e.NarrativeWithTools
		narrativeWithTools = &n
	}

	turn := domain.ConversationTurn{
		Speaker: e.Speaker, Narrative: e.Narrative, Tick: tc.Tick, Timestamp: tc.Timestamp,
		NarrativeWithTools: narrativeWithTools,
	}
	conv = conv.WithTurn(turn)
	tc = tc.WithUpdatedConversation(conv)
	tc = tc.WithEvent(domain.NewConversationTurnEvent(tc.Tick, tc.Timestamp, conv.ID, e.Speaker, e.Narrative, narrativeWithTools, false))

	if p.scheduler != nil {
		p.scheduler.RecordLocationSpeaker(conv.Location, e.Speaker)
		if !p.scheduler.HasPendingConversationTurn(conv.ID) {
			p.scheduler.ScheduleConversationTurn(conv.ID, conv.Location, tc.Timestamp.Add(scheduler.ConversationPaceMinutes*time.Minute))
		}
	}
	return tc
}

func (p *ApplyEffectsPhase) applySetNextSpeaker(tc runtime.TickContext, e domain.SetNextSpeakerEffect) runtime.TickContext {
	conv, ok := tc.GetConversation(e.ConversationID)
	if !ok {
		slog.Warn("set_next_speaker effect: unknown conversation", "conversation", e.ConversationID)
		return tc
	}
	if !conv.HasParticipant(e.Speaker) {
		slog.Warn("set_next_speaker effect: not a participant", "speaker", e.Speaker, "conversation", e.ConversationID)
		return tc
	}
	conv = conv.WithNextSpeaker(e.Speaker)
	tc = tc.WithUpdatedConversation(conv)
	return tc.WithEvent(domain.NewConversationNextSpeakerSetEvent(tc.Tick, tc.Timestamp, conv.ID, e.Speaker))
}

func (p *ApplyEffectsPhase) applyEndConversation(tc runtime.TickContext, e domain.EndConversationEffect) runtime.TickContext {
	conv, ok := tc.GetConversation(e.ConversationID)
	if !ok {
		slog.Warn("end_conversation effect: unknown conversation", "conversation", e.ConversationID)
		return tc
	}
	tc = tc.WithRemovedConversation(conv.ID)
	return tc.WithEvent(domain.NewConversationEndedEvent(tc.Tick, tc.Timestamp, conv.ID, e.Reason, sortedParticipants(conv), ""))
}

func (p *ApplyEffectsPhase) applyConversationEndingSeen(tc runtime.TickContext, e domain.ConversationEndingSeenEffect) runtime.TickContext {
	return tc.WithEvent(domain.NewConversationEndingSeenEvent(tc.Tick, tc.Timestamp, e.Agent, e.ConversationID))
}

// sortedParticipants returns conv's participants in a stable, sorted
// order, for events where the order doesn't carry meaning but ends up
// in the JSONL log and should stay diffable across runs.
func sortedParticipants(conv domain.Conversation) []domain.AgentName {
	names := conv.ParticipantNames()
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// sweepExpiredInvites removes every pending invite whose expiry tick has
// passed, after every other effect for the tick has applied.
func (p *ApplyEffectsPhase) sweepExpiredInvites(tc runtime.TickContext) runtime.TickContext {
	invitees := make([]domain.AgentName, 0, len(tc.PendingInvites))
	for invitee := range tc.PendingInvites {
		invitees = append(invitees, invitee)
	}
	sort.Slice(invitees, func(i, j int) bool { return invitees[i] < invitees[j] })

	for _, invitee := range invitees {
		invite := tc.PendingInvites[invitee]
		if !invite.Expired(tc.Tick) {
			continue
		}
		tc = tc.WithRemovedInvite(invitee)
		tc = tc.WithEvent(domain.NewConversationInviteExpiredEvent(tc.Tick, tc.Timestamp, invite.ConversationID, invite.Inviter, invite.Invitee))
	}
	return tc
}

// --- Compaction & token usage effects ---

func (p *ApplyEffectsPhase) applyRecordAgentTokenUsage(tc runtime.TickContext, e domain.RecordAgentTokenUsageEffect) runtime.TickContext {
	agent, ok := tc.GetAgent(e.Agent)
	if !ok {
		slog.Warn("record_agent_token_usage effect: unknown agent", "agent", e.Agent)
		return tc
	}
	// SessionTokens (the context-window size) is cache_read_input_tokens
	// + input_tokens, per TokenUsage's convention.
	newSessionTokens := e.CacheReadInputTokens + e.InputTokens
	tc = tc.WithUpdatedAgent(agent.WithRecordedTurnUsage(newSessionTokens, e.InputTokens, e.OutputTokens, e.CacheCreationInputTokens, e.CacheReadInputTokens))
	return tc.WithEvent(domain.NewAgentTokenUsageRecordedEvent(
		tc.Tick, tc.Timestamp, e.Agent, e.InputTokens, e.OutputTokens, e.CacheCreationInputTokens, e.CacheReadInputTokens, newSessionTokens,
	))
}

func (p *ApplyEffectsPhase) applyRecordInterpreterTokenUsage(tc runtime.TickContext, e domain.RecordInterpreterTokenUsageEffect) runtime.TickContext {
	tc = tc.WithUpdatedWorld(tc.World.WithInterpreterUsage(e.InputTokens, e.OutputTokens))
	return tc.WithEvent(domain.NewInterpreterTokenUsageRecordedEvent(tc.Tick, tc.Timestamp, e.InputTokens, e.OutputTokens))
}

func (p *ApplyEffectsPhase) applyResetSessionTokens(tc runtime.TickContext, e domain.ResetSessionTokensEffect) runtime.TickContext {
	agent, ok := tc.GetAgent(e.Agent)
	if !ok {
		slog.Warn("reset_session_tokens effect: unknown agent", "agent", e.Agent)
		return tc
	}
	old := agent.TokenUsage.SessionTokens
	tc = tc.WithUpdatedAgent(agent.WithResetSessionTokens(e.NewSessionTokens))
	return tc.WithEvent(domain.NewSessionTokensResetEvent(tc.Tick, tc.Timestamp, e.Agent, old, e.NewSessionTokens))
}

// handleCompaction resolves every ShouldCompactEffect accumulated this
// tick. Critical requests always compact; non-critical ones only when
// the same agent also slept this tick, so a waking agent is never
// compacted mid-conversation.
func (p *ApplyEffectsPhase) handleCompaction(ctx context.Context, tc runtime.TickContext) (runtime.TickContext, error) {
	if p.compaction == nil {
		return tc, nil
	}

	asleep := make(map[domain.AgentName]struct{})
	for _, effect := range tc.Effects {
		if sleep, ok := effect.(domain.AgentSleepEffect); ok {
			asleep[sleep.Agent] = struct{}{}
		}
	}

	for _, effect := range tc.Effects {
		should, ok := effect.(domain.ShouldCompactEffect)
		if !ok {
			continue
		}
		if !should.Critical {
			if _, sleeping := asleep[should.Agent]; !sleeping {
				continue
			}
		}

		agent, ok := tc.GetAgent(should.Agent)
		if !ok {
			slog.Warn("should_compact effect: unknown agent", "agent", should.Agent)
			continue
		}

		postTokens, err := p.compaction.ExecuteCompact(ctx, agent, should.Critical)
		if err != nil {
			slog.Error("compaction failed", "agent", should.Agent, "error", err)
			continue
		}

		tc = tc.WithEvent(domain.NewDidCompactEvent(tc.Tick, tc.Timestamp, should.Agent, should.Critical, should.PreTokens, postTokens))

		agent, _ = tc.GetAgent(should.Agent)
		old := agent.TokenUsage.SessionTokens
		tc = tc.WithUpdatedAgent(agent.WithResetSessionTokens(postTokens))
		tc = tc.WithEvent(domain.NewSessionTokensResetEvent(tc.Tick, tc.Timestamp, should.Agent, old, postTokens))
	}

	return tc, nil
}

// --- World effects ---

func (p *ApplyEffectsPhase) applyTriggerWorldEvent(tc runtime.TickContext, e domain.TriggerWorldEventEffect) runtime.TickContext {
	return tc.WithEvent(domain.NewWorldEventOccurred(tc.Tick, tc.Timestamp, e.Description, e.Location, e.AgentsInvolved))
}

func (p *ApplyEffectsPhase) applyChangeWeather(tc runtime.TickContext, e domain.ChangeWeatherEffect) runtime.TickContext {
	old := tc.World.Weather
	tc = tc.WithUpdatedWorld(tc.World.WithWeather(e.Weather))
	return tc.WithEvent(domain.NewWeatherChangedEvent(tc.Tick, tc.Timestamp, old, e.Weather))
}
