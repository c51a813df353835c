package engine

import (
	"github.com/codeready-toolchain/tarsy/internal/domain"
)

// replayState is the state a committed event stream folds into during
// recovery: everything a VillageSnapshot holds except scheduler state,
// which is only ever loaded from the snapshot itself. Folding events is
// the inverse of ApplyEffectsPhase: that phase turns effects into
// events, this turns events back into the state they describe.
type replayState struct {
	world          domain.WorldSnapshot
	agents         map[domain.AgentName]domain.AgentSnapshot
	conversations  map[domain.ConversationID]domain.Conversation
	pendingInvites map[domain.AgentName]domain.Invitation
	unseenEndings  map[domain.AgentName][]domain.UnseenConversationEnding
}

func (s *replayState) updateAgent(name domain.AgentName, f func(domain.AgentSnapshot) domain.AgentSnapshot) {
	agent, ok := s.agents[name]
	if !ok {
		return
	}
	s.agents[name] = f(agent)
}

func (s *replayState) updateConversation(id domain.ConversationID, f func(domain.Conversation) domain.Conversation) {
	conv, ok := s.conversations[id]
	if !ok {
		return
	}
	s.conversations[id] = f(conv)
}

// applyEvents folds every event in order into s, then advances
// s.world's tick/time to the last event's, since tick boundaries are
// not otherwise represented as events.
func (s *replayState) applyEvents(events []domain.DomainEvent) {
	for _, event := range events {
		s.applyEvent(event)
		if event.EventTick() > s.world.Tick {
			s.world = s.world.WithTick(event.EventTick(), event.EventTimestamp())
		}
	}
}

func (s *replayState) applyEvent(event domain.DomainEvent) {
	switch e := event.(type) {
	case domain.AgentMovedEvent:
		s.updateAgent(e.Agent, func(a domain.AgentSnapshot) domain.AgentSnapshot { return a.WithLocation(e.ToLocation) })
		s.world = s.world.WithAgentLocation(e.Agent, e.ToLocation)

	case domain.AgentMoodChangedEvent:
		s.updateAgent(e.Agent, func(a domain.AgentSnapshot) domain.AgentSnapshot { return a.WithMood(e.NewMood) })

	case domain.AgentEnergyChangedEvent:
		s.updateAgent(e.Agent, func(a domain.AgentSnapshot) domain.AgentSnapshot { return a.WithEnergy(e.NewEnergy) })

	case domain.AgentSleptEvent:
		period := domain.TimeSnapshot{WorldTime: e.EventTimestamp()}.Period()
		s.updateAgent(e.Agent, func(a domain.AgentSnapshot) domain.AgentSnapshot { return a.WithSleep(e.EventTick(), period) })

	case domain.AgentWokeEvent:
		s.updateAgent(e.Agent, func(a domain.AgentSnapshot) domain.AgentSnapshot { return a.WithWake() })

	case domain.AgentLastActiveTickUpdatedEvent:
		s.updateAgent(e.Agent, func(a domain.AgentSnapshot) domain.AgentSnapshot { return a.WithLastActiveTick(e.NewLastActiveTick) })

	case domain.AgentSessionIDUpdatedEvent:
		s.updateAgent(e.Agent, func(a domain.AgentSnapshot) domain.AgentSnapshot { return a.WithSessionID(e.NewSessionID) })

	case domain.ConversationInvitedEvent:
		s.pendingInvites[e.Invitee] = domain.Invitation{
			ConversationID: e.ConversationID, Inviter: e.Inviter, Invitee: e.Invitee,
			Location: e.Location, Privacy: e.Privacy,
			CreatedAtTick: e.EventTick(), ExpiresAtTick: e.EventTick() + domain.InviteExpiryTicks,
			InvitedAt: e.EventTimestamp(),
		}

	case domain.ConversationInviteAcceptedEvent:
		delete(s.pendingInvites, e.Invitee)

	case domain.ConversationInviteDeclinedEvent:
		delete(s.pendingInvites, e.Invitee)

	case domain.ConversationInviteExpiredEvent:
		delete(s.pendingInvites, e.Invitee)

	case domain.ConversationStartedEvent:
		participants := make(map[domain.AgentName]struct{}, len(e.InitialParticipants))
		for _, name := range e.InitialParticipants {
			participants[name] = struct{}{}
		}
		var createdBy domain.AgentName
		if len(e.InitialParticipants) > 0 {
			createdBy = e.InitialParticipants[0]
		}
		s.conversations[e.ConversationID] = domain.Conversation{
			ID: e.ConversationID, Location: e.Location, Privacy: e.Privacy,
			Participants: participants, StartedAtTick: e.EventTick(), CreatedBy: createdBy,
		}

	case domain.ConversationJoinedEvent:
		s.updateConversation(e.ConversationID, func(c domain.Conversation) domain.Conversation { return c.WithParticipant(e.Agent) })

	case domain.ConversationLeftEvent:
		s.updateConversation(e.ConversationID, func(c domain.Conversation) domain.Conversation { return c.WithoutParticipant(e.Agent) })

	case domain.ConversationTurnEvent:
		s.updateConversation(e.ConversationID, func(c domain.Conversation) domain.Conversation {
			return c.WithTurn(domain.ConversationTurn{
				Speaker: e.Speaker, Narrative: e.Narrative, Tick: e.EventTick(), Timestamp: e.EventTimestamp(),
				IsDeparture: e.IsDeparture, NarrativeWithTools: e.NarrativeWithTools,
			})
		})

	case domain.ConversationNextSpeakerSetEvent:
		s.updateConversation(e.ConversationID, func(c domain.Conversation) domain.Conversation { return c.WithNextSpeaker(e.NextSpeaker) })

	case domain.ConversationEndedEvent:
		delete(s.conversations, e.ConversationID)

	case domain.ConversationMovedEvent:
		s.updateConversation(e.ConversationID, func(c domain.Conversation) domain.Conversation { return c.WithLocation(e.ToLocation) })
		for _, name := range e.Participants {
			s.updateAgent(name, func(a domain.AgentSnapshot) domain.AgentSnapshot { return a.WithLocation(e.ToLocation) })
			s.world = s.world.WithAgentLocation(name, e.ToLocation)
		}

	case domain.ConversationEndingSeenEvent:
		s.removeUnseenEnding(e.Agent, e.ConversationID)

	case domain.ConversationEndingUnseenEvent:
		s.unseenEndings[e.Agent] = append(s.unseenEndings[e.Agent], domain.UnseenConversationEnding{
			ConversationID: e.ConversationID, OtherParticipant: e.OtherParticipant,
			FinalMessage: e.FinalMessage, EndedAtTick: e.EventTick(),
		})

	case domain.WeatherChangedEvent:
		s.world = s.world.WithWeather(e.NewWeather)

	case domain.SessionTokensResetEvent:
		s.updateAgent(e.Agent, func(a domain.AgentSnapshot) domain.AgentSnapshot { return a.WithResetSessionTokens(e.NewSessionTokens) })

	case domain.AgentTokenUsageRecordedEvent:
		s.updateAgent(e.Agent, func(a domain.AgentSnapshot) domain.AgentSnapshot {
			return a.WithRecordedTurnUsage(e.NewSessionTokens, e.InputTokens, e.OutputTokens, e.CacheCreationInputTokens, e.CacheReadInputTokens)
		})

	case domain.InterpreterTokenUsageRecordedEvent:
		s.world = s.world.WithInterpreterUsage(e.InputTokens, e.OutputTokens)

	// AgentActionEvent, WorldEventOccurred, NightSkippedEvent, and
	// DidCompactEvent are narrative/informational only: they describe
	// something that happened without altering replayable state beyond
	// what the events above already cover.
	case domain.AgentActionEvent, domain.WorldEventOccurred, domain.NightSkippedEvent, domain.DidCompactEvent:
	}
}

func (s *replayState) removeUnseenEnding(agent domain.AgentName, convID domain.ConversationID) {
	endings := s.unseenEndings[agent]
	filtered := endings[:0]
	for _, ending := range endings {
		if ending.ConversationID != convID {
			filtered = append(filtered, ending)
		}
	}
	if len(filtered) == 0 {
		delete(s.unseenEndings, agent)
		return
	}
	s.unseenEndings[agent] = filtered
}
