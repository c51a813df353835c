// Package runtime hosts the tick pipeline: the immutable TickContext
// threaded through WakeCheck, Schedule, AgentTurn, Interpret, and
// ApplyEffects, and the Phase contract each implements.
package runtime

import (
	"time"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime/interpreter"
	"github.com/codeready-toolchain/tarsy/internal/scheduler"
)

// TickContext is the immutable context threaded through tick phases.
// Every With* method returns a new context; nothing mutates in place.
type TickContext struct {
	// Tick identity
	Tick         int
	Timestamp    time.Time
	TimeSnapshot domain.TimeSnapshot

	// World state, read from services at tick start
	World          domain.WorldSnapshot
	Agents         map[domain.AgentName]domain.AgentSnapshot
	Conversations  map[domain.ConversationID]domain.Conversation
	PendingInvites map[domain.AgentName]domain.Invitation

	// Scheduled events that triggered this tick
	ScheduledEvents []scheduler.ScheduledEvent

	// Accumulated during phase execution
	Effects     []domain.Effect
	Events      []domain.DomainEvent
	TurnResults map[domain.AgentName]interpreter.AgentTurnResult

	// Tracking which agents act
	AgentsToAct map[domain.AgentName]struct{}
	AgentsActed map[domain.AgentName]struct{}
}

// NewTickContext seeds a context for the start of a tick, from the
// current world/agent/conversation/invite state.
func NewTickContext(
	tick int,
	timestamp time.Time,
	timeSnapshot domain.TimeSnapshot,
	world domain.WorldSnapshot,
	agents map[domain.AgentName]domain.AgentSnapshot,
	conversations map[domain.ConversationID]domain.Conversation,
	pendingInvites map[domain.AgentName]domain.Invitation,
	scheduledEvents []scheduler.ScheduledEvent,
) TickContext {
	return TickContext{
		Tick: tick, Timestamp: timestamp, TimeSnapshot: timeSnapshot,
		World: world, Agents: agents, Conversations: conversations,
		PendingInvites:  pendingInvites,
		ScheduledEvents: scheduledEvents,
		TurnResults:     make(map[domain.AgentName]interpreter.AgentTurnResult),
		AgentsToAct:     make(map[domain.AgentName]struct{}),
		AgentsActed:     make(map[domain.AgentName]struct{}),
	}
}

// --- Transformation methods ---

// WithEffect returns a copy with effect appended.
func (c TickContext) WithEffect(effect domain.Effect) TickContext {
	next := c
	next.Effects = appendEffect(c.Effects, effect)
	return next
}

// WithEffects returns a copy with effects appended.
func (c TickContext) WithEffects(effects []domain.Effect) TickContext {
	next := c
	merged := make([]domain.Effect, len(c.Effects), len(c.Effects)+len(effects))
	copy(merged, c.Effects)
	next.Effects = append(merged, effects...)
	return next
}

func appendEffect(effects []domain.Effect, effect domain.Effect) []domain.Effect {
	next := make([]domain.Effect, len(effects), len(effects)+1)
	copy(next, effects)
	return append(next, effect)
}

// WithEvent returns a copy with event appended.
func (c TickContext) WithEvent(event domain.DomainEvent) TickContext {
	next := c
	merged := make([]domain.DomainEvent, len(c.Events), len(c.Events)+1)
	copy(merged, c.Events)
	next.Events = append(merged, event)
	return next
}

// WithEvents returns a copy with events appended.
func (c TickContext) WithEvents(events []domain.DomainEvent) TickContext {
	next := c
	merged := make([]domain.DomainEvent, len(c.Events), len(c.Events)+len(events))
	copy(merged, c.Events)
	next.Events = append(merged, events...)
	return next
}

// WithTurnResult returns a copy with agent's turn result recorded.
func (c TickContext) WithTurnResult(agent domain.AgentName, result interpreter.AgentTurnResult) TickContext {
	next := c
	merged := make(map[domain.AgentName]interpreter.AgentTurnResult, len(c.TurnResults)+1)
	for k, v := range c.TurnResults {
		merged[k] = v
	}
	merged[agent] = result
	next.TurnResults = merged
	return next
}

// WithAgentsToAct returns a copy with the acting set replaced.
func (c TickContext) WithAgentsToAct(agents map[domain.AgentName]struct{}) TickContext {
	next := c
	next.AgentsToAct = agents
	return next
}

// WithAgentActed returns a copy with agent marked as having acted.
func (c TickContext) WithAgentActed(agent domain.AgentName) TickContext {
	next := c
	merged := make(map[domain.AgentName]struct{}, len(c.AgentsActed)+1)
	for k := range c.AgentsActed {
		merged[k] = struct{}{}
	}
	merged[agent] = struct{}{}
	next.AgentsActed = merged
	return next
}

// WithUpdatedAgent returns a copy with agent's snapshot replaced.
func (c TickContext) WithUpdatedAgent(agent domain.AgentSnapshot) TickContext {
	next := c
	merged := make(map[domain.AgentName]domain.AgentSnapshot, len(c.Agents)+1)
	for k, v := range c.Agents {
		merged[k] = v
	}
	merged[agent.Name] = agent
	next.Agents = merged
	return next
}

// WithUpdatedWorld returns a copy with World replaced.
func (c TickContext) WithUpdatedWorld(world domain.WorldSnapshot) TickContext {
	next := c
	next.World = world
	return next
}

// WithUpdatedConversation returns a copy with conv stored/replaced.
func (c TickContext) WithUpdatedConversation(conv domain.Conversation) TickContext {
	next := c
	merged := make(map[domain.ConversationID]domain.Conversation, len(c.Conversations)+1)
	for k, v := range c.Conversations {
		merged[k] = v
	}
	merged[conv.ID] = conv
	next.Conversations = merged
	return next
}

// WithRemovedConversation returns a copy with convID removed.
func (c TickContext) WithRemovedConversation(convID domain.ConversationID) TickContext {
	next := c
	merged := make(map[domain.ConversationID]domain.Conversation, len(c.Conversations))
	for k, v := range c.Conversations {
		if k != convID {
			merged[k] = v
		}
	}
	next.Conversations = merged
	return next
}

// WithRemovedInvite returns a copy with invitee's pending invite removed.
func (c TickContext) WithRemovedInvite(invitee domain.AgentName) TickContext {
	next := c
	merged := make(map[domain.AgentName]domain.Invitation, len(c.PendingInvites))
	for k, v := range c.PendingInvites {
		if k != invitee {
			merged[k] = v
		}
	}
	next.PendingInvites = merged
	return next
}

// WithAddedInvite returns a copy with invite stored.
func (c TickContext) WithAddedInvite(invite domain.Invitation) TickContext {
	next := c
	merged := make(map[domain.AgentName]domain.Invitation, len(c.PendingInvites)+1)
	for k, v := range c.PendingInvites {
		merged[k] = v
	}
	merged[invite.Invitee] = invite
	next.PendingInvites = merged
	return next
}

// --- Query helpers ---

// GetAgent returns an agent by name.
func (c TickContext) GetAgent(name domain.AgentName) (domain.AgentSnapshot, bool) {
	a, ok := c.Agents[name]
	return a, ok
}

// GetAgentsAtLocation returns every agent at loc.
func (c TickContext) GetAgentsAtLocation(loc domain.LocationID) []domain.AgentSnapshot {
	var out []domain.AgentSnapshot
	for _, a := range c.Agents {
		if a.Location == loc {
			out = append(out, a)
		}
	}
	return out
}

// GetConversation returns a conversation by id.
func (c TickContext) GetConversation(id domain.ConversationID) (domain.Conversation, bool) {
	conv, ok := c.Conversations[id]
	return conv, ok
}

// GetConversationsForAgent returns every conversation agent participates in.
func (c TickContext) GetConversationsForAgent(agent domain.AgentName) []domain.Conversation {
	var out []domain.Conversation
	for _, conv := range c.Conversations {
		if conv.HasParticipant(agent) {
			out = append(out, conv)
		}
	}
	return out
}

// GetPublicConversationsAtLocation returns public conversations at loc,
// candidates for an agent to join.
func (c TickContext) GetPublicConversationsAtLocation(loc domain.LocationID) []domain.Conversation {
	var out []domain.Conversation
	for _, conv := range c.Conversations {
		if conv.Location == loc && conv.Privacy == domain.PrivacyPublic {
			out = append(out, conv)
		}
	}
	return out
}

// GetPrivateConversationsAtLocation returns private conversations at
// loc, for awareness only (not joinable).
func (c TickContext) GetPrivateConversationsAtLocation(loc domain.LocationID) []domain.Conversation {
	var out []domain.Conversation
	for _, conv := range c.Conversations {
		if conv.Location == loc && conv.Privacy == domain.PrivacyPrivate {
			out = append(out, conv)
		}
	}
	return out
}

// TickResult is what the engine receives after pipeline execution: the
// events to commit, the effects that produced them, and the resulting
// state for the engine to adopt without re-deriving it from the events.
type TickResult struct {
	Tick        int
	Timestamp   time.Time
	Events      []domain.DomainEvent
	Effects     []domain.Effect
	TurnResults map[domain.AgentName]interpreter.AgentTurnResult
	AgentsActed map[domain.AgentName]struct{}

	World          domain.WorldSnapshot
	Agents         map[domain.AgentName]domain.AgentSnapshot
	Conversations  map[domain.ConversationID]domain.Conversation
	PendingInvites map[domain.AgentName]domain.Invitation
}

// TickResultFromContext captures a completed TickContext's outcome.
func TickResultFromContext(c TickContext) TickResult {
	return TickResult{
		Tick: c.Tick, Timestamp: c.Timestamp, Events: c.Events, Effects: c.Effects,
		TurnResults: c.TurnResults, AgentsActed: c.AgentsActed,
		World: c.World, Agents: c.Agents, Conversations: c.Conversations, PendingInvites: c.PendingInvites,
	}
}
