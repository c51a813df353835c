package engine

import (
	"fmt"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/scheduler"
)

// The methods in this file are the engine's read/command surface for
// internal/observer: every one of them takes the same lock TickOnce
// does, so an observer query or command never races a tick in flight.

// Tick returns the last committed tick number.
func (e *Engine) Tick() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// CurrentTimeSnapshot returns the time snapshot as of the last committed tick.
func (e *Engine) CurrentTimeSnapshot() domain.TimeSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeSnapshot
}

// Weather returns the current world weather.
func (e *Engine) Weather() domain.Weather {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Weather
}

// Locations returns the village's location table.
func (e *Engine) Locations() map[domain.LocationID]domain.Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[domain.LocationID]domain.Location, len(e.world.Locations))
	for k, v := range e.world.Locations {
		out[k] = v
	}
	return out
}

// AgentSnapshot returns agent's current state, or false if it doesn't exist.
func (e *Engine) AgentSnapshot(agent domain.AgentName) (domain.AgentSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agents.Get(agent)
}

// AllAgents returns every agent's current state, keyed by name.
func (e *Engine) AllAgents() map[domain.AgentName]domain.AgentSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agents.ToState()
}

// AgentsAtLocation returns every agent currently at loc.
func (e *Engine) AgentsAtLocation(loc domain.LocationID) []domain.AgentSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agents.GetAtLocation(loc)
}

// Conversations returns every conversation currently underway.
func (e *Engine) Conversations() []domain.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.convos.GetAllConversations()
}

// ConversationByID returns the conversation with the given id, if any.
func (e *Engine) ConversationByID(id domain.ConversationID) (domain.Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.convos.GetConversation(id)
}

// ConversationForAgent returns the conversation agent currently
// participates in, if any.
func (e *Engine) ConversationForAgent(agent domain.AgentName) (domain.Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	convs := e.convos.GetConversationsForAgent(agent)
	if len(convs) == 0 {
		return domain.Conversation{}, false
	}
	return convs[0], true
}

// PendingInvites returns every pending invitation, in no particular order.
func (e *Engine) PendingInvites() []domain.Invitation {
	e.mu.Lock()
	defer e.mu.Unlock()
	all := e.convos.GetAllPendingInvites()
	out := make([]domain.Invitation, 0, len(all))
	for _, invite := range all {
		out = append(out, invite)
	}
	return out
}

// PendingInviteFor returns the pending invitation addressed to agent, if any.
func (e *Engine) PendingInviteFor(agent domain.AgentName) (domain.Invitation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.convos.GetPendingInvite(agent)
}

// ScheduleState returns a snapshot of the scheduler's queue and modifiers.
func (e *Engine) ScheduleState() scheduler.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduler.ToState()
}

// ForceNextTurn marks agent to be prioritized for its next turn.
// Returns AgentNotFoundError if agent does not exist.
func (e *Engine) ForceNextTurn(agent domain.AgentName) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.agents.Get(agent); !ok {
		return &AgentNotFoundError{Agent: agent}
	}
	e.scheduler.ForceNextTurn(agent)
	return nil
}

// SkipTurns sets agent's skip count, suppressing its next count turns.
// Returns AgentNotFoundError if agent does not exist.
func (e *Engine) SkipTurns(agent domain.AgentName, count int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.agents.Get(agent); !ok {
		return &AgentNotFoundError{Agent: agent}
	}
	e.scheduler.SkipTurns(agent, count)
	return nil
}

// ClearAllModifiers discards every observer-set scheduling modifier.
func (e *Engine) ClearAllModifiers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scheduler.ClearAllModifiers()
}

// EventsSince returns every event committed strictly after sinceTick,
// in commit order.
func (e *Engine) EventsSince(sinceTick int) ([]domain.DomainEvent, error) {
	e.mu.Lock()
	store := e.eventStore
	e.mu.Unlock()
	events, err := store.ReadSince(sinceTick)
	if err != nil {
		return nil, fmt.Errorf("read events since tick %d: %w", sinceTick, err)
	}
	return events, nil
}
