package observer

import (
	"context"
	"errors"
	"fmt"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/engine"
	"github.com/codeready-toolchain/tarsy/internal/scheduler"
)

// AgentNotFoundError, InvalidLocationError, and ConversationError are
// the errors ObserverAPI commands return; they're defined in
// internal/engine since the engine's own effect/event application can
// raise the same conditions.
type (
	AgentNotFoundError   = engine.AgentNotFoundError
	InvalidLocationError = engine.InvalidLocationError
	ConversationError    = engine.ConversationError
)

// Engine is the narrow surface ObserverAPI needs from the running
// simulation: read accessors plus the handful of write paths (commit an
// event directly, apply an effect, end a conversation, write a dream)
// that a human-issued command can use without going through a tick.
type Engine interface {
	Tick() int
	CurrentTimeSnapshot() domain.TimeSnapshot
	Weather() domain.Weather
	Locations() map[domain.LocationID]domain.Location

	AgentSnapshot(agent domain.AgentName) (domain.AgentSnapshot, bool)
	AllAgents() map[domain.AgentName]domain.AgentSnapshot
	AgentsAtLocation(loc domain.LocationID) []domain.AgentSnapshot

	Conversations() []domain.Conversation
	ConversationByID(id domain.ConversationID) (domain.Conversation, bool)
	ConversationForAgent(agent domain.AgentName) (domain.Conversation, bool)

	PendingInvites() []domain.Invitation
	PendingInviteFor(agent domain.AgentName) (domain.Invitation, bool)

	ScheduleState() scheduler.State
	ForceNextTurn(agent domain.AgentName) error
	SkipTurns(agent domain.AgentName, count int) error
	ClearAllModifiers()

	EventsSince(sinceTick int) ([]domain.DomainEvent, error)

	CommitEvent(event domain.DomainEvent) error
	ApplyEffect(ctx context.Context, effect domain.Effect) error
	EndConversation(ctx context.Context, conv domain.ConversationID, reason string) error
	WriteToAgentDreams(agent domain.AgentName, content string) error
}

// ObserverAPI is the read/command surface used by a human operator (a
// TUI, CLI, or HTTP handler): queries never mutate state and are always
// safe to call; commands either apply cleanly or return one of
// AgentNotFoundError/InvalidLocationError/ConversationError describing
// why not.
type ObserverAPI struct {
	engine Engine
}

// New returns an ObserverAPI backed by engine.
func New(engine Engine) *ObserverAPI {
	return &ObserverAPI{engine: engine}
}

// --- Village-level queries ---

// GetVillageSnapshot returns the complete current state of the village
// for display.
func (a *ObserverAPI) GetVillageSnapshot() VillageDisplay {
	tick := a.engine.Tick()
	ts := a.engine.CurrentTimeSnapshot()
	agents := a.engine.AllAgents()
	conversations := a.engine.Conversations()
	invites := a.engine.PendingInvites()

	inConvo := make(map[domain.AgentName]bool, len(agents))
	for _, conv := range conversations {
		for name := range conv.Participants {
			inConvo[name] = true
		}
	}
	hasInvite := make(map[domain.AgentName]bool, len(invites))
	for _, invite := range invites {
		hasInvite[invite.Invitee] = true
	}

	displayAgents := make(map[domain.AgentName]AgentDisplay, len(agents))
	for name, agent := range agents {
		displayAgents[name] = newAgentDisplay(agent, inConvo[name], hasInvite[name])
	}

	displayConvs := make([]ConversationDisplay, len(conversations))
	for i, conv := range conversations {
		displayConvs[i] = newConversationDisplay(conv)
	}
	displayInvites := make([]InviteDisplay, len(invites))
	for i, invite := range invites {
		displayInvites[i] = newInviteDisplay(invite)
	}

	return VillageDisplay{
		Tick: tick, Time: newTimeDisplay(tick, ts), Weather: a.engine.Weather(),
		Agents: displayAgents, Conversations: displayConvs, PendingInvites: displayInvites,
		Schedule: newScheduleDisplay(a.engine.ScheduleState()),
	}
}

// GetTimeSnapshot returns the current world clock for display.
func (a *ObserverAPI) GetTimeSnapshot() TimeDisplay {
	tick := a.engine.Tick()
	return newTimeDisplay(tick, a.engine.CurrentTimeSnapshot())
}

// GetWeather returns the current weather.
func (a *ObserverAPI) GetWeather() domain.Weather {
	return a.engine.Weather()
}

// --- Agent queries ---

// GetAgentSnapshot returns agent's current state, or false if it
// doesn't exist.
func (a *ObserverAPI) GetAgentSnapshot(agent domain.AgentName) (domain.AgentSnapshot, bool) {
	return a.engine.AgentSnapshot(agent)
}

// GetAllAgentsSnapshot returns every agent's current state.
func (a *ObserverAPI) GetAllAgentsSnapshot() map[domain.AgentName]domain.AgentSnapshot {
	return a.engine.AllAgents()
}

// GetAgentLocation returns agent's current location, or false if the
// agent doesn't exist.
func (a *ObserverAPI) GetAgentLocation(agent domain.AgentName) (domain.LocationID, bool) {
	snapshot, ok := a.engine.AgentSnapshot(agent)
	if !ok {
		return "", false
	}
	return snapshot.Location, true
}

// GetAgentsAtLocation returns the names of every agent at loc.
func (a *ObserverAPI) GetAgentsAtLocation(loc domain.LocationID) []domain.AgentName {
	agents := a.engine.AgentsAtLocation(loc)
	names := make([]domain.AgentName, len(agents))
	for i, agent := range agents {
		names[i] = agent.Name
	}
	return names
}

// --- Conversation queries ---

// GetConversations returns every conversation currently underway.
func (a *ObserverAPI) GetConversations() []domain.Conversation {
	return a.engine.Conversations()
}

// GetConversationForAgent returns the conversation agent currently
// participates in, if any.
func (a *ObserverAPI) GetConversationForAgent(agent domain.AgentName) (domain.Conversation, bool) {
	return a.engine.ConversationForAgent(agent)
}

// HasActiveConversation reports whether any conversation is underway.
func (a *ObserverAPI) HasActiveConversation() bool {
	return len(a.engine.Conversations()) > 0
}

// GetConversationParticipants returns the union of every participant
// across every active conversation.
func (a *ObserverAPI) GetConversationParticipants() []domain.AgentName {
	seen := make(map[domain.AgentName]struct{})
	for _, conv := range a.engine.Conversations() {
		for name := range conv.Participants {
			seen[name] = struct{}{}
		}
	}
	out := make([]domain.AgentName, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	return out
}

// --- Invite queries ---

// GetPendingInvites returns every pending invitation.
func (a *ObserverAPI) GetPendingInvites() []domain.Invitation {
	return a.engine.PendingInvites()
}

// GetInvitesForAgent returns the pending invitation addressed to agent,
// as a single-element slice, or an empty slice if there is none.
func (a *ObserverAPI) GetInvitesForAgent(agent domain.AgentName) []domain.Invitation {
	if invite, ok := a.engine.PendingInviteFor(agent); ok {
		return []domain.Invitation{invite}
	}
	return nil
}

// --- Schedule queries ---

// GetScheduleSnapshot returns the scheduler's current state for display.
func (a *ObserverAPI) GetScheduleSnapshot() ScheduleDisplay {
	return newScheduleDisplay(a.engine.ScheduleState())
}

// --- Event queries ---

// GetRecentEvents returns every event committed strictly after sinceTick.
func (a *ObserverAPI) GetRecentEvents(sinceTick int) ([]domain.DomainEvent, error) {
	return a.engine.EventsSince(sinceTick)
}

// --- World event commands ---

// DoTriggerEvent commits a freeform world event, optionally located and
// attributed to specific agents.
func (a *ObserverAPI) DoTriggerEvent(description string, loc *domain.LocationID, agentsInvolved []domain.AgentName) (domain.WorldEventOccurred, error) {
	ts := a.engine.CurrentTimeSnapshot()
	event := domain.NewWorldEventOccurred(a.engine.Tick(), ts.WorldTime, description, loc, agentsInvolved)
	if err := a.engine.CommitEvent(event); err != nil {
		return domain.WorldEventOccurred{}, fmt.Errorf("trigger event: %w", err)
	}
	return event, nil
}

// DoSetWeather commits a weather change.
func (a *ObserverAPI) DoSetWeather(newWeather domain.Weather) (domain.WeatherChangedEvent, error) {
	ts := a.engine.CurrentTimeSnapshot()
	event := domain.NewWeatherChangedEvent(a.engine.Tick(), ts.WorldTime, a.engine.Weather(), newWeather)
	if err := a.engine.CommitEvent(event); err != nil {
		return domain.WeatherChangedEvent{}, fmt.Errorf("set weather: %w", err)
	}
	return event, nil
}

// DoSendDream writes a dream entry for agent, visible on its next turn.
func (a *ObserverAPI) DoSendDream(agent domain.AgentName, content string) error {
	if _, ok := a.engine.AgentSnapshot(agent); !ok {
		return &AgentNotFoundError{Agent: agent}
	}
	return a.engine.WriteToAgentDreams(agent, content)
}

// --- Scheduling commands ---

// DoForceTurn prioritizes agent for its next turn.
func (a *ObserverAPI) DoForceTurn(agent domain.AgentName) error {
	if err := a.engine.ForceNextTurn(agent); err != nil {
		return wrapNotFound(agent, err)
	}
	return nil
}

// DoSkipTurns suppresses agent's next count turns.
func (a *ObserverAPI) DoSkipTurns(agent domain.AgentName, count int) error {
	if err := a.engine.SkipTurns(agent, count); err != nil {
		return wrapNotFound(agent, err)
	}
	return nil
}

// DoClearAllModifiers discards every observer-set scheduling modifier.
func (a *ObserverAPI) DoClearAllModifiers() {
	a.engine.ClearAllModifiers()
}

// --- Agent manipulation commands ---

// DoMoveAgent relocates agent to destination. Returns InvalidLocationError
// if destination isn't a known location.
func (a *ObserverAPI) DoMoveAgent(ctx context.Context, agent domain.AgentName, destination domain.LocationID) (domain.MoveAgentEffect, error) {
	snapshot, ok := a.engine.AgentSnapshot(agent)
	if !ok {
		return domain.MoveAgentEffect{}, &AgentNotFoundError{Agent: agent}
	}
	if _, ok := a.engine.Locations()[destination]; !ok {
		return domain.MoveAgentEffect{}, &InvalidLocationError{Location: destination}
	}
	effect := domain.MoveAgentEffect{Agent: agent, FromLocation: snapshot.Location, ToLocation: destination}
	if err := a.engine.ApplyEffect(ctx, effect); err != nil {
		return domain.MoveAgentEffect{}, fmt.Errorf("move agent: %w", err)
	}
	return effect, nil
}

// DoSetMood sets agent's mood.
func (a *ObserverAPI) DoSetMood(ctx context.Context, agent domain.AgentName, mood string) (domain.UpdateMoodEffect, error) {
	if _, ok := a.engine.AgentSnapshot(agent); !ok {
		return domain.UpdateMoodEffect{}, &AgentNotFoundError{Agent: agent}
	}
	effect := domain.UpdateMoodEffect{Agent: agent, Mood: mood}
	if err := a.engine.ApplyEffect(ctx, effect); err != nil {
		return domain.UpdateMoodEffect{}, fmt.Errorf("set mood: %w", err)
	}
	return effect, nil
}

// DoSetSleeping puts agent to sleep or wakes it, whichever sleeping
// requests. Returns the applied effect, or (nil, nil) if the agent was
// already in the requested state.
func (a *ObserverAPI) DoSetSleeping(ctx context.Context, agent domain.AgentName, sleeping bool) (domain.Effect, error) {
	snapshot, ok := a.engine.AgentSnapshot(agent)
	if !ok {
		return nil, &AgentNotFoundError{Agent: agent}
	}
	if snapshot.IsSleeping == sleeping {
		return nil, nil
	}

	var effect domain.Effect
	if sleeping {
		effect = domain.AgentSleepEffect{Agent: agent}
	} else {
		effect = domain.AgentWakeEffect{Agent: agent, Reason: "observer_woke"}
	}
	if err := a.engine.ApplyEffect(ctx, effect); err != nil {
		return nil, fmt.Errorf("set sleeping: %w", err)
	}
	return effect, nil
}

// DoBoostEnergy raises agent's energy by amount, capped at 100.
func (a *ObserverAPI) DoBoostEnergy(ctx context.Context, agent domain.AgentName, amount int) (domain.UpdateEnergyEffect, error) {
	snapshot, ok := a.engine.AgentSnapshot(agent)
	if !ok {
		return domain.UpdateEnergyEffect{}, &AgentNotFoundError{Agent: agent}
	}
	energy := snapshot.Energy + amount
	if energy > 100 {
		energy = 100
	}
	effect := domain.UpdateEnergyEffect{Agent: agent, Energy: energy}
	if err := a.engine.ApplyEffect(ctx, effect); err != nil {
		return domain.UpdateEnergyEffect{}, fmt.Errorf("boost energy: %w", err)
	}
	return effect, nil
}

// DoRecordAction commits an AgentActionEvent describing something the
// agent did, attributed to its current location.
func (a *ObserverAPI) DoRecordAction(agent domain.AgentName, description string) (domain.AgentActionEvent, error) {
	snapshot, ok := a.engine.AgentSnapshot(agent)
	if !ok {
		return domain.AgentActionEvent{}, &AgentNotFoundError{Agent: agent}
	}
	ts := a.engine.CurrentTimeSnapshot()
	event := domain.NewAgentActionEvent(a.engine.Tick(), ts.WorldTime, agent, snapshot.Location, description)
	if err := a.engine.CommitEvent(event); err != nil {
		return domain.AgentActionEvent{}, fmt.Errorf("record action: %w", err)
	}
	return event, nil
}

// --- Conversation commands ---

// DoEndConversation ends the conversation identified by conv, or the
// first conversation found if conv is empty. Returns (false, nil) if
// conv is empty and no conversation exists.
func (a *ObserverAPI) DoEndConversation(ctx context.Context, conv domain.ConversationID) (bool, error) {
	if conv == "" {
		all := a.engine.Conversations()
		if len(all) == 0 {
			return false, nil
		}
		conv = all[0].ID
	} else if _, ok := a.engine.ConversationByID(conv); !ok {
		return false, &ConversationError{ConversationID: conv, Reason: "not found"}
	}

	if err := a.engine.EndConversation(ctx, conv, "observer_ended"); err != nil {
		return false, fmt.Errorf("end conversation: %w", err)
	}
	return true, nil
}

func wrapNotFound(agent domain.AgentName, err error) error {
	var notFound *AgentNotFoundError
	if errors.As(err, &notFound) {
		return notFound
	}
	return fmt.Errorf("agent %s: %w", agent, err)
}
