// Package observer provides the read/command surface a human or a
// transport layer uses to inspect and steer a running village: queries
// never mutate state, commands always go through the engine so every
// change is logged the same way a tick's own effects are.
package observer

import (
	"sort"
	"time"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/scheduler"
)

// AgentDisplay is a flattened view of an agent for display, annotated
// with conversation/invite state that isn't on AgentSnapshot itself.
type AgentDisplay struct {
	Name             domain.AgentName
	ModelDisplay     string
	Location         domain.LocationID
	Mood             string
	Energy           int
	IsSleeping       bool
	InConversation   bool
	HasPendingInvite bool
}

func newAgentDisplay(agent domain.AgentSnapshot, inConversation, hasPendingInvite bool) AgentDisplay {
	return AgentDisplay{
		Name: agent.Name, ModelDisplay: agent.Model.DisplayName, Location: agent.Location,
		Mood: agent.Mood, Energy: agent.Energy, IsSleeping: agent.IsSleeping,
		InConversation: inConversation, HasPendingInvite: hasPendingInvite,
	}
}

// ConversationDisplay is a flattened view of a conversation for display.
type ConversationDisplay struct {
	ID           domain.ConversationID
	Location     domain.LocationID
	Participants []domain.AgentName
	Privacy      domain.Privacy
	TurnCount    int
	LastSpeaker  *domain.AgentName
}

func newConversationDisplay(conv domain.Conversation) ConversationDisplay {
	participants := make([]domain.AgentName, 0, len(conv.Participants))
	for name := range conv.Participants {
		participants = append(participants, name)
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i] < participants[j] })

	var lastSpeaker *domain.AgentName
	if len(conv.History) > 0 {
		s := conv.History[len(conv.History)-1].Speaker
		lastSpeaker = &s
	}

	return ConversationDisplay{
		ID: conv.ID, Location: conv.Location, Participants: participants,
		Privacy: conv.Privacy, TurnCount: len(conv.History), LastSpeaker: lastSpeaker,
	}
}

// InviteDisplay is a flattened view of a pending invitation for display.
type InviteDisplay struct {
	ConversationID domain.ConversationID
	Inviter        domain.AgentName
	Invitee        domain.AgentName
	Location       domain.LocationID
	Privacy        domain.Privacy
	InvitedAt      time.Time
}

func newInviteDisplay(invite domain.Invitation) InviteDisplay {
	return InviteDisplay{
		ConversationID: invite.ConversationID, Inviter: invite.Inviter, Invitee: invite.Invitee,
		Location: invite.Location, Privacy: invite.Privacy, InvitedAt: invite.InvitedAt,
	}
}

// ScheduledEventDisplay is a single pending scheduler entry for display.
type ScheduledEventDisplay struct {
	DueTime   time.Time
	EventType scheduler.EventKind
	TargetID  string
	Location  domain.LocationID
}

func newScheduledEventDisplay(event scheduler.ScheduledEvent) ScheduledEventDisplay {
	return ScheduledEventDisplay{
		DueTime: event.DueTime, EventType: event.EventType,
		TargetID: event.TargetID, Location: event.LocationID,
	}
}

// ScheduleDisplay is the scheduler's state for display.
type ScheduleDisplay struct {
	PendingEvents []ScheduledEventDisplay
	ForcedNext    *domain.AgentName
	SkipCounts    map[domain.AgentName]int
	TurnCounts    map[domain.AgentName]int
}

func newScheduleDisplay(state scheduler.State) ScheduleDisplay {
	pending := make([]ScheduledEventDisplay, len(state.Queue))
	for i, e := range state.Queue {
		pending[i] = newScheduledEventDisplay(e)
	}
	return ScheduleDisplay{
		PendingEvents: pending, ForcedNext: state.ForcedNext,
		SkipCounts: state.SkipCounts, TurnCounts: state.TurnCounts,
	}
}

// TimeDisplay is the world clock for display.
type TimeDisplay struct {
	Tick      int
	Timestamp time.Time
	DayNumber int
	TimeOfDay domain.TimePeriod
	ClockTime string
}

func newTimeDisplay(tick int, ts domain.TimeSnapshot) TimeDisplay {
	return TimeDisplay{
		Tick: tick, Timestamp: ts.WorldTime, DayNumber: ts.DayNumber(),
		TimeOfDay: ts.Period(), ClockTime: ts.WorldTime.Format("15:04"),
	}
}

// VillageDisplay is the complete village state for display, the result
// of GetVillageSnapshot.
type VillageDisplay struct {
	Tick           int
	Time           TimeDisplay
	Weather        domain.Weather
	Agents         map[domain.AgentName]AgentDisplay
	Conversations  []ConversationDisplay
	PendingInvites []InviteDisplay
	Schedule       ScheduleDisplay
}
