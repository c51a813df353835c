// Package scheduler implements the event-driven priority queue that
// decides when agents take their next turn, paced by conversation
// participation, invite-response windows, and solo activity.
package scheduler

import (
	"container/heap"
	"time"

	"github.com/codeready-toolchain/tarsy/internal/domain"
)

// Pacing constants, in minutes of simulated time, and priorities for the
// three event kinds the scheduler manages. Lower priority value sorts
// first among events due at the same instant.
const (
	ConversationPaceMinutes = 5
	SoloPaceMinutes         = 120
	InviteResponseMinutes   = 5

	PriorityInviteResponse    = 1
	PriorityConversationTurn  = 5
	PriorityAgentTurn         = 10
)

// EventKind discriminates what a ScheduledEvent is due to do.
type EventKind string

const (
	EventAgentTurn        EventKind = "agent_turn"
	EventConversationTurn EventKind = "conversation_turn"
	EventInviteResponse   EventKind = "invite_response"
)

// ScheduledEvent is a future action due at a specific time. Ordering for
// the priority queue is primarily by DueTime, with Priority as a
// tiebreaker for events due at the same instant; TargetID and
// LocationID never affect ordering.
type ScheduledEvent struct {
	DueTime    time.Time        `json:"due_time"`
	Priority   int              `json:"priority"`
	EventType  EventKind        `json:"event_type"`
	TargetID   string           `json:"target_id"`
	LocationID domain.LocationID `json:"location_id"`

	index int // heap.Interface bookkeeping, excluded from JSON
}

// eventHeap is the container/heap backing store, ordered by
// (DueTime, Priority).
type eventHeap []*ScheduledEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if !h[i].DueTime.Equal(h[j].DueTime) {
		return h[i].DueTime.Before(h[j].DueTime)
	}
	return h[i].Priority < h[j].Priority
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	e := x.(*ScheduledEvent)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler is an event-driven priority queue of agent/conversation/
// invite turns, plus observer modifiers (forced next turn, skip counts)
// and per-agent turn counters.
type Scheduler struct {
	queue               eventHeap
	agentEvents         map[string]*ScheduledEvent
	inviteEvents        map[string]*ScheduledEvent
	conversationEvents  map[string]*ScheduledEvent

	forcedNext *domain.AgentName
	skipCounts map[domain.AgentName]int
	turnCounts map[domain.AgentName]int

	// lastLocationSpeaker records, per location, the last agent who
	// spoke in a conversation there. The reference scheduler has no
	// equivalent accessor; the schedule phase reads it when several
	// agents at one location are due, to avoid picking the same agent
	// back to back, so it is tracked here and included in snapshot state.
	lastLocationSpeaker map[domain.LocationID]domain.AgentName
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		agentEvents:         make(map[string]*ScheduledEvent),
		inviteEvents:        make(map[string]*ScheduledEvent),
		conversationEvents:  make(map[string]*ScheduledEvent),
		skipCounts:          make(map[domain.AgentName]int),
		turnCounts:          make(map[domain.AgentName]int),
		lastLocationSpeaker: make(map[domain.LocationID]domain.AgentName),
	}
}

// Schedule pushes a new event and indexes it by kind.
func (s *Scheduler) Schedule(event ScheduledEvent) {
	e := &event
	heap.Push(&s.queue, e)
	s.index(e)
}

func (s *Scheduler) index(e *ScheduledEvent) {
	switch e.EventType {
	case EventAgentTurn:
		s.agentEvents[e.TargetID] = e
	case EventInviteResponse:
		s.inviteEvents[e.TargetID] = e
	case EventConversationTurn:
		s.conversationEvents[e.TargetID] = e
	}
}

func (s *Scheduler) deindex(e *ScheduledEvent) {
	switch e.EventType {
	case EventAgentTurn:
		delete(s.agentEvents, e.TargetID)
	case EventInviteResponse:
		delete(s.inviteEvents, e.TargetID)
	case EventConversationTurn:
		delete(s.conversationEvents, e.TargetID)
	}
}

// ScheduleAgentTurn schedules an agent's next turn.
func (s *Scheduler) ScheduleAgentTurn(agent domain.AgentName, location domain.LocationID, dueTime time.Time) {
	s.Schedule(ScheduledEvent{
		DueTime: dueTime, Priority: PriorityAgentTurn,
		EventType: EventAgentTurn, TargetID: string(agent), LocationID: location,
	})
}

// ScheduleConversationTurn schedules a conversation's next turn.
func (s *Scheduler) ScheduleConversationTurn(conversationID domain.ConversationID, location domain.LocationID, dueTime time.Time) {
	s.Schedule(ScheduledEvent{
		DueTime: dueTime, Priority: PriorityConversationTurn,
		EventType: EventConversationTurn, TargetID: string(conversationID), LocationID: location,
	})
}

// ScheduleInviteResponse schedules an invite-response window for an agent.
func (s *Scheduler) ScheduleInviteResponse(agent domain.AgentName, location domain.LocationID, dueTime time.Time) {
	s.Schedule(ScheduledEvent{
		DueTime: dueTime, Priority: PriorityInviteResponse,
		EventType: EventInviteResponse, TargetID: string(agent), LocationID: location,
	})
}

// GetEarliestDueTime returns the due time at the head of the queue, or
// the zero time and false if the queue is empty.
func (s *Scheduler) GetEarliestDueTime() (time.Time, bool) {
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].DueTime, true
}

// PopEventsAt pops all events due at exactly this instant.
func (s *Scheduler) PopEventsAt(t time.Time) []ScheduledEvent {
	var out []ScheduledEvent
	for len(s.queue) > 0 && s.queue[0].DueTime.Equal(t) {
		e := heap.Pop(&s.queue).(*ScheduledEvent)
		s.deindex(e)
		out = append(out, *e)
	}
	return out
}

// PopEventsUpTo pops all events due at or before this instant.
func (s *Scheduler) PopEventsUpTo(t time.Time) []ScheduledEvent {
	var out []ScheduledEvent
	for len(s.queue) > 0 && !s.queue[0].DueTime.After(t) {
		e := heap.Pop(&s.queue).(*ScheduledEvent)
		s.deindex(e)
		out = append(out, *e)
	}
	return out
}

// CancelAgentEvents removes all pending events for an agent.
func (s *Scheduler) CancelAgentEvents(agent domain.AgentName) {
	delete(s.agentEvents, string(agent))
	delete(s.inviteEvents, string(agent))

	filtered := s.queue[:0]
	for _, e := range s.queue {
		if e.TargetID == string(agent) {
			continue
		}
		filtered = append(filtered, e)
	}
	s.queue = filtered
	heap.Init(&s.queue)
}

// HasPendingEvent reports whether an agent has a pending turn or invite
// response event.
func (s *Scheduler) HasPendingEvent(agent domain.AgentName) bool {
	return s.HasPendingAgentTurn(agent) || s.HasPendingInviteResponse(agent)
}

func (s *Scheduler) HasPendingAgentTurn(agent domain.AgentName) bool {
	_, ok := s.agentEvents[string(agent)]
	return ok
}

func (s *Scheduler) HasPendingInviteResponse(agent domain.AgentName) bool {
	_, ok := s.inviteEvents[string(agent)]
	return ok
}

func (s *Scheduler) HasPendingConversationTurn(conversationID domain.ConversationID) bool {
	_, ok := s.conversationEvents[string(conversationID)]
	return ok
}

// --- Observer modifiers ---

func (s *Scheduler) ForceNextTurn(agent domain.AgentName) {
	a := agent
	s.forcedNext = &a
}

func (s *Scheduler) ClearForcedNext() {
	s.forcedNext = nil
}

func (s *Scheduler) GetForcedNext() (domain.AgentName, bool) {
	if s.forcedNext == nil {
		return "", false
	}
	return *s.forcedNext, true
}

// ClearAllModifiers discards every observer-set modifier: the forced
// next turn and every agent's skip count. Pending scheduled events and
// turn counts are untouched.
func (s *Scheduler) ClearAllModifiers() {
	s.forcedNext = nil
	s.skipCounts = make(map[domain.AgentName]int)
}

func (s *Scheduler) SkipTurns(agent domain.AgentName, count int) {
	s.skipCounts[agent] = count
}

func (s *Scheduler) GetSkipCount(agent domain.AgentName) int {
	return s.skipCounts[agent]
}

func (s *Scheduler) DecrementSkip(agent domain.AgentName) {
	if n, ok := s.skipCounts[agent]; ok {
		n--
		if n <= 0 {
			delete(s.skipCounts, agent)
		} else {
			s.skipCounts[agent] = n
		}
	}
}

// RecordTurn records that an agent took a turn, clearing a matching
// forced-next marker.
func (s *Scheduler) RecordTurn(agent domain.AgentName) {
	s.turnCounts[agent]++
	if s.forcedNext != nil && *s.forcedNext == agent {
		s.forcedNext = nil
	}
}

func (s *Scheduler) GetTurnCount(agent domain.AgentName) int {
	return s.turnCounts[agent]
}

// RecordLocationSpeaker records that agent was the last to speak at
// location. Read by the schedule phase to avoid immediately picking the
// same agent again at a busy location.
func (s *Scheduler) RecordLocationSpeaker(location domain.LocationID, agent domain.AgentName) {
	s.lastLocationSpeaker[location] = agent
}

// GetLastLocationSpeaker returns the last agent recorded as speaking at
// location, if any.
func (s *Scheduler) GetLastLocationSpeaker(location domain.LocationID) (domain.AgentName, bool) {
	a, ok := s.lastLocationSpeaker[location]
	return a, ok
}

// --- State persistence ---

// State is the serializable snapshot of scheduler state.
type State struct {
	Queue               []ScheduledEvent                       `json:"queue"`
	ForcedNext          *domain.AgentName                      `json:"forced_next,omitempty"`
	SkipCounts          map[domain.AgentName]int               `json:"skip_counts"`
	TurnCounts          map[domain.AgentName]int               `json:"turn_counts"`
	LastLocationSpeaker map[domain.LocationID]domain.AgentName `json:"last_location_speaker"`
}

// ToState exports current state for snapshot persistence.
func (s *Scheduler) ToState() State {
	queue := make([]ScheduledEvent, len(s.queue))
	for i, e := range s.queue {
		queue[i] = *e
	}

	skipCounts := make(map[domain.AgentName]int, len(s.skipCounts))
	for k, v := range s.skipCounts {
		skipCounts[k] = v
	}
	turnCounts := make(map[domain.AgentName]int, len(s.turnCounts))
	for k, v := range s.turnCounts {
		turnCounts[k] = v
	}
	lastSpeaker := make(map[domain.LocationID]domain.AgentName, len(s.lastLocationSpeaker))
	for k, v := range s.lastLocationSpeaker {
		lastSpeaker[k] = v
	}

	var forcedNext *domain.AgentName
	if s.forcedNext != nil {
		a := *s.forcedNext
		forcedNext = &a
	}

	return State{
		Queue:               queue,
		ForcedNext:          forcedNext,
		SkipCounts:          skipCounts,
		TurnCounts:          turnCounts,
		LastLocationSpeaker: lastSpeaker,
	}
}

// LoadState rebuilds the scheduler from a snapshot, reconstructing the
// heap and indexes from the serialized queue.
func (s *Scheduler) LoadState(state State) {
	s.queue = make(eventHeap, len(state.Queue))
	for i := range state.Queue {
		e := state.Queue[i]
		s.queue[i] = &e
	}
	heap.Init(&s.queue)

	s.agentEvents = make(map[string]*ScheduledEvent)
	s.inviteEvents = make(map[string]*ScheduledEvent)
	s.conversationEvents = make(map[string]*ScheduledEvent)
	for _, e := range s.queue {
		s.index(e)
	}

	if state.ForcedNext != nil {
		a := *state.ForcedNext
		s.forcedNext = &a
	} else {
		s.forcedNext = nil
	}

	s.skipCounts = make(map[domain.AgentName]int, len(state.SkipCounts))
	for k, v := range state.SkipCounts {
		s.skipCounts[k] = v
	}
	s.turnCounts = make(map[domain.AgentName]int, len(state.TurnCounts))
	for k, v := range state.TurnCounts {
		s.turnCounts[k] = v
	}
	s.lastLocationSpeaker = make(map[domain.LocationID]domain.AgentName, len(state.LastLocationSpeaker))
	for k, v := range state.LastLocationSpeaker {
		s.lastLocationSpeaker[k] = v
	}
}
