package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// ConversationTurn is a single turn in a conversation.
type ConversationTurn struct {
	Speaker             AgentName `json:"speaker"`
	Narrative           string    `json:"narrative"`
	Tick                int       `json:"tick"`
	Timestamp           time.Time `json:"timestamp"`
	IsDeparture         bool      `json:"is_departure"`
	NarrativeWithTools  *string   `json:"narrative_with_tools,omitempty"`
}

// Invitation is a pending invitation to a conversation.
type Invitation struct {
	ConversationID ConversationID `json:"conversation_id"`
	Inviter        AgentName      `json:"inviter"`
	Invitee        AgentName      `json:"invitee"`
	Location       LocationID     `json:"location"`
	Privacy        Privacy        `json:"privacy"`
	CreatedAtTick  int            `json:"created_at_tick"`
	ExpiresAtTick  int            `json:"expires_at_tick"`
	InvitedAt      time.Time      `json:"invited_at"`
}

// Expired reports whether the invite has passed its expiry tick.
func (i Invitation) Expired(currentTick int) bool {
	return i.ExpiresAtTick <= currentTick
}

// Conversation is an active, located conversation with an ordered turn
// history.
type Conversation struct {
	ID            ConversationID          `json:"id"`
	Location      LocationID              `json:"location"`
	Privacy       Privacy                 `json:"privacy"`
	Participants  map[AgentName]struct{}  `json:"-"`
	History       []ConversationTurn      `json:"history"`
	StartedAtTick int                     `json:"started_at_tick"`
	CreatedBy     AgentName               `json:"created_by"`
	NextSpeaker   *AgentName              `json:"next_speaker,omitempty"`
}

// ParticipantNames returns the participants as a slice, in
// unspecified order.
func (c Conversation) ParticipantNames() []AgentName {
	names := make([]AgentName, 0, len(c.Participants))
	for name := range c.Participants {
		names = append(names, name)
	}
	return names
}

// HasParticipant reports whether agent is a participant.
func (c Conversation) HasParticipant(agent AgentName) bool {
	_, ok := c.Participants[agent]
	return ok
}

// WithParticipant returns a copy with agent added to the participant set.
func (c Conversation) WithParticipant(agent AgentName) Conversation {
	next := c
	next.Participants = cloneParticipants(c.Participants)
	next.Participants[agent] = struct{}{}
	return next
}

// WithoutParticipant returns a copy with agent removed from the
// participant set.
func (c Conversation) WithoutParticipant(agent AgentName) Conversation {
	next := c
	next.Participants = cloneParticipants(c.Participants)
	delete(next.Participants, agent)
	return next
}

// WithParticipants returns a copy with the participant set replaced.
func (c Conversation) WithParticipants(participants map[AgentName]struct{}) Conversation {
	next := c
	next.Participants = cloneParticipants(participants)
	return next
}

// WithTurn appends a turn to the history and clears NextSpeaker if the
// speaker just spoke.
func (c Conversation) WithTurn(turn ConversationTurn) Conversation {
	next := c
	history := make([]ConversationTurn, len(c.History), len(c.History)+1)
	copy(history, c.History)
	next.History = append(history, turn)
	if c.NextSpeaker != nil && *c.NextSpeaker == turn.Speaker {
		next.NextSpeaker = nil
	}
	return next
}

// WithNextSpeaker returns a copy with NextSpeaker replaced.
func (c Conversation) WithNextSpeaker(speaker AgentName) Conversation {
	next := c
	s := speaker
	next.NextSpeaker = &s
	return next
}

// WithLocation returns a copy with Location replaced.
func (c Conversation) WithLocation(loc LocationID) Conversation {
	next := c
	next.Location = loc
	return next
}

// conversationJSON is the wire shape of Conversation: the participant
// set becomes a sorted array since Go maps have no canonical JSON
// array form.
type conversationJSON struct {
	ID            ConversationID     `json:"id"`
	Location      LocationID         `json:"location"`
	Privacy       Privacy            `json:"privacy"`
	Participants  []AgentName        `json:"participants"`
	History       []ConversationTurn `json:"history"`
	StartedAtTick int                `json:"started_at_tick"`
	CreatedBy     AgentName          `json:"created_by"`
	NextSpeaker   *AgentName         `json:"next_speaker,omitempty"`
}

// MarshalJSON renders Participants as a sorted array for a stable,
// diffable wire format.
func (c Conversation) MarshalJSON() ([]byte, error) {
	names := c.ParticipantNames()
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return json.Marshal(conversationJSON{
		ID: c.ID, Location: c.Location, Privacy: c.Privacy,
		Participants: names, History: c.History,
		StartedAtTick: c.StartedAtTick, CreatedBy: c.CreatedBy, NextSpeaker: c.NextSpeaker,
	})
}

// UnmarshalJSON rebuilds Participants as a set from the wire array.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	var wire conversationJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	participants := make(map[AgentName]struct{}, len(wire.Participants))
	for _, name := range wire.Participants {
		participants[name] = struct{}{}
	}
	*c = Conversation{
		ID: wire.ID, Location: wire.Location, Privacy: wire.Privacy,
		Participants: participants, History: wire.History,
		StartedAtTick: wire.StartedAtTick, CreatedBy: wire.CreatedBy, NextSpeaker: wire.NextSpeaker,
	}
	return nil
}

func cloneParticipants(src map[AgentName]struct{}) map[AgentName]struct{} {
	dst := make(map[AgentName]struct{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// UnseenConversationEnding is a per-agent notification of a conversation
// that ended with a final message the agent has not yet observed.
type UnseenConversationEnding struct {
	ConversationID   ConversationID `json:"conversation_id"`
	OtherParticipant AgentName      `json:"other_participant"`
	FinalMessage     *string        `json:"final_message,omitempty"`
	EndedAtTick      int            `json:"ended_at_tick"`
}
