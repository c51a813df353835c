package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DomainEvent is a tagged variant describing a fact that has occurred.
// Every event carries tick, timestamp, and a type discriminator. Events
// are the authoritative history; effects are transient.
type DomainEvent interface {
	EventType() string
	EventTick() int
	EventTimestamp() time.Time
}

// meta holds the fields common to every event kind.
type meta struct {
	Type      string    `json:"type"`
	Tick      int       `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
}

func (m meta) EventType() string           { return m.Type }
func (m meta) EventTick() int               { return m.Tick }
func (m meta) EventTimestamp() time.Time    { return m.Timestamp }

func newMeta(kind string, tick int, timestamp time.Time) meta {
	return meta{Type: kind, Tick: tick, Timestamp: timestamp}
}

// --- Agent events ---

const (
	TypeAgentMoved                     = "agent_moved"
	TypeAgentMoodChanged               = "agent_mood_changed"
	TypeAgentEnergyChanged             = "agent_energy_changed"
	TypeAgentAction                    = "agent_action"
	TypeAgentSlept                     = "agent_slept"
	TypeAgentWoke                      = "agent_woke"
	TypeAgentLastActiveTickUpdated     = "agent_last_active_tick_updated"
	TypeAgentSessionIDUpdated          = "agent_session_id_updated"
	TypeConversationInvited            = "conversation_invited"
	TypeConversationInviteAccepted     = "conversation_invite_accepted"
	TypeConversationInviteDeclined     = "conversation_invite_declined"
	TypeConversationInviteExpired      = "conversation_invite_expired"
	TypeConversationStarted            = "conversation_started"
	TypeConversationJoined             = "conversation_joined"
	TypeConversationLeft               = "conversation_left"
	TypeConversationTurn               = "conversation_turn"
	TypeConversationNextSpeakerSet     = "conversation_next_speaker_set"
	TypeConversationEnded              = "conversation_ended"
	TypeConversationMoved              = "conversation_moved"
	TypeConversationEndingSeen         = "conversation_ending_seen"
	TypeConversationEndingUnseen       = "conversation_ending_unseen"
	TypeWorldEvent                     = "world_event"
	TypeWeatherChanged                 = "weather_changed"
	TypeNightSkipped                   = "night_skipped"
	TypeDidCompact                     = "did_compact"
	TypeSessionTokensReset             = "session_tokens_reset"
	TypeAgentTokenUsageRecorded        = "agent_token_usage_recorded"
	TypeInterpreterTokenUsageRecorded  = "interpreter_token_usage_recorded"
)

type AgentMovedEvent struct {
	meta
	Agent        AgentName  `json:"agent"`
	FromLocation LocationID `json:"from_location"`
	ToLocation   LocationID `json:"to_location"`
}

func NewAgentMovedEvent(tick int, ts time.Time, agent AgentName, from, to LocationID) AgentMovedEvent {
	return AgentMovedEvent{meta: newMeta(TypeAgentMoved, tick, ts), Agent: agent, FromLocation: from, ToLocation: to}
}

type AgentMoodChangedEvent struct {
	meta
	Agent    AgentName `json:"agent"`
	OldMood  string    `json:"old_mood"`
	NewMood  string    `json:"new_mood"`
}

func NewAgentMoodChangedEvent(tick int, ts time.Time, agent AgentName, oldMood, newMood string) AgentMoodChangedEvent {
	return AgentMoodChangedEvent{meta: newMeta(TypeAgentMoodChanged, tick, ts), Agent: agent, OldMood: oldMood, NewMood: newMood}
}

type AgentEnergyChangedEvent struct {
	meta
	Agent     AgentName `json:"agent"`
	OldEnergy int       `json:"old_energy"`
	NewEnergy int       `json:"new_energy"`
}

func NewAgentEnergyChangedEvent(tick int, ts time.Time, agent AgentName, oldEnergy, newEnergy int) AgentEnergyChangedEvent {
	return AgentEnergyChangedEvent{meta: newMeta(TypeAgentEnergyChanged, tick, ts), Agent: agent, OldEnergy: oldEnergy, NewEnergy: newEnergy}
}

type AgentActionEvent struct {
	meta
	Agent       AgentName  `json:"agent"`
	Location    LocationID `json:"location"`
	Description string     `json:"description"`
}

func NewAgentActionEvent(tick int, ts time.Time, agent AgentName, loc LocationID, description string) AgentActionEvent {
	return AgentActionEvent{meta: newMeta(TypeAgentAction, tick, ts), Agent: agent, Location: loc, Description: description}
}

type AgentSleptEvent struct {
	meta
	Agent    AgentName  `json:"agent"`
	Location LocationID `json:"location"`
}

func NewAgentSleptEvent(tick int, ts time.Time, agent AgentName, loc LocationID) AgentSleptEvent {
	return AgentSleptEvent{meta: newMeta(TypeAgentSlept, tick, ts), Agent: agent, Location: loc}
}

type AgentWokeEvent struct {
	meta
	Agent    AgentName  `json:"agent"`
	Location LocationID `json:"location"`
	Reason   string     `json:"reason"`
}

func NewAgentWokeEvent(tick int, ts time.Time, agent AgentName, loc LocationID, reason string) AgentWokeEvent {
	return AgentWokeEvent{meta: newMeta(TypeAgentWoke, tick, ts), Agent: agent, Location: loc, Reason: reason}
}

type AgentLastActiveTickUpdatedEvent struct {
	meta
	Agent              AgentName `json:"agent"`
	OldLastActiveTick  int       `json:"old_last_active_tick"`
	NewLastActiveTick  int       `json:"new_last_active_tick"`
}

func NewAgentLastActiveTickUpdatedEvent(tick int, ts time.Time, agent AgentName, oldTick, newTick int) AgentLastActiveTickUpdatedEvent {
	return AgentLastActiveTickUpdatedEvent{meta: newMeta(TypeAgentLastActiveTickUpdated, tick, ts), Agent: agent, OldLastActiveTick: oldTick, NewLastActiveTick: newTick}
}

type AgentSessionIDUpdatedEvent struct {
	meta
	Agent         AgentName `json:"agent"`
	OldSessionID  *string   `json:"old_session_id,omitempty"`
	NewSessionID  string    `json:"new_session_id"`
}

func NewAgentSessionIDUpdatedEvent(tick int, ts time.Time, agent AgentName, oldID *string, newID string) AgentSessionIDUpdatedEvent {
	return AgentSessionIDUpdatedEvent{meta: newMeta(TypeAgentSessionIDUpdated, tick, ts), Agent: agent, OldSessionID: oldID, NewSessionID: newID}
}

// --- Conversation events ---

type ConversationInvitedEvent struct {
	meta
	ConversationID ConversationID `json:"conversation_id"`
	Inviter        AgentName      `json:"inviter"`
	Invitee        AgentName      `json:"invitee"`
	Location       LocationID     `json:"location"`
	Privacy        Privacy        `json:"privacy"`
}

func NewConversationInvitedEvent(tick int, ts time.Time, convID ConversationID, inviter, invitee AgentName, loc LocationID, privacy Privacy) ConversationInvitedEvent {
	return ConversationInvitedEvent{meta: newMeta(TypeConversationInvited, tick, ts), ConversationID: convID, Inviter: inviter, Invitee: invitee, Location: loc, Privacy: privacy}
}

type ConversationInviteAcceptedEvent struct {
	meta
	ConversationID ConversationID `json:"conversation_id"`
	Inviter        AgentName      `json:"inviter"`
	Invitee        AgentName      `json:"invitee"`
}

func NewConversationInviteAcceptedEvent(tick int, ts time.Time, convID ConversationID, inviter, invitee AgentName) ConversationInviteAcceptedEvent {
	return ConversationInviteAcceptedEvent{meta: newMeta(TypeConversationInviteAccepted, tick, ts), ConversationID: convID, Inviter: inviter, Invitee: invitee}
}

type ConversationInviteDeclinedEvent struct {
	meta
	ConversationID ConversationID `json:"conversation_id"`
	Inviter        AgentName      `json:"inviter"`
	Invitee        AgentName      `json:"invitee"`
}

func NewConversationInviteDeclinedEvent(tick int, ts time.Time, convID ConversationID, inviter, invitee AgentName) ConversationInviteDeclinedEvent {
	return ConversationInviteDeclinedEvent{meta: newMeta(TypeConversationInviteDeclined, tick, ts), ConversationID: convID, Inviter: inviter, Invitee: invitee}
}

type ConversationInviteExpiredEvent struct {
	meta
	ConversationID ConversationID `json:"conversation_id"`
	Inviter        AgentName      `json:"inviter"`
	Invitee        AgentName      `json:"invitee"`
}

func NewConversationInviteExpiredEvent(tick int, ts time.Time, convID ConversationID, inviter, invitee AgentName) ConversationInviteExpiredEvent {
	return ConversationInviteExpiredEvent{meta: newMeta(TypeConversationInviteExpired, tick, ts), ConversationID: convID, Inviter: inviter, Invitee: invitee}
}

type ConversationStartedEvent struct {
	meta
	ConversationID      ConversationID `json:"conversation_id"`
	Location            LocationID     `json:"location"`
	Privacy             Privacy        `json:"privacy"`
	InitialParticipants []AgentName    `json:"initial_participants"`
}

func NewConversationStartedEvent(tick int, ts time.Time, convID ConversationID, loc LocationID, privacy Privacy, initial []AgentName) ConversationStartedEvent {
	return ConversationStartedEvent{meta: newMeta(TypeConversationStarted, tick, ts), ConversationID: convID, Location: loc, Privacy: privacy, InitialParticipants: initial}
}

type ConversationJoinedEvent struct {
	meta
	ConversationID ConversationID `json:"conversation_id"`
	Agent          AgentName      `json:"agent"`
}

func NewConversationJoinedEvent(tick int, ts time.Time, convID ConversationID, agent AgentName) ConversationJoinedEvent {
	return ConversationJoinedEvent{meta: newMeta(TypeConversationJoined, tick, ts), ConversationID: convID, Agent: agent}
}

type ConversationLeftEvent struct {
	meta
	ConversationID ConversationID `json:"conversation_id"`
	Agent          AgentName      `json:"agent"`
}

func NewConversationLeftEvent(tick int, ts time.Time, convID ConversationID, agent AgentName) ConversationLeftEvent {
	return ConversationLeftEvent{meta: newMeta(TypeConversationLeft, tick, ts), ConversationID: convID, Agent: agent}
}

type ConversationTurnEvent struct {
	meta
	ConversationID     ConversationID `json:"conversation_id"`
	Speaker            AgentName      `json:"speaker"`
	Narrative          string         `json:"narrative"`
	NarrativeWithTools *string        `json:"narrative_with_tools,omitempty"`
	IsDeparture        bool           `json:"is_departure"`
}

func NewConversationTurnEvent(tick int, ts time.Time, convID ConversationID, speaker AgentName, narrative string, narrativeWithTools *string, isDeparture bool) ConversationTurnEvent {
	return ConversationTurnEvent{meta: newMeta(TypeConversationTurn, tick, ts), ConversationID: convID, Speaker: speaker, Narrative: narrative, NarrativeWithTools: narrativeWithTools, IsDeparture: isDeparture}
}

type ConversationNextSpeakerSetEvent struct {
	meta
	ConversationID ConversationID `json:"conversation_id"`
	NextSpeaker    AgentName      `json:"next_speaker"`
}

func NewConversationNextSpeakerSetEvent(tick int, ts time.Time, convID ConversationID, next AgentName) ConversationNextSpeakerSetEvent {
	return ConversationNextSpeakerSetEvent{meta: newMeta(TypeConversationNextSpeakerSet, tick, ts), ConversationID: convID, NextSpeaker: next}
}

type ConversationEndedEvent struct {
	meta
	ConversationID     ConversationID `json:"conversation_id"`
	Reason             string         `json:"reason"`
	FinalParticipants  []AgentName    `json:"final_participants"`
	Summary            string         `json:"summary"`
}

func NewConversationEndedEvent(tick int, ts time.Time, convID ConversationID, reason string, finalParticipants []AgentName, summary string) ConversationEndedEvent {
	return ConversationEndedEvent{meta: newMeta(TypeConversationEnded, tick, ts), ConversationID: convID, Reason: reason, FinalParticipants: finalParticipants, Summary: summary}
}

type ConversationMovedEvent struct {
	meta
	ConversationID ConversationID `json:"conversation_id"`
	InitiatedBy    AgentName      `json:"initiated_by"`
	FromLocation   LocationID     `json:"from_location"`
	ToLocation     LocationID     `json:"to_location"`
	Participants   []AgentName    `json:"participants"`
}

func NewConversationMovedEvent(tick int, ts time.Time, convID ConversationID, initiatedBy AgentName, from, to LocationID, participants []AgentName) ConversationMovedEvent {
	return ConversationMovedEvent{meta: newMeta(TypeConversationMoved, tick, ts), ConversationID: convID, InitiatedBy: initiatedBy, FromLocation: from, ToLocation: to, Participants: participants}
}

type ConversationEndingSeenEvent struct {
	meta
	Agent          AgentName      `json:"agent"`
	ConversationID ConversationID `json:"conversation_id"`
}

func NewConversationEndingSeenEvent(tick int, ts time.Time, agent AgentName, convID ConversationID) ConversationEndingSeenEvent {
	return ConversationEndingSeenEvent{meta: newMeta(TypeConversationEndingSeen, tick, ts), Agent: agent, ConversationID: convID}
}

type ConversationEndingUnseenEvent struct {
	meta
	Agent            AgentName      `json:"agent"`
	ConversationID   ConversationID `json:"conversation_id"`
	OtherParticipant AgentName      `json:"other_participant"`
	FinalMessage     *string        `json:"final_message,omitempty"`
}

func NewConversationEndingUnseenEvent(tick int, ts time.Time, agent AgentName, convID ConversationID, other AgentName, finalMessage *string) ConversationEndingUnseenEvent {
	return ConversationEndingUnseenEvent{meta: newMeta(TypeConversationEndingUnseen, tick, ts), Agent: agent, ConversationID: convID, OtherParticipant: other, FinalMessage: finalMessage}
}

// --- World events ---

type WorldEventOccurred struct {
	meta
	Description    string      `json:"description"`
	Location       *LocationID `json:"location,omitempty"`
	AgentsInvolved []AgentName `json:"agents_involved"`
}

func NewWorldEventOccurred(tick int, ts time.Time, description string, loc *LocationID, agents []AgentName) WorldEventOccurred {
	return WorldEventOccurred{meta: newMeta(TypeWorldEvent, tick, ts), Description: description, Location: loc, AgentsInvolved: agents}
}

type WeatherChangedEvent struct {
	meta
	OldWeather Weather `json:"old_weather"`
	NewWeather Weather `json:"new_weather"`
}

func NewWeatherChangedEvent(tick int, ts time.Time, oldWeather, newWeather Weather) WeatherChangedEvent {
	return WeatherChangedEvent{meta: newMeta(TypeWeatherChanged, tick, ts), OldWeather: oldWeather, NewWeather: newWeather}
}

// NightSkippedEvent marks that the engine jumped directly to the next
// 06:00 because every agent was asleep and it was not yet morning. It is
// always the first event of the tick in which it occurs.
type NightSkippedEvent struct {
	meta
	FromTime time.Time `json:"from_time"`
	ToTime   time.Time `json:"to_time"`
}

func NewNightSkippedEvent(tick int, ts time.Time, from, to time.Time) NightSkippedEvent {
	return NightSkippedEvent{meta: newMeta(TypeNightSkipped, tick, ts), FromTime: from, ToTime: to}
}

// --- Compaction & token usage events ---

type DidCompactEvent struct {
	meta
	Agent      AgentName `json:"agent"`
	Critical   bool      `json:"critical"`
	PreTokens  int       `json:"pre_tokens"`
	PostTokens int       `json:"post_tokens"`
}

func NewDidCompactEvent(tick int, ts time.Time, agent AgentName, critical bool, preTokens, postTokens int) DidCompactEvent {
	return DidCompactEvent{meta: newMeta(TypeDidCompact, tick, ts), Agent: agent, Critical: critical, PreTokens: preTokens, PostTokens: postTokens}
}

type SessionTokensResetEvent struct {
	meta
	Agent            AgentName `json:"agent"`
	OldSessionTokens int       `json:"old_session_tokens"`
	NewSessionTokens int       `json:"new_session_tokens"`
}

func NewSessionTokensResetEvent(tick int, ts time.Time, agent AgentName, oldTokens, newTokens int) SessionTokensResetEvent {
	return SessionTokensResetEvent{meta: newMeta(TypeSessionTokensReset, tick, ts), Agent: agent, OldSessionTokens: oldTokens, NewSessionTokens: newTokens}
}

type AgentTokenUsageRecordedEvent struct {
	meta
	Agent                    AgentName `json:"agent"`
	InputTokens              int       `json:"input_tokens"`
	OutputTokens             int       `json:"output_tokens"`
	CacheCreationInputTokens int       `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int       `json:"cache_read_input_tokens"`
	NewSessionTokens         int       `json:"new_session_tokens"`
}

func NewAgentTokenUsageRecordedEvent(tick int, ts time.Time, agent AgentName, input, output, cacheCreation, cacheRead, newSessionTokens int) AgentTokenUsageRecordedEvent {
	return AgentTokenUsageRecordedEvent{
		meta: newMeta(TypeAgentTokenUsageRecorded, tick, ts), Agent: agent,
		InputTokens: input, OutputTokens: output,
		CacheCreationInputTokens: cacheCreation, CacheReadInputTokens: cacheRead,
		NewSessionTokens: newSessionTokens,
	}
}

type InterpreterTokenUsageRecordedEvent struct {
	meta
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func NewInterpreterTokenUsageRecordedEvent(tick int, ts time.Time, input, output int) InterpreterTokenUsageRecordedEvent {
	return InterpreterTokenUsageRecordedEvent{meta: newMeta(TypeInterpreterTokenUsageRecorded, tick, ts), InputTokens: input, OutputTokens: output}
}

// --- JSON decoding ---

type eventEnvelope struct {
	Type string `json:"type"`
}

// DecodeEvent parses a single NDJSON line into the concrete DomainEvent
// it describes, dispatching on the "type" discriminator. Every line must
// be parseable independently.
func DecodeEvent(data []byte) (DomainEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	var target DomainEvent
	switch env.Type {
	case TypeAgentMoved:
		var e AgentMovedEvent
		target = &e
	case TypeAgentMoodChanged:
		var e AgentMoodChangedEvent
		target = &e
	case TypeAgentEnergyChanged:
		var e AgentEnergyChangedEvent
		target = &e
	case TypeAgentAction:
		var e AgentActionEvent
		target = &e
	case TypeAgentSlept:
		var e AgentSleptEvent
		target = &e
	case TypeAgentWoke:
		var e AgentWokeEvent
		target = &e
	case TypeAgentLastActiveTickUpdated:
		var e AgentLastActiveTickUpdatedEvent
		target = &e
	case TypeAgentSessionIDUpdated:
		var e AgentSessionIDUpdatedEvent
		target = &e
	case TypeConversationInvited:
		var e ConversationInvitedEvent
		target = &e
	case TypeConversationInviteAccepted:
		var e ConversationInviteAcceptedEvent
		target = &e
	case TypeConversationInviteDeclined:
		var e ConversationInviteDeclinedEvent
		target = &e
	case TypeConversationInviteExpired:
		var e ConversationInviteExpiredEvent
		target = &e
	case TypeConversationStarted:
		var e ConversationStartedEvent
		target = &e
	case TypeConversationJoined:
		var e ConversationJoinedEvent
		target = &e
	case TypeConversationLeft:
		var e ConversationLeftEvent
		target = &e
	case TypeConversationTurn:
		var e ConversationTurnEvent
		target = &e
	case TypeConversationNextSpeakerSet:
		var e ConversationNextSpeakerSetEvent
		target = &e
	case TypeConversationEnded:
		var e ConversationEndedEvent
		target = &e
	case TypeConversationMoved:
		var e ConversationMovedEvent
		target = &e
	case TypeConversationEndingSeen:
		var e ConversationEndingSeenEvent
		target = &e
	case TypeConversationEndingUnseen:
		var e ConversationEndingUnseenEvent
		target = &e
	case TypeWorldEvent:
		var e WorldEventOccurred
		target = &e
	case TypeWeatherChanged:
		var e WeatherChangedEvent
		target = &e
	case TypeNightSkipped:
		var e NightSkippedEvent
		target = &e
	case TypeDidCompact:
		var e DidCompactEvent
		target = &e
	case TypeSessionTokensReset:
		var e SessionTokensResetEvent
		target = &e
	case TypeAgentTokenUsageRecorded:
		var e AgentTokenUsageRecordedEvent
		target = &e
	case TypeInterpreterTokenUsageRecorded:
		var e InterpreterTokenUsageRecordedEvent
		target = &e
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("decode event %q: %w", env.Type, err)
	}
	return derefEvent(target), nil
}

// derefEvent unwraps the pointer used for unmarshalling back into the
// value stored in the event slice, so callers deal in values, not
// pointers, consistent with every constructor above.
func derefEvent(e DomainEvent) DomainEvent {
	switch v := e.(type) {
	case *AgentMovedEvent:
		return *v
	case *AgentMoodChangedEvent:
		return *v
	case *AgentEnergyChangedEvent:
		return *v
	case *AgentActionEvent:
		return *v
	case *AgentSleptEvent:
		return *v
	case *AgentWokeEvent:
		return *v
	case *AgentLastActiveTickUpdatedEvent:
		return *v
	case *AgentSessionIDUpdatedEvent:
		return *v
	case *ConversationInvitedEvent:
		return *v
	case *ConversationInviteAcceptedEvent:
		return *v
	case *ConversationInviteDeclinedEvent:
		return *v
	case *ConversationInviteExpiredEvent:
		return *v
	case *ConversationStartedEvent:
		return *v
	case *ConversationJoinedEvent:
		return *v
	case *ConversationLeftEvent:
		return *v
	case *ConversationTurnEvent:
		return *v
	case *ConversationNextSpeakerSetEvent:
		return *v
	case *ConversationEndedEvent:
		return *v
	case *ConversationMovedEvent:
		return *v
	case *ConversationEndingSeenEvent:
		return *v
	case *ConversationEndingUnseenEvent:
		return *v
	case *WorldEventOccurred:
		return *v
	case *WeatherChangedEvent:
		return *v
	case *NightSkippedEvent:
		return *v
	case *DidCompactEvent:
		return *v
	case *SessionTokensResetEvent:
		return *v
	case *AgentTokenUsageRecordedEvent:
		return *v
	case *InterpreterTokenUsageRecordedEvent:
		return *v
	default:
		return e
	}
}
