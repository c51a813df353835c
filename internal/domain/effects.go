package domain

// Effect is a tagged variant describing an intent to change state,
// produced within a tick and translated to DomainEvents by
// ApplyEffectsPhase — the only place effects become events. Effects are
// transient: they are never persisted.
type Effect interface {
	effectKind() string
}

// --- Agent effects ---

type MoveAgentEffect struct {
	Agent        AgentName
	FromLocation LocationID
	ToLocation   LocationID
}

func (MoveAgentEffect) effectKind() string { return "move_agent" }

type UpdateMoodEffect struct {
	Agent AgentName
	Mood  string
}

func (UpdateMoodEffect) effectKind() string { return "update_mood" }

type UpdateEnergyEffect struct {
	Agent  AgentName
	Energy int
}

func (UpdateEnergyEffect) effectKind() string { return "update_energy" }

type RecordActionEffect struct {
	Agent       AgentName
	Description string
}

func (RecordActionEffect) effectKind() string { return "record_action" }

type AgentSleepEffect struct {
	Agent AgentName
}

func (AgentSleepEffect) effectKind() string { return "agent_sleep" }

type AgentWakeEffect struct {
	Agent  AgentName
	Reason string
}

func (AgentWakeEffect) effectKind() string { return "agent_wake" }

type UpdateLastActiveTickEffect struct {
	Agent AgentName
	Tick  int
}

func (UpdateLastActiveTickEffect) effectKind() string { return "update_last_active_tick" }

type UpdateSessionIDEffect struct {
	Agent     AgentName
	SessionID string
}

func (UpdateSessionIDEffect) effectKind() string { return "update_session_id" }

// --- Conversation effects ---

type InviteToConversationEffect struct {
	Inviter  AgentName
	Invitee  AgentName
	Location LocationID
	Privacy  Privacy
}

func (InviteToConversationEffect) effectKind() string { return "invite_to_conversation" }

type AcceptInviteEffect struct {
	Agent          AgentName
	ConversationID ConversationID
	FirstMessage   *string
}

func (AcceptInviteEffect) effectKind() string { return "accept_invite" }

type DeclineInviteEffect struct {
	Agent AgentName
}

func (DeclineInviteEffect) effectKind() string { return "decline_invite" }

// ExpireInviteEffect is an explicit (e.g. observer-triggered) invite
// expiry, distinct from the automatic end-of-tick expiry sweep in
// ApplyEffectsPhase.
type ExpireInviteEffect struct {
	Agent AgentName
}

func (ExpireInviteEffect) effectKind() string { return "expire_invite" }

type JoinConversationEffect struct {
	Agent          AgentName
	ConversationID ConversationID
	FirstMessage   *string
}

func (JoinConversationEffect) effectKind() string { return "join_conversation" }

type LeaveConversationEffect struct {
	Agent          AgentName
	ConversationID ConversationID
	LastMessage    *string
}

func (LeaveConversationEffect) effectKind() string { return "leave_conversation" }

type MoveConversationEffect struct {
	InitiatedBy    AgentName
	ConversationID ConversationID
	ToLocation     LocationID
}

func (MoveConversationEffect) effectKind() string { return "move_conversation" }

type AddConversationTurnEffect struct {
	ConversationID     ConversationID
	Speaker            AgentName
	Narrative          string
	NarrativeWithTools string
}

func (AddConversationTurnEffect) effectKind() string { return "add_conversation_turn" }

type SetNextSpeakerEffect struct {
	ConversationID ConversationID
	Speaker        AgentName
}

func (SetNextSpeakerEffect) effectKind() string { return "set_next_speaker" }

type EndConversationEffect struct {
	ConversationID ConversationID
	Reason         string
}

func (EndConversationEffect) effectKind() string { return "end_conversation" }

type ConversationEndingSeenEffect struct {
	Agent          AgentName
	ConversationID ConversationID
}

func (ConversationEndingSeenEffect) effectKind() string { return "conversation_ending_seen" }

// --- Compaction & token usage effects ---

type ShouldCompactEffect struct {
	Agent     AgentName
	PreTokens int
	Critical  bool
}

func (ShouldCompactEffect) effectKind() string { return "should_compact" }

type RecordAgentTokenUsageEffect struct {
	Agent                    AgentName
	InputTokens              int
	OutputTokens             int
	CacheCreationInputTokens int
	CacheReadInputTokens     int
}

func (RecordAgentTokenUsageEffect) effectKind() string { return "record_agent_token_usage" }

type RecordInterpreterTokenUsageEffect struct {
	InputTokens  int
	OutputTokens int
}

func (RecordInterpreterTokenUsageEffect) effectKind() string { return "record_interpreter_token_usage" }

type ResetSessionTokensEffect struct {
	Agent            AgentName
	NewSessionTokens int
}

func (ResetSessionTokensEffect) effectKind() string { return "reset_session_tokens" }

// --- World effects ---

type TriggerWorldEventEffect struct {
	Description    string
	Location       *LocationID
	AgentsInvolved []AgentName
}

func (TriggerWorldEventEffect) effectKind() string { return "trigger_world_event" }

type ChangeWeatherEffect struct {
	Weather Weather
}

func (ChangeWeatherEffect) effectKind() string { return "change_weather" }
