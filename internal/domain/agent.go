package domain

// TokenUsage tracks cumulative token spend for an agent: the current
// context-window size (used for compaction threshold decisions) and
// all-time totals (never reset).
type TokenUsage struct {
	// SessionTokens is the current context window size: set to
	// cache_read_input_tokens + input_tokens from the LLM adapter each
	// turn. Used for compaction threshold decisions (100k/150k).
	SessionTokens int `json:"session_tokens"`

	// All-time cumulative tokens, never reset.
	TotalInputTokens  int `json:"total_input_tokens"`
	TotalOutputTokens int `json:"total_output_tokens"`

	// Cache tokens, all-time only.
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`

	TurnCount int `json:"turn_count"`
}

// AgentLLMModel identifies the model backing an agent's LLM session.
type AgentLLMModel struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Provider    string `json:"provider"`
}

// AgentSnapshot is an immutable representation of an agent's state at a
// moment in time.
type AgentSnapshot struct {
	// Identity
	Name         AgentName     `json:"name"`
	Model        AgentLLMModel `json:"model"`
	Personality  string        `json:"personality"`
	Job          string        `json:"job"`
	Interests    []string      `json:"interests"`
	NoteToSelf   string        `json:"note_to_self"`

	// Dynamic
	Location      LocationID             `json:"location"`
	Mood          string                 `json:"mood"`
	Energy        int                    `json:"energy"`
	Goals         []string               `json:"goals"`
	Relationships map[AgentName]string   `json:"relationships"`

	// Sleep
	IsSleeping              bool        `json:"is_sleeping"`
	SleepStartedTick        *int        `json:"sleep_started_tick,omitempty"`
	SleepStartedTimePeriod  *TimePeriod `json:"sleep_started_time_period,omitempty"`

	// Session
	SessionID *string `json:"session_id,omitempty"`

	// Turn tracking
	LastActiveTick int `json:"last_active_tick"`

	TokenUsage TokenUsage `json:"token_usage"`
}

// WithLocation returns a copy with Location replaced.
func (a AgentSnapshot) WithLocation(loc LocationID) AgentSnapshot {
	next := a
	next.Location = loc
	return next
}

// WithMood returns a copy with Mood replaced.
func (a AgentSnapshot) WithMood(mood string) AgentSnapshot {
	next := a
	next.Mood = mood
	return next
}

// WithEnergy returns a copy with Energy replaced, clamped to [0, 100].
func (a AgentSnapshot) WithEnergy(energy int) AgentSnapshot {
	if energy < 0 {
		energy = 0
	}
	if energy > 100 {
		energy = 100
	}
	next := a
	next.Energy = energy
	return next
}

// WithSleep returns a copy asleep as of tick/period.
func (a AgentSnapshot) WithSleep(tick int, period TimePeriod) AgentSnapshot {
	next := a
	next.IsSleeping = true
	t := tick
	p := period
	next.SleepStartedTick = &t
	next.SleepStartedTimePeriod = &p
	return next
}

// WithWake returns a copy that is awake, with sleep fields cleared.
func (a AgentSnapshot) WithWake() AgentSnapshot {
	next := a
	next.IsSleeping = false
	next.SleepStartedTick = nil
	next.SleepStartedTimePeriod = nil
	return next
}

// WithSessionID returns a copy with SessionID replaced.
func (a AgentSnapshot) WithSessionID(sessionID string) AgentSnapshot {
	next := a
	id := sessionID
	next.SessionID = &id
	return next
}

// WithLastActiveTick returns a copy with LastActiveTick replaced.
func (a AgentSnapshot) WithLastActiveTick(tick int) AgentSnapshot {
	next := a
	next.LastActiveTick = tick
	return next
}

// WithRecordedTurnUsage returns a copy with token usage updated for a
// completed turn. contextWindowSize becomes the new SessionTokens;
// cumulative totals and turn count accumulate.
func (a AgentSnapshot) WithRecordedTurnUsage(contextWindowSize, inputTokens, outputTokens, cacheCreation, cacheRead int) AgentSnapshot {
	next := a
	u := a.TokenUsage
	next.TokenUsage = TokenUsage{
		SessionTokens:            contextWindowSize,
		TotalInputTokens:         u.TotalInputTokens + inputTokens,
		TotalOutputTokens:        u.TotalOutputTokens + outputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens + cacheCreation,
		CacheReadInputTokens:     u.CacheReadInputTokens + cacheRead,
		TurnCount:                u.TurnCount + 1,
	}
	return next
}

// WithResetSessionTokens returns a copy with SessionTokens replaced,
// preserving cumulative totals. Used after compaction.
func (a AgentSnapshot) WithResetSessionTokens(newSessionTokens int) AgentSnapshot {
	next := a
	next.TokenUsage.SessionTokens = newSessionTokens
	return next
}
