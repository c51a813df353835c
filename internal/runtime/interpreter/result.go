// Package interpreter extracts observations — movement, mood, rest/
// sleep intent, free-form actions, and next-speaker suggestions — from
// an agent's turn narrative via a fixed tool vocabulary. Conversation
// lifecycle (invite/accept/join/leave) is deliberately excluded here:
// those come from the agent's own tool calls, not from interpretation.
package interpreter

// AgentTurnResult is the frozen result of interpreting one agent's turn
// narrative.
type AgentTurnResult struct {
	// Narrative is the agent's full turn response, verbatim.
	Narrative string

	// Movement is the resolved destination location id, if the agent
	// moved solo this turn.
	Movement string
	// MovementNarrativeStart is the prefix of Narrative at which the
	// arrival description begins, shown to others at the destination.
	MovementNarrativeStart string
	// ProposesMovingTogether is the resolved destination the agent
	// invited present others to move to together, if any.
	ProposesMovingTogether string

	// MoodExpressed is the emotional state observed in the narrative.
	MoodExpressed string
	// WantsToRest reports whether the agent is winding down / settling in.
	WantsToRest bool
	// WantsToSleep reports whether the agent is going to sleep.
	WantsToSleep bool

	// ActionsDescribed lists free-form activities performed this turn.
	ActionsDescribed []string

	// SuggestedNextSpeaker is the interpreter's suggestion for who
	// should speak next in a 3+ participant conversation.
	SuggestedNextSpeaker string
}

// ArrivalNarrative returns the portion of Narrative describing what
// happens at the destination. Falls back to the full narrative when
// MovementNarrativeStart isn't found.
func (r AgentTurnResult) ArrivalNarrative() string {
	if r.MovementNarrativeStart == "" {
		return r.Narrative
	}
	idx := indexOf(r.Narrative, r.MovementNarrativeStart)
	if idx < 0 {
		return r.Narrative
	}
	return r.Narrative[idx:]
}

func indexOf(haystack, needle string) int {
	n := len(needle)
	if n == 0 {
		return -1
	}
	for i := 0; i+n <= len(haystack); i++ {
		if haystack[i:i+n] == needle {
			return i
		}
	}
	return -1
}

// MutableTurnResult is the builder the registry's tool processors
// populate while walking an LLM's tool calls; ToResult freezes it.
type MutableTurnResult struct {
	Narrative               string
	Movement                string
	MovementNarrativeStart  string
	ProposesMovingTogether  string
	MoodExpressed           string
	WantsToRest             bool
	WantsToSleep            bool
	ActionsDescribed        []string
	SuggestedNextSpeaker    string
}

// NewMutableTurnResult returns a builder seeded with the raw narrative.
func NewMutableTurnResult(narrative string) *MutableTurnResult {
	return &MutableTurnResult{Narrative: narrative}
}

// ToResult freezes the builder into an AgentTurnResult.
func (m *MutableTurnResult) ToResult() AgentTurnResult {
	return AgentTurnResult{
		Narrative:               m.Narrative,
		Movement:                m.Movement,
		MovementNarrativeStart:  m.MovementNarrativeStart,
		ProposesMovingTogether:  m.ProposesMovingTogether,
		MoodExpressed:           m.MoodExpressed,
		WantsToRest:             m.WantsToRest,
		WantsToSleep:            m.WantsToSleep,
		ActionsDescribed:        append([]string(nil), m.ActionsDescribed...),
		SuggestedNextSpeaker:    m.SuggestedNextSpeaker,
	}
}
