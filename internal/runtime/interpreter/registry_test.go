package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_HasStandardObservations(t *testing.T) {
	expected := []string{
		"report_movement", "report_mood", "report_resting", "report_action",
		"report_propose_move_together", "report_sleeping", "report_next_speaker",
	}
	names := GetToolNames()
	for _, name := range expected {
		assert.Contains(t, names, name)
	}
}

func TestMatchDestination_ExactMatch(t *testing.T) {
	assert.Equal(t, "library", MatchDestination("library", []string{"library", "garden", "workshop"}))
}

func TestMatchDestination_SubstringMatch(t *testing.T) {
	assert.Equal(t, "library", MatchDestination("the library", []string{"library", "garden"}))
}

func TestMatchDestination_CaseInsensitive(t *testing.T) {
	assert.Equal(t, "library", MatchDestination("LIBRARY", []string{"library", "garden"}))
}

func TestMatchDestination_WordMatch(t *testing.T) {
	assert.Equal(t, "square", MatchDestination("village_square", []string{"square", "garden"}))
}

func TestMatchDestination_NoMatchReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", MatchDestination("nowhere", []string{"library", "garden"}))
}

func TestMatchDestination_EmptyInputsReturnEmpty(t *testing.T) {
	assert.Equal(t, "", MatchDestination("", []string{"library"}))
	assert.Equal(t, "", MatchDestination("library", nil))
}

func TestProcessMovement_BasicMovement(t *testing.T) {
	result := NewMutableTurnResult("I went to the library.")
	ctx := InterpreterContext{CurrentLocation: "workshop", AvailablePaths: []string{"library", "garden"}}

	processMovement(map[string]any{"destination": "library", "arrival_starts_with": "I arrived"}, result, ctx)

	assert.Equal(t, "library", result.Movement)
	assert.Equal(t, "I arrived", result.MovementNarrativeStart)
}

func TestProcessMovement_NoMatchLeavesEmpty(t *testing.T) {
	result := NewMutableTurnResult("Test")
	ctx := InterpreterContext{CurrentLocation: "workshop", AvailablePaths: []string{"library", "garden"}}

	processMovement(map[string]any{"destination": "nowhere"}, result, ctx)

	assert.Equal(t, "", result.Movement)
}

func TestProcessNextSpeaker_OnlySetsWhenPresent(t *testing.T) {
	result := NewMutableTurnResult("What do you think, Sage?")
	ctx := InterpreterContext{PresentAgents: []string{"Sage", "River"}}

	processNextSpeaker(map[string]any{"next_speaker": "Sage"}, result, ctx)
	assert.Equal(t, "Sage", result.SuggestedNextSpeaker)

	result2 := NewMutableTurnResult("What do you think?")
	ctx2 := InterpreterContext{PresentAgents: []string{"River"}}
	processNextSpeaker(map[string]any{"next_speaker": "Sage"}, result2, ctx2)
	assert.Equal(t, "", result2.SuggestedNextSpeaker)
}

func TestProcessProposeMoveTogether(t *testing.T) {
	result := NewMutableTurnResult("Let's go to the garden!")
	ctx := InterpreterContext{AvailablePaths: []string{"library", "garden"}}

	processProposeMoveTogether(map[string]any{"destination": "garden"}, result, ctx)
	assert.Equal(t, "garden", result.ProposesMovingTogether)
}
