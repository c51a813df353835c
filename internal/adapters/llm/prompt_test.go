package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime/phases"
)

func TestBuildSystemPrompt_IncludesIdentityAndInterests(t *testing.T) {
	ctx := phases.AgentContext{
		Agent: domain.AgentSnapshot{
			Name: "Sage", Personality: "curious and patient", Job: "gardener",
			Interests: []string{"herbalism", "astronomy"}, NoteToSelf: "Remember to water the east beds.",
		},
	}
	prompt := buildSystemPrompt(ctx)
	assert.Contains(t, prompt, "Sage")
	assert.Contains(t, prompt, "curious and patient")
	assert.Contains(t, prompt, "gardener")
	assert.Contains(t, prompt, "herbalism, astronomy")
	assert.Contains(t, prompt, "Remember to water the east beds.")
}

func TestBuildUserPrompt_PlainMomentWhenAlone(t *testing.T) {
	ctx := phases.AgentContext{
		Agent:        domain.AgentSnapshot{Name: "Sage", Energy: 90, Mood: "calm"},
		Location:     "garden",
		TimeSnapshot: domain.TimeSnapshot{Tick: 1},
		Weather:      domain.WeatherClear,
	}
	prompt := buildUserPrompt(ctx)
	assert.Contains(t, prompt, "alone")
	assert.Contains(t, prompt, "This moment is yours.")
}

func TestBuildUserPrompt_ConversationSectionListsHistory(t *testing.T) {
	conv := &domain.Conversation{
		Location:     "garden",
		Participants: map[domain.AgentName]struct{}{"Sage": {}, "River": {}},
		History: []domain.ConversationTurn{
			{Speaker: "River", Narrative: "How's the garden coming along?"},
		},
	}
	ctx := phases.AgentContext{
		Agent:        domain.AgentSnapshot{Name: "Sage", Energy: 70, Mood: "content"},
		Location:     "garden",
		TimeSnapshot: domain.TimeSnapshot{Tick: 5},
		Weather:      domain.WeatherCloudy,
		Conversation: conv,
	}
	prompt := buildUserPrompt(ctx)
	assert.Contains(t, prompt, "conversation with River")
	assert.Contains(t, prompt, "How's the garden coming along?")
}

func TestBuildUserPrompt_InviteSectionNamesInviter(t *testing.T) {
	invite := &domain.Invitation{Inviter: "River", Privacy: domain.PrivacyPrivate}
	ctx := phases.AgentContext{
		Agent:         domain.AgentSnapshot{Name: "Sage", Energy: 70, Mood: "content"},
		Location:      "garden",
		TimeSnapshot:  domain.TimeSnapshot{Tick: 5},
		Weather:       domain.WeatherFoggy,
		PendingInvite: invite,
	}
	prompt := buildUserPrompt(ctx)
	assert.Contains(t, prompt, "River has invited you")
	assert.Contains(t, prompt, "private conversation")
}

func TestEnergyFeeling_Tiers(t *testing.T) {
	assert.Contains(t, energyFeeling(95), "energized")
	assert.Contains(t, energyFeeling(60), "alert")
	assert.Contains(t, energyFeeling(30), "tired")
	assert.Contains(t, energyFeeling(10), "Weariness")
}

func TestJoinWithAnd(t *testing.T) {
	assert.Equal(t, "", joinWithAnd(nil))
	assert.Equal(t, "River", joinWithAnd([]string{"River"}))
	assert.Equal(t, "River and Ash", joinWithAnd([]string{"River", "Ash"}))
	assert.Equal(t, "River, Ash and Blue", joinWithAnd([]string{"River", "Ash", "Blue"}))
}

func TestHumanizeLocation_ReplacesUnderscores(t *testing.T) {
	assert.Equal(t, "town square", humanizeLocation("town_square"))
}
