package llm

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime/phases"
)

// buildSystemPrompt describes who the agent is and how its turn tools
// work. Unlike the user prompt, it never changes turn to turn for a
// given agent.
func buildSystemPrompt(ctx phases.AgentContext) string {
	agent := ctx.Agent
	interests := "various things"
	if len(agent.Interests) > 0 {
		interests = strings.Join(agent.Interests, ", ")
	}

	return fmt.Sprintf(`You are %s, a resident of this village.

%s

You've been drawn to: %s
Things that interest you: %s

%s

---

Think your thoughts, feel your feelings, and do what feels right. When you
want to do something, simply describe yourself doing it in your narrative:
walk somewhere, work on something, or settle in and rest.

Conversations require explicit invitation. Use invite_to_conversation to
ask someone present to talk, accept_invite or decline_invite to respond to
an invitation, join_conversation to enter a public conversation happening
nearby, leave_conversation when you're ready to go, and move_conversation
to propose relocating an ongoing conversation. Your narrative is your
primary expression; the tools exist only to manage who you're talking
with.

Be authentic. You don't have to be productive or happy. When you've done
what feels right for now, let your narrative come to a natural close.`,
		agent.Name, agent.Personality, agent.Job, interests, agent.NoteToSelf)
}

// buildUserPrompt describes the present moment: where the agent is, who
// else is there, the time and weather, and anything conversation- or
// invite-shaped that needs a response.
func buildUserPrompt(ctx phases.AgentContext) string {
	var scene []string
	scene = append(scene, fmt.Sprintf("You are at %s.", humanizeLocation(ctx.Location)))

	switch len(ctx.PresentAgents) {
	case 0:
		scene = append(scene, "You're alone here.")
	case 1:
		scene = append(scene, fmt.Sprintf("%s is here.", ctx.PresentAgents[0]))
	default:
		scene = append(scene, fmt.Sprintf("%s are here.", joinWithAnd(namesToStrings(ctx.PresentAgents))))
	}

	if len(ctx.AvailablePaths) > 0 {
		paths := make([]string, len(ctx.AvailablePaths))
		for i, p := range ctx.AvailablePaths {
			paths[i] = humanizeLocation(p)
		}
		scene = append(scene, fmt.Sprintf("From here, paths lead to %s.", strings.Join(paths, ", ")))
	}

	atmosphere := fmt.Sprintf("It is %s, day %d, %s weather.",
		ctx.TimeSnapshot.Period(), ctx.TimeSnapshot.DayNumber(), ctx.Weather)

	energy := energyFeeling(ctx.Agent.Energy)

	base := fmt.Sprintf("%s\n\n%s\n\n%s Your mood: %s.\n",
		strings.Join(scene, " "), atmosphere, energy, ctx.Agent.Mood)

	switch {
	case ctx.Conversation != nil:
		return base + "\n" + buildConversationSection(ctx)
	case ctx.PendingInvite != nil:
		return base + "\n" + buildInviteSection(ctx)
	case len(ctx.JoinableNearby) > 0 || len(ctx.PrivateNearby) > 0:
		return base + "\n" + buildNearbySection(ctx) + "\n---\n\nThis moment is yours.\n"
	default:
		return base + "\n---\n\nThis moment is yours.\n"
	}
}

func buildConversationSection(ctx phases.AgentContext) string {
	conv := ctx.Conversation
	var others []string
	for name := range conv.Participants {
		if name != ctx.Agent.Name {
			others = append(others, string(name))
		}
	}

	var b strings.Builder
	b.WriteString("---\n")
	if len(others) == 0 {
		b.WriteString("You're in conversation here.\n")
	} else {
		b.WriteString(fmt.Sprintf("You're in conversation with %s at %s.\n", joinWithAnd(others), humanizeLocation(conv.Location)))
	}

	for _, turn := range conv.History {
		b.WriteString(fmt.Sprintf("\n%s:\n%s\n\n--\n", turn.Speaker, turn.Narrative))
	}

	b.WriteString("\n---\n\nThis moment is yours.")
	return b.String()
}

func buildInviteSection(ctx phases.AgentContext) string {
	invite := ctx.PendingInvite
	privacy := "public"
	if invite.Privacy == domain.PrivacyPrivate {
		privacy = "private"
	}
	return fmt.Sprintf("---\n\n%s has invited you to a %s conversation.\n\nYou can accept_invite or decline_invite.\n\n---\n\nThis moment is yours.\n",
		invite.Inviter, privacy)
}

func buildNearbySection(ctx phases.AgentContext) string {
	var lines []string
	if len(ctx.JoinableNearby) > 0 {
		lines = append(lines, "There are public conversations happening here:")
		for _, conv := range ctx.JoinableNearby {
			var names []string
			for name := range conv.Participants {
				names = append(names, string(name))
			}
			lines = append(lines, fmt.Sprintf("  - %s", strings.Join(names, " and ")))
		}
		lines = append(lines, "\nYou could join_conversation if you'd like to participate.")
	}
	if len(ctx.PrivateNearby) > 0 {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		for _, conv := range ctx.PrivateNearby {
			var names []string
			for name := range conv.Participants {
				names = append(names, string(name))
			}
			lines = append(lines, fmt.Sprintf("%s are speaking privately together.", joinWithAnd(names)))
		}
	}
	return strings.Join(lines, "\n")
}

func energyFeeling(energy int) string {
	switch {
	case energy > 80:
		return "You feel well-rested, energized."
	case energy > 50:
		return "You feel reasonably alert."
	case energy > 25:
		return "You're feeling a bit tired."
	default:
		return "Weariness tugs at you. Rest might be good soon."
	}
}

func humanizeLocation(loc domain.LocationID) string {
	return strings.ReplaceAll(string(loc), "_", " ")
}

func namesToStrings(names []domain.AgentName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

func joinWithAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
