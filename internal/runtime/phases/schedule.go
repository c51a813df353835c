package phases

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime"
	"github.com/codeready-toolchain/tarsy/internal/scheduler"
)

// SchedulePhase determines which agents act this tick from the
// scheduled events due, applying observer modifiers (forced next turn,
// skip counts) and collapsing multiple acting agents at one location
// down to one.
type SchedulePhase struct {
	runtime.BasePhase
	scheduler *scheduler.Scheduler
	rng       *rand.Rand
}

// NewSchedulePhase returns a SchedulePhase backed by sched. rng may be
// nil, in which case a time-seeded source is used.
func NewSchedulePhase(sched *scheduler.Scheduler, rng *rand.Rand) *SchedulePhase {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	p := &SchedulePhase{scheduler: sched, rng: rng}
	p.BasePhase = runtime.NewBasePhase("SchedulePhase", p.run)
	return p
}

func (p *SchedulePhase) run(_ context.Context, tc runtime.TickContext) (runtime.TickContext, error) {
	agentsToAct := make(map[domain.AgentName]struct{})
	conversationSpeakers := make(map[domain.ConversationID]domain.AgentName)

	for _, event := range tc.ScheduledEvents {
		switch event.EventType {
		case scheduler.EventAgentTurn:
			agentName := domain.AgentName(event.TargetID)
			agent, ok := tc.Agents[agentName]
			if !ok || agent.IsSleeping {
				continue
			}
			if p.scheduler.GetSkipCount(agentName) > 0 {
				p.scheduler.DecrementSkip(agentName)
				slog.Debug("skipping turn", "agent", agentName)
				continue
			}
			agentsToAct[agentName] = struct{}{}

		case scheduler.EventConversationTurn:
			convID := domain.ConversationID(event.TargetID)
			if _, ok := tc.Conversations[convID]; !ok {
				continue
			}
			if speaker, ok := p.getConversationSpeaker(convID, tc); ok {
				agentsToAct[speaker] = struct{}{}
				conversationSpeakers[convID] = speaker
			}

		case scheduler.EventInviteResponse:
			agentName := domain.AgentName(event.TargetID)
			if agent, ok := tc.Agents[agentName]; ok && !agent.IsSleeping {
				agentsToAct[agentName] = struct{}{}
			}
		}
	}

	forcedAgent, hasForced := p.scheduler.GetForcedNext()
	var forced *domain.AgentName
	if hasForced {
		if agent, ok := tc.Agents[forcedAgent]; ok && !agent.IsSleeping {
			agentsToAct[forcedAgent] = struct{}{}
			forced = &forcedAgent
			slog.Info("forcing turn", "agent", forcedAgent)
		}
	}

	agentsToAct = p.filterOnePerLocation(agentsToAct, tc, forced)

	slog.Debug("scheduled agents", "count", len(agentsToAct), "conversation_speakers", len(conversationSpeakers))

	return tc.WithAgentsToAct(agentsToAct), nil
}

// getConversationSpeaker picks who speaks next: an explicit next
// speaker set by the interpreter takes priority, else a random awake
// participant excluding the last speaker.
func (p *SchedulePhase) getConversationSpeaker(convID domain.ConversationID, tc runtime.TickContext) (domain.AgentName, bool) {
	conv, ok := tc.Conversations[convID]
	if !ok || len(conv.Participants) == 0 {
		return "", false
	}

	if conv.NextSpeaker != nil && conv.HasParticipant(*conv.NextSpeaker) {
		if agent, ok := tc.Agents[*conv.NextSpeaker]; ok && !agent.IsSleeping {
			return *conv.NextSpeaker, true
		}
	}

	var lastSpeaker domain.AgentName
	hasLastSpeaker := false
	if len(conv.History) > 0 {
		lastSpeaker = conv.History[len(conv.History)-1].Speaker
		hasLastSpeaker = true
	}

	participants := conv.ParticipantNames()
	sort.Slice(participants, func(i, j int) bool { return participants[i] < participants[j] })

	var candidates []domain.AgentName
	for _, name := range participants {
		if hasLastSpeaker && name == lastSpeaker {
			continue
		}
		agent, ok := tc.Agents[name]
		if ok && !agent.IsSleeping {
			candidates = append(candidates, name)
		}
	}

	if len(candidates) == 0 {
		for _, name := range participants {
			if !hasLastSpeaker || name != lastSpeaker {
				candidates = append(candidates, name)
			}
		}
	}

	if len(candidates) == 0 {
		candidates = participants
	}

	if len(candidates) == 0 {
		return "", false
	}

	return candidates[p.rng.Intn(len(candidates))], true
}

// filterOnePerLocation collapses multiple candidate agents at the same
// location down to one, preferring a forced agent, else a random
// candidate excluding that location's last speaker.
func (p *SchedulePhase) filterOnePerLocation(
	agentsToAct map[domain.AgentName]struct{},
	tc runtime.TickContext,
	forced *domain.AgentName,
) map[domain.AgentName]struct{} {
	if len(agentsToAct) <= 1 {
		return agentsToAct
	}

	locationCandidates := make(map[domain.LocationID][]domain.AgentName)
	for name := range agentsToAct {
		agent, ok := tc.Agents[name]
		if !ok {
			continue
		}
		locationCandidates[agent.Location] = append(locationCandidates[agent.Location], name)
	}

	final := make(map[domain.AgentName]struct{})
	locations := make([]domain.LocationID, 0, len(locationCandidates))
	for loc := range locationCandidates {
		locations = append(locations, loc)
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i] < locations[j] })

	for _, location := range locations {
		candidates := locationCandidates[location]
		sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

		if len(candidates) == 1 {
			final[candidates[0]] = struct{}{}
			continue
		}

		if forced != nil {
			for _, c := range candidates {
				if c == *forced {
					final[c] = struct{}{}
					slog.Debug("forced agent selected at location", "agent", c, "location", location)
					goto next
				}
			}
		}

		{
			lastSpeaker, hasLastSpeaker := p.scheduler.GetLastLocationSpeaker(location)
			var choices []domain.AgentName
			for _, c := range candidates {
				if !hasLastSpeaker || c != lastSpeaker {
					choices = append(choices, c)
				}
			}
			if len(choices) == 0 {
				choices = candidates
			}
			selected := choices[p.rng.Intn(len(choices))]
			final[selected] = struct{}{}
			slog.Debug("selected agent at location", "agent", selected, "location", location, "candidates", candidates)
		}
	next:
	}

	return final
}
