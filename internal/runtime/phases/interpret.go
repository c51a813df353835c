package phases

import (
	"context"
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime"
	"github.com/codeready-toolchain/tarsy/internal/runtime/interpreter"
)

// InterpretPhase runs the narrative interpreter over every agent turn
// produced this tick, folding the resulting observations into effects.
type InterpretPhase struct {
	runtime.BasePhase
	client interpreter.Client
}

// NewInterpretPhase returns an InterpretPhase driven by client, the
// tool-calling LLM adapter used to extract observations from
// narratives.
func NewInterpretPhase(client interpreter.Client) *InterpretPhase {
	p := &InterpretPhase{client: client}
	p.BasePhase = runtime.NewBasePhase("InterpretPhase", p.run)
	return p
}

type interpretOutcome struct {
	agent   domain.AgentName
	result  interpreter.AgentTurnResult
	effects []domain.Effect
	usage   interpreter.TokenUsage
	err     error
}

func (p *InterpretPhase) run(ctx context.Context, tc runtime.TickContext) (runtime.TickContext, error) {
	if len(tc.TurnResults) == 0 {
		return tc, nil
	}

	names := make([]domain.AgentName, 0, len(tc.TurnResults))
	for name := range tc.TurnResults {
		if _, ok := tc.GetAgent(name); ok {
			names = append(names, name)
		}
	}

	outcomes := make([]interpretOutcome, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		idx, agentName := i, name
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[idx] = p.interpretTurn(ctx, agentName, tc)
		}()
	}
	wg.Wait()

	for _, outcome := range outcomes {
		if outcome.err != nil {
			slog.Error("interpretation failed", "agent", outcome.agent, "error", outcome.err)
			continue
		}
		tc = tc.WithTurnResult(outcome.agent, outcome.result)
		tc = tc.WithEffects(outcome.effects)
		if outcome.usage.InputTokens > 0 || outcome.usage.OutputTokens > 0 {
			tc = tc.WithEffect(domain.RecordInterpreterTokenUsageEffect{
				InputTokens: outcome.usage.InputTokens, OutputTokens: outcome.usage.OutputTokens,
			})
		}
	}

	slog.Debug("interpreted narratives", "count", len(names))
	return tc, nil
}

func (p *InterpretPhase) interpretTurn(ctx context.Context, agentName domain.AgentName, tc runtime.TickContext) interpretOutcome {
	agent := tc.Agents[agentName]
	turnResult := tc.TurnResults[agentName]

	loc, hasLoc := tc.World.Locations[agent.Location]
	var availablePaths []string
	if hasLoc {
		for _, c := range loc.Connections {
			availablePaths = append(availablePaths, string(c))
		}
	}

	var presentAgents []string
	for _, other := range tc.Agents {
		if other.Location == agent.Location && other.Name != agentName && !other.IsSleeping {
			presentAgents = append(presentAgents, string(other.Name))
		}
	}

	ni := interpreter.New(p.client, string(agent.Location), availablePaths, presentAgents)
	result, usage, err := ni.Interpret(ctx, turnResult.Narrative)
	if err != nil {
		return interpretOutcome{agent: agentName, err: err}
	}
	if ni.HasError() {
		slog.Warn("interpreter warning", "agent", agentName, "error", ni.GetError())
	}

	effects := p.observationsToEffects(agentName, result, tc)
	return interpretOutcome{agent: agentName, result: result, effects: effects, usage: usage}
}

func (p *InterpretPhase) observationsToEffects(agentName domain.AgentName, result interpreter.AgentTurnResult, tc runtime.TickContext) []domain.Effect {
	var effects []domain.Effect
	agent := tc.Agents[agentName]

	if result.Movement != "" {
		effects = append(effects, domain.MoveAgentEffect{
			Agent: agentName, FromLocation: agent.Location, ToLocation: domain.LocationID(result.Movement),
		})
	}

	if result.MoodExpressed != "" && result.MoodExpressed != agent.Mood {
		effects = append(effects, domain.UpdateMoodEffect{Agent: agentName, Mood: result.MoodExpressed})
	}

	if result.WantsToSleep {
		effects = append(effects, domain.AgentSleepEffect{Agent: agentName})
	}

	for _, action := range result.ActionsDescribed {
		effects = append(effects, domain.RecordActionEffect{Agent: agentName, Description: action})
	}

	hasLeaveWithLastMessage := false
	for _, e := range tc.Effects {
		leave, ok := e.(domain.LeaveConversationEffect)
		if ok && leave.Agent == agentName && leave.LastMessage != nil {
			hasLeaveWithLastMessage = true
			break
		}
	}

	conversations := tc.GetConversationsForAgent(agentName)
	if len(conversations) > 0 && !hasLeaveWithLastMessage {
		conv := conversations[0]
		effects = append(effects, domain.AddConversationTurnEffect{
			ConversationID: conv.ID, Speaker: agentName,
			Narrative: result.Narrative, NarrativeWithTools: result.Narrative,
		})

		if result.SuggestedNextSpeaker != "" && conv.HasParticipant(domain.AgentName(result.SuggestedNextSpeaker)) {
			effects = append(effects, domain.SetNextSpeakerEffect{
				ConversationID: conv.ID, Speaker: domain.AgentName(result.SuggestedNextSpeaker),
			})
		}
	}

	return effects
}
