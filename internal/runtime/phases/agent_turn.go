package phases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime"
	"github.com/codeready-toolchain/tarsy/internal/runtime/interpreter"
)

// Token thresholds that trigger compaction, measured against an
// agent's current session (context window) token count.
const (
	PreSleepCompactionThreshold = 100_000
	CriticalCompactionThreshold = 150_000
)

// AgentContext is one acting agent's perception for this turn: where it
// is, who else is there, where it can go, and any conversation or
// invite it's currently party to.
type AgentContext struct {
	Agent          domain.AgentSnapshot
	Location       domain.LocationID
	AvailablePaths []domain.LocationID
	PresentAgents  []domain.AgentName
	TimeSnapshot   domain.TimeSnapshot
	Weather        domain.Weather

	Conversation   *domain.Conversation
	PendingInvite  *domain.Invitation
	JoinableNearby []domain.Conversation
	PrivateNearby  []domain.Conversation
}

// TurnUsage is the token spend reported for one agent turn.
type TurnUsage struct {
	InputTokens              int
	OutputTokens             int
	CacheCreationInputTokens int
	CacheReadInputTokens     int

	// SessionTokens is the resulting context window size after this
	// turn: cache_read_input_tokens + input_tokens.
	SessionTokens int
}

// TurnOutput is what an LLMProvider returns for one agent's turn.
type TurnOutput struct {
	Narrative string
	SessionID string
	Usage     TurnUsage
}

// LLMProvider drives one agent's turn: given its perception and the
// conversation tools available, it returns a narrative and (via
// toolCtx, mutated internally as it dispatches tool calls) any
// conversation effects the agent's turn produced.
type LLMProvider interface {
	ExecuteTurn(ctx context.Context, agentCtx AgentContext, toolCtx *ToolContext, tools []AgentTool) (TurnOutput, error)
}

// FilesystemSyncer mirrors shared location files into and out of an
// acting agent's workspace around its turn (notes and files other
// agents left at that location).
type FilesystemSyncer interface {
	SyncIn(agent domain.AgentName, location domain.LocationID) error
	SyncOut(agent domain.AgentName, location domain.LocationID) error
}

// AgentTurnPhase runs every acting agent's turn concurrently, builds
// its perception, invokes the LLM provider, and folds the resulting
// effects and bare narrative into the tick context. Narratives are
// interpreted into structured observations by InterpretPhase, which
// runs after this one.
type AgentTurnPhase struct {
	runtime.BasePhase
	provider LLMProvider
	syncer   FilesystemSyncer
}

// NewAgentTurnPhase returns an AgentTurnPhase driven by provider.
// syncer may be nil, in which case no filesystem sync occurs.
func NewAgentTurnPhase(provider LLMProvider, syncer FilesystemSyncer) *AgentTurnPhase {
	p := &AgentTurnPhase{provider: provider, syncer: syncer}
	p.BasePhase = runtime.NewBasePhase("AgentTurnPhase", p.run)
	return p
}

type turnOutcome struct {
	agent   domain.AgentName
	output  TurnOutput
	effects []domain.Effect
	err     error
}

func (p *AgentTurnPhase) run(ctx context.Context, tc runtime.TickContext) (runtime.TickContext, error) {
	if len(tc.AgentsToAct) == 0 {
		return tc, nil
	}

	results := make([]turnOutcome, len(tc.AgentsToAct))
	var wg sync.WaitGroup
	i := 0
	for agentName := range tc.AgentsToAct {
		idx := i
		i++
		name := agentName
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[idx] = p.runOneTurn(ctx, name, tc)
		}()
	}
	wg.Wait()

	for _, outcome := range results {
		if outcome.err != nil {
			slog.Error("agent turn failed", "agent", outcome.agent, "error", outcome.err)
			continue
		}
		tc = tc.WithEffects(outcome.effects)
		tc = tc.WithTurnResult(outcome.agent, interpreter.AgentTurnResult{Narrative: outcome.output.Narrative})
		tc = tc.WithAgentActed(outcome.agent)
	}

	return tc, nil
}

func (p *AgentTurnPhase) runOneTurn(ctx context.Context, name domain.AgentName, tc runtime.TickContext) turnOutcome {
	agent, ok := tc.GetAgent(name)
	if !ok {
		return turnOutcome{agent: name, err: fmt.Errorf("agent %q not found", name)}
	}

	agentCtx := p.buildAgentContext(agent, tc)
	toolCtx := NewToolContext()

	if p.syncer != nil {
		if err := p.syncer.SyncIn(name, agent.Location); err != nil {
			slog.Warn("filesystem sync-in failed", "agent", name, "error", err)
		}
	}

	output, err := p.provider.ExecuteTurn(ctx, agentCtx, toolCtx, GetAgentTools())
	if err != nil {
		return turnOutcome{agent: name, err: err}
	}

	if p.syncer != nil {
		if err := p.syncer.SyncOut(name, agent.Location); err != nil {
			slog.Warn("filesystem sync-out failed", "agent", name, "error", err)
		}
	}

	effects := toolCtx.Effects()
	effects = append(effects, domain.UpdateLastActiveTickEffect{Agent: name, Tick: tc.Tick})
	effects = append(effects, domain.RecordAgentTokenUsageEffect{
		Agent: name, InputTokens: output.Usage.InputTokens, OutputTokens: output.Usage.OutputTokens,
		CacheCreationInputTokens: output.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     output.Usage.CacheReadInputTokens,
	})
	if output.SessionID != "" {
		effects = append(effects, domain.UpdateSessionIDEffect{Agent: name, SessionID: output.SessionID})
	}

	switch {
	case output.Usage.SessionTokens >= CriticalCompactionThreshold:
		effects = append(effects, domain.ShouldCompactEffect{Agent: name, PreTokens: output.Usage.SessionTokens, Critical: true})
	case output.Usage.SessionTokens >= PreSleepCompactionThreshold:
		effects = append(effects, domain.ShouldCompactEffect{Agent: name, PreTokens: output.Usage.SessionTokens, Critical: false})
	}

	return turnOutcome{agent: name, output: output, effects: effects}
}

func (p *AgentTurnPhase) buildAgentContext(agent domain.AgentSnapshot, tc runtime.TickContext) AgentContext {
	loc, hasLoc := tc.World.Locations[agent.Location]
	var availablePaths []domain.LocationID
	if hasLoc {
		availablePaths = loc.Connections
	}

	var present []domain.AgentName
	for _, other := range tc.GetAgentsAtLocation(agent.Location) {
		if other.Name != agent.Name && !other.IsSleeping {
			present = append(present, other.Name)
		}
	}

	agentCtx := AgentContext{
		Agent: agent, Location: agent.Location, AvailablePaths: availablePaths,
		PresentAgents: present, TimeSnapshot: tc.TimeSnapshot, Weather: tc.World.Weather,
		JoinableNearby: tc.GetPublicConversationsAtLocation(agent.Location),
		PrivateNearby:  tc.GetPrivateConversationsAtLocation(agent.Location),
	}

	for _, conv := range tc.GetConversationsForAgent(agent.Name) {
		c := conv
		agentCtx.Conversation = &c
		break
	}

	if invite, ok := tc.PendingInvites[agent.Name]; ok {
		agentCtx.PendingInvite = &invite
	}

	return agentCtx
}
