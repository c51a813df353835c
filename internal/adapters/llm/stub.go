package llm

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime/interpreter"
	"github.com/codeready-toolchain/tarsy/internal/runtime/phases"
)

// StubProvider is an in-process LLMProvider that never calls a network
// endpoint. It produces a deterministic, context-aware narrative and
// never invokes a tool, so a simulation can run end to end (ticks
// advancing, agents moving only via scripted effects) without a live
// model. Useful for integration tests and local smoke runs.
type StubProvider struct{}

// NewStubProvider returns a StubProvider.
func NewStubProvider() *StubProvider { return &StubProvider{} }

// ExecuteTurn returns a narrative describing the agent settling into
// whatever situation the context presents, without calling any tool.
func (StubProvider) ExecuteTurn(_ context.Context, ctx phases.AgentContext, _ *phases.ToolContext, _ []phases.AgentTool) (phases.TurnOutput, error) {
	var narrative string
	switch {
	case ctx.Conversation != nil:
		narrative = fmt.Sprintf("%s listens and considers what to say next.", ctx.Agent.Name)
	case ctx.PendingInvite != nil:
		narrative = fmt.Sprintf("%s notices the invitation and weighs it.", ctx.Agent.Name)
	default:
		narrative = fmt.Sprintf("%s settles into %s, content for now.", ctx.Agent.Name, ctx.Location)
	}
	return phases.TurnOutput{Narrative: narrative, Usage: phases.TurnUsage{}}, nil
}

// RestoreTokenCounts is a no-op: the stub tracks no token usage.
func (StubProvider) RestoreTokenCounts(map[domain.AgentName]domain.AgentSnapshot) {}

// ResetSessionAfterCompaction is a no-op: the stub holds no session state.
func (StubProvider) ResetSessionAfterCompaction(domain.AgentName) {}

// DisconnectAll is a no-op: the stub holds no connections.
func (StubProvider) DisconnectAll() {}

// StubInterpreterClient is an interpreter.Client that never calls tools,
// pairing with StubProvider to run a simulation with zero network
// dependencies: narratives are recorded but no observation actions are
// ever extracted from them.
type StubInterpreterClient struct{}

// NewStubInterpreterClient returns a StubInterpreterClient.
func NewStubInterpreterClient() *StubInterpreterClient { return &StubInterpreterClient{} }

// Interpret always returns no tool calls.
func (StubInterpreterClient) Interpret(_ context.Context, _ string, _ []interpreter.ObservationAction) ([]interpreter.ToolCall, interpreter.TokenUsage, error) {
	return nil, interpreter.TokenUsage{}, nil
}
