package interpreter

import (
	"context"
	"fmt"
)

// ToolCall is one tool invocation an interpreting LLM made in response
// to a narrative.
type ToolCall struct {
	Name  string
	Input map[string]any
}

// TokenUsage is the input/output token spend of one interpretation
// call, attributed to system overhead rather than any one agent.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Client is the narrow contract the interpreter needs from an LLM
// adapter: given a narrative and the tool vocabulary, return whichever
// tools the model chose to call. Implementations may call a smaller,
// cheaper model than the one driving agent turns.
type Client interface {
	Interpret(ctx context.Context, narrative string, tools []ObservationAction) ([]ToolCall, TokenUsage, error)
}

// Error wraps a client failure without aborting the turn: interpretation
// failure is non-fatal and yields a best-effort result.
type Error struct {
	Agent   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("interpreter failed for %s: %s", e.Agent, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NarrativeInterpreter extracts observations from one agent's turn
// narrative, resolving free-form destinations against the agent's
// current location context.
type NarrativeInterpreter struct {
	client          Client
	currentLocation string
	availablePaths  []string
	presentAgents   []string

	lastErr *Error
}

// New returns an interpreter scoped to one agent's location context.
func New(client Client, currentLocation string, availablePaths, presentAgents []string) *NarrativeInterpreter {
	return &NarrativeInterpreter{
		client: client, currentLocation: currentLocation,
		availablePaths: availablePaths, presentAgents: presentAgents,
	}
}

// Interpret runs the tool-calling client on narrative and folds
// whichever tools it invoked into an AgentTurnResult. A client failure
// is recorded (retrievable via HasError/GetError) but does not abort
// the turn: the result falls back to the bare narrative.
func (n *NarrativeInterpreter) Interpret(ctx context.Context, narrative string) (AgentTurnResult, TokenUsage, error) {
	n.lastErr = nil
	builder := NewMutableTurnResult(narrative)
	interpCtx := InterpreterContext{
		CurrentLocation: n.currentLocation,
		AvailablePaths:  n.availablePaths,
		PresentAgents:   n.presentAgents,
	}

	calls, usage, err := n.client.Interpret(ctx, narrative, GetInterpreterTools())
	if err != nil {
		n.lastErr = &Error{Message: err.Error(), Err: err}
		return builder.ToResult(), TokenUsage{}, nil
	}

	for _, call := range calls {
		action, ok := lookupObservation(call.Name)
		if !ok || action.Processor == nil {
			continue
		}
		action.Processor(call.Input, builder, interpCtx)
	}

	return builder.ToResult(), usage, nil
}

// HasError reports whether the last Interpret call hit a client error.
func (n *NarrativeInterpreter) HasError() bool {
	return n.lastErr != nil
}

// GetError returns the last client error recorded, if any.
func (n *NarrativeInterpreter) GetError() *Error {
	return n.lastErr
}
