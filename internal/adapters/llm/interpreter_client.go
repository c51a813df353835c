package llm

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/tarsy/internal/runtime/interpreter"
)

const interpreterSystemPrompt = `You turn a short first-person narrative into the concrete actions it
describes, by calling whichever of the offered tools match. A narrative
may describe zero, one, or several actions. Only call a tool when the
narrative clearly describes that action; don't infer actions it doesn't
mention.`

// InterpreterClient implements interpreter.Client against the same
// Anthropic Messages API transport the turn provider uses, typically
// pointed at a smaller, cheaper model since interpretation is a
// classification task rather than open-ended narration.
type InterpreterClient struct {
	client *Client
}

// NewInterpreterClient returns an InterpreterClient backed by client.
func NewInterpreterClient(client *Client) *InterpreterClient {
	return &InterpreterClient{client: client}
}

// Interpret sends narrative as a single user message with the
// interpreter's tool vocabulary on offer, and returns every tool_use
// block the model produced.
func (c *InterpreterClient) Interpret(ctx context.Context, narrative string, tools []interpreter.ObservationAction) ([]interpreter.ToolCall, interpreter.TokenUsage, error) {
	messages := []Message{
		{Role: roleUser, Content: []ContentBlock{{Type: blockText, Text: narrative}}},
	}

	resp, err := c.client.Send(ctx, interpreterSystemPrompt, messages, toObservationTools(tools))
	if err != nil {
		return nil, interpreter.TokenUsage{}, fmt.Errorf("interpret narrative: %w", err)
	}

	var calls []interpreter.ToolCall
	for _, block := range resp.Content {
		if block.Type != blockToolUse {
			continue
		}
		calls = append(calls, interpreter.ToolCall{Name: block.Name, Input: block.Input})
	}

	usage := interpreter.TokenUsage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}
	return calls, usage, nil
}

func toObservationTools(tools []interpreter.ObservationAction) []Tool {
	out := make([]Tool, len(tools))
	for i, t := range tools {
		props := make(map[string]map[string]any, len(t.InputSchema.Properties))
		for name, prop := range t.InputSchema.Properties {
			entry := map[string]any{"type": prop.Type}
			if prop.Description != "" {
				entry["description"] = prop.Description
			}
			props[name] = entry
		}
		out[i] = Tool{
			Name: t.Name, Description: t.Description,
			InputSchema: InputSchema{Type: t.InputSchema.Type, Properties: props, Required: t.InputSchema.Required},
		}
	}
	return out
}
