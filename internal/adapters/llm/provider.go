// Package llm adapts the Anthropic Messages API to the tick pipeline's
// LLMProvider and interpreter.Client contracts, running the tool-call
// loop that lets an agent's turn invoke conversation tools mid-narrative.
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime/phases"
)

// maxToolRounds bounds how many tool-call/tool-result exchanges one
// turn may go through before the provider gives up and returns whatever
// narrative has accumulated so far.
const maxToolRounds = 8

// Provider implements phases.LLMProvider against a live Anthropic
// Messages API endpoint, maintaining one conversation history per agent
// across turns (the API itself is stateless).
type Provider struct {
	client *Client

	mu       sync.Mutex
	sessions map[domain.AgentName][]Message
}

// NewProvider returns a Provider backed by client.
func NewProvider(client *Client) *Provider {
	return &Provider{client: client, sessions: make(map[domain.AgentName][]Message)}
}

// ExecuteTurn runs one agent's turn: it sends the agent's perception as
// a user message appended to that agent's running history, dispatches
// any tool_use blocks into toolCtx via the matching AgentTool's
// Processor, and loops until the model stops asking for tools or
// maxToolRounds is exhausted.
func (p *Provider) ExecuteTurn(ctx context.Context, agentCtx phases.AgentContext, toolCtx *phases.ToolContext, tools []phases.AgentTool) (phases.TurnOutput, error) {
	system := buildSystemPrompt(agentCtx)
	apiTools := toAPITools(tools)

	history := p.historyFor(agentCtx.Agent.Name)
	history = append(history, Message{
		Role:    roleUser,
		Content: []ContentBlock{{Type: blockText, Text: buildUserPrompt(agentCtx)}},
	})

	turnCtx := phases.AgentToolContext{
		Agent: agentCtx.Agent.Name, Location: agentCtx.Location, Tick: agentCtx.TimeSnapshot.Tick,
	}

	var narrative strings.Builder
	var usage TurnUsageTotals

	for round := 0; round < maxToolRounds; round++ {
		resp, err := p.client.Send(ctx, system, history, apiTools)
		if err != nil {
			return phases.TurnOutput{}, fmt.Errorf("execute turn for %s: %w", agentCtx.Agent.Name, err)
		}
		usage.add(resp.Usage)

		assistantContent := resp.Content
		history = append(history, Message{Role: roleAssistant, Content: assistantContent})

		var toolResults []ContentBlock
		for _, block := range assistantContent {
			switch block.Type {
			case blockText:
				if narrative.Len() > 0 {
					narrative.WriteString("\n")
				}
				narrative.WriteString(block.Text)
			case blockToolUse:
				dispatchToolCall(block, tools, toolCtx, turnCtx)
				toolResults = append(toolResults, ContentBlock{
					Type: blockToolResult, ToolUseID: block.ID, Content: "ok",
				})
			}
		}

		if resp.StopReason != stopReasonToolUse || len(toolResults) == 0 {
			break
		}
		history = append(history, Message{Role: roleUser, Content: toolResults})
	}

	p.saveHistory(agentCtx.Agent.Name, history)

	return phases.TurnOutput{
		Narrative: narrative.String(),
		Usage: phases.TurnUsage{
			InputTokens: usage.input, OutputTokens: usage.output,
			CacheCreationInputTokens: usage.cacheCreation, CacheReadInputTokens: usage.cacheRead,
			SessionTokens: usage.cacheRead + usage.input,
		},
	}, nil
}

// RestoreTokenCounts is a no-op: this provider tracks no server-side
// session handle whose billed token count needs restoring after a
// crash recovery, only the plain message history kept in memory.
func (p *Provider) RestoreTokenCounts(agents map[domain.AgentName]domain.AgentSnapshot) {}

// ResetSessionAfterCompaction discards agent's running history,
// mirroring a fresh context window after the compaction service has
// summarized it elsewhere.
func (p *Provider) ResetSessionAfterCompaction(agent domain.AgentName) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, agent)
}

// DisconnectAll drops every agent's in-memory history. The HTTP client
// itself holds no persistent connection to close.
func (p *Provider) DisconnectAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = make(map[domain.AgentName][]Message)
}

func (p *Provider) historyFor(agent domain.AgentName) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	existing := p.sessions[agent]
	out := make([]Message, len(existing))
	copy(out, existing)
	return out
}

func (p *Provider) saveHistory(agent domain.AgentName, history []Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[agent] = history
}

// TurnUsageTotals accumulates token usage across a turn's tool-call rounds.
type TurnUsageTotals struct {
	input, output, cacheCreation, cacheRead int
}

func (t *TurnUsageTotals) add(u Usage) {
	t.input += u.InputTokens
	t.output += u.OutputTokens
	t.cacheCreation += u.CacheCreationInputTokens
	t.cacheRead += u.CacheReadInputTokens
}

func dispatchToolCall(block ContentBlock, tools []phases.AgentTool, toolCtx *phases.ToolContext, turnCtx phases.AgentToolContext) {
	for _, tool := range tools {
		if tool.Name == block.Name {
			tool.Processor(block.Input, toolCtx, turnCtx)
			return
		}
	}
}

func toAPITools(tools []phases.AgentTool) []Tool {
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
