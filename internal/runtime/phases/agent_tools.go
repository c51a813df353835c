package phases

import (
	"sync"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime/interpreter"
)

// ToolContext accumulates effects produced by an agent's tool calls
// during one turn, mutated concurrently by whatever runs inside the
// LLM provider as it dispatches tool calls. Safe for concurrent use by
// a single agent's turn only; one ToolContext per turn.
type ToolContext struct {
	mu      sync.Mutex
	effects []domain.Effect
}

// NewToolContext returns an empty ToolContext.
func NewToolContext() *ToolContext {
	return &ToolContext{}
}

// AddEffect appends an effect produced by a tool call.
func (t *ToolContext) AddEffect(effect domain.Effect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.effects = append(t.effects, effect)
}

// Effects returns the effects accumulated so far.
func (t *ToolContext) Effects() []domain.Effect {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Effect, len(t.effects))
	copy(out, t.effects)
	return out
}

// AgentToolContext is the acting agent's identity and location, as seen
// by a tool processor translating its input into an effect.
type AgentToolContext struct {
	Agent    domain.AgentName
	Location domain.LocationID
	Tick     int
}

// AgentToolProcessor mutates toolCtx in response to one tool call's
// input, exactly as an ObservationProcessor does for the interpreter.
type AgentToolProcessor func(input map[string]any, toolCtx *ToolContext, turnCtx AgentToolContext)

// AgentTool is one conversation/social action an agent's turn may
// invoke: invite, accept, decline, join, leave, or relocate a
// conversation.
type AgentTool struct {
	Name        string
	Description string
	InputSchema interpreter.ToolSchema
	Processor   AgentToolProcessor
}

var agentToolRegistry = map[string]AgentTool{}

// RegisterAgentTool adds or replaces an agent tool.
func RegisterAgentTool(tool AgentTool) {
	agentToolRegistry[tool.Name] = tool
}

// GetAgentTools returns every registered agent tool.
func GetAgentTools() []AgentTool {
	out := make([]AgentTool, 0, len(agentToolRegistry))
	for _, t := range agentToolRegistry {
		out = append(out, t)
	}
	return out
}

func lookupAgentTool(name string) (AgentTool, bool) {
	t, ok := agentToolRegistry[name]
	return t, ok
}

func optionalString(input map[string]any, key string) *string {
	v, ok := input[key].(string)
	if !ok || v == "" {
		return nil
	}
	return &v
}

func processInviteToConversation(input map[string]any, toolCtx *ToolContext, turnCtx AgentToolContext) {
	invitee, _ := input["invitee"].(string)
	if invitee == "" {
		return
	}
	privacy := domain.PrivacyPrivate
	if raw, ok := input["privacy"].(string); ok && raw == string(domain.PrivacyPublic) {
		privacy = domain.PrivacyPublic
	}
	toolCtx.AddEffect(domain.InviteToConversationEffect{
		Inviter: turnCtx.Agent, Invitee: domain.AgentName(invitee),
		Location: turnCtx.Location, Privacy: privacy,
	})
}

func processAcceptInvite(input map[string]any, toolCtx *ToolContext, turnCtx AgentToolContext) {
	convID, _ := input["conversation_id"].(string)
	if convID == "" {
		return
	}
	toolCtx.AddEffect(domain.AcceptInviteEffect{
		Agent: turnCtx.Agent, ConversationID: domain.ConversationID(convID),
		FirstMessage: optionalString(input, "first_message"),
	})
}

func processDeclineInvite(_ map[string]any, toolCtx *ToolContext, turnCtx AgentToolContext) {
	toolCtx.AddEffect(domain.DeclineInviteEffect{Agent: turnCtx.Agent})
}

func processJoinConversation(input map[string]any, toolCtx *ToolContext, turnCtx AgentToolContext) {
	convID, _ := input["conversation_id"].(string)
	if convID == "" {
		return
	}
	toolCtx.AddEffect(domain.JoinConversationEffect{
		Agent: turnCtx.Agent, ConversationID: domain.ConversationID(convID),
		FirstMessage: optionalString(input, "first_message"),
	})
}

func processLeaveConversation(input map[string]any, toolCtx *ToolContext, turnCtx AgentToolContext) {
	convID, _ := input["conversation_id"].(string)
	if convID == "" {
		return
	}
	toolCtx.AddEffect(domain.LeaveConversationEffect{
		Agent: turnCtx.Agent, ConversationID: domain.ConversationID(convID),
		LastMessage: optionalString(input, "last_message"),
	})
}

func processMoveConversation(input map[string]any, toolCtx *ToolContext, turnCtx AgentToolContext) {
	convID, _ := input["conversation_id"].(string)
	toLocation, _ := input["to_location"].(string)
	if convID == "" || toLocation == "" {
		return
	}
	toolCtx.AddEffect(domain.MoveConversationEffect{
		InitiatedBy: turnCtx.Agent, ConversationID: domain.ConversationID(convID),
		ToLocation: domain.LocationID(toLocation),
	})
}

func init() {
	RegisterAgentTool(AgentTool{
		Name:        "invite_to_conversation",
		Description: "Invite another agent present at this location to a conversation.",
		InputSchema: interpreter.ToolSchema{
			Type: "object",
			Properties: map[string]interpreter.PropertySchema{
				"invitee": {Type: "string", Description: "Name of the agent to invite"},
				"privacy": {Type: "string", Description: "public or private"},
			},
			Required: []string{"invitee"},
		},
		Processor: processInviteToConversation,
	})

	RegisterAgentTool(AgentTool{
		Name:        "accept_invite",
		Description: "Accept a pending conversation invitation.",
		InputSchema: interpreter.ToolSchema{
			Type: "object",
			Properties: map[string]interpreter.PropertySchema{
				"conversation_id": {Type: "string"},
				"first_message":   {Type: "string"},
			},
			Required: []string{"conversation_id"},
		},
		Processor: processAcceptInvite,
	})

	RegisterAgentTool(AgentTool{
		Name:        "decline_invite",
		Description: "Decline a pending conversation invitation.",
		InputSchema: interpreter.ToolSchema{Type: "object", Properties: map[string]interpreter.PropertySchema{}},
		Processor:   processDeclineInvite,
	})

	RegisterAgentTool(AgentTool{
		Name:        "join_conversation",
		Description: "Join a public conversation happening at this location.",
		InputSchema: interpreter.ToolSchema{
			Type: "object",
			Properties: map[string]interpreter.PropertySchema{
				"conversation_id": {Type: "string"},
				"first_message":   {Type: "string"},
			},
			Required: []string{"conversation_id"},
		},
		Processor: processJoinConversation,
	})

	RegisterAgentTool(AgentTool{
		Name:        "leave_conversation",
		Description: "Leave a conversation, optionally with a parting message.",
		InputSchema: interpreter.ToolSchema{
			Type: "object",
			Properties: map[string]interpreter.PropertySchema{
				"conversation_id": {Type: "string"},
				"last_message":    {Type: "string"},
			},
			Required: []string{"conversation_id"},
		},
		Processor: processLeaveConversation,
	})

	RegisterAgentTool(AgentTool{
		Name:        "move_conversation",
		Description: "Propose moving an ongoing conversation to a different location.",
		InputSchema: interpreter.ToolSchema{
			Type: "object",
			Properties: map[string]interpreter.PropertySchema{
				"conversation_id": {Type: "string"},
				"to_location":     {Type: "string"},
			},
			Required: []string{"conversation_id", "to_location"},
		},
		Processor: processMoveConversation,
	})
}
