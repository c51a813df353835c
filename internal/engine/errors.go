package engine

import (
	"errors"
	"fmt"

	"github.com/codeready-toolchain/tarsy/internal/domain"
)

var (
	// ErrNotInitialized indicates TickOnce was called before Initialize,
	// InitializeDefault, or Recover.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrAlreadyRunning indicates Run was called while a run loop is
	// already active.
	ErrAlreadyRunning = errors.New("engine already running")
)

// AgentNotFoundError indicates an observer command or query referenced
// an agent that does not exist in the current village.
type AgentNotFoundError struct {
	Agent domain.AgentName
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent %q not found", e.Agent)
}

// InvalidLocationError indicates an observer command referenced a
// location that does not exist, or is not reachable from where it was
// required to be reachable.
type InvalidLocationError struct {
	Location domain.LocationID
}

func (e *InvalidLocationError) Error() string {
	return fmt.Sprintf("location %q is not valid", e.Location)
}

// ConversationError indicates an observer command could not be applied
// to a conversation: it does not exist, the agent is not a participant,
// or the command conflicts with the conversation's current state.
type ConversationError struct {
	ConversationID domain.ConversationID
	Reason         string
}

func (e *ConversationError) Error() string {
	return fmt.Sprintf("conversation %q: %s", e.ConversationID, e.Reason)
}
