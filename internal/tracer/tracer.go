// Package tracer records agent activity to per-agent JSONL files and
// fans the same events out to live subscribers, so a TUI or WebSocket
// handler can watch a turn unfold while it's also being written to disk
// for later replay.
package tracer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime/interpreter"
	"github.com/codeready-toolchain/tarsy/internal/runtime/phases"
)

// Event kinds, one per tracer method below.
const (
	EventTurnStart         = "turn_start"
	EventText              = "text"
	EventToolUse           = "tool_use"
	EventToolResult        = "tool_result"
	EventTurnEnd           = "turn_end"
	EventInterpretComplete = "interpret_complete"
	EventTokenUpdate       = "token_update"
	EventCompactionStart   = "compaction_start"
	EventCompactionEnd     = "compaction_end"
)

const toolResultTruncateLen = 500

const defaultCompactionThreshold = 150_000

// Event is one trace entry. Data carries the event-specific fields and
// is flattened into the entry's top-level JSON object on write, mirroring
// the Python tracer's dict-merge (`{**entry, **data}`).
type Event struct {
	Timestamp time.Time
	Agent     domain.AgentName
	TurnID    string
	Type      string
	Data      map[string]any
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Data)+4)
	for k, v := range e.Data {
		out[k] = v
	}
	out["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	out["agent"] = e.Agent
	out["turn_id"] = e.TurnID
	out["event"] = e.Type
	return json.Marshal(out)
}

// Tracer writes agent activity to trace_dir/<agent>.jsonl and streams
// the same events to any subscriber registered via Subscribe.
type Tracer struct {
	traceDir string

	mu      sync.Mutex
	files   map[domain.AgentName]*os.File
	turnIDs map[domain.AgentName]string

	subMu       sync.RWMutex
	subscribers map[string]chan Event
}

// New creates a Tracer writing under traceDir, creating it if necessary.
func New(traceDir string) (*Tracer, error) {
	if err := os.MkdirAll(traceDir, 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	return &Tracer{
		traceDir:    traceDir,
		files:       make(map[domain.AgentName]*os.File),
		turnIDs:     make(map[domain.AgentName]string),
		subscribers: make(map[string]chan Event),
	}, nil
}

// Subscribe registers a channel to receive every event traced from this
// point on. The returned unsubscribe func must be called when the
// subscriber is done listening. The channel is never closed by the
// tracer; a slow subscriber that fills its buffer simply misses events
// rather than blocking a turn.
func (t *Tracer) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	id := uuid.NewString()

	t.subMu.Lock()
	t.subscribers[id] = ch
	t.subMu.Unlock()

	return ch, func() {
		t.subMu.Lock()
		delete(t.subscribers, id)
		t.subMu.Unlock()
	}
}

// Close closes every open per-agent trace file.
func (t *Tracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for agent, f := range t.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close trace file for %s: %w", agent, err)
		}
	}
	return firstErr
}

func (t *Tracer) fileFor(agent domain.AgentName) (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f, ok := t.files[agent]; ok {
		return f, nil
	}
	path := filepath.Join(t.traceDir, string(agent)+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file for %s: %w", agent, err)
	}
	t.files[agent] = f
	return f, nil
}

func (t *Tracer) writeEvent(agent domain.AgentName, eventType string, data map[string]any) {
	t.mu.Lock()
	turnID := t.turnIDs[agent]
	t.mu.Unlock()

	entry := Event{Timestamp: time.Now(), Agent: agent, TurnID: turnID, Type: eventType, Data: data}

	f, err := t.fileFor(agent)
	if err != nil {
		slog.Warn("tracer: could not open trace file", "agent", agent, "error", err)
		return
	}

	line, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("tracer: could not marshal trace event", "agent", agent, "event", eventType, "error", err)
		return
	}

	t.mu.Lock()
	_, writeErr := f.Write(append(line, '\n'))
	t.mu.Unlock()
	if writeErr != nil {
		slog.Warn("tracer: could not write trace event", "agent", agent, "event", eventType, "error", writeErr)
	}

	t.subMu.RLock()
	defer t.subMu.RUnlock()
	for _, ch := range t.subscribers {
		select {
		case ch <- entry:
		default:
			slog.Warn("tracer: subscriber channel full, dropping event", "agent", agent, "event", eventType)
		}
	}
}

// StartTurn logs the beginning of agent's turn and returns a turn ID
// that links every subsequent event for this turn until EndTurn.
func (t *Tracer) StartTurn(agent domain.AgentName, tick int, location domain.LocationID, model, context string, sessionID *string) string {
	turnID := uuid.NewString()[:8]

	t.mu.Lock()
	t.turnIDs[agent] = turnID
	t.mu.Unlock()

	t.writeEvent(agent, EventTurnStart, map[string]any{
		"tick": tick, "session_id": sessionID, "location": location, "model": model, "context": context,
	})
	return turnID
}

// LogText logs a chunk of narrative text produced during a turn.
func (t *Tracer) LogText(agent domain.AgentName, content string) {
	t.writeEvent(agent, EventText, map[string]any{"content": content})
}

// LogToolUse logs agent invoking a tool mid-turn.
func (t *Tracer) LogToolUse(agent domain.AgentName, toolID, toolName string, input map[string]any) {
	t.writeEvent(agent, EventToolUse, map[string]any{"tool_id": toolID, "tool": toolName, "input": input})
}

// LogToolResult logs the result of a tool call, truncating long content.
func (t *Tracer) LogToolResult(agent domain.AgentName, toolUseID string, content string, isError bool) {
	if len(content) > toolResultTruncateLen {
		content = content[:toolResultTruncateLen]
	}
	t.writeEvent(agent, EventToolResult, map[string]any{"tool_id": toolUseID, "result": content, "is_error": isError})
}

// EndTurn logs the end of a turn, before interpretation. Interpretation
// results arrive later via LogInterpretComplete, once InterpretPhase runs.
func (t *Tracer) EndTurn(agent domain.AgentName, narrative string, sessionID *string, durationMS int, usage phases.TurnUsage) {
	t.writeEvent(agent, EventTurnEnd, map[string]any{
		"session_id": sessionID, "narrative": narrative, "duration_ms": durationMS,
		"input_tokens": usage.InputTokens, "output_tokens": usage.OutputTokens,
	})

	t.mu.Lock()
	t.turnIDs[agent] = ""
	t.mu.Unlock()
}

// LogInterpretComplete logs the observations InterpretPhase extracted
// from a turn's narrative, linked back to the turn by tick.
func (t *Tracer) LogInterpretComplete(agent domain.AgentName, tick int, result interpreter.AgentTurnResult) {
	t.writeEvent(agent, EventInterpretComplete, map[string]any{
		"tick": tick, "mood": result.MoodExpressed, "movement": result.Movement,
		"proposes_moving_together": result.ProposesMovingTogether, "actions": result.ActionsDescribed,
		"wants_to_rest": result.WantsToRest, "wants_to_sleep": result.WantsToSleep,
		"suggested_next_speaker": result.SuggestedNextSpeaker,
	})
}

// LogTokenUpdate logs agent's cumulative session token count against
// the compaction threshold, for display.
func (t *Tracer) LogTokenUpdate(agent domain.AgentName, tokenCount, threshold int) {
	if threshold <= 0 {
		threshold = defaultCompactionThreshold
	}
	percent := tokenCount * 100 / threshold
	if percent > 100 {
		percent = 100
	}
	t.writeEvent(agent, EventTokenUpdate, map[string]any{
		"tokens": tokenCount, "threshold": threshold, "percent": percent,
	})
}

// LogCompactionStart logs the beginning of a session compaction.
// critical distinguishes the hard 150K threshold from the soft
// pre-sleep 100K one.
func (t *Tracer) LogCompactionStart(agent domain.AgentName, critical bool, preTokens int) {
	t.writeEvent(agent, EventCompactionStart, map[string]any{"critical": critical, "pre_tokens": preTokens})
}

// LogCompactionEnd logs the completion of a session compaction.
func (t *Tracer) LogCompactionEnd(agent domain.AgentName, preTokens, postTokens int) {
	t.writeEvent(agent, EventCompactionEnd, map[string]any{
		"pre_tokens": preTokens, "post_tokens": postTokens, "tokens_saved": preTokens - postTokens,
	})
}
