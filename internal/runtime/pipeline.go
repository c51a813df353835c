package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// Phase transforms a TickContext. Implementations receive the current
// context and return a new one with their effects folded in; nothing
// mutates the context in place.
type Phase interface {
	Name() string
	Execute(ctx context.Context, tc TickContext) (TickContext, error)
}

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// phaseName derives a phase's log name from its Go type name, e.g.
// WakeCheckPhase -> wake_check.
func phaseName(typeName string) string {
	trimmed := strings.TrimSuffix(typeName, "Phase")
	snake := camelBoundary.ReplaceAllString(trimmed, "${1}_${2}")
	return strings.ToLower(snake)
}

// BasePhase wraps a phase implementation's Run function with logging
// and error handling. Embed it in a concrete phase and set Run (as
// NewBasePhase does).
type BasePhase struct {
	PhaseName string
	Run       func(ctx context.Context, tc TickContext) (TickContext, error)
}

// NewBasePhase derives PhaseName from typeName (pass the concrete
// phase's type name, e.g. "WakeCheckPhase").
func NewBasePhase(typeName string, run func(ctx context.Context, tc TickContext) (TickContext, error)) BasePhase {
	return BasePhase{PhaseName: phaseName(typeName), Run: run}
}

func (p BasePhase) Name() string { return p.PhaseName }

func (p BasePhase) Execute(ctx context.Context, tc TickContext) (TickContext, error) {
	slog.Debug("phase starting", "phase", p.PhaseName, "tick", tc.Tick)
	result, err := p.Run(ctx, tc)
	if err != nil {
		slog.Error("phase failed", "phase", p.PhaseName, "tick", tc.Tick, "error", err)
		return tc, &PhaseError{PhaseName: p.PhaseName, Err: err}
	}
	slog.Debug("phase complete", "phase", p.PhaseName, "tick", tc.Tick,
		"effects_added", len(result.Effects)-len(tc.Effects),
		"events_added", len(result.Events)-len(tc.Events))
	return result, nil
}

// PhaseError wraps a failure with the name of the phase it occurred in.
type PhaseError struct {
	PhaseName string
	Err       error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %q failed: %s", e.PhaseName, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// PipelineMetrics records timing and volume from one pipeline run.
type PipelineMetrics struct {
	TotalDuration  time.Duration
	PhaseDurations map[string]time.Duration
	EffectsCount   int
	EventsCount    int
	AgentsActed    int
}

// TickPipeline runs an ordered sequence of phases over a TickContext.
type TickPipeline struct {
	phases  []Phase
	metrics *PipelineMetrics
}

// NewTickPipeline returns a pipeline that runs phases in order.
func NewTickPipeline(phases ...Phase) *TickPipeline {
	return &TickPipeline{phases: phases}
}

// Execute runs every phase in order, threading the context through
// each, and returns the accumulated TickResult. A phase failure aborts
// the remaining phases and returns the error, wrapped with the phase
// name that failed.
func (p *TickPipeline) Execute(ctx context.Context, tc TickContext) (TickResult, error) {
	metrics := &PipelineMetrics{PhaseDurations: make(map[string]time.Duration, len(p.phases))}
	start := time.Now()

	for _, phase := range p.phases {
		phaseStart := time.Now()
		next, err := phase.Execute(ctx, tc)
		metrics.PhaseDurations[phase.Name()] = time.Since(phaseStart)
		if err != nil {
			p.metrics = metrics
			return TickResult{}, err
		}
		tc = next
	}

	metrics.TotalDuration = time.Since(start)
	metrics.EffectsCount = len(tc.Effects)
	metrics.EventsCount = len(tc.Events)
	metrics.AgentsActed = len(tc.AgentsActed)
	p.metrics = metrics

	slog.Info("tick pipeline complete", "tick", tc.Tick, "duration", metrics.TotalDuration,
		"agents_acted", metrics.AgentsActed, "events", metrics.EventsCount)

	return TickResultFromContext(tc), nil
}

// Metrics returns the metrics from the last Execute call, if any.
func (p *TickPipeline) Metrics() *PipelineMetrics { return p.metrics }

// Phase returns a phase by name, for testing/debugging.
func (p *TickPipeline) Phase(name string) Phase {
	for _, phase := range p.phases {
		if phase.Name() == name {
			return phase
		}
	}
	return nil
}
