// Package phases implements the five tick phases: WakeCheck, Schedule,
// AgentTurn, Interpret, and ApplyEffects.
package phases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/runtime"
)

// WakeCheckPhase wakes sleeping agents whose time period has rolled
// over, or who have a visitor at their location.
type WakeCheckPhase struct {
	runtime.BasePhase
	recentArrivals map[domain.AgentName]struct{}
}

// NewWakeCheckPhase returns a WakeCheckPhase. recentArrivals should be
// set via SetRecentArrivals before each tick to the agents who moved
// last tick, enabling visitor-triggered waking.
func NewWakeCheckPhase() *WakeCheckPhase {
	p := &WakeCheckPhase{recentArrivals: make(map[domain.AgentName]struct{})}
	p.BasePhase = runtime.NewBasePhase("WakeCheckPhase", p.run)
	return p
}

// SetRecentArrivals updates the set of agents treated as having just
// arrived somewhere, for visitor-wake detection this tick.
func (p *WakeCheckPhase) SetRecentArrivals(arrivals map[domain.AgentName]struct{}) {
	p.recentArrivals = arrivals
}

func (p *WakeCheckPhase) run(_ context.Context, tc runtime.TickContext) (runtime.TickContext, error) {
	var effects []domain.Effect

	for _, agent := range tc.Agents {
		if !agent.IsSleeping {
			continue
		}

		shouldWake, reason := p.checkWakeConditions(agent, tc)
		if !shouldWake {
			continue
		}
		slog.Debug("agent waking", "agent", agent.Name, "reason", reason, "location", agent.Location)
		effects = append(effects, domain.AgentWakeEffect{Agent: agent.Name, Reason: reason})
	}

	if len(effects) > 0 {
		slog.Info("waking agents", "count", len(effects))
	}

	return tc.WithEffects(effects), nil
}

func (p *WakeCheckPhase) checkWakeConditions(agent domain.AgentSnapshot, tc runtime.TickContext) (bool, string) {
	if p.timePeriodChanged(agent, tc) {
		return true, "time_period_changed"
	}
	if visitor, ok := p.checkVisitorArrival(agent, tc); ok {
		return true, fmt.Sprintf("visitor_arrived:%s", visitor)
	}
	return false, ""
}

func (p *WakeCheckPhase) timePeriodChanged(agent domain.AgentSnapshot, tc runtime.TickContext) bool {
	if agent.SleepStartedTimePeriod == nil {
		return false
	}
	currentPeriod := tc.TimeSnapshot.Period()
	sleepPeriod := *agent.SleepStartedTimePeriod
	if sleepPeriod == domain.Night || sleepPeriod == domain.Evening {
		return currentPeriod == domain.Morning
	}
	return currentPeriod != sleepPeriod
}

func (p *WakeCheckPhase) checkVisitorArrival(agent domain.AgentSnapshot, tc runtime.TickContext) (domain.AgentName, bool) {
	for arrival := range p.recentArrivals {
		if arrival == agent.Name {
			continue
		}
		visitor, ok := tc.Agents[arrival]
		if ok && visitor.Location == agent.Location {
			return arrival, true
		}
	}
	return "", false
}
