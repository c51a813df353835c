// Package services holds the in-memory, tick-scoped collaborators the
// runtime phases read and write through: the agent registry and the
// conversation service. Both are read-cache projections rebuilt from
// whatever VillageSnapshot the engine last loaded; they are never the
// source of truth themselves — the event log is.
package services

import (
	"sort"

	"github.com/codeready-toolchain/tarsy/internal/domain"
)

// AgentRegistry is an in-memory index of agent snapshots, keyed by
// name. Not safe for concurrent mutation; callers serialize access
// through the tick pipeline.
type AgentRegistry struct {
	agents map[domain.AgentName]domain.AgentSnapshot
}

// NewAgentRegistry returns an empty registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{agents: make(map[domain.AgentName]domain.AgentSnapshot)}
}

// LoadState replaces the registry's contents wholesale, e.g. after
// recovery from a snapshot.
func (r *AgentRegistry) LoadState(agents map[domain.AgentName]domain.AgentSnapshot) {
	r.agents = make(map[domain.AgentName]domain.AgentSnapshot, len(agents))
	for k, v := range agents {
		r.agents[k] = v
	}
}

// ToState exports the registry's contents for snapshot persistence.
func (r *AgentRegistry) ToState() map[domain.AgentName]domain.AgentSnapshot {
	out := make(map[domain.AgentName]domain.AgentSnapshot, len(r.agents))
	for k, v := range r.agents {
		out[k] = v
	}
	return out
}

// Register adds or replaces an agent's snapshot.
func (r *AgentRegistry) Register(agent domain.AgentSnapshot) {
	r.agents[agent.Name] = agent
}

// Update stores a new snapshot for an already-registered agent.
func (r *AgentRegistry) Update(agent domain.AgentSnapshot) {
	r.agents[agent.Name] = agent
}

// Get returns an agent's snapshot, if registered.
func (r *AgentRegistry) Get(name domain.AgentName) (domain.AgentSnapshot, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// GetAll returns every agent snapshot in unspecified order.
func (r *AgentRegistry) GetAll() []domain.AgentSnapshot {
	out := make([]domain.AgentSnapshot, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}

// Names returns every registered agent name, sorted.
func (r *AgentRegistry) Names() []domain.AgentName {
	out := make([]domain.AgentName, 0, len(r.agents))
	for name := range r.agents {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the number of registered agents.
func (r *AgentRegistry) Count() int {
	return len(r.agents)
}

// GetAtLocation returns every agent currently at loc.
func (r *AgentRegistry) GetAtLocation(loc domain.LocationID) []domain.AgentSnapshot {
	var out []domain.AgentSnapshot
	for _, a := range r.agents {
		if a.Location == loc {
			out = append(out, a)
		}
	}
	return out
}

// GetOthersAtLocation returns every agent at loc other than exclude.
func (r *AgentRegistry) GetOthersAtLocation(loc domain.LocationID, exclude domain.AgentName) []domain.AgentSnapshot {
	var out []domain.AgentSnapshot
	for _, a := range r.agents {
		if a.Location == loc && a.Name != exclude {
			out = append(out, a)
		}
	}
	return out
}

// CountAtLocation returns the number of agents currently at loc.
func (r *AgentRegistry) CountAtLocation(loc domain.LocationID) int {
	n := 0
	for _, a := range r.agents {
		if a.Location == loc {
			n++
		}
	}
	return n
}

// GetLocations returns the distinct set of locations with at least one
// agent present.
func (r *AgentRegistry) GetLocations() []domain.LocationID {
	seen := make(map[domain.LocationID]struct{})
	for _, a := range r.agents {
		seen[a.Location] = struct{}{}
	}
	out := make([]domain.LocationID, 0, len(seen))
	for loc := range seen {
		out = append(out, loc)
	}
	return out
}

// GetAwake returns every agent that is not sleeping.
func (r *AgentRegistry) GetAwake() []domain.AgentSnapshot {
	var out []domain.AgentSnapshot
	for _, a := range r.agents {
		if !a.IsSleeping {
			out = append(out, a)
		}
	}
	return out
}

// GetSleeping returns every sleeping agent.
func (r *AgentRegistry) GetSleeping() []domain.AgentSnapshot {
	var out []domain.AgentSnapshot
	for _, a := range r.agents {
		if a.IsSleeping {
			out = append(out, a)
		}
	}
	return out
}

// AllSleeping reports whether every registered agent is asleep.
func (r *AgentRegistry) AllSleeping() bool {
	for _, a := range r.agents {
		if !a.IsSleeping {
			return false
		}
	}
	return len(r.agents) > 0
}

// AnyAwake reports whether at least one registered agent is awake.
func (r *AgentRegistry) AnyAwake() bool {
	for _, a := range r.agents {
		if !a.IsSleeping {
			return true
		}
	}
	return false
}

// --- State-update helpers returning new snapshots, mirroring
// AgentSnapshot's With* copy constructors but applied in place in the
// registry. ---

func (r *AgentRegistry) WithLocation(name domain.AgentName, loc domain.LocationID) (domain.AgentSnapshot, bool) {
	a, ok := r.agents[name]
	if !ok {
		return domain.AgentSnapshot{}, false
	}
	next := a.WithLocation(loc)
	r.agents[name] = next
	return next, true
}

func (r *AgentRegistry) WithMood(name domain.AgentName, mood string) (domain.AgentSnapshot, bool) {
	a, ok := r.agents[name]
	if !ok {
		return domain.AgentSnapshot{}, false
	}
	next := a.WithMood(mood)
	r.agents[name] = next
	return next, true
}

func (r *AgentRegistry) WithEnergy(name domain.AgentName, energy int) (domain.AgentSnapshot, bool) {
	a, ok := r.agents[name]
	if !ok {
		return domain.AgentSnapshot{}, false
	}
	next := a.WithEnergy(energy)
	r.agents[name] = next
	return next, true
}

func (r *AgentRegistry) WithSleepState(name domain.AgentName, tick int, period domain.TimePeriod, sleeping bool) (domain.AgentSnapshot, bool) {
	a, ok := r.agents[name]
	if !ok {
		return domain.AgentSnapshot{}, false
	}
	var next domain.AgentSnapshot
	if sleeping {
		next = a.WithSleep(tick, period)
	} else {
		next = a.WithWake()
	}
	r.agents[name] = next
	return next, true
}

func (r *AgentRegistry) WithSessionID(name domain.AgentName, sessionID string) (domain.AgentSnapshot, bool) {
	a, ok := r.agents[name]
	if !ok {
		return domain.AgentSnapshot{}, false
	}
	next := a.WithSessionID(sessionID)
	r.agents[name] = next
	return next, true
}
