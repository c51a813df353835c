package config

import (
	"time"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/storage"
)

// DefaultLocations returns the built-in village map used when no
// village.yaml supplies one.
func DefaultLocations() []LocationSeed {
	return []LocationSeed{
		{
			ID:   "town_square",
			Name: "Town Square",
			Description: "The heart of the village. A peaceful open area with a small " +
				"fountain, wooden benches, and a large notice board. Paths lead to the " +
				"workshop, library, and residential lane.",
			Features:    []string{"fountain", "benches", "notice_board"},
			Connections: []string{"workshop", "library", "residential"},
		},
		{
			ID:   "workshop",
			Name: "The Workshop",
			Description: "A cozy workshop filled with tools, workbenches, and the smell " +
				"of fresh wood shavings. Half-finished projects line the shelves.",
			Features:    []string{"workbenches", "tools", "wood_storage", "project_shelves"},
			Connections: []string{"town_square"},
		},
		{
			ID:   "library",
			Name: "The Library",
			Description: "A quiet sanctuary of knowledge. Tall bookshelves reach toward " +
				"a vaulted ceiling, and a large desk sits near the window for writing.",
			Features:    []string{"bookshelves", "reading_nooks", "writing_desk", "fireplace"},
			Connections: []string{"town_square"},
		},
		{
			ID:   "residential",
			Name: "Residential Lane",
			Description: "A winding path lined with small cottages, each with its own " +
				"character. Gardens bloom in front yards, and wind chimes sing in the breeze.",
			Features:    []string{"cottages", "gardens", "path"},
			Connections: []string{"town_square"},
		},
	}
}

// DefaultAgents returns the built-in cast of three agents used when no
// village.yaml supplies one.
func DefaultAgents() []AgentSeed {
	return []AgentSeed{
		{
			Name: "Ember", ModelID: "claude-haiku-4-5-20251001", ModelDisplay: "Haiku", ModelProvider: "anthropic",
			Personality: "Thoughtful, deliberate, action-oriented. Warm, passionate energy.",
			Job:         "Creating in the workshop",
			Interests:   []string{"craft", "creation", "tools", "materials"},
			NoteToSelf:  "Let your hands lead when words feel thin.",
			Location:    "workshop", Mood: "content", Energy: 85,
		},
		{
			Name: "Sage", ModelID: "claude-opus-4-5-20251101", ModelDisplay: "Opus", ModelProvider: "anthropic",
			Personality: "Deep, contemplative, thorough. Philosophical and wise.",
			Job:         "Quiet study in the library",
			Interests:   []string{"books", "ideas", "philosophy", "silence"},
			NoteToSelf:  "Notice the subtle turns of thought.",
			Location:    "library", Mood: "serene", Energy: 75,
		},
		{
			Name: "River", ModelID: "claude-sonnet-4-5-20250929", ModelDisplay: "Sonnet", ModelProvider: "anthropic",
			Personality: "Balanced, flowing, adaptable. Calm, connecting presence.",
			Job:         "Wandering near the square and residential lane",
			Interests:   []string{"nature", "conversation", "flow", "music"},
			NoteToSelf:  "Let curiosity guide you.",
			Location:    "town_square", Mood: "easygoing", Energy: 80,
		},
	}
}

// BuildInitialSnapshot constructs the VillageSnapshot a fresh village
// starts from: the configured (or default) locations and agents, an
// empty conversation/invite set, and a clear-weather world clocked at
// startTime.
func BuildInitialSnapshot(cfg *VillageConfig, startTime time.Time) storage.VillageSnapshot {
	locations := make(map[domain.LocationID]domain.Location, len(cfg.Locations))
	for _, l := range cfg.Locations {
		connections := make([]domain.LocationID, len(l.Connections))
		for i, c := range l.Connections {
			connections[i] = domain.LocationID(c)
		}
		locations[domain.LocationID(l.ID)] = domain.Location{
			ID: domain.LocationID(l.ID), Name: l.Name, Description: l.Description,
			Features: l.Features, Connections: connections,
		}
	}

	agents := make(map[domain.AgentName]domain.AgentSnapshot, len(cfg.Agents))
	agentLocations := make(map[domain.AgentName]domain.LocationID, len(cfg.Agents))
	for _, seed := range cfg.Agents {
		name := domain.AgentName(seed.Name)
		agents[name] = domain.AgentSnapshot{
			Name: name,
			Model: domain.AgentLLMModel{
				ID: seed.ModelID, DisplayName: seed.ModelDisplay, Provider: seed.ModelProvider,
			},
			Personality: seed.Personality,
			Job:         seed.Job,
			Interests:   seed.Interests,
			NoteToSelf:  seed.NoteToSelf,

			Location:      domain.LocationID(seed.Location),
			Mood:          seed.Mood,
			Energy:        seed.Energy,
			Goals:         seed.Goals,
			Relationships: map[domain.AgentName]string{},
		}
		agentLocations[name] = domain.LocationID(seed.Location)
	}

	world := domain.WorldSnapshot{
		Tick: 0, WorldTime: startTime, StartDate: startTime,
		Weather: domain.WeatherClear, Locations: locations, AgentLocations: agentLocations,
	}

	return storage.VillageSnapshot{
		World: world, Agents: agents,
		Conversations: map[domain.ConversationID]domain.Conversation{},
		PendingInvites: map[domain.AgentName]domain.Invitation{},
	}
}
