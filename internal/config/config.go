// Package config loads the village definition: locations, agents, model
// bindings, and pacing overrides, layered from a YAML file, environment
// variables, and built-in defaults.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AgentSeed is the static definition of one agent to populate a fresh
// village with.
type AgentSeed struct {
	Name          string
	ModelID       string
	ModelDisplay  string
	ModelProvider string
	Personality   string
	Job           string
	Interests     []string
	NoteToSelf    string
	Location      string
	Mood          string
	Energy        int
	Goals         []string
}

// LocationSeed is the static definition of one location.
type LocationSeed struct {
	ID          string
	Name        string
	Description string
	Features    []string
	Connections []string
}

// PacingConfig holds pacing values, in minutes of simulated time, as
// loaded from config. Nothing in this module reads them: scheduling
// always uses the scheduler package's built-in pacing constants.
type PacingConfig struct {
	ConversationPaceMinutes int
	SoloPaceMinutes         int
	InviteResponseMinutes   int
}

// VillageConfig is the fully loaded village definition.
type VillageConfig struct {
	VillageRoot     string
	SnapshotInterval int
	Pacing          PacingConfig
	Locations       []LocationSeed
	Agents          []AgentSeed
}

// Load reads a village config from configDir/village.yaml, a
// configDir/.env file, and environment variables (VILLAGE_ prefix),
// falling back to built-in defaults for anything unset. A missing
// village.yaml is not an error: the built-in village still loads.
func Load(configDir string) (*VillageConfig, error) {
	log := slog.With("config_dir", configDir)

	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		log.Info("loaded environment file", "path", envPath)
	}

	v := viper.New()
	v.SetConfigName("village")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("VILLAGE")
	v.AutomaticEnv()

	v.SetDefault("village_root", "village")
	v.SetDefault("snapshot_interval", 100)
	v.SetDefault("pacing.conversation_pace_minutes", 0)
	v.SetDefault("pacing.solo_pace_minutes", 0)
	v.SetDefault("pacing.invite_response_minutes", 0)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, &ValidationError{Section: "village.yaml", Err: err}
		}
		log.Info("no village.yaml found, using built-in defaults")
	}

	cfg := &VillageConfig{
		VillageRoot:      v.GetString("village_root"),
		SnapshotInterval: v.GetInt("snapshot_interval"),
		Pacing: PacingConfig{
			ConversationPaceMinutes: v.GetInt("pacing.conversation_pace_minutes"),
			SoloPaceMinutes:         v.GetInt("pacing.solo_pace_minutes"),
			InviteResponseMinutes:   v.GetInt("pacing.invite_response_minutes"),
		},
	}

	if v.IsSet("locations") {
		var locations []LocationSeed
		if err := v.UnmarshalKey("locations", &locations); err != nil {
			return nil, &ValidationError{Section: "locations", Err: err}
		}
		cfg.Locations = locations
	} else {
		cfg.Locations = DefaultLocations()
	}

	if v.IsSet("agents") {
		var agents []AgentSeed
		if err := v.UnmarshalKey("agents", &agents); err != nil {
			return nil, &ValidationError{Section: "agents", Err: err}
		}
		cfg.Agents = agents
	} else {
		cfg.Agents = DefaultAgents()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *VillageConfig) validate() error {
	if len(c.Agents) == 0 {
		return &ValidationError{Section: "agents", Err: fmt.Errorf("at least one agent is required")}
	}
	locations := make(map[string]struct{}, len(c.Locations))
	for _, loc := range c.Locations {
		locations[loc.ID] = struct{}{}
	}
	for _, agent := range c.Agents {
		if _, ok := locations[agent.Location]; !ok {
			return &ValidationError{Section: "agents", Field: agent.Name,
				Err: fmt.Errorf("starting location %q is not defined", agent.Location)}
		}
	}
	return nil
}

// StartTime returns the simulated clock's initial value: now, truncated
// to the minute for readability in logs and snapshots.
func (c *VillageConfig) StartTime() time.Time {
	return time.Now().Truncate(time.Minute)
}
