package domain

import "time"

// Weather is the current weather condition in the village.
type Weather string

const (
	WeatherClear  Weather = "clear"
	WeatherCloudy Weather = "cloudy"
	WeatherRainy  Weather = "rainy"
	WeatherStormy Weather = "stormy"
	WeatherFoggy  Weather = "foggy"
	WeatherSnowy  Weather = "snowy"
)

// Location is a place in the world. The connection relation is
// symmetric by convention but not enforced.
type Location struct {
	ID          LocationID   `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Features    []string     `json:"features"`
	Connections []LocationID `json:"connections"`
}

// WorldSnapshot is an immutable representation of the world's state at
// a moment in time.
type WorldSnapshot struct {
	Tick           int                          `json:"tick"`
	WorldTime      time.Time                    `json:"world_time"`
	StartDate      time.Time                    `json:"start_date"`
	Weather        Weather                      `json:"weather"`
	Locations      map[LocationID]Location      `json:"locations"`
	AgentLocations map[AgentName]LocationID     `json:"agent_locations"`
	InterpreterUsage InterpreterTokenUsageTotal `json:"interpreter_usage"`
}

// InterpreterTokenUsageTotal accumulates system-overhead token spend by
// the narrative interpreter, which is not attributed to any one agent.
type InterpreterTokenUsageTotal struct {
	TotalInputTokens  int `json:"total_input_tokens"`
	TotalOutputTokens int `json:"total_output_tokens"`
}

// WithTick returns a copy of the world snapshot with Tick and WorldTime
// replaced, leaving the receiver untouched.
func (w WorldSnapshot) WithTick(tick int, worldTime time.Time) WorldSnapshot {
	next := w
	next.Tick = tick
	next.WorldTime = worldTime
	return next
}

func (w WorldSnapshot) WithAgentLocation(agent AgentName, loc LocationID) WorldSnapshot {
	next := w
	locs := make(map[AgentName]LocationID, len(w.AgentLocations))
	for k, v := range w.AgentLocations {
		locs[k] = v
	}
	locs[agent] = loc
	next.AgentLocations = locs
	return next
}

func (w WorldSnapshot) WithWeather(weather Weather) WorldSnapshot {
	next := w
	next.Weather = weather
	return next
}

func (w WorldSnapshot) WithInterpreterUsage(inputTokens, outputTokens int) WorldSnapshot {
	next := w
	next.InterpreterUsage = InterpreterTokenUsageTotal{
		TotalInputTokens:  w.InterpreterUsage.TotalInputTokens + inputTokens,
		TotalOutputTokens: w.InterpreterUsage.TotalOutputTokens + outputTokens,
	}
	return next
}
