package domain

import "time"

// TimePeriod is a coarse time-of-day classification.
type TimePeriod string

const (
	Morning   TimePeriod = "morning"
	Afternoon TimePeriod = "afternoon"
	Evening   TimePeriod = "evening"
	Night     TimePeriod = "night"
)

// TimeSnapshot is an immutable representation of a moment in simulated
// time. Period, DayNumber, and Timestamp are derived from WorldTime and
// StartDate rather than stored, so they can never drift out of sync.
type TimeSnapshot struct {
	WorldTime time.Time `json:"world_time"`
	Tick      int       `json:"tick"`
	StartDate time.Time `json:"start_date"`
}

// Period classifies the hour of WorldTime into a TimePeriod.
// morning: 06:00-11:59, afternoon: 12:00-17:59, evening: 18:00-21:59,
// night: the rest.
func (t TimeSnapshot) Period() TimePeriod {
	hour := t.WorldTime.Hour()
	switch {
	case hour >= 6 && hour < 12:
		return Morning
	case hour >= 12 && hour < 18:
		return Afternoon
	case hour >= 18 && hour < 22:
		return Evening
	default:
		return Night
	}
}

// DayNumber is the simulated day number, 1-indexed from StartDate.
func (t TimeSnapshot) DayNumber() int {
	worldDate := t.WorldTime.Truncate(24 * time.Hour)
	startDate := t.StartDate.Truncate(24 * time.Hour)
	daysElapsed := int(worldDate.Sub(startDate).Hours() / 24)
	return daysElapsed + 1
}

// Timestamp is an alias for WorldTime used by display/observer code.
func (t TimeSnapshot) Timestamp() time.Time {
	return t.WorldTime
}
