package interpreter

import "strings"

// ToolSchema is a JSON-schema-shaped description of a tool's input,
// passed to the LLM adapter alongside the tool's name and description.
type ToolSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string               `json:"required,omitempty"`
}

// PropertySchema describes one field of a ToolSchema.
type PropertySchema struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// InterpreterContext is what observation processors see: the acting
// agent's location, the destinations reachable from it, and who else is
// present (awake) there.
type InterpreterContext struct {
	CurrentLocation string
	AvailablePaths  []string
	PresentAgents   []string
}

// ObservationProcessor mutates result in response to one tool call's
// input.
type ObservationProcessor func(input map[string]any, result *MutableTurnResult, ctx InterpreterContext)

// ObservationAction is a single registered tool the interpreter may
// call, and how to fold it into a MutableTurnResult.
type ObservationAction struct {
	Name        string
	Description string
	InputSchema ToolSchema
	ResultField string
	IsListField bool
	IsBoolField bool
	Processor   ObservationProcessor
}

// observationRegistry holds every registered observation, keyed by tool
// name. Populated at package init by registerStandardObservations.
var observationRegistry = map[string]ObservationAction{}

// RegisterObservation adds or replaces an observation action.
func RegisterObservation(action ObservationAction) {
	observationRegistry[action.Name] = action
}

// GetInterpreterTools returns every registered tool's (name,
// description, schema), in the shape the LLM adapter expects.
func GetInterpreterTools() []ObservationAction {
	out := make([]ObservationAction, 0, len(observationRegistry))
	for _, a := range observationRegistry {
		out = append(out, a)
	}
	return out
}

// GetToolNames returns every registered tool's name.
func GetToolNames() []string {
	out := make([]string, 0, len(observationRegistry))
	for name := range observationRegistry {
		out = append(out, name)
	}
	return out
}

// lookupObservation returns the registered action for name, if any.
func lookupObservation(name string) (ObservationAction, bool) {
	a, ok := observationRegistry[name]
	return a, ok
}

// MatchDestination resolves free-form destination text reported by an
// agent against the location ids reachable from its current position.
// Tried in order: exact match, substring match, case-insensitive match,
// then a word-overlap match (any underscore/space/hyphen-separated word
// of destination equals a path). Returns "" if nothing matches.
func MatchDestination(destination string, availablePaths []string) string {
	if destination == "" || len(availablePaths) == 0 {
		return ""
	}

	for _, path := range availablePaths {
		if destination == path {
			return path
		}
	}

	lowerDest := strings.ToLower(destination)
	for _, path := range availablePaths {
		if strings.Contains(lowerDest, strings.ToLower(path)) {
			return path
		}
	}

	for _, path := range availablePaths {
		if strings.EqualFold(destination, path) {
			return path
		}
	}

	words := strings.FieldsFunc(lowerDest, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for _, word := range words {
		for _, path := range availablePaths {
			if word == strings.ToLower(path) {
				return path
			}
		}
	}

	return ""
}

func processMovement(input map[string]any, result *MutableTurnResult, ctx InterpreterContext) {
	destination, _ := input["destination"].(string)
	arrivalStart, _ := input["arrival_starts_with"].(string)

	matched := MatchDestination(destination, ctx.AvailablePaths)
	if matched == "" {
		return
	}
	result.Movement = matched
	result.MovementNarrativeStart = arrivalStart
}

func processMood(input map[string]any, result *MutableTurnResult, _ InterpreterContext) {
	mood, _ := input["mood"].(string)
	result.MoodExpressed = mood
}

func processResting(_ map[string]any, result *MutableTurnResult, _ InterpreterContext) {
	result.WantsToRest = true
}

func processSleeping(_ map[string]any, result *MutableTurnResult, _ InterpreterContext) {
	result.WantsToSleep = true
}

func processAction(input map[string]any, result *MutableTurnResult, _ InterpreterContext) {
	description, _ := input["description"].(string)
	if description == "" {
		return
	}
	result.ActionsDescribed = append(result.ActionsDescribed, description)
}

func processProposeMoveTogether(input map[string]any, result *MutableTurnResult, ctx InterpreterContext) {
	destination, _ := input["destination"].(string)
	matched := MatchDestination(destination, ctx.AvailablePaths)
	if matched == "" {
		return
	}
	result.ProposesMovingTogether = matched
}

func processNextSpeaker(input map[string]any, result *MutableTurnResult, ctx InterpreterContext) {
	nextSpeaker, _ := input["next_speaker"].(string)
	if nextSpeaker == "" {
		return
	}
	for _, present := range ctx.PresentAgents {
		if present == nextSpeaker {
			result.SuggestedNextSpeaker = nextSpeaker
			return
		}
	}
}

func init() {
	RegisterObservation(ObservationAction{
		Name:        "report_movement",
		Description: "Report that the agent moved to a new location this turn.",
		InputSchema: ToolSchema{
			Type: "object",
			Properties: map[string]PropertySchema{
				"destination":         {Type: "string", Description: "Where the agent went"},
				"arrival_starts_with": {Type: "string", Description: "First words of the arrival narrative"},
			},
			Required: []string{"destination"},
		},
		ResultField: "movement",
		Processor:   processMovement,
	})

	RegisterObservation(ObservationAction{
		Name:        "report_mood",
		Description: "Report the agent's emotional state as expressed in the narrative.",
		InputSchema: ToolSchema{
			Type:       "object",
			Properties: map[string]PropertySchema{"mood": {Type: "string"}},
			Required:   []string{"mood"},
		},
		ResultField: "mood_expressed",
		Processor:   processMood,
	})

	RegisterObservation(ObservationAction{
		Name:        "report_resting",
		Description: "Report that the agent is winding down or settling in.",
		InputSchema: ToolSchema{Type: "object", Properties: map[string]PropertySchema{}},
		ResultField: "wants_to_rest",
		IsBoolField: true,
		Processor:   processResting,
	})

	RegisterObservation(ObservationAction{
		Name:        "report_sleeping",
		Description: "Report that the agent is going to sleep.",
		InputSchema: ToolSchema{Type: "object", Properties: map[string]PropertySchema{}},
		ResultField: "wants_to_sleep",
		IsBoolField: true,
		Processor:   processSleeping,
	})

	RegisterObservation(ObservationAction{
		Name:        "report_action",
		Description: "Report a discrete activity the agent performed this turn.",
		InputSchema: ToolSchema{
			Type:       "object",
			Properties: map[string]PropertySchema{"description": {Type: "string"}},
			Required:   []string{"description"},
		},
		ResultField: "actions_described",
		IsListField: true,
		Processor:   processAction,
	})

	RegisterObservation(ObservationAction{
		Name:        "report_propose_move_together",
		Description: "Report that the agent invited those present to move together to a destination.",
		InputSchema: ToolSchema{
			Type:       "object",
			Properties: map[string]PropertySchema{"destination": {Type: "string"}},
			Required:   []string{"destination"},
		},
		ResultField: "proposes_moving_together",
		Processor:   processProposeMoveTogether,
	})

	RegisterObservation(ObservationAction{
		Name:        "report_next_speaker",
		Description: "Suggest who should speak next in a multi-participant conversation.",
		InputSchema: ToolSchema{
			Type:       "object",
			Properties: map[string]PropertySchema{"next_speaker": {Type: "string"}},
			Required:   []string{"next_speaker"},
		},
		ResultField: "suggested_next_speaker",
		Processor:   processNextSpeaker,
	})
}
