package domain

import "errors"

var ErrEmptyResult = errors.New("job result is empty")

// Artifact is one generated lore piece offered to the user as a card.
type Artifact struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	Type        string         `json:"type"`
}

// Stage is one step of the creation pipeline.
type Stage string

const (
	StageCharacters Stage = "characters"
	StageFactions   Stage = "factions"
	StageSettings   Stage = "settings"
	StageEvents     Stage = "events"
	StageRelics     Stage = "relics"

	// StageFinalize is the terminal assembly action; it is never a selectable stage.
	StageFinalize Stage = "finalize"
)

// StageOrder is the fixed forward sequence of selectable stages.
var StageOrder = []Stage{StageCharacters, StageFactions, StageSettings, StageEvents, StageRelics}

// Next returns the stage after s, StageFinalize after the last stage, and "" for an
// unknown stage.
func (s Stage) Next() Stage {
	for i, st := range StageOrder {
		if st != s {
			continue
		}
		if i == len(StageOrder)-1 {
			return StageFinalize
		}
		return StageOrder[i+1]
	}
	return ""
}

func (s Stage) Valid() bool {
	for _, st := range StageOrder {
		if st == s {
			return true
		}
	}
	return false
}

// SelectionKey is the singular key a stage's pick is stored under.
type SelectionKey string

const (
	KeyCharacter SelectionKey = "character"
	KeyFaction   SelectionKey = "faction"
	KeySetting   SelectionKey = "setting"
	KeyEvent     SelectionKey = "event"
	KeyRelic     SelectionKey = "relic"
)

func (s Stage) SelectionKey() SelectionKey {
	switch s {
	case StageCharacters:
		return KeyCharacter
	case StageFactions:
		return KeyFaction
	case StageSettings:
		return KeySetting
	case StageEvents:
		return KeyEvent
	case StageRelics:
		return KeyRelic
	default:
		return ""
	}
}

func (s Stage) TaskKind() TaskKind {
	switch s {
	case StageCharacters:
		return TaskGenerateCharacters
	case StageFactions:
		return TaskGenerateFactions
	case StageSettings:
		return TaskGenerateSettings
	case StageEvents:
		return TaskGenerateEvents
	case StageRelics:
		return TaskGenerateRelics
	case StageFinalize:
		return TaskCreateWorld
	default:
		return ""
	}
}

// SelectionState holds at most one chosen artifact per selection key.
type SelectionState map[SelectionKey]Artifact

func (s SelectionState) Clone() SelectionState {
	out := make(SelectionState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// WorldCreated is the result payload of a create_world job.
type WorldCreated struct {
	WorldID int64 `json:"world_id"`
}

// WorldImage is the result payload of a generate_world_image job.
type WorldImage struct {
	WorldID  int64  `json:"world_id,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}
