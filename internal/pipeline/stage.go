package pipeline

import (
	"github.com/yungbote/loresmith/internal/domain"
)

const DefaultCount = 3

// StageConfig is the copy shown for a stage.
type StageConfig struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    domain.Stage `json:"category"`
}

var stageConfigs = map[domain.Stage]StageConfig{
	domain.StageCharacters: {
		Title:       "Choose Your Character",
		Description: "Select your playable character for this adventure",
		Category:    domain.StageCharacters,
	},
	domain.StageFactions: {
		Title:       "Choose a Faction",
		Description: "Select a notable faction that will shape your story",
		Category:    domain.StageFactions,
	},
	domain.StageSettings: {
		Title:       "Choose Your Setting",
		Description: "Select the primary location where your adventure begins",
		Category:    domain.StageSettings,
	},
	domain.StageEvents: {
		Title:       "Choose a Historical Event",
		Description: "Select a significant event that impacts your world",
		Category:    domain.StageEvents,
	},
	domain.StageRelics: {
		Title:       "Choose a Relic",
		Description: "Select a powerful artifact that exists in your world",
		Category:    domain.StageRelics,
	},
	domain.StageFinalize: {
		Title:       "Generate Full Story",
		Description: "Creating your complete adventure narrative",
		Category:    domain.StageFinalize,
	},
}

func ConfigFor(s domain.Stage) StageConfig {
	if cfg, ok := stageConfigs[s]; ok {
		return cfg
	}
	return StageConfig{Category: s}
}

// stagePayload builds the generation payload for a stage. Later stages carry the
// earlier picks they depend on.
func stagePayload(stage domain.Stage, theme string, count int, picks domain.SelectionState) map[string]any {
	p := map[string]any{
		"theme": theme,
		"count": count,
	}
	switch stage {
	case domain.StageEvents:
		if s, ok := picks[domain.KeySetting]; ok {
			p["selectedSetting"] = s
		}
	case domain.StageRelics:
		if s, ok := picks[domain.KeySetting]; ok {
			p["selectedSetting"] = s
		}
		if e, ok := picks[domain.KeyEvent]; ok {
			p["selectedEvent"] = e
		}
	}
	return p
}

func finalizePayload(theme string, userID int64, picks domain.SelectionState) map[string]any {
	return map[string]any{
		"selectedLore": picks.Clone(),
		"theme":        theme,
		"user_id":      userID,
	}
}
