// Package settings persists AI settings and per-owner profiles in the
// local key-value store, migrating blobs written by older releases.
package settings

import (
	"encoding/json"

	"markdraft/internal/localstore"
	"markdraft/pkg/logger"
)

const (
	aiSettingsKey    = "ai-settings"
	profileKeyPrefix = "profile_"

	// DefaultModel replaces retired model names during migration.
	DefaultModel = "gemini-2.5-flash"
)

// AISettings is the one blob of generation tuning shared by all AI
// operations. ThinkingBudget: 0 disables thinking, -1 is unbounded, >0
// caps deliberation tokens.
type AISettings struct {
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"maxTokens"`
	ThinkingBudget int     `json:"thinkingBudget"`
	AutoSave       bool    `json:"autoSave"`
}

func DefaultAISettings() AISettings {
	return AISettings{
		Model:          DefaultModel,
		Temperature:    0.7,
		MaxTokens:      1000,
		ThinkingBudget: -1,
		AutoSave:       true,
	}
}

// UISettings is the slice of the profile the frontend round-trips.
type UISettings struct {
	Theme    string `json:"theme"`
	AutoSave bool   `json:"autoSave"`
}

// Profile is one owner's locally persisted data: their Gemini API key and
// UI preferences. Keyed per owner, never shared.
type Profile struct {
	GeminiAPIKey string     `json:"geminiApiKey"`
	Settings     UISettings `json:"settings"`
}

func defaultProfile() Profile {
	return Profile{Settings: UISettings{Theme: "dark", AutoSave: true}}
}

// Manager loads and saves settings blobs. Corrupt JSON at any key is
// discarded and replaced with defaults; settings are recoverable state and
// must never crash startup.
type Manager struct {
	store *localstore.Store
}

func NewManager(store *localstore.Store) *Manager {
	return &Manager{store: store}
}

// aiSettingsBlob is the wire shape across releases. Pointers distinguish
// "absent" from zero values; enableThinking is the deprecated boolean that
// thinkingBudget replaced.
type aiSettingsBlob struct {
	Model          *string  `json:"model"`
	Temperature    *float64 `json:"temperature"`
	MaxTokens      *int     `json:"maxTokens"`
	ThinkingBudget *int     `json:"thinkingBudget"`
	AutoSave       *bool    `json:"autoSave"`
	EnableThinking *bool    `json:"enableThinking"`
}

// LoadAI returns the persisted AI settings, migrated to the current
// layout. Migrated settings are written back immediately so the legacy
// fields disappear from disk.
func (m *Manager) LoadAI() AISettings {
	defaults := DefaultAISettings()

	raw, ok, err := m.store.Get(aiSettingsKey)
	if err != nil {
		logger.Sugar.Errorf("Failed to read AI settings: %v", err)
		return defaults
	}
	if !ok {
		return defaults
	}

	var blob aiSettingsBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		logger.Sugar.Warnf("Corrupt AI settings blob, resetting to defaults: %v", err)
		_ = m.store.Delete(aiSettingsKey)
		return defaults
	}

	s, migrated := migrateAISettings(blob, defaults)
	if migrated {
		if err := m.SaveAI(s); err != nil {
			logger.Sugar.Warnf("Failed to persist migrated AI settings: %v", err)
		}
	}
	return s
}

// SaveAI persists the settings blob.
func (m *Manager) SaveAI(s AISettings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return m.store.Set(aiSettingsKey, raw)
}

// migrateAISettings folds a stored blob onto the defaults and applies the
// legacy conversions: retired gemini-1.5-* model names map to the current
// default, enableThinking true/false becomes thinkingBudget -1/0, and a
// missing thinkingBudget defaults to -1.
func migrateAISettings(blob aiSettingsBlob, s AISettings) (AISettings, bool) {
	migrated := false

	if blob.Model != nil {
		switch *blob.Model {
		case "gemini-1.5-flash", "gemini-1.5-pro":
			s.Model = DefaultModel
			migrated = true
		default:
			s.Model = *blob.Model
		}
	}
	if blob.Temperature != nil {
		s.Temperature = *blob.Temperature
	}
	if blob.MaxTokens != nil {
		s.MaxTokens = *blob.MaxTokens
	}
	if blob.AutoSave != nil {
		s.AutoSave = *blob.AutoSave
	}

	switch {
	case blob.ThinkingBudget != nil:
		s.ThinkingBudget = *blob.ThinkingBudget
	case blob.EnableThinking != nil:
		if *blob.EnableThinking {
			s.ThinkingBudget = -1
		} else {
			s.ThinkingBudget = 0
		}
		migrated = true
	default:
		s.ThinkingBudget = -1
		migrated = true
	}
	if blob.EnableThinking != nil {
		// Rewriting without the field drops it from disk.
		migrated = true
	}

	return s, migrated
}

// LoadProfile returns the owner's profile, or a default one when nothing
// usable is stored.
func (m *Manager) LoadProfile(ownerID string) Profile {
	if ownerID == "" {
		return defaultProfile()
	}

	raw, ok, err := m.store.Get(profileKeyPrefix + ownerID)
	if err != nil || !ok {
		if err != nil {
			logger.Sugar.Errorf("Failed to read profile for owner %s: %v", ownerID, err)
		}
		return defaultProfile()
	}

	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		logger.Sugar.Warnf("Corrupt profile blob for owner %s, resetting: %v", ownerID, err)
		_ = m.store.Delete(profileKeyPrefix + ownerID)
		return defaultProfile()
	}
	if p.Settings.Theme == "" {
		p.Settings.Theme = "dark"
	}
	return p
}

// SaveProfile persists the owner's profile.
func (m *Manager) SaveProfile(ownerID string, p Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return m.store.Set(profileKeyPrefix+ownerID, raw)
}
