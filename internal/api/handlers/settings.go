package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sublate/backend/internal/db"
)

// settingsKeys defines which keys are allowed and their display metadata.
// These override the matching environment variables; engines added here
// without credentials at boot still need a restart to register.
var settingsKeys = []SettingDef{
	{Key: "speech_engine", Label: "Speech Engine", Group: "speech", Placeholder: "whispercpp"},
	{Key: "speech_model", Label: "Speech Model", Group: "speech", Placeholder: "large-v3"},
	{Key: "whisper_url", Label: "Whisper Server URL", Group: "speech", Placeholder: "http://whisper:8080"},
	{Key: "translate_engine", Label: "Translation Engine", Group: "translation", Placeholder: "gemini"},
	{Key: "translate_model", Label: "Translation Model", Group: "translation", Placeholder: "gemini-2.0-flash"},
	{Key: "target_language", Label: "Target Language", Group: "translation", Placeholder: "Simplified Chinese"},
	{Key: "openai_api_key", Label: "OpenAI API Key", Group: "keys", Placeholder: "sk-...", Secret: true},
	{Key: "gemini_api_key", Label: "Gemini API Key", Group: "keys", Placeholder: "AIza...", Secret: true},
	{Key: "deepl_api_key", Label: "DeepL API Key", Group: "keys", Placeholder: "xxxxxxxx-xxxx-...", Secret: true},
}

var allowedSettings = func() map[string]bool {
	m := make(map[string]bool, len(settingsKeys))
	for _, def := range settingsKeys {
		m[def.Key] = true
	}
	return m
}()

type SettingDef struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Group       string `json:"group"`
	Placeholder string `json:"placeholder"`
	Secret      bool   `json:"secret"`
}

// SettingValue is a SettingDef plus its current (possibly masked) value.
type SettingValue struct {
	SettingDef
	Value    string `json:"value"`
	HasValue bool   `json:"has_value"`
}

const maskPrefix = "••••••••"

// maskSecret hides all but the last four characters.
func maskSecret(val string) string {
	if len(val) > 4 {
		return maskPrefix + val[len(val)-4:]
	}
	return maskPrefix
}

type SettingsHandler struct {
	database *db.Database
}

func NewSettingsHandler(database *db.Database) *SettingsHandler {
	return &SettingsHandler{database: database}
}

// GetSettings returns all settings. Secrets are masked down to their
// last four characters.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := h.database.GetAllSettings()
	if err != nil {
		jsonError(w, "failed to load settings", http.StatusInternalServerError)
		return
	}

	result := make([]SettingValue, 0, len(settingsKeys))
	for _, def := range settingsKeys {
		val := all[def.Key]
		hasValue := val != ""
		if def.Secret && hasValue {
			val = maskSecret(val)
		}
		result = append(result, SettingValue{SettingDef: def, Value: val, HasValue: hasValue})
	}
	jsonResponse(w, result, http.StatusOK)
}

// UpdateSettings saves settings from the request body. Masked values are
// round-tripped by clients that resubmit the whole form, so they never
// overwrite the stored secret. An empty string deletes the row, which puts
// the environment default back in effect.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	for key, value := range updates {
		if !allowedSettings[key] || strings.HasPrefix(value, maskPrefix) {
			continue
		}
		var err error
		if value == "" {
			err = h.database.DeleteSetting(key)
		} else {
			err = h.database.SetSetting(key, value)
		}
		if err != nil {
			jsonError(w, "failed to save setting: "+key, http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
