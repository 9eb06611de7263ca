package handlers

import (
	"net/http"

	"github.com/sublate/backend/internal/pipeline"
)

type EnginesHandler struct {
	pipeline *pipeline.Service
}

func NewEnginesHandler(svc *pipeline.Service) *EnginesHandler {
	return &EnginesHandler{pipeline: svc}
}

// AvailableEngine is the dropdown-friendly format for frontends.
type AvailableEngine struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var engineLabels = map[string]string{
	"whispercpp": "Whisper (self-hosted)",
	"openai":     "OpenAI",
	"google":     "Google Cloud Speech",
	"gemini":     "Google Gemini",
	"deepl":      "DeepL",
}

func engineList(names []string) []AvailableEngine {
	engines := make([]AvailableEngine, 0, len(names))
	for _, name := range names {
		label := engineLabels[name]
		if label == "" {
			label = name
		}
		engines = append(engines, AvailableEngine{Value: name, Label: label})
	}
	return engines
}

// List returns the speech and translation engines registered at startup.
// Only engines with credentials configured show up here.
func (h *EnginesHandler) List(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string][]AvailableEngine{
		"speech":      engineList(h.pipeline.SpeechEngines()),
		"translation": engineList(h.pipeline.TranslateEngines()),
	}, http.StatusOK)
}
