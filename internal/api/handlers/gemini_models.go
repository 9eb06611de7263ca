package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sublate/backend/internal/db"
)

// GeminiModel is the frontend-friendly model info.
type GeminiModel struct {
	ID          string `json:"id"`           // e.g. "gemini-2.5-flash"
	DisplayName string `json:"display_name"` // e.g. "Gemini 2.5 Flash"
	Description string `json:"description"`
}

// geminiCatalogEntry is one entry of the Google model catalog.
type geminiCatalogEntry struct {
	Name                       string   `json:"name"`        // "models/gemini-2.5-flash"
	DisplayName                string   `json:"displayName"` // "Gemini 2.5 Flash"
	Description                string   `json:"description"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

// Embedding, research and media-generation models share the gemini- prefix
// but cannot translate text.
var nonTextMarkers = []string{"embedding", "aqa", "imagen", "veo", "lyria", "learnlm"}

type GeminiModelsHandler struct {
	database *db.Database
	envKey   string

	mu        sync.Mutex
	cached    []GeminiModel
	cacheTime time.Time
}

// NewGeminiModelsHandler lists Gemini models for the settings UI. envKey
// is the GEMINI_API_KEY fallback used when no key is stored in settings.
func NewGeminiModelsHandler(database *db.Database, envKey string) *GeminiModelsHandler {
	return &GeminiModelsHandler{database: database, envKey: envKey}
}

// ListModels fetches available Gemini text models from the Google API.
func (h *GeminiModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	apiKey := h.database.GetSetting("gemini_api_key", h.envKey)
	if apiKey == "" {
		jsonResponse(w, []GeminiModel{}, http.StatusOK)
		return
	}

	models, err := h.getModels(apiKey)
	if err != nil {
		jsonError(w, "failed to fetch Gemini models: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, models, http.StatusOK)
}

// cachedCopy returns a copy of the cache, or nil when it is empty or older
// than maxAge. Callers must hold mu.
func (h *GeminiModelsHandler) cachedCopy(maxAge time.Duration) []GeminiModel {
	if len(h.cached) == 0 || time.Since(h.cacheTime) > maxAge {
		return nil
	}
	result := make([]GeminiModel, len(h.cached))
	copy(result, h.cached)
	return result
}

func (h *GeminiModelsHandler) getModels(apiKey string) ([]GeminiModel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if fresh := h.cachedCopy(time.Hour); fresh != nil {
		return fresh, nil
	}

	entries, err := fetchGeminiCatalog(apiKey)
	if err != nil {
		// A stale cache beats an error page.
		if stale := h.cachedCopy(24 * time.Hour); stale != nil {
			return stale, nil
		}
		return nil, err
	}

	models := translationModels(entries)
	h.cached = models
	h.cacheTime = time.Now()

	result := make([]GeminiModel, len(models))
	copy(result, models)
	return result, nil
}

func fetchGeminiCatalog(apiKey string) ([]geminiCatalogEntry, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models?key=%s&pageSize=100", apiKey)

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("google API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google API: status %d", resp.StatusCode)
	}

	var catalog struct {
		Models []geminiCatalogEntry `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("parse google API response: %w", err)
	}
	return catalog.Models, nil
}

// translationModels filters the catalog down to deduplicated Gemini text
// models, newest first.
func translationModels(entries []geminiCatalogEntry) []GeminiModel {
	models := []GeminiModel{}
	seen := make(map[string]bool)
	for _, e := range entries {
		id := strings.TrimPrefix(e.Name, "models/")
		if seen[id] || !canTranslate(id, e.SupportedGenerationMethods) {
			continue
		}
		seen[id] = true
		models = append(models, GeminiModel{
			ID:          id,
			DisplayName: e.DisplayName,
			Description: e.Description,
		})
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID > models[j].ID
	})
	return models
}

func canTranslate(id string, methods []string) bool {
	if !strings.HasPrefix(id, "gemini-") {
		return false
	}
	for _, marker := range nonTextMarkers {
		if strings.Contains(id, marker) {
			return false
		}
	}
	for _, m := range methods {
		if m == "generateContent" {
			return true
		}
	}
	return false
}
