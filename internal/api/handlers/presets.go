package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sublate/backend/internal/db"
)

type PresetsHandler struct {
	database *db.Database
}

func NewPresetsHandler(database *db.Database) *PresetsHandler {
	return &PresetsHandler{database: database}
}

type presetRequest struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// validate trims and checks a preset payload. Builtin preset names are
// reserved: runs resolve those before looking at stored presets, so a
// stored preset by the same name would never be used.
func (p *presetRequest) validate() string {
	p.Name = strings.TrimSpace(p.Name)
	p.Prompt = strings.TrimSpace(p.Prompt)
	if p.Name == "" || p.Prompt == "" {
		return "name and prompt are required"
	}
	if builtinPresets[p.Name] {
		return "preset name " + strconv.Quote(p.Name) + " is reserved"
	}
	return ""
}

func presetID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// ListPresets returns all saved translation presets.
func (h *PresetsHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := h.database.ListTranslationPresets()
	if err != nil {
		jsonError(w, "failed to list presets: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, presets, http.StatusOK)
}

// CreatePreset saves a new translation preset.
func (h *PresetsHandler) CreatePreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		jsonError(w, msg, http.StatusBadRequest)
		return
	}

	id, err := h.database.CreateTranslationPreset(req.Name, req.Prompt)
	if err != nil {
		jsonError(w, "failed to create preset (name may already exist)", http.StatusConflict)
		return
	}
	jsonResponse(w, map[string]interface{}{"id": id, "name": req.Name}, http.StatusCreated)
}

// UpdatePreset replaces a preset's name and prompt.
func (h *PresetsHandler) UpdatePreset(w http.ResponseWriter, r *http.Request) {
	id, ok := presetID(r)
	if !ok {
		jsonError(w, "invalid preset ID", http.StatusBadRequest)
		return
	}

	var req presetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		jsonError(w, msg, http.StatusBadRequest)
		return
	}

	if err := h.database.UpdateTranslationPreset(id, req.Name, req.Prompt); err != nil {
		jsonError(w, "failed to update preset (name may already exist)", http.StatusConflict)
		return
	}
	jsonResponse(w, map[string]interface{}{"id": id, "name": req.Name}, http.StatusOK)
}

// DeletePreset removes a saved translation preset. Runs already queued
// keep the prompt text they captured at enqueue time.
func (h *PresetsHandler) DeletePreset(w http.ResponseWriter, r *http.Request) {
	id, ok := presetID(r)
	if !ok {
		jsonError(w, "invalid preset ID", http.StatusBadRequest)
		return
	}
	if err := h.database.DeleteTranslationPreset(id); err != nil {
		jsonError(w, "failed to delete preset: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
