package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/sublate/backend/internal/db"
	"github.com/sublate/backend/internal/job"
	"github.com/sublate/backend/internal/storage"
)

var (
	errMediaPathRequired = errors.New("path is required")
	errNotMediaFile      = errors.New("path is not a media file")
	errMediaNotFound     = errors.New("media file not found")
	errUnknownPreset     = errors.New("unknown translation preset")
)

type RunsHandler struct {
	queue     *job.JobQueue
	database  *db.Database
	mediaPath string
}

func NewRunsHandler(queue *job.JobQueue, database *db.Database, mediaPath string) *RunsHandler {
	return &RunsHandler{queue: queue, database: database, mediaPath: mediaPath}
}

// builtinPresets are expanded by the prompt builder itself; any other
// preset value names a stored preset resolved here at enqueue time.
var builtinPresets = map[string]bool{
	"": true, "general": true, "anime": true, "movie": true,
	"documentary": true, "custom": true,
}

type generateRunRequest struct {
	Path string `json:"path"`
	job.GenerateParams
}

// CreateGenerate enqueues a full pipeline run for a media file.
func (h *RunsHandler) CreateGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.checkMediaPath(req.Path); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.resolvePreset(&req.Preset, &req.CustomPrompt); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.fillGenerateDefaults(&req.GenerateParams)

	j, err := h.queue.Enqueue(job.JobGenerate, req.Path, req.GenerateParams)
	if err != nil {
		jsonError(w, "failed to enqueue run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, j, http.StatusAccepted)
}

type translateRunRequest struct {
	Path string `json:"path"`
	job.TranslateParams
}

// CreateTranslate enqueues a translate-only run over an existing subtitle.
func (h *RunsHandler) CreateTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.checkMediaPath(req.Path); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.SubtitleID == "" {
		jsonError(w, "subtitle_id is required", http.StatusBadRequest)
		return
	}
	if err := h.resolvePreset(&req.Preset, &req.CustomPrompt); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.fillTranslateDefaults(&req.TranslateParams)

	j, err := h.queue.Enqueue(job.JobTranslate, req.Path, req.TranslateParams)
	if err != nil {
		jsonError(w, "failed to enqueue run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, j, http.StatusAccepted)
}

func (h *RunsHandler) checkMediaPath(rel string) error {
	if rel == "" {
		return errMediaPathRequired
	}
	if !storage.IsMediaFile(rel) {
		return errNotMediaFile
	}
	info, err := os.Stat(filepath.Join(h.mediaPath, rel))
	if err != nil || info.IsDir() {
		return errMediaNotFound
	}
	return nil
}

// resolvePreset swaps a stored preset name for its prompt so the job
// carries everything it needs; re-running it later is unaffected by
// preset edits.
func (h *RunsHandler) resolvePreset(preset, customPrompt *string) error {
	if builtinPresets[*preset] {
		return nil
	}
	stored, err := h.database.GetTranslationPresetByName(*preset)
	if err != nil {
		return errUnknownPreset
	}
	*customPrompt = stored.Prompt
	*preset = "custom"
	return nil
}

// fillGenerateDefaults overlays stored settings onto fields the request
// left empty. Config-level defaults apply later, inside the pipeline.
func (h *RunsHandler) fillGenerateDefaults(p *job.GenerateParams) {
	if p.SpeechEngine == "" {
		p.SpeechEngine = h.database.GetSetting("speech_engine", "")
	}
	if p.TranslateEngine == "" {
		p.TranslateEngine = h.database.GetSetting("translate_engine", "")
	}
	if p.TargetLang == "" {
		p.TargetLang = h.database.GetSetting("target_language", "")
	}
	if p.Model == "" {
		p.Model = h.database.GetSetting("translate_model", "")
	}
	if p.SpeechModel == "" {
		p.SpeechModel = h.database.GetSetting("speech_model", "")
	}
}

func (h *RunsHandler) fillTranslateDefaults(p *job.TranslateParams) {
	if p.TranslateEngine == "" {
		p.TranslateEngine = h.database.GetSetting("translate_engine", "")
	}
	if p.TargetLang == "" {
		p.TargetLang = h.database.GetSetting("target_language", "")
	}
	if p.Model == "" {
		p.Model = h.database.GetSetting("translate_model", "")
	}
}

// List returns all runs, newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.ListJobs()
	if err != nil {
		jsonError(w, "failed to list runs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	jsonResponse(w, jobs, http.StatusOK)
}

// Get returns a single run by ID.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, err := h.queue.GetJob(id)
	if err != nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, j, http.StatusOK)
}

// Cancel stops a pending or running run.
func (h *RunsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.queue.CancelJob(id); err != nil {
		jsonError(w, "failed to cancel run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Retry re-queues a failed or cancelled run with its original parameters.
func (h *RunsHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, err := h.queue.RetryJob(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonResponse(w, j, http.StatusOK)
}
