package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sublate/backend/internal/pipeline"
	"github.com/sublate/backend/internal/storage"
)

// relPath returns the URL-decoded wildcard path, relative to the library
// root. Routes without a wildcard yield the root.
func relPath(r *http.Request) string {
	raw := chi.URLParam(r, "*")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	return strings.Trim(decoded, "/")
}

type FilesHandler struct {
	mediaPath string
	pipeline  *pipeline.Service
}

func NewFilesHandler(mediaPath string, svc *pipeline.Service) *FilesHandler {
	return &FilesHandler{mediaPath: mediaPath, pipeline: svc}
}

// libraryEntry decorates a directory listing entry with whether a run has
// already produced subtitle tracks for it.
type libraryEntry struct {
	storage.FileEntry
	HasTracks bool `json:"has_tracks,omitempty"`
}

// GetTree lists one directory of the media library.
func (h *FilesHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	path := relPath(r)
	if path == "" {
		path = "."
	}

	entries, err := storage.ListDirectory(h.mediaPath, path)
	if err != nil {
		jsonError(w, "failed to list directory", http.StatusInternalServerError)
		return
	}

	decorated := make([]libraryEntry, len(entries))
	for i, e := range entries {
		decorated[i] = libraryEntry{FileEntry: *e}
		if !e.IsDir && storage.IsMediaFile(e.Name) {
			decorated[i].HasTracks = h.pipeline.HasGeneratedTracks(e.Path)
		}
	}

	jsonResponse(w, map[string]interface{}{
		"path":    path,
		"entries": decorated,
	}, http.StatusOK)
}

// GetInfo probes a media file: duration, codecs, audio presence and the
// embedded subtitle streams a run could translate.
func (h *FilesHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	path := relPath(r)
	if !storage.IsMediaFile(path) {
		jsonError(w, "not a media file", http.StatusBadRequest)
		return
	}

	info, err := h.pipeline.ProbeMedia(r.Context(), path)
	if err != nil {
		jsonError(w, "failed to probe file", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]interface{}{
		"info":             info,
		"duration_seconds": info.DurationSeconds(),
		"has_audio":        info.HasAudio(),
	}, http.StatusOK)
}

// Search looks for library entries whose name contains q. The optional
// limit parameter is clamped to 200.
func (h *FilesHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		jsonError(w, "query parameter 'q' is required", http.StatusBadRequest)
		return
	}
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, 200)
	}

	results, err := storage.Search(h.mediaPath, q, limit)
	if err != nil {
		jsonError(w, "search failed", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]interface{}{
		"query":   q,
		"results": results,
	}, http.StatusOK)
}
