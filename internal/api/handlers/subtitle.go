package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sublate/backend/internal/pipeline"
	"github.com/sublate/backend/internal/storage"
)

type SubtitleHandler struct {
	mediaPath    string
	subtitlePath string
	pipeline     *pipeline.Service
}

func NewSubtitleHandler(mediaPath, subtitlePath string, svc *pipeline.Service) *SubtitleHandler {
	return &SubtitleHandler{mediaPath: mediaPath, subtitlePath: subtitlePath, pipeline: svc}
}

type SubtitleEntry struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Language string `json:"language,omitempty"`
	Type     string `json:"type"`   // "embedded", "external" or "generated"
	Format   string `json:"format"` // codec name or file extension
}

// textSubtitleCodecs are embedded subtitle codecs ffmpeg can demux to SRT.
// Bitmap formats (pgs, dvdsub) carry no text to translate.
var textSubtitleCodecs = map[string]bool{
	"subrip":     true,
	"ass":        true,
	"ssa":        true,
	"webvtt":     true,
	"mov_text":   true,
	"srt":        true,
	"text":       true,
	"substation": true,
}

// List returns every subtitle source available for a media file: embedded
// text streams, sidecar files next to it, and previously generated tracks.
// Each entry's id can be passed to a translate run or to download.
func (h *SubtitleHandler) List(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		jsonError(w, "query parameter 'path' is required", http.StatusBadRequest)
		return
	}

	fullPath := filepath.Join(h.mediaPath, path)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		jsonError(w, "file not found", http.StatusNotFound)
		return
	}

	entries := []SubtitleEntry{}

	// Embedded text streams.
	if info, err := h.pipeline.ProbeMedia(r.Context(), path); err == nil {
		for _, s := range info.SubtitleStreams() {
			if !textSubtitleCodecs[s.CodecName] {
				continue
			}
			label := s.Language()
			if t := s.Title(); t != "" {
				label = t
			}
			if label == "" {
				label = fmt.Sprintf("stream %d", s.Index)
			}
			entries = append(entries, SubtitleEntry{
				ID:       fmt.Sprintf("embedded:%d", s.Index),
				Label:    label,
				Language: s.Language(),
				Type:     "embedded",
				Format:   s.CodecName,
			})
		}
	}

	// Sidecar files sharing the media file's base name.
	mediaDir := filepath.Dir(fullPath)
	mediaBase := strings.TrimSuffix(filepath.Base(fullPath), filepath.Ext(fullPath))
	if dirEntries, err := os.ReadDir(mediaDir); err == nil {
		for _, entry := range dirEntries {
			name := entry.Name()
			if entry.IsDir() || !storage.IsSubtitleFile(name) {
				continue
			}
			subBase := strings.TrimSuffix(name, filepath.Ext(name))
			if !strings.HasPrefix(subBase, mediaBase) {
				continue
			}

			// "movie.ko.srt" -> language hint "ko"
			label := name
			lang := strings.TrimPrefix(strings.TrimPrefix(subBase, mediaBase), ".")
			if lang != "" {
				label = lang + " (" + strings.TrimPrefix(filepath.Ext(name), ".") + ")"
			}
			entries = append(entries, SubtitleEntry{
				ID:       "external:" + name,
				Label:    label,
				Language: lang,
				Type:     "external",
				Format:   strings.TrimPrefix(filepath.Ext(name), "."),
			})
		}
	}

	// Generated tracks from previous runs.
	genDir := filepath.Join(h.subtitlePath, h.pipeline.OutputDir(path))
	if dirEntries, err := os.ReadDir(genDir); err == nil {
		for _, entry := range dirEntries {
			name := entry.Name()
			if entry.IsDir() || !storage.IsSubtitleFile(name) {
				continue
			}
			entries = append(entries, SubtitleEntry{
				ID:     "generated:" + h.pipeline.OutputDir(path) + "/" + name,
				Label:  name,
				Type:   "generated",
				Format: strings.TrimPrefix(filepath.Ext(name), "."),
			})
		}
	}

	jsonResponse(w, entries, http.StatusOK)
}

// Download serves a subtitle's raw content by id. Embedded streams come
// out as SRT.
func (h *SubtitleHandler) Download(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	id := r.URL.Query().Get("id")
	if path == "" || id == "" {
		jsonError(w, "query parameters 'path' and 'id' are required", http.StatusBadRequest)
		return
	}

	data, err := h.pipeline.ResolveSubtitle(r.Context(), path, id)
	if err != nil {
		jsonError(w, "failed to load subtitle: "+err.Error(), http.StatusNotFound)
		return
	}

	name := downloadName(path, id)
	w.Header().Set("Content-Type", "application/x-subrip; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Write(data)
}

func downloadName(mediaRel, id string) string {
	switch {
	case strings.HasPrefix(id, "generated:"):
		return filepath.Base(strings.TrimPrefix(id, "generated:"))
	case strings.HasPrefix(id, "external:"):
		return filepath.Base(strings.TrimPrefix(id, "external:"))
	}
	base := strings.TrimSuffix(filepath.Base(mediaRel), filepath.Ext(mediaRel))
	return base + ".srt"
}

type mergeRequest struct {
	Path        string `json:"path"`
	PrimaryID   string `json:"primary_id"`
	SecondaryID string `json:"secondary_id"`
	Title       string `json:"title"`
}

// Merge combines two subtitle tracks into one bilingual file: the
// secondary's text is stacked above the primary's, timing follows the
// primary.
func (h *SubtitleHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" || req.PrimaryID == "" || req.SecondaryID == "" {
		jsonError(w, "path, primary_id and secondary_id are required", http.StatusBadRequest)
		return
	}

	rel, cues, err := h.pipeline.MergeSubtitles(r.Context(), req.Path, req.PrimaryID, req.SecondaryID, req.Title)
	if err != nil {
		jsonError(w, "merge failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	jsonResponse(w, map[string]interface{}{
		"path": rel,
		"id":   "generated:" + rel,
		"cues": cues,
	}, http.StatusCreated)
}
