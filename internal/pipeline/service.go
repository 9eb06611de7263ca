// Package pipeline wires silence detection, transcription, translation and
// cue assembly into the job handlers behind the API.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/sublate/backend/internal/ffmpeg"
	"github.com/sublate/backend/internal/subtitle"
	"github.com/sublate/backend/internal/subtitle/transcribe"
	"github.com/sublate/backend/internal/subtitle/translate"
	"github.com/sublate/backend/internal/vad"
)

// Config carries the paths and stage tuning for a Service.
type Config struct {
	MediaPath    string // root of the media library
	SubtitlePath string // root for generated subtitle tracks

	DefaultSpeechEngine    string
	DefaultTranslateEngine string
	DefaultTargetLang      string

	VAD        vad.Config
	Assemble   subtitle.AssembleConfig
	Transcribe transcribe.Config
	Translate  translate.Batcher
}

// Service owns the engine registries and runs subtitle jobs.
type Service struct {
	cfg Config

	mu          sync.RWMutex
	speech      map[string]transcribe.Recognizer
	translators map[string]translate.Backend

	// Stage functions are fields so tests can run without ffmpeg.
	cut        transcribe.CutFunc
	probe      func(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
	extractWAV func(ctx context.Context, src, dst string) error
	segment    func(path string, cfg vad.Config) ([]vad.Span, error)
	extractSub func(ctx context.Context, src string, streamIndex int) ([]byte, error)
	convertSub func(ctx context.Context, path string) ([]byte, error)
}

func NewService(cfg Config) *Service {
	return &Service{
		cfg:         cfg,
		speech:      make(map[string]transcribe.Recognizer),
		translators: make(map[string]translate.Backend),
		cut:         ffmpeg.CutWAV,
		probe:       ffmpeg.Probe,
		extractWAV:  ffmpeg.ExtractWAV,
		segment:     vad.Segment,
		extractSub:  ffmpeg.ExtractSubtitle,
		convertSub:  ffmpeg.ConvertToSRT,
	}
}

// RegisterSpeechEngine makes a speech engine selectable by jobs.
func (s *Service) RegisterSpeechEngine(name string, rec transcribe.Recognizer) {
	s.mu.Lock()
	s.speech[name] = rec
	s.mu.Unlock()
	log.Printf("[pipeline] registered speech engine: %s", name)
}

// RegisterTranslator makes a translation backend selectable by jobs.
func (s *Service) RegisterTranslator(name string, backend translate.Backend) {
	s.mu.Lock()
	s.translators[name] = backend
	s.mu.Unlock()
	log.Printf("[pipeline] registered translator: %s", name)
}

// SpeechEngines lists the registered speech engine names, sorted.
func (s *Service) SpeechEngines() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.speech))
	for name := range s.speech {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TranslateEngines lists the registered translator names, sorted.
func (s *Service) TranslateEngines() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.translators))
	for name := range s.translators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) speechEngine(name string) (transcribe.Recognizer, error) {
	if name == "" {
		name = s.cfg.DefaultSpeechEngine
	}
	s.mu.RLock()
	rec, ok := s.speech[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("speech engine %q not configured (have: %s)",
			name, strings.Join(s.SpeechEngines(), ", "))
	}
	return rec, nil
}

func (s *Service) translator(name string) (translate.Backend, error) {
	if name == "" {
		name = s.cfg.DefaultTranslateEngine
	}
	s.mu.RLock()
	backend, ok := s.translators[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("translator %q not configured (have: %s)",
			name, strings.Join(s.TranslateEngines(), ", "))
	}
	return backend, nil
}

func (s *Service) targetLang(lang string) string {
	if lang != "" {
		return lang
	}
	if s.cfg.DefaultTargetLang != "" {
		return s.cfg.DefaultTargetLang
	}
	return "English"
}

// mediaFile resolves a library-relative path, refusing escapes.
func (s *Service) mediaFile(rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid media path %q", rel)
	}
	return filepath.Join(s.cfg.MediaPath, clean), nil
}

// ProbeMedia probes a library-relative media file.
func (s *Service) ProbeMedia(ctx context.Context, rel string) (*ffmpeg.MediaInfo, error) {
	src, err := s.mediaFile(rel)
	if err != nil {
		return nil, err
	}
	return s.probe(ctx, src)
}

// outputPaths returns the subtitle-root-relative paths for the translated
// and bilingual tracks of a run. Tracks of one media file share a directory
// keyed by a digest of its library path, so renames of the title never
// orphan them.
func (s *Service) outputPaths(relMedia, title, targetLang string) (translated, bilingual string) {
	base := safeTitle(title)
	if base == "" {
		base = safeTitle(strings.TrimSuffix(filepath.Base(relMedia), filepath.Ext(relMedia)))
	}
	if base == "" {
		base = "subtitles"
	}
	tag := langTag(targetLang)
	dir := mediaHash(relMedia)
	return filepath.Join(dir, base+"."+tag+".srt"),
		filepath.Join(dir, base+"."+tag+".bilingual.srt")
}

func mediaHash(relPath string) string {
	sum := sha256.Sum256([]byte(relPath))
	return hex.EncodeToString(sum[:8])
}

// safeTitle strips characters that do not belong in a file name.
func safeTitle(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), ". ")
}

// langTag turns a human-readable language name into a file name tag:
// "Simplified Chinese" -> "simplified-chinese".
func langTag(lang string) string {
	tag := strings.ToLower(strings.TrimSpace(lang))
	tag = strings.ReplaceAll(tag, " ", "-")
	if tag == "" {
		tag = "translated"
	}
	return tag
}

// stageProgress maps a stage's done/total onto the run's [from, to] window.
func stageProgress(update func(float64), from, to float64) func(done, total int) {
	return func(done, total int) {
		if update == nil || total <= 0 {
			return
		}
		update(from + (to-from)*float64(done)/float64(total))
	}
}
