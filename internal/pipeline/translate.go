package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sublate/backend/internal/job"
	"github.com/sublate/backend/internal/subtitle"
	"github.com/sublate/backend/internal/subtitle/translate"
)

// HandleTranslate translates an existing subtitle track, keeping its
// timing: embedded streams, external files next to the media, or
// previously generated tracks.
func (s *Service) HandleTranslate(ctx context.Context, j *job.Job, updateProgress func(float64)) error {
	started := time.Now()

	var params job.TranslateParams
	if len(j.Params) > 0 {
		if err := json.Unmarshal(j.Params, &params); err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
	}
	if params.SubtitleID == "" {
		return errors.New("subtitle_id is required")
	}

	backend, err := s.translator(params.TranslateEngine)
	if err != nil {
		return err
	}
	targetLang := s.targetLang(params.TargetLang)

	src, err := s.mediaFile(j.MediaPath)
	if err != nil {
		return err
	}
	content, err := s.loadSubtitle(ctx, src, params.SubtitleID)
	if err != nil {
		return err
	}

	cues := subtitle.Parse(string(content))
	if len(cues) == 0 {
		return fmt.Errorf("no cues in %s", params.SubtitleID)
	}

	utterances := make([]subtitle.Utterance, len(cues))
	lines := make([]string, len(cues))
	for i, c := range cues {
		utterances[i] = subtitle.Utterance{Index: i, Start: c.Start, End: c.End, Text: c.Text}
		lines[i] = c.Text
	}

	batcher := s.cfg.Translate
	if params.ContextLines > 0 {
		batcher.ContextLines = params.ContextLines
	}
	units, failures, err := batcher.Translate(ctx, backend, lines, translate.Options{
		SourceLang:   params.SourceLang,
		TargetLang:   targetLang,
		Model:        params.Model,
		Preset:       params.Preset,
		CustomPrompt: params.CustomPrompt,
	}, stageProgress(updateProgress, 0, 0.90))
	if err != nil {
		return fmt.Errorf("translate: %w", err)
	}

	tracks := subtitle.Assemble(utterances, units, s.cfg.Assemble)

	relTranslated, relBilingual := s.outputPaths(j.MediaPath, params.Title, targetLang)
	absTranslated := filepath.Join(s.cfg.SubtitlePath, relTranslated)
	absBilingual := filepath.Join(s.cfg.SubtitlePath, relBilingual)
	if err := subtitle.WriteSRT(absTranslated, tracks.Translated); err != nil {
		return fmt.Errorf("write translated track: %w", err)
	}
	if err := subtitle.WriteSRT(absBilingual, tracks.Bilingual); err != nil {
		return fmt.Errorf("write bilingual track: %w", err)
	}
	updateProgress(0.95)

	report := &job.TranslateReport{
		TranslatedPath: relTranslated,
		BilingualPath:  relBilingual,
		Cues:           len(tracks.Translated),
		Batches:        batcher.Batches(len(lines)),
		ElapsedSeconds: time.Since(started).Seconds(),
	}
	for _, f := range failures {
		report.FailedBatches = append(report.FailedBatches, job.BatchError{
			Batch: f.Batch,
			Units: f.Units,
			Error: f.Err,
		})
	}
	for _, u := range units {
		if u.Passthrough {
			report.PassthroughUnits++
		}
	}

	log.Printf("[pipeline] %s: translated %s -> %d cues in %.1fs",
		j.MediaPath, params.SubtitleID, report.Cues, report.ElapsedSeconds)
	return s.finish(j, report)
}

// loadSubtitle resolves a subtitle id against its media file and returns
// the track's raw content.
func (s *Service) loadSubtitle(ctx context.Context, mediaAbs, id string) ([]byte, error) {
	switch {
	case strings.HasPrefix(id, "embedded:"):
		idx, err := strconv.Atoi(strings.TrimPrefix(id, "embedded:"))
		if err != nil {
			return nil, fmt.Errorf("invalid subtitle id %q", id)
		}
		return s.extractSub(ctx, mediaAbs, idx)

	case strings.HasPrefix(id, "external:"):
		// Same directory as the media file only.
		name := filepath.Base(strings.TrimPrefix(id, "external:"))
		path := filepath.Join(filepath.Dir(mediaAbs), name)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".ass", ".ssa":
			return s.convertSub(ctx, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read subtitle: %w", err)
		}
		return data, nil

	case strings.HasPrefix(id, "generated:"):
		rel := filepath.Clean(strings.TrimPrefix(id, "generated:"))
		if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("invalid subtitle id %q", id)
		}
		data, err := os.ReadFile(filepath.Join(s.cfg.SubtitlePath, rel))
		if err != nil {
			return nil, fmt.Errorf("read subtitle: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("invalid subtitle id %q", id)
}
