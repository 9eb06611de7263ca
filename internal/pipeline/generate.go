package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sublate/backend/internal/job"
	"github.com/sublate/backend/internal/subtitle"
	"github.com/sublate/backend/internal/subtitle/transcribe"
	"github.com/sublate/backend/internal/subtitle/translate"
	"github.com/sublate/backend/internal/vad"
)

// HandleGenerate runs the full pipeline for one media file: decode audio,
// detect speech, transcribe, translate, assemble and write both tracks.
func (s *Service) HandleGenerate(ctx context.Context, j *job.Job, updateProgress func(float64)) error {
	started := time.Now()

	var params job.GenerateParams
	if len(j.Params) > 0 {
		if err := json.Unmarshal(j.Params, &params); err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
	}

	rec, err := s.speechEngine(params.SpeechEngine)
	if err != nil {
		return err
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
	info, err := s.probe(ctx, src)
	if err != nil {
		return fmt.Errorf("probe media: %w", err)
	}
	if !info.HasAudio() {
		return fmt.Errorf("%s has no audio stream", filepath.Base(src))
	}

	// Decode once to 16 kHz mono; speech spans and clips both come from
	// this file, so the original is never decoded twice.
	tmpDir, err := os.MkdirTemp("", "sublate-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "audio.wav")
	if err := s.extractWAV(ctx, src, wavPath); err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	updateProgress(0.05)

	var spans []vad.Span
	if params.DisableVAD {
		if total := time.Duration(info.DurationSeconds() * float64(time.Second)); total > 0 {
			spans = []vad.Span{{Start: 0, End: total}}
		}
	} else {
		spans, err = s.segment(wavPath, s.cfg.VAD)
		if err != nil {
			return fmt.Errorf("detect speech: %w", err)
		}
	}
	updateProgress(0.10)

	relTranslated, relBilingual := s.outputPaths(j.MediaPath, params.Title, targetLang)
	absTranslated := filepath.Join(s.cfg.SubtitlePath, relTranslated)
	absBilingual := filepath.Join(s.cfg.SubtitlePath, relBilingual)

	report := &job.GenerateReport{
		TranslatedPath: relTranslated,
		BilingualPath:  relBilingual,
		Spans:          len(spans),
		SourceLanguage: sourceLangLabel(params.SourceLang),
	}

	if len(spans) == 0 {
		// Nothing but silence. Empty tracks still get written so the run
		// shows up next to the media file.
		log.Printf("[pipeline] %s: no speech detected", j.MediaPath)
		if err := subtitle.WriteSRT(absTranslated, nil); err != nil {
			return fmt.Errorf("write translated track: %w", err)
		}
		if err := subtitle.WriteSRT(absBilingual, nil); err != nil {
			return fmt.Errorf("write bilingual track: %w", err)
		}
		report.ElapsedSeconds = time.Since(started).Seconds()
		return s.finish(j, report)
	}

	tcfg := s.cfg.Transcribe
	if params.MaxClipSec > 0 {
		tcfg.MaxClipDuration = time.Duration(params.MaxClipSec) * time.Second
	}
	transcriber := transcribe.NewService(s.cut, tcfg)

	res, err := transcriber.Transcribe(ctx, rec, wavPath, spans, transcribe.Options{
		Language: params.SourceLang,
		Model:    params.SpeechModel,
		Prompt:   params.WhisperPrompt,
	}, stageProgress(updateProgress, 0.10, 0.60))
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	report.Windows = res.Windows
	report.Utterances = len(res.Utterances)
	for _, f := range res.Failed {
		report.FailedSpans = append(report.FailedSpans, job.SpanError{
			Start: f.Start.Round(time.Millisecond).String(),
			End:   f.End.Round(time.Millisecond).String(),
			Error: f.Err,
		})
	}

	lines := make([]string, len(res.Utterances))
	for i, u := range res.Utterances {
		lines[i] = u.Text
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
	}, stageProgress(updateProgress, 0.60, 0.90))
	if err != nil {
		return fmt.Errorf("translate: %w", err)
	}
	report.Batches = batcher.Batches(len(lines))
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

	tracks := subtitle.Assemble(res.Utterances, units, s.cfg.Assemble)
	if err := subtitle.WriteSRT(absTranslated, tracks.Translated); err != nil {
		return fmt.Errorf("write translated track: %w", err)
	}
	if err := subtitle.WriteSRT(absBilingual, tracks.Bilingual); err != nil {
		return fmt.Errorf("write bilingual track: %w", err)
	}
	updateProgress(0.95)

	report.Cues = len(tracks.Translated)
	report.ElapsedSeconds = time.Since(started).Seconds()
	log.Printf("[pipeline] %s: %d spans -> %d utterances -> %d cues in %.1fs",
		j.MediaPath, len(spans), len(res.Utterances), report.Cues, report.ElapsedSeconds)
	return s.finish(j, report)
}

// finish attaches the report to the job for the queue to persist.
func (s *Service) finish(j *job.Job, report interface{}) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	j.Result = data
	return nil
}

func sourceLangLabel(lang string) string {
	if lang == "" {
		return "auto"
	}
	return lang
}
