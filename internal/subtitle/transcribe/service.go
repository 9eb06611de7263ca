package transcribe

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sublate/backend/internal/retry"
	"github.com/sublate/backend/internal/subtitle"
	"github.com/sublate/backend/internal/vad"
)

const (
	defaultClipWorkers     = 5
	defaultWindowOverlap   = 10 * time.Second
	defaultMinWindow       = 5 * time.Second
	defaultFailureFraction = 0.5
)

// Config tunes the transcription stage.
type Config struct {
	// Workers bounds concurrent clip submissions (default 5).
	Workers int
	// MaxClipDuration overrides the engine's clip limit when positive.
	MaxClipDuration time.Duration
	// WindowOverlap is shared audio between adjacent windows of a split
	// span, so no utterance is lost on a boundary (default 10s).
	WindowOverlap time.Duration
	// MinWindow drops a split's trailing leftover shorter than this
	// (default 5s); the overlap already covers its content.
	MinWindow time.Duration
	// MaxFailureFraction aborts the run when more than this share of
	// windows fails (default 0.5).
	MaxFailureFraction float64
	// Policy schedules retries for each window.
	Policy retry.Policy
}

// CutFunc extracts [start, end) of a media file's audio as 16 kHz mono WAV
// bytes. It is injectable so tests can run without ffmpeg.
type CutFunc func(ctx context.Context, src string, start, end time.Duration) ([]byte, error)

// SpanFailure records a window that never produced a transcription.
type SpanFailure struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Err   string        `json:"error"`
}

// Result is the assembled output of a transcription run.
type Result struct {
	Utterances []subtitle.Utterance
	Windows    int
	Failed     []SpanFailure
}

// Service turns detected speech spans into ordered utterances: it windows
// spans to the engine's clip limit, transcribes windows concurrently with
// retries, then deduplicates overlap and filters whisper hallucinations.
type Service struct {
	cut CutFunc
	cfg Config
}

func NewService(cut CutFunc, cfg Config) *Service {
	return &Service{cut: cut, cfg: cfg}
}

// Transcribe runs the recognizer over all spans of src. Windows that fail
// past their retries are recorded, not fatal, unless their share exceeds
// MaxFailureFraction; a permanent backend error aborts immediately.
func (s *Service) Transcribe(ctx context.Context, rec Recognizer, src string, spans []vad.Span, opts Options, progress func(done, total int)) (*Result, error) {
	maxClip := s.cfg.MaxClipDuration
	if maxClip <= 0 {
		maxClip = rec.MaxClipDuration()
	}
	windows := splitWindows(spans, maxClip, s.overlap(), s.minWindow())
	if len(windows) == 0 {
		return &Result{}, nil
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = defaultClipWorkers
	}
	log.Printf("[transcribe] engine=%s spans=%d windows=%d workers=%d",
		rec.Name(), len(spans), len(windows), workers)

	type windowResult struct {
		fragments []Fragment
		err       error
	}
	results := make([]windowResult, len(windows))
	var completed atomic.Int32
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	// A permanent failure cancels the windows still in flight.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	for i, win := range windows {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, win vad.Span) {
			defer wg.Done()
			defer func() { <-sem }()

			fragments, err := s.transcribeWindow(runCtx, rec, src, win, opts)
			results[i] = windowResult{fragments: fragments, err: err}
			if err != nil && retry.IsPermanent(err) {
				cancelRun()
			}
			if progress != nil {
				progress(int(completed.Add(1)), len(windows))
			}
		}(i, win)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var failures []SpanFailure
	var abort error
	for i, r := range results {
		if r.err == nil {
			continue
		}
		if retry.IsPermanent(r.err) {
			abort = r.err
			break
		}
		if abort == nil && runCtx.Err() != nil && r.err == runCtx.Err() {
			// Cancelled by a permanent failure elsewhere; keep scanning
			// for the failure itself.
			abort = r.err
			continue
		}
		log.Printf("[transcribe] window %v..%v failed: %v", windows[i].Start, windows[i].End, r.err)
		failures = append(failures, SpanFailure{
			Start: windows[i].Start,
			End:   windows[i].End,
			Err:   r.err.Error(),
		})
	}
	if abort != nil && retry.IsPermanent(abort) {
		return nil, abort
	}

	maxFail := s.cfg.MaxFailureFraction
	if maxFail <= 0 {
		maxFail = defaultFailureFraction
	}
	if frac := float64(len(failures)) / float64(len(windows)); len(failures) > 0 && frac > maxFail {
		return nil, fmt.Errorf("transcription failed for %d of %d windows", len(failures), len(windows))
	}

	var all []Fragment
	for i, r := range results {
		if r.err != nil {
			continue
		}
		winDur := windows[i].Duration()
		for _, f := range r.fragments {
			if f.End > winDur {
				f.End = winDur
			}
			f.Start += windows[i].Start
			f.End += windows[i].Start
			if f.End <= f.Start {
				f.End = f.Start + 2*time.Second
			}
			f.Text = strings.TrimSpace(f.Text)
			all = append(all, f)
		}
	}

	filtered := filterHallucinations(dedupFragments(all))
	utterances := make([]subtitle.Utterance, len(filtered))
	for i, f := range filtered {
		utterances[i] = subtitle.Utterance{
			Index:      i,
			Start:      f.Start,
			End:        f.End,
			Text:       f.Text,
			Confidence: f.Confidence,
		}
	}

	log.Printf("[transcribe] done: %d utterances from %d windows (%d failed)",
		len(utterances), len(windows), len(failures))
	return &Result{Utterances: utterances, Windows: len(windows), Failed: failures}, nil
}

func (s *Service) transcribeWindow(ctx context.Context, rec Recognizer, src string, win vad.Span, opts Options) ([]Fragment, error) {
	var fragments []Fragment
	err := s.cfg.Policy.Do(ctx, func(callCtx context.Context) error {
		wav, err := s.cut(callCtx, src, win.Start, win.End)
		if err != nil {
			return fmt.Errorf("cut %v..%v: %w", win.Start, win.End, err)
		}
		frags, err := rec.Recognize(callCtx, wav, opts)
		if err != nil {
			return err
		}
		fragments = frags
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fragments, nil
}

func (s *Service) overlap() time.Duration {
	if s.cfg.WindowOverlap > 0 {
		return s.cfg.WindowOverlap
	}
	return defaultWindowOverlap
}

func (s *Service) minWindow() time.Duration {
	if s.cfg.MinWindow > 0 {
		return s.cfg.MinWindow
	}
	return defaultMinWindow
}

// splitWindows subdivides spans longer than max into overlapping windows.
// The stride keeps at least half a window of fresh audio per step; a
// trailing leftover shorter than minWindow is dropped because the previous
// window's overlap already covers it.
func splitWindows(spans []vad.Span, max, overlap, minWindow time.Duration) []vad.Span {
	var windows []vad.Span
	for _, s := range spans {
		if s.End <= s.Start {
			continue
		}
		if max <= 0 || s.Duration() <= max {
			windows = append(windows, s)
			continue
		}
		stride := max - overlap
		if stride < max/2 {
			stride = max / 2
		}
		for cur := s.Start; cur < s.End; cur += stride {
			end := cur + max
			if end > s.End {
				end = s.End
			}
			if end-cur >= minWindow || cur == s.Start {
				windows = append(windows, vad.Span{Start: cur, End: end})
			}
			if end == s.End {
				break
			}
		}
	}
	return windows
}

// dedupFragments removes overlap artifacts: fragments starting within a
// second of an already-kept one are folded into it, keeping the longer text.
func dedupFragments(fragments []Fragment) []Fragment {
	if len(fragments) == 0 {
		return nil
	}
	sorted := make([]Fragment, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := sorted[:1]
	for _, f := range sorted[1:] {
		last := &out[len(out)-1]
		if f.Start-last.Start < time.Second {
			if len(f.Text) > len(last.Text) {
				*last = f
			}
			continue
		}
		out = append(out, f)
	}
	return out
}

// filterHallucinations drops whisper's failure modes on silence: empty
// text, fragments the model itself marks as probable non-speech, a single
// phrase repeated across a large share of the track, and immediate repeats.
func filterHallucinations(fragments []Fragment) []Fragment {
	counts := make(map[string]int, len(fragments))
	for _, f := range fragments {
		if f.Text != "" {
			counts[f.Text]++
		}
	}
	total := len(fragments)

	var out []Fragment
	prev := ""
	for _, f := range fragments {
		if f.Text == "" {
			continue
		}
		if f.NoSpeechProb > 0.9 {
			continue
		}
		if c := counts[f.Text]; c > 5 && float64(c) > 0.15*float64(total) {
			continue
		}
		if f.Text == prev {
			continue
		}
		out = append(out, f)
		prev = f.Text
	}
	return out
}
