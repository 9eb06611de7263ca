// Package vad locates speech in an audio track by frame energy, so the
// transcription stage only sees spans that actually carry voice.
package vad

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Config tunes speech detection. All durations are in media time.
type Config struct {
	// SilenceThresholdDB classifies frames quieter than this (in dBFS)
	// as silence.
	SilenceThresholdDB float64
	// FrameDuration is the analysis window size.
	FrameDuration time.Duration
	// MinSpeechDuration drops intervals shorter than this before merging.
	MinSpeechDuration time.Duration
	// MinSilenceGap bridges silences shorter than this between intervals.
	MinSilenceGap time.Duration
	// Padding widens every final span on both sides, clamped to the
	// track and to neighboring spans.
	Padding time.Duration
}

// DefaultConfig returns the detection parameters used for generated runs.
func DefaultConfig() Config {
	return Config{
		SilenceThresholdDB: -40,
		FrameDuration:      30 * time.Millisecond,
		MinSpeechDuration:  200 * time.Millisecond,
		MinSilenceGap:      time.Second,
		Padding:            200 * time.Millisecond,
	}
}

// Span is one detected speech interval, in absolute media time.
type Span struct {
	Start time.Duration
	End   time.Duration
}

// Duration returns the span length.
func (s Span) Duration() time.Duration { return s.End - s.Start }

// DecodeError reports an unreadable or non-PCM input file. It is fatal for
// a run: no spans can be produced from a track that cannot be decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.Path, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Segment decodes a PCM WAV file and returns its padded speech spans in
// order. An audible-but-silent track yields an empty slice and no error.
func Segment(path string, cfg Config) ([]Span, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if buf == nil || buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, &DecodeError{Path: path, Err: errors.New("no pcm data")}
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	return segment(monoSamples(buf), buf.Format.SampleRate, bitDepth, cfg), nil
}

// monoSamples collapses interleaved channels by averaging.
func monoSamples(buf *audio.IntBuffer) []int {
	ch := buf.Format.NumChannels
	if ch <= 1 {
		return buf.Data
	}
	n := len(buf.Data) / ch
	mono := make([]int, n)
	for i := 0; i < n; i++ {
		sum := 0
		for c := 0; c < ch; c++ {
			sum += buf.Data[i*ch+c]
		}
		mono[i] = sum / ch
	}
	return mono
}

func segment(samples []int, rate, bitDepth int, cfg Config) []Span {
	if len(samples) == 0 || rate <= 0 {
		return nil
	}
	frameLen := int(time.Duration(rate) * cfg.FrameDuration / time.Second)
	if frameLen <= 0 {
		frameLen = 1
	}
	at := func(i int) time.Duration {
		return time.Duration(i) * time.Second / time.Duration(rate)
	}
	total := at(len(samples))
	fullScale := float64(uint64(1) << uint(bitDepth-1))

	// Fuse consecutive speech frames into raw intervals.
	var raw []Span
	open := false
	for off := 0; off < len(samples); off += frameLen {
		end := off + frameLen
		if end > len(samples) {
			end = len(samples)
		}
		speech := frameDB(samples[off:end], fullScale) >= cfg.SilenceThresholdDB
		switch {
		case speech && !open:
			raw = append(raw, Span{Start: at(off)})
			open = true
		case !speech && open:
			raw[len(raw)-1].End = at(off)
			open = false
		}
	}
	if open {
		raw[len(raw)-1].End = total
	}

	// Drop blips shorter than the minimum speech duration.
	kept := raw[:0]
	for _, s := range raw {
		if s.Duration() >= cfg.MinSpeechDuration {
			kept = append(kept, s)
		}
	}

	// Bridge short silences between the survivors.
	var merged []Span
	for _, s := range kept {
		if n := len(merged); n > 0 && s.Start-merged[n-1].End < cfg.MinSilenceGap {
			if s.End > merged[n-1].End {
				merged[n-1].End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}

	// Pad, clamped to the track and to the previous span.
	out := make([]Span, 0, len(merged))
	for _, s := range merged {
		s.Start -= cfg.Padding
		s.End += cfg.Padding
		if s.Start < 0 {
			s.Start = 0
		}
		if s.End > total {
			s.End = total
		}
		if n := len(out); n > 0 && s.Start < out[n-1].End {
			s.Start = out[n-1].End
		}
		if s.End <= s.Start {
			continue
		}
		out = append(out, s)
	}
	return out
}

// frameDB measures a frame's RMS level in dBFS.
func frameDB(frame []int, fullScale float64) float64 {
	if len(frame) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum/float64(len(frame))) / fullScale
	if rms <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}
