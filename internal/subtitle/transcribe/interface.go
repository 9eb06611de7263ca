package transcribe

import (
	"context"
	"time"
)

// Options carries per-run recognition parameters.
type Options struct {
	Language string `json:"language"` // ISO code, "" or "auto" for detection
	Model    string `json:"model"`    // engine-specific model override
	Prompt   string `json:"prompt"`   // vocabulary/style hint for whisper engines
}

// Fragment is one timed piece of recognized text, relative to the start of
// the submitted clip.
type Fragment struct {
	Start        time.Duration
	End          time.Duration
	Text         string
	Confidence   float64
	NoSpeechProb float64
}

// Recognizer is the common interface for all speech engines. Implementations
// receive a 16 kHz mono PCM WAV clip and return its fragments in clip time,
// classifying failures with the retry package.
type Recognizer interface {
	Recognize(ctx context.Context, wav []byte, opts Options) ([]Fragment, error)
	// Name returns the engine name
	Name() string
	// MaxClipDuration is the longest clip the engine accepts; longer spans
	// are windowed before submission. Zero means unbounded.
	MaxClipDuration() time.Duration
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
