package translate

import (
	"context"
	"fmt"
)

// Options configures a translation run.
type Options struct {
	SourceLang   string `json:"source_lang"`   // ISO code or "" for auto-detect
	TargetLang   string `json:"target_lang"`   // human-readable, e.g. "Simplified Chinese"
	Model        string `json:"model"`         // backend-specific model name
	Preset       string `json:"preset"`        // "general", "anime", "movie", "documentary", "custom"
	CustomPrompt string `json:"custom_prompt"` // system prompt for the "custom" preset
}

// Request is one batch of subtitle lines sent to a backend. Lines are
// numbered 1..len(Lines) in the prompt and the backend must return exactly
// one translated line per input line, in the same order.
type Request struct {
	Lines []string
	// Context holds already-translated lines preceding this batch, oldest
	// first. Backends include them for continuity but never translate them.
	Context []string
	// Strict is set when a previous attempt came back misaligned; prompt
	// builders tighten the output-format wording.
	Strict bool
	Options
}

// Backend is the common interface for all translation engines. Failures are
// classified with the retry package; responses that cannot be matched
// one-to-one to the input lines are reported as *AlignmentError.
type Backend interface {
	Translate(ctx context.Context, req Request) ([]string, error)
	// Name returns the engine name
	Name() string
}

// AlignmentError reports a response whose lines could not be paired with the
// request lines. It is retryable: models usually align on a stricter
// re-prompt.
type AlignmentError struct {
	Want   int
	Got    int
	Detail string
}

func (e *AlignmentError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("misaligned translation (want %d lines, got %d): %s", e.Want, e.Got, e.Detail)
	}
	return fmt.Sprintf("misaligned translation (want %d lines, got %d)", e.Want, e.Got)
}

// Temporary marks the error as retryable.
func (e *AlignmentError) Temporary() bool { return true }
