package job

import (
	"context"
	"encoding/json"
	"time"
)

// JobType represents the kind of job
type JobType string

const (
	JobGenerate  JobType = "generate"  // transcribe + translate from audio
	JobTranslate JobType = "translate" // translate an existing subtitle track
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Job represents a queued subtitle run
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	MediaPath   string          `json:"media_path"`
	Params      json.RawMessage `json:"params"`
	Progress    float64         `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// GenerateParams are parameters for a full generation run: silence
// detection, transcription, translation, cue assembly.
type GenerateParams struct {
	Title           string `json:"title,omitempty"`            // output base name; media filename when empty
	SpeechEngine    string `json:"speech_engine,omitempty"`    // "whispercpp", "openai", "google"
	TranslateEngine string `json:"translate_engine,omitempty"` // "gemini", "openai", "deepl"
	SourceLang      string `json:"source_lang,omitempty"`      // ISO code, "" or "auto" to detect
	TargetLang      string `json:"target_lang,omitempty"`      // human-readable, e.g. "Simplified Chinese"
	Model           string `json:"model,omitempty"`            // translation model override
	SpeechModel     string `json:"speech_model,omitempty"`     // speech engine model override
	Preset          string `json:"preset,omitempty"`           // "anime", "movie", "documentary"
	CustomPrompt    string `json:"custom_prompt,omitempty"`    // extra translation instructions
	WhisperPrompt   string `json:"whisper_prompt,omitempty"`   // vocabulary hint for whisper engines
	MaxClipSec      int    `json:"max_clip_sec,omitempty"`     // override engine clip limit
	ContextLines    int    `json:"context_lines,omitempty"`    // rolling translation context (sequential)
	DisableVAD      bool   `json:"disable_vad,omitempty"`      // fixed windows over the whole track
}

// TranslateParams are parameters for a translate-only run on an
// existing subtitle track.
type TranslateParams struct {
	SubtitleID      string `json:"subtitle_id"` // "generated:...", "external:...", "embedded:N"
	TranslateEngine string `json:"translate_engine,omitempty"`
	SourceLang      string `json:"source_lang,omitempty"`
	TargetLang      string `json:"target_lang,omitempty"`
	Model           string `json:"model,omitempty"`
	Preset          string `json:"preset,omitempty"`
	CustomPrompt    string `json:"custom_prompt,omitempty"`
	ContextLines    int    `json:"context_lines,omitempty"`
	Title           string `json:"title,omitempty"`
}

// SpanError describes a stretch of audio that produced no transcription.
type SpanError struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Error string `json:"error"`
}

// BatchError describes a translation batch that fell back to source text.
type BatchError struct {
	Batch int    `json:"batch"`
	Units int    `json:"units"`
	Error string `json:"error"`
}

// GenerateReport is the persisted result of a generation run.
type GenerateReport struct {
	TranslatedPath   string       `json:"translated_path"`
	BilingualPath    string       `json:"bilingual_path"`
	Spans            int          `json:"spans"`
	Windows          int          `json:"windows"`
	FailedSpans      []SpanError  `json:"failed_spans,omitempty"`
	Utterances       int          `json:"utterances"`
	Batches          int          `json:"batches"`
	FailedBatches    []BatchError `json:"failed_batches,omitempty"`
	PassthroughUnits int          `json:"passthrough_units,omitempty"`
	Cues             int          `json:"cues"`
	SourceLanguage   string       `json:"source_language,omitempty"`
	ElapsedSeconds   float64      `json:"elapsed_seconds"`
}

// TranslateReport is the persisted result of a translate-only run.
type TranslateReport struct {
	TranslatedPath   string       `json:"translated_path"`
	BilingualPath    string       `json:"bilingual_path"`
	Cues             int          `json:"cues"`
	Batches          int          `json:"batches"`
	FailedBatches    []BatchError `json:"failed_batches,omitempty"`
	PassthroughUnits int          `json:"passthrough_units,omitempty"`
	ElapsedSeconds   float64      `json:"elapsed_seconds"`
}

// JobHandler processes a job. Handlers may set job.Result before returning;
// a nil error persists it with the completed status.
type JobHandler func(ctx context.Context, job *Job, updateProgress func(float64)) error
