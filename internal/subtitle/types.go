package subtitle

import "time"

// Utterance is a single timed piece of recognized speech, ordered by Index.
// Times are absolute offsets from the start of the media file.
type Utterance struct {
	Index      int
	Start      time.Duration
	End        time.Duration
	Text       string
	Confidence float64
}

// Unit carries one utterance's translation. Passthrough marks units whose
// batch never produced a usable translation, so Translated holds the
// original text.
type Unit struct {
	Index       int
	Source      string
	Translated  string
	Passthrough bool
}

// Cue is one rendered subtitle entry. Text may span multiple lines;
// cue numbers are assigned at render time.
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}
