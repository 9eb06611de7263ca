package subtitle

import (
	"strings"
	"time"
	"unicode/utf8"
)

// AssembleConfig tunes cue timing and layout.
type AssembleConfig struct {
	// MinCueDuration extends very short cues so they stay readable.
	MinCueDuration time.Duration
	// MinGap is kept between a cue extended up to its successor.
	MinGap time.Duration
	// MaxLineLength wraps cue text at this many runes per line. Zero
	// disables wrapping.
	MaxLineLength int
}

// DefaultAssembleConfig returns the timing used for generated subtitles.
func DefaultAssembleConfig() AssembleConfig {
	return AssembleConfig{
		MinCueDuration: 800 * time.Millisecond,
		MinGap:         10 * time.Millisecond,
		MaxLineLength:  42,
	}
}

// Tracks holds the two rendered outputs of a run.
type Tracks struct {
	// Translated carries only the target-language text.
	Translated []Cue
	// Bilingual stacks the translated text above the original per cue.
	Bilingual []Cue
}

// Assemble pairs utterances with their translation units by position and
// produces both output tracks. Cue starts never precede the previous cue's
// end, short cues are extended to MinCueDuration without overlapping the
// following utterance, and every emitted cue has a strictly positive span.
func Assemble(utterances []Utterance, units []Unit, cfg AssembleConfig) Tracks {
	var out Tracks
	var floor time.Duration

	for i, u := range utterances {
		start := u.Start
		if start < floor {
			start = floor
		}
		end := u.End
		if min := start + cfg.MinCueDuration; end < min {
			end = min
		}
		if i+1 < len(utterances) {
			if limit := utterances[i+1].Start - cfg.MinGap; limit > start && end > limit {
				end = limit
			}
		}
		if end <= start {
			end = start + 10*time.Millisecond
		}
		floor = end

		source := strings.TrimSpace(u.Text)
		translated := source
		if i < len(units) {
			if t := strings.TrimSpace(units[i].Translated); t != "" {
				translated = t
			}
		}
		if translated == "" && source == "" {
			continue
		}

		transLines := wrapText(translated, cfg.MaxLineLength)
		out.Translated = append(out.Translated, Cue{
			Start: start,
			End:   end,
			Text:  strings.Join(transLines, "\n"),
		})

		biLines := append(transLines, wrapText(source, cfg.MaxLineLength)...)
		out.Bilingual = append(out.Bilingual, Cue{
			Start: start,
			End:   end,
			Text:  strings.Join(biLines, "\n"),
		})
	}
	return out
}

// wrapText greedily wraps s at limit runes per line, splitting on spaces.
// Words longer than the limit (and unspaced CJK runs) are split hard at
// rune boundaries.
func wrapText(s string, limit int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}

	var lines []string
	cur := ""
	curLen := 0
	for _, word := range strings.Fields(s) {
		for utf8.RuneCountInString(word) > limit {
			if curLen > 0 {
				lines = append(lines, cur)
				cur, curLen = "", 0
			}
			r := []rune(word)
			lines = append(lines, string(r[:limit]))
			word = string(r[limit:])
		}
		wlen := utf8.RuneCountInString(word)
		if wlen == 0 {
			continue
		}
		switch {
		case curLen == 0:
			cur, curLen = word, wlen
		case curLen+1+wlen <= limit:
			cur += " " + word
			curLen += 1 + wlen
		default:
			lines = append(lines, cur)
			cur, curLen = word, wlen
		}
	}
	if curLen > 0 {
		lines = append(lines, cur)
	}
	return lines
}
