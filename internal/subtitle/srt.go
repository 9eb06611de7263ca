package subtitle

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// timestampRe matches SRT and WebVTT cue timing lines. Both comma and dot
// millisecond separators are accepted so one parser covers both formats.
var timestampRe = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})[.,](\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})[.,](\d{3})`)

// RenderSRT formats cues as an SRT document with contiguous 1-based numbering.
func RenderSRT(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("\n")
		b.WriteString(formatTime(c.Start))
		b.WriteString(" --> ")
		b.WriteString(formatTime(c.End))
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(c.Text, "\n"))
		b.WriteString("\n\n")
	}
	return b.String()
}

// formatTime renders a duration as an SRT timestamp (HH:MM:SS,mmm).
func formatTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	ms := (d - s*time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// Parse reads SRT or WebVTT content into cues. Index lines, the WEBVTT
// header, NOTE/STYLE blocks and cue settings are skipped; malformed blocks
// are dropped rather than reported.
func Parse(content string) []Cue {
	var cues []Cue
	var cur *Cue

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	inNote := false

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			if cur != nil && cur.Text != "" {
				cues = append(cues, *cur)
			}
			cur = nil
			inNote = false
			continue
		}
		if inNote {
			continue
		}
		if strings.HasPrefix(trimmed, "WEBVTT") {
			continue
		}
		if strings.HasPrefix(trimmed, "NOTE") || strings.HasPrefix(trimmed, "STYLE") || strings.HasPrefix(trimmed, "REGION") {
			inNote = true
			continue
		}

		if m := timestampRe.FindStringSubmatch(trimmed); m != nil {
			cur = &Cue{Start: parseStamp(m[1:5]), End: parseStamp(m[5:9])}
			continue
		}

		// Cue index numbers appear on their own line before the timing line.
		if cur == nil {
			if _, err := strconv.Atoi(trimmed); err == nil {
				continue
			}
			// Stray text outside a cue (identifiers, metadata).
			continue
		}

		text := stripMarkup(trimmed)
		if text == "" {
			continue
		}
		if cur.Text != "" {
			cur.Text += "\n"
		}
		cur.Text += text
	}
	if cur != nil && cur.Text != "" {
		cues = append(cues, *cur)
	}
	return cues
}

func parseStamp(parts []string) time.Duration {
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	s, _ := strconv.Atoi(parts[2])
	ms, _ := strconv.Atoi(parts[3])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(ms)*time.Millisecond
}

var markupRe = regexp.MustCompile(`<[^>]*>|\{\\[^}]*\}`)

// stripMarkup removes inline VTT/ASS styling tags from cue text.
func stripMarkup(s string) string {
	return strings.TrimSpace(markupRe.ReplaceAllString(s, ""))
}

// Merge combines two cue sequences into bilingual cues by position: the
// secondary text is stacked above the primary, and timing follows the
// primary track. Unpaired tail cues are kept as-is.
func Merge(primary, secondary []Cue) []Cue {
	n := len(primary)
	if len(secondary) > n {
		n = len(secondary)
	}
	merged := make([]Cue, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case i < len(primary) && i < len(secondary):
			merged = append(merged, Cue{
				Start: primary[i].Start,
				End:   primary[i].End,
				Text:  secondary[i].Text + "\n" + primary[i].Text,
			})
		case i < len(primary):
			merged = append(merged, primary[i])
		default:
			merged = append(merged, secondary[i])
		}
	}
	return merged
}

// WriteSRT renders cues and writes them atomically: the document lands in a
// temp file in the target directory and is renamed into place, so readers
// never observe a partially written subtitle.
func WriteSRT(path string, cues []Cue) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create subtitle dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp subtitle: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(RenderSRT(cues)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write subtitle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close subtitle: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename subtitle into place: %w", err)
	}
	return nil
}
