package subtitle

import (
	"strings"
	"testing"
	"time"
)

func testAssembleConfig() AssembleConfig {
	return AssembleConfig{
		MinCueDuration: 800 * time.Millisecond,
		MinGap:         10 * time.Millisecond,
		MaxLineLength:  42,
	}
}

func unitsFor(utts []Utterance, translations ...string) []Unit {
	units := make([]Unit, len(utts))
	for i, u := range utts {
		units[i] = Unit{Index: u.Index, Source: u.Text, Translated: translations[i]}
	}
	return units
}

func TestAssembleExtendsShortCues(t *testing.T) {
	utts := []Utterance{
		{Index: 0, Start: time.Second, End: time.Second + 200*time.Millisecond, Text: "hi"},
	}
	tracks := Assemble(utts, unitsFor(utts, "你好"), testAssembleConfig())
	if len(tracks.Translated) != 1 {
		t.Fatalf("expected 1 cue, got %d", len(tracks.Translated))
	}
	c := tracks.Translated[0]
	if c.End-c.Start != 800*time.Millisecond {
		t.Errorf("cue span = %v, want extended to 800ms", c.End-c.Start)
	}
}

func TestAssembleClipsExtensionAtNextUtterance(t *testing.T) {
	utts := []Utterance{
		{Index: 0, Start: time.Second, End: time.Second + 100*time.Millisecond, Text: "a"},
		{Index: 1, Start: time.Second + 300*time.Millisecond, End: 3 * time.Second, Text: "b"},
	}
	tracks := Assemble(utts, unitsFor(utts, "甲", "乙"), testAssembleConfig())
	first, second := tracks.Translated[0], tracks.Translated[1]
	if first.End > second.Start {
		t.Errorf("cue 0 end %v overlaps cue 1 start %v", first.End, second.Start)
	}
	if want := time.Second + 290*time.Millisecond; first.End != want {
		t.Errorf("cue 0 end = %v, want clipped to %v", first.End, want)
	}
}

func TestAssembleMonotoneNonOverlapping(t *testing.T) {
	// Dense utterances with overlapping natural spans still come out
	// strictly ordered with positive durations.
	utts := []Utterance{
		{Index: 0, Start: 0, End: 2 * time.Second, Text: "one"},
		{Index: 1, Start: 500 * time.Millisecond, End: 700 * time.Millisecond, Text: "two"},
		{Index: 2, Start: 600 * time.Millisecond, End: 4 * time.Second, Text: "three"},
		{Index: 3, Start: 5 * time.Second, End: 5*time.Second + 50*time.Millisecond, Text: "four"},
	}
	tracks := Assemble(utts, unitsFor(utts, "一", "二", "三", "四"), testAssembleConfig())
	if len(tracks.Translated) != len(utts) {
		t.Fatalf("expected %d cues, got %d", len(utts), len(tracks.Translated))
	}
	for i, c := range tracks.Translated {
		if c.End <= c.Start {
			t.Errorf("cue %d has non-positive span %v..%v", i, c.Start, c.End)
		}
		if i > 0 && c.Start < tracks.Translated[i-1].End {
			t.Errorf("cue %d start %v precedes cue %d end %v", i, c.Start, i-1, tracks.Translated[i-1].End)
		}
	}
}

func TestAssembleBilingualStacksTranslatedFirst(t *testing.T) {
	utts := []Utterance{
		{Index: 0, Start: time.Second, End: 3 * time.Second, Text: "Hello world"},
	}
	tracks := Assemble(utts, unitsFor(utts, "你好世界"), testAssembleConfig())
	bi := tracks.Bilingual[0]
	lines := strings.Split(bi.Text, "\n")
	if len(lines) != 2 {
		t.Fatalf("bilingual cue lines = %d, want 2: %q", len(lines), bi.Text)
	}
	if lines[0] != "你好世界" || lines[1] != "Hello world" {
		t.Errorf("bilingual order wrong: %q", bi.Text)
	}
	if bi.Start != tracks.Translated[0].Start || bi.End != tracks.Translated[0].End {
		t.Errorf("bilingual timing differs from translated track")
	}
}

func TestAssembleDropsEmptyUtterancesFromBothTracks(t *testing.T) {
	utts := []Utterance{
		{Index: 0, Start: 0, End: time.Second, Text: "first"},
		{Index: 1, Start: 2 * time.Second, End: 3 * time.Second, Text: "   "},
		{Index: 2, Start: 4 * time.Second, End: 5 * time.Second, Text: "third"},
	}
	tracks := Assemble(utts, unitsFor(utts, "一", "", "三"), testAssembleConfig())
	if len(tracks.Translated) != 2 || len(tracks.Bilingual) != 2 {
		t.Fatalf("track lengths = %d/%d, want 2 non-empty cues in both",
			len(tracks.Translated), len(tracks.Bilingual))
	}
	for i := range tracks.Translated {
		if tracks.Translated[i].Start != tracks.Bilingual[i].Start ||
			tracks.Translated[i].End != tracks.Bilingual[i].End {
			t.Errorf("cue %d timing diverges between tracks", i)
		}
	}
	if tracks.Translated[1].Text != "三" {
		t.Errorf("cue 1 = %q, want the third utterance", tracks.Translated[1].Text)
	}
}

func TestAssembleEmptyTranslationFallsBackToSource(t *testing.T) {
	utts := []Utterance{
		{Index: 0, Start: time.Second, End: 2 * time.Second, Text: "original line"},
	}
	tracks := Assemble(utts, unitsFor(utts, "  "), testAssembleConfig())
	if got := tracks.Translated[0].Text; got != "original line" {
		t.Errorf("translated cue = %q, want source fallback", got)
	}
}

func TestWrapText(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		limit int
		want  []string
	}{
		{"short", "hello world", 42, []string{"hello world"}},
		{"spaced", "the quick brown fox jumps over the lazy dog", 15,
			[]string{"the quick brown", "fox jumps over", "the lazy dog"}},
		{"cjk", "这是一段没有空格的中文字幕文本", 6,
			[]string{"这是一段没有", "空格的中文字", "幕文本"}},
		{"disabled", strings.Repeat("x", 100), 0, []string{strings.Repeat("x", 100)}},
		{"empty", "   ", 10, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := wrapText(c.in, c.limit)
			if len(got) != len(c.want) {
				t.Fatalf("wrapText(%q, %d) = %q, want %q", c.in, c.limit, got, c.want)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], c.want[i])
				}
			}
		})
	}
}
