package translate

import (
	"errors"
	"strings"
	"testing"
)

func TestUserPromptNumbersLines(t *testing.T) {
	req := Request{
		Lines:   []string{"first line", "second\nwith break"},
		Options: Options{TargetLang: "Simplified Chinese"},
	}
	prompt := UserPrompt(req)
	if !strings.Contains(prompt, "[1] first line\n") {
		t.Errorf("prompt missing numbered first line:\n%s", prompt)
	}
	if !strings.Contains(prompt, "[2] second with break\n") {
		t.Errorf("prompt should flatten line breaks:\n%s", prompt)
	}
}

func TestUserPromptIncludesContext(t *testing.T) {
	req := Request{
		Lines:   []string{"new line"},
		Context: []string{"previous one", "previous two"},
	}
	prompt := UserPrompt(req)
	if !strings.Contains(prompt, "previous one\nprevious two\n") {
		t.Errorf("context lines missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Do not translate or repeat") {
		t.Errorf("context guard sentence missing:\n%s", prompt)
	}
}

func TestUserPromptStrict(t *testing.T) {
	req := Request{Lines: []string{"a", "b", "c"}, Strict: true}
	prompt := UserPrompt(req)
	if !strings.Contains(prompt, "exactly 3 lines") || !strings.Contains(prompt, "[1] through [3]") {
		t.Errorf("strict wording missing:\n%s", prompt)
	}
	if UserPrompt(Request{Lines: []string{"a"}}) == prompt {
		t.Error("strict prompt should differ from the normal one")
	}
}

func TestParseNumbered(t *testing.T) {
	got, err := ParseNumbered("[1] 你好\n[2] 世界\n[3] 再见\n", 3)
	if err != nil {
		t.Fatalf("ParseNumbered: %v", err)
	}
	want := []string{"你好", "世界", "再见"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseNumberedSkipsPreambleAndJoinsContinuations(t *testing.T) {
	content := "Here are the translations you asked for:\n\n" +
		"[1] a long translation\nthat wrapped onto a second line\n" +
		"[2] short one\n"
	got, err := ParseNumbered(content, 2)
	if err != nil {
		t.Fatalf("ParseNumbered: %v", err)
	}
	if got[0] != "a long translation that wrapped onto a second line" {
		t.Errorf("continuation not joined: %q", got[0])
	}
	if got[1] != "short one" {
		t.Errorf("line 2 = %q", got[1])
	}
}

func TestParseNumberedKeepsEmptyEntries(t *testing.T) {
	got, err := ParseNumbered("[1] one\n[2]\n[3] three", 3)
	if err != nil {
		t.Fatalf("ParseNumbered: %v", err)
	}
	if got[1] != "" {
		t.Errorf("line 2 = %q, want empty", got[1])
	}
}

func TestParseNumberedAlignmentErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		n       int
	}{
		{"too few", "[1] a\n[2] b", 3},
		{"too many", "[1] a\n[2] b\n[3] c\n[4] d", 3},
		{"out of order", "[1] a\n[3] c\n[2] b", 3},
		{"unnumbered only", "first\nsecond\nthird", 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseNumbered(c.content, c.n)
			var alignErr *AlignmentError
			if !errors.As(err, &alignErr) {
				t.Fatalf("want AlignmentError, got %v", err)
			}
			if alignErr.Want != c.n {
				t.Errorf("Want = %d, want %d", alignErr.Want, c.n)
			}
		})
	}
}

func TestAlignmentErrorIsTemporary(t *testing.T) {
	err := &AlignmentError{Want: 3, Got: 2}
	var te interface{ Temporary() bool }
	if !errors.As(error(err), &te) || !te.Temporary() {
		t.Error("AlignmentError should report itself as temporary")
	}
}
