package transcribe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sublate/backend/internal/retry"
)

func wordSeq(texts []string, wordDur time.Duration) []spokenWord {
	words := make([]spokenWord, len(texts))
	for i, t := range texts {
		words[i] = spokenWord{
			start:      time.Duration(i) * wordDur,
			end:        time.Duration(i+1) * wordDur,
			text:       t,
			confidence: 0.9,
		}
	}
	return words
}

func TestGroupWordsCapsFragmentSize(t *testing.T) {
	texts := make([]string, 30)
	for i := range texts {
		texts[i] = "word"
	}
	frags := groupWords(wordSeq(texts, 500*time.Millisecond))
	if len(frags) != 3 {
		t.Fatalf("fragments = %d, want 3 (12+12+6)", len(frags))
	}
	if n := len(strings.Fields(frags[0].Text)); n != 12 {
		t.Errorf("first fragment has %d words, want 12", n)
	}
	if n := len(strings.Fields(frags[2].Text)); n != 6 {
		t.Errorf("last fragment has %d words, want 6", n)
	}
	// Timing spans the member words.
	if frags[1].Start != 6*time.Second || frags[1].End != 12*time.Second {
		t.Errorf("fragment 1 = %v..%v", frags[1].Start, frags[1].End)
	}
}

func TestGroupWordsSplitsAtPunctuation(t *testing.T) {
	texts := []string{"I", "think", "we", "should", "go.", "Then", "we", "can", "rest"}
	frags := groupWords(wordSeq(texts, time.Second))
	if len(frags) != 2 {
		t.Fatalf("fragments = %+v, want split after \"go.\"", frags)
	}
	if frags[0].Text != "I think we should go." {
		t.Errorf("first fragment = %q", frags[0].Text)
	}
	if frags[1].Text != "Then we can rest" {
		t.Errorf("second fragment = %q", frags[1].Text)
	}
}

func TestGroupWordsIgnoresEarlyPunctuation(t *testing.T) {
	// Punctuation inside the first few words must not split yet.
	texts := []string{"No,", "wait,", "stop", "right", "there,", "please"}
	frags := groupWords(wordSeq(texts, time.Second))
	if len(frags) != 2 {
		t.Fatalf("fragments = %+v, want 2", frags)
	}
	// "there," is word 5, so the split lands there.
	if frags[0].Text != "No, wait, stop right there," {
		t.Errorf("first fragment = %q", frags[0].Text)
	}
}

func TestGroupWordsCJKPunctuation(t *testing.T) {
	texts := []string{"今日", "は", "いい", "天気", "です。", "散歩", "し", "ま", "しょ", "う"}
	frags := groupWords(wordSeq(texts, time.Second))
	if len(frags) != 2 {
		t.Fatalf("fragments = %+v, want split at 。", frags)
	}
}

func TestGroupWordsFixesCollapsedTiming(t *testing.T) {
	words := []spokenWord{
		{start: 5 * time.Second, end: 5 * time.Second, text: "stuck"},
	}
	frags := groupWords(words)
	if len(frags) != 1 {
		t.Fatalf("fragments = %d", len(frags))
	}
	if frags[0].End != 7*time.Second {
		t.Errorf("end = %v, want start+2s floor", frags[0].End)
	}
}

func TestGroupWordsAveragesConfidence(t *testing.T) {
	words := []spokenWord{
		{start: 0, end: time.Second, text: "a", confidence: 1.0},
		{start: time.Second, end: 2 * time.Second, text: "b", confidence: 0.5},
	}
	frags := groupWords(words)
	if len(frags) != 1 || frags[0].Confidence != 0.75 {
		t.Fatalf("fragments = %+v, want averaged confidence 0.75", frags)
	}
}

func TestGoogleLangCode(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "auto"},
		{"auto", "auto"},
		{"en", "en-US"},
		{"ja", "ja-JP"},
		{"zh", "cmn-Hans-CN"},
		{"pt", "pt-BR"},
		{"en-GB", "en-GB"},   // explicit tags pass through
		{"cy", "cy"},         // unmapped codes pass through
		{"cmn-Hant-TW", "cmn-Hant-TW"},
	}
	for _, c := range cases {
		if got := googleLangCode(c.in); got != c.want {
			t.Errorf("googleLangCode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestClassifyGRPCError(t *testing.T) {
	cases := []struct {
		code      codes.Code
		transient bool
	}{
		{codes.Unavailable, true},
		{codes.DeadlineExceeded, true},
		{codes.ResourceExhausted, true},
		{codes.Internal, true},
		{codes.Unauthenticated, false},
		{codes.PermissionDenied, false},
		{codes.InvalidArgument, false},
		{codes.NotFound, false},
	}
	for _, c := range cases {
		err := classifyGRPCError("google recognize", status.Error(c.code, "boom"))
		var be *retry.BackendError
		if !errors.As(err, &be) {
			t.Fatalf("%v: err = %v, want BackendError", c.code, err)
		}
		if be.Transient != c.transient {
			t.Errorf("%v: transient = %v, want %v", c.code, be.Transient, c.transient)
		}
	}
}

func TestClassifyGRPCErrorPassesContextThrough(t *testing.T) {
	err := classifyGRPCError("google recognize", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled untouched", err)
	}
	var be *retry.BackendError
	if errors.As(err, &be) {
		t.Error("context cancellation must not be wrapped as a backend error")
	}
}
