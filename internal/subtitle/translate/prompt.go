package translate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// UserPrompt renders a batch as numbered lines for a chat-style backend.
// The numbering lets the response be realigned line-by-line even when the
// model pads its reply.
func UserPrompt(req Request) string {
	var b strings.Builder
	if len(req.Context) > 0 {
		b.WriteString("Preceding lines, already translated, shown for continuity only. Do not translate or repeat them:\n")
		for _, line := range req.Context {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b,
		"Translate the following %d numbered subtitle lines. Reply with exactly one line per input in the form \"[n] translation\", keeping the same numbering and order. Never merge, split, skip or add lines.\n\n",
		len(req.Lines))
	for i, line := range req.Lines {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, flattenLine(line))
	}
	if req.Strict {
		fmt.Fprintf(&b,
			"\nYour previous reply did not line up with the input. Reply with exactly %d lines, numbered [1] through [%d], and nothing else.",
			len(req.Lines), len(req.Lines))
	}
	return b.String()
}

// flattenLine collapses internal line breaks so each subtitle occupies one
// numbered prompt line.
func flattenLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var numberedLineRe = regexp.MustCompile(`^\s*\[(\d+)\]\s*(.*)$`)

// ParseNumbered extracts n translated lines from a numbered response.
// Preamble before the first numbered line is ignored and unnumbered lines
// are treated as continuations of the previous entry. Out-of-order numbers
// or a wrong line count yield an *AlignmentError.
func ParseNumbered(content string, n int) ([]string, error) {
	out := make([]string, 0, n)
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if m := numberedLineRe.FindStringSubmatch(line); m != nil {
			k, _ := strconv.Atoi(m[1])
			if k != len(out)+1 {
				return nil, &AlignmentError{
					Want:   n,
					Got:    len(out),
					Detail: fmt.Sprintf("expected line [%d], got [%d]", len(out)+1, k),
				}
			}
			out = append(out, strings.TrimSpace(m[2]))
			continue
		}
		if len(out) == 0 {
			// Chatter before the first numbered line.
			continue
		}
		out[len(out)-1] = strings.TrimSpace(out[len(out)-1] + " " + line)
	}
	if len(out) != n {
		return nil, &AlignmentError{Want: n, Got: len(out)}
	}
	return out, nil
}
