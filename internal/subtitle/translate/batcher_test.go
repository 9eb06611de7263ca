package translate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sublate/backend/internal/retry"
)

type fakeBackend struct {
	fn func(ctx context.Context, req Request) ([]string, error)
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Translate(ctx context.Context, req Request) ([]string, error) {
	return f.fn(ctx, req)
}

func testPolicy() retry.Policy {
	return retry.Policy{Attempts: 3, Base: time.Millisecond, Sleep: func(time.Duration) {}}
}

func echoBackend(delayed bool) *fakeBackend {
	return &fakeBackend{fn: func(ctx context.Context, req Request) ([]string, error) {
		if delayed {
			time.Sleep(time.Duration(rand.IntN(5)) * time.Millisecond)
		}
		out := make([]string, len(req.Lines))
		for i, line := range req.Lines {
			out[i] = "tr:" + line
		}
		return out, nil
	}}
}

func numberedLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line-%02d", i)
	}
	return lines
}

func TestBatcherPreservesOrderUnderConcurrency(t *testing.T) {
	lines := numberedLines(37)
	b := &Batcher{BatchSize: 4, Workers: 5, Policy: testPolicy()}

	units, failures, err := b.Translate(context.Background(), echoBackend(true), lines, Options{}, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(units) != len(lines) {
		t.Fatalf("units = %d, want %d", len(units), len(lines))
	}
	for i, u := range units {
		if u.Index != i {
			t.Errorf("unit %d has index %d", i, u.Index)
		}
		if u.Source != lines[i] {
			t.Errorf("unit %d source = %q, want %q", i, u.Source, lines[i])
		}
		if u.Translated != "tr:"+lines[i] {
			t.Errorf("unit %d translated = %q, want %q", i, u.Translated, "tr:"+lines[i])
		}
		if u.Passthrough {
			t.Errorf("unit %d unexpectedly passthrough", i)
		}
	}
}

func TestBatcherRetriesMisalignedResponseWithStrictPrompt(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	sawStrict := false

	backend := &fakeBackend{fn: func(ctx context.Context, req Request) ([]string, error) {
		mu.Lock()
		calls++
		first := calls == 1
		if req.Strict {
			sawStrict = true
		}
		mu.Unlock()
		if first {
			// One merged line too few, as chat models like to do.
			return []string{"merged"}, nil
		}
		out := make([]string, len(req.Lines))
		for i := range out {
			out[i] = "ok"
		}
		return out, nil
	}}

	b := &Batcher{BatchSize: 10, Workers: 1, Policy: testPolicy()}
	units, failures, err := b.Translate(context.Background(), backend, numberedLines(3), Options{}, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls)
	}
	if !sawStrict {
		t.Error("retry attempt should set Strict")
	}
	for _, u := range units {
		if u.Translated != "ok" {
			t.Errorf("unit %d = %q", u.Index, u.Translated)
		}
	}
}

func TestBatcherPassthroughOnPersistentMisalignment(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	backend := &fakeBackend{fn: func(ctx context.Context, req Request) ([]string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return []string{"always one line"}, nil
	}}

	b := &Batcher{BatchSize: 10, Workers: 1, Policy: testPolicy()}
	units, failures, err := b.Translate(context.Background(), backend, numberedLines(3), Options{}, nil)
	if err != nil {
		t.Fatalf("misalignment must degrade, not fail the run: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want all retry attempts", calls)
	}
	if len(failures) != 1 {
		t.Fatalf("failures = %+v, want the one batch", failures)
	}
	if !strings.Contains(failures[0].Err, "3 lines") {
		t.Errorf("failure should describe the mismatch: %q", failures[0].Err)
	}
	for i, u := range units {
		if !u.Passthrough || u.Translated != u.Source {
			t.Errorf("unit %d = %+v, want passthrough", i, u)
		}
	}
}

func TestBatcherFallsBackToPassthroughAfterExhaustedRetries(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, req Request) ([]string, error) {
		if req.Lines[0] == "line-02" {
			return nil, retry.Transient("fake", errors.New("backend down"))
		}
		out := make([]string, len(req.Lines))
		for i, line := range req.Lines {
			out[i] = "tr:" + line
		}
		return out, nil
	}}

	b := &Batcher{BatchSize: 2, Workers: 2, Policy: testPolicy()}
	units, failures, err := b.Translate(context.Background(), backend, numberedLines(6), Options{}, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(units) != 6 {
		t.Fatalf("units = %d, want 6", len(units))
	}
	if len(failures) != 1 || failures[0].Batch != 2 || failures[0].Units != 2 {
		t.Fatalf("failures = %+v, want batch 2 with 2 units", failures)
	}
	for i, u := range units {
		wantPass := i == 2 || i == 3
		if u.Passthrough != wantPass {
			t.Errorf("unit %d passthrough = %v, want %v", i, u.Passthrough, wantPass)
		}
		if wantPass && u.Translated != u.Source {
			t.Errorf("passthrough unit %d should keep source text", i)
		}
		if !wantPass && !strings.HasPrefix(u.Translated, "tr:") {
			t.Errorf("unit %d should be translated, got %q", i, u.Translated)
		}
	}
}

func TestBatcherAbortsOnPermanentError(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	backend := &fakeBackend{fn: func(ctx context.Context, req Request) ([]string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, retry.Permanent("fake", errors.New("invalid API key"))
	}}

	b := &Batcher{BatchSize: 5, Workers: 1, Policy: testPolicy()}
	_, _, err := b.Translate(context.Background(), backend, numberedLines(10), Options{}, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !retry.IsPermanent(err) {
		t.Errorf("err = %v, want permanent", err)
	}
	if calls > 2 {
		t.Errorf("calls = %d, permanent errors must not be retried", calls)
	}
}

func TestBatcherReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := &fakeBackend{fn: func(ctx context.Context, req Request) ([]string, error) {
		cancel()
		return nil, retry.Transient("fake", errors.New("interrupted"))
	}}

	b := &Batcher{BatchSize: 5, Workers: 1, Policy: testPolicy()}
	_, _, err := b.Translate(ctx, backend, numberedLines(10), Options{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestBatcherCarriesTranslatedContextSequentially(t *testing.T) {
	var mu sync.Mutex
	var contexts [][]string

	backend := &fakeBackend{fn: func(ctx context.Context, req Request) ([]string, error) {
		mu.Lock()
		contexts = append(contexts, append([]string(nil), req.Context...))
		mu.Unlock()
		out := make([]string, len(req.Lines))
		for i, line := range req.Lines {
			out[i] = "tr:" + line
		}
		return out, nil
	}}

	b := &Batcher{BatchSize: 2, Workers: 4, ContextLines: 2, Policy: testPolicy()}
	_, _, err := b.Translate(context.Background(), backend, numberedLines(6), Options{}, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(contexts) != 3 {
		t.Fatalf("calls = %d, want 3 sequential batches", len(contexts))
	}
	if len(contexts[0]) != 0 {
		t.Errorf("first batch context = %v, want none", contexts[0])
	}
	want1 := []string{"tr:line-00", "tr:line-01"}
	for i := range want1 {
		if contexts[1][i] != want1[i] {
			t.Errorf("second batch context = %v, want %v", contexts[1], want1)
			break
		}
	}
	want2 := []string{"tr:line-02", "tr:line-03"}
	for i := range want2 {
		if contexts[2][i] != want2[i] {
			t.Errorf("third batch context = %v, want %v", contexts[2], want2)
			break
		}
	}
}

func TestBatcherBlankLineFallsBackPerLine(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, req Request) ([]string, error) {
		out := make([]string, len(req.Lines))
		for i, line := range req.Lines {
			if i == 1 {
				out[i] = "  "
				continue
			}
			out[i] = "tr:" + line
		}
		return out, nil
	}}

	b := &Batcher{BatchSize: 10, Workers: 1, Policy: testPolicy()}
	units, failures, err := b.Translate(context.Background(), backend, numberedLines(3), Options{}, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("a blank line is not a batch failure: %v", failures)
	}
	if !units[1].Passthrough || units[1].Translated != "line-01" {
		t.Errorf("unit 1 = %+v, want per-line source fallback", units[1])
	}
	if units[0].Passthrough || units[2].Passthrough {
		t.Error("other units should stay translated")
	}
}

func TestBatcherReportsProgress(t *testing.T) {
	var mu sync.Mutex
	var dones []int
	total := 0

	b := &Batcher{BatchSize: 3, Workers: 2, Policy: testPolicy()}
	_, _, err := b.Translate(context.Background(), echoBackend(true), numberedLines(10), Options{},
		func(done, t int) {
			mu.Lock()
			dones = append(dones, done)
			total = t
			mu.Unlock()
		})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4 batches", total)
	}
	if len(dones) != 4 {
		t.Fatalf("progress calls = %d, want 4", len(dones))
	}
	seen := map[int]bool{}
	for _, d := range dones {
		seen[d] = true
	}
	for want := 1; want <= 4; want++ {
		if !seen[want] {
			t.Errorf("progress never reported done=%d: %v", want, dones)
		}
	}
}
