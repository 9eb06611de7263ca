package translate

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sublate/backend/internal/retry"
	"github.com/sublate/backend/internal/subtitle"
)

const (
	defaultBatchSize = 15
	defaultWorkers   = 3
)

// BatchFailure records a batch that exhausted its retries and fell back to
// passing the original text through.
type BatchFailure struct {
	Batch int    `json:"batch"` // 1-based
	Units int    `json:"units"`
	Err   string `json:"error"`
}

// Batcher drives a Backend over a full run: it splits the lines into
// contiguous batches, translates them (in parallel when no cross-batch
// context is wanted), retries misaligned or transient failures, and falls
// back to the original text for batches that never succeed. The output
// always contains exactly one unit per input line, in input order.
type Batcher struct {
	// BatchSize is the number of lines per request (default 15).
	BatchSize int
	// Workers bounds concurrent requests (default 3). Ignored when
	// ContextLines forces sequential submission.
	Workers int
	// ContextLines carries the last N translated lines of the previous
	// batch into the next request. Non-zero disables batch parallelism
	// because each batch then depends on its predecessor.
	ContextLines int
	// Policy schedules retries for each batch.
	Policy retry.Policy
}

// Batches reports how many requests n lines produce at the configured size.
func (b *Batcher) Batches(n int) int {
	if n <= 0 {
		return 0
	}
	size := b.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	return (n + size - 1) / size
}

// Translate runs the backend over all lines. Transient failures and
// misaligned responses are retried per Policy; a batch that still fails is
// passed through untranslated and reported in the returned failures. A
// permanent backend failure or context cancellation aborts the whole run.
func (b *Batcher) Translate(ctx context.Context, backend Backend, lines []string, opts Options, progress func(done, total int)) ([]subtitle.Unit, []BatchFailure, error) {
	if len(lines) == 0 {
		return nil, nil, nil
	}
	size := b.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	total := b.Batches(len(lines))

	if b.ContextLines > 0 {
		return b.sequential(ctx, backend, lines, size, total, opts, progress)
	}
	return b.parallel(ctx, backend, lines, size, total, opts, progress)
}

func (b *Batcher) parallel(ctx context.Context, backend Backend, lines []string, size, total int, opts Options, progress func(done, total int)) ([]subtitle.Unit, []BatchFailure, error) {
	workers := b.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	log.Printf("[translate] %s: %d lines in %d batches (%d per batch, %d concurrent)",
		backend.Name(), len(lines), total, size, workers)

	type batchResult struct {
		units []subtitle.Unit
		fail  *BatchFailure
		err   error
	}
	results := make([]batchResult, total)
	var completed atomic.Int32
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		idx := start / size

		wg.Add(1)
		sem <- struct{}{}
		go func(idx, start int, batch []string) {
			defer wg.Done()
			defer func() { <-sem }()

			units, fail, err := b.runBatch(ctx, backend, idx+1, total, start, batch, nil, opts)
			results[idx] = batchResult{units: units, fail: fail, err: err}

			if progress != nil {
				progress(int(completed.Add(1)), total)
			}
		}(idx, start, lines[start:end])
	}
	wg.Wait()

	units := make([]subtitle.Unit, 0, len(lines))
	var failures []BatchFailure
	for _, r := range results {
		if r.err != nil {
			return nil, nil, r.err
		}
		units = append(units, r.units...)
		if r.fail != nil {
			failures = append(failures, *r.fail)
		}
	}
	return units, failures, nil
}

func (b *Batcher) sequential(ctx context.Context, backend Backend, lines []string, size, total int, opts Options, progress func(done, total int)) ([]subtitle.Unit, []BatchFailure, error) {
	log.Printf("[translate] %s: %d lines in %d batches (%d per batch, sequential with %d context lines)",
		backend.Name(), len(lines), total, size, b.ContextLines)

	units := make([]subtitle.Unit, 0, len(lines))
	var failures []BatchFailure
	var prev []string

	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		idx := start / size

		batchUnits, fail, err := b.runBatch(ctx, backend, idx+1, total, start, lines[start:end], lastN(prev, b.ContextLines), opts)
		if err != nil {
			return nil, nil, err
		}
		prev = prev[:0]
		for _, u := range batchUnits {
			prev = append(prev, u.Translated)
		}
		units = append(units, batchUnits...)
		if fail != nil {
			failures = append(failures, *fail)
		}
		if progress != nil {
			progress(idx+1, total)
		}
	}
	return units, failures, nil
}

// runBatch translates one batch with retries. It returns an error only for
// permanent failures and cancellation; exhausted retries degrade to a
// passthrough batch.
func (b *Batcher) runBatch(ctx context.Context, backend Backend, num, total, start int, batch, contextLines []string, opts Options) ([]subtitle.Unit, *BatchFailure, error) {
	req := Request{Lines: batch, Context: contextLines, Options: opts}
	attempt := 0
	var translated []string

	err := b.Policy.Do(ctx, func(callCtx context.Context) error {
		req.Strict = attempt > 0
		attempt++
		out, terr := backend.Translate(callCtx, req)
		if terr != nil {
			return terr
		}
		if len(out) != len(batch) {
			return &AlignmentError{Want: len(batch), Got: len(out)}
		}
		translated = out
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if retry.IsPermanent(err) {
			return nil, nil, fmt.Errorf("batch %d/%d: %w", num, total, err)
		}
		log.Printf("[translate] batch %d/%d failed after %d attempts, passing original text through: %v",
			num, total, attempt, err)
		units := make([]subtitle.Unit, len(batch))
		for i, line := range batch {
			units[i] = subtitle.Unit{Index: start + i, Source: line, Translated: line, Passthrough: true}
		}
		fail := &BatchFailure{Batch: num, Units: len(batch), Err: err.Error()}
		return units, fail, nil
	}

	units := make([]subtitle.Unit, len(batch))
	for i, line := range batch {
		tr := strings.TrimSpace(translated[i])
		if tr == "" {
			// The backend answered but left this line blank.
			units[i] = subtitle.Unit{Index: start + i, Source: line, Translated: line, Passthrough: true}
			continue
		}
		units[i] = subtitle.Unit{Index: start + i, Source: line, Translated: tr}
	}
	return units, nil, nil
}

func lastN(lines []string, n int) []string {
	if n <= 0 || len(lines) == 0 {
		return nil
	}
	if len(lines) <= n {
		return append([]string(nil), lines...)
	}
	return append([]string(nil), lines[len(lines)-n:]...)
}
