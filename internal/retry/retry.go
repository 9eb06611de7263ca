// Package retry classifies backend failures and runs operations under a
// bounded exponential-backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"
)

// BackendError is a failure from an external speech or translation service.
// Transient failures are worth retrying; permanent ones (bad credentials,
// exhausted quota) are not.
type BackendError struct {
	Op        string
	Status    int
	Transient bool
	Err       error
}

func (e *BackendError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s backend error (status %d): %v", e.Op, kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s backend error: %v", e.Op, kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable backend failure.
func Transient(op string, err error) *BackendError {
	return &BackendError{Op: op, Transient: true, Err: err}
}

// Permanent wraps err as a non-retryable backend failure.
func Permanent(op string, err error) *BackendError {
	return &BackendError{Op: op, Transient: false, Err: err}
}

// FromHTTPStatus classifies an HTTP error response: timeouts, throttling and
// server-side errors are transient, the remaining client errors permanent.
func FromHTTPStatus(op string, status int, body string) *BackendError {
	transient := status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= 500
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		body = body[:200]
	}
	return &BackendError{
		Op:        op,
		Status:    status,
		Transient: transient,
		Err:       fmt.Errorf("HTTP %d: %s", status, body),
	}
}

// IsPermanent reports whether err is a backend failure that another attempt
// cannot fix.
func IsPermanent(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && !be.Transient
}

// retryable reports whether another attempt might succeed.
func retryable(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var te interface{ Temporary() bool }
	if errors.As(err, &te) {
		return te.Temporary()
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "timeout")
}

// Policy is a bounded retry schedule. The zero value performs a single
// attempt with no per-call timeout. Sleep is replaceable in tests.
type Policy struct {
	Attempts    int
	Base        time.Duration
	Max         time.Duration
	Jitter      float64 // extra random delay as a fraction of the backoff
	CallTimeout time.Duration
	Sleep       func(time.Duration)
}

// Do runs op until it succeeds, attempts are exhausted, a non-retryable
// error occurs, or ctx is cancelled. When CallTimeout is set, each attempt
// runs under its own deadline and a timed-out attempt counts as transient.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if attempt > 0 {
			if werr := p.wait(ctx, p.Backoff(attempt-1)); werr != nil {
				return werr
			}
		}
		err = p.call(ctx, op)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}

func (p Policy) call(ctx context.Context, op func(context.Context) error) error {
	if p.CallTimeout <= 0 {
		return op(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()
	return op(callCtx)
}

// Backoff returns the delay before retry n (0-based), doubling from Base up
// to Max, plus jitter.
func (p Policy) Backoff(n int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	if n > 30 {
		n = 30
	}
	d := base << uint(n)
	if p.Max > 0 && (d > p.Max || d <= 0) {
		d = p.Max
	}
	if p.Jitter > 0 {
		d += time.Duration(p.Jitter * rand.Float64() * float64(d))
	}
	return d
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		p.Sleep(d)
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
