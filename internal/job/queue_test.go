package job

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sublate/backend/internal/db"
)

func newTestQueue(t *testing.T) *JobQueue {
	t.Helper()
	d, err := db.NewSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	q := NewJobQueue(d.DB())
	t.Cleanup(q.Stop)
	return q
}

func waitStatus(t *testing.T, q *JobQueue, id string, want JobStatus) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := q.GetJob(id)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if j.Status == want {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	j, _ := q.GetJob(id)
	t.Fatalf("job %s stuck at %s, want %s", id, j.Status, want)
	return nil
}

func TestQueueProcessesJob(t *testing.T) {
	q := newTestQueue(t)
	q.RegisterHandler(JobGenerate, func(ctx context.Context, j *Job, progress func(float64)) error {
		progress(0.5)
		j.Result = json.RawMessage(`{"cues":12}`)
		return nil
	})

	j, err := q.Enqueue(JobGenerate, "show/ep01.mkv", GenerateParams{TargetLang: "Korean"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := waitStatus(t, q, j.ID, StatusCompleted)
	if done.Progress != 1.0 {
		t.Errorf("progress = %v, want 1.0", done.Progress)
	}
	var result struct {
		Cues int `json:"cues"`
	}
	if err := json.Unmarshal(done.Result, &result); err != nil || result.Cues != 12 {
		t.Errorf("result = %s (%v), want persisted handler result", done.Result, err)
	}
	var params GenerateParams
	if err := json.Unmarshal(done.Params, &params); err != nil || params.TargetLang != "Korean" {
		t.Errorf("params = %s", done.Params)
	}
}

func TestQueueFailsJob(t *testing.T) {
	q := newTestQueue(t)
	q.RegisterHandler(JobGenerate, func(ctx context.Context, j *Job, progress func(float64)) error {
		return errors.New("speech backend unreachable")
	})

	j, err := q.Enqueue(JobGenerate, "a.mkv", GenerateParams{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	failed := waitStatus(t, q, j.ID, StatusFailed)
	if failed.Error != "speech backend unreachable" {
		t.Errorf("error = %q", failed.Error)
	}
	if failed.CompletedAt == nil {
		t.Error("completed_at not set on failure")
	}
}

func TestQueueCancelsRunningJob(t *testing.T) {
	q := newTestQueue(t)
	sawCancel := make(chan struct{})
	q.RegisterHandler(JobGenerate, func(ctx context.Context, j *Job, progress func(float64)) error {
		<-ctx.Done()
		close(sawCancel)
		return ctx.Err()
	})

	j, err := q.Enqueue(JobGenerate, "a.mkv", GenerateParams{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitStatus(t, q, j.ID, StatusRunning)

	if err := q.CancelJob(j.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	select {
	case <-sawCancel:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never observed cancellation")
	}
	got := waitStatus(t, q, j.ID, StatusCancelled)
	if got.Status != StatusCancelled {
		t.Errorf("status = %s", got.Status)
	}
}

func TestQueueRetryJob(t *testing.T) {
	q := newTestQueue(t)
	var calls atomic.Int32
	q.RegisterHandler(JobTranslate, func(ctx context.Context, j *Job, progress func(float64)) error {
		if calls.Add(1) == 1 {
			return errors.New("first attempt fails")
		}
		return nil
	})

	j, err := q.Enqueue(JobTranslate, "a.mkv", TranslateParams{SubtitleID: "embedded:2"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitStatus(t, q, j.ID, StatusFailed)

	retried, err := q.RetryJob(j.ID)
	if err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	if retried.Error != "" || retried.Progress != 0 {
		t.Errorf("retried job not reset: %+v", retried)
	}

	waitStatus(t, q, j.ID, StatusCompleted)
	if calls.Load() != 2 {
		t.Errorf("handler calls = %d, want 2", calls.Load())
	}
}

func TestQueueRetryRejectsCompleted(t *testing.T) {
	q := newTestQueue(t)
	q.RegisterHandler(JobTranslate, func(ctx context.Context, j *Job, progress func(float64)) error {
		return nil
	})

	j, err := q.Enqueue(JobTranslate, "a.mkv", TranslateParams{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitStatus(t, q, j.ID, StatusCompleted)

	if _, err := q.RetryJob(j.ID); err == nil {
		t.Fatal("retry of a completed job must be rejected")
	}
}

func TestQueueResumesInterruptedJob(t *testing.T) {
	d, err := db.NewSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	// First process: the job is mid-flight when the queue shuts down.
	q1 := NewJobQueue(d.DB())
	q1.RegisterHandler(JobGenerate, func(ctx context.Context, j *Job, progress func(float64)) error {
		<-ctx.Done()
		return ctx.Err()
	})
	j, err := q1.Enqueue(JobGenerate, "show/ep01.mkv", GenerateParams{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitStatus(t, q1, j.ID, StatusRunning)
	q1.Stop()

	// Second process: Resume picks the job back up once handlers exist.
	q2 := NewJobQueue(d.DB())
	t.Cleanup(q2.Stop)
	q2.RegisterHandler(JobGenerate, func(ctx context.Context, j *Job, progress func(float64)) error {
		return nil
	})
	q2.Resume()
	waitStatus(t, q2, j.ID, StatusCompleted)
}

func TestQueueListsNewestFirst(t *testing.T) {
	q := newTestQueue(t)
	q.RegisterHandler(JobGenerate, func(ctx context.Context, j *Job, progress func(float64)) error {
		return nil
	})

	first, _ := q.Enqueue(JobGenerate, "a.mkv", GenerateParams{})
	waitStatus(t, q, first.ID, StatusCompleted)
	second, _ := q.Enqueue(JobGenerate, "b.mkv", GenerateParams{})
	waitStatus(t, q, second.ID, StatusCompleted)

	jobs, err := q.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].ID != second.ID {
		t.Errorf("newest job not first: %s", jobs[0].ID)
	}
}
