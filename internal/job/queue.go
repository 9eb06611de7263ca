package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobQueue persists subtitle runs in the jobs table and works them off one
// at a time. Runs survive restarts: Resume re-queues whatever a previous
// process left pending or running.
type JobQueue struct {
	db       *sql.DB
	mu       sync.RWMutex
	pending  chan string // job IDs waiting for the worker
	cancels  map[string]context.CancelFunc
	handlers map[JobType]JobHandler
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewJobQueue starts the queue worker. Jobs interrupted by a previous
// shutdown are not picked up until Resume is called, after all handlers
// are registered.
func NewJobQueue(db *sql.DB) *JobQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &JobQueue{
		db:       db,
		pending:  make(chan string, 100),
		cancels:  make(map[string]context.CancelFunc),
		handlers: make(map[JobType]JobHandler),
		ctx:      ctx,
		cancel:   cancel,
	}
	go q.worker()
	return q
}

// Resume re-queues jobs left over from a previous run.
func (q *JobQueue) Resume() {
	go q.resumeJobs()
}

// RegisterHandler sets the handler invoked for jobs of the given type.
func (q *JobQueue) RegisterHandler(jobType JobType, handler JobHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Stop shuts down the worker and cancels the running job, if any.
func (q *JobQueue) Stop() {
	q.cancel()
}

// Enqueue persists a new run and hands it to the worker.
func (q *JobQueue) Enqueue(jobType JobType, mediaPath string, params interface{}) (*Job, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	job := &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    StatusPending,
		MediaPath: mediaPath,
		Params:    paramsJSON,
		CreatedAt: time.Now(),
	}
	_, err = q.db.Exec(`
		INSERT INTO jobs (id, type, status, media_path, params, progress, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		job.ID, job.Type, job.Status, job.MediaPath, job.Params, job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	q.push(job.ID)
	return job, nil
}

// push offers a job to the worker. The channel holds more jobs than anyone
// queues in practice; should it ever fill, the row stays pending and Resume
// picks it up after the next restart.
func (q *JobQueue) push(id string) {
	select {
	case q.pending <- id:
	default:
		log.Printf("[job] queue backlog full, job %s deferred to next restart", id)
	}
}

const jobColumns = "id, type, status, media_path, params, progress, result, error, created_at, started_at, completed_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	job := &Job{}
	var params, result, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&job.ID, &job.Type, &job.Status, &job.MediaPath, &params, &job.Progress,
		&result, &errMsg, &job.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if params.Valid {
		job.Params = json.RawMessage(params.String)
	}
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	job.Error = errMsg.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

// GetJob loads one run by ID.
func (q *JobQueue) GetJob(id string) (*Job, error) {
	return scanJob(q.db.QueryRow("SELECT "+jobColumns+" FROM jobs WHERE id = ?", id))
}

// ListJobs returns all runs, newest first.
func (q *JobQueue) ListJobs() ([]*Job, error) {
	rows, err := q.db.Query("SELECT " + jobColumns + " FROM jobs ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats counts jobs per status.
func (q *JobQueue) Stats() (map[string]int, error) {
	rows, err := q.db.Query("SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// CancelJob cancels a pending or running job.
func (q *JobQueue) CancelJob(id string) error {
	q.mu.Lock()
	if cancelFn, ok := q.cancels[id]; ok {
		cancelFn()
		delete(q.cancels, id)
	}
	q.mu.Unlock()

	_, err := q.db.Exec(`
		UPDATE jobs SET status = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		StatusCancelled, time.Now(), id, StatusPending, StatusRunning,
	)
	return err
}

// RetryJob re-queues a failed or cancelled job with its original params.
func (q *JobQueue) RetryJob(id string) (*Job, error) {
	res, err := q.db.Exec(`
		UPDATE jobs
		SET status = ?, progress = 0, error = '', result = NULL, started_at = NULL, completed_at = NULL
		WHERE id = ? AND status IN (?, ?)`,
		StatusPending, id, StatusFailed, StatusCancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("retry job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("job %s is not failed or cancelled", id)
	}
	q.push(id)
	return q.GetJob(id)
}

// UpdateProgress records a running job's progress fraction.
func (q *JobQueue) UpdateProgress(id string, progress float64) {
	q.db.Exec("UPDATE jobs SET progress = ? WHERE id = ?", progress, id)
}

// worker drains the pending channel one job at a time. Runs are serialized
// because each one saturates ffmpeg and the engine workers on its own.
func (q *JobQueue) worker() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case jobID := <-q.pending:
			q.processJob(jobID)
		}
	}
}

func (q *JobQueue) processJob(jobID string) {
	job, err := q.GetJob(jobID)
	if err != nil {
		log.Printf("[job] failed to load job %s: %v", jobID, err)
		return
	}
	if job.Status != StatusPending {
		// Cancelled (or already handled) while sitting in the channel.
		return
	}

	q.mu.RLock()
	handler, ok := q.handlers[job.Type]
	q.mu.RUnlock()
	if !ok {
		log.Printf("[job] no handler for job type %s", job.Type)
		q.failJob(job, fmt.Sprintf("no handler for job type: %s", job.Type))
		return
	}

	now := time.Now()
	job.StartedAt = &now
	job.Status = StatusRunning
	q.db.Exec("UPDATE jobs SET status = ?, started_at = ? WHERE id = ?",
		StatusRunning, now, job.ID)

	// Cancellation reaches the handler through this context: it interrupts
	// ffmpeg and in-flight engine calls, not just the DB row.
	ctx, cancelFn := context.WithCancel(q.ctx)
	q.mu.Lock()
	q.cancels[job.ID] = cancelFn
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.cancels, job.ID)
		q.mu.Unlock()
		cancelFn()
	}()

	err = handler(ctx, job, func(progress float64) {
		q.UpdateProgress(job.ID, progress)
	})

	switch {
	case ctx.Err() != nil:
		// CancelJob (or shutdown) already owns the job row.
		log.Printf("[job] job %s cancelled", job.ID)
	case err != nil:
		q.failJob(job, err.Error())
	default:
		q.completeJob(job)
	}
}

// completeJob persists the handler's result. The status guard keeps a
// finishing handler from overwriting a concurrent cancellation.
func (q *JobQueue) completeJob(job *Job) {
	var result interface{}
	if len(job.Result) > 0 {
		result = string(job.Result)
	}
	q.db.Exec("UPDATE jobs SET status = ?, progress = 1.0, result = ?, completed_at = ? WHERE id = ? AND status = ?",
		StatusCompleted, result, time.Now(), job.ID, StatusRunning)
	log.Printf("[job] job %s completed", job.ID)
}

func (q *JobQueue) failJob(job *Job, errMsg string) {
	q.db.Exec("UPDATE jobs SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status IN (?, ?)",
		StatusFailed, errMsg, time.Now(), job.ID, StatusPending, StatusRunning)
	log.Printf("[job] job %s failed: %s", job.ID, errMsg)
}

// resumeJobs flips jobs a dead process left running back to pending and
// feeds every pending job to the worker, oldest first.
func (q *JobQueue) resumeJobs() {
	res, err := q.db.Exec("UPDATE jobs SET status = ? WHERE status = ?", StatusPending, StatusRunning)
	if err != nil {
		log.Printf("[job] failed to reset interrupted jobs: %v", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("[job] re-queued %d jobs interrupted by the last shutdown", n)
	}

	rows, err := q.db.Query("SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC", StatusPending)
	if err != nil {
		log.Printf("[job] failed to resume jobs: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		q.push(id)
	}
}
