// -----------------------------------------------------------------------
// Job Queue - in-memory, priority-ordered job store and execution driver
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/models"
	"github.com/cryptocrystian/pravado/internal/queue/logging"
)

// Execution is the context handed to a job handler for one attempt
type Execution struct {
	Job      *models.Job
	WorkerID string
	Log      *logging.Collector
}

// JobHandler executes one attempt of a job. The context is canceled when the
// job is canceled; honoring it is cooperative. A returned error or a nil
// result is converted to a failed JobResult by the queue.
type JobHandler func(ctx context.Context, exec *Execution) (*models.JobResult, error)

// Queue is the in-memory dispatch layer. It is volatile by design: durable
// state lives in the store and the queue is rebuilt from it. All mutations
// are short critical sections, never held across handler execution.
type Queue struct {
	config   Config
	logger   arbor.ILogger
	mu       sync.Mutex
	jobs     map[string]*models.Job
	handlers map[models.JobType]JobHandler
	cancels  map[string]context.CancelFunc
}

// NewQueue creates an empty job queue
func NewQueue(config Config, logger arbor.ILogger) *Queue {
	return &Queue{
		config:   config,
		logger:   logger,
		jobs:     make(map[string]*models.Job),
		handlers: make(map[models.JobType]JobHandler),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Config returns the queue configuration
func (q *Queue) Config() Config {
	return q.config
}

// RegisterHandler registers the handler for a job type, replacing any
// existing registration
func (q *Queue) RegisterHandler(jobType models.JobType, handler JobHandler) {
	q.mu.Lock()
	q.handlers[jobType] = handler
	q.mu.Unlock()

	q.logger.Debug().
		Str("job_type", string(jobType)).
		Msg("Job handler registered")
}

// Enqueue inserts a job with status forced to queued. An existing attempt
// counter is preserved so re-enqueued retries keep their history.
func (q *Queue) Enqueue(job *models.Job) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	job.Status = models.JobStatusQueued
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	q.jobs[job.ID] = job

	q.logger.Debug().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Str("priority", string(job.Priority)).
		Str("step_key", job.Payload.StepKey).
		Msg("Job enqueued")

	return nil
}

// NextJob returns the highest-priority ready job, tie-broken by earliest
// creation time, or nil when nothing is ready. Non-blocking poll.
func (q *Queue) NextJob() *models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var best *models.Job
	for _, job := range q.jobs {
		if !job.IsReady(now) {
			continue
		}
		if best == nil {
			best = job
			continue
		}
		br, jr := best.Priority.Rank(), job.Priority.Rank()
		if jr < br || (jr == br && job.CreatedAt.Before(best.CreatedAt)) {
			best = job
		}
	}
	return best
}

// ExecuteJob drives one attempt of a job through its registered handler.
// It always returns a JobResult carrying the attempt's logs and elapsed
// time - handler errors and panics never escape this call - together with a
// snapshot of the job taken under the lock, so callers never read shared
// Job fields while another worker may be mutating them. A missing handler
// is a configuration error, surfaced as a non-retryable failure.
func (q *Queue) ExecuteJob(ctx context.Context, job *models.Job, workerID string) (*models.JobResult, models.Job) {
	start := time.Now()
	collector := logging.NewCollector(q.logger, job.ID)

	q.mu.Lock()
	handler, exists := q.handlers[job.Type]
	if !exists {
		jobErr := models.NewConfigError(fmt.Sprintf("no handler registered for job type: %s", job.Type))
		now := time.Now()
		job.Status = models.JobStatusFailed
		job.Error = jobErr
		job.CompletedAt = &now
		snapshot := *job
		q.mu.Unlock()

		collector.Error(jobErr.Message)
		result := models.NewFailureResult(jobErr)
		result.Duration = time.Since(start)
		result.Logs = collector.Entries()
		return result, snapshot
	}

	now := time.Now()
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	job.WorkerID = workerID
	jobCtx, cancel := context.WithCancel(ctx)
	q.cancels[job.ID] = cancel
	q.mu.Unlock()

	result := q.runHandler(jobCtx, handler, &Execution{
		Job:      job,
		WorkerID: workerID,
		Log:      collector,
	})

	q.mu.Lock()
	delete(q.cancels, job.ID)
	completed := time.Now()
	// A cancellation observed mid-flight wins over the handler outcome:
	// the result is still recorded but the job stays canceled.
	if job.Status != models.JobStatusCanceled {
		if result.Success {
			job.Status = models.JobStatusCompleted
		} else {
			job.Status = models.JobStatusFailed
			job.Error = result.Error
		}
	}
	job.CompletedAt = &completed
	snapshot := *job
	q.mu.Unlock()
	cancel()

	result.Duration = time.Since(start)
	result.Logs = collector.Entries()

	q.logger.Debug().
		Str("job_id", snapshot.ID).
		Str("status", string(snapshot.Status)).
		Str("worker_id", workerID).
		Int("attempt", snapshot.Attempt).
		Dur("duration", result.Duration).
		Msg("Job execution finished")

	return result, snapshot
}

// runHandler invokes the handler, converting errors and panics to failed results
func (q *Queue) runHandler(ctx context.Context, handler JobHandler, exec *Execution) (result *models.JobResult) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("job handler panic: %v", r)
			exec.Log.Error(msg)
			result = models.NewFailureResult(models.NewJobError(msg, string(debug.Stack())))
		}
	}()

	res, err := handler(ctx, exec)
	if err != nil {
		exec.Log.Error(err.Error())
		return models.NewFailureResult(models.NewJobError(err.Error(), ""))
	}
	if res == nil {
		return models.NewFailureResult(models.NewJobError("job handler returned no result", ""))
	}
	return res
}

// RetryJob schedules another attempt with exponential backoff and returns a
// snapshot of the rescheduled job. Returns false without mutating the job
// when the retry budget is exhausted, the job is canceled, or its failure is
// a non-retryable configuration error - the caller decides to request a
// retry, the queue decides whether it is permitted and when.
func (q *Queue) RetryJob(jobID string) (models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.jobs[jobID]
	if !exists {
		return models.Job{}, false
	}
	if job.Status == models.JobStatusCanceled {
		return models.Job{}, false
	}
	if job.Error != nil && job.Error.NonRetryable {
		return models.Job{}, false
	}
	if job.Attempt+1 > job.MaxAttempts {
		return models.Job{}, false
	}

	job.Attempt++
	job.Status = models.JobStatusRetrying
	delay := q.backoffDelay(job.Attempt)
	at := time.Now().Add(delay)
	job.ScheduledAt = &at
	job.CompletedAt = nil

	q.logger.Debug().
		Str("job_id", jobID).
		Int("attempt", job.Attempt).
		Int("max_attempts", job.MaxAttempts).
		Dur("delay", delay).
		Msg("Job scheduled for retry")

	return *job, true
}

// backoffDelay computes base * multiplier^(attempt-1), capped at the ceiling
func (q *Queue) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(float64(q.config.RetryBaseDelay) * math.Pow(q.config.RetryMultiplier, float64(attempt-1)))
	if delay > q.config.RetryMaxDelay {
		delay = q.config.RetryMaxDelay
	}
	return delay
}

// CancelJob marks a job canceled. Cancellation is cooperative: a running
// job's context is canceled but its handler is not preempted - the handler
// runs to completion and its result is recorded, with no further retries.
func (q *Queue) CancelJob(jobID string) error {
	q.mu.Lock()
	job, exists := q.jobs[jobID]
	if !exists {
		q.mu.Unlock()
		return fmt.Errorf("job not found: %s", jobID)
	}

	var cancel context.CancelFunc
	switch job.Status {
	case models.JobStatusRunning:
		job.Status = models.JobStatusCanceled
		cancel = q.cancels[jobID]
	case models.JobStatusQueued, models.JobStatusRetrying:
		now := time.Now()
		job.Status = models.JobStatusCanceled
		job.CompletedAt = &now
	}
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	q.logger.Debug().Str("job_id", jobID).Msg("Job canceled")
	return nil
}

// CancelJobsForRun cancels every non-terminal job belonging to a run and
// returns the canceled job IDs
func (q *Queue) CancelJobsForRun(runID string) []string {
	q.mu.Lock()
	var ids []string
	for _, job := range q.jobs {
		if job.Payload.RunID == runID && !job.Status.IsTerminal() {
			ids = append(ids, job.ID)
		}
	}
	q.mu.Unlock()

	for _, id := range ids {
		if err := q.CancelJob(id); err != nil {
			q.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to cancel job for run")
		}
	}
	return ids
}

// GetJob returns a job by id
func (q *Queue) GetJob(jobID string) (*models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, exists := q.jobs[jobID]
	return job, exists
}

// FindJobByStepRun returns the job dispatched for a step-run, if any
func (q *Queue) FindJobByStepRun(stepRunID string) (*models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.jobs {
		if job.Payload.StepRunID == stepRunID {
			return job, true
		}
	}
	return nil, false
}

// Cleanup purges terminal jobs whose completion is older than maxAge and
// returns the number removed. Bounds memory growth in a long-running process.
func (q *Queue) Cleanup(maxAge time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range q.jobs {
		if !job.Status.IsTerminal() {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}

	if removed > 0 {
		q.logger.Debug().Int("removed", removed).Msg("Purged terminal jobs")
	}
	return removed
}

// Stats returns job counts by status
func (q *Queue) Stats() map[models.JobStatus]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := make(map[models.JobStatus]int)
	for _, job := range q.jobs {
		stats[job.Status]++
	}
	return stats
}
