// -----------------------------------------------------------------------
// Queue Job - Dispatchable unit of work for playbook step execution
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType identifies the kind of work a job carries. The engine currently
// dispatches a single variant: executing one step-run of a playbook run.
type JobType string

const (
	JobTypePlaybookStep JobType = "playbook.step"
)

// JobPriority is the scheduling tier of a job. Lower rank is served first.
type JobPriority string

const (
	JobPriorityUrgent JobPriority = "urgent"
	JobPriorityHigh   JobPriority = "high"
	JobPriorityMedium JobPriority = "medium"
	JobPriorityLow    JobPriority = "low"
)

// Rank returns the numeric ordering tier (urgent=0 .. low=3).
// Unknown priorities sort after low.
func (p JobPriority) Rank() int {
	switch p {
	case JobPriorityUrgent:
		return 0
	case JobPriorityHigh:
		return 1
	case JobPriorityMedium:
		return 2
	case JobPriorityLow:
		return 3
	default:
		return 4
	}
}

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
	JobStatusCanceled  JobStatus = "canceled"
)

// IsTerminal returns true if the status is a final state
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCanceled
}

// JobError captures a failure from one execution attempt. NonRetryable marks
// configuration errors where re-executing cannot change the outcome; the
// queue refuses retries for jobs carrying one.
type JobError struct {
	Message      string    `json:"message"`
	Stack        string    `json:"stack,omitempty"`
	NonRetryable bool      `json:"non_retryable,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewJobError creates a JobError stamped with the current time
func NewJobError(message, stack string) *JobError {
	return &JobError{
		Message:   message,
		Stack:     stack,
		Timestamp: time.Now(),
	}
}

// NewConfigError creates a non-retryable JobError for configuration
// failures, like a missing handler or executor registration
func NewConfigError(message string) *JobError {
	err := NewJobError(message, "")
	err.NonRetryable = true
	return err
}

// JobPayload carries the playbook references and data flow for a step
// execution. PreviousOutputs (keyed by step key) is how data moves between
// dependent steps; there is no shared mutable context.
type JobPayload struct {
	RunID           string                            `json:"run_id"`
	StepRunID       string                            `json:"step_run_id"`
	StepID          string                            `json:"step_id"`
	StepKey         string                            `json:"step_key"`
	StepType        string                            `json:"step_type"`
	PlaybookID      string                            `json:"playbook_id"`
	OrgID           string                            `json:"org_id,omitempty"`
	Input           map[string]interface{}            `json:"input"`
	PreviousOutputs map[string]map[string]interface{} `json:"previous_outputs"`
}

// Job is the engine's dispatchable unit corresponding to "execute this
// step-run now". Jobs are volatile: they live in the in-memory queue and are
// rebuilt from the persistent store, never persisted themselves.
//
// Invariant: Attempt <= MaxAttempts. A job whose next retry would exceed
// MaxAttempts is terminal-failed instead of rescheduled.
type Job struct {
	ID       string      `json:"id"`
	Type     JobType     `json:"type"`
	Priority JobPriority `json:"priority"`
	Status   JobStatus   `json:"status"`

	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"` // earliest execution time (backoff delay)

	Payload JobPayload `json:"payload"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	WorkerID string    `json:"worker_id,omitempty"`
	Error    *JobError `json:"error,omitempty"`
}

// NewJob creates a new queued job for the given payload
func NewJob(jobType JobType, priority JobPriority, maxAttempts int, payload JobPayload) *Job {
	return &Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Priority:    priority,
		Status:      JobStatusQueued,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		Payload:     payload,
		CreatedAt:   time.Now(),
	}
}

// IsReady returns true if the job is selectable for execution at the given
// instant: queued or retrying, with any scheduled delay elapsed.
func (j *Job) IsReady(now time.Time) bool {
	if j.Status != JobStatusQueued && j.Status != JobStatusRetrying {
		return false
	}
	if j.ScheduledAt != nil && j.ScheduledAt.After(now) {
		return false
	}
	return true
}

// Validate validates the job before enqueue
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.Type == "" {
		return fmt.Errorf("job type is required")
	}
	if j.MaxAttempts <= 0 {
		return fmt.Errorf("job max attempts must be positive")
	}
	if j.Attempt > j.MaxAttempts {
		return fmt.Errorf("job attempt %d exceeds max attempts %d", j.Attempt, j.MaxAttempts)
	}
	return nil
}
