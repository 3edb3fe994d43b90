package models

import "time"

// WorkerStatus represents the state of a worker slot
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// Worker is a logical executor slot in the pool. Workers are reused slots,
// not one-shot goroutines: a pool of N workers exists for the process
// lifetime and a worker's identity is stable across jobs.
type Worker struct {
	ID              string       `json:"id"`
	Status          WorkerStatus `json:"status"`
	CurrentJobID    string       `json:"current_job_id,omitempty"`
	ProcessedCount  int          `json:"processed_count"`
	LastCompletedAt *time.Time   `json:"last_completed_at,omitempty"`
}
