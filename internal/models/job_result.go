package models

import "time"

// LogLevel is the severity of a job log entry
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// JobLogEntry is one leveled message produced during an execution attempt
type JobLogEntry struct {
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// JobResult is the outcome of one execution attempt. ExecuteJob always
// returns one - handler errors and panics are converted, never propagated.
type JobResult struct {
	Success  bool                   `json:"success"`
	Output   map[string]interface{} `json:"output,omitempty"`
	Error    *JobError              `json:"error,omitempty"`
	Duration time.Duration          `json:"duration"`
	Logs     []JobLogEntry          `json:"logs,omitempty"`
}

// NewSuccessResult creates a successful result with the given output
func NewSuccessResult(output map[string]interface{}) *JobResult {
	return &JobResult{
		Success: true,
		Output:  output,
	}
}

// NewFailureResult creates a failed result carrying the given error
func NewFailureResult(err *JobError) *JobResult {
	return &JobResult{
		Success: false,
		Error:   err,
	}
}
