package models

import "time"

// RunEventType identifies a run/step lifecycle event. The set is closed:
// streaming transports switch on these values.
type RunEventType string

const (
	EventRunUpdated      RunEventType = "run.updated"
	EventRunCompleted    RunEventType = "run.completed"
	EventRunFailed       RunEventType = "run.failed"
	EventStepUpdated     RunEventType = "step.updated"
	EventStepLogAppended RunEventType = "step.log.appended"
	EventStepCompleted   RunEventType = "step.completed"
	EventStepFailed      RunEventType = "step.failed"
)

// RunEvent is one lifecycle notification delivered to live subscribers of a
// run. Events are not buffered or replayed; durable history lives in the store.
type RunEvent struct {
	Type      RunEventType           `json:"type"`
	RunID     string                 `json:"run_id"`
	StepKey   string                 `json:"step_key,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// NewRunEvent creates an event stamped with the current time
func NewRunEvent(eventType RunEventType, runID, stepKey string, payload map[string]interface{}) RunEvent {
	return RunEvent{
		Type:      eventType,
		RunID:     runID,
		StepKey:   stepKey,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
