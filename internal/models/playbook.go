// -----------------------------------------------------------------------
// Playbook - workflow definition, runs, and step-runs
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepConfig is the step author's configuration. Dependencies may be declared
// explicitly, or implied by {{steps.<key>...}} references inside the input
// template - the dispatcher honors both.
type StepConfig struct {
	Dependencies []string               `json:"dependencies,omitempty" toml:"dependencies"`
	Input        string                 `json:"input,omitempty" toml:"input"`
	Params       map[string]interface{} `json:"params,omitempty" toml:"params"`
}

// Step is one node in a playbook's graph
type Step struct {
	ID          string     `json:"id" toml:"id"`
	Key         string     `json:"key" toml:"key" validate:"required"`
	Type        string     `json:"type" toml:"type" validate:"required"`
	Name        string     `json:"name,omitempty" toml:"name"`
	Position    int        `json:"position" toml:"position"`
	NextStepKey string     `json:"next_step_key,omitempty" toml:"next_step_key"`
	Config      StepConfig `json:"config" toml:"config"`
}

// Playbook is a named, versioned definition of a graph-structured workflow
type Playbook struct {
	ID        string    `json:"id" toml:"id"`
	Name      string    `json:"name" toml:"name" validate:"required"`
	OrgID     string    `json:"org_id,omitempty" toml:"org_id"`
	Version   int       `json:"version" toml:"version"`
	Schedule  string    `json:"schedule,omitempty" toml:"schedule"` // optional cron expression
	Enabled   bool      `json:"enabled" toml:"enabled"`
	Steps     []Step    `json:"steps" toml:"steps" validate:"min=1,dive"`
	CreatedAt time.Time `json:"created_at" toml:"-"`
	UpdatedAt time.Time `json:"updated_at" toml:"-"`
}

// Validate checks structural rules the validator tags cannot express
func (p *Playbook) Validate() error {
	keys := make(map[string]bool, len(p.Steps))
	for _, step := range p.Steps {
		if keys[step.Key] {
			return fmt.Errorf("duplicate step key: %s", step.Key)
		}
		keys[step.Key] = true
	}
	for _, step := range p.Steps {
		for _, dep := range step.Config.Dependencies {
			if !keys[dep] {
				return fmt.Errorf("step %s depends on unknown step key: %s", step.Key, dep)
			}
		}
	}
	return nil
}

// RunState represents the lifecycle state of a playbook run
type RunState string

const (
	RunStateQueued    RunState = "queued"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
	RunStateCanceled  RunState = "canceled"
)

// IsTerminal returns true if the run state is final
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed || s == RunStateCanceled
}

// PlaybookRun is one execution instance of a playbook
type PlaybookRun struct {
	ID          string      `json:"id"`
	PlaybookID  string      `json:"playbook_id"`
	OrgID       string      `json:"org_id,omitempty"`
	State       RunState    `json:"state"`
	Priority    JobPriority `json:"priority"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// NewPlaybookRun creates a queued run for the given playbook
func NewPlaybookRun(playbookID, orgID string, priority JobPriority) *PlaybookRun {
	if priority == "" {
		priority = JobPriorityMedium
	}
	return &PlaybookRun{
		ID:         uuid.New().String(),
		PlaybookID: playbookID,
		OrgID:      orgID,
		State:      RunStateQueued,
		Priority:   priority,
		CreatedAt:  time.Now(),
	}
}

// StepRunState represents the lifecycle state of a step within a run
type StepRunState string

const (
	StepRunStateWaiting   StepRunState = "waiting_for_dependencies"
	StepRunStateQueued    StepRunState = "queued"
	StepRunStateRunning   StepRunState = "running"
	StepRunStateSucceeded StepRunState = "succeeded"
	StepRunStateFailed    StepRunState = "failed"
	StepRunStateCanceled  StepRunState = "canceled"
)

// IsTerminal returns true if the step-run state is final
func (s StepRunState) IsTerminal() bool {
	return s == StepRunStateSucceeded || s == StepRunStateFailed || s == StepRunStateCanceled
}

// IsActive returns true for states a run cancellation must sweep
func (s StepRunState) IsActive() bool {
	return s == StepRunStateWaiting || s == StepRunStateQueued || s == StepRunStateRunning
}

// StepRun is the execution record for one step within one run. The store owns
// these rows; the engine mirrors only transient scheduling state into its Jobs.
type StepRun struct {
	ID          string                 `json:"id"`
	RunID       string                 `json:"run_id"`
	StepID      string                 `json:"step_id"`
	StepKey     string                 `json:"step_key"`
	State       StepRunState           `json:"state"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// NewStepRun creates a step-run waiting on its dependencies
func NewStepRun(runID string, step Step) *StepRun {
	input := make(map[string]interface{}, len(step.Config.Params)+1)
	for k, v := range step.Config.Params {
		input[k] = v
	}
	if step.Config.Input != "" {
		input["input"] = step.Config.Input
	}
	return &StepRun{
		ID:      uuid.New().String(),
		RunID:   runID,
		StepID:  step.ID,
		StepKey: step.Key,
		State:   StepRunStateWaiting,
		Input:   input,
	}
}
