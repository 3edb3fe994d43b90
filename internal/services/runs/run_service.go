// Package runs owns the lifecycle of playbook runs: creating the run and
// its step-run rows, handing the run to the dispatcher, and reporting
// status.
package runs

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/dispatcher"
	"github.com/cryptocrystian/pravado/internal/interfaces"
	"github.com/cryptocrystian/pravado/internal/models"
)

// RunStatus is a run together with its step-run records
type RunStatus struct {
	Run      *models.PlaybookRun `json:"run"`
	StepRuns []*models.StepRun   `json:"step_runs"`
}

// Service creates, starts, and cancels playbook runs
type Service struct {
	storage    interfaces.StorageManager
	dispatcher *dispatcher.Dispatcher
	logger     arbor.ILogger
}

// NewService creates a run service
func NewService(storage interfaces.StorageManager, d *dispatcher.Dispatcher, logger arbor.ILogger) *Service {
	return &Service{
		storage:    storage,
		dispatcher: d,
		logger:     logger,
	}
}

// CreateRun persists a queued run with one waiting step-run per playbook
// step. Nothing is enqueued until StartRun.
func (s *Service) CreateRun(ctx context.Context, playbookID string, priority models.JobPriority) (*models.PlaybookRun, error) {
	playbook, err := s.storage.PlaybookStorage().GetPlaybook(ctx, playbookID)
	if err != nil {
		return nil, fmt.Errorf("load playbook %s: %w", playbookID, err)
	}

	steps, err := s.storage.PlaybookStorage().ListSteps(ctx, playbookID)
	if err != nil {
		return nil, fmt.Errorf("load steps for playbook %s: %w", playbookID, err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("playbook %s has no steps", playbookID)
	}

	run := models.NewPlaybookRun(playbook.ID, playbook.OrgID, priority)
	if err := s.storage.RunStorage().SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	for _, step := range steps {
		stepRun := models.NewStepRun(run.ID, step)
		if err := s.storage.RunStorage().SaveStepRun(ctx, stepRun); err != nil {
			return nil, fmt.Errorf("save step-run for step %s: %w", step.Key, err)
		}
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("playbook_id", playbook.ID).
		Str("priority", string(run.Priority)).
		Int("steps", len(steps)).
		Msg("Playbook run created")

	return run, nil
}

// StartRun hands a created run to the dispatcher, which enqueues every step
// with no unmet dependency
func (s *Service) StartRun(ctx context.Context, runID string) error {
	return s.dispatcher.DispatchPlaybookRun(ctx, runID)
}

// TriggerRun creates and starts a run in one call
func (s *Service) TriggerRun(ctx context.Context, playbookID string, priority models.JobPriority) (*models.PlaybookRun, error) {
	run, err := s.CreateRun(ctx, playbookID, priority)
	if err != nil {
		return nil, err
	}
	if err := s.StartRun(ctx, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

// CancelRun cancels a run and all of its outstanding work
func (s *Service) CancelRun(ctx context.Context, runID string) error {
	return s.dispatcher.CancelPlaybookRun(ctx, runID)
}

// GetRunStatus returns a run with its step-runs
func (s *Service) GetRunStatus(ctx context.Context, runID string) (*RunStatus, error) {
	run, err := s.storage.RunStorage().GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	stepRuns, err := s.storage.RunStorage().ListStepRuns(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load step-runs: %w", err)
	}
	return &RunStatus{Run: run, StepRuns: stepRuns}, nil
}

// ListRuns returns recent runs for a playbook, newest first
func (s *Service) ListRuns(ctx context.Context, playbookID string, limit int) ([]*models.PlaybookRun, error) {
	return s.storage.RunStorage().ListRuns(ctx, playbookID, limit)
}
