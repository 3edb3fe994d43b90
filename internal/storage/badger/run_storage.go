package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/cryptocrystian/pravado/internal/interfaces"
	"github.com/cryptocrystian/pravado/internal/models"
)

// RunStorage implements the RunStorage interface for Badger. Runs and
// step-runs are the engine's source of truth; state transitions stamp
// StartedAt/CompletedAt here so callers never have to.
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunStorage) SaveRun(ctx context.Context, run *models.PlaybookRun) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, runID string) (*models.PlaybookRun, error) {
	var run models.PlaybookRun
	if err := s.db.Store().Get(runID, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (s *RunStorage) ListRuns(ctx context.Context, playbookID string, limit int) ([]*models.PlaybookRun, error) {
	query := badgerhold.Where("ID").Ne("")
	if playbookID != "" {
		query = badgerhold.Where("PlaybookID").Eq(playbookID)
	}
	query = query.SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.PlaybookRun
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.PlaybookRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *RunStorage) UpdateRunState(ctx context.Context, runID string, state models.RunState, completedAt *time.Time) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	run.State = state
	if state == models.RunStateRunning && run.StartedAt == nil {
		now := time.Now()
		run.StartedAt = &now
	}
	if completedAt != nil {
		run.CompletedAt = completedAt
	}

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to update run state: %w", err)
	}

	s.logger.Debug().
		Str("run_id", runID).
		Str("state", string(state)).
		Msg("Run state updated")

	return nil
}

func (s *RunStorage) SaveStepRun(ctx context.Context, stepRun *models.StepRun) error {
	if stepRun.ID == "" {
		return fmt.Errorf("step-run ID is required")
	}
	if stepRun.RunID == "" {
		return fmt.Errorf("step-run run ID is required")
	}
	if err := s.db.Store().Upsert(stepRun.ID, stepRun); err != nil {
		return fmt.Errorf("failed to save step-run: %w", err)
	}
	return nil
}

func (s *RunStorage) GetStepRun(ctx context.Context, stepRunID string) (*models.StepRun, error) {
	var stepRun models.StepRun
	if err := s.db.Store().Get(stepRunID, &stepRun); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("step-run not found: %s", stepRunID)
		}
		return nil, fmt.Errorf("failed to get step-run: %w", err)
	}
	return &stepRun, nil
}

func (s *RunStorage) ListStepRuns(ctx context.Context, runID string) ([]*models.StepRun, error) {
	var stepRuns []models.StepRun
	if err := s.db.Store().Find(&stepRuns, badgerhold.Where("RunID").Eq(runID)); err != nil {
		return nil, fmt.Errorf("failed to list step-runs: %w", err)
	}

	result := make([]*models.StepRun, len(stepRuns))
	for i := range stepRuns {
		result[i] = &stepRuns[i]
	}
	return result, nil
}

func (s *RunStorage) UpdateStepRunState(ctx context.Context, stepRunID string, state models.StepRunState, errMsg string) error {
	stepRun, err := s.GetStepRun(ctx, stepRunID)
	if err != nil {
		return err
	}

	stepRun.State = state
	if errMsg != "" {
		stepRun.Error = errMsg
	}
	now := time.Now()
	if state == models.StepRunStateRunning && stepRun.StartedAt == nil {
		stepRun.StartedAt = &now
	}
	if state.IsTerminal() && stepRun.CompletedAt == nil {
		stepRun.CompletedAt = &now
	}

	if err := s.db.Store().Upsert(stepRun.ID, stepRun); err != nil {
		return fmt.Errorf("failed to update step-run state: %w", err)
	}

	s.logger.Debug().
		Str("step_run_id", stepRunID).
		Str("step_key", stepRun.StepKey).
		Str("state", string(state)).
		Msg("Step-run state updated")

	return nil
}

func (s *RunStorage) SetStepRunOutput(ctx context.Context, stepRunID string, output map[string]interface{}) error {
	stepRun, err := s.GetStepRun(ctx, stepRunID)
	if err != nil {
		return err
	}

	stepRun.Output = output
	if err := s.db.Store().Upsert(stepRun.ID, stepRun); err != nil {
		return fmt.Errorf("failed to set step-run output: %w", err)
	}
	return nil
}
