package interfaces

import (
	"context"
	"time"

	"github.com/cryptocrystian/pravado/internal/models"
)

// PlaybookStorage persists playbook definitions
type PlaybookStorage interface {
	SavePlaybook(ctx context.Context, playbook *models.Playbook) error
	GetPlaybook(ctx context.Context, playbookID string) (*models.Playbook, error)
	ListPlaybooks(ctx context.Context) ([]*models.Playbook, error)
	DeletePlaybook(ctx context.Context, playbookID string) error

	// ListSteps returns the playbook's steps ordered by position
	ListSteps(ctx context.Context, playbookID string) ([]models.Step, error)
}

// RunStorage persists playbook runs and step-runs. This is the engine's
// source of truth; the queue only mirrors transient scheduling state.
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.PlaybookRun) error
	GetRun(ctx context.Context, runID string) (*models.PlaybookRun, error)
	ListRuns(ctx context.Context, playbookID string, limit int) ([]*models.PlaybookRun, error)
	UpdateRunState(ctx context.Context, runID string, state models.RunState, completedAt *time.Time) error

	SaveStepRun(ctx context.Context, stepRun *models.StepRun) error
	GetStepRun(ctx context.Context, stepRunID string) (*models.StepRun, error)
	ListStepRuns(ctx context.Context, runID string) ([]*models.StepRun, error)
	UpdateStepRunState(ctx context.Context, stepRunID string, state models.StepRunState, errMsg string) error
	SetStepRunOutput(ctx context.Context, stepRunID string, output map[string]interface{}) error
}

// StorageManager provides access to all storage implementations
type StorageManager interface {
	PlaybookStorage() PlaybookStorage
	RunStorage() RunStorage
	Close() error
}
