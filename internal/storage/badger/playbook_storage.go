package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/cryptocrystian/pravado/internal/interfaces"
	"github.com/cryptocrystian/pravado/internal/models"
)

// PlaybookStorage implements the PlaybookStorage interface for Badger.
// Steps are stored embedded in their playbook; ListSteps orders them by
// position on the way out.
type PlaybookStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPlaybookStorage creates a new PlaybookStorage instance
func NewPlaybookStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PlaybookStorage {
	return &PlaybookStorage{
		db:     db,
		logger: logger,
	}
}

func (s *PlaybookStorage) SavePlaybook(ctx context.Context, playbook *models.Playbook) error {
	if playbook.ID == "" {
		return fmt.Errorf("playbook ID is required")
	}
	if err := playbook.Validate(); err != nil {
		return fmt.Errorf("invalid playbook: %w", err)
	}

	now := time.Now()
	if playbook.CreatedAt.IsZero() {
		playbook.CreatedAt = now
	}
	playbook.UpdatedAt = now

	if err := s.db.Store().Upsert(playbook.ID, playbook); err != nil {
		return fmt.Errorf("failed to save playbook: %w", err)
	}
	return nil
}

func (s *PlaybookStorage) GetPlaybook(ctx context.Context, playbookID string) (*models.Playbook, error) {
	var playbook models.Playbook
	if err := s.db.Store().Get(playbookID, &playbook); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("playbook not found: %s", playbookID)
		}
		return nil, fmt.Errorf("failed to get playbook: %w", err)
	}
	return &playbook, nil
}

func (s *PlaybookStorage) ListPlaybooks(ctx context.Context) ([]*models.Playbook, error) {
	var playbooks []models.Playbook
	if err := s.db.Store().Find(&playbooks, badgerhold.Where("ID").Ne("").SortBy("Name")); err != nil {
		return nil, fmt.Errorf("failed to list playbooks: %w", err)
	}

	result := make([]*models.Playbook, len(playbooks))
	for i := range playbooks {
		result[i] = &playbooks[i]
	}
	return result, nil
}

func (s *PlaybookStorage) DeletePlaybook(ctx context.Context, playbookID string) error {
	if err := s.db.Store().Delete(playbookID, &models.Playbook{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("playbook not found: %s", playbookID)
		}
		return fmt.Errorf("failed to delete playbook: %w", err)
	}
	return nil
}

// ListSteps returns the playbook's steps ordered by position
func (s *PlaybookStorage) ListSteps(ctx context.Context, playbookID string) ([]models.Step, error) {
	playbook, err := s.GetPlaybook(ctx, playbookID)
	if err != nil {
		return nil, err
	}

	steps := make([]models.Step, len(playbook.Steps))
	copy(steps, playbook.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Position < steps[j].Position
	})
	return steps, nil
}
