// Package scheduler triggers runs for playbooks carrying a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/interfaces"
	"github.com/cryptocrystian/pravado/internal/models"
	"github.com/cryptocrystian/pravado/internal/services/runs"
)

// Service implements SchedulerService. Each enabled playbook with a
// schedule gets one cron entry that triggers a run at its default priority.
type Service struct {
	storage    interfaces.StorageManager
	runService *runs.Service
	cron       *cron.Cron
	logger     arbor.ILogger

	mu      sync.Mutex
	entries map[string]cron.EntryID // playbook id -> cron entry
	running bool
}

// NewService creates a new scheduler service
func NewService(storage interfaces.StorageManager, runService *runs.Service, logger arbor.ILogger) interfaces.SchedulerService {
	return &Service{
		storage:    storage,
		runService: runService,
		cron:       cron.New(),
		logger:     logger,
		entries:    make(map[string]cron.EntryID),
	}
}

// Start registers every scheduled playbook and begins the cron loop
func (s *Service) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.registerScheduledPlaybooks(); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop. Already-triggered runs keep executing in the
// worker pool; the pool's drain handles them on shutdown.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// Reload re-reads playbooks from the store and rebuilds the cron entries.
// Call after playbook definitions change.
func (s *Service) Reload() error {
	s.mu.Lock()
	for playbookID, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, playbookID)
	}
	s.mu.Unlock()

	return s.registerScheduledPlaybooks()
}

func (s *Service) registerScheduledPlaybooks() error {
	ctx := context.Background()
	playbooks, err := s.storage.PlaybookStorage().ListPlaybooks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list playbooks for scheduling: %w", err)
	}

	registered := 0
	for _, playbook := range playbooks {
		if !playbook.Enabled || playbook.Schedule == "" {
			continue
		}

		playbookID := playbook.ID
		entryID, err := s.cron.AddFunc(playbook.Schedule, func() {
			s.triggerRun(playbookID)
		})
		if err != nil {
			s.logger.Warn().Err(err).
				Str("playbook_id", playbookID).
				Str("schedule", playbook.Schedule).
				Msg("Failed to register playbook schedule")
			continue
		}

		s.mu.Lock()
		s.entries[playbookID] = entryID
		s.mu.Unlock()

		s.logger.Info().
			Str("playbook_id", playbookID).
			Str("schedule", playbook.Schedule).
			Msg("Playbook schedule registered")
		registered++
	}

	if registered == 0 {
		s.logger.Debug().Msg("No scheduled playbooks registered")
	}
	return nil
}

// triggerRun creates and starts a run for a scheduled playbook
func (s *Service) triggerRun(playbookID string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("playbook_id", playbookID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Panic recovered in scheduled run trigger")
		}
	}()

	ctx := context.Background()
	run, err := s.runService.TriggerRun(ctx, playbookID, models.JobPriorityMedium)
	if err != nil {
		s.logger.Error().Err(err).
			Str("playbook_id", playbookID).
			Msg("Scheduled run trigger failed")
		return
	}

	s.logger.Info().
		Str("playbook_id", playbookID).
		Str("run_id", run.ID).
		Msg("Scheduled run triggered")
}
