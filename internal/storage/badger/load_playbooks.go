package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/interfaces"
	"github.com/cryptocrystian/pravado/internal/models"
)

var playbookValidator = validator.New()

// LoadPlaybooksFromFiles loads playbook definitions from TOML files in the
// specified directory and upserts them into the store. Invalid files are
// logged and skipped so one bad definition cannot block startup.
func LoadPlaybooksFromFiles(ctx context.Context, storage interfaces.PlaybookStorage, definitionsDir string, logger arbor.ILogger) error {
	if _, err := os.Stat(definitionsDir); os.IsNotExist(err) {
		logger.Debug().Str("dir", definitionsDir).Msg("Playbook definitions directory does not exist, skipping")
		return nil
	}

	logger.Info().Str("dir", definitionsDir).Msg("Loading playbook definitions from files")

	entries, err := os.ReadDir(definitionsDir)
	if err != nil {
		return fmt.Errorf("failed to read playbook definitions directory: %w", err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}

		filePath := filepath.Join(definitionsDir, entry.Name())

		tomlBytes, err := os.ReadFile(filePath)
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read playbook definition file")
			continue
		}

		var playbook models.Playbook
		if err := toml.Unmarshal(tomlBytes, &playbook); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to parse playbook definition TOML")
			continue
		}

		applyPlaybookDefaults(&playbook, entry.Name())

		if err := validatePlaybook(&playbook); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Str("playbook_id", playbook.ID).Msg("Playbook definition validation failed, skipping")
			continue
		}

		if err := storage.SavePlaybook(ctx, &playbook); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Str("playbook_id", playbook.ID).Msg("Failed to save playbook definition")
			continue
		}

		logger.Info().
			Str("file", entry.Name()).
			Str("playbook_id", playbook.ID).
			Str("name", playbook.Name).
			Int("steps", len(playbook.Steps)).
			Msg("Playbook definition loaded from file")

		loadedCount++
	}

	if loadedCount > 0 {
		logger.Info().Int("count", loadedCount).Msg("Playbook definitions loaded from files")
	} else {
		logger.Debug().Msg("No playbook definitions loaded from files")
	}

	return nil
}

// applyPlaybookDefaults fills identifiers and positions a definition file
// may omit. The playbook id defaults to the file name without extension.
func applyPlaybookDefaults(playbook *models.Playbook, fileName string) {
	if playbook.ID == "" {
		playbook.ID = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	if playbook.Version == 0 {
		playbook.Version = 1
	}
	for i := range playbook.Steps {
		step := &playbook.Steps[i]
		if step.ID == "" {
			step.ID = fmt.Sprintf("%s.%s", playbook.ID, step.Key)
		}
		if step.Position == 0 {
			step.Position = i + 1
		}
	}
}

// validatePlaybook combines tag validation, structural validation, and cron
// schedule validation
func validatePlaybook(playbook *models.Playbook) error {
	if err := playbookValidator.Struct(playbook); err != nil {
		return fmt.Errorf("field validation: %w", err)
	}
	if err := playbook.Validate(); err != nil {
		return err
	}
	if playbook.Schedule != "" {
		if _, err := cron.ParseStandard(playbook.Schedule); err != nil {
			return fmt.Errorf("invalid cron schedule %q: %w", playbook.Schedule, err)
		}
	}
	return nil
}
