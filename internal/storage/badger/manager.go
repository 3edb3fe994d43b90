package badger

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/common"
	"github.com/cryptocrystian/pravado/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	playbook interfaces.PlaybookStorage
	run      interfaces.RunStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		playbook: NewPlaybookStorage(db, logger),
		run:      NewRunStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// PlaybookStorage returns the Playbook storage interface
func (m *Manager) PlaybookStorage() interfaces.PlaybookStorage {
	return m.playbook
}

// RunStorage returns the Run storage interface
func (m *Manager) RunStorage() interfaces.RunStorage {
	return m.run
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// LoadPlaybooksFromFiles loads playbook definitions from TOML files
func (m *Manager) LoadPlaybooksFromFiles(ctx context.Context, dirPath string) error {
	return LoadPlaybooksFromFiles(ctx, m.playbook, dirPath, m.logger)
}
