// -----------------------------------------------------------------------
// Application composition root - one queue, one pool, one bus, one store
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/common"
	"github.com/cryptocrystian/pravado/internal/dispatcher"
	"github.com/cryptocrystian/pravado/internal/handlers"
	"github.com/cryptocrystian/pravado/internal/interfaces"
	"github.com/cryptocrystian/pravado/internal/models"
	"github.com/cryptocrystian/pravado/internal/queue"
	"github.com/cryptocrystian/pravado/internal/services/events"
	"github.com/cryptocrystian/pravado/internal/services/runs"
	"github.com/cryptocrystian/pravado/internal/services/scheduler"
	"github.com/cryptocrystian/pravado/internal/storage/badger"
	"github.com/cryptocrystian/pravado/internal/workers"
)

// App holds all application components and dependencies. Exactly one queue,
// worker pool, event bus, store, and dispatcher exist per process; every
// consumer receives them through injection.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager   interfaces.StorageManager
	EventService     interfaces.EventService
	Queue            *queue.Queue
	WorkerPool       *queue.WorkerPool
	Dispatcher       *dispatcher.Dispatcher
	RunService       *runs.Service
	SchedulerService interfaces.SchedulerService

	// HTTP handlers
	RunHandler      *handlers.RunHandler
	PlaybookHandler *handlers.PlaybookHandler
	StatusHandler   *handlers.StatusHandler
	WSHandler       *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Storage
	storageManager, err := badger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	// Load playbook definitions from disk before anything schedules them
	if manager, ok := storageManager.(*badger.Manager); ok {
		if err := manager.LoadPlaybooksFromFiles(context.Background(), cfg.Playbooks.DefinitionsDir); err != nil {
			logger.Warn().Err(err).Msg("Failed to load playbook definitions")
		}
	}

	// Event bus
	app.EventService = events.NewService(logger)

	// Queue and worker pool
	app.Queue = queue.NewQueue(engineQueueConfig(cfg.Engine), logger)
	app.WorkerPool = queue.NewWorkerPool(app.Queue, logger)

	// Dispatcher wires the queue, store, and bus together
	app.Dispatcher = dispatcher.New(app.Queue, app.StorageManager, app.EventService, logger)
	app.Dispatcher.RegisterExecutor(workers.NewTemplateExecutor(logger))
	app.Queue.RegisterHandler(models.JobTypePlaybookStep, app.Dispatcher.JobHandler())
	app.WorkerPool.SetCompletionFunc(app.Dispatcher.HandleJobCompletion)

	// Run lifecycle and scheduling
	app.RunService = runs.NewService(app.StorageManager, app.Dispatcher, logger)
	app.SchedulerService = scheduler.NewService(app.StorageManager, app.RunService, logger)

	// HTTP handlers
	app.RunHandler = handlers.NewRunHandler(app.RunService, logger)
	app.PlaybookHandler = handlers.NewPlaybookHandler(app.StorageManager, logger)
	app.StatusHandler = handlers.NewStatusHandler(app.Queue, app.WorkerPool, logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger, &cfg.WebSocket)

	logger.Info().Msg("Application initialized")

	return app, nil
}

// Start launches the worker pool and scheduler
func (a *App) Start() error {
	if err := a.WorkerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close shuts components down in dependency order: stop triggering new
// runs, drain in-flight work, then release the bus and store
func (a *App) Close() {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}
	if a.WorkerPool != nil {
		if err := a.WorkerPool.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop worker pool")
		}
	}
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}

	a.Logger.Info().Msg("Application closed")
}

// engineQueueConfig maps the TOML engine section onto the queue config,
// falling back to queue defaults for anything unset or malformed
func engineQueueConfig(engine common.EngineConfig) queue.Config {
	cfg := queue.NewDefaultConfig()

	cfg.PollInterval = common.ParseDuration(engine.PollInterval, cfg.PollInterval)
	if engine.Concurrency > 0 {
		cfg.Concurrency = engine.Concurrency
	}
	if engine.MaxAttempts > 0 {
		cfg.MaxAttempts = engine.MaxAttempts
	}
	cfg.RetryBaseDelay = common.ParseDuration(engine.RetryBaseDelay, cfg.RetryBaseDelay)
	if engine.RetryMultiplier > 0 {
		cfg.RetryMultiplier = engine.RetryMultiplier
	}
	cfg.RetryMaxDelay = common.ParseDuration(engine.RetryMaxDelay, cfg.RetryMaxDelay)
	cfg.CleanupMaxAge = common.ParseDuration(engine.CleanupMaxAge, cfg.CleanupMaxAge)
	cfg.CleanupInterval = common.ParseDuration(engine.CleanupInterval, cfg.CleanupInterval)

	return cfg
}
