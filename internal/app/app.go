package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/handlers"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/services/assets"
	"github.com/ternarybob/reclaim/internal/services/batch"
	"github.com/ternarybob/reclaim/internal/services/cleanup"
	"github.com/ternarybob/reclaim/internal/services/duplicates"
	"github.com/ternarybob/reclaim/internal/services/events"
	"github.com/ternarybob/reclaim/internal/services/extractor"
	"github.com/ternarybob/reclaim/internal/services/references"
	"github.com/ternarybob/reclaim/internal/services/scheduler"
	"github.com/ternarybob/reclaim/internal/services/sources"
	"github.com/ternarybob/reclaim/internal/services/status"
	"github.com/ternarybob/reclaim/internal/services/transform"
	"github.com/ternarybob/reclaim/internal/services/whitelist"
	"github.com/ternarybob/reclaim/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService

	// Core services
	StatusStore       *status.Store
	Inventory         *assets.Service
	SourceRegistry    *sources.Registry
	Extractor         *extractor.Extractor
	WhitelistService  *whitelist.Service
	ReferenceScanner  *references.Scanner
	ReferenceService  *references.Service
	BrokenLinkService *references.BrokenLinks
	DuplicateScanner  *duplicates.Scanner
	DuplicateService  *duplicates.Service
	Recompressor      *transform.Recompressor
	BatchExecutor     *batch.Executor
	CleanupLogService *cleanup.Service
	SchedulerService  *scheduler.Service

	// HTTP handlers
	APIHandler        *handlers.APIHandler
	WSHandler         *handlers.WebSocketHandler
	ReferenceHandler  *handlers.ReferenceHandler
	BrokenLinkHandler *handlers.BrokenLinkHandler
	DuplicateHandler  *handlers.DuplicateHandler
	WhitelistHandler  *handlers.WhitelistHandler
	BatchHandler      *handlers.BatchHandler
	CleanupLogHandler *handlers.CleanupLogHandler
	SchedulerHandler  *handlers.SchedulerHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)
	if cfg.Logging.Level == "debug" {
		if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to subscribe event logger")
		}
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Bool("batch_enabled", cfg.Batch.Enabled).
		Int("backends", len(cfg.Assets.Backends)).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order.
// The startup sweep runs before any scanner so that passes interrupted by the
// previous process do not block new ones.
func (a *App) initServices() error {
	a.StatusStore = status.NewStore(a.StorageManager.StatusStorage(), a.EventService, a.Logger)
	status.NewInitializer(a.StatusStore, a.Logger).Run(context.Background())

	a.Inventory = assets.NewService(a.StorageManager.AssetStorage(), a.Config, a.Logger)
	a.SourceRegistry = sources.NewRegistry(a.StorageManager.ContentStorage(), a.Config, a.Logger)
	a.Extractor = extractor.NewExtractor(a.Logger)
	a.WhitelistService = whitelist.NewService(a.StorageManager.WhitelistStorage(), a.Logger)

	a.ReferenceScanner = references.NewScanner(
		a.StatusStore,
		a.Inventory,
		a.SourceRegistry,
		a.Extractor,
		a.StorageManager,
		a.WhitelistService,
		a.Config,
		a.Logger,
	)
	a.ReferenceService = references.NewService(a.StatusStore, a.Inventory, a.StorageManager, a.Config, a.Logger)
	a.BrokenLinkService = references.NewBrokenLinks(a.StatusStore, a.StorageManager.BrokenLinkStorage(), a.WhitelistService, a.Logger)

	a.DuplicateScanner = duplicates.NewScanner(a.StatusStore, a.Inventory, a.StorageManager, a.Config, a.Logger)
	a.DuplicateService = duplicates.NewService(a.StatusStore, a.DuplicateScanner, a.Inventory, a.StorageManager, a.Config, a.Logger)

	var invoker interfaces.TransformInvoker
	if a.Config.Batch.Enabled {
		a.Recompressor = transform.NewRecompressor(a.Config, a.Logger)
		invoker = a.Recompressor
	}
	a.BatchExecutor = batch.NewExecutor(
		a.StatusStore,
		a.Inventory,
		invoker,
		a.StorageManager.ProcessingLogStorage(),
		a.ReferenceService,
		a.Config,
		a.Logger,
	)

	a.CleanupLogService = cleanup.NewService(a.StorageManager.CleanupLogStorage(), a.Logger)

	a.SchedulerService = scheduler.NewService(a.StorageManager, a.ReferenceScanner, a.DuplicateScanner, a.Config, a.Logger)
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.StatusStore, a.Config, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.StatusStore, a.Logger)
	a.ReferenceHandler = handlers.NewReferenceHandler(a.ReferenceScanner, a.ReferenceService, a.Logger)
	a.BrokenLinkHandler = handlers.NewBrokenLinkHandler(a.ReferenceScanner, a.BrokenLinkService, a.Logger)
	a.DuplicateHandler = handlers.NewDuplicateHandler(a.DuplicateScanner, a.DuplicateService, a.Logger)
	a.WhitelistHandler = handlers.NewWhitelistHandler(a.WhitelistService, a.Logger)
	a.BatchHandler = handlers.NewBatchHandler(a.BatchExecutor, a.Logger)
	a.CleanupLogHandler = handlers.NewCleanupLogHandler(a.CleanupLogService, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService, a.Logger)
}

// Close stops background work and closes all application resources
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	// Detached passes write to storage until they finish
	if a.ReferenceScanner != nil {
		a.ReferenceScanner.Wait()
	}
	if a.DuplicateScanner != nil {
		a.DuplicateScanner.Wait()
	}
	if a.BatchExecutor != nil {
		if _, err := a.BatchExecutor.CancelTask(context.Background()); err == nil {
			a.Logger.Info().Msg("Running batch task cancelled for shutdown")
		}
		a.BatchExecutor.Wait()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
