package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/handlers"
	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
	"github.com/ternarybob/fides/internal/queue"
	"github.com/ternarybob/fides/internal/services/alerts"
	"github.com/ternarybob/fides/internal/services/companies"
	"github.com/ternarybob/fides/internal/services/crawlworker"
	"github.com/ternarybob/fides/internal/services/detector"
	"github.com/ternarybob/fides/internal/services/events"
	"github.com/ternarybob/fides/internal/services/evidence"
	"github.com/ternarybob/fides/internal/services/extract"
	"github.com/ternarybob/fides/internal/services/fetcher"
	"github.com/ternarybob/fides/internal/services/scheduler"
	"github.com/ternarybob/fides/internal/services/status"
	badgerstore "github.com/ternarybob/fides/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage (Badger, shared by collections and queues)
	StorageManager interfaces.StorageManager
	storage        *badgerstore.Manager

	// Pipeline plumbing
	EventService interfaces.EventService
	QueueManager interfaces.QueueManager
	WorkerPool   interfaces.WorkerPool

	// Domain services
	CompanyService   *companies.Service
	SchedulerService interfaces.SchedulerService
	StatusService    *status.Service

	// Owner every unattributed API write lands on
	DefaultUserID string

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	CompanyHandler *handlers.CompanyHandler
	CrawlHandler   *handlers.CrawlHandler
	EventHandler   *handlers.EventHandler
	StatusHandler  *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Start workers AFTER all handlers are initialized so a fast job
	// cannot race the wiring
	if cfg.Roles.Workers {
		if err := app.WorkerPool.Start(); err != nil {
			return nil, fmt.Errorf("failed to start worker pool: %w", err)
		}
		app.Logger.Debug().Msg("Worker pool started")
	}

	// Log initialization summary
	logger.Info().
		Bool("api", cfg.Roles.API).
		Bool("scheduler", cfg.Roles.Scheduler).
		Bool("workers", cfg.Roles.Workers).
		Bool("demo_mode", cfg.Fetcher.DemoMode).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.storage = storageManager
	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order.
//
// PIPELINE ARCHITECTURE:
// 1. EventService - in-process telemetry bus
// 2. QueueManager (Badger-backed) - durable named job queues
// 3. CompanyService - company CRUD, seed targets, crawl launch
// 4. Worker chain - fetch -> extract -> detect -> evidence -> email,
//    registered on the pool when the workers role is enabled
// 5. SchedulerService - cron crawl cadence with store-lock leadership
// 6. StatusService - bus subscriber backing /api/status
func (a *App) initServices() error {
	// 1. Event bus
	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	// 2. Queue manager on the shared Badger instance
	badgerDB := a.storage.DB().Store().Badger()
	queueMgr, err := queue.NewBadgerQueue(badgerDB, a.Config.Queue, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize queue manager: %w", err)
	}
	if err := queueMgr.Start(); err != nil {
		return fmt.Errorf("failed to start queue manager: %w", err)
	}
	a.QueueManager = queueMgr
	a.Logger.Debug().Msg("Queue manager initialized")

	// 3. Default owner for unattributed API writes
	if err := a.ensureDefaultOwner(); err != nil {
		return fmt.Errorf("failed to ensure default owner: %w", err)
	}

	// 4. Company service (create, seed targets, crawl launch)
	a.CompanyService = companies.NewService(a.StorageManager, a.QueueManager, a.Logger)
	a.Logger.Debug().Msg("Company service initialized")

	// 5. Worker pool and the crawl -> evidence -> email handler chain
	pool := queue.NewPool(a.QueueManager, a.Config.Queue, a.Logger)
	a.WorkerPool = pool

	if a.Config.Roles.Workers {
		if err := a.registerWorkers(pool); err != nil {
			return fmt.Errorf("failed to register workers: %w", err)
		}
	} else {
		a.Logger.Info().Msg("Workers role disabled, no job handlers registered")
	}

	// 6. Scheduler (leader-elected crawl cadence)
	if a.Config.Roles.Scheduler {
		a.SchedulerService = scheduler.NewService(
			a.StorageManager,
			a.CompanyService,
			a.EventService,
			a.Config.Scheduler,
			a.Logger,
		)
		if err := a.SchedulerService.Start(a.Config.Scheduler.Schedule); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		a.Logger.Info().Msg("Scheduler role disabled")
	}

	// 7. Status aggregator (SchedulerService may be nil here)
	a.StatusService = status.NewService(
		a.StorageManager,
		a.QueueManager,
		a.SchedulerService,
		a.EventService,
		a.Logger,
	)
	a.StatusService.SubscribeToPipelineEvents()
	a.Logger.Debug().Msg("Status service initialized")

	return nil
}

// registerWorkers wires the three queue handlers onto the pool with
// their configured concurrency.
func (a *App) registerWorkers(pool *queue.Pool) error {
	// Fetch adapter (demo table + HTTP)
	fetchService, err := fetcher.NewService(a.Config.Fetcher, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize fetcher: %w", err)
	}

	// Claim extraction and change detection
	extractor := extract.NewExtractor(a.Logger)
	alertDispatcher := alerts.NewDispatcher(
		a.StorageManager,
		a.QueueManager,
		a.EventService,
		a.Config.Alerts,
		a.Logger,
	)
	detectorService := detector.NewService(
		a.StorageManager,
		extractor,
		alertDispatcher,
		a.QueueManager,
		a.EventService,
		a.Config.Evidence,
		a.Logger,
	)

	crawlWorker := crawlworker.NewWorker(
		a.StorageManager,
		fetchService,
		detectorService,
		a.EventService,
		a.Logger,
	)

	// Evidence PDF pipeline
	var demoPDFs *evidence.DemoPDFs
	if a.Config.Fetcher.DemoMode {
		demoPDFs = evidence.NewDemoPDFs()
	}
	pdfParser := evidence.NewParser(demoPDFs, a.Config.Fetcher.UserAgent, a.Logger)
	evidenceWorker := evidence.NewWorker(
		a.StorageManager,
		pdfParser,
		a.EventService,
		a.Config.Evidence,
		a.Logger,
	)

	// Alert email delivery
	mailer := alerts.NewSender(a.Config.SMTP, a.Logger)
	emailWorker := alerts.NewEmailWorker(a.StorageManager, mailer, a.EventService, a.Logger)

	pool.RegisterHandler(models.QueueCrawlTarget, a.Config.Workers.CrawlConcurrency, crawlWorker.HandleCrawlTarget)
	pool.RegisterHandler(models.QueueProcessEvidence, a.Config.Workers.EvidenceConcurrency, evidenceWorker.HandleProcessEvidence)
	pool.RegisterHandler(models.QueueSendAlertEmail, a.Config.Workers.EmailConcurrency, emailWorker.HandleSendEmail)

	return nil
}

// ensureDefaultOwner looks up the user seeded from the configured
// alert recipient, creating it on first startup. API writes without an
// X-User-ID header are attributed to this user.
func (a *App) ensureDefaultOwner() error {
	ctx := context.Background()
	email := a.Config.Alerts.DefaultRecipient

	user, err := a.StorageManager.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to look up default owner: %w", err)
		}

		user = &models.User{
			ID:        common.NewUserID(),
			Email:     email,
			Name:      "Default Owner",
			CreatedAt: time.Now().UTC(),
		}
		if err := a.StorageManager.Users().SaveUser(ctx, user); err != nil {
			return fmt.Errorf("failed to create default owner: %w", err)
		}
		a.Logger.Info().
			Str("user_id", user.ID).
			Str("email", email).
			Msg("Default owner created")
	}

	a.DefaultUserID = user.ID
	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)

	a.CompanyHandler = handlers.NewCompanyHandler(a.CompanyService, a.DefaultUserID, a.Logger)

	a.CrawlHandler = handlers.NewCrawlHandler(a.CompanyService, a.StorageManager.Runs(), a.Logger)

	a.EventHandler = handlers.NewEventHandler(a.StorageManager.Events(), a.Logger)

	a.StatusHandler = handlers.NewStatusHandler(a.StatusService, a.Logger)

	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	// Stop scheduler service
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	// Stop the worker pool before the queue so no handler loses its
	// backing store mid-job
	if a.WorkerPool != nil {
		if err := a.WorkerPool.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop worker pool")
		} else {
			a.Logger.Info().Msg("Worker pool stopped")
		}
	}

	// Stop queue manager (janitor goroutine)
	if a.QueueManager != nil {
		if err := a.QueueManager.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop queue manager")
		}
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
