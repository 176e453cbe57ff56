package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/dealflow/internal/application/dispatcher"
	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/application/retention"
	"github.com/garyjia/dealflow/internal/application/signing"
	"github.com/garyjia/dealflow/internal/application/workflow"
	"github.com/garyjia/dealflow/internal/infrastructure/metrics"
	"github.com/garyjia/dealflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/dealflow/internal/infrastructure/storage"
	"github.com/garyjia/dealflow/internal/infrastructure/worker"
	httpapi "github.com/garyjia/dealflow/internal/interfaces/http"
	"github.com/garyjia/dealflow/pkg/database"
	"github.com/garyjia/dealflow/pkg/utils"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config  *Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	// Infrastructure
	conn         *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle
	sessions     *SessionBundle
	objects      *storage.LocalObjectStore

	// Application
	dispatcher  dispatcher.Dispatcher
	application *ApplicationBundle

	// Workers and transport
	workers *worker.WorkerManager
	server  *httpapi.Server

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
	}, nil
}

// Start initializes all components and starts the background workers.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Session store
// 3. Object storage
// 4. Dispatcher and application services
// 5. Workers
// 6. HTTP server (constructed, not listening)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	sessions, err := ProvideSessionStore(c.ctx, &c.config.Sessions, &c.config.Redis, c.config.Signing, c.logger.Named("sessions"))
	if err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	c.sessions = sessions
	c.logger.Info("Session store initialized", zap.String("backend", c.config.Sessions.Backend))

	objects, err := ProvideObjectStore(&c.config.Storage, c.logger.Named("storage"))
	if err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.objects = objects
	c.logger.Info("Storage initialized", zap.String("base_dir", c.config.Storage.BaseDir))

	c.dispatcher = ProvideDispatcher(c.metrics, c.logger)
	application, err := ProvideApplication(&ApplicationDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Sessions:   c.sessions.Store,
		Objects:    c.objects,
		Dispatcher: c.dispatcher,
		Metrics:    c.metrics,
		Config:     c.config,
		Logger:     c.logger,
	})
	if err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	c.application = application
	c.logger.Info("Application services initialized")

	c.workers = ProvideWorkers(&c.config.Retention, c.application.Sweeper, c.logger)
	if err := c.workers.StartAll(c.ctx); err != nil {
		c.teardown()
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.logger.Info("Workers started", zap.Int("count", c.workers.GetWorkerCount()))

	c.server = httpapi.NewServer(httpapi.ServerConfig{
		Host:         c.config.Server.Host,
		Port:         c.config.Server.Port,
		ReadTimeout:  c.config.Server.ReadTimeout,
		WriteTimeout: c.config.Server.WriteTimeout,
	}, httpapi.Dependencies{
		Orchestrator: c.application.Orchestrator,
		Signing:      c.application.Signing,
		Sweeper:      c.application.Sweeper,
		Identity:     httpapi.NewHeaderIdentityProvider(c.config.Identity.Secret),
		Health:       c,
		Recorder:     c.metrics,
		Metrics:      c.metrics.Handler(),
	}, utils.NewKVLogger(c.logger.Named("http")))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	if c.cancel != nil {
		c.cancel()
	}

	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized so far, in reverse order
func (c *Container) teardown() error {
	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	// Waits for in-flight async handlers such as finalization
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.sessions != nil {
		if err := c.sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session store: %w", err))
		}
		c.sessions = nil
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		c.conn = nil
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health reports the state of the database, the session store and the workers.
func (c *Container) Health(ctx context.Context) httpapi.HealthReport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	report := httpapi.HealthReport{
		Status:     "healthy",
		Components: make(map[string]string),
		Workers:    make(map[string]interface{}),
	}
	fail := func(component, msg string) {
		report.Components[component] = msg
		report.Status = "unhealthy"
	}

	if c.conn == nil {
		fail("database", "not initialized")
	} else if err := c.conn.PingContext(ctx); err != nil {
		fail("database", fmt.Sprintf("ping failed: %v", err))
	} else {
		report.Components["database"] = "ok"
	}

	if c.sessions == nil {
		fail("sessions", "not initialized")
	} else if err := c.sessions.Store.Ping(ctx); err != nil {
		fail("sessions", fmt.Sprintf("ping failed: %v", err))
	} else {
		report.Components["sessions"] = "ok"
	}

	if c.workers != nil {
		for name, status := range c.workers.Statuses() {
			report.Workers[name] = status
		}
	}

	return report
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger.Named("database"))
	if err != nil {
		return err
	}
	c.conn = bundle.Conn
	c.db = bundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger.Named("repository"))
	if err != nil {
		c.teardown()
		return err
	}
	c.repositories = repos
	return nil
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Sessions returns the session store.
func (c *Container) Sessions() port.SessionStore {
	if c.sessions == nil {
		return nil
	}
	return c.sessions.Store
}

// Objects returns the object store.
func (c *Container) Objects() port.ObjectStore {
	return c.objects
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Orchestrator returns the state transition orchestrator.
func (c *Container) Orchestrator() workflow.Orchestrator {
	return c.application.Orchestrator
}

// Signing returns the signing service.
func (c *Container) Signing() signing.Service {
	return c.application.Signing
}

// Sweeper returns the retention sweeper.
func (c *Container) Sweeper() retention.Sweeper {
	return c.application.Sweeper
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Server returns the HTTP server.
func (c *Container) Server() *httpapi.Server {
	return c.server
}

// Metrics returns the metrics registry wrapper.
func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
