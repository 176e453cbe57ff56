package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	backend "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/dealflow/internal/application/dispatcher"
	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/application/retention"
	"github.com/garyjia/dealflow/internal/application/signing"
	"github.com/garyjia/dealflow/internal/application/workflow"
	"github.com/garyjia/dealflow/internal/domain/event"
	"github.com/garyjia/dealflow/internal/infrastructure/finalizer"
	"github.com/garyjia/dealflow/internal/infrastructure/metrics"
	"github.com/garyjia/dealflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/dealflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/dealflow/internal/infrastructure/sessionstore"
	"github.com/garyjia/dealflow/internal/infrastructure/storage"
	"github.com/garyjia/dealflow/internal/infrastructure/worker"
	"github.com/garyjia/dealflow/pkg/database"
	"github.com/garyjia/dealflow/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Entities   port.EntityStore
	Documents  port.DocumentRepository
	Signatures port.SignatureRepository
	Consents   port.ConsentRepository
	Audit      *repository.AuditRepository
}

// SessionBundle holds the session store and its teardown.
type SessionBundle struct {
	Store port.SessionStore
	Close func() error
}

// ApplicationDeps holds the dependencies of the application services.
type ApplicationDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Sessions   port.SessionStore
	Objects    port.ObjectStore
	Dispatcher dispatcher.Dispatcher
	Metrics    *metrics.Metrics
	Config     *Config
	Logger     *zap.Logger
}

// ApplicationBundle groups the application services.
type ApplicationBundle struct {
	Orchestrator workflow.Orchestrator
	Signing      signing.Service
	Sweeper      retention.Sweeper
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Path != database.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(conn, logger).Run()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Database migrations applied", zap.Int("count", applied))

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all SQLite-backed repositories.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Entities:   repository.NewEntityStore(db, logger),
		Documents:  repository.NewDocumentRepository(db, logger),
		Signatures: repository.NewSignatureRepository(db, logger),
		Consents:   repository.NewConsentRepository(db, logger),
		Audit:      repository.NewAuditRepository(db, logger),
	}, nil
}

// ProvideSessionStore creates the configured session store and verifies it is reachable.
func ProvideSessionStore(ctx context.Context, sessions *SessionConfig, redisCfg *RedisConfig, ttl SigningConfig, logger *zap.Logger) (*SessionBundle, error) {
	switch sessions.Backend {
	case SessionBackendRedis:
		client := backend.NewClient(&backend.Options{
			Addr:        redisCfg.Addr,
			Password:    redisCfg.Password,
			DB:          redisCfg.DB,
			DialTimeout: redisCfg.DialTimeout,
		})
		store := sessionstore.NewRedisStore(client, logger,
			sessionstore.WithPrefix(sessions.KeyPrefix),
			sessionstore.WithTTL(ttl.RetentionWindow),
		)
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", redisCfg.Addr, err)
		}
		logger.Info("Using redis session store", zap.String("addr", redisCfg.Addr))
		return &SessionBundle{Store: store, Close: store.Close}, nil

	case SessionBackendMemory, "":
		logger.Info("Using in-memory session store")
		return &SessionBundle{Store: sessionstore.NewMemoryStore(), Close: func() error { return nil }}, nil

	default:
		return nil, fmt.Errorf("unknown session backend %q", sessions.Backend)
	}
}

// ProvideObjectStore creates the filesystem object store.
func ProvideObjectStore(cfg *StorageConfig, logger *zap.Logger) (*storage.LocalObjectStore, error) {
	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return storage.NewLocalObjectStore(cfg.BaseDir, logger), nil
}

// ProvideDispatcher creates the event dispatcher and counts every event it sees.
func ProvideDispatcher(m *metrics.Metrics, logger *zap.Logger) dispatcher.Dispatcher {
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))))

	if m != nil {
		d.SubscribeAll("metrics", func(ctx context.Context, evt *event.Event) error {
			m.EventObserved(evt.Type.String())
			return nil
		})
	}

	return d
}

// ProvideApplication creates the orchestrator, the signing service and the sweeper,
// and registers the finalization handler.
func ProvideApplication(deps *ApplicationDeps) (*ApplicationBundle, error) {
	if deps.Repos == nil || deps.Sessions == nil || deps.Objects == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("incomplete application dependencies")
	}

	cfg := deps.Config

	orchestratorOpts := []workflow.Option{
		workflow.WithTransactionManager(deps.TxManager),
		workflow.WithAuditSink(deps.Repos.Audit),
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(utils.NewKVLogger(deps.Logger.Named("workflow"))),
	}
	signingOpts := []signing.Option{
		signing.WithConfig(signing.Config{
			SessionWindow:   cfg.Signing.SessionWindow,
			PreviewWindow:   cfg.Signing.PreviewWindow,
			RetentionWindow: cfg.Signing.RetentionWindow,
			ConsentText:     cfg.Signing.ConsentText,
			ConsentVersion:  cfg.Signing.ConsentVersion,
		}),
		signing.WithAuditSink(deps.Repos.Audit),
		signing.WithDispatcher(deps.Dispatcher),
	}
	sweeperOpts := []retention.Option{
		retention.WithGrace(cfg.Retention.Grace),
		retention.WithBatchSize(cfg.Retention.BatchSize),
		retention.WithAuditSink(deps.Repos.Audit),
	}
	if deps.Metrics != nil {
		orchestratorOpts = append(orchestratorOpts, workflow.WithRecorder(deps.Metrics))
		signingOpts = append(signingOpts, signing.WithRecorder(deps.Metrics))
		sweeperOpts = append(sweeperOpts, retention.WithRecorder(deps.Metrics))
	}

	orchestrator := workflow.NewOrchestrator(deps.Repos.Entities, orchestratorOpts...)

	signingService := signing.NewService(signing.Stores{
		Entities:   deps.Repos.Entities,
		Documents:  deps.Repos.Documents,
		Signatures: deps.Repos.Signatures,
		Consents:   deps.Repos.Consents,
		Sessions:   deps.Sessions,
		Objects:    deps.Objects,
	}, orchestrator, utils.NewKVLogger(deps.Logger.Named("signing")), signingOpts...)

	sweeper := retention.NewSweeper(deps.Sessions, deps.Repos.Signatures, deps.Objects,
		utils.NewKVLogger(deps.Logger.Named("retention")), sweeperOpts...)

	manifests := finalizer.NewManifestFinalizer(deps.Objects, deps.Logger.Named("finalizer"))
	deps.Dispatcher.Subscribe(event.TypeDocumentSigned, "finalizer", signing.FinalizeHandler(manifests))

	return &ApplicationBundle{
		Orchestrator: orchestrator,
		Signing:      signingService,
		Sweeper:      sweeper,
	}, nil
}

// ProvideWorkers creates the worker manager and registers the retention worker when enabled.
func ProvideWorkers(cfg *RetentionConfig, sweeper retention.Sweeper, logger *zap.Logger) *worker.WorkerManager {
	manager := worker.NewWorkerManager(logger.Named("workers"))

	if cfg.Enabled {
		manager.Register(worker.NewRetentionWorker(worker.RetentionWorkerConfig{
			Interval: cfg.Interval,
		}, sweeper, logger.Named("retention")))
	}

	return manager
}
