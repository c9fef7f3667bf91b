// Package app assembles the service graph shared by the binaries.
package app

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/composite"
	"ieap-grade-sync/internal/config"
	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/logger"
	"ieap-grade-sync/internal/observability"
	"ieap-grade-sync/internal/queue"
	"ieap-grade-sync/internal/storage"
	"ieap-grade-sync/internal/sync"
)

type App struct {
	Cfg   *config.Config
	DB    *sql.DB
	Repo  db.Repository
	Redis *queue.RedisClient
	Log   zerolog.Logger

	flush func()
}

// Init loads and validates config, then sets up logging and error reporting.
// It opens no connections.
func Init(service string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.WithService(service, cfg.App.Env)

	flush, err := observability.InitSentry(cfg.Observability.SentryDSN, cfg.App.Env, cfg.App.Version)
	if err != nil {
		l := logger.Get()
		l.Warn().Err(err).Msg("Sentry disabled")
	}

	return &App{Cfg: cfg, Log: logger.Get(), flush: flush}, nil
}

func (a *App) ConnectDB() error {
	database, err := db.NewConnection(a.Cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = database
	a.Repo = db.NewRepository(database)
	return nil
}

func (a *App) ConnectRedis() error {
	rc, err := queue.NewRedisClient(a.Cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.Redis = rc
	return nil
}

func (a *App) Storage() (storage.Storage, error) {
	s3, err := storage.NewS3Storage(a.Cfg.Storage.S3)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
	}
	return s3, nil
}

// Producer is nil without a Redis connection.
func (a *App) Producer() *queue.Producer {
	if a.Redis == nil {
		return nil
	}
	return queue.NewProducer(a.Redis, a.Cfg.Redis)
}

// Composite publishes creation events on Redis when connected and logs them
// otherwise.
func (a *App) Composite(authz auth.Authorizer) *composite.Service {
	var events composite.EventSink
	if p := a.Producer(); p != nil {
		events = p
	}
	return composite.NewService(a.Repo, authz, events)
}

// Sync wires the engine. Runs lock through Redis when connected, otherwise
// only within this process. Payloads are archived to S3 when configured.
func (a *App) Sync(authz auth.Authorizer, reports sync.ReportSource) (*sync.Service, error) {
	var locker sync.Locker = sync.NewLocalLocker()
	if a.Redis != nil {
		locker = sync.NewRedisLocker(a.Redis.Client(), a.Cfg.Redis.LockPrefix, a.Cfg.Sync.LockTTL)
	}

	svc := sync.NewService(a.Cfg, a.Repo, sync.NewClient(a.Cfg.SIS), reports, authz, locker)
	if a.Cfg.Sync.ArchivePayload {
		archive, err := a.Storage()
		if err != nil {
			return nil, err
		}
		svc.SetArchive(archive)
	}
	return svc, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warn().Err(err).Msg("Failed to close Redis")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn().Err(err).Msg("Failed to close database")
		}
	}
	if a.flush != nil {
		a.flush()
	}
}
