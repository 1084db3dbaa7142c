package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	backend "github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/mbot/core/config"
	coredatabase "github.com/m3rciful/mbot/core/database"
	"github.com/m3rciful/mbot/core/logger"
	"github.com/m3rciful/mbot/core/session"
	sessionpg "github.com/m3rciful/mbot/core/session/postgres"
	sessionredis "github.com/m3rciful/mbot/core/session/redis"
	"log/slog"
)

// Options control the generic bootstrap pipeline shared between bots.
// The function fields default to the real implementations and exist so
// tests can substitute them.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// Only the handles backing the selected session store are set.
type Result struct {
	Store session.Store
	DB    *sqlx.DB
	Redis *backend.Client
}

// Run initializes the logger and builds the session store selected by
// the configuration, connecting to postgres (with migrations) or redis
// when a durable backend is configured.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}

	switch cfg.Session.Backend {
	case coreconfig.BackendMemory:
		res.Store = session.NewMemoryStore()

	case coreconfig.BackendFile:
		store, err := session.NewFileStore(cfg.Session.FilePath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: file store init failed: %w", err)
		}
		res.Store = store

	case coreconfig.BackendRedis:
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("bootstrap: redis ping failed: %w", err)
		}
		var storeOpts []sessionredis.Option
		if cfg.Session.Redis.Prefix != "" {
			storeOpts = append(storeOpts, sessionredis.WithPrefix(cfg.Session.Redis.Prefix))
		}
		if cfg.Session.Redis.TTLSeconds > 0 {
			storeOpts = append(storeOpts, sessionredis.WithTTL(time.Duration(cfg.Session.Redis.TTLSeconds)*time.Second))
		}
		res.Redis = client
		res.Store = sessionredis.New(client, storeOpts...)

	case coreconfig.BackendPostgres:
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(opts.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(opts.Database); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
		res.DB = db
		res.Store = sessionpg.New(db)

	default:
		return nil, fmt.Errorf("bootstrap: unknown session backend %q", cfg.Session.Backend)
	}

	logger.Info(context.Background(), "app", "bootstrap.complete",
		slog.String("backend", cfg.Session.Backend),
	)
	return res, nil
}

// Close releases the connections opened by Run.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
