package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/katelyatv/internal/models"
	"github.com/desertthunder/katelyatv/internal/retry"
	"github.com/desertthunder/katelyatv/internal/shared"
)

// Backend is what the factory hands out: the storage contract plus credential export and a
// liveness check.
type Backend interface {
	models.Storage
	models.CredentialReader
	Ping(ctx context.Context) error
}

// Options configures an adapter.
type Options struct {
	OwnerName string       // Account reported with the owner role; defaults to [shared.DefaultOwnerName]
	Retry     retry.Config // Zero value means [retry.DefaultConfig]
	Logger    *log.Logger
	Metrics   *Metrics // May be nil
}

func (o Options) withDefaults() Options {
	if o.OwnerName == "" {
		o.OwnerName = shared.DefaultOwnerName
	}
	if o.Retry.MaxAttempts == 0 {
		def := retry.DefaultConfig()
		o.Retry.MaxAttempts = def.MaxAttempts
		if o.Retry.BaseDelay == 0 {
			o.Retry.BaseDelay = def.BaseDelay
		}
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return o
}

// OptionsFromConfig builds adapter options from the loaded configuration.
func OptionsFromConfig(cfg *shared.Config, logger *log.Logger, metrics *Metrics) Options {
	return Options{
		OwnerName: cfg.Auth.OwnerName,
		Retry: retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay(),
		},
		Logger:  logger,
		Metrics: metrics,
	}
}

// New opens the backend named by kind, or by cfg.Storage.Type when kind is empty.
//
// Key-value backends get one client per call, owned by the returned closer. The SQLite backend
// opens the database file and applies pending migrations. Nothing is dialed for the key-value
// backends until the first operation; use [Backend.Ping] to check connectivity up front.
func New(ctx context.Context, cfg *shared.Config, kind string, opts Options) (Backend, io.Closer, error) {
	if kind == "" {
		kind = cfg.Storage.Type
	}
	if opts.Logger != nil {
		opts.Logger = shared.WithLogger(opts.Logger, "backend", kind)
	}

	switch kind {
	case shared.BackendKvrocks:
		client, err := NewClient(cfg.Kvrocks, "KVROCKS")
		if err != nil {
			return nil, nil, err
		}
		return NewKvrocksStorage(client, opts), client, nil

	case shared.BackendRedis:
		client, err := NewClient(cfg.Redis, "REDIS")
		if err != nil {
			return nil, nil, err
		}
		return NewRedisStorage(client, opts), client, nil

	case shared.BackendSQLite:
		if cfg.SQLite.Path == "" {
			return nil, nil, fmt.Errorf("%w: SQLITE_PATH must be set", shared.ErrMissingConfig)
		}
		db, err := shared.NewDatabase(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		shared.ConfigureDatabase(db, cfg.SQLite.MaxOpenConns, cfg.SQLite.MaxIdleConns)
		if err := shared.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate %s: %w", cfg.SQLite.Path, err)
		}
		return NewSQLiteStorage(db, opts), db, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", shared.ErrUnknownBackend, kind)
	}
}

func (b *kvBase) Ping(ctx context.Context) error {
	if err := b.do(ctx, "ping", func() error { return b.client.Ping(ctx).Err() }); err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrStorageUnavailable, b.backend, err)
	}
	return nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %v", shared.ErrStorageUnavailable, err)
	}
	return nil
}
