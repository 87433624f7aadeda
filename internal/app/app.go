package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"omnistock/internal/catalog"
	"omnistock/internal/config"
	"omnistock/internal/events"
	"omnistock/internal/listener"
	"omnistock/internal/lock"
	"omnistock/internal/logging"
	"omnistock/internal/metrics"
	"omnistock/internal/pipeline"
	"omnistock/internal/platform"
	"omnistock/internal/stock"
	"omnistock/internal/storage"
)

// App holds the wired services shared by the CLI, the API and the listener.
type App struct {
	Config    config.Config
	Logger    *logrus.Logger
	Store     storage.Backend
	Platforms *platform.Registry
	Locker    lock.Locker
	Publisher events.Publisher
	Metrics   *metrics.Registry

	Ingest   *pipeline.Service
	Catalog  *catalog.Service
	Stock    *stock.Service
	Listener *listener.Service

	closers []func()
}

// New connects every backend named by cfg. Redis and NATS are optional: when their URLs are
// blank the in-process lock and a no-op publisher are used.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.NewRegistry()}

	platforms, err := platform.Load(cfg.PlatformMappingsPath)
	if err != nil {
		return nil, fmt.Errorf("load platform mappings: %w", err)
	}
	a.Platforms = platforms

	store, err := storage.Open(ctx, cfg.DBDriver, cfg.DBPath, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.DBDriver, err)
	}
	a.Store = store
	a.closers = append(a.closers, func() { _ = store.Close() })

	if cfg.RedisURL != "" {
		client, err := lock.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.Locker = lock.NewRedis(client, cfg.IngestLockTTL(), logger)
	} else {
		a.Locker = lock.NewMemory()
	}

	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Publisher = pub
	} else {
		a.Publisher = events.Noop{}
	}
	a.closers = append(a.closers, a.Publisher.Close)

	a.Ingest = pipeline.NewService(pipeline.Deps{
		Store:            store,
		Platforms:        platforms,
		Locker:           a.Locker,
		Publisher:        a.Publisher,
		Metrics:          a.Metrics,
		Logger:           logger,
		StockConcurrency: cfg.StockUpdateConcurrency,
	})
	a.Catalog = catalog.NewService(store, logger)
	a.Stock = stock.NewService(store, a.Publisher, a.Metrics, logger)
	a.Listener = listener.NewService(store, a.Ingest, platforms, cfg, logger)

	logger.WithFields(logrus.Fields{
		"driver": cfg.DBDriver,
		"redis":  cfg.RedisURL != "",
		"nats":   cfg.NATSURL != "",
	}).Debug("app wired")
	return a, nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
