// Package app initializes and holds the long-lived services of the deadline
// pipeline, acting as the dependency injection container for the binaries.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/admitkit/deadline-crawler/internal/admissions"
	"github.com/admitkit/deadline-crawler/internal/archive"
	archivegcs "github.com/admitkit/deadline-crawler/internal/archive/gcs"
	archivelocal "github.com/admitkit/deadline-crawler/internal/archive/local"
	archivemem "github.com/admitkit/deadline-crawler/internal/archive/memory"
	"github.com/admitkit/deadline-crawler/internal/clock/system"
	"github.com/admitkit/deadline-crawler/internal/config"
	"github.com/admitkit/deadline-crawler/internal/events"
	eventsmem "github.com/admitkit/deadline-crawler/internal/events/memory"
	eventspubsub "github.com/admitkit/deadline-crawler/internal/events/pubsub"
	"github.com/admitkit/deadline-crawler/internal/extract"
	"github.com/admitkit/deadline-crawler/internal/fetch"
	"github.com/admitkit/deadline-crawler/internal/match"
	"github.com/admitkit/deadline-crawler/internal/metrics"
	"github.com/admitkit/deadline-crawler/internal/orchestrator"
	"github.com/admitkit/deadline-crawler/internal/pdfgrid"
	"github.com/admitkit/deadline-crawler/internal/reconcile"
	"github.com/admitkit/deadline-crawler/internal/storage/memory"
	"github.com/admitkit/deadline-crawler/internal/storage/postgres"
)

// App holds the shared, long-lived services for the pipeline binaries.
type App struct {
	Config config.Config
	Logger *zap.Logger

	Colleges  admissions.CollegeStore
	Deadlines admissions.DeadlineStore
	Runs      admissions.RunStore
	Settings  admissions.SettingsStore
	Clock     admissions.Clock

	Archive      archive.Store
	Events       events.Publisher
	Orchestrator *orchestrator.Orchestrator

	closers []func() error
}

// New builds the full service graph from config. It fails fast: a
// misconfigured backend surfaces here, not on the first run.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		Clock:  system.New(),
	}
	metrics.Init()

	if err := a.initStores(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initArchive(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initEvents(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.Crawler.FetchTimeout(),
	})
	extractor := extract.New(fetcher, a.Archive, logger.Named("extract"))
	grid := pdfgrid.NewParser(logger.Named("pdfgrid"))
	matcher := match.New(logger.Named("match"))
	engine := reconcile.New(a.Deadlines, a.Clock, logger.Named("reconcile"))

	a.Orchestrator = orchestrator.New(orchestrator.Deps{
		Colleges:   a.Colleges,
		Runs:       a.Runs,
		Settings:   a.Settings,
		Extractor:  extractor,
		Grid:       grid,
		Matcher:    matcher,
		Reconciler: engine,
		Fetcher:    fetcher,
		Archive:    a.Archive,
		Events:     a.Events,
		Clock:      a.Clock,
	}, orchestrator.Config{
		BatchSize:    cfg.Crawler.BatchSize,
		BatchPause:   cfg.Crawler.BatchPause(),
		RunTimeout:   cfg.Crawler.RunTimeout(),
		CrawlTimeout: cfg.Crawler.CrawlTimeout(),
		StaleAfter:   cfg.Crawler.StaleAfter(),
		GridURL:      cfg.PDF.GridURL,
	}, logger.Named("orchestrator"))

	return a, nil
}

func (a *App) initStores(ctx context.Context, cfg config.Config) error {
	switch cfg.DB.Provider {
	case config.ProviderPostgres:
		a.Logger.Info("connecting to postgres")
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.ConnLifetime(),
		})
		if err != nil {
			return fmt.Errorf("init postgres: %w", err)
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		colleges, err := postgres.NewCollegeStore(pool)
		if err != nil {
			return err
		}
		deadlines, err := postgres.NewDeadlineStore(pool)
		if err != nil {
			return err
		}
		runs, err := postgres.NewRunStore(pool)
		if err != nil {
			return err
		}
		settings, err := postgres.NewSettingsStore(pool)
		if err != nil {
			return err
		}
		a.Colleges, a.Deadlines, a.Runs, a.Settings = colleges, deadlines, runs, settings
	case config.ProviderMemory:
		a.Logger.Info("using in-memory stores, data will not survive a restart")
		deadlines := memory.NewDeadlineStore()
		a.Colleges = memory.NewCollegeStore(nil, deadlines)
		a.Deadlines = deadlines
		a.Runs = memory.NewRunStore()
		a.Settings = memory.NewSettingsStore(admissions.CycleFor(a.Clock.Now()))
	default:
		return fmt.Errorf("unknown db provider %q", cfg.DB.Provider)
	}
	return nil
}

func (a *App) initArchive(ctx context.Context, cfg config.Config) error {
	switch cfg.Archive.Provider {
	case config.ProviderGCS:
		a.Logger.Info("archiving artifacts to gcs", zap.String("bucket", cfg.Archive.GCSBucket))
		store, err := archivegcs.New(ctx, archivegcs.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			return fmt.Errorf("init gcs archive: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.Archive = store
	case config.ProviderLocal:
		a.Logger.Info("archiving artifacts to local disk", zap.String("dir", cfg.Archive.LocalDir))
		store, err := archivelocal.New(archivelocal.Config{BaseDir: cfg.Archive.LocalDir})
		if err != nil {
			return fmt.Errorf("init local archive: %w", err)
		}
		a.Archive = store
	case config.ProviderMemory:
		a.Archive = archivemem.New()
	case config.ProviderNone:
		a.Logger.Info("artifact archiving disabled")
	default:
		return fmt.Errorf("unknown archive provider %q", cfg.Archive.Provider)
	}
	return nil
}

func (a *App) initEvents(ctx context.Context, cfg config.Config) error {
	switch cfg.Events.Provider {
	case config.ProviderPubSub:
		a.Logger.Info("publishing run events to pubsub",
			zap.String("project", cfg.Events.ProjectID),
			zap.String("topic", cfg.Events.Topic),
		)
		pub, err := eventspubsub.New(ctx, cfg.Events.ProjectID, cfg.Events.Topic, a.Logger.Named("events"))
		if err != nil {
			return fmt.Errorf("init pubsub events: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		a.Events = pub
	case config.ProviderMemory:
		a.Events = eventsmem.New()
	case config.ProviderNone:
		a.Logger.Info("run event publishing disabled")
	default:
		return fmt.Errorf("unknown events provider %q", cfg.Events.Provider)
	}
	return nil
}

// Close releases every resource the container owns, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed during shutdown", zap.Error(err))
		}
	}
	a.closers = nil
}
