package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaki95/registry-sync/config"
	"github.com/jaki95/registry-sync/internal/progress"
	"github.com/jaki95/registry-sync/internal/registry"
	"github.com/jaki95/registry-sync/internal/snapshot"
	"github.com/jaki95/registry-sync/internal/storage"
	"github.com/jaki95/registry-sync/internal/syncer"
)

// App holds the wired services shared by the server and the CLI.
type App struct {
	Config       *config.Config
	Store        storage.OperatorStore
	Tracker      *progress.Tracker
	Snapshots    snapshot.Store
	Orchestrator *syncer.Orchestrator
	Importer     *syncer.Importer
	Scheduler    *syncer.Scheduler

	closers []func() error
}

type options struct {
	fetcher registry.PageFetcher
	now     func() time.Time
}

// Option customizes Build.
type Option func(*options)

// WithFetcher replaces the HTTP page fetcher.
func WithFetcher(f registry.PageFetcher) Option {
	return func(o *options) {
		o.fetcher = f
	}
}

// WithClock replaces time.Now in every service.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Build creates every service from cfg.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.fetcher == nil {
		o.fetcher = registry.NewFetcher(cfg.Registry)
	}

	a := &App{Config: cfg}

	store, err := NewStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	snapshots, closeSnapshots, err := NewSnapshotStore(ctx, cfg.Snapshot)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Snapshots = snapshots
	if closeSnapshots != nil {
		a.closers = append(a.closers, closeSnapshots)
	}

	a.Tracker = progress.NewTracker(cfg.Sync.ProgressTTL, progress.WithClock(o.now))
	upserter := syncer.NewUpserter(store, o.now)

	a.Orchestrator = syncer.NewOrchestrator(o.fetcher, upserter, a.Tracker, syncer.Options{
		PageDelay:        cfg.Sync.PageDelay,
		ErrorDelay:       cfg.Sync.ErrorDelay,
		PersistStepEvery: cfg.Sync.PersistStepEvery,
		Budget:           registry.NewPageBudget(cfg.Sync.PageBudget),
		Snapshots:        snapshots,
		ExportSnapshots:  cfg.Snapshot.ExportAfterSync && snapshots != nil,
		Now:              o.now,
	})
	a.Importer = syncer.NewImporter(upserter, a.Tracker, cfg.Sync.ImportBatchSize, o.now)
	a.Scheduler = syncer.NewScheduler(a.Orchestrator, cfg.Sync.ScheduleInterval, cfg.Sync.ScheduleJitter)

	slog.Debug("Services initialized", "storage", cfg.Storage.Type, "snapshots", cfg.Snapshot.Type,
		"registry", cfg.Registry.BaseURL)
	return a, nil
}

// NewStore opens the configured operator store.
func NewStore(cfg config.StorageConfig) (storage.OperatorStore, error) {
	switch cfg.Type {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "sqlite", "":
		store, err := storage.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// NewSnapshotStore opens the configured snapshot store. It returns a nil
// store when snapshots are disabled.
func NewSnapshotStore(ctx context.Context, cfg config.SnapshotConfig) (snapshot.Store, func() error, error) {
	switch cfg.Type {
	case "":
		return nil, nil, nil
	case "local":
		store, err := snapshot.NewLocalStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "gcs":
		if cfg.Bucket == "" {
			return nil, nil, errors.New("snapshot bucket is required for gcs snapshots")
		}
		store, err := snapshot.NewGCSStore(ctx, cfg.Bucket, cfg.Prefix, cfg.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown snapshot type %q", cfg.Type)
	}
}

// ImportSnapshot loads a stored snapshot and runs it through the importer.
func (a *App) ImportSnapshot(ctx context.Context, name string) (*syncer.ImportSummary, error) {
	if a.Snapshots == nil {
		return nil, errors.New("snapshots are not configured")
	}
	records, err := a.Snapshots.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return a.Importer.Import(ctx, records)
}

// Close releases the store and snapshot clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
