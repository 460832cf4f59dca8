package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go-quarantine/internal/config"
	"go-quarantine/internal/database"
	"go-quarantine/internal/event"
	"go-quarantine/internal/model"
	"go-quarantine/internal/repository"
	"go-quarantine/internal/service"
	"go-quarantine/internal/storage"
)

type App struct {
	Config  *config.Config
	Manager *service.QuarantineManager
	// Events carries entry status changes made through Manager.
	Events *event.InMemoryBus
	// StartupReport is the reconciliation run performed by New.
	StartupReport model.ReconcileReport

	cleanupFuncs []func() error
}

// New opens the entry store selected by cfg, prepares the quarantine root and
// runs a read-only reconciliation pass.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	handler, err := storage.NewSecureFileHandler(cfg.QuarantineRoot, storage.HandlerOptions{
		RootMode:            cfg.RootMode,
		RestoreDirMode:      cfg.RestoreDirMode,
		QuarantinedFileMode: cfg.QuarantinedFileMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize quarantine root: %w", err)
	}

	a := &App{Config: cfg}

	entries, err := a.openEntryStore(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Events = event.NewBus()
	a.Manager = service.NewQuarantineManager(handler, entries, a.Events)

	report, err := a.Manager.Reconcile(ctx)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to reconcile quarantine root: %w", err)
	}
	a.StartupReport = report
	if !report.Consistent() {
		slog.Warn("quarantine root and entries disagree",
			"orphan_files", len(report.OrphanFiles),
			"missing_files", len(report.MissingEntries),
		)
	}

	slog.Debug("quarantine ready", "root", handler.Root(), "driver", cfg.DatabaseDriver)
	return a, nil
}

func (a *App) openEntryStore(ctx context.Context, cfg *config.Config) (repository.EntryStore, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

		if err := db.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		return repository.NewPostgresEntryRepository(db.Pool), nil

	default:
		db, err := database.NewSQLite(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

		if err := db.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		return repository.NewSQLiteEntryRepository(db.DB), nil
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		errs = append(errs, a.cleanupFuncs[i]())
	}
	a.cleanupFuncs = nil
	return errors.Join(errs...)
}
