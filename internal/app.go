// Package internal contains core application functionality
package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"metalise/internal/config"
	"metalise/internal/database"
	"metalise/internal/events"
	"metalise/internal/generation"
	"metalise/internal/http"
	"metalise/internal/jobs"
	"metalise/internal/visitors"
)

// Application wraps cartridge.Application with metalise-specific components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager // DB manager with migration methods
	Recorder  *events.Recorder
	LiveSet   visitors.LiveUniqueSet
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	live := newLiveUniqueSet(cfg, logger)
	recorder := events.NewRecorder(dbManager, logger, events.WithLiveUniqueSet(live))

	jobsManager, err := jobs.NewJobs(dbManager, live, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	deps := http.Dependencies{
		Recorder:  recorder,
		Generator: generation.NewGenerator(generation.NewGeminiClient(cfg.GeminiAPIKey), cfg.ImageModels(), logger),
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		RouteMountFunc: func(srv *cartridge.Server) {
			MountRoutes(srv, deps)
		},
		BackgroundWorkers: []cartridge.BackgroundWorker{jobsManager},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Recorder:    recorder,
		LiveSet:     live,
	}, nil
}

// Shutdown stops the server and background workers, then releases the live unique set.
func (a *Application) Shutdown(ctx context.Context) error {
	err := a.Application.Shutdown(ctx)
	if a.LiveSet != nil {
		if closeErr := a.LiveSet.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// newLiveUniqueSet connects to Redis when configured. Tracking must keep working without it,
// so connection errors fall back to the in-process set.
func newLiveUniqueSet(cfg *config.Config, logger *slog.Logger) visitors.LiveUniqueSet {
	if cfg.RedisURL == "" {
		return visitors.NewMemoryUniqueSet()
	}

	set, err := visitors.NewRedisUniqueSet(cfg.RedisURL, cfg.Environment)
	if err != nil {
		logger.Warn("Redis unavailable, using in-memory live unique set", slog.Any("error", err))
		return visitors.NewMemoryUniqueSet()
	}

	logger.Info("Using Redis for live unique visitors")
	return set
}
