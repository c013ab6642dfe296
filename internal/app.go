// Package internal wires the trackmaster application together.
package internal

import (
	"fmt"

	"github.com/karloscodes/cartridge"

	"trackmaster/internal/config"
	"trackmaster/internal/database"
	"trackmaster/internal/jobs"
	"trackmaster/internal/metrics"
	"trackmaster/internal/pkg/geoip"
)

// Application wraps cartridge.Application with trackmaster-specific components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	GeoIP     *geoip.Reader
	Jobs      *jobs.Jobs
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	return NewAppWithRoutes(cfg, MountAppRoutes)
}

// NewAppWithRoutes creates a new application with a custom route mounting function
func NewAppWithRoutes(cfg *config.Config, routeMount func(*cartridge.Server)) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	reader := geoip.Open(cfg.GeoDBPath, logger)
	geoip.SetDefault(reader)

	if cfg.MetricsEnabled {
		metrics.Default()
	}

	jobsManager, err := jobs.NewJobs(dbManager, reader, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    routeMount,
		BackgroundWorkers: []cartridge.BackgroundWorker{jobsManager},
	})
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		GeoIP:       reader,
		Jobs:        jobsManager,
	}, nil
}
