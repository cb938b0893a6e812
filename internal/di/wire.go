// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/config"
	accounthandlers "github.com/aristath/brokerwatch/internal/modules/accounts/handlers"
	markethandlers "github.com/aristath/brokerwatch/internal/modules/market_hours/handlers"
	snapshothandlers "github.com/aristath/brokerwatch/internal/modules/snapshots/handlers"
	tradehandlers "github.com/aristath/brokerwatch/internal/modules/trades/handlers"
	"github.com/aristath/brokerwatch/internal/server"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Initialize database
// 2. Initialize repositories
// 3. Initialize services
// 4. Register jobs
// 5. Build the HTTP server
// Nothing is started; the caller starts the supervisor and server.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeRepositories(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := RegisterJobs(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	container.Server = newServer(container, cfg, log)

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, nil
}

func newServer(c *Container, cfg *config.Config, log zerolog.Logger) *server.Server {
	// a nil *BackupService must not become a non-nil interface
	var backups server.BackupManager
	if c.BackupService != nil {
		backups = c.BackupService
	}

	return server.New(server.Config{
		Log:            log,
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		System:         server.NewSystemHandlers(log, cfg.DataDir, c.DB, c.Supervisor, backups),
		Metrics:        c.Metrics.Handler(),
		Modules: []server.RouteRegistrar{
			accounthandlers.NewHandler(c.AccountRepo, c.Aggregator, log),
			tradehandlers.NewHandler(c.TradeRepo, c.AccountRepo, c.Aggregator, log),
			snapshothandlers.NewHandler(c.SnapshotRepo, c.AccountRepo, c.Aggregator, c.MarketHours, log),
			markethandlers.NewHandler(c.MarketHours, log),
		},
	})
}
