// Package di provides dependency injection type definitions.
//
// Container holds every long-lived instance. It is built once by Wire and
// handed to cmd/server, which starts and stops the pieces.
package di

import (
	"github.com/aristath/brokerwatch/internal/clients/broker"
	"github.com/aristath/brokerwatch/internal/database"
	"github.com/aristath/brokerwatch/internal/metrics"
	"github.com/aristath/brokerwatch/internal/modules/accounts"
	"github.com/aristath/brokerwatch/internal/modules/aggregator"
	"github.com/aristath/brokerwatch/internal/modules/market_hours"
	"github.com/aristath/brokerwatch/internal/modules/snapshots"
	"github.com/aristath/brokerwatch/internal/modules/trades"
	"github.com/aristath/brokerwatch/internal/notify"
	"github.com/aristath/brokerwatch/internal/reliability"
	"github.com/aristath/brokerwatch/internal/scheduler"
	"github.com/aristath/brokerwatch/internal/security"
	"github.com/aristath/brokerwatch/internal/server"
)

// Container holds all application dependencies
type Container struct {
	// Database
	DB *database.DB

	// Repositories
	AccountRepo  *accounts.Repository
	TradeRepo    *trades.Repository
	SnapshotRepo *snapshots.Repository

	// Infrastructure
	Sealer   *security.Sealer
	Metrics  *metrics.Metrics
	Brokers  *broker.Registry
	Notifier *notify.Notifier

	// Services
	Aggregator     *aggregator.Service
	MarketHours    *market_hours.MarketHoursService
	BackupService  *reliability.BackupService // nil when backups are disabled
	MaintenanceJob *reliability.MaintenanceJob
	Supervisor     *scheduler.Supervisor
	Server         *server.Server
}

// Close releases the database connection
func (c *Container) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
