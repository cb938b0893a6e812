package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/clients/broker"
	"github.com/aristath/brokerwatch/internal/clients/kis"
	"github.com/aristath/brokerwatch/internal/clients/ls"
	"github.com/aristath/brokerwatch/internal/config"
	"github.com/aristath/brokerwatch/internal/metrics"
	"github.com/aristath/brokerwatch/internal/modules/aggregator"
	"github.com/aristath/brokerwatch/internal/modules/market_hours"
	"github.com/aristath/brokerwatch/internal/notify"
	"github.com/aristath/brokerwatch/internal/reliability"
	"github.com/aristath/brokerwatch/internal/scheduler"
)

// notifyTimeout bounds a single webhook post
const notifyTimeout = 10 * time.Second

// InitializeServices creates broker clients, the core service and the supervisor
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.AccountRepo == nil {
		return fmt.Errorf("repositories not initialized")
	}

	container.Metrics = metrics.New()

	// KIS and LS share one limiter so the process as a whole stays under the
	// configured request rate
	limiter := broker.NewLimiter(cfg.BrokerRequestsPerSecond)
	kisClient := kis.NewClient(kis.Config{
		PaperURL: cfg.KISPaperURL,
		LiveURL:  cfg.KISLiveURL,
		Timeout:  cfg.BrokerTimeout,
		Limiter:  limiter,
		Observer: container.Metrics,
	}, log)
	lsClient := ls.NewClient(ls.Config{
		PaperURL: cfg.LSPaperURL,
		LiveURL:  cfg.LSLiveURL,
		Timeout:  cfg.BrokerTimeout,
		Limiter:  limiter,
		Observer: container.Metrics,
	}, log)
	container.Brokers = broker.NewRegistry(kisClient, lsClient)

	container.Aggregator = aggregator.NewService(
		container.AccountRepo,
		container.TradeRepo,
		container.SnapshotRepo,
		container.Brokers,
		cfg.TokenRefreshThreshold,
		log,
	)
	container.Aggregator.SetObserver(container.Metrics)

	container.MarketHours = market_hours.NewMarketHoursService(log, cfg.MarketHolidays...)
	container.Notifier = notify.New(notifyTimeout, cfg.NotifyCooldown, log)

	container.Supervisor = scheduler.New(scheduler.Config{
		Tick:                  cfg.Loops.Tick,
		TokenInterval:         cfg.Loops.TokenInterval,
		BalanceInterval:       cfg.Loops.BalanceInterval,
		IntradayEnabled:       cfg.Loops.IntradayEnabled,
		IntradayInterval:      cfg.Loops.IntradayInterval,
		DailyTradesSchedule:   cfg.Loops.DailyTradesSchedule,
		DailyTradesWindowDays: cfg.Loops.DailyTradesWindowDays,
	}, container.AccountRepo, container.Aggregator, container.MarketHours, log)
	container.Supervisor.SetNotifier(container.Notifier)
	container.Supervisor.SetRecorder(container.Metrics)

	container.MaintenanceJob = reliability.NewMaintenanceJob(container.DB, cfg.DataDir, log)

	if cfg.Backup.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := reliability.NewS3Store(ctx, reliability.S3Config{
			Bucket:          cfg.Backup.Bucket,
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup store: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			container.DB, store, cfg.DataDir, cfg.Backup.Prefix, cfg.Backup.Keep, log,
		)
	}

	log.Info().
		Bool("intraday", cfg.Loops.IntradayEnabled).
		Bool("backups", container.BackupService != nil).
		Float64("broker_rps", cfg.BrokerRequestsPerSecond).
		Msg("Services initialized")
	return nil
}
