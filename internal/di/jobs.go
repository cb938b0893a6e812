package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/config"
	"github.com/aristath/brokerwatch/internal/reliability"
)

// RegisterJobs adds the maintenance and backup cron jobs to the supervisor.
// The daily trade sync is registered by the supervisor itself on Start.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.Supervisor == nil {
		return fmt.Errorf("supervisor not initialized")
	}

	if err := container.Supervisor.AddJob(cfg.MaintenanceSchedule, container.MaintenanceJob); err != nil {
		return fmt.Errorf("failed to register maintenance job: %w", err)
	}

	if container.BackupService != nil {
		if err := container.Supervisor.AddJob(cfg.Backup.Schedule, reliability.NewBackupJob(container.BackupService)); err != nil {
			return fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	log.Info().
		Str("maintenance_schedule", cfg.MaintenanceSchedule).
		Bool("backup_registered", container.BackupService != nil).
		Msg("Jobs registered")
	return nil
}
