package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/config"
	"github.com/aristath/brokerwatch/internal/modules/accounts"
	"github.com/aristath/brokerwatch/internal/modules/snapshots"
	"github.com/aristath/brokerwatch/internal/modules/trades"
	"github.com/aristath/brokerwatch/internal/security"
)

// InitializeRepositories creates the credential sealer and all repositories
func InitializeRepositories(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.DB == nil {
		return fmt.Errorf("container database not initialized")
	}

	sealer, err := security.NewSealer(cfg.CredentialKey)
	if err != nil {
		return fmt.Errorf("failed to create credential sealer: %w", err)
	}
	if cfg.CredentialKey == "" {
		log.Warn().Msg("CREDENTIAL_KEY not set, app secrets and tokens are stored in plaintext")
	}
	container.Sealer = sealer

	conn := container.DB.Conn()
	container.AccountRepo = accounts.NewRepository(conn, sealer, log)
	container.TradeRepo = trades.NewRepository(conn, log)
	container.SnapshotRepo = snapshots.NewRepository(conn, log)

	log.Info().Msg("Repositories initialized")
	return nil
}
