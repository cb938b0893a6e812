// Package di provides dependency injection for database connections.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/config"
	"github.com/aristath/brokerwatch/internal/database"
)

// DatabaseFile is the SQLite file name inside the data directory
const DatabaseFile = "brokerwatch.db"

// InitializeDatabases opens the account store and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, DatabaseFile),
		Profile: database.ProfileLedger, // token writes and trade history need full durability
		Name:    "brokerwatch",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize brokerwatch database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply brokerwatch schema: %w", err)
	}
	container.DB = db

	log.Info().Str("path", db.Path()).Msg("Database initialized")
	return container, nil
}
