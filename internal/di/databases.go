package di

import (
	"fmt"

	"github.com/aristath/saxo-portfolio/internal/config"
	"github.com/aristath/saxo-portfolio/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens portfolio.db and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	db, err := database.New(database.Config{
		Path: cfg.DatabasePath(),
		Name: "portfolio",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize portfolio database: %w", err)
	}
	container.DB = db

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
	}

	log.Info().Str("path", db.Path()).Msg("Database initialized and schema applied")

	return container, nil
}
