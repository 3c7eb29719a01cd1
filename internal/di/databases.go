package di

import (
	"fmt"

	"github.com/aristath/ballast/internal/config"
	"github.com/aristath/ballast/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// cache.db - recommendation history, safe to lose
	cacheDB, err := openDatabase(cfg, database.NameCache, database.ProfileCache)
	if err != nil {
		return nil, err
	}
	container.CacheDB = cacheDB

	// client_data.db - analysis responses, served stale when the service is down
	clientDataDB, err := openDatabase(cfg, database.NameClientData, database.ProfileStandard)
	if err != nil {
		cacheDB.Close()
		return nil, err
	}
	container.ClientDataDB = clientDataDB

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("databases", len(container.Databases())).
		Msg("Databases initialized")

	return container, nil
}

func openDatabase(cfg *config.Config, name string, profile database.DatabaseProfile) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(name),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database: %w", name, err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s database: %w", name, err)
	}

	return db, nil
}
