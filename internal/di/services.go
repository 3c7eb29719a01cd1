package di

import (
	"fmt"

	"github.com/aristath/ballast/internal/clientdata"
	"github.com/aristath/ballast/internal/clients/analysis"
	"github.com/aristath/ballast/internal/config"
	"github.com/aristath/ballast/internal/modules/rebalancing"
	"github.com/rs/zerolog"
)

// InitializeServices builds repositories, clients and services on top of the
// open databases.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	settings := cfg.Engine
	if settings == nil {
		settings = config.DefaultEngineSettings()
	}

	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())
	container.RecommendationRepo = rebalancing.NewRecommendationRepository(
		container.CacheDB.Conn(),
		cfg.RecommendationTTL,
		log,
	)

	container.AnalysisClient = analysis.NewClient(
		cfg.AnalysisServiceURL,
		cfg.AnalysisTimeout,
		container.ClientDataRepo,
		log,
	)

	engine, err := rebalancing.NewEngine(settings.Options(), log)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	container.Engine = engine

	container.RebalancingService = rebalancing.NewService(
		engine,
		container.AnalysisClient,
		container.RecommendationRepo,
		settings.ServiceConfig(),
		log,
	)

	return nil
}
