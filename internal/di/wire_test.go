package di

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/ballast/internal/config"
	"github.com/aristath/ballast/internal/modules/rebalancing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:            t.TempDir(),
		AnalysisServiceURL: "http://127.0.0.1:1",
		AnalysisTimeout:    time.Second,
		RecommendationTTL:  time.Hour,
		CleanupSchedule:    "0 0 * * * *",
		WALCheckpointCron:  "0 30 3 * * *",
		IntegrityCron:      "0 0 4 * * 0",
	}
}

func TestWire(t *testing.T) {
	container, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container)
	t.Cleanup(func() { container.Close() })

	assert.NotNil(t, container.CacheDB)
	assert.NotNil(t, container.ClientDataDB)
	assert.Len(t, container.Databases(), 2)
	assert.NotNil(t, container.ClientDataRepo)
	assert.NotNil(t, container.RecommendationRepo)
	assert.NotNil(t, container.AnalysisClient)
	assert.NotNil(t, container.RebalancingService)
	assert.NotNil(t, container.Scheduler)

	require.NotNil(t, container.Jobs)
	names := []string{}
	for _, job := range container.Jobs.All() {
		names = append(names, job.Name())
	}
	assert.Equal(t, []string{"client_data_cleanup", "recommendation_cleanup", "wal_checkpoint", "integrity_check"}, names)

	// Nil engine settings fall back to defaults
	assert.Equal(t, rebalancing.DefaultOptions(), container.Engine.Options())
}

func TestWire_EndToEndRecommendation(t *testing.T) {
	container, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	svc := container.RebalancingService
	rec, err := svc.Recommend(context.Background(), rebalancing.RecommendRequest{
		Symbols: []string{"AAPL", "MSFT", "GOOG"},
		Weights: []float64{50, 30, 20},
		Method:  "market_cap",
		WeightAnalysis: map[string]rebalancing.HoldingAnalysis{
			"AAPL": {MarketCapWeight: rebalancing.Float(0.3)},
			"MSFT": {MarketCapWeight: rebalancing.Float(0.3)},
			"GOOG": {MarketCapWeight: rebalancing.Float(0.4)},
		},
	})
	require.NoError(t, err)

	stored, err := svc.GetRecommendation(rec.UUID)
	require.NoError(t, err)
	assert.Equal(t, rec.UUID, stored.UUID)
	assert.Len(t, stored.Holdings, 3)

	for _, job := range container.Jobs.All() {
		assert.NoError(t, job.Run(), job.Name())
	}
}

func TestWire_CustomEngineSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine = config.DefaultEngineSettings()
	cfg.Engine.MaxWeight = 0.5
	cfg.Engine.MinPortfolioSize = 3

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	settings := container.RebalancingService.Settings()
	assert.Equal(t, 0.5, settings.Engine.MaxWeight)
	assert.Equal(t, 3, settings.MinPortfolioSize)
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.CleanupSchedule = "every now and then"

	container, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, container)
}
