// Package di provides dependency injection type definitions.
//
// The Container holds every long-lived dependency of the application and is
// passed to the HTTP server and the command entry points.
package di

import (
	"github.com/aristath/ballast/internal/clientdata"
	"github.com/aristath/ballast/internal/clients/analysis"
	"github.com/aristath/ballast/internal/database"
	"github.com/aristath/ballast/internal/modules/rebalancing"
	"github.com/aristath/ballast/internal/scheduler"
)

// Container holds all dependencies for the application.
type Container struct {
	// Databases
	CacheDB      *database.DB // cache.db - recommendation history
	ClientDataDB *database.DB // client_data.db - cached analysis service responses

	// Repositories
	ClientDataRepo     *clientdata.Repository
	RecommendationRepo *rebalancing.RecommendationRepository

	// Clients
	AnalysisClient *analysis.Client

	// Services
	Engine             *rebalancing.Engine
	RebalancingService *rebalancing.Service

	// Background jobs
	Scheduler *scheduler.Scheduler
	Jobs      *JobInstances
}

// JobInstances holds the registered maintenance jobs so they can be
// triggered manually.
type JobInstances struct {
	ClientDataCleanup     scheduler.Job
	RecommendationCleanup scheduler.Job
	WALCheckpoint         scheduler.Job
	IntegrityCheck        scheduler.Job
}

// All returns the jobs in registration order.
func (j *JobInstances) All() []scheduler.Job {
	return []scheduler.Job{j.ClientDataCleanup, j.RecommendationCleanup, j.WALCheckpoint, j.IntegrityCheck}
}

// Databases returns every open database.
func (c *Container) Databases() []*database.DB {
	dbs := make([]*database.DB, 0, 2)
	for _, db := range []*database.DB{c.CacheDB, c.ClientDataDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close releases all databases. The scheduler must be stopped first.
func (c *Container) Close() error {
	var firstErr error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
