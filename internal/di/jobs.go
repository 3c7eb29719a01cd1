package di

import (
	"fmt"

	"github.com/aristath/ballast/internal/clientdata"
	"github.com/aristath/ballast/internal/config"
	"github.com/aristath/ballast/internal/modules/rebalancing"
	"github.com/aristath/ballast/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the maintenance jobs and registers them with a new
// scheduler. The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	sched := scheduler.New(log)

	jobs := &JobInstances{
		ClientDataCleanup:     clientdata.NewCleanupJob(container.ClientDataRepo, log),
		RecommendationCleanup: rebalancing.NewRecommendationCleanupJob(container.RecommendationRepo, log),
		WALCheckpoint:         scheduler.NewWALCheckpointJob(log, container.Databases()...),
		IntegrityCheck:        scheduler.NewIntegrityCheckJob(log, container.Databases()...),
	}

	registrations := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.CleanupSchedule, jobs.ClientDataCleanup},
		{cfg.CleanupSchedule, jobs.RecommendationCleanup},
		{cfg.WALCheckpointCron, jobs.WALCheckpoint},
		{cfg.IntegrityCron, jobs.IntegrityCheck},
	}
	for _, reg := range registrations {
		if err := sched.AddJob(reg.schedule, reg.job); err != nil {
			return fmt.Errorf("failed to register job %s: %w", reg.job.Name(), err)
		}
	}

	container.Scheduler = sched
	container.Jobs = jobs

	return nil
}
