package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/ballast/internal/database"
	"github.com/rs/zerolog"
)

// IntegrityCheckJob verifies the integrity of every registered database.
type IntegrityCheckJob struct {
	databases []*database.DB
	timeout   time.Duration
	log       zerolog.Logger
}

// NewIntegrityCheckJob creates a new IntegrityCheckJob. nil databases are ignored.
func NewIntegrityCheckJob(log zerolog.Logger, databases ...*database.DB) *IntegrityCheckJob {
	dbs := make([]*database.DB, 0, len(databases))
	for _, db := range databases {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return &IntegrityCheckJob{
		databases: dbs,
		timeout:   time.Minute,
		log:       log.With().Str("job", "integrity_check").Logger(),
	}
}

// Name returns the job name
func (j *IntegrityCheckJob) Name() string {
	return "integrity_check"
}

// Run stops at the first corrupted database.
func (j *IntegrityCheckJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	for _, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().
				Err(err).
				Str("database", db.Name()).
				Msg("Database integrity check failed")
			return fmt.Errorf("database %s failed integrity check: %w", db.Name(), err)
		}

		j.log.Debug().Str("database", db.Name()).Msg("Database integrity OK")
	}

	j.log.Info().Int("databases", len(j.databases)).Msg("Database integrity check passed")
	return nil
}
