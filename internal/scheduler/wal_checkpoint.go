package scheduler

import (
	"github.com/aristath/ballast/internal/database"
	"github.com/rs/zerolog"
)

// WALCheckpointJob truncates the WAL of every registered database.
type WALCheckpointJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewWALCheckpointJob creates a new WALCheckpointJob. nil databases are ignored.
func NewWALCheckpointJob(log zerolog.Logger, databases ...*database.DB) *WALCheckpointJob {
	dbs := make([]*database.DB, 0, len(databases))
	for _, db := range databases {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return &WALCheckpointJob{
		databases: dbs,
		log:       log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run checkpoints each database. A failing database is logged and skipped;
// the error of the last failure is returned.
func (j *WALCheckpointJob) Run() error {
	var lastErr error
	checkpointed := 0

	for _, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().
				Err(err).
				Str("database", db.Name()).
				Msg("Failed to checkpoint WAL")
			lastErr = err
			continue
		}
		checkpointed++
	}

	j.log.Debug().
		Int("checkpointed", checkpointed).
		Int("databases", len(j.databases)).
		Msg("WAL checkpoint completed")

	return lastErr
}
