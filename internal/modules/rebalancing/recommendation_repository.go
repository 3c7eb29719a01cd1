package rebalancing

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRecommendationTTL is how long computed recommendations are kept.
const DefaultRecommendationTTL = 24 * time.Hour

// RecommendationRepository stores computed recommendations.
// Database: cache.db (recommendations table)
type RecommendationRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
	log zerolog.Logger
}

// NewRecommendationRepository creates a new recommendation repository.
// A non-positive ttl falls back to DefaultRecommendationTTL.
func NewRecommendationRepository(db *sql.DB, ttl time.Duration, log zerolog.Logger) *RecommendationRepository {
	if ttl <= 0 {
		ttl = DefaultRecommendationTTL
	}
	return &RecommendationRepository{
		db:  db,
		ttl: ttl,
		now: time.Now,
		log: log.With().Str("repository", "recommendation").Logger(),
	}
}

// Save inserts or replaces a recommendation.
func (r *RecommendationRepository) Save(rec *Recommendation) error {
	holdings, err := json.Marshal(rec.Holdings)
	if err != nil {
		return fmt.Errorf("failed to marshal holdings: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	_, err = r.db.Exec(`
		INSERT OR REPLACE INTO recommendations
		(uuid, method, holdings, iterations, converged, max_deviation, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.UUID,
		string(rec.Method),
		string(holdings),
		rec.Iterations,
		boolToInt(rec.Converged),
		rec.MaxDeviation,
		createdAt.Unix(),
		createdAt.Add(r.ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save recommendation %s: %w", rec.UUID, err)
	}

	r.log.Debug().Str("uuid", rec.UUID).Msg("Saved recommendation")
	return nil
}

// GetByID returns an unexpired recommendation, or ErrRecommendationNotFound.
func (r *RecommendationRepository) GetByID(id string) (*Recommendation, error) {
	row := r.db.QueryRow(`
		SELECT uuid, method, holdings, iterations, converged, max_deviation, created_at
		FROM recommendations
		WHERE uuid = ? AND expires_at > ?
	`, id, r.now().Unix())

	rec, err := scanRecommendation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecommendationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns up to limit unexpired recommendations, newest first.
func (r *RecommendationRepository) ListRecent(limit int) ([]Recommendation, error) {
	rows, err := r.db.Query(`
		SELECT uuid, method, holdings, iterations, converged, max_deviation, created_at
		FROM recommendations
		WHERE expires_at > ?
		ORDER BY created_at DESC, uuid
		LIMIT ?
	`, r.now().Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	recs := make([]Recommendation, 0)
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recommendations: %w", err)
	}

	return recs, nil
}

// DeleteExpired removes expired recommendations and returns how many were removed.
func (r *RecommendationRepository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec("DELETE FROM recommendations WHERE expires_at <= ?", r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired recommendations: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecommendation(row rowScanner) (*Recommendation, error) {
	var (
		rec       Recommendation
		method    string
		holdings  string
		converged int
		createdAt int64
	)
	if err := row.Scan(&rec.UUID, &method, &holdings, &rec.Iterations, &converged, &rec.MaxDeviation, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(holdings), &rec.Holdings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal holdings: %w", err)
	}
	rec.Method = Method(method)
	rec.Converged = converged != 0
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RecommendationCleanupJob removes expired recommendations.
type RecommendationCleanupJob struct {
	repo *RecommendationRepository
	log  zerolog.Logger
}

// NewRecommendationCleanupJob creates a new recommendation cleanup job.
func NewRecommendationCleanupJob(repo *RecommendationRepository, log zerolog.Logger) *RecommendationCleanupJob {
	return &RecommendationCleanupJob{
		repo: repo,
		log:  log.With().Str("job", "recommendation_cleanup").Logger(),
	}
}

// Run deletes expired recommendations.
func (j *RecommendationCleanupJob) Run() error {
	deleted, err := j.repo.DeleteExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired recommendations")
		return err
	}
	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Recommendation cleanup completed")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *RecommendationCleanupJob) Name() string {
	return "recommendation_cleanup"
}
