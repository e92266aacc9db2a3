package repositories

import (
	"context"
	"fmt"
	"time"

	"league-waiver-system/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProcessingRunsRepository manages the append-only run log that makes
// scheduled processing idempotent per hour window.
type ProcessingRunsRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewProcessingRunsRepository(db *gorm.DB, logger zerolog.Logger) *ProcessingRunsRepository {
	return &ProcessingRunsRepository{
		db:     db,
		logger: logger.With().Str("repository", "processing_runs").Logger(),
	}
}

func (r *ProcessingRunsRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// TryCreate inserts the run row for (league, season, week, window_start_at).
// When the unique index rejects the insert a prior run already owns this
// window and nil is returned without error.
func (r *ProcessingRunsRepository) TryCreate(ctx context.Context, tx *gorm.DB, leagueID int64, season, week int, windowStartAt time.Time) (*models.WaiverProcessingRun, error) {
	run := &models.WaiverProcessingRun{
		LeagueID:      leagueID,
		Season:        season,
		Week:          week,
		WindowStartAt: windowStartAt,
		RanAt:         time.Now().UTC(),
	}
	res := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(run)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create processing run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		r.logger.Info().
			Int64("league_id", leagueID).
			Time("window_start_at", windowStartAt).
			Msg("processing window already handled by a prior run")
		return nil, nil
	}
	return run, nil
}

func (r *ProcessingRunsRepository) UpdateResults(ctx context.Context, tx *gorm.DB, id int64, found, successful int) error {
	err := r.conn(tx).WithContext(ctx).
		Model(&models.WaiverProcessingRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"claims_found":      found,
			"claims_successful": successful,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update run %d results: %w", id, err)
	}
	return nil
}

// Delete removes a run row so a failed window can be retried.
func (r *ProcessingRunsRepository) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	err := r.conn(tx).WithContext(ctx).Delete(&models.WaiverProcessingRun{}, "id = ?", id).Error
	if err != nil {
		return fmt.Errorf("failed to delete run %d: %w", id, err)
	}
	return nil
}
