package repositories

import (
	"context"
	"errors"
	"fmt"

	"league-waiver-system/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// PriorityRepository manages standard-mode waiver priorities. For an active
// season the priorities of a league stay a contiguous permutation of 1..N.
type PriorityRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewPriorityRepository(db *gorm.DB, logger zerolog.Logger) *PriorityRepository {
	return &PriorityRepository{
		db:     db,
		logger: logger.With().Str("repository", "waiver_priority").Logger(),
	}
}

func (r *PriorityRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *PriorityRepository) GetByRoster(ctx context.Context, tx *gorm.DB, leagueID, rosterID int64, season int) (*models.WaiverPriority, error) {
	var p models.WaiverPriority
	err := r.conn(tx).WithContext(ctx).
		Where("league_id = ? AND roster_id = ? AND season = ?", leagueID, rosterID, season).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load priority for roster %d: %w", rosterID, err)
	}
	return &p, nil
}

func (r *PriorityRepository) GetByLeague(ctx context.Context, leagueID int64, season int) ([]models.WaiverPriority, error) {
	var priorities []models.WaiverPriority
	err := r.db.WithContext(ctx).
		Where("league_id = ? AND season = ?", leagueID, season).
		Order("priority ASC").
		Find(&priorities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load league priorities: %w", err)
	}
	return priorities, nil
}

// RotatePriority sends the winning roster to the back of the line: every
// roster behind the winner moves up one slot, the winner takes the max. Order
// among the others is preserved.
func (r *PriorityRepository) RotatePriority(ctx context.Context, tx *gorm.DB, leagueID int64, season int, rosterID int64) error {
	conn := r.conn(tx).WithContext(ctx)

	current, err := r.GetByRoster(ctx, tx, leagueID, rosterID, season)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("no waiver priority for roster %d in league %d season %d", rosterID, leagueID, season)
	}

	maxPriority, err := r.GetMaxPriority(ctx, tx, leagueID, season)
	if err != nil {
		return err
	}
	if current.Priority == maxPriority {
		return nil // already last, nothing to shift
	}

	err = conn.Model(&models.WaiverPriority{}).
		Where("league_id = ? AND season = ? AND priority > ?", leagueID, season, current.Priority).
		Update("priority", gorm.Expr("priority - 1")).Error
	if err != nil {
		return fmt.Errorf("failed to shift priorities: %w", err)
	}

	err = conn.Model(&models.WaiverPriority{}).
		Where("league_id = ? AND roster_id = ? AND season = ?", leagueID, rosterID, season).
		Update("priority", maxPriority).Error
	if err != nil {
		return fmt.Errorf("failed to rotate roster %d to last: %w", rosterID, err)
	}
	return nil
}

// EnsureRosterPriority returns the roster's priority row, creating it in last
// place when the roster has never had one (late join, lazy initialization).
func (r *PriorityRepository) EnsureRosterPriority(ctx context.Context, tx *gorm.DB, leagueID, rosterID int64, season int) (*models.WaiverPriority, error) {
	existing, err := r.GetByRoster(ctx, tx, leagueID, rosterID, season)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	maxPriority, err := r.GetMaxPriority(ctx, tx, leagueID, season)
	if err != nil {
		return nil, err
	}
	p := &models.WaiverPriority{
		LeagueID: leagueID,
		RosterID: rosterID,
		Season:   season,
		Priority: maxPriority + 1,
	}
	if err := r.conn(tx).WithContext(ctx).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost a race with another ensure; the row exists now
			return r.GetByRoster(ctx, tx, leagueID, rosterID, season)
		}
		return nil, fmt.Errorf("failed to create priority for roster %d: %w", rosterID, err)
	}
	r.logger.Info().Int64("roster_id", rosterID).Int("priority", p.Priority).Msg("assigned last-place waiver priority")
	return p, nil
}

// InitializeForLeague seeds priorities 1..N in the given roster order,
// replacing any existing rows for the season.
func (r *PriorityRepository) InitializeForLeague(ctx context.Context, tx *gorm.DB, leagueID int64, season int, rosterIDs []int64) error {
	conn := r.conn(tx).WithContext(ctx)
	if err := conn.Where("league_id = ? AND season = ?", leagueID, season).Delete(&models.WaiverPriority{}).Error; err != nil {
		return fmt.Errorf("failed to clear priorities: %w", err)
	}
	rows := make([]models.WaiverPriority, 0, len(rosterIDs))
	for i, rosterID := range rosterIDs {
		rows = append(rows, models.WaiverPriority{
			LeagueID: leagueID,
			RosterID: rosterID,
			Season:   season,
			Priority: i + 1,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := conn.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to seed priorities: %w", err)
	}
	return nil
}

func (r *PriorityRepository) GetMaxPriority(ctx context.Context, tx *gorm.DB, leagueID int64, season int) (int, error) {
	var max int
	err := r.conn(tx).WithContext(ctx).
		Model(&models.WaiverPriority{}).
		Select("COALESCE(MAX(priority), 0)").
		Where("league_id = ? AND season = ?", leagueID, season).
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute max priority: %w", err)
	}
	return max, nil
}
