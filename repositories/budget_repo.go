package repositories

import (
	"context"
	"errors"
	"fmt"

	"league-waiver-system/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// FaabBudgetRepository manages per-season acquisition budgets.
type FaabBudgetRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewFaabBudgetRepository(db *gorm.DB, logger zerolog.Logger) *FaabBudgetRepository {
	return &FaabBudgetRepository{
		db:     db,
		logger: logger.With().Str("repository", "faab_budget").Logger(),
	}
}

func (r *FaabBudgetRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *FaabBudgetRepository) GetByRoster(ctx context.Context, tx *gorm.DB, leagueID, rosterID int64, season int) (*models.FaabBudget, error) {
	var b models.FaabBudget
	err := r.conn(tx).WithContext(ctx).
		Where("league_id = ? AND roster_id = ? AND season = ?", leagueID, rosterID, season).
		First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load budget for roster %d: %w", rosterID, err)
	}
	return &b, nil
}

func (r *FaabBudgetRepository) GetByLeague(ctx context.Context, leagueID int64, season int) ([]models.FaabBudget, error) {
	var budgets []models.FaabBudget
	err := r.db.WithContext(ctx).
		Where("league_id = ? AND season = ?", leagueID, season).
		Order("roster_id ASC").
		Find(&budgets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load league budgets: %w", err)
	}
	return budgets, nil
}

// DeductBudget subtracts amount from the roster's remaining budget. The guard
// on remaining_budget keeps the invariant 0 <= remaining <= initial even if a
// stale in-memory view tried to overspend.
func (r *FaabBudgetRepository) DeductBudget(ctx context.Context, tx *gorm.DB, leagueID, rosterID int64, season, amount int) error {
	res := r.conn(tx).WithContext(ctx).
		Model(&models.FaabBudget{}).
		Where("league_id = ? AND roster_id = ? AND season = ? AND remaining_budget >= ?",
			leagueID, rosterID, season, amount).
		Update("remaining_budget", gorm.Expr("remaining_budget - ?", amount))
	if res.Error != nil {
		return fmt.Errorf("failed to deduct budget for roster %d: %w", rosterID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("insufficient budget for roster %d (deducting %d)", rosterID, amount)
	}
	return nil
}

// EnsureRosterBudget returns the roster's budget row, creating a full one with
// the league default when it does not exist yet.
func (r *FaabBudgetRepository) EnsureRosterBudget(ctx context.Context, tx *gorm.DB, leagueID, rosterID int64, season, defaultBudget int) (*models.FaabBudget, error) {
	existing, err := r.GetByRoster(ctx, tx, leagueID, rosterID, season)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	b := &models.FaabBudget{
		LeagueID:        leagueID,
		RosterID:        rosterID,
		Season:          season,
		InitialBudget:   defaultBudget,
		RemainingBudget: defaultBudget,
	}
	if err := r.conn(tx).WithContext(ctx).Create(b).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return r.GetByRoster(ctx, tx, leagueID, rosterID, season)
		}
		return nil, fmt.Errorf("failed to create budget for roster %d: %w", rosterID, err)
	}
	r.logger.Info().Int64("roster_id", rosterID).Int("budget", defaultBudget).Msg("created roster FAAB budget")
	return b, nil
}

// InitializeForLeague seeds full budgets for every roster, replacing existing
// rows for the season.
func (r *FaabBudgetRepository) InitializeForLeague(ctx context.Context, tx *gorm.DB, leagueID int64, season int, rosterIDs []int64, defaultBudget int) error {
	conn := r.conn(tx).WithContext(ctx)
	if err := conn.Where("league_id = ? AND season = ?", leagueID, season).Delete(&models.FaabBudget{}).Error; err != nil {
		return fmt.Errorf("failed to clear budgets: %w", err)
	}
	rows := make([]models.FaabBudget, 0, len(rosterIDs))
	for _, rosterID := range rosterIDs {
		rows = append(rows, models.FaabBudget{
			LeagueID:        leagueID,
			RosterID:        rosterID,
			Season:          season,
			InitialBudget:   defaultBudget,
			RemainingBudget: defaultBudget,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := conn.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to seed budgets: %w", err)
	}
	return nil
}
