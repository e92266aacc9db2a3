package repositories

import (
	"context"
	"errors"
	"fmt"

	"league-waiver-system/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ErrOwnershipConflict is surfaced when an add collides with the unique
// ownership index, i.e. another roster acquired the player concurrently.
// The processor catches it and tries the next candidate instead of aborting.
var ErrOwnershipConflict = errors.New("player already owned in this league season")

// RosterPlayersRepository manages player ownership rows scoped to an active
// league season.
type RosterPlayersRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewRosterPlayersRepository(db *gorm.DB, logger zerolog.Logger) *RosterPlayersRepository {
	return &RosterPlayersRepository{
		db:     db,
		logger: logger.With().Str("repository", "roster_players").Logger(),
	}
}

func (r *RosterPlayersRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// FindOwner returns the roster id owning the player in the league season, or
// 0 when unowned.
func (r *RosterPlayersRepository) FindOwner(ctx context.Context, tx *gorm.DB, leagueID, playerID, seasonID int64) (int64, error) {
	var row models.RosterPlayer
	err := r.conn(tx).WithContext(ctx).
		Where("league_id = ? AND player_id = ? AND active_league_season_id = ?", leagueID, playerID, seasonID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to find owner of player %d: %w", playerID, err)
	}
	return row.RosterID, nil
}

func (r *RosterPlayersRepository) FindByRosterAndPlayer(ctx context.Context, tx *gorm.DB, rosterID, playerID int64) (*models.RosterPlayer, error) {
	var row models.RosterPlayer
	err := r.conn(tx).WithContext(ctx).
		Where("roster_id = ? AND player_id = ?", rosterID, playerID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find roster player: %w", err)
	}
	return &row, nil
}

// AddPlayer inserts an ownership row. A duplicate-key violation on the
// (season, player) index means a competing acquisition won and is returned as
// ErrOwnershipConflict.
func (r *RosterPlayersRepository) AddPlayer(ctx context.Context, tx *gorm.DB, row *models.RosterPlayer) error {
	if err := r.conn(tx).WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrOwnershipConflict
		}
		return fmt.Errorf("failed to add player %d to roster %d: %w", row.PlayerID, row.RosterID, err)
	}
	return nil
}

func (r *RosterPlayersRepository) RemovePlayer(ctx context.Context, tx *gorm.DB, rosterID, playerID int64) error {
	res := r.conn(tx).WithContext(ctx).
		Where("roster_id = ? AND player_id = ?", rosterID, playerID).
		Delete(&models.RosterPlayer{})
	if res.Error != nil {
		return fmt.Errorf("failed to remove player %d from roster %d: %w", playerID, rosterID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("player %d not on roster %d", playerID, rosterID)
	}
	return nil
}

func (r *RosterPlayersRepository) GetPlayerCount(ctx context.Context, tx *gorm.DB, rosterID int64) (int, error) {
	var count int64
	err := r.conn(tx).WithContext(ctx).
		Model(&models.RosterPlayer{}).
		Where("roster_id = ?", rosterID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count roster %d players: %w", rosterID, err)
	}
	return int(count), nil
}

func (r *RosterPlayersRepository) GetPlayerIDsByRoster(ctx context.Context, tx *gorm.DB, rosterID int64) ([]int64, error) {
	var ids []int64
	err := r.conn(tx).WithContext(ctx).
		Model(&models.RosterPlayer{}).
		Where("roster_id = ?", rosterID).
		Pluck("player_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load roster %d player ids: %w", rosterID, err)
	}
	return ids, nil
}

// GetOwnedPlayerIDsByLeague preloads the full ownership map of a league
// season in one query: player id -> owning roster id.
func (r *RosterPlayersRepository) GetOwnedPlayerIDsByLeague(ctx context.Context, tx *gorm.DB, leagueID, seasonID int64) (map[int64]int64, error) {
	var rows []models.RosterPlayer
	err := r.conn(tx).WithContext(ctx).
		Select("player_id, roster_id").
		Where("league_id = ? AND active_league_season_id = ?", leagueID, seasonID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to preload league ownership: %w", err)
	}
	owned := make(map[int64]int64, len(rows))
	for _, row := range rows {
		owned[row.PlayerID] = row.RosterID
	}
	return owned, nil
}
