package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"league-waiver-system/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WaiverWireRepository manages the set of gated (recently dropped) players.
type WaiverWireRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewWaiverWireRepository(db *gorm.DB, logger zerolog.Logger) *WaiverWireRepository {
	return &WaiverWireRepository{
		db:     db,
		logger: logger.With().Str("repository", "waiver_wire").Logger(),
	}
}

func (r *WaiverWireRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// AddPlayer puts a player on the wire. Re-dropping a gated player refreshes
// the expiry and the dropping roster.
func (r *WaiverWireRepository) AddPlayer(ctx context.Context, tx *gorm.DB, entry *models.WaiverWireEntry) error {
	err := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "league_id"}, {Name: "player_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"dropped_by_roster_id", "waiver_expires_at", "season", "week",
			}),
		}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to add player %d to waiver wire: %w", entry.PlayerID, err)
	}
	return nil
}

func (r *WaiverWireRepository) RemovePlayer(ctx context.Context, tx *gorm.DB, leagueID, playerID int64) error {
	err := r.conn(tx).WithContext(ctx).
		Where("league_id = ? AND player_id = ?", leagueID, playerID).
		Delete(&models.WaiverWireEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove player %d from waiver wire: %w", playerID, err)
	}
	return nil
}

func (r *WaiverWireRepository) IsOnWaivers(ctx context.Context, tx *gorm.DB, leagueID, playerID int64) (bool, error) {
	var count int64
	err := r.conn(tx).WithContext(ctx).
		Model(&models.WaiverWireEntry{}).
		Where("league_id = ? AND player_id = ?", leagueID, playerID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check waiver wire: %w", err)
	}
	return count > 0, nil
}

// GetPlayerExpiration returns when the player's gate lifts, or nil when the
// player is not on the wire.
func (r *WaiverWireRepository) GetPlayerExpiration(ctx context.Context, tx *gorm.DB, leagueID, playerID int64) (*time.Time, error) {
	var entry models.WaiverWireEntry
	err := r.conn(tx).WithContext(ctx).
		Where("league_id = ? AND player_id = ?", leagueID, playerID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load waiver wire entry: %w", err)
	}
	return &entry.WaiverExpiresAt, nil
}

func (r *WaiverWireRepository) GetByLeague(ctx context.Context, leagueID int64) ([]models.WaiverWireEntry, error) {
	var entries []models.WaiverWireEntry
	err := r.db.WithContext(ctx).
		Where("league_id = ?", leagueID).
		Order("waiver_expires_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load waiver wire: %w", err)
	}
	return entries, nil
}

// DeleteExpired removes entries whose gate has lifted. Run by the scheduler
// sweep; returns how many gates were removed.
func (r *WaiverWireRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("waiver_expires_at <= ?", now).
		Delete(&models.WaiverWireEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to sweep expired waiver wire entries: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		r.logger.Info().Int64("removed", res.RowsAffected).Msg("swept expired waiver wire entries")
	}
	return res.RowsAffected, nil
}
