package repositories

import (
	"context"
	"fmt"

	"league-waiver-system/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlayersRepository mirrors the upstream player catalog locally.
type PlayersRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewPlayersRepository(db *gorm.DB, logger zerolog.Logger) *PlayersRepository {
	return &PlayersRepository{
		db:     db,
		logger: logger.With().Str("repository", "players").Logger(),
	}
}

// UpsertBatch bulk-upserts synced players in one statement.
func (r *PlayersRepository) UpsertBatch(ctx context.Context, players []models.Player) error {
	if len(players) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "position", "team", "status", "updated_at"}),
		}).
		Create(&players).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %d players: %w", len(players), err)
	}
	return nil
}

func (r *PlayersRepository) FindByIDs(ctx context.Context, ids []int64) ([]models.Player, error) {
	var players []models.Player
	if len(ids) == 0 {
		return players, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&players).Error; err != nil {
		return nil, fmt.Errorf("failed to load players: %w", err)
	}
	return players, nil
}
