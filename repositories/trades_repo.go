package repositories

import (
	"context"
	"fmt"

	"league-waiver-system/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// TradesRepository is consumed by the waiver engine only for invalidation:
// trades referencing a player a claim just moved are expired.
type TradesRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewTradesRepository(db *gorm.DB, logger zerolog.Logger) *TradesRepository {
	return &TradesRepository{
		db:     db,
		logger: logger.With().Str("repository", "trades").Logger(),
	}
}

func (r *TradesRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Trade statuses the processor may still invalidate.
var invalidatableStatuses = []string{
	models.TradeStatusPending,
	models.TradeStatusAccepted,
	models.TradeStatusInReview,
}

// FindPendingByPlayer returns open trades in the league that include the
// player.
func (r *TradesRepository) FindPendingByPlayer(ctx context.Context, tx *gorm.DB, leagueID, playerID int64) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.conn(tx).WithContext(ctx).
		Joins("JOIN trade_players ON trade_players.trade_id = trades.id").
		Where("trades.league_id = ? AND trade_players.player_id = ? AND trades.status IN ?",
			leagueID, playerID, invalidatableStatuses).
		Distinct("trades.*").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find trades for player %d: %w", playerID, err)
	}
	return trades, nil
}

// ExpireReferencingPlayers conditionally expires every open trade that
// references any of the moved players and returns the trades it touched, for
// post-commit TRADE_INVALIDATED emission.
func (r *TradesRepository) ExpireReferencingPlayers(ctx context.Context, tx *gorm.DB, leagueID int64, playerIDs []int64) ([]models.Trade, error) {
	if len(playerIDs) == 0 {
		return nil, nil
	}
	conn := r.conn(tx).WithContext(ctx)

	var trades []models.Trade
	err := conn.
		Joins("JOIN trade_players ON trade_players.trade_id = trades.id").
		Where("trades.league_id = ? AND trade_players.player_id IN ? AND trades.status IN ?",
			leagueID, playerIDs, invalidatableStatuses).
		Distinct("trades.*").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find trades to invalidate: %w", err)
	}
	if len(trades) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(trades))
	for i, t := range trades {
		ids[i] = t.ID
	}
	res := conn.Model(&models.Trade{}).
		Where("id IN ? AND status IN ?", ids, invalidatableStatuses).
		Update("status", models.TradeStatusExpired)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to expire trades: %w", res.Error)
	}
	for i := range trades {
		trades[i].Status = models.TradeStatusExpired
	}
	r.logger.Info().Int64("league_id", leagueID).Int("expired", len(trades)).Msg("invalidated trades referencing moved players")
	return trades, nil
}
