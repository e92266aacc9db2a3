package repositories

import (
	"context"
	"fmt"

	"league-waiver-system/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RosterTransactionsRepository writes the add/drop audit trail.
type RosterTransactionsRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewRosterTransactionsRepository(db *gorm.DB, logger zerolog.Logger) *RosterTransactionsRepository {
	return &RosterTransactionsRepository{
		db:     db,
		logger: logger.With().Str("repository", "roster_transactions").Logger(),
	}
}

func (r *RosterTransactionsRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create records a roster transaction. When the idempotency key already has a
// row for (league, roster) the existing record is returned instead of a new
// one, so retried executions stay single-entry.
func (r *RosterTransactionsRepository) Create(ctx context.Context, tx *gorm.DB, record *models.RosterTransaction) (*models.RosterTransaction, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	res := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create roster transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 && record.IdempotencyKey != nil {
		var existing models.RosterTransaction
		err := r.conn(tx).WithContext(ctx).
			Where("league_id = ? AND roster_id = ? AND idempotency_key = ?",
				record.LeagueID, record.RosterID, *record.IdempotencyKey).
			First(&existing).Error
		if err != nil {
			return nil, fmt.Errorf("failed to re-read roster transaction after conflict: %w", err)
		}
		return &existing, nil
	}
	return record, nil
}
