package repositories

import (
	"context"
	"errors"
	"fmt"

	"league-waiver-system/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// LeaguesRepository reads league and roster state. The waiver engine consumes
// leagues; it never mutates them.
type LeaguesRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewLeaguesRepository(db *gorm.DB, logger zerolog.Logger) *LeaguesRepository {
	return &LeaguesRepository{
		db:     db,
		logger: logger.With().Str("repository", "leagues").Logger(),
	}
}

func (r *LeaguesRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *LeaguesRepository) FindByID(ctx context.Context, tx *gorm.DB, id int64) (*models.League, error) {
	var league models.League
	if err := r.conn(tx).WithContext(ctx).First(&league, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load league %d: %w", id, err)
	}
	return &league, nil
}

// FindRosterByUser returns the user's roster in the league, or nil when the
// user is not a member.
func (r *LeaguesRepository) FindRosterByUser(ctx context.Context, tx *gorm.DB, leagueID int64, userID string) (*models.Roster, error) {
	var roster models.Roster
	err := r.conn(tx).WithContext(ctx).
		Where("league_id = ? AND user_id = ?", leagueID, userID).
		First(&roster).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find roster for user %s: %w", userID, err)
	}
	return &roster, nil
}

func (r *LeaguesRepository) ListRosters(ctx context.Context, tx *gorm.DB, leagueID int64) ([]models.Roster, error) {
	var rosters []models.Roster
	err := r.conn(tx).WithContext(ctx).
		Where("league_id = ?", leagueID).
		Order("roster_id ASC").
		Find(&rosters).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rosters for league %d: %w", leagueID, err)
	}
	return rosters, nil
}

// FindDueLeagues returns leagues with waivers enabled whose scheduled
// (waiver_day, waiver_hour) matches the given instant in each league's own
// timezone. Leagues with a bad timezone name are evaluated in UTC.
func (r *LeaguesRepository) FindDueLeagues(ctx context.Context, now func(tz string) (weekday, hour int)) ([]models.League, error) {
	var leagues []models.League
	err := r.db.WithContext(ctx).
		Where("waiver_type <> ? AND current_week IS NOT NULL", models.WaiverTypeNone).
		Find(&leagues).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leagues for scheduling: %w", err)
	}
	due := leagues[:0]
	for _, league := range leagues {
		weekday, hour := now(league.Timezone)
		if league.WaiverDay == weekday && league.WaiverHour == hour {
			due = append(due, league)
		}
	}
	return due, nil
}
