package models

import (
	"time"
)

// Waiver modes supported by a league.
const (
	WaiverTypeStandard = "standard"
	WaiverTypeFaab     = "faab"
	WaiverTypeNone     = "none"
)

// League carries the season/week clock and the waiver settings the engine
// reads. Settings are flattened onto the row; current_week is NULL until the
// season starts.
type League struct {
	ID                   int64      `json:"id" gorm:"primaryKey"`
	Name                 string     `json:"name" gorm:"not null"`
	Season               int        `json:"season" gorm:"not null"`
	CommissionerUserID   string     `json:"commissioner_user_id" gorm:"index"`
	CurrentWeek          *int       `json:"current_week,omitempty"`
	ActiveLeagueSeasonID int64      `json:"active_league_season_id" gorm:"index"`
	WaiverType           string     `json:"waiver_type" gorm:"default:'standard'"` // standard, faab, none
	FaabBudget           int        `json:"faab_budget" gorm:"default:100"`
	WaiverDay            int        `json:"waiver_day" gorm:"default:3"` // 0-6, Sunday-based
	WaiverHour           int        `json:"waiver_hour" gorm:"default:3"`
	WaiverPeriodDays     int        `json:"waiver_period_days" gorm:"default:2"`
	RosterSize           int        `json:"roster_size" gorm:"default:15"`
	Timezone             string     `json:"timezone,omitempty"` // IANA name, empty = UTC
	CreatedAt            time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	Rosters []Roster `json:"rosters,omitempty" gorm:"foreignKey:LeagueID"`
}

// Roster is one team slot inside a league.
type Roster struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	LeagueID  int64     `json:"league_id" gorm:"not null;index"`
	UserID    string    `json:"user_id" gorm:"not null;index"` // external identity from the gateway
	RosterID  int       `json:"roster_id" gorm:"not null"`     // per-league index
	IsBenched bool      `json:"is_benched" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Player is the local mirror of the upstream provider's player catalog,
// refreshed by the sync worker.
type Player struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null;index"`
	Position  string    `json:"position" gorm:"size:8"`
	Team      string    `json:"team" gorm:"size:8"`
	Status    string    `json:"status" gorm:"size:16"` // active, injured, inactive
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// RosterPlayer is one owned player within a league-season. The unique index on
// (active_league_season_id, player_id) is what surfaces ownership conflicts
// when two paths try to acquire the same player.
type RosterPlayer struct {
	ID                   int64     `json:"id" gorm:"primaryKey"`
	RosterID             int64     `json:"roster_id" gorm:"not null;index;uniqueIndex:ux_roster_players_roster_player,priority:1"`
	LeagueID             int64     `json:"league_id" gorm:"not null;index"`
	ActiveLeagueSeasonID int64     `json:"active_league_season_id" gorm:"not null;uniqueIndex:ux_roster_players_owner,priority:1"`
	PlayerID             int64     `json:"player_id" gorm:"not null;uniqueIndex:ux_roster_players_owner,priority:2;uniqueIndex:ux_roster_players_roster_player,priority:2"`
	AcquiredType         string    `json:"acquired_type" gorm:"size:16"` // draft, waiver, free_agent, trade
	CreatedAt            time.Time `json:"created_at" gorm:"autoCreateTime"`
}
