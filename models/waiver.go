package models

import (
	"time"
)

// Claim lifecycle states. A claim leaves pending exactly once.
const (
	ClaimStatusPending    = "pending"
	ClaimStatusSuccessful = "successful"
	ClaimStatusFailed     = "failed"
	ClaimStatusInvalid    = "invalid"
	ClaimStatusCancelled  = "cancelled"
)

// WaiverClaim is a prioritized request to acquire a player, optionally paired
// with a drop. claim_order is the user's own processing sequence within a
// (roster, season, week); priority_at_claim is a snapshot taken at submit.
type WaiverClaim struct {
	ID              int64      `json:"id" gorm:"primaryKey"`
	LeagueID        int64      `json:"league_id" gorm:"not null;index;uniqueIndex:ux_waiver_claims_idem,where:idempotency_key IS NOT NULL,priority:1"`
	RosterID        int64      `json:"roster_id" gorm:"not null;index;uniqueIndex:ux_waiver_claims_idem,where:idempotency_key IS NOT NULL,priority:2"`
	PlayerID        int64      `json:"player_id" gorm:"not null"`
	DropPlayerID    *int64     `json:"drop_player_id,omitempty"`
	BidAmount       int        `json:"bid_amount" gorm:"not null;default:0"`
	PriorityAtClaim int        `json:"priority_at_claim"`
	Status          string     `json:"status" gorm:"not null;default:'pending';index"`
	Season          int        `json:"season" gorm:"not null"`
	Week            int        `json:"week" gorm:"not null"`
	ClaimOrder      int        `json:"claim_order" gorm:"not null;default:1"`
	ProcessingRunID *int64     `json:"processing_run_id,omitempty" gorm:"index"`
	IdempotencyKey  *string    `json:"idempotency_key,omitempty" gorm:"size:128;uniqueIndex:ux_waiver_claims_idem,where:idempotency_key IS NOT NULL,priority:3"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	FailureReason   string     `json:"failure_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	// Projection fields (not stored)
	Player          *Player `json:"player,omitempty" gorm:"-"`
	DropPlayer      *Player `json:"drop_player,omitempty" gorm:"-"`
	CurrentPriority int     `json:"current_priority,omitempty" gorm:"-"`
}

// WaiverPriority is the standard-mode pecking order: 1 is best, and for an
// active season the priorities form a contiguous permutation of 1..N.
type WaiverPriority struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	LeagueID  int64     `json:"league_id" gorm:"not null;uniqueIndex:ux_waiver_priority,priority:1"`
	RosterID  int64     `json:"roster_id" gorm:"not null;uniqueIndex:ux_waiver_priority,priority:2"`
	Season    int       `json:"season" gorm:"not null;uniqueIndex:ux_waiver_priority,priority:3"`
	Priority  int       `json:"priority" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// FaabBudget tracks the per-season acquisition budget for one roster.
// 0 <= remaining_budget <= initial_budget always holds.
type FaabBudget struct {
	ID              int64     `json:"id" gorm:"primaryKey"`
	LeagueID        int64     `json:"league_id" gorm:"not null;uniqueIndex:ux_faab_budgets,priority:1"`
	RosterID        int64     `json:"roster_id" gorm:"not null;uniqueIndex:ux_faab_budgets,priority:2"`
	Season          int       `json:"season" gorm:"not null;uniqueIndex:ux_faab_budgets,priority:3"`
	InitialBudget   int       `json:"initial_budget" gorm:"not null"`
	RemainingBudget int       `json:"remaining_budget" gorm:"not null"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// WaiverWireEntry gates a recently dropped player: until waiver_expires_at the
// player can only be acquired through a claim.
type WaiverWireEntry struct {
	ID                int64     `json:"id" gorm:"primaryKey"`
	LeagueID          int64     `json:"league_id" gorm:"not null;uniqueIndex:ux_waiver_wire,priority:1"`
	PlayerID          int64     `json:"player_id" gorm:"not null;uniqueIndex:ux_waiver_wire,priority:2"`
	DroppedByRosterID *int64    `json:"dropped_by_roster_id,omitempty"`
	WaiverExpiresAt   time.Time `json:"waiver_expires_at" gorm:"not null;index"`
	Season            int       `json:"season" gorm:"not null"`
	Week              int       `json:"week" gorm:"not null"`
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`

	Player *Player `json:"player,omitempty" gorm:"-"`
}

// WaiverProcessingRun is the idempotence anchor for scheduled processing: one
// row per (league, season, week, window_start_at), window_start_at truncated
// to the hour of the deadline in the league's timezone.
type WaiverProcessingRun struct {
	ID               int64     `json:"id" gorm:"primaryKey"`
	LeagueID         int64     `json:"league_id" gorm:"not null;uniqueIndex:ux_waiver_runs,priority:1"`
	Season           int       `json:"season" gorm:"not null;uniqueIndex:ux_waiver_runs,priority:2"`
	Week             int       `json:"week" gorm:"not null;uniqueIndex:ux_waiver_runs,priority:3"`
	WindowStartAt    time.Time `json:"window_start_at" gorm:"not null;uniqueIndex:ux_waiver_runs,priority:4"`
	ClaimsFound      int       `json:"claims_found" gorm:"default:0"`
	ClaimsSuccessful int       `json:"claims_successful" gorm:"default:0"`
	RanAt            time.Time `json:"ran_at" gorm:"autoCreateTime"`
}
