package models

import (
	"time"
)

// Roster transaction types.
const (
	TransactionTypeAdd   = "add"
	TransactionTypeDrop  = "drop"
	TransactionTypeTrade = "trade"
)

// Trade states the waiver processor can expire out from under a pending deal.
const (
	TradeStatusPending  = "pending"
	TradeStatusAccepted = "accepted"
	TradeStatusInReview = "in_review"
	TradeStatusExpired  = "expired"
)

// RosterTransaction is the audit record written for every executed add/drop.
// The idempotency key dedupes retried writes per (league, roster).
type RosterTransaction struct {
	ID                   string    `json:"id" gorm:"primaryKey;type:uuid"`
	LeagueID             int64     `json:"league_id" gorm:"not null;index;uniqueIndex:ux_roster_tx_idem,where:idempotency_key IS NOT NULL,priority:1"`
	RosterID             int64     `json:"roster_id" gorm:"not null;index;uniqueIndex:ux_roster_tx_idem,where:idempotency_key IS NOT NULL,priority:2"`
	PlayerID             int64     `json:"player_id" gorm:"not null"`
	Type                 string    `json:"type" gorm:"not null;size:16"` // add, drop, trade
	Season               int       `json:"season" gorm:"not null"`
	Week                 int       `json:"week" gorm:"not null"`
	RelatedTransactionID *string   `json:"related_transaction_id,omitempty" gorm:"type:uuid"`
	IdempotencyKey       *string   `json:"idempotency_key,omitempty" gorm:"size:128;uniqueIndex:ux_roster_tx_idem,where:idempotency_key IS NOT NULL,priority:3"`
	CreatedAt            time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// Trade is consumed only for invalidation: when a waiver moves a player that a
// still-open trade references, the trade is expired.
type Trade struct {
	ID               int64     `json:"id" gorm:"primaryKey"`
	LeagueID         int64     `json:"league_id" gorm:"not null;index"`
	ProposerRosterID int64     `json:"proposer_roster_id" gorm:"not null"`
	ReceiverRosterID int64     `json:"receiver_roster_id" gorm:"not null"`
	Status           string    `json:"status" gorm:"not null;default:'pending';index"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Players []TradePlayer `json:"players,omitempty" gorm:"foreignKey:TradeID"`
}

// TradePlayer is one player included in a trade offer.
type TradePlayer struct {
	ID           int64 `json:"id" gorm:"primaryKey"`
	TradeID      int64 `json:"trade_id" gorm:"not null;index"`
	PlayerID     int64 `json:"player_id" gorm:"not null;index"`
	FromRosterID int64 `json:"from_roster_id" gorm:"not null"`
}
