package services

import (
	"context"
	"errors"

	"league-waiver-system/database"
	"league-waiver-system/events"
	"league-waiver-system/models"

	"gorm.io/gorm"
)

// SubmitClaimRequest carries the claim a user wants to queue.
type SubmitClaimRequest struct {
	PlayerID       int64  `json:"player_id"`
	DropPlayerID   *int64 `json:"drop_player_id,omitempty"`
	BidAmount      int    `json:"bid_amount"`
	IdempotencyKey string `json:"-"` // from the X-Idempotency-Key header
}

// SubmitClaim validates and persists a new pending claim for the user's
// roster. Fast-fail preconditions run outside the waiver lock and are
// re-checked inside it; a resubmit carrying a known idempotency key returns
// the existing claim untouched.
func (s *WaiverService) SubmitClaim(ctx context.Context, leagueID int64, userID string, req SubmitClaimRequest) (*models.WaiverClaim, error) {
	league, roster, err := s.loadLeagueAndRoster(ctx, leagueID, userID)
	if err != nil {
		return nil, err
	}
	if league.WaiverType == models.WaiverTypeNone {
		return nil, validation("waivers are disabled for this league")
	}
	week, err := currentWeek(league)
	if err != nil {
		return nil, err
	}
	if req.BidAmount < 0 {
		return nil, validation("bid amount cannot be negative")
	}

	deferred := events.NewDeferred(s.bus)
	var claim *models.WaiverClaim

	err = s.runner.RunWithLock(ctx, database.LockDomainWaiver, leagueID, func(tx *gorm.DB) error {
		// League settings and membership can change while we waited on the
		// lock; re-check the fast-path preconditions against the locked view.
		league, err = s.leagues.FindByID(ctx, tx, leagueID)
		if err != nil {
			return err
		}
		if league == nil {
			return notFound("league not found")
		}
		if league.WaiverType == models.WaiverTypeNone {
			return validation("waivers are disabled for this league")
		}
		week, err = currentWeek(league)
		if err != nil {
			return err
		}
		roster, err = s.leagues.FindRosterByUser(ctx, tx, leagueID, userID)
		if err != nil {
			return err
		}
		if roster == nil {
			return forbidden("you do not have a roster in this league")
		}

		if req.IdempotencyKey != "" {
			existing, err := s.claims.FindByIdempotencyKey(ctx, tx, leagueID, roster.ID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				claim = existing
				return nil
			}
		}

		owner, err := s.rosterPlayers.FindOwner(ctx, tx, leagueID, req.PlayerID, league.ActiveLeagueSeasonID)
		if err != nil {
			return err
		}
		if owner != 0 {
			return conflict("player is already owned in this league")
		}

		duplicate, err := s.claims.HasPendingClaim(ctx, tx, roster.ID, req.PlayerID)
		if err != nil {
			return err
		}
		if duplicate {
			return validation("you already have a pending claim for this player")
		}

		if league.WaiverType == models.WaiverTypeFaab {
			budget, err := s.budgets.EnsureRosterBudget(ctx, tx, leagueID, roster.ID, league.Season, league.FaabBudget)
			if err != nil {
				return err
			}
			if req.BidAmount > budget.RemainingBudget {
				return validation("bid exceeds your remaining FAAB budget")
			}
		}

		if req.DropPlayerID != nil {
			owned, err := s.rosterPlayers.FindByRosterAndPlayer(ctx, tx, roster.ID, *req.DropPlayerID)
			if err != nil {
				return err
			}
			if owned == nil {
				return validation("drop player is not on your roster")
			}
		}

		priority, err := s.priorities.EnsureRosterPriority(ctx, tx, leagueID, roster.ID, league.Season)
		if err != nil {
			return err
		}

		order, err := s.claims.GetNextClaimOrder(ctx, tx, roster.ID, league.Season, week)
		if err != nil {
			return err
		}

		claim = &models.WaiverClaim{
			LeagueID:        leagueID,
			RosterID:        roster.ID,
			PlayerID:        req.PlayerID,
			DropPlayerID:    req.DropPlayerID,
			BidAmount:       req.BidAmount,
			PriorityAtClaim: priority.Priority,
			Status:          models.ClaimStatusPending,
			Season:          league.Season,
			Week:            week,
			ClaimOrder:      order,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			claim.IdempotencyKey = &key
		}

		if err := s.claims.Create(ctx, tx, claim); err != nil {
			// A retry raced us to the same idempotency key; surface the row
			// the winner inserted.
			if errors.Is(err, gorm.ErrDuplicatedKey) && req.IdempotencyKey != "" {
				existing, readErr := s.claims.FindByIdempotencyKey(ctx, tx, leagueID, roster.ID, req.IdempotencyKey)
				if readErr != nil {
					return readErr
				}
				if existing != nil {
					claim = existing
					return nil
				}
			}
			return err
		}

		deferred.Queue(events.WaiverClaimed, leagueID, claim)
		return nil
	})
	if err != nil {
		deferred.Discard()
		return nil, err
	}
	deferred.Flush(ctx)

	s.logger.Info().
		Int64("league_id", leagueID).
		Int64("roster_id", roster.ID).
		Int64("player_id", req.PlayerID).
		Int64("claim_id", claim.ID).
		Msg("waiver claim submitted")
	return claim, nil
}
