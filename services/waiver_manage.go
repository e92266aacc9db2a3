package services

import (
	"context"

	"league-waiver-system/database"
	"league-waiver-system/events"
	"league-waiver-system/models"

	"gorm.io/gorm"
)

// UpdateClaimRequest carries a partial edit of a pending claim.
type UpdateClaimRequest struct {
	BidAmount    *int   `json:"bid_amount,omitempty"`
	DropPlayerID *int64 `json:"drop_player_id,omitempty"`
	ClearDrop    bool   `json:"clear_drop,omitempty"`
}

// UpdateClaim changes the bid and/or drop of a still-pending claim.
func (s *WaiverService) UpdateClaim(ctx context.Context, leagueID, claimID int64, userID string, req UpdateClaimRequest) (*models.WaiverClaim, error) {
	league, roster, err := s.loadLeagueAndRoster(ctx, leagueID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := currentWeek(league); err != nil {
		return nil, err
	}

	deferred := events.NewDeferred(s.bus)
	var updated *models.WaiverClaim

	err = s.runner.RunWithLock(ctx, database.LockDomainWaiver, leagueID, func(tx *gorm.DB) error {
		claim, err := s.claims.FindByID(ctx, tx, claimID)
		if err != nil {
			return err
		}
		if claim == nil || claim.LeagueID != leagueID {
			return notFound("claim not found")
		}
		if claim.RosterID != roster.ID {
			return forbidden("claim belongs to another roster")
		}
		if claim.Status != models.ClaimStatusPending {
			return validation("claim is no longer pending")
		}

		if req.BidAmount != nil {
			if league.WaiverType == models.WaiverTypeFaab {
				budget, err := s.budgets.EnsureRosterBudget(ctx, tx, leagueID, roster.ID, league.Season, league.FaabBudget)
				if err != nil {
					return err
				}
				// The existing bid is not spent yet, so it is still available.
				available := budget.RemainingBudget + claim.BidAmount
				if *req.BidAmount < 0 {
					return validation("bid amount cannot be negative")
				}
				if *req.BidAmount > available {
					return validation("bid exceeds your remaining FAAB budget")
				}
			} else if *req.BidAmount < 0 {
				return validation("bid amount cannot be negative")
			}
			if err := s.claims.UpdateBid(ctx, tx, claimID, *req.BidAmount); err != nil {
				return err
			}
			claim.BidAmount = *req.BidAmount
		}

		if req.ClearDrop {
			if err := s.claims.UpdateDropPlayer(ctx, tx, claimID, nil); err != nil {
				return err
			}
			claim.DropPlayerID = nil
		} else if req.DropPlayerID != nil {
			owned, err := s.rosterPlayers.FindByRosterAndPlayer(ctx, tx, roster.ID, *req.DropPlayerID)
			if err != nil {
				return err
			}
			if owned == nil {
				return validation("drop player is not on your roster")
			}
			if err := s.claims.UpdateDropPlayer(ctx, tx, claimID, req.DropPlayerID); err != nil {
				return err
			}
			claim.DropPlayerID = req.DropPlayerID
		}

		updated = claim
		deferred.Queue(events.WaiverClaimUpdated, leagueID, claim)
		return nil
	})
	if err != nil {
		deferred.Discard()
		return nil, err
	}
	deferred.Flush(ctx)
	return updated, nil
}

// ReorderClaims rewrites the user's claim_order to the supplied permutation.
// Partial reorders are rejected: the ids must match the pending set exactly.
func (s *WaiverService) ReorderClaims(ctx context.Context, leagueID int64, userID string, orderedIDs []int64) ([]models.WaiverClaim, error) {
	league, roster, err := s.loadLeagueAndRoster(ctx, leagueID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := currentWeek(league); err != nil {
		return nil, err
	}

	deferred := events.NewDeferred(s.bus)
	var reordered []models.WaiverClaim

	err = s.runner.RunWithLock(ctx, database.LockDomainWaiver, leagueID, func(tx *gorm.DB) error {
		pending, err := s.claims.GetPendingByRoster(ctx, tx, roster.ID)
		if err != nil {
			return err
		}
		if len(orderedIDs) != len(pending) {
			return validation("reorder must include every pending claim exactly once")
		}
		pendingIDs := make(map[int64]struct{}, len(pending))
		for _, c := range pending {
			pendingIDs[c.ID] = struct{}{}
		}
		seen := make(map[int64]struct{}, len(orderedIDs))
		for _, id := range orderedIDs {
			if _, ok := pendingIDs[id]; !ok {
				return validation("reorder references a claim that is not pending")
			}
			if _, dup := seen[id]; dup {
				return validation("reorder contains duplicate claim ids")
			}
			seen[id] = struct{}{}
		}

		if err := s.claims.ReorderClaims(ctx, tx, roster.ID, orderedIDs); err != nil {
			return err
		}
		reordered, err = s.claims.GetPendingByRoster(ctx, tx, roster.ID)
		if err != nil {
			return err
		}
		deferred.Queue(events.WaiverClaimsReordered, leagueID, reordered)
		return nil
	})
	if err != nil {
		deferred.Discard()
		return nil, err
	}
	deferred.Flush(ctx)
	return reordered, nil
}

// CancelClaim cancels a pending claim. Unlike the other management calls it
// stays available pre-season so users can clean up queued claims.
func (s *WaiverService) CancelClaim(ctx context.Context, leagueID, claimID int64, userID string) error {
	_, roster, err := s.loadLeagueAndRoster(ctx, leagueID, userID)
	if err != nil {
		return err
	}

	deferred := events.NewDeferred(s.bus)

	err = s.runner.RunWithLock(ctx, database.LockDomainWaiver, leagueID, func(tx *gorm.DB) error {
		claim, err := s.claims.FindByID(ctx, tx, claimID)
		if err != nil {
			return err
		}
		if claim == nil || claim.LeagueID != leagueID {
			return notFound("claim not found")
		}
		if claim.RosterID != roster.ID {
			return forbidden("claim belongs to another roster")
		}

		// Conditional update guards the race with a concurrent processor:
		// zero rows means the claim already reached a terminal state.
		cancelled, err := s.claims.CancelIfPending(ctx, tx, claimID)
		if err != nil {
			return err
		}
		if !cancelled {
			return validation("claim is no longer pending")
		}
		claim.Status = models.ClaimStatusCancelled
		deferred.Queue(events.WaiverClaimCancelled, leagueID, claim)

		// Remaining claims keep their claim_order, so a cancel can leave a
		// gap. Ordering stays correct (relative order is what matters) and
		// the next reorder renumbers the queue contiguously.
		return nil
	})
	if err != nil {
		deferred.Discard()
		return err
	}
	deferred.Flush(ctx)
	return nil
}

// GetClaim returns one of the user's claims with player details, in any
// lifecycle state.
func (s *WaiverService) GetClaim(ctx context.Context, leagueID, claimID int64, userID string) (*models.WaiverClaim, error) {
	_, roster, err := s.loadLeagueAndRoster(ctx, leagueID, userID)
	if err != nil {
		return nil, err
	}
	claim, err := s.claims.FindByIDWithDetails(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim == nil || claim.LeagueID != leagueID {
		return nil, notFound("claim not found")
	}
	if claim.RosterID != roster.ID {
		return nil, forbidden("claim belongs to another roster")
	}
	return claim, nil
}

// GetMyClaims lists the user's pending claims with player details.
func (s *WaiverService) GetMyClaims(ctx context.Context, leagueID int64, userID string) ([]models.WaiverClaim, error) {
	_, roster, err := s.loadLeagueAndRoster(ctx, leagueID, userID)
	if err != nil {
		return nil, err
	}
	claims, err := s.claims.GetPendingByRoster(ctx, nil, roster.ID)
	if err != nil {
		return nil, err
	}
	s.claims.AttachPlayerDetails(ctx, claims)
	return claims, nil
}

// GetLeagueClaims lists every pending claim in the league joined with live
// priorities (commissioner view).
func (s *WaiverService) GetLeagueClaims(ctx context.Context, leagueID int64, userID string) ([]models.WaiverClaim, error) {
	league, _, err := s.loadLeagueAndRoster(ctx, leagueID, userID)
	if err != nil {
		return nil, err
	}
	week, err := currentWeek(league)
	if err != nil {
		return nil, err
	}
	claims, err := s.claims.GetPendingByLeagueWithCurrentPriority(ctx, nil, leagueID, league.Season, week)
	if err != nil {
		return nil, err
	}
	s.claims.AttachPlayerDetails(ctx, claims)
	return claims, nil
}

// GetPriorities returns the league's waiver order for the season.
func (s *WaiverService) GetPriorities(ctx context.Context, leagueID int64, userID string) ([]models.WaiverPriority, error) {
	league, _, err := s.loadLeagueAndRoster(ctx, leagueID, userID)
	if err != nil {
		return nil, err
	}
	return s.priorities.GetByLeague(ctx, leagueID, league.Season)
}

// GetBudgets returns the league's FAAB budgets for the season.
func (s *WaiverService) GetBudgets(ctx context.Context, leagueID int64, userID string) ([]models.FaabBudget, error) {
	league, _, err := s.loadLeagueAndRoster(ctx, leagueID, userID)
	if err != nil {
		return nil, err
	}
	if league.WaiverType != models.WaiverTypeFaab {
		return nil, validation("league does not use FAAB waivers")
	}
	return s.budgets.GetByLeague(ctx, leagueID, league.Season)
}

// GetWire returns the league's gated players.
func (s *WaiverService) GetWire(ctx context.Context, leagueID int64, userID string) ([]models.WaiverWireEntry, error) {
	if _, _, err := s.loadLeagueAndRoster(ctx, leagueID, userID); err != nil {
		return nil, err
	}
	return s.wire.GetByLeague(ctx, leagueID)
}

// InitializeLeague seeds priorities 1..N (roster order) and full FAAB budgets
// for the active season. Commissioner only.
func (s *WaiverService) InitializeLeague(ctx context.Context, leagueID int64, userID string) error {
	league, err := s.leagues.FindByID(ctx, nil, leagueID)
	if err != nil {
		return err
	}
	if league == nil {
		return notFound("league not found")
	}
	if league.CommissionerUserID != userID {
		return forbidden("only the commissioner can initialize waivers")
	}

	return s.runner.RunWithLock(ctx, database.LockDomainWaiver, leagueID, func(tx *gorm.DB) error {
		rosters, err := s.leagues.ListRosters(ctx, tx, leagueID)
		if err != nil {
			return err
		}
		rosterIDs := make([]int64, len(rosters))
		for i, r := range rosters {
			rosterIDs[i] = r.ID
		}
		if err := s.priorities.InitializeForLeague(ctx, tx, leagueID, league.Season, rosterIDs); err != nil {
			return err
		}
		if league.WaiverType == models.WaiverTypeFaab {
			if err := s.budgets.InitializeForLeague(ctx, tx, leagueID, league.Season, rosterIDs, league.FaabBudget); err != nil {
				return err
			}
		}
		s.logger.Info().Int64("league_id", leagueID).Int("rosters", len(rosterIDs)).Msg("initialized waiver state")
		return nil
	})
}
