package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"league-waiver-system/database"
	"league-waiver-system/events"
	"league-waiver-system/models"
	"league-waiver-system/repositories"

	"gorm.io/gorm"
)

// ProcessResult summarizes one processing run.
type ProcessResult struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
}

// Failure reasons stamped onto claims by the resolver.
const (
	reasonAlreadyOwned   = "Player already owned"
	reasonDropGone       = "Drop player no longer on roster"
	reasonNoBudget       = "Insufficient FAAB budget"
	reasonRosterFull     = "Roster full"
	reasonOutbid         = "Outbid by another team"
	reasonSystemError    = "System error during processing"
	reasonNotProcessable = "Claim could not be processed this run"
)

// processingState is the in-memory view the round loop mutates. It is owned
// by the single task processing this league and discarded at commit.
type processingState struct {
	league      *models.League
	week        int
	claims      []models.WaiverClaim
	states      map[int64]*RosterState
	ownedByAny  map[int64]int64 // player id -> owning roster id, league-wide
	maxPriority int
	successful  int
	deferred    *events.Deferred
}

// ProcessLeagueClaims resolves every snapshotted pending claim of the league
// for the current week in one atomic transaction. It is idempotent per hour
// window: a second invocation inside the same window is a no-op returning
// zeros. scheduledAt is the deadline instant the scheduler fired for.
func (s *WaiverService) ProcessLeagueClaims(ctx context.Context, leagueID int64, scheduledAt time.Time) (ProcessResult, error) {
	league, err := s.leagues.FindByID(ctx, nil, leagueID)
	if err != nil {
		return ProcessResult{}, err
	}
	if league == nil {
		return ProcessResult{}, notFound("league not found")
	}
	if league.WaiverType == models.WaiverTypeNone || league.CurrentWeek == nil || *league.CurrentWeek <= 0 {
		return ProcessResult{}, nil
	}
	week := *league.CurrentWeek

	windowStart := truncateToHour(scheduledAt, league.Timezone)
	deferred := events.NewDeferred(s.bus)

	var (
		result    ProcessResult
		run       *models.WaiverProcessingRun
		processed []models.WaiverClaim
	)

	err = s.runner.RunWithLock(ctx, database.LockDomainWaiver, leagueID, func(tx *gorm.DB) error {
		run, err = s.runs.TryCreate(ctx, tx, leagueID, league.Season, week, windowStart)
		if err != nil {
			return err
		}
		if run == nil {
			// A prior run owns this window; nothing to read.
			return nil
		}

		found, err := s.claims.SnapshotClaimsForRun(ctx, tx, leagueID, league.Season, week, run.ID)
		if err != nil {
			return err
		}
		if found == 0 {
			return s.runs.UpdateResults(ctx, tx, run.ID, 0, 0)
		}

		st, err := s.loadProcessingState(ctx, tx, league, week, run.ID, deferred)
		if err != nil {
			return err
		}

		if err := s.resolveRounds(ctx, tx, st); err != nil {
			return err
		}

		result = ProcessResult{Processed: len(st.claims), Successful: st.successful}
		run.ClaimsFound = len(st.claims)
		run.ClaimsSuccessful = st.successful
		if err := s.runs.UpdateResults(ctx, tx, run.ID, run.ClaimsFound, run.ClaimsSuccessful); err != nil {
			return err
		}

		s.queueSummaryEvents(st, run)
		processed = st.claims
		return nil
	})
	if err != nil {
		// The run row was inserted inside this transaction, so rollback
		// removes it and the window stays retryable.
		deferred.Discard()
		return ProcessResult{}, err
	}
	deferred.Flush(ctx)

	if run != nil && s.archiver != nil {
		if archErr := s.archiver.ArchiveRunReport(ctx, league, run, processed); archErr != nil {
			s.logger.Warn().Err(archErr).Int64("league_id", leagueID).Msg("failed to archive run report")
		}
	}

	s.logger.Info().
		Int64("league_id", leagueID).
		Int("processed", result.Processed).
		Int("successful", result.Successful).
		Msg("waiver processing run finished")
	return result, nil
}

// TriggerProcessing is the manual entry point behind the commissioner
// endpoint. It reuses the scheduled path, so a manual run and the scheduler
// firing in the same hour still collapse into one run.
func (s *WaiverService) TriggerProcessing(ctx context.Context, leagueID int64, userID string) (ProcessResult, error) {
	league, err := s.leagues.FindByID(ctx, nil, leagueID)
	if err != nil {
		return ProcessResult{}, err
	}
	if league == nil {
		return ProcessResult{}, notFound("league not found")
	}
	if league.CommissionerUserID != userID {
		return ProcessResult{}, forbidden("only the commissioner can trigger waiver processing")
	}
	return s.ProcessLeagueClaims(ctx, leagueID, s.now())
}

// truncateToHour buckets an instant to the top of its hour in the league's
// timezone, falling back to UTC when the name does not parse.
func truncateToHour(t time.Time, tz string) time.Time {
	loc := time.UTC
	if tz != "" {
		if parsed, err := time.LoadLocation(tz); err == nil {
			loc = parsed
		}
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
}

// loadProcessingState reads the snapshotted claims and builds the per-roster
// state the round loop works on. Ownership for the whole league-season is
// preloaded in one query.
func (s *WaiverService) loadProcessingState(ctx context.Context, tx *gorm.DB, league *models.League, week int, runID int64, deferred *events.Deferred) (*processingState, error) {
	claims, err := s.claims.GetPendingByProcessingRun(ctx, tx, runID)
	if err != nil {
		return nil, err
	}
	ownedByAny, err := s.rosterPlayers.GetOwnedPlayerIDsByLeague(ctx, tx, league.ID, league.ActiveLeagueSeasonID)
	if err != nil {
		return nil, err
	}
	maxPriority, err := s.priorities.GetMaxPriority(ctx, tx, league.ID, league.Season)
	if err != nil {
		return nil, err
	}

	states := make(map[int64]*RosterState)
	for i := range claims {
		c := &claims[i]
		if _, ok := states[c.RosterID]; ok {
			continue
		}
		rs := &RosterState{
			RosterID:          c.RosterID,
			CurrentPriority:   livePriority(c, nil),
			OwnedPlayerIDs:    make(map[int64]struct{}),
			ProcessedClaimIDs: make(map[int64]struct{}),
		}
		if league.WaiverType == models.WaiverTypeFaab {
			budget, err := s.budgets.EnsureRosterBudget(ctx, tx, league.ID, c.RosterID, league.Season, league.FaabBudget)
			if err != nil {
				return nil, err
			}
			rs.RemainingBudget = budget.RemainingBudget
		}
		size, err := s.rosterPlayers.GetPlayerCount(ctx, tx, c.RosterID)
		if err != nil {
			return nil, err
		}
		rs.CurrentRosterSize = size
		states[c.RosterID] = rs
	}
	for playerID, rosterID := range ownedByAny {
		if rs, ok := states[rosterID]; ok {
			rs.OwnedPlayerIDs[playerID] = struct{}{}
		}
	}

	return &processingState{
		league:      league,
		week:        week,
		claims:      claims,
		states:      states,
		ownedByAny:  ownedByAny,
		maxPriority: maxPriority,
		deferred:    deferred,
	}, nil
}

// resolveRounds runs the conflict-resolution loop until a round makes no
// progress, then invalidates anything left over.
func (s *WaiverService) resolveRounds(ctx context.Context, tx *gorm.DB, st *processingState) error {
	for {
		progress, err := s.resolveRound(ctx, tx, st)
		if err != nil {
			return err
		}
		if !progress {
			break
		}
	}

	// Anything still pending never became an active claim (e.g. the loop
	// stalled behind it); close it out so no claim survives the run.
	for i := range st.claims {
		c := &st.claims[i]
		if isProcessed(st, c.ID) {
			continue
		}
		if err := s.markClaim(ctx, tx, st, c, models.ClaimStatusInvalid, reasonNotProcessable); err != nil {
			return err
		}
	}
	return nil
}

// resolveRound selects each roster's active claim, validates, groups by
// player, and executes one winner per group. Reports whether any claim
// reached a terminal state.
func (s *WaiverService) resolveRound(ctx context.Context, tx *gorm.DB, st *processingState) (bool, error) {
	progress := false

	// Active claim per roster: lowest claim_order not yet processed. Claims
	// arrive ordered by (roster, claim_order).
	active := make(map[int64]*models.WaiverClaim)
	for i := range st.claims {
		c := &st.claims[i]
		if isProcessed(st, c.ID) {
			continue
		}
		if _, ok := active[c.RosterID]; !ok {
			active[c.RosterID] = c
		}
	}
	if len(active) == 0 {
		return false, nil
	}

	// Validate in deterministic roster order. An invalid claim is closed in
	// place, which can expose the roster's next claim in the following round.
	rosterIDs := make([]int64, 0, len(active))
	for rosterID := range active {
		rosterIDs = append(rosterIDs, rosterID)
	}
	sort.Slice(rosterIDs, func(i, j int) bool { return rosterIDs[i] < rosterIDs[j] })

	groups := make(map[int64][]*models.WaiverClaim)
	for _, rosterID := range rosterIDs {
		c := active[rosterID]
		if reason := s.validateClaim(st, c); reason != "" {
			if err := s.markClaim(ctx, tx, st, c, models.ClaimStatusInvalid, reason); err != nil {
				return false, err
			}
			progress = true
			continue
		}
		groups[c.PlayerID] = append(groups[c.PlayerID], c)
	}

	playerIDs := make([]int64, 0, len(groups))
	for playerID := range groups {
		playerIDs = append(playerIDs, playerID)
	}
	sort.Slice(playerIDs, func(i, j int) bool { return playerIDs[i] < playerIDs[j] })

	for _, playerID := range playerIDs {
		group := groups[playerID]
		sortClaimGroup(group, st.league.WaiverType, st.states)

		won := false
		for _, candidate := range group {
			if won {
				if err := s.markClaim(ctx, tx, st, candidate, models.ClaimStatusFailed, reasonOutbid); err != nil {
					return false, err
				}
				progress = true
				continue
			}
			err := s.executeClaim(ctx, tx, st, candidate)
			switch {
			case err == nil:
				if markErr := s.markClaim(ctx, tx, st, candidate, models.ClaimStatusSuccessful, ""); markErr != nil {
					return false, markErr
				}
				s.applyWin(st, candidate)
				won = true
				progress = true
			case errors.Is(err, repositories.ErrOwnershipConflict):
				// A roster outside this run grabbed the player concurrently;
				// the next candidate still gets its shot.
				if markErr := s.markClaim(ctx, tx, st, candidate, models.ClaimStatusInvalid, reasonAlreadyOwned); markErr != nil {
					return false, markErr
				}
				progress = true
			default:
				s.logger.Warn().Err(err).Int64("claim_id", candidate.ID).Msg("claim execution failed")
				if markErr := s.markClaim(ctx, tx, st, candidate, models.ClaimStatusFailed, reasonSystemError); markErr != nil {
					return false, markErr
				}
				progress = true
			}
		}
	}

	return progress, nil
}

// validateClaim checks a claim against the current in-memory state. Empty
// string means valid; otherwise the invalidation reason.
func (s *WaiverService) validateClaim(st *processingState, c *models.WaiverClaim) string {
	if owner, owned := st.ownedByAny[c.PlayerID]; owned && owner != c.RosterID {
		return reasonAlreadyOwned
	}
	rs := st.states[c.RosterID]
	if c.DropPlayerID != nil {
		if _, stillOwned := rs.OwnedPlayerIDs[*c.DropPlayerID]; !stillOwned {
			return reasonDropGone
		}
	}
	if st.league.WaiverType == models.WaiverTypeFaab && c.BidAmount > rs.RemainingBudget {
		return reasonNoBudget
	}
	if c.DropPlayerID == nil && rs.CurrentRosterSize >= st.league.RosterSize {
		return reasonRosterFull
	}
	return ""
}

// executeClaim performs the roster mutations for a winning candidate inside a
// savepoint, so a constraint failure rolls back only this claim's writes.
func (s *WaiverService) executeClaim(ctx context.Context, tx *gorm.DB, st *processingState, c *models.WaiverClaim) error {
	return inSavepoint(tx, func(tx *gorm.DB) error {
		league := st.league
		var dropTxID *string

		if c.DropPlayerID != nil {
			if err := s.rosterPlayers.RemovePlayer(ctx, tx, c.RosterID, *c.DropPlayerID); err != nil {
				return err
			}
			record, err := s.rosterTx.Create(ctx, tx, &models.RosterTransaction{
				LeagueID: league.ID,
				RosterID: c.RosterID,
				PlayerID: *c.DropPlayerID,
				Type:     models.TransactionTypeDrop,
				Season:   league.Season,
				Week:     st.week,
			})
			if err != nil {
				return err
			}
			dropTxID = &record.ID

			rosterID := c.RosterID
			if err := s.wire.AddPlayer(ctx, tx, &models.WaiverWireEntry{
				LeagueID:          league.ID,
				PlayerID:          *c.DropPlayerID,
				DroppedByRosterID: &rosterID,
				WaiverExpiresAt:   s.now().Add(time.Duration(league.WaiverPeriodDays) * 24 * time.Hour),
				Season:            league.Season,
				Week:              st.week,
			}); err != nil {
				return err
			}
		}

		if err := s.rosterPlayers.AddPlayer(ctx, tx, &models.RosterPlayer{
			RosterID:             c.RosterID,
			LeagueID:             league.ID,
			ActiveLeagueSeasonID: league.ActiveLeagueSeasonID,
			PlayerID:             c.PlayerID,
			AcquiredType:         "waiver",
		}); err != nil {
			return err
		}

		if _, err := s.rosterTx.Create(ctx, tx, &models.RosterTransaction{
			LeagueID:             league.ID,
			RosterID:             c.RosterID,
			PlayerID:             c.PlayerID,
			Type:                 models.TransactionTypeAdd,
			Season:               league.Season,
			Week:                 st.week,
			RelatedTransactionID: dropTxID,
		}); err != nil {
			return err
		}

		switch league.WaiverType {
		case models.WaiverTypeFaab:
			if c.BidAmount > 0 {
				if err := s.budgets.DeductBudget(ctx, tx, league.ID, c.RosterID, league.Season, c.BidAmount); err != nil {
					return err
				}
			}
		case models.WaiverTypeStandard:
			// A roster that already won this run sits at max priority;
			// rotating again would reshuffle everyone else for nothing.
			if rs := st.states[c.RosterID]; rs == nil || rs.CurrentPriority != st.maxPriority {
				if err := s.priorities.RotatePriority(ctx, tx, league.ID, league.Season, c.RosterID); err != nil {
					return err
				}
			}
		}

		if err := s.wire.RemovePlayer(ctx, tx, league.ID, c.PlayerID); err != nil {
			return err
		}

		moved := []int64{c.PlayerID}
		if c.DropPlayerID != nil {
			moved = append(moved, *c.DropPlayerID)
		}
		invalidated, err := s.trades.ExpireReferencingPlayers(ctx, tx, league.ID, moved)
		if err != nil {
			return err
		}
		for i := range invalidated {
			st.deferred.Queue(events.TradeInvalidated, league.ID, &invalidated[i])
		}
		return nil
	})
}

// applyWin updates the in-memory state after a successful execution so later
// rounds see the rotated priority, spent budget, and moved players.
func (s *WaiverService) applyWin(st *processingState, c *models.WaiverClaim) {
	rs := st.states[c.RosterID]

	st.ownedByAny[c.PlayerID] = c.RosterID
	rs.OwnedPlayerIDs[c.PlayerID] = struct{}{}
	rs.CurrentRosterSize++
	if c.DropPlayerID != nil {
		delete(st.ownedByAny, *c.DropPlayerID)
		delete(rs.OwnedPlayerIDs, *c.DropPlayerID)
		rs.CurrentRosterSize--
	}

	switch st.league.WaiverType {
	case models.WaiverTypeFaab:
		rs.RemainingBudget -= c.BidAmount
	case models.WaiverTypeStandard:
		prev := rs.CurrentPriority
		for _, other := range st.states {
			if other.CurrentPriority > prev {
				other.CurrentPriority--
			}
		}
		rs.CurrentPriority = st.maxPriority
	}

	st.successful++
}

// markClaim moves a claim to its terminal status, records it as processed,
// and queues the matching event.
func (s *WaiverService) markClaim(ctx context.Context, tx *gorm.DB, st *processingState, c *models.WaiverClaim, status, reason string) error {
	if err := s.claims.UpdateStatus(ctx, tx, c.ID, status, reason); err != nil {
		return err
	}
	c.Status = status
	c.FailureReason = reason
	st.states[c.RosterID].ProcessedClaimIDs[c.ID] = struct{}{}

	if status == models.ClaimStatusSuccessful {
		st.deferred.Queue(events.WaiverClaimSuccessful, st.league.ID, c)
	} else {
		st.deferred.Queue(events.WaiverClaimFailed, st.league.ID, c)
	}
	return nil
}

// queueSummaryEvents emits the post-run aggregates: rotated priorities or
// spent budgets (when anything succeeded) and the run summary itself.
func (s *WaiverService) queueSummaryEvents(st *processingState, run *models.WaiverProcessingRun) {
	if st.successful > 0 {
		switch st.league.WaiverType {
		case models.WaiverTypeStandard:
			priorities := make([]models.WaiverPriority, 0, len(st.states))
			for _, rs := range st.states {
				priorities = append(priorities, models.WaiverPriority{
					LeagueID: st.league.ID,
					RosterID: rs.RosterID,
					Season:   st.league.Season,
					Priority: rs.CurrentPriority,
				})
			}
			sort.Slice(priorities, func(i, j int) bool { return priorities[i].Priority < priorities[j].Priority })
			st.deferred.Queue(events.WaiverPriorityUpdated, st.league.ID, priorities)
		case models.WaiverTypeFaab:
			budgets := make([]models.FaabBudget, 0, len(st.states))
			for _, rs := range st.states {
				budgets = append(budgets, models.FaabBudget{
					LeagueID:        st.league.ID,
					RosterID:        rs.RosterID,
					Season:          st.league.Season,
					RemainingBudget: rs.RemainingBudget,
				})
			}
			sort.Slice(budgets, func(i, j int) bool { return budgets[i].RosterID < budgets[j].RosterID })
			st.deferred.Queue(events.WaiverBudgetUpdated, st.league.ID, budgets)
		}
	}
	st.deferred.Queue(events.WaiverProcessed, st.league.ID, run)
}

func isProcessed(st *processingState, claimID int64) bool {
	for _, rs := range st.states {
		if _, ok := rs.ProcessedClaimIDs[claimID]; ok {
			return true
		}
	}
	return false
}

// inSavepoint nests fn in a savepoint when running on a real connection.
// Tests drive the use cases with a nil client and plain fakes.
func inSavepoint(tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx == nil {
		return fn(nil)
	}
	return tx.Transaction(fn)
}
