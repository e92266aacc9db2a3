package services

import (
	"sort"

	"league-waiver-system/models"
)

// RosterState is the per-roster view the resolver mutates between rounds. It
// is owned exclusively by the single task processing the league.
type RosterState struct {
	RosterID          int64
	CurrentPriority   int
	RemainingBudget   int
	OwnedPlayerIDs    map[int64]struct{}
	ProcessedClaimIDs map[int64]struct{}
	CurrentRosterSize int
}

// CompareClaims imposes a strict total order over two competing claims.
// Returns a negative value when a wins over b.
//
// FAAB: higher bid, then lower live priority, then earlier created_at, then
// lower id. Standard: lower live priority, then earlier created_at, then
// lower id. The id tiebreaker keeps the outcome deterministic even under
// identical timestamps and priorities.
func CompareClaims(a, b *models.WaiverClaim, waiverType string, states map[int64]*RosterState) int {
	if waiverType == models.WaiverTypeFaab {
		if a.BidAmount != b.BidAmount {
			return b.BidAmount - a.BidAmount
		}
	}
	pa, pb := livePriority(a, states), livePriority(b, states)
	if pa != pb {
		return pa - pb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// livePriority prefers the roster's rotated in-run priority over the snapshot
// taken at submit time.
func livePriority(c *models.WaiverClaim, states map[int64]*RosterState) int {
	if st, ok := states[c.RosterID]; ok {
		return st.CurrentPriority
	}
	if c.CurrentPriority > 0 {
		return c.CurrentPriority
	}
	return c.PriorityAtClaim
}

// sortClaimGroup orders the competing claims for one player, best first.
func sortClaimGroup(group []*models.WaiverClaim, waiverType string, states map[int64]*RosterState) {
	sort.SliceStable(group, func(i, j int) bool {
		return CompareClaims(group[i], group[j], waiverType, states) < 0
	})
}
