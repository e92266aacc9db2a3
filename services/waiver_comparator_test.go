package services

import (
	"testing"
	"time"

	"league-waiver-system/models"

	"github.com/stretchr/testify/assert"
)

func claimAt(id, rosterID int64, bid, priority int, createdAt time.Time) *models.WaiverClaim {
	return &models.WaiverClaim{
		ID: id, RosterID: rosterID, BidAmount: bid,
		PriorityAtClaim: priority, CurrentPriority: priority,
		CreatedAt: createdAt,
	}
}

func TestCompareClaimsFaab(t *testing.T) {
	base := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)

	highBid := claimAt(1, 1, 50, 5, base)
	lowBid := claimAt(2, 2, 20, 1, base)
	assert.Negative(t, CompareClaims(highBid, lowBid, models.WaiverTypeFaab, nil),
		"higher bid beats better priority")

	tiedWorse := claimAt(3, 3, 50, 8, base)
	assert.Negative(t, CompareClaims(highBid, tiedWorse, models.WaiverTypeFaab, nil),
		"tied bids fall back to priority")

	earlier := claimAt(4, 4, 50, 5, base.Add(-time.Minute))
	assert.Positive(t, CompareClaims(highBid, earlier, models.WaiverTypeFaab, nil),
		"tied bid and priority fall back to created_at")

	sameEverything := claimAt(9, 9, 50, 5, base)
	assert.Negative(t, CompareClaims(highBid, sameEverything, models.WaiverTypeFaab, nil),
		"full tie breaks on lower id")
	assert.Zero(t, CompareClaims(highBid, highBid, models.WaiverTypeFaab, nil))
}

func TestCompareClaimsStandardIgnoresBids(t *testing.T) {
	base := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)

	bigBid := claimAt(1, 1, 99, 5, base)
	betterPriority := claimAt(2, 2, 0, 1, base)
	assert.Positive(t, CompareClaims(bigBid, betterPriority, models.WaiverTypeStandard, nil),
		"standard mode orders by priority regardless of bid")
}

func TestCompareClaimsUsesLivePriorityFromStates(t *testing.T) {
	base := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)

	// Snapshot says roster 1 is best, but it won earlier in this run and the
	// live state has it rotated to last.
	rotated := claimAt(1, 1, 0, 1, base)
	steady := claimAt(2, 2, 0, 2, base)
	states := map[int64]*RosterState{
		1: {RosterID: 1, CurrentPriority: 10},
		2: {RosterID: 2, CurrentPriority: 2},
	}
	assert.Positive(t, CompareClaims(rotated, steady, models.WaiverTypeStandard, states))
}

func TestSortClaimGroupIsDeterministic(t *testing.T) {
	base := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	group := []*models.WaiverClaim{
		claimAt(3, 3, 10, 3, base),
		claimAt(1, 1, 10, 3, base),
		claimAt(2, 2, 30, 9, base),
	}

	sortClaimGroup(group, models.WaiverTypeFaab, nil)

	assert.Equal(t, int64(2), group[0].ID, "highest bid first")
	assert.Equal(t, int64(1), group[1].ID, "then lower id among full ties")
	assert.Equal(t, int64(3), group[2].ID)
}
