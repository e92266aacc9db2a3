package services

import (
	"context"
	"testing"

	"league-waiver-system/events"
	"league-waiver-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateClaimBidCountsCurrentBidAsAvailable(t *testing.T) {
	m := newMemDB()
	faabLeague(m)
	m.addRoster(1, 1, "user-1", 1)
	m.budgets[1].RemainingBudget = 40

	claim := pendingClaim(m, 1, 100, 1, 25)

	svc := newTestService(m, events.NewRecorder())

	// 40 remaining + 25 already committed on this claim = 65 available.
	updated, err := svc.UpdateClaim(context.Background(), 1, claim.ID, "user-1", UpdateClaimRequest{BidAmount: intPtr(65)})
	require.NoError(t, err)
	assert.Equal(t, 65, updated.BidAmount)

	_, err = svc.UpdateClaim(context.Background(), 1, claim.ID, "user-1", UpdateClaimRequest{BidAmount: intPtr(106)})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestUpdateClaimDropAndClear(t *testing.T) {
	m := newMemDB()
	standardLeague(m)
	m.addRoster(1, 1, "user-1", 1)
	m.own(1, 1, testSeasonID, 9)

	claim := pendingClaim(m, 1, 100, 1, 0)

	svc := newTestService(m, events.NewRecorder())

	_, err := svc.UpdateClaim(context.Background(), 1, claim.ID, "user-1", UpdateClaimRequest{DropPlayerID: int64Ptr(50)})
	assert.Equal(t, KindValidation, KindOf(err))

	updated, err := svc.UpdateClaim(context.Background(), 1, claim.ID, "user-1", UpdateClaimRequest{DropPlayerID: int64Ptr(9)})
	require.NoError(t, err)
	require.NotNil(t, updated.DropPlayerID)

	updated, err = svc.UpdateClaim(context.Background(), 1, claim.ID, "user-1", UpdateClaimRequest{ClearDrop: true})
	require.NoError(t, err)
	assert.Nil(t, updated.DropPlayerID)
}

func TestUpdateClaimOwnershipAndState(t *testing.T) {
	m := newMemDB()
	standardLeague(m)
	m.addRoster(1, 1, "user-1", 1)
	m.addRoster(2, 1, "user-2", 2)

	claim := pendingClaim(m, 1, 100, 1, 0)

	svc := newTestService(m, events.NewRecorder())

	_, err := svc.UpdateClaim(context.Background(), 1, claim.ID, "user-2", UpdateClaimRequest{BidAmount: intPtr(5)})
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = svc.UpdateClaim(context.Background(), 1, 999, "user-1", UpdateClaimRequest{BidAmount: intPtr(5)})
	assert.Equal(t, KindNotFound, KindOf(err))

	claim.Status = models.ClaimStatusSuccessful
	_, err = svc.UpdateClaim(context.Background(), 1, claim.ID, "user-1", UpdateClaimRequest{BidAmount: intPtr(5)})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestReorderClaimsRequiresExactPermutation(t *testing.T) {
	m := newMemDB()
	standardLeague(m)
	m.addRoster(1, 1, "user-1", 1)

	a := pendingClaim(m, 1, 100, 1, 0)
	b := pendingClaim(m, 1, 200, 2, 0)
	c := pendingClaim(m, 1, 300, 3, 0)

	svc := newTestService(m, events.NewRecorder())

	// Missing a claim.
	_, err := svc.ReorderClaims(context.Background(), 1, "user-1", []int64{a.ID, b.ID})
	assert.Equal(t, KindValidation, KindOf(err))

	// Duplicate id.
	_, err = svc.ReorderClaims(context.Background(), 1, "user-1", []int64{a.ID, a.ID, b.ID})
	assert.Equal(t, KindValidation, KindOf(err))

	// Unknown id.
	_, err = svc.ReorderClaims(context.Background(), 1, "user-1", []int64{a.ID, b.ID, 999})
	assert.Equal(t, KindValidation, KindOf(err))

	reordered, err := svc.ReorderClaims(context.Background(), 1, "user-1", []int64{c.ID, a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, reordered, 3)
	assert.Equal(t, c.ID, reordered[0].ID)
	assert.Equal(t, a.ID, reordered[1].ID)
	assert.Equal(t, b.ID, reordered[2].ID)
	assert.Equal(t, 1, m.claim(c.ID).ClaimOrder)
}

func TestCancelClaimOnlyWhilePending(t *testing.T) {
	m := newMemDB()
	league := standardLeague(m)
	m.addRoster(1, 1, "user-1", 1)
	m.addRoster(2, 1, "user-2", 2)

	claim := pendingClaim(m, 1, 100, 1, 0)

	bus := events.NewRecorder()
	svc := newTestService(m, bus)

	err := svc.CancelClaim(context.Background(), 1, claim.ID, "user-2")
	assert.Equal(t, KindForbidden, KindOf(err))

	// Cancellation works pre-season too.
	league.CurrentWeek = nil
	require.NoError(t, svc.CancelClaim(context.Background(), 1, claim.ID, "user-1"))
	assert.Equal(t, models.ClaimStatusCancelled, m.claim(claim.ID).Status)
	assert.Equal(t, []string{events.WaiverClaimCancelled}, bus.Kinds())

	// A second cancel loses the conditional update.
	err = svc.CancelClaim(context.Background(), 1, claim.ID, "user-1")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestGetBudgetsOnlyForFaabLeagues(t *testing.T) {
	m := newMemDB()
	standardLeague(m)
	m.addRoster(1, 1, "user-1", 1)

	svc := newTestService(m, events.NewRecorder())

	_, err := svc.GetBudgets(context.Background(), 1, "user-1")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestInitializeLeagueSeedsPrioritiesAndBudgets(t *testing.T) {
	m := newMemDB()
	faabLeague(m)
	m.addRoster(1, 1, "user-1", 3)
	m.addRoster(2, 1, "user-2", 1)
	m.addRoster(3, 1, "user-3", 2)

	svc := newTestService(m, events.NewRecorder())

	err := svc.InitializeLeague(context.Background(), 1, "user-1")
	assert.Equal(t, KindForbidden, KindOf(err))

	require.NoError(t, svc.InitializeLeague(context.Background(), 1, "commish"))

	// Priorities reseeded 1..N in roster order, budgets reset to full.
	assert.Equal(t, 1, m.priorities[1].Priority)
	assert.Equal(t, 2, m.priorities[2].Priority)
	assert.Equal(t, 3, m.priorities[3].Priority)
	for rosterID := int64(1); rosterID <= 3; rosterID++ {
		assert.Equal(t, 100, m.budgets[rosterID].RemainingBudget)
	}
}
