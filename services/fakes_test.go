package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"league-waiver-system/database"
	"league-waiver-system/events"
	"league-waiver-system/models"
	"league-waiver-system/repositories"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// memDB is the in-memory backing store shared by the fake repositories. The
// fakes model a single league per test, which is all the use cases touch.
type memDB struct {
	now time.Time

	leagues       map[int64]*models.League
	rosters       []models.Roster
	claims        map[int64]*models.WaiverClaim
	nextClaimID   int64
	priorities    map[int64]*models.WaiverPriority // by roster id
	budgets       map[int64]*models.FaabBudget     // by roster id
	wire          map[int64]*models.WaiverWireEntry // by player id
	rosterPlayers []*models.RosterPlayer
	runs          []*models.WaiverProcessingRun
	nextRunID     int64
	rosterTxs     []*models.RosterTransaction
	trades        map[int64]*models.Trade
	tradePlayers  []models.TradePlayer

	// addPlayerErr injects a one-shot failure the next time the given player
	// is added to a roster.
	addPlayerErr map[int64]error
}

func newMemDB() *memDB {
	return &memDB{
		now:          time.Date(2025, 9, 17, 3, 0, 0, 0, time.UTC),
		leagues:      make(map[int64]*models.League),
		claims:       make(map[int64]*models.WaiverClaim),
		priorities:   make(map[int64]*models.WaiverPriority),
		budgets:      make(map[int64]*models.FaabBudget),
		wire:         make(map[int64]*models.WaiverWireEntry),
		trades:       make(map[int64]*models.Trade),
		addPlayerErr: make(map[int64]error),
	}
}

func (m *memDB) addLeague(league *models.League) *models.League {
	m.leagues[league.ID] = league
	return league
}

func (m *memDB) addRoster(id int64, leagueID int64, userID string, priority int) {
	m.rosters = append(m.rosters, models.Roster{
		ID: id, LeagueID: leagueID, UserID: userID, RosterID: int(id),
	})
	league := m.leagues[leagueID]
	m.priorities[id] = &models.WaiverPriority{
		ID: id, LeagueID: leagueID, RosterID: id, Season: league.Season, Priority: priority,
	}
	if league.WaiverType == models.WaiverTypeFaab {
		m.budgets[id] = &models.FaabBudget{
			ID: id, LeagueID: leagueID, RosterID: id, Season: league.Season,
			InitialBudget: league.FaabBudget, RemainingBudget: league.FaabBudget,
		}
	}
}

func (m *memDB) own(rosterID, leagueID, seasonID, playerID int64) {
	m.rosterPlayers = append(m.rosterPlayers, &models.RosterPlayer{
		ID:                   int64(len(m.rosterPlayers) + 1),
		RosterID:             rosterID,
		LeagueID:             leagueID,
		ActiveLeagueSeasonID: seasonID,
		PlayerID:             playerID,
		AcquiredType:         "draft",
	})
}

func (m *memDB) addClaim(c *models.WaiverClaim) *models.WaiverClaim {
	m.nextClaimID++
	c.ID = m.nextClaimID
	if c.Status == "" {
		c.Status = models.ClaimStatusPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now.Add(-time.Hour).Add(time.Duration(c.ID) * time.Second)
	}
	m.claims[c.ID] = c
	return c
}

func (m *memDB) claim(id int64) *models.WaiverClaim { return m.claims[id] }

type fakeRunner struct{}

func (fakeRunner) RunInTransaction(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (fakeRunner) RunWithLock(_ context.Context, _ database.LockDomain, _ int64, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

// --- claims ---

type fakeClaims struct{ m *memDB }

func (f *fakeClaims) Create(_ context.Context, _ *gorm.DB, claim *models.WaiverClaim) error {
	if claim.IdempotencyKey != nil {
		for _, c := range f.m.claims {
			if c.LeagueID == claim.LeagueID && c.RosterID == claim.RosterID &&
				c.IdempotencyKey != nil && *c.IdempotencyKey == *claim.IdempotencyKey {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	f.m.addClaim(claim)
	return nil
}

func (f *fakeClaims) FindByID(_ context.Context, _ *gorm.DB, id int64) (*models.WaiverClaim, error) {
	return f.m.claims[id], nil
}

func (f *fakeClaims) FindByIDWithDetails(_ context.Context, id int64) (*models.WaiverClaim, error) {
	return f.m.claims[id], nil
}

func (f *fakeClaims) FindByIdempotencyKey(_ context.Context, _ *gorm.DB, leagueID, rosterID int64, key string) (*models.WaiverClaim, error) {
	for _, c := range f.m.claims {
		if c.LeagueID == leagueID && c.RosterID == rosterID && c.IdempotencyKey != nil && *c.IdempotencyKey == key {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeClaims) pendingSorted(filter func(*models.WaiverClaim) bool) []models.WaiverClaim {
	var out []models.WaiverClaim
	for _, c := range f.m.claims {
		if c.Status == models.ClaimStatusPending && filter(c) {
			cc := *c
			if p, ok := f.m.priorities[c.RosterID]; ok {
				cc.CurrentPriority = p.Priority
			}
			out = append(out, cc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RosterID != out[j].RosterID {
			return out[i].RosterID < out[j].RosterID
		}
		return out[i].ClaimOrder < out[j].ClaimOrder
	})
	return out
}

func (f *fakeClaims) GetPendingByRoster(_ context.Context, _ *gorm.DB, rosterID int64) ([]models.WaiverClaim, error) {
	return f.pendingSorted(func(c *models.WaiverClaim) bool { return c.RosterID == rosterID }), nil
}

func (f *fakeClaims) GetPendingByLeagueWithCurrentPriority(_ context.Context, _ *gorm.DB, leagueID int64, season, week int) ([]models.WaiverClaim, error) {
	return f.pendingSorted(func(c *models.WaiverClaim) bool {
		return c.LeagueID == leagueID && c.Season == season && c.Week == week
	}), nil
}

func (f *fakeClaims) GetPendingByProcessingRun(_ context.Context, _ *gorm.DB, runID int64) ([]models.WaiverClaim, error) {
	return f.pendingSorted(func(c *models.WaiverClaim) bool {
		return c.ProcessingRunID != nil && *c.ProcessingRunID == runID
	}), nil
}

func (f *fakeClaims) SnapshotClaimsForRun(_ context.Context, _ *gorm.DB, leagueID int64, season, week int, runID int64) (int64, error) {
	var count int64
	for _, c := range f.m.claims {
		if c.Status == models.ClaimStatusPending && c.LeagueID == leagueID &&
			c.Season == season && c.Week == week && c.ProcessingRunID == nil {
			id := runID
			c.ProcessingRunID = &id
			count++
		}
	}
	return count, nil
}

func (f *fakeClaims) UpdateStatus(_ context.Context, _ *gorm.DB, id int64, status, reason string) error {
	c := f.m.claims[id]
	c.Status = status
	c.FailureReason = reason
	t := f.m.now
	c.ProcessedAt = &t
	return nil
}

func (f *fakeClaims) CancelIfPending(_ context.Context, _ *gorm.DB, id int64) (bool, error) {
	c := f.m.claims[id]
	if c == nil || c.Status != models.ClaimStatusPending {
		return false, nil
	}
	c.Status = models.ClaimStatusCancelled
	return true, nil
}

func (f *fakeClaims) UpdateBid(_ context.Context, _ *gorm.DB, id int64, bid int) error {
	f.m.claims[id].BidAmount = bid
	return nil
}

func (f *fakeClaims) UpdateDropPlayer(_ context.Context, _ *gorm.DB, id int64, dropPlayerID *int64) error {
	f.m.claims[id].DropPlayerID = dropPlayerID
	return nil
}

func (f *fakeClaims) ReorderClaims(_ context.Context, _ *gorm.DB, rosterID int64, ids []int64) error {
	for i, id := range ids {
		c := f.m.claims[id]
		if c != nil && c.RosterID == rosterID && c.Status == models.ClaimStatusPending {
			c.ClaimOrder = i + 1
		}
	}
	return nil
}

func (f *fakeClaims) GetNextClaimOrder(_ context.Context, _ *gorm.DB, rosterID int64, season, week int) (int, error) {
	max := 0
	for _, c := range f.m.claims {
		if c.RosterID == rosterID && c.Season == season && c.Week == week &&
			c.Status == models.ClaimStatusPending && c.ClaimOrder > max {
			max = c.ClaimOrder
		}
	}
	return max + 1, nil
}

func (f *fakeClaims) HasPendingClaim(_ context.Context, _ *gorm.DB, rosterID, playerID int64) (bool, error) {
	for _, c := range f.m.claims {
		if c.RosterID == rosterID && c.PlayerID == playerID && c.Status == models.ClaimStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeClaims) AttachPlayerDetails(_ context.Context, _ []models.WaiverClaim) {}

// --- priorities ---

type fakePriorities struct{ m *memDB }

func (f *fakePriorities) GetByRoster(_ context.Context, _ *gorm.DB, _, rosterID int64, _ int) (*models.WaiverPriority, error) {
	return f.m.priorities[rosterID], nil
}

func (f *fakePriorities) GetByLeague(_ context.Context, _ int64, _ int) ([]models.WaiverPriority, error) {
	out := make([]models.WaiverPriority, 0, len(f.m.priorities))
	for _, p := range f.m.priorities {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (f *fakePriorities) RotatePriority(_ context.Context, _ *gorm.DB, _ int64, _ int, rosterID int64) error {
	winner := f.m.priorities[rosterID]
	if winner == nil {
		return fmt.Errorf("no priority row for roster %d", rosterID)
	}
	max := 0
	for _, p := range f.m.priorities {
		if p.Priority > max {
			max = p.Priority
		}
	}
	if winner.Priority == max {
		return nil
	}
	prev := winner.Priority
	for _, p := range f.m.priorities {
		if p.Priority > prev {
			p.Priority--
		}
	}
	winner.Priority = max
	return nil
}

func (f *fakePriorities) EnsureRosterPriority(_ context.Context, _ *gorm.DB, leagueID, rosterID int64, season int) (*models.WaiverPriority, error) {
	if p, ok := f.m.priorities[rosterID]; ok {
		return p, nil
	}
	max := 0
	for _, p := range f.m.priorities {
		if p.Priority > max {
			max = p.Priority
		}
	}
	p := &models.WaiverPriority{LeagueID: leagueID, RosterID: rosterID, Season: season, Priority: max + 1}
	f.m.priorities[rosterID] = p
	return p, nil
}

func (f *fakePriorities) InitializeForLeague(_ context.Context, _ *gorm.DB, leagueID int64, season int, rosterIDs []int64) error {
	f.m.priorities = make(map[int64]*models.WaiverPriority)
	for i, rosterID := range rosterIDs {
		f.m.priorities[rosterID] = &models.WaiverPriority{
			LeagueID: leagueID, RosterID: rosterID, Season: season, Priority: i + 1,
		}
	}
	return nil
}

func (f *fakePriorities) GetMaxPriority(_ context.Context, _ *gorm.DB, _ int64, _ int) (int, error) {
	max := 0
	for _, p := range f.m.priorities {
		if p.Priority > max {
			max = p.Priority
		}
	}
	return max, nil
}

// --- budgets ---

type fakeBudgets struct{ m *memDB }

func (f *fakeBudgets) GetByRoster(_ context.Context, _ *gorm.DB, _, rosterID int64, _ int) (*models.FaabBudget, error) {
	return f.m.budgets[rosterID], nil
}

func (f *fakeBudgets) GetByLeague(_ context.Context, _ int64, _ int) ([]models.FaabBudget, error) {
	out := make([]models.FaabBudget, 0, len(f.m.budgets))
	for _, b := range f.m.budgets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RosterID < out[j].RosterID })
	return out, nil
}

func (f *fakeBudgets) DeductBudget(_ context.Context, _ *gorm.DB, _, rosterID int64, _, amount int) error {
	b := f.m.budgets[rosterID]
	if b == nil || b.RemainingBudget < amount {
		return errors.New("budget deduction guard failed")
	}
	b.RemainingBudget -= amount
	return nil
}

func (f *fakeBudgets) EnsureRosterBudget(_ context.Context, _ *gorm.DB, leagueID, rosterID int64, season, defaultBudget int) (*models.FaabBudget, error) {
	if b, ok := f.m.budgets[rosterID]; ok {
		return b, nil
	}
	b := &models.FaabBudget{
		LeagueID: leagueID, RosterID: rosterID, Season: season,
		InitialBudget: defaultBudget, RemainingBudget: defaultBudget,
	}
	f.m.budgets[rosterID] = b
	return b, nil
}

func (f *fakeBudgets) InitializeForLeague(_ context.Context, _ *gorm.DB, leagueID int64, season int, rosterIDs []int64, defaultBudget int) error {
	f.m.budgets = make(map[int64]*models.FaabBudget)
	for _, rosterID := range rosterIDs {
		f.m.budgets[rosterID] = &models.FaabBudget{
			LeagueID: leagueID, RosterID: rosterID, Season: season,
			InitialBudget: defaultBudget, RemainingBudget: defaultBudget,
		}
	}
	return nil
}

// --- wire ---

type fakeWire struct{ m *memDB }

func (f *fakeWire) AddPlayer(_ context.Context, _ *gorm.DB, entry *models.WaiverWireEntry) error {
	f.m.wire[entry.PlayerID] = entry
	return nil
}

func (f *fakeWire) RemovePlayer(_ context.Context, _ *gorm.DB, _, playerID int64) error {
	delete(f.m.wire, playerID)
	return nil
}

func (f *fakeWire) IsOnWaivers(_ context.Context, _ *gorm.DB, _, playerID int64) (bool, error) {
	_, ok := f.m.wire[playerID]
	return ok, nil
}

func (f *fakeWire) GetPlayerExpiration(_ context.Context, _ *gorm.DB, _, playerID int64) (*time.Time, error) {
	if e, ok := f.m.wire[playerID]; ok {
		return &e.WaiverExpiresAt, nil
	}
	return nil, nil
}

func (f *fakeWire) GetByLeague(_ context.Context, leagueID int64) ([]models.WaiverWireEntry, error) {
	var out []models.WaiverWireEntry
	for _, e := range f.m.wire {
		if e.LeagueID == leagueID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

// --- runs ---

type fakeRuns struct{ m *memDB }

func (f *fakeRuns) TryCreate(_ context.Context, _ *gorm.DB, leagueID int64, season, week int, windowStartAt time.Time) (*models.WaiverProcessingRun, error) {
	for _, r := range f.m.runs {
		if r.LeagueID == leagueID && r.Season == season && r.Week == week && r.WindowStartAt.Equal(windowStartAt) {
			return nil, nil
		}
	}
	f.m.nextRunID++
	run := &models.WaiverProcessingRun{
		ID: f.m.nextRunID, LeagueID: leagueID, Season: season, Week: week,
		WindowStartAt: windowStartAt, RanAt: f.m.now,
	}
	f.m.runs = append(f.m.runs, run)
	return run, nil
}

func (f *fakeRuns) UpdateResults(_ context.Context, _ *gorm.DB, id int64, found, successful int) error {
	for _, r := range f.m.runs {
		if r.ID == id {
			r.ClaimsFound = found
			r.ClaimsSuccessful = successful
		}
	}
	return nil
}

func (f *fakeRuns) Delete(_ context.Context, _ *gorm.DB, id int64) error {
	for i, r := range f.m.runs {
		if r.ID == id {
			f.m.runs = append(f.m.runs[:i], f.m.runs[i+1:]...)
			break
		}
	}
	return nil
}

// --- roster players ---

type fakeRosterPlayers struct{ m *memDB }

func (f *fakeRosterPlayers) FindOwner(_ context.Context, _ *gorm.DB, leagueID, playerID, seasonID int64) (int64, error) {
	for _, rp := range f.m.rosterPlayers {
		if rp.LeagueID == leagueID && rp.PlayerID == playerID && rp.ActiveLeagueSeasonID == seasonID {
			return rp.RosterID, nil
		}
	}
	return 0, nil
}

func (f *fakeRosterPlayers) FindByRosterAndPlayer(_ context.Context, _ *gorm.DB, rosterID, playerID int64) (*models.RosterPlayer, error) {
	for _, rp := range f.m.rosterPlayers {
		if rp.RosterID == rosterID && rp.PlayerID == playerID {
			return rp, nil
		}
	}
	return nil, nil
}

func (f *fakeRosterPlayers) AddPlayer(_ context.Context, _ *gorm.DB, row *models.RosterPlayer) error {
	if err, ok := f.m.addPlayerErr[row.PlayerID]; ok {
		delete(f.m.addPlayerErr, row.PlayerID)
		return err
	}
	for _, rp := range f.m.rosterPlayers {
		if rp.ActiveLeagueSeasonID == row.ActiveLeagueSeasonID && rp.PlayerID == row.PlayerID {
			return repositories.ErrOwnershipConflict
		}
	}
	row.ID = int64(len(f.m.rosterPlayers) + 1)
	f.m.rosterPlayers = append(f.m.rosterPlayers, row)
	return nil
}

func (f *fakeRosterPlayers) RemovePlayer(_ context.Context, _ *gorm.DB, rosterID, playerID int64) error {
	for i, rp := range f.m.rosterPlayers {
		if rp.RosterID == rosterID && rp.PlayerID == playerID {
			f.m.rosterPlayers = append(f.m.rosterPlayers[:i], f.m.rosterPlayers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("player %d not on roster %d", playerID, rosterID)
}

func (f *fakeRosterPlayers) GetPlayerCount(_ context.Context, _ *gorm.DB, rosterID int64) (int, error) {
	count := 0
	for _, rp := range f.m.rosterPlayers {
		if rp.RosterID == rosterID {
			count++
		}
	}
	return count, nil
}

func (f *fakeRosterPlayers) GetPlayerIDsByRoster(_ context.Context, _ *gorm.DB, rosterID int64) ([]int64, error) {
	var out []int64
	for _, rp := range f.m.rosterPlayers {
		if rp.RosterID == rosterID {
			out = append(out, rp.PlayerID)
		}
	}
	return out, nil
}

func (f *fakeRosterPlayers) GetOwnedPlayerIDsByLeague(_ context.Context, _ *gorm.DB, leagueID, seasonID int64) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, rp := range f.m.rosterPlayers {
		if rp.LeagueID == leagueID && rp.ActiveLeagueSeasonID == seasonID {
			out[rp.PlayerID] = rp.RosterID
		}
	}
	return out, nil
}

// --- roster transactions ---

type fakeRosterTx struct{ m *memDB }

func (f *fakeRosterTx) Create(_ context.Context, _ *gorm.DB, record *models.RosterTransaction) (*models.RosterTransaction, error) {
	record.ID = uuid.NewString()
	record.CreatedAt = f.m.now
	f.m.rosterTxs = append(f.m.rosterTxs, record)
	return record, nil
}

// --- trades ---

type fakeTrades struct{ m *memDB }

func (f *fakeTrades) FindPendingByPlayer(_ context.Context, _ *gorm.DB, leagueID, playerID int64) ([]models.Trade, error) {
	return f.referencing(leagueID, []int64{playerID}), nil
}

func (f *fakeTrades) ExpireReferencingPlayers(_ context.Context, _ *gorm.DB, leagueID int64, playerIDs []int64) ([]models.Trade, error) {
	touched := f.referencing(leagueID, playerIDs)
	for i := range touched {
		f.m.trades[touched[i].ID].Status = models.TradeStatusExpired
		touched[i].Status = models.TradeStatusExpired
	}
	return touched, nil
}

func (f *fakeTrades) referencing(leagueID int64, playerIDs []int64) []models.Trade {
	open := map[string]bool{
		models.TradeStatusPending:  true,
		models.TradeStatusAccepted: true,
		models.TradeStatusInReview: true,
	}
	want := make(map[int64]bool, len(playerIDs))
	for _, id := range playerIDs {
		want[id] = true
	}
	var out []models.Trade
	for _, t := range f.m.trades {
		if t.LeagueID != leagueID || !open[t.Status] {
			continue
		}
		for _, tp := range f.m.tradePlayers {
			if tp.TradeID == t.ID && want[tp.PlayerID] {
				out = append(out, *t)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- leagues ---

type fakeLeagues struct{ m *memDB }

func (f *fakeLeagues) FindByID(_ context.Context, _ *gorm.DB, id int64) (*models.League, error) {
	return f.m.leagues[id], nil
}

func (f *fakeLeagues) FindRosterByUser(_ context.Context, _ *gorm.DB, leagueID int64, userID string) (*models.Roster, error) {
	for i := range f.m.rosters {
		r := f.m.rosters[i]
		if r.LeagueID == leagueID && r.UserID == userID {
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeLeagues) ListRosters(_ context.Context, _ *gorm.DB, leagueID int64) ([]models.Roster, error) {
	var out []models.Roster
	for _, r := range f.m.rosters {
		if r.LeagueID == leagueID {
			out = append(out, r)
		}
	}
	return out, nil
}

// newTestService wires a WaiverService against the in-memory fakes.
func newTestService(m *memDB, bus events.Bus) *WaiverService {
	return &WaiverService{
		runner:        fakeRunner{},
		claims:        &fakeClaims{m},
		priorities:    &fakePriorities{m},
		budgets:       &fakeBudgets{m},
		wire:          &fakeWire{m},
		runs:          &fakeRuns{m},
		rosterPlayers: &fakeRosterPlayers{m},
		rosterTx:      &fakeRosterTx{m},
		trades:        &fakeTrades{m},
		leagues:       &fakeLeagues{m},
		bus:           bus,
		logger:        zerolog.Nop(),
		now:           func() time.Time { return m.now },
	}
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
