package services

import (
	"context"
	"time"

	"league-waiver-system/database"
	"league-waiver-system/events"
	"league-waiver-system/models"
	"league-waiver-system/repositories"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Repository contracts consumed by the waiver engine. The concrete
// implementations live in repositories/; tests substitute in-memory fakes.

type ClaimsStore interface {
	Create(ctx context.Context, tx *gorm.DB, claim *models.WaiverClaim) error
	FindByID(ctx context.Context, tx *gorm.DB, id int64) (*models.WaiverClaim, error)
	FindByIDWithDetails(ctx context.Context, id int64) (*models.WaiverClaim, error)
	FindByIdempotencyKey(ctx context.Context, tx *gorm.DB, leagueID, rosterID int64, key string) (*models.WaiverClaim, error)
	GetPendingByRoster(ctx context.Context, tx *gorm.DB, rosterID int64) ([]models.WaiverClaim, error)
	GetPendingByLeagueWithCurrentPriority(ctx context.Context, tx *gorm.DB, leagueID int64, season, week int) ([]models.WaiverClaim, error)
	GetPendingByProcessingRun(ctx context.Context, tx *gorm.DB, runID int64) ([]models.WaiverClaim, error)
	SnapshotClaimsForRun(ctx context.Context, tx *gorm.DB, leagueID int64, season, week int, runID int64) (int64, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, status, reason string) error
	CancelIfPending(ctx context.Context, tx *gorm.DB, id int64) (bool, error)
	UpdateBid(ctx context.Context, tx *gorm.DB, id int64, bid int) error
	UpdateDropPlayer(ctx context.Context, tx *gorm.DB, id int64, dropPlayerID *int64) error
	ReorderClaims(ctx context.Context, tx *gorm.DB, rosterID int64, ids []int64) error
	GetNextClaimOrder(ctx context.Context, tx *gorm.DB, rosterID int64, season, week int) (int, error)
	HasPendingClaim(ctx context.Context, tx *gorm.DB, rosterID, playerID int64) (bool, error)
	AttachPlayerDetails(ctx context.Context, claims []models.WaiverClaim)
}

type PriorityStore interface {
	GetByRoster(ctx context.Context, tx *gorm.DB, leagueID, rosterID int64, season int) (*models.WaiverPriority, error)
	GetByLeague(ctx context.Context, leagueID int64, season int) ([]models.WaiverPriority, error)
	RotatePriority(ctx context.Context, tx *gorm.DB, leagueID int64, season int, rosterID int64) error
	EnsureRosterPriority(ctx context.Context, tx *gorm.DB, leagueID, rosterID int64, season int) (*models.WaiverPriority, error)
	InitializeForLeague(ctx context.Context, tx *gorm.DB, leagueID int64, season int, rosterIDs []int64) error
	GetMaxPriority(ctx context.Context, tx *gorm.DB, leagueID int64, season int) (int, error)
}

type BudgetStore interface {
	GetByRoster(ctx context.Context, tx *gorm.DB, leagueID, rosterID int64, season int) (*models.FaabBudget, error)
	GetByLeague(ctx context.Context, leagueID int64, season int) ([]models.FaabBudget, error)
	DeductBudget(ctx context.Context, tx *gorm.DB, leagueID, rosterID int64, season, amount int) error
	EnsureRosterBudget(ctx context.Context, tx *gorm.DB, leagueID, rosterID int64, season, defaultBudget int) (*models.FaabBudget, error)
	InitializeForLeague(ctx context.Context, tx *gorm.DB, leagueID int64, season int, rosterIDs []int64, defaultBudget int) error
}

type WireStore interface {
	AddPlayer(ctx context.Context, tx *gorm.DB, entry *models.WaiverWireEntry) error
	RemovePlayer(ctx context.Context, tx *gorm.DB, leagueID, playerID int64) error
	IsOnWaivers(ctx context.Context, tx *gorm.DB, leagueID, playerID int64) (bool, error)
	GetPlayerExpiration(ctx context.Context, tx *gorm.DB, leagueID, playerID int64) (*time.Time, error)
	GetByLeague(ctx context.Context, leagueID int64) ([]models.WaiverWireEntry, error)
}

type RunsStore interface {
	TryCreate(ctx context.Context, tx *gorm.DB, leagueID int64, season, week int, windowStartAt time.Time) (*models.WaiverProcessingRun, error)
	UpdateResults(ctx context.Context, tx *gorm.DB, id int64, found, successful int) error
	Delete(ctx context.Context, tx *gorm.DB, id int64) error
}

type RosterPlayersStore interface {
	FindOwner(ctx context.Context, tx *gorm.DB, leagueID, playerID, seasonID int64) (int64, error)
	FindByRosterAndPlayer(ctx context.Context, tx *gorm.DB, rosterID, playerID int64) (*models.RosterPlayer, error)
	AddPlayer(ctx context.Context, tx *gorm.DB, row *models.RosterPlayer) error
	RemovePlayer(ctx context.Context, tx *gorm.DB, rosterID, playerID int64) error
	GetPlayerCount(ctx context.Context, tx *gorm.DB, rosterID int64) (int, error)
	GetPlayerIDsByRoster(ctx context.Context, tx *gorm.DB, rosterID int64) ([]int64, error)
	GetOwnedPlayerIDsByLeague(ctx context.Context, tx *gorm.DB, leagueID, seasonID int64) (map[int64]int64, error)
}

type RosterTransactionsStore interface {
	Create(ctx context.Context, tx *gorm.DB, record *models.RosterTransaction) (*models.RosterTransaction, error)
}

type TradesStore interface {
	FindPendingByPlayer(ctx context.Context, tx *gorm.DB, leagueID, playerID int64) ([]models.Trade, error)
	ExpireReferencingPlayers(ctx context.Context, tx *gorm.DB, leagueID int64, playerIDs []int64) ([]models.Trade, error)
}

type LeaguesStore interface {
	FindByID(ctx context.Context, tx *gorm.DB, id int64) (*models.League, error)
	FindRosterByUser(ctx context.Context, tx *gorm.DB, leagueID int64, userID string) (*models.Roster, error)
	ListRosters(ctx context.Context, tx *gorm.DB, leagueID int64) ([]models.Roster, error)
}

// TxRunner abstracts the scoped transaction/lock primitives so the use cases
// can run against fakes in tests.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	RunWithLock(ctx context.Context, domain database.LockDomain, id int64, fn func(tx *gorm.DB) error) error
}

// GormTxRunner is the production runner backed by Postgres advisory locks.
type GormTxRunner struct {
	db *gorm.DB
}

func NewGormTxRunner(db *gorm.DB) *GormTxRunner {
	return &GormTxRunner{db: db}
}

func (r *GormTxRunner) RunInTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return database.RunInTransaction(ctx, r.db, fn)
}

func (r *GormTxRunner) RunWithLock(ctx context.Context, domain database.LockDomain, id int64, fn func(tx *gorm.DB) error) error {
	return database.RunWithLock(ctx, r.db, domain, id, fn)
}

// ReportArchiver receives the post-run summary. Optional; nil is a no-op.
type ReportArchiver interface {
	ArchiveRunReport(ctx context.Context, league *models.League, run *models.WaiverProcessingRun, claims []models.WaiverClaim) error
}

// WaiverService is the facade the transport layer talks to. Every mutating
// operation serializes on the league's waiver advisory lock; events raised
// inside the lock are emitted only after commit.
type WaiverService struct {
	runner        TxRunner
	claims        ClaimsStore
	priorities    PriorityStore
	budgets       BudgetStore
	wire          WireStore
	runs          RunsStore
	rosterPlayers RosterPlayersStore
	rosterTx      RosterTransactionsStore
	trades        TradesStore
	leagues       LeaguesStore
	bus           events.Bus
	archiver      ReportArchiver
	logger        zerolog.Logger
	now           func() time.Time
}

// NewWaiverService wires the facade against the database-backed repositories.
// bus and archiver may be nil.
func NewWaiverService(db *gorm.DB, bus events.Bus, archiver ReportArchiver, logger zerolog.Logger) *WaiverService {
	return &WaiverService{
		runner:        NewGormTxRunner(db),
		claims:        repositories.NewClaimsRepository(db, logger),
		priorities:    repositories.NewPriorityRepository(db, logger),
		budgets:       repositories.NewFaabBudgetRepository(db, logger),
		wire:          repositories.NewWaiverWireRepository(db, logger),
		runs:          repositories.NewProcessingRunsRepository(db, logger),
		rosterPlayers: repositories.NewRosterPlayersRepository(db, logger),
		rosterTx:      repositories.NewRosterTransactionsRepository(db, logger),
		trades:        repositories.NewTradesRepository(db, logger),
		leagues:       repositories.NewLeaguesRepository(db, logger),
		bus:           bus,
		archiver:      archiver,
		logger:        logger.With().Str("service", "waiver").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// currentWeek resolves the league's week or fails with the pre-season rule.
func currentWeek(league *models.League) (int, error) {
	if league.CurrentWeek == nil || *league.CurrentWeek <= 0 {
		return 0, validation("league season has not started yet")
	}
	return *league.CurrentWeek, nil
}

// loadLeagueAndRoster runs the shared preconditions: league exists and the
// user owns a roster in it.
func (s *WaiverService) loadLeagueAndRoster(ctx context.Context, leagueID int64, userID string) (*models.League, *models.Roster, error) {
	league, err := s.leagues.FindByID(ctx, nil, leagueID)
	if err != nil {
		return nil, nil, err
	}
	if league == nil {
		return nil, nil, notFound("league not found")
	}
	roster, err := s.leagues.FindRosterByUser(ctx, nil, leagueID, userID)
	if err != nil {
		return nil, nil, err
	}
	if roster == nil {
		return nil, nil, forbidden("you do not have a roster in this league")
	}
	return league, roster, nil
}
