package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"league-waiver-system/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ClaimsRepository handles waiver claim persistence. Methods that accept a tx
// run on the caller's transaction; passing nil uses the pool directly.
type ClaimsRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewClaimsRepository(db *gorm.DB, logger zerolog.Logger) *ClaimsRepository {
	return &ClaimsRepository{
		db:     db,
		logger: logger.With().Str("repository", "claims").Logger(),
	}
}

func (r *ClaimsRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a new claim. A unique-key violation on the idempotency index
// is returned as gorm.ErrDuplicatedKey so the caller can re-read the existing
// row instead of failing the request.
func (r *ClaimsRepository) Create(ctx context.Context, tx *gorm.DB, claim *models.WaiverClaim) error {
	if err := r.conn(tx).WithContext(ctx).Create(claim).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return gorm.ErrDuplicatedKey
		}
		return fmt.Errorf("failed to create waiver claim: %w", err)
	}
	return nil
}

func (r *ClaimsRepository) FindByID(ctx context.Context, tx *gorm.DB, id int64) (*models.WaiverClaim, error) {
	var claim models.WaiverClaim
	if err := r.conn(tx).WithContext(ctx).First(&claim, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find claim %d: %w", id, err)
	}
	return &claim, nil
}

// FindByIDWithDetails loads a claim plus the player projections used by the
// read surface.
func (r *ClaimsRepository) FindByIDWithDetails(ctx context.Context, id int64) (*models.WaiverClaim, error) {
	claim, err := r.FindByID(ctx, nil, id)
	if err != nil || claim == nil {
		return claim, err
	}
	r.attachPlayers(ctx, []*models.WaiverClaim{claim})
	return claim, nil
}

func (r *ClaimsRepository) FindByIdempotencyKey(ctx context.Context, tx *gorm.DB, leagueID, rosterID int64, key string) (*models.WaiverClaim, error) {
	var claim models.WaiverClaim
	err := r.conn(tx).WithContext(ctx).
		Where("league_id = ? AND roster_id = ? AND idempotency_key = ?", leagueID, rosterID, key).
		First(&claim).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find claim by idempotency key: %w", err)
	}
	return &claim, nil
}

func (r *ClaimsRepository) GetPendingByRoster(ctx context.Context, tx *gorm.DB, rosterID int64) ([]models.WaiverClaim, error) {
	var claims []models.WaiverClaim
	err := r.conn(tx).WithContext(ctx).
		Where("roster_id = ? AND status = ?", rosterID, models.ClaimStatusPending).
		Order("claim_order ASC").
		Find(&claims).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending claims for roster %d: %w", rosterID, err)
	}
	return claims, nil
}

// GetPendingByLeagueWithCurrentPriority joins each pending claim with the live
// waiver priority of its roster. Kept for the read surface; processing uses
// the snapshot path.
func (r *ClaimsRepository) GetPendingByLeagueWithCurrentPriority(ctx context.Context, tx *gorm.DB, leagueID int64, season, week int) ([]models.WaiverClaim, error) {
	return r.pendingWithPriority(ctx, tx,
		"waiver_claims.league_id = ? AND waiver_claims.season = ? AND waiver_claims.week = ? AND waiver_claims.status = ?",
		leagueID, season, week, models.ClaimStatusPending)
}

// GetPendingByProcessingRun loads the frozen claim set of one run, each joined
// with its roster's current priority.
func (r *ClaimsRepository) GetPendingByProcessingRun(ctx context.Context, tx *gorm.DB, runID int64) ([]models.WaiverClaim, error) {
	return r.pendingWithPriority(ctx, tx,
		"waiver_claims.processing_run_id = ? AND waiver_claims.status = ?",
		runID, models.ClaimStatusPending)
}

func (r *ClaimsRepository) pendingWithPriority(ctx context.Context, tx *gorm.DB, cond string, args ...interface{}) ([]models.WaiverClaim, error) {
	var claims []models.WaiverClaim
	err := r.conn(tx).WithContext(ctx).
		Model(&models.WaiverClaim{}).
		Select("waiver_claims.*, COALESCE(waiver_priorities.priority, waiver_claims.priority_at_claim) AS current_priority").
		Joins("LEFT JOIN waiver_priorities ON waiver_priorities.league_id = waiver_claims.league_id AND waiver_priorities.roster_id = waiver_claims.roster_id AND waiver_priorities.season = waiver_claims.season").
		Where(cond, args...).
		Order("waiver_claims.roster_id ASC, waiver_claims.claim_order ASC").
		Find(&claims).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending claims with priority: %w", err)
	}
	return claims, nil
}

// SnapshotClaimsForRun tags every untagged pending claim of (league, season,
// week) with the run id. Claims submitted after this point stay untagged and
// wait for the next run. Returns how many claims were captured.
func (r *ClaimsRepository) SnapshotClaimsForRun(ctx context.Context, tx *gorm.DB, leagueID int64, season, week int, runID int64) (int64, error) {
	res := r.conn(tx).WithContext(ctx).
		Model(&models.WaiverClaim{}).
		Where("league_id = ? AND season = ? AND week = ? AND status = ? AND processing_run_id IS NULL",
			leagueID, season, week, models.ClaimStatusPending).
		Update("processing_run_id", runID)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to snapshot claims for run %d: %w", runID, res.Error)
	}
	return res.RowsAffected, nil
}

// UpdateStatus moves a claim to a terminal status and stamps processed_at.
func (r *ClaimsRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, status, reason string) error {
	updates := map[string]interface{}{
		"status":       status,
		"processed_at": time.Now().UTC(),
	}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	if err := r.conn(tx).WithContext(ctx).Model(&models.WaiverClaim{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update claim %d status to %s: %w", id, status, err)
	}
	return nil
}

// CancelIfPending flips a claim to cancelled only while it is still pending.
// Returns false when the processor (or the user) got there first.
func (r *ClaimsRepository) CancelIfPending(ctx context.Context, tx *gorm.DB, id int64) (bool, error) {
	res := r.conn(tx).WithContext(ctx).
		Model(&models.WaiverClaim{}).
		Where("id = ? AND status = ?", id, models.ClaimStatusPending).
		Update("status", models.ClaimStatusCancelled)
	if res.Error != nil {
		return false, fmt.Errorf("failed to cancel claim %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *ClaimsRepository) UpdateBid(ctx context.Context, tx *gorm.DB, id int64, bid int) error {
	if err := r.conn(tx).WithContext(ctx).Model(&models.WaiverClaim{}).Where("id = ?", id).Update("bid_amount", bid).Error; err != nil {
		return fmt.Errorf("failed to update claim %d bid: %w", id, err)
	}
	return nil
}

func (r *ClaimsRepository) UpdateDropPlayer(ctx context.Context, tx *gorm.DB, id int64, dropPlayerID *int64) error {
	if err := r.conn(tx).WithContext(ctx).Model(&models.WaiverClaim{}).Where("id = ?", id).Update("drop_player_id", dropPlayerID).Error; err != nil {
		return fmt.Errorf("failed to update claim %d drop player: %w", id, err)
	}
	return nil
}

// ReorderClaims rewrites claim_order for a roster's pending claims in a single
// UPDATE joined against a VALUES list: ids[0] gets order 1, ids[1] order 2,
// and so on. Callers must pass the full pending permutation.
func (r *ClaimsRepository) ReorderClaims(ctx context.Context, tx *gorm.DB, rosterID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	values := make([]string, 0, len(ids))
	args := make([]interface{}, 0, len(ids)*2+2)
	for i, id := range ids {
		values = append(values, "(?::bigint, ?::int)")
		args = append(args, id, i+1)
	}
	args = append(args, rosterID, models.ClaimStatusPending)
	sql := fmt.Sprintf(`
		UPDATE waiver_claims AS c
		SET claim_order = v.new_order, updated_at = NOW()
		FROM (VALUES %s) AS v(id, new_order)
		WHERE c.id = v.id AND c.roster_id = ? AND c.status = ?`,
		strings.Join(values, ", "))
	if err := r.conn(tx).WithContext(ctx).Exec(sql, args...).Error; err != nil {
		return fmt.Errorf("failed to reorder claims for roster %d: %w", rosterID, err)
	}
	return nil
}

// GetNextClaimOrder returns max(claim_order)+1 over the roster's pending
// claims for the week, or 1 when there are none.
func (r *ClaimsRepository) GetNextClaimOrder(ctx context.Context, tx *gorm.DB, rosterID int64, season, week int) (int, error) {
	var next int
	err := r.conn(tx).WithContext(ctx).
		Model(&models.WaiverClaim{}).
		Select("COALESCE(MAX(claim_order), 0) + 1").
		Where("roster_id = ? AND season = ? AND week = ? AND status = ?",
			rosterID, season, week, models.ClaimStatusPending).
		Scan(&next).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute next claim order: %w", err)
	}
	return next, nil
}

func (r *ClaimsRepository) HasPendingClaim(ctx context.Context, tx *gorm.DB, rosterID, playerID int64) (bool, error) {
	var count int64
	err := r.conn(tx).WithContext(ctx).
		Model(&models.WaiverClaim{}).
		Where("roster_id = ? AND player_id = ? AND status = ?", rosterID, playerID, models.ClaimStatusPending).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check pending claim: %w", err)
	}
	return count > 0, nil
}

// attachPlayers fills the Player/DropPlayer projections from the local player
// catalog. Missing catalog rows are left nil rather than failing the read.
func (r *ClaimsRepository) attachPlayers(ctx context.Context, claims []*models.WaiverClaim) {
	idSet := make(map[int64]struct{})
	for _, c := range claims {
		idSet[c.PlayerID] = struct{}{}
		if c.DropPlayerID != nil {
			idSet[*c.DropPlayerID] = struct{}{}
		}
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	var players []models.Player
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&players).Error; err != nil {
		r.logger.Warn().Err(err).Msg("failed to load player details for claims")
		return
	}
	byID := make(map[int64]*models.Player, len(players))
	for i := range players {
		byID[players[i].ID] = &players[i]
	}
	for _, c := range claims {
		c.Player = byID[c.PlayerID]
		if c.DropPlayerID != nil {
			c.DropPlayer = byID[*c.DropPlayerID]
		}
	}
}

// AttachPlayerDetails is the slice form used by list endpoints.
func (r *ClaimsRepository) AttachPlayerDetails(ctx context.Context, claims []models.WaiverClaim) {
	ptrs := make([]*models.WaiverClaim, len(claims))
	for i := range claims {
		ptrs[i] = &claims[i]
	}
	r.attachPlayers(ctx, ptrs)
}
