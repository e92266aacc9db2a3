// workers/player_sync_worker.go
package workers

import (
	"context"
	"fmt"
	"time"

	"league-waiver-system/models"
	"league-waiver-system/repositories"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// upstreamPlayer matches the JSON shape the provider's player feed returns.
type upstreamPlayer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Position  string    `json:"position"`
	Team      string    `json:"team"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

type playerFeedResponse struct {
	Players []upstreamPlayer `json:"players"`
}

// PlayerSyncWorker mirrors the provider's player catalog into the local
// players table on a fixed interval. The catalog is reference data; a stale
// mirror only degrades claim projections, never correctness.
type PlayerSyncWorker struct {
	players      *repositories.PlayersRepository
	client       *resty.Client
	endpointPath string
	interval     time.Duration
	logger       zerolog.Logger
}

func NewPlayerSyncWorker(db *gorm.DB, baseURL, serviceToken string, interval time.Duration, logger zerolog.Logger) *PlayerSyncWorker {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(5 * time.Second).
		SetHeader("X-Service-Token", serviceToken)

	return &PlayerSyncWorker{
		players:      repositories.NewPlayersRepository(db, logger),
		client:       client,
		endpointPath: "/api/v1/public/players",
		interval:     interval,
		logger:       logger.With().Str("worker", "player_sync").Logger(),
	}
}

// Start runs the sync loop until the context is cancelled. The first sync
// happens immediately so a fresh deploy does not serve an empty catalog.
func (w *PlayerSyncWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("player sync worker started")

	if err := w.syncBatch(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("initial player sync failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx); err != nil {
				w.logger.Error().Err(err).Msg("player sync failed")
			}
		case <-ctx.Done():
			w.logger.Info().Msg("player sync worker stopped")
			return
		}
	}
}

func (w *PlayerSyncWorker) syncBatch(ctx context.Context) error {
	var feed playerFeedResponse
	resp, err := w.client.R().
		SetContext(ctx).
		SetResult(&feed).
		Get(w.endpointPath)
	if err != nil {
		return fmt.Errorf("player feed request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("player feed returned %d: %s", resp.StatusCode(), resp.String())
	}
	if len(feed.Players) == 0 {
		return nil
	}

	players := make([]models.Player, len(feed.Players))
	for i, p := range feed.Players {
		players[i] = models.Player{
			ID:        p.ID,
			Name:      p.Name,
			Position:  p.Position,
			Team:      p.Team,
			Status:    p.Status,
			UpdatedAt: p.UpdatedAt,
		}
	}
	if err := w.players.UpsertBatch(ctx, players); err != nil {
		return err
	}

	w.logger.Info().Int("players", len(players)).Msg("player catalog synced")
	return nil
}
