// workers/waiver_process_worker.go
package workers

import (
	"context"
	"time"

	"league-waiver-system/repositories"
	"league-waiver-system/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// WaiverProcessWorker fires every hour on the hour, finds leagues whose
// configured (waiver_day, waiver_hour) matches the current instant in their
// own timezone, and runs processing for each. The hour-window run row makes a
// double fire harmless.
type WaiverProcessWorker struct {
	waiverService *services.WaiverService
	leagues       *repositories.LeaguesRepository
	wire          *repositories.WaiverWireRepository
	logger        zerolog.Logger
	sched         gocron.Scheduler
}

func NewWaiverProcessWorker(db *gorm.DB, waiverService *services.WaiverService, logger zerolog.Logger) *WaiverProcessWorker {
	return &WaiverProcessWorker{
		waiverService: waiverService,
		leagues:       repositories.NewLeaguesRepository(db, logger),
		wire:          repositories.NewWaiverWireRepository(db, logger),
		logger:        logger.With().Str("worker", "waiver_process").Logger(),
	}
}

// Start registers the cron jobs and starts the scheduler.
func (w *WaiverProcessWorker) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	w.sched = sched

	// Top of every hour: process due leagues.
	if _, err := sched.NewJob(
		gocron.CronJob("0 * * * *", false),
		gocron.NewTask(func() {
			w.ProcessDueLeagues(ctx, time.Now().UTC())
		}),
	); err != nil {
		return err
	}

	// Every 15 minutes: lift expired waiver wire gates.
	if _, err := sched.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(func() {
			if _, err := w.wire.DeleteExpired(ctx, time.Now().UTC()); err != nil {
				w.logger.Error().Err(err).Msg("wire sweep failed")
			}
		}),
	); err != nil {
		return err
	}

	sched.Start()
	w.logger.Info().Msg("waiver process worker started")
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs.
func (w *WaiverProcessWorker) Stop() {
	if w.sched != nil {
		if err := w.sched.Shutdown(); err != nil {
			w.logger.Warn().Err(err).Msg("scheduler shutdown failed")
		}
	}
}

// ProcessDueLeagues runs one scheduling tick. A failed league never blocks the
// others; its window stays open for the next tick or a manual trigger.
func (w *WaiverProcessWorker) ProcessDueLeagues(ctx context.Context, now time.Time) {
	due, err := w.leagues.FindDueLeagues(ctx, func(tz string) (int, int) {
		loc := time.UTC
		if tz != "" {
			if parsed, err := time.LoadLocation(tz); err == nil {
				loc = parsed
			}
		}
		local := now.In(loc)
		return int(local.Weekday()), local.Hour()
	})
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to find due leagues")
		return
	}
	if len(due) == 0 {
		return
	}

	w.logger.Info().Int("leagues", len(due)).Msg("processing due leagues")
	for _, league := range due {
		result, err := w.waiverService.ProcessLeagueClaims(ctx, league.ID, now)
		if err != nil {
			w.logger.Error().Err(err).Int64("league_id", league.ID).Msg("league processing failed")
			continue
		}
		w.logger.Info().
			Int64("league_id", league.ID).
			Int("processed", result.Processed).
			Int("successful", result.Successful).
			Msg("league processed")
	}
}
