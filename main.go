package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"league-waiver-system/config"
	"league-waiver-system/events"
	"league-waiver-system/handlers"
	"league-waiver-system/middleware"
	"league-waiver-system/models"
	"league-waiver-system/services"
	"league-waiver-system/utils"
	"league-waiver-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("WAIVER_DATABASE_URL is not set")
	}
	if cfg.GatewayToken == "" {
		logger.Fatal().Msg("WAIVER_GATEWAY_TOKEN is not set — service cannot authenticate gateway")
	}

	// TranslateError turns unique-index violations into gorm.ErrDuplicatedKey,
	// which the idempotency and ownership paths rely on.
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(
		&models.League{},
		&models.Roster{},
		&models.Player{},
		&models.RosterPlayer{},
		&models.WaiverClaim{},
		&models.WaiverPriority{},
		&models.FaabBudget{},
		&models.WaiverWireEntry{},
		&models.WaiverProcessingRun{},
		&models.RosterTransaction{},
		&models.Trade{},
		&models.TradePlayer{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var archiver services.ReportArchiver
	if cfg.ArchiveEnabled {
		a, err := utils.NewRunReportArchiver(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize run report archiver")
		}
		archiver = a
	}

	bus := events.NewRecorder()
	waiverService := services.NewWaiverService(db, bus, archiver, logger)

	app := fiber.New(fiber.Config{
		ReadTimeout: 30 * time.Second,
	})

	// Only gateway traffic is allowed — no exceptions.
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken))

	origins := strings.Split(cfg.AllowedOrigins, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID, X-User-Roles, X-Idempotency-Key",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupWaiverRoutes(app, waiverService)

	processWorker := workers.NewWaiverProcessWorker(db, waiverService, logger)
	if err := processWorker.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start waiver process worker")
	}

	if cfg.PlayerSyncURL != "" {
		syncWorker := workers.NewPlayerSyncWorker(db, cfg.PlayerSyncURL, cfg.PlayerSyncToken, cfg.PlayerSyncInterval, logger)
		go syncWorker.Start(ctx)
	} else {
		logger.Warn().Msg("WAIVER_PLAYER_SYNC_URL not set, player catalog sync disabled")
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error().Err(err).Msg("server error")
		}
	}()

	logger.Info().Str("port", cfg.Port).Msg("✅ waiver service running")
	logger.Info().Msg("✅ gateway auth enforced globally")
	logger.Info().Msg("✅ waiver process worker running (hourly)")

	<-ctx.Done()
	logger.Info().Msg("shutting down...")
	processWorker.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
}
