package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tapcoin-bot/internal/api"
	"tapcoin-bot/internal/bot"
	"tapcoin-bot/internal/config"
	"tapcoin-bot/internal/database"
	"tapcoin-bot/internal/identity"
	"tapcoin-bot/internal/leaderboard"
	"tapcoin-bot/internal/ledger"
	"tapcoin-bot/internal/logger"
	"tapcoin-bot/internal/payment"
	"tapcoin-bot/internal/powerup"
	"tapcoin-bot/internal/worker"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zlog := logger.New(cfg)
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to Database
	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		zlog.Fatal("Could not connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		zlog.Fatal("Could not get database handle", zap.Error(err))
	}
	defer func() { _ = sqlDB.Close() }()

	schema := database.NewBootstrapper(db)
	if err := schema.Ensure(ctx); err != nil {
		zlog.Warn("Schema bootstrap failed, retrying on first request", zap.Error(err))
	}

	// Connect to Redis
	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = database.ConnectRedis(ctx, cfg)
		if err != nil {
			zlog.Warn("Redis unavailable, running without cache and expiry notices", zap.Error(err))
			rdb = nil
		} else {
			defer func() { _ = rdb.Close() }()
		}
	}

	players := ledger.NewService(db, ledger.Settings{
		EnergyCap:      cfg.EnergyCap,
		PointsPerTap:   cfg.PointsPerTap,
		DailyTapCap:    cfg.DailyTapCap,
		ReferralReward: int64(cfg.ReferralReward),
	})

	column := powerup.DetectIdentityColumn(ctx, db)
	zlog.Info("Powerup identity column detected", zap.String("type", string(column)))
	powerups := powerup.NewStore(db, column)

	var cache leaderboard.Cache
	if rdb != nil {
		cache = leaderboard.NewRedisCache(rdb, cfg.LeaderboardCacheTTL)
	}
	board := leaderboard.NewService(db, cfg.LeaderboardSize, cache)

	tgBot, err := bot.NewBot(cfg.BotToken, players, powerups, schema, cfg.BotUsername, cfg.WebAppURL)
	if err != nil {
		zlog.Fatal("Could not create bot", zap.Error(err))
	}

	deps := api.Deps{
		Resolver:    identity.NewResolver(cfg.BotToken),
		Ledger:      players,
		Leaderboard: board,
		Powerups:    powerups,
		Schema:      schema,
		DB:          sqlDB,
	}
	if cfg.PaymentsEnabled() {
		payments := payment.NewHandler(
			payment.NewClient(cfg.YookassaShopID, cfg.YookassaKey),
			db, powerups, tgBot, cfg.AllowedYooIp, cfg.YookassaReturnURL,
		)
		deps.Checkout = payments
		deps.Webhook = payments.HandleWebhook
	} else {
		zlog.Info("YooKassa keys not set, card checkout disabled")
	}

	handler := api.NewHandler(deps, api.Options{
		AllowGuest:      cfg.AllowGuest,
		RequireVerified: cfg.RequireVerifiedIdentity,
		BotUsername:     cfg.BotUsername,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := tgBot.Start(ctx); err != nil {
			zlog.Error("Bot stopped", zap.Error(err))
		}
	}()

	if rdb != nil && cfg.PowerupNotifyInterval > 0 {
		checker := worker.NewChecker(powerups, tgBot, worker.NewRedisDedup(rdb), cfg.PowerupNotifyInterval)
		go checker.Start(ctx)
	}

	go func() {
		zlog.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	zlog.Info("Service started successfully")
	<-ctx.Done()
	zlog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("HTTP server shutdown failed", zap.Error(err))
	}
}
