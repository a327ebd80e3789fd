// Package main is the entry point for the tradebook journal server.
// The service ingests trade lifecycle events from a trading agent via webhook,
// reconciles them into a journal backed by SQLite, and maintains account
// balances through closes, trash and restore operations.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/akarpou/tradebook/internal/config"
	"github.com/akarpou/tradebook/internal/database"
	"github.com/akarpou/tradebook/internal/modules/accounts"
	accounthandlers "github.com/akarpou/tradebook/internal/modules/accounts/handlers"
	"github.com/akarpou/tradebook/internal/modules/trades"
	tradehandlers "github.com/akarpou/tradebook/internal/modules/trades/handlers"
	"github.com/akarpou/tradebook/internal/modules/webhook"
	webhookhandlers "github.com/akarpou/tradebook/internal/modules/webhook/handlers"
	"github.com/akarpou/tradebook/internal/objectstore"
	"github.com/akarpou/tradebook/internal/scheduler"
	"github.com/akarpou/tradebook/internal/server"
	"github.com/akarpou/tradebook/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting tradebook")

	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "journal.db"),
		Profile: database.ProfileLedger,
		Name:    "journal",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply schema")
	}

	// Repositories and services
	accountsRepo := accounts.NewRepository(db.Conn(), log)
	tradesRepo := trades.NewRepository(db.Conn(), log)
	ledgerRepo := webhook.NewLedgerRepository(log)
	reconciler := webhook.NewReconciler(db.Conn(), tradesRepo, accountsRepo, ledgerRepo, log)
	trashService := trades.NewTrashService(tradesRepo, accountsRepo, log)

	// Screenshot cleanup is optional; without a bucket the purger only
	// removes database rows.
	var objects trades.ObjectDeleter
	if cfg.S3 != nil {
		store, err := objectstore.New(context.Background(), objectstore.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize object store")
		}
		objects = store
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Object store initialized")
	}

	purgeJob := trades.NewPurgeJob(tradesRepo, objects, cfg.TrashRetention, cfg.PurgeInterval, log)

	sched := scheduler.New(log)
	if err := sched.AddJob("@daily", purgeJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register purge job")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:             log,
		DB:              db,
		Config:          cfg,
		AccountHandlers: accounthandlers.NewHandler(accountsRepo, log),
		TradeHandlers:   tradehandlers.NewHandler(tradesRepo, accountsRepo, trashService, purgeJob, log),
		WebhookHandlers: webhookhandlers.NewHandler(reconciler, cfg.WebhookSecret, log),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
