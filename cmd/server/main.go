package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"photovault/internal/server/api"
	"photovault/internal/server/config"
	"photovault/internal/server/database"
	"photovault/internal/server/quota"
	"photovault/internal/server/service"
	"photovault/internal/server/session"
	"photovault/internal/server/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	var store storage.Store
	switch cfg.StorageBackend {
	case "s3":
		store, err = storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			slog.Error("failed to initialize s3 storage", "error", err)
			os.Exit(1)
		}
	default:
		fsStore := storage.NewFileSystemStore(cfg.StoragePath)
		if err := fsStore.EnsureBase(); err != nil {
			slog.Error("failed to prepare storage directory", "error", err)
			os.Exit(1)
		}
		store = fsStore
	}

	var notifier session.Notifier
	if cfg.NotifyWebhookURL != "" {
		notifier = api.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyTimeout)
	} else {
		notifier = api.LogNotifier{}
	}

	repo := database.NewRepository(db)
	ledger := quota.NewLedger(repo)
	uploads := session.NewUploadTracker(notifier, cfg.SessionIdleTimeout)
	deletions := session.NewDeletionTracker(cfg.DeleteConfirmTimeout)

	svc := service.New(repo, store, ledger, uploads, deletions, cfg)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	sweeper := session.NewSweeper(uploads, deletions, cfg.SweepInterval)
	sweeper.Start(sweepCtx)

	handler := api.NewHandler(svc, db)
	e := api.SetupRouter(handler, cfg)

	go func() {
		slog.Info("starting server", "port", cfg.Port, "storage", cfg.StorageBackend)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	// Stop the sweeper after the listener drains so in-flight uploads keep
	// their sessions; CloseAll flushes the remaining summaries.
	stopSweeper()
	sweeper.Wait()

	slog.Info("server stopped")
}
