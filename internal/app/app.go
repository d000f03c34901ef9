package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	fingerprint "github.com/YannKr/fingerprint"
	"github.com/YannKr/fingerprint/internal/cleanup"
	"github.com/YannKr/fingerprint/internal/config"
	"github.com/YannKr/fingerprint/internal/db"
	"github.com/YannKr/fingerprint/internal/diskstat"
	"github.com/YannKr/fingerprint/internal/handler"
	"github.com/YannKr/fingerprint/internal/sse"
	"github.com/YannKr/fingerprint/internal/webhook"
	"github.com/YannKr/fingerprint/internal/worker"
)

func Run(ctx context.Context, cfg *config.Config) error {
	// Ensure data directories exist
	for _, dir := range []string{cfg.DataDir, filepath.Join(cfg.DataDir, "inputs"), filepath.Join(cfg.DataDir, "outputs")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	// Open database
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	// Run migrations
	if err := db.Migrate(database, fingerprint.MigrationFS); err != nil {
		return err
	}
	slog.Info("database ready")

	// Register the configured webhook endpoint
	if cfg.WebhookURL != "" && cfg.WebhookSecret == "" {
		slog.Warn("WEBHOOK_URL set without WEBHOOK_SECRET; deliveries are signed with an empty key")
	}
	if err := webhook.EnsureConfigured(database, cfg.WebhookURL, cfg.WebhookSecret); err != nil {
		return err
	}
	webhookDispatcher := &webhook.Dispatcher{DB: database}
	defer webhookDispatcher.Wait()

	retrier := &webhook.Retrier{Dispatcher: webhookDispatcher}
	retrier.Start(ctx)

	// Start cleanup scheduler
	cleaner := &cleanup.Cleaner{
		DB:        database,
		DataDir:   cfg.DataDir,
		Interval:  time.Duration(cfg.CleanupIntervalMins) * time.Minute,
		Retention: time.Duration(cfg.JobRetentionHours) * time.Hour,
	}
	cleaner.Start(ctx)
	defer cleaner.Stop()

	// Create SSE hub for job progress
	sseHub := sse.New()

	// Start worker pool
	pool := worker.NewPool(database, cfg, webhookDispatcher, sseHub)
	pool.Start(ctx)
	defer pool.Stop()

	apiRL := handler.NewRateLimiter(rate.Limit(cfg.APIRatePerSec), cfg.APIBurst)
	defer apiRL.Stop()

	// Start disk stats cache
	diskCache := diskstat.New(cfg.DataDir, 60*time.Second)
	diskCache.Start()
	defer diskCache.Stop()

	// Build handler and routes
	h := handler.New(database, cfg, sseHub, diskCache)
	router := h.Routes(apiRL)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", cfg.ListenAddr, "data_dir", cfg.DataDir,
		"api_rate", apiRL.Rate(), "api_burst", apiRL.Burst(), "admin_api", cfg.AdminToken != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
