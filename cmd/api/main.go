// Package main is the entry point for the Cardiometrix API server.
//
// It loads configuration, connects to PostgreSQL, wires the repositories,
// scoring client, pipeline orchestrator, batch runner, and weekly engine into
// the HTTP server, and listens on the configured port. Graceful shutdown is
// handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"cardiometrix/internal/api"
	"cardiometrix/internal/config"
	"cardiometrix/internal/db"
	"cardiometrix/internal/features"
	"cardiometrix/internal/importer"
	"cardiometrix/internal/queue"
	"cardiometrix/internal/risk"
	"cardiometrix/internal/scoring"
	"cardiometrix/internal/summary"
	"cardiometrix/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on
// error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.App.LogLevel)
	logger.Info("cardiometrix API starting",
		"environment", cfg.App.Env,
		"port", cfg.App.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	measurements := db.NewMeasurementRepository(pool)
	snapshots := db.NewRiskRepository(pool)
	nudges := db.NewNudgeRepository(pool)
	users := db.NewUserRepository(pool)
	weeklies := db.NewWeeklyRepository(pool)
	legacy := db.NewLegacyRepository(pool)

	scorer := scoring.NewClient(scoring.Config{
		BaseURL: cfg.Scorer.BaseURL,
		APIKey:  cfg.Scorer.APIKey,
		Timeout: cfg.Scorer.Timeout,
		Retry: scoring.RetryPolicy{
			MaxAttempts: cfg.Scorer.MaxAttempts,
			BaseDelay:   cfg.Scorer.RetryBaseDelay,
		},
	})

	// The push hook is optional; without a queue URL the pipeline simply
	// skips the post-commit notification.
	var hook risk.PostCommitHook
	if cfg.AWS.PushQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS SDK config: %w", err)
		}
		hook = queue.NewPushTrigger(sqs.NewFromConfig(awsCfg), cfg.AWS.PushQueueURL, logger)
		logger.Info("push queue enabled", "queue_url", cfg.AWS.PushQueueURL)
	}

	orch, err := risk.NewOrchestrator(risk.OrchestratorConfig{
		Measurements: measurements,
		NudgeHistory: nudges,
		Scorer:       scorer,
		Snapshots:    snapshots,
		Nudges:       nudges,
		Legacy:       legacy,
		Hook:         hook,
		Windows: features.Windows{
			RecentDays:   cfg.Windows.RecentDays,
			TrendDays:    cfg.Windows.TrendDays,
			BaselineDays: cfg.Windows.BaselineDays,
			VarDays:      cfg.Windows.VarDays,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	runner := risk.NewRunner(orch, users, cfg.Jobs.Concurrency, logger)

	weeklyEngine, err := summary.NewEngine(summary.EngineConfig{
		Risk:         snapshots,
		Measurements: measurements,
		Store:        weeklies,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating weekly engine: %w", err)
	}

	srv := api.NewServer(api.ServerConfig{
		Risk:          orch,
		Runner:        runner,
		Snapshots:     snapshots,
		Forecast:      risk.NewForecaster(snapshots),
		Nudges:        nudges,
		Measurements:  measurements,
		Importer:      importer.New(measurements, logger),
		Weekly:        &weeklyService{engine: weeklyEngine, store: weeklies},
		Users:         users,
		JobSecretHash: cfg.Jobs.SecretHash,
		Logger:        logger,
		Now:           time.Now,
	})

	return runHTTPServer(srv, cfg, logger)
}

// weeklyService pairs the compute engine with the summary store to satisfy
// the server's weekly interface.
type weeklyService struct {
	engine *summary.Engine
	store  *db.WeeklyRepository
}

func (s *weeklyService) ComputeWeekly(ctx context.Context, userID, dateISO string) (types.WeeklyRiskSummary, error) {
	return s.engine.ComputeWeekly(ctx, userID, dateISO)
}

func (s *weeklyService) GetWeeklySummary(ctx context.Context, userID, weekStart string) (*types.WeeklyRiskSummary, error) {
	return s.store.GetWeeklySummary(ctx, userID, weekStart)
}

// runHTTPServer starts the server with graceful shutdown.
func runHTTPServer(srv *api.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + strconv.Itoa(cfg.App.Port)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
