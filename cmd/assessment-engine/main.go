package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terra-clan/assessment-engine/internal/api"
	"github.com/terra-clan/assessment-engine/internal/auth"
	"github.com/terra-clan/assessment-engine/internal/cache"
	"github.com/terra-clan/assessment-engine/internal/cleanup"
	"github.com/terra-clan/assessment-engine/internal/config"
	"github.com/terra-clan/assessment-engine/internal/evaluator"
	"github.com/terra-clan/assessment-engine/internal/execution"
	"github.com/terra-clan/assessment-engine/internal/health"
	"github.com/terra-clan/assessment-engine/internal/questionsets"
	"github.com/terra-clan/assessment-engine/internal/session"
	"github.com/terra-clan/assessment-engine/internal/stages"
	"github.com/terra-clan/assessment-engine/internal/storage"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting assessment-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage", cfg.Database.Driver,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	probes := health.NewRegistry()

	// Initialize persistence gateway
	repo, err := openRepository(initCtx, cfg.Database, probes)
	if err != nil {
		slog.Error("failed to create session repository", "error", err)
		os.Exit(1)
	}

	// Snapshot cache is optional; views fall back to the repository
	var snapshots session.SnapshotStore
	if cfg.Redis.Address != "" {
		redisCfg := cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.SnapshotTTL,
		}
		redisClient, err := cache.NewRedisClient(initCtx, redisCfg)
		if err != nil {
			slog.Warn("redis unavailable, session snapshots disabled", "address", cfg.Redis.Address, "error", err)
		} else {
			defer redisClient.Close()
			snapshots = cache.NewRedisSnapshots(redisClient, cfg.Redis.SnapshotTTL)
			probes.Register(health.NewRedisProbe(redisClient))
			slog.Info("redis connected successfully", "address", cfg.Redis.Address)
		}
	}

	// Load question sets
	questionSets := questionsets.NewLoader()
	if err := questionSets.LoadFromDir(cfg.QuestionSets.Dir); err != nil {
		slog.Warn("failed to load question sets from dir", "dir", cfg.QuestionSets.Dir, "error", err)
	}
	if len(questionSets.List()) == 0 {
		slog.Warn("no question sets loaded; assessments cannot start", "dir", cfg.QuestionSets.Dir)
	}

	// Execution service and evaluator
	languages := execution.NewLanguages()
	if cfg.Execution.LanguagesFile != "" {
		if err := languages.LoadFromFile(cfg.Execution.LanguagesFile); err != nil {
			slog.Error("failed to load languages file", "file", cfg.Execution.LanguagesFile, "error", err)
			os.Exit(1)
		}
	}
	executor := execution.NewClient(cfg.Execution.URL, languages, execution.WithTimeout(cfg.Execution.Timeout))
	probes.Register(health.NewPingProbe("execution", executor))
	eval := evaluator.New(executor, languages)

	analyzer := stages.NewAnalysisClient(cfg.Analysis.URL, stages.WithAnalysisTimeout(cfg.Analysis.Timeout))

	factory := stages.NewFactory(analyzer, eval, stages.Thresholds{
		CommunicationPass: cfg.Gating.CommunicationUnlockScore,
		TechnicalPass:     cfg.Gating.TechnicalPassScore,
		CodingPass:        cfg.Gating.CodingPassScore,
	})

	// Initialize session manager
	proctors := api.NewProctorHub(cfg.Proctor.ReplyTimeout)
	manager := session.NewManager(session.Deps{
		Factory:   factory,
		Gating:    session.GatingTable{CommunicationUnlockScore: cfg.Gating.CommunicationUnlockScore},
		Persister: session.NewPersister(repo, cfg.Persistence.RetryAttempts, cfg.Persistence.RetryBackoff),
		Snapshots: snapshots,
	}, repo, questionSets, proctors)

	// Initialize cleanup worker
	cleaner := cleanup.NewCleaner(manager, cfg.Cleanup.Interval, cfg.Cleanup.IdleTimeout)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start cleanup worker
	cleaner.Start(ctx)

	// Setup HTTP server
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	server := api.NewServer(cfg.Server, manager, questionSets, probes, proctors, verifier)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Release live sessions before closing storage
	manager.Close(shutdownCtx)

	if err := repo.Close(); err != nil {
		slog.Error("repository close error", "error", err)
	}
	for _, name := range probes.List() {
		if closer, ok := probes.Get(name).(interface{ Close() error }); ok {
			closer.Close()
		}
	}

	slog.Info("assessment-engine stopped")
}

// openRepository builds the configured persistence gateway and registers
// its readiness probe
func openRepository(ctx context.Context, cfg config.DatabaseConfig, probes *health.Registry) (storage.Repository, error) {
	if cfg.Driver == "memory" {
		slog.Warn("using in-memory session storage; results are lost on restart")
		return storage.NewMemoryRepository(), nil
	}

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.DSN,
		MaxOpenConns: int32(cfg.MaxOpenConns),
		MaxIdleConns: int32(cfg.MaxIdleConns),
	})
	if err != nil {
		return nil, err
	}
	slog.Info("database connected successfully")

	migrations, err := storage.Migrations(cfg.MigrationsDir)
	if err != nil {
		repo.Close()
		return nil, err
	}
	slog.Info("running database migrations", "dir", cfg.MigrationsDir)
	if err := storage.RunMigrations(ctx, repo.Pool(), migrations); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	probe, err := health.NewPostgresProbe(cfg.DSN)
	if err != nil {
		slog.Warn("failed to create postgres probe", "error", err)
	} else {
		probes.Register(probe)
	}

	return repo, nil
}
