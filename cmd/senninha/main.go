// Senninha - Credit liability profiling for Mapa de Responsabilidades reports.
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

	"github.com/senna-project/senninha/internal/api"
	"github.com/senna-project/senninha/internal/banks"
	"github.com/senna-project/senninha/internal/bus"
	"github.com/senna-project/senninha/internal/cache"
	"github.com/senna-project/senninha/internal/domain"
	"github.com/senna-project/senninha/internal/export"
	"github.com/senna-project/senninha/internal/normalize"
	"github.com/senna-project/senninha/internal/profile"
	"github.com/senna-project/senninha/internal/repository"
	"github.com/senna-project/senninha/internal/rules"
	"github.com/senna-project/senninha/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("SENNINHA_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting senninha",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("SENNINHA_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	// Qualification gate override
	if gate := os.Getenv("SENNINHA_SUM_GATE"); gate != "" {
		cfg.Profile.Gate = domain.SumGate(gate)
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"gate", cfg.Profile.Gate,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize custom exclusion rule engine
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	// Load rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize the profile engine with the fixed domain tables
	registry := banks.DefaultRegistry()
	profileEngine := profile.NewEngine(
		cfg.Profile,
		registry,
		normalize.DefaultProductMap(),
		normalize.DefaultInstitutionNormalizer(),
		engine,
		logger,
	)
	slog.Info("profile engine initialized",
		"qualification_min", cfg.Profile.QualificationMin,
		"auto_loan_min", cfg.Profile.AutoLoanMin,
	)

	// Initialize Exporter
	exporter := export.New(cfg.Export, logger)
	slog.Info("exporter initialized", "base_dir", cfg.Export.BaseDir)

	// Initialize async Worker: consumes extractor batches from the bus
	asyncWorker := worker.NewWorker(busImpl, repo, cacheImpl, profileEngine, exporter, logger)
	if err := asyncWorker.Start(worker.Config{SummaryTTL: cfg.Cache.LocalTTL}); err != nil {
		slog.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	slog.Info("worker started")

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, asyncWorker, engine, registry, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("senninha is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("senninha shutdown complete")
}

// loadRulesFromDatabase loads custom exclusion rules into the engine.
// All rules are configured via POST /rules - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  SENNINHA - Mapa de Responsabilidades profiling engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /batches                  - Evaluate a batch of debt lines")
	fmt.Println("    GET  /batches/{id}             - Get a stored batch")
	fmt.Println("    GET  /evaluations/{id}         - Get evaluation by ID")
	fmt.Println("    GET  /clients/{nif}            - Get latest client result")
	fmt.Println("    GET  /clients/{nif}/rejections - Get client rejection report")
	fmt.Println("    GET  /rules                    - List custom exclusion rules")
	fmt.Println("    POST /rules                    - Create a custom exclusion rule")
	fmt.Println("    DELETE /rules/{id}             - Delete a custom exclusion rule")
	fmt.Println("    POST /rules/reload             - Hot-reload rules from database")
	fmt.Println("    GET  /banks                    - Bank registry thresholds")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println()
}
