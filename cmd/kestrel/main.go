// Kestrel - Behavioral biometrics risk assessment.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/behaviorsec/kestrel/internal/api"
	"github.com/behaviorsec/kestrel/internal/assess"
	"github.com/behaviorsec/kestrel/internal/bus"
	"github.com/behaviorsec/kestrel/internal/cache"
	"github.com/behaviorsec/kestrel/internal/domain"
	"github.com/behaviorsec/kestrel/internal/history"
	"github.com/behaviorsec/kestrel/internal/model"
	"github.com/behaviorsec/kestrel/internal/policy"
	"github.com/behaviorsec/kestrel/internal/repository"
	"github.com/behaviorsec/kestrel/internal/worker"
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
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if url := os.Getenv("KESTREL_MODEL_URL"); url != "" {
		cfg.Model.BaseURL = url
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"model_configured", cfg.Model.BaseURL != "",
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

	// Initialize History Service
	historySvc := history.NewService(repo, cacheImpl)
	slog.Info("history service initialized")

	// Initialize Policy Engine with history getter
	engine, err := policy.NewEngine(historySvc.GetHistoryGetter(), 100)
	if err != nil {
		slog.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}

	// Load policies from database (no hardcoded defaults - configure via API)
	if err := loadPoliciesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load policies", "error", err)
		os.Exit(1)
	}
	slog.Info("policy engine initialized", "policies_count", engine.PoliciesCount())

	// Initialize Model collaborators. A nil client means no model service
	// is configured; assessments run on heuristics alone.
	modelClient := model.NewClient(cfg.Model)
	cacheTTL := time.Duration(cfg.Model.CacheTTLSecs) * time.Second
	modelHandle := model.NewHandleFromClient(modelClient, cacheImpl, cacheTTL, logger)
	if modelHandle.Available() {
		slog.Info("model service configured", "url", cfg.Model.BaseURL)
	} else {
		slog.Info("no model service configured - running heuristics only")
	}

	// Initialize Assessment Pipeline
	service := assess.NewService(assess.Config{
		Model:    modelHandle,
		Policies: engine,
		Repo:     repo,
		Bus:      busImpl,
		History:  historySvc,
		Logger:   logger,
	})
	slog.Info("assessment pipeline initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, service)

		var tenantIDs []string
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Service:  service,
		Policies: engine,
		Model:    modelClient,
		Handle:   modelHandle,
		Version:  Version,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// GlobalTenantID is used for policies that apply to all tenants.
const GlobalTenantID = "*"

// loadPoliciesFromDatabase loads policies from the database into the engine.
// All policies must be configured via POST /v1/policies - no hardcoded
// defaults.
func loadPoliciesFromDatabase(ctx context.Context, repo domain.Repository, engine *policy.Engine) error {
	dbPolicies, err := repo.ListPolicies(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list policies from database", "error", err)
		return nil // Start with empty policies - they can be added via API
	}

	if len(dbPolicies) > 0 {
		slog.Info("loading policies from database", "count", len(dbPolicies))
		return engine.LoadPolicies(dbPolicies)
	}

	slog.Info("no policies in database - configure via POST /v1/policies")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║   Behavioral Biometrics Risk Engine       ║")
	fmt.Println("  ║     Every keystroke tells a story.        ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /v1/assess            - Assess a behavioral sample")
	fmt.Println("    POST /v1/samples/validate  - Validate sample quality")
	fmt.Println("    POST /v1/features/extract  - Extract feature vector")
	fmt.Println("    GET  /v1/assessments/{id}  - Get assessment by ID")
	fmt.Println("    GET  /v1/samples/{id}      - Get sample by ID")
	fmt.Println("    GET  /v1/model             - Model service info")
	fmt.Println("    POST /v1/model/train       - Train the model")
	fmt.Println("    POST /v1/model/reset       - Reset the model")
	fmt.Println("    GET  /v1/policies          - List all policies")
	fmt.Println("    POST /v1/policies          - Create a new policy")
	fmt.Println("    POST /v1/policies/reload   - Hot-reload policies")
	fmt.Println("    GET  /health               - Health check")
	fmt.Println()
}
