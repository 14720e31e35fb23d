package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aonescu/remedy/cmd/server"
	"github.com/aonescu/remedy/internal/cluster"
	"github.com/aonescu/remedy/internal/config"
	"github.com/aonescu/remedy/internal/cooldown"
	"github.com/aonescu/remedy/internal/engine"
	"github.com/aonescu/remedy/internal/history"
	"github.com/aonescu/remedy/internal/leader"
	"github.com/aonescu/remedy/internal/logging"
	"github.com/aonescu/remedy/internal/playbook"
	"github.com/aonescu/remedy/internal/promquery"
	"github.com/aonescu/remedy/internal/rca"
)

func main() {
	cfg := config.FromEnv()
	logging.Init(logging.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON, Output: os.Stderr})
	log := logging.WithComponent("main")

	log.Info().
		Bool("healing_enabled", cfg.HealingEnabled).
		Bool("dry_run", cfg.DryRun).
		Str("identity", cfg.PodName).
		Msg("self-healing agent starting")

	// Kubernetes access is non-negotiable: no cluster, no agent.
	clusterClient, err := cluster.NewClient()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot reach a kubernetes cluster")
	}

	promClient, err := promquery.New(cfg.PrometheusURL, cfg.PrometheusUser, cfg.PrometheusPassword)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.PrometheusURL).Msg("invalid prometheus configuration")
	}

	// Persist action history in Postgres when configured, in memory
	// otherwise.
	var store history.Store
	if cfg.DatabaseURL != "" {
		pgStore, err := history.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("postgres unavailable, falling back to in-memory history")
			store = history.NewMemoryStore()
		} else {
			log.Info().Msg("connected to postgres for action history")
			store = pgStore
			defer pgStore.Close()
		}
	} else {
		store = history.NewMemoryStore()
	}

	// A malformed playbook is a deploy error; refusing to start beats
	// healing with the wrong rules.
	rules, err := playbook.Load(cfg.PlaybookPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.PlaybookPath).Msg("cannot load healing playbook")
	}
	log.Info().Int("rules", len(rules)).Str("path", cfg.PlaybookPath).Msg("playbook loaded")

	var analyzer rca.Analyzer
	if cfg.GeminiAPIKey != "" {
		analyzer = rca.NewGeminiClient(cfg.GeminiAPIKey, rca.WithTimeout(cfg.RCATimeout))
		log.Info().Msg("gemini RCA enrichment enabled")
	}

	ruleEngine := engine.NewRuleEngine(clusterClient, promClient)
	executor := engine.NewExecutor(clusterClient, promClient, cooldown.NewTracker(), store, analyzer,
		engine.ExecutorConfig{
			HealingEnabled: cfg.HealingEnabled,
			DryRun:         cfg.DryRun,
			CooldownWindow: cfg.CooldownWindow,
			RCATimeout:     cfg.RCATimeout,
		})
	loop := engine.NewControlLoop(rules, ruleEngine, executor, cfg.EvalInterval, cfg.ErrorBackoff)

	lock := leader.NewLeaseLock(clusterClient.Clientset(), cfg.Namespace, cfg.LeaseName, cfg.PodName)
	coordinator := leader.NewCoordinator(lock, leader.LeaseConfig{
		LeaseDuration: cfg.LeaseDuration,
		RenewDeadline: cfg.RenewDeadline,
		RetryPeriod:   cfg.RetryPeriod,
	}, loop.Run, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The API surface serves on every replica; only the leader runs the
	// control loop.
	apiServer := server.NewAPIServer(loop, executor, clusterClient, promClient, store, coordinator)
	go func() {
		if err := apiServer.Start(cfg.APIAddress); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	if err := coordinator.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("leader election failed")
	}

	// Let in-flight RCA goroutines flush their reports before exit.
	executor.WaitRCA()
	log.Info().Msg("agent stopped")
}
