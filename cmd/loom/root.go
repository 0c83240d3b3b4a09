package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/config"
	"loom/internal/engine"
	loomerrors "loom/internal/errors"
	"loom/internal/llm"
	"loom/internal/logging"
	"loom/internal/observability"
	"loom/internal/world"
)

var (
	flagConfig string
	flagSeed   string
	flagDB     string
	flagModel  string
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "loom weaves a fictional world one turn at a time",
	Long: "loom runs a turn-based fictional world: each player action passes a validation\n" +
		"gate, a world simulation, a narrative plan and an atmosphere pass, then the\n" +
		"selected cast answers in parallel and the results commit as one new snapshot.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.loom/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagSeed, "seed", "", "world seed file (overrides store.seed)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "sqlite snapshot database (overrides store.path)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "generation model (overrides llm.model)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagSeed != "" {
		cfg.Store.Seed = flagSeed
	}
	if flagDB != "" {
		cfg.Store.Path = flagDB
	}
	if flagModel != "" {
		cfg.LLM.Model = flagModel
	}
	return cfg, nil
}

// openStore loads the world seed and opens the configured snapshot store.
func openStore(cfg *config.Config) (world.Store, *world.Genesis, error) {
	if cfg.Store.Seed == "" {
		return nil, nil, fmt.Errorf("no world seed configured; pass --seed or set store.seed")
	}
	genesis, err := world.LoadGenesis(cfg.Store.Seed)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Store.Path == "" {
		return world.NewMemoryStore(genesis.Snapshot()), genesis, nil
	}
	store, err := world.OpenSQLiteStore(cfg.Store.Path, genesis.Snapshot())
	if err != nil {
		return nil, nil, err
	}
	return store, genesis, nil
}

// buildClient assembles the retry-wrapped generation client the engine uses.
// offline swaps in a scripted client so the whole pipeline runs without a
// backend.
func buildClient(cfg *config.Config, offline bool) llm.Client {
	retryConfig := loomerrors.RetryConfig{
		MaxAttempts: cfg.LLM.MaxAttempts,
		BaseDelay:   cfg.LLM.BaseDelay,
		MaxDelay:    cfg.LLM.MaxDelay,
	}

	var base llm.Client
	if offline {
		base = offlineClient()
	} else {
		base = llm.NewHTTPClient(llm.HTTPClientConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
	}
	return llm.WrapWithRetry(base, retryConfig, cfg.LLM.Timeout)
}

// offlineClient scripts just enough of every stage to walk the pipeline.
func offlineClient() llm.Client {
	return llm.NewScriptedClient().
		Respond("check a player's declared action", `{"is_valid": true}`).
		Respond("physical-consequence", `{"time_cost": 10}`).
		Respond("scene director", `{
			"mood": "quiet",
			"tension": "low",
			"narration": "The world holds its breath and waits for what comes next.",
			"instructions": []
		}`).
		Respond("sensory atmosphere", `{"description": "The light shifts slowly.", "ambient_set": []}`).
		SetFallback(`{"dialogue": "...", "mood": "neutral"}`)
}

func buildEngine(cfg *config.Config, store world.Store, client llm.Client) (*engine.Engine, *observability.MetricsCollector, error) {
	metrics, err := observability.NewMetricsCollector(cfg.Observability.Metrics)
	if err != nil {
		return nil, nil, err
	}
	tracer, err := observability.NewTracerProvider(cfg.Observability.Tracing)
	if err != nil {
		return nil, nil, err
	}

	engineConfig := engine.DefaultConfig()
	if cfg.Engine.MaxActionChars > 0 {
		engineConfig.MaxActionChars = cfg.Engine.MaxActionChars
	}
	if cfg.Engine.MaxInFlight > 0 {
		engineConfig.MaxInFlight = cfg.Engine.MaxInFlight
	}
	if cfg.Engine.ActorCallTimeout > 0 {
		engineConfig.ActorCallTimeout = cfg.Engine.ActorCallTimeout
	}
	if cfg.Engine.ClockCost > 0 {
		engineConfig.ClockCost = cfg.Engine.ClockCost
	}
	if cfg.Engine.ContextTokens > 0 {
		engineConfig.ContextTokenBudget = cfg.Engine.ContextTokens
	}
	if cfg.Engine.HistoryEntries > 0 {
		engineConfig.HistoryMaxEntries = cfg.Engine.HistoryEntries
	}
	if cfg.Engine.HistoryChars > 0 {
		engineConfig.HistoryMaxChars = cfg.Engine.HistoryChars
	}

	logging.NewComponentLogger("loom").Info("%s", engine.Describe(engineConfig))
	return engine.New(store, client, engineConfig, metrics, tracer), metrics, nil
}
