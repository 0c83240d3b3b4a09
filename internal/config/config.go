// Package config loads layered runtime configuration: built-in defaults,
// then ~/.loom/config.yaml, then LOOM_* environment variables. The rest of
// the program only ever sees the plain Config struct.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"loom/internal/observability"
)

// LLMConfig configures the generation backend.
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// EngineConfig tunes the turn pipeline.
type EngineConfig struct {
	MaxActionChars   int           `mapstructure:"max_action_chars"`
	MaxInFlight      int           `mapstructure:"max_in_flight"`
	ActorCallTimeout time.Duration `mapstructure:"actor_call_timeout"`
	ClockCost        int           `mapstructure:"clock_cost"`
	ContextTokens    int           `mapstructure:"context_tokens"`
	HistoryEntries   int           `mapstructure:"history_entries"`
	HistoryChars     int           `mapstructure:"history_chars"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StoreConfig selects and locates the snapshot store.
type StoreConfig struct {
	// Path to the sqlite database; empty selects the in-memory store.
	Path string `mapstructure:"path"`
	// Seed is the world seed file loaded when the store is empty.
	Seed string `mapstructure:"seed"`
}

// Config is the fully resolved runtime configuration.
type Config struct {
	LLM           LLMConfig            `mapstructure:"llm"`
	Engine        EngineConfig         `mapstructure:"engine"`
	Server        ServerConfig         `mapstructure:"server"`
	Store         StoreConfig          `mapstructure:"store"`
	Observability observability.Config `mapstructure:"observability"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.base_delay", "500ms")
	v.SetDefault("llm.max_delay", "8s")

	v.SetDefault("engine.max_action_chars", 500)
	v.SetDefault("engine.max_in_flight", 4)
	v.SetDefault("engine.actor_call_timeout", "45s")
	v.SetDefault("engine.clock_cost", 10)
	v.SetDefault("engine.context_tokens", 3000)
	v.SetDefault("engine.history_entries", 12)
	v.SetDefault("engine.history_chars", 4000)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("store.path", "")
	v.SetDefault("store.seed", "")

	v.SetDefault("observability.metrics.enabled", false)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.tracing.service_name", "loom")
}

// Load resolves the configuration. configPath overrides the default file
// location (~/.loom/config.yaml); a missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".loom"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// An explicitly named file must load; the default location is
		// optional.
		if configPath != "" {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
