// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the collabmatch CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/collabmatch/internal/engine"
	"github.com/pdiddy/collabmatch/internal/metrics"
	"github.com/pdiddy/collabmatch/internal/secrets"
	"github.com/pdiddy/collabmatch/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ and .env at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// cfg is the effective configuration, resolved before every command runs.
var cfg types.Config

// rootCmd is the base command for the collabmatch CLI.
var rootCmd = &cobra.Command{
	Use:   "collabmatch",
	Short: "Research collaboration matching engine",
	Long: `collabmatch suggests research collaborations. It embeds researcher
interests and publications, combines semantic similarity with the
co-authorship graph, and ranks researcher pairs as collaboration
opportunities that can be dismissed or actioned.

Import data with ingest, run a sweep with rank, and review results with
opportunities. serve runs the HTTP API with background embedding and
periodic sweeps.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.LoadWithEnv(".secrets/", ".env")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}

		c, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = c
		slog.SetDefault(newLogger(cfg.Log))
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./collabmatch.yaml or ~/.config/collabmatch/config.yaml)")
	defaults := types.DefaultConfig()
	rootCmd.PersistentFlags().String("db", defaults.Store.Path, "SQLite database path (overrides store.path)")
	rootCmd.PersistentFlags().String("log-level", defaults.Log.Level, "log level: debug, info, warn, error")
	_ = viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// envKeys are the settings most often overridden from the environment,
// e.g. COLLABMATCH_EMBEDDER_PROVIDER.
var envKeys = []string{
	"store.path",
	"embedder.provider", "embedder.model", "embedder.base_url", "embedder.api_key", "embedder.dimension",
	"server.addr",
	"enrich.mailto",
	"log.level", "log.format",
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("collabmatch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "collabmatch"))
		}
	}

	viper.SetEnvPrefix("COLLABMATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, k := range envKeys {
		_ = viper.BindEnv(k)
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig decodes viper settings over the defaults and fills the
// embedding API key from secrets when the config leaves it empty.
func loadConfig() (types.Config, error) {
	c := types.DefaultConfig()
	if err := viper.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decoding config: %w", err)
	}
	switch c.Embedder.Provider {
	case types.ProviderOpenAI:
		c.Embedder.APIKey = secretDefault("openai-api-key", c.Embedder.APIKey)
	case types.ProviderHTTP:
		c.Embedder.APIKey = secretDefault("embedding-api-key", c.Embedder.APIKey)
	}
	return c, c.Validate()
}

func newLogger(lc types.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openEngine opens the engine with the resolved configuration.
func openEngine(ctx context.Context, m *metrics.Metrics) (*engine.Engine, error) {
	return engine.Open(ctx, cfg, engine.WithLogger(slog.Default()), engine.WithMetrics(m))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
