// Package main implements the tribed CLI: tribe formation and
// compatibility scoring over a profile snapshot file.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tribed/internal/advisory"
	"github.com/fyrsmithlabs/tribed/internal/compat"
	"github.com/fyrsmithlabs/tribed/internal/config"
	"github.com/fyrsmithlabs/tribed/internal/formation"
	"github.com/fyrsmithlabs/tribed/internal/logging"
	"github.com/fyrsmithlabs/tribed/internal/store"
)

var (
	// configPath is the optional YAML config file location
	configPath string
	// verbose raises the log level to debug
	verbose bool
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tribed",
	Short: "Tribe matching engine",
	Long: `tribed forms small in-person groups (tribes) from user profiles by
combining personality, interest, communication, location and group
balance compatibility. It assigns users to existing tribes with spare
capacity and clusters the rest into candidate new tribes.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/tribed/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(formCmd)
	rootCmd.AddCommand(scoreCmd)
}

// app bundles the wired service with the snapshot it operates on.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   *store.Memory
	service formation.Service
}

// buildApp wires the full service stack over a snapshot file.
func buildApp(snapshotPath string) (*app, error) {
	logCfg := logging.NewDefaultConfig()
	logCfg.Format = "console"
	if verbose {
		logCfg.Level = zapcore.DebugLevel
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	cfg, err := config.LoadWithFile(configPath, logger.Underlying())
	if err != nil {
		return nil, err
	}

	mem, err := store.LoadFile(snapshotPath)
	if err != nil {
		return nil, err
	}

	var advClient advisory.Client
	if cfg.Advisory.Enabled {
		advClient, err = advisory.NewLLMClient(advisory.Config{
			BaseURL:           cfg.Advisory.BaseURL,
			Model:             cfg.Advisory.Model,
			APIKey:            cfg.Advisory.APIKey.Value(),
			Timeout:           cfg.Advisory.Timeout.Duration(),
			RequestsPerSecond: cfg.Advisory.RequestsPerSecond,
			Burst:             cfg.Advisory.Burst,
		}, logger.Underlying())
		if err != nil {
			return nil, fmt.Errorf("creating advisory client: %w", err)
		}
	}

	var scorer compat.AdvisoryScorer
	if advClient != nil {
		scorer = advClient
	}
	engine := compat.NewEngine(&compat.Config{
		DefaultMaxDistanceMiles: cfg.Matching.MaxDistanceMiles,
		AlgorithmWeight:         0.7,
		AdvisoryWeight:          0.3,
	}, scorer, logger.Underlying())

	svc, err := formation.NewService(&formation.Config{
		MinGroupSize:           cfg.Matching.MinGroupSize,
		MaxGroupSize:           cfg.Matching.MaxGroupSize,
		MaxDistanceMiles:       cfg.Matching.MaxDistanceMiles,
		CompatibilityThreshold: cfg.Matching.CompatibilityThreshold,
		MaxOptimizationRounds:  cfg.Matching.MaxOptimizationRounds,
		AdvisoryEnabled:        cfg.Advisory.Enabled,
		AdvisoryTimeout:        cfg.Advisory.Timeout.Duration(),
		CacheEnabled:           cfg.Cache.Enabled,
		CacheSize:              cfg.Cache.Size,
		CacheTTL:               cfg.Cache.TTL.Duration(),
	}, mem, mem, engine, advClient, logger.Underlying())
	if err != nil {
		return nil, fmt.Errorf("creating formation service: %w", err)
	}

	return &app{cfg: cfg, logger: logger, store: mem, service: svc}, nil
}

// printJSON renders a result to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
