// Package config provides configuration loading for tribed.
//
// Configuration is loaded from a YAML file with environment variable
// overrides and hardcoded defaults, in that precedence order.
package config

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// Config holds the complete tribed configuration.
type Config struct {
	Matching      MatchingConfig      `koanf:"matching"`
	Advisory      AdvisoryConfig      `koanf:"advisory"`
	Cache         CacheConfig         `koanf:"cache"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// MatchingConfig holds the matching engine knobs.
type MatchingConfig struct {
	MinGroupSize           int     `koanf:"min_group_size"`
	MaxGroupSize           int     `koanf:"max_group_size"`
	MaxDistanceMiles       float64 `koanf:"max_distance_miles"`
	CompatibilityThreshold float64 `koanf:"compatibility_threshold"`
	MaxOptimizationRounds  int     `koanf:"max_optimization_rounds"`
}

// AdvisoryConfig holds the LLM advisory client configuration.
type AdvisoryConfig struct {
	Enabled           bool     `koanf:"enabled"`
	BaseURL           string   `koanf:"base_url"`
	Model             string   `koanf:"model"`
	APIKey            Secret   `koanf:"api_key"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	Burst             int      `koanf:"burst"`
}

// CacheConfig holds the ranked-result cache configuration.
type CacheConfig struct {
	Enabled bool     `koanf:"enabled"`
	Size    int      `koanf:"size"`
	TTL     Duration `koanf:"ttl"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Matching.MinGroupSize == 0 {
		cfg.Matching.MinGroupSize = 4
	}
	if cfg.Matching.MaxGroupSize == 0 {
		cfg.Matching.MaxGroupSize = 8
	}
	if cfg.Matching.MaxDistanceMiles == 0 {
		cfg.Matching.MaxDistanceMiles = 25
	}
	if cfg.Matching.CompatibilityThreshold == 0 {
		cfg.Matching.CompatibilityThreshold = 0.70
	}
	if cfg.Matching.MaxOptimizationRounds == 0 {
		cfg.Matching.MaxOptimizationRounds = 5
	}

	if cfg.Advisory.BaseURL == "" {
		cfg.Advisory.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Advisory.Model == "" {
		cfg.Advisory.Model = "openai/gpt-4"
	}
	if cfg.Advisory.Timeout == 0 {
		cfg.Advisory.Timeout = Duration(30 * time.Second)
	}
	if cfg.Advisory.RequestsPerSecond == 0 {
		cfg.Advisory.RequestsPerSecond = 2
	}
	if cfg.Advisory.Burst == 0 {
		cfg.Advisory.Burst = 1
	}

	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 1024
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(time.Hour)
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "tribed"
	}
}

// repair clamps out-of-range matching values to the defaults. Operator
// mistakes in the file or environment degrade to a warning, not a
// failed start.
func (c *Config) repair(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.Matching.MinGroupSize < 2 {
		logger.Warn("repairing invalid min group size",
			zap.Int("min_group_size", c.Matching.MinGroupSize))
		c.Matching.MinGroupSize = 4
	}
	if c.Matching.MaxGroupSize < c.Matching.MinGroupSize {
		logger.Warn("repairing inverted group size bounds",
			zap.Int("min_group_size", c.Matching.MinGroupSize),
			zap.Int("max_group_size", c.Matching.MaxGroupSize))
		c.Matching.MinGroupSize = 4
		c.Matching.MaxGroupSize = 8
	}
	if c.Matching.MaxDistanceMiles <= 0 {
		logger.Warn("repairing invalid max distance",
			zap.Float64("max_distance_miles", c.Matching.MaxDistanceMiles))
		c.Matching.MaxDistanceMiles = 25
	}
	if c.Matching.CompatibilityThreshold <= 0 || c.Matching.CompatibilityThreshold > 1 {
		logger.Warn("repairing invalid compatibility threshold",
			zap.Float64("compatibility_threshold", c.Matching.CompatibilityThreshold))
		c.Matching.CompatibilityThreshold = 0.70
	}
	if c.Matching.MaxOptimizationRounds <= 0 {
		c.Matching.MaxOptimizationRounds = 5
	}
}

// Validate checks the settings that cannot be repaired in place.
//
// Returns an error if:
//   - The advisory client is enabled without an API key
//   - The advisory request rate is not positive
//   - Telemetry is enabled without a service name
func (c *Config) Validate() error {
	if c.Advisory.Enabled && !c.Advisory.APIKey.IsSet() {
		return errors.New("advisory api key required when advisory is enabled")
	}
	if c.Advisory.Enabled && c.Advisory.RequestsPerSecond <= 0 {
		return errors.New("advisory requests per second must be positive")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}
