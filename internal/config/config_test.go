package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, 4, cfg.Matching.MinGroupSize)
	assert.Equal(t, 8, cfg.Matching.MaxGroupSize)
	assert.InDelta(t, 25, cfg.Matching.MaxDistanceMiles, 1e-9)
	assert.InDelta(t, 0.70, cfg.Matching.CompatibilityThreshold, 1e-9)
	assert.Equal(t, 5, cfg.Matching.MaxOptimizationRounds)

	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Advisory.BaseURL)
	assert.Equal(t, "openai/gpt-4", cfg.Advisory.Model)
	assert.Equal(t, 30*time.Second, cfg.Advisory.Timeout.Duration())

	assert.Equal(t, 1024, cfg.Cache.Size)
	assert.Equal(t, time.Hour, cfg.Cache.TTL.Duration())
	assert.Equal(t, "tribed", cfg.Observability.ServiceName)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "advisory enabled without key",
			mutate:  func(c *Config) { c.Advisory.Enabled = true },
			wantErr: "api key",
		},
		{
			name: "advisory enabled with key",
			mutate: func(c *Config) {
				c.Advisory.Enabled = true
				c.Advisory.APIKey = Secret("sk-test")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRepairClampsMatchingValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		check  func(*testing.T, *Config)
	}{
		{
			name:   "min group size too small",
			mutate: func(c *Config) { c.Matching.MinGroupSize = 1 },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 4, c.Matching.MinGroupSize)
			},
		},
		{
			name:   "inverted size bounds",
			mutate: func(c *Config) { c.Matching.MinGroupSize = 10; c.Matching.MaxGroupSize = 8 },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 4, c.Matching.MinGroupSize)
				assert.Equal(t, 8, c.Matching.MaxGroupSize)
			},
		},
		{
			name:   "threshold above one",
			mutate: func(c *Config) { c.Matching.CompatibilityThreshold = 1.5 },
			check: func(t *testing.T, c *Config) {
				assert.InDelta(t, 0.70, c.Matching.CompatibilityThreshold, 1e-9)
			},
		},
		{
			name:   "negative distance",
			mutate: func(c *Config) { c.Matching.MaxDistanceMiles = -1 },
			check: func(t *testing.T, c *Config) {
				assert.InDelta(t, 25, c.Matching.MaxDistanceMiles, 1e-9)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			cfg.repair(nil)
			tt.check(t, cfg)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("sk-very-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-very-secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-very-secret")

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestSecretUnmarshal(t *testing.T) {
	var s Secret
	require.NoError(t, json.Unmarshal([]byte(`"raw-key"`), &s))
	assert.Equal(t, "raw-key", s.Value())
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("nonsense")))

	out, err := Duration(2 * time.Minute).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2m0s", string(out))
}
