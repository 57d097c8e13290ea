// Package formation orchestrates tribe matching: ranking candidate users
// and tribes for a given user, and running full formation passes that
// assign users to existing tribes with spare capacity before clustering
// the leftovers into candidate new tribes.
package formation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tribed/internal/advisory"
	"github.com/fyrsmithlabs/tribed/internal/cluster"
	"github.com/fyrsmithlabs/tribed/internal/compat"
	"github.com/fyrsmithlabs/tribed/internal/matchcache"
)

const instrumentationName = "github.com/fyrsmithlabs/tribed/internal/formation"

// Config holds the service defaults applied when per-call Options leave a
// field zero.
type Config struct {
	// MinGroupSize and MaxGroupSize bound newly formed tribes.
	MinGroupSize int `koanf:"min_group_size"`
	MaxGroupSize int `koanf:"max_group_size"`

	// MaxDistanceMiles bounds proximity clustering and default travel
	// distance.
	MaxDistanceMiles float64 `koanf:"max_distance_miles"`

	// CompatibilityThreshold gates existing-tribe assignment (0-1 scale).
	CompatibilityThreshold float64 `koanf:"compatibility_threshold"`

	// MaxOptimizationRounds caps the post-assignment swap pass.
	MaxOptimizationRounds int `koanf:"max_optimization_rounds"`

	// AdvisoryEnabled requests adjustment suggestions after formation
	// runs when an advisory client is wired.
	AdvisoryEnabled bool `koanf:"advisory_enabled"`

	// AdvisoryTimeout bounds the post-run suggestion call.
	AdvisoryTimeout time.Duration `koanf:"advisory_timeout"`

	// CacheEnabled toggles the ranked-result cache.
	CacheEnabled bool `koanf:"cache_enabled"`

	// CacheSize and CacheTTL size the ranked-result cache.
	CacheSize int           `koanf:"cache_size"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		MinGroupSize:           4,
		MaxGroupSize:           8,
		MaxDistanceMiles:       25,
		CompatibilityThreshold: 0.70,
		MaxOptimizationRounds:  5,
		AdvisoryEnabled:        true,
		AdvisoryTimeout:        10 * time.Second,
		CacheEnabled:           true,
		CacheSize:              1024,
		CacheTTL:               time.Hour,
	}
}

// Service is the matching orchestrator.
type Service interface {
	// ScoreUsers ranks candidate users against a reference user.
	ScoreUsers(ctx context.Context, userID string, candidateIDs []string, opts Options) (*UserScores, error)

	// ScoreTribes ranks candidate tribes for a user. Empty candidateIDs
	// means every tribe with spare capacity.
	ScoreTribes(ctx context.Context, userID string, candidateIDs []string, opts Options) (*TribeScores, error)

	// FormTribes assigns the given users to existing tribes where a
	// compatible one has capacity and clusters the rest into candidate
	// new tribes.
	FormTribes(ctx context.Context, userIDs []string, opts Options) (*FormationResult, error)

	// Stats reports run and cache counters.
	Stats() Stats
}

// Stats is a point-in-time snapshot of service counters.
type Stats struct {
	Runs             int64            `json:"runs"`
	AdvisoryFailures int64            `json:"advisory_failures"`
	UserCache        matchcache.Stats `json:"user_cache"`
	TribeCache       matchcache.Stats `json:"tribe_cache"`
}

type service struct {
	config   *Config
	profiles ProfileStore
	tribes   TribeStore
	compat   *compat.Engine
	advisory advisory.Client
	logger   *zap.Logger

	userCache  *matchcache.Cache[*UserScores]
	tribeCache *matchcache.Cache[*TribeScores]
	runs       atomic.Int64
	advFails   atomic.Int64

	tracer      trace.Tracer
	meter       metric.Meter
	runCounter  metric.Int64Counter
	assignCount metric.Int64Counter
}

// NewService creates the matching orchestrator. The compatibility engine
// and both stores are required; the advisory client may be nil, which
// disables adjustment suggestions.
func NewService(cfg *Config, profiles ProfileStore, tribes TribeStore, ce *compat.Engine, adv advisory.Client, logger *zap.Logger) (Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if profiles == nil {
		return nil, fmt.Errorf("formation: profile store is required")
	}
	if tribes == nil {
		return nil, fmt.Errorf("formation: tribe store is required")
	}
	if ce == nil {
		return nil, fmt.Errorf("formation: compatibility engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		config:   cfg,
		profiles: profiles,
		tribes:   tribes,
		compat:   ce,
		advisory: adv,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	if cfg.CacheEnabled {
		s.userCache = matchcache.New[*UserScores](cfg.CacheSize, cfg.CacheTTL)
		s.tribeCache = matchcache.New[*TribeScores](cfg.CacheSize, cfg.CacheTTL)
	}
	s.initMetrics()
	return s, nil
}

func (s *service) initMetrics() {
	var err error
	s.runCounter, err = s.meter.Int64Counter("tribed.formation.runs_total",
		metric.WithDescription("Total tribe formation runs"))
	if err != nil {
		s.logger.Warn("failed to create run counter", zap.Error(err))
	}
	s.assignCount, err = s.meter.Int64Counter("tribed.formation.assignments_total",
		metric.WithDescription("Total users placed into existing tribes"))
	if err != nil {
		s.logger.Warn("failed to create assignment counter", zap.Error(err))
	}
}

// Stats reports the current run and cache counters.
func (s *service) Stats() Stats {
	st := Stats{Runs: s.runs.Load(), AdvisoryFailures: s.advFails.Load()}
	if s.userCache != nil {
		st.UserCache = s.userCache.Stats()
	}
	if s.tribeCache != nil {
		st.TribeCache = s.tribeCache.Stats()
	}
	return st
}

// resolve fills zero Option fields from the service defaults and repairs
// out-of-range values the same way the clustering engine does.
func (s *service) resolve(opts Options) Options {
	if opts.MinGroupSize == 0 {
		opts.MinGroupSize = s.config.MinGroupSize
	}
	if opts.MaxGroupSize == 0 {
		opts.MaxGroupSize = s.config.MaxGroupSize
	}
	if opts.MaxDistanceMiles == 0 {
		opts.MaxDistanceMiles = s.config.MaxDistanceMiles
	}
	if opts.CompatibilityThreshold == 0 {
		opts.CompatibilityThreshold = s.config.CompatibilityThreshold
	}

	defaults := DefaultConfig()
	if opts.MinGroupSize < 2 {
		s.logger.Warn("repairing invalid min group size",
			zap.Int("min_group_size", opts.MinGroupSize),
			zap.Int("default", defaults.MinGroupSize))
		opts.MinGroupSize = defaults.MinGroupSize
	}
	if opts.MaxGroupSize < opts.MinGroupSize {
		s.logger.Warn("repairing inverted group size bounds",
			zap.Int("min_group_size", opts.MinGroupSize),
			zap.Int("max_group_size", opts.MaxGroupSize))
		opts.MinGroupSize = defaults.MinGroupSize
		opts.MaxGroupSize = defaults.MaxGroupSize
	}
	if opts.MaxDistanceMiles <= 0 {
		opts.MaxDistanceMiles = defaults.MaxDistanceMiles
	}
	if opts.CompatibilityThreshold < 0 || opts.CompatibilityThreshold > 1 {
		s.logger.Warn("repairing invalid compatibility threshold",
			zap.Float64("threshold", opts.CompatibilityThreshold))
		opts.CompatibilityThreshold = defaults.CompatibilityThreshold
	}
	return opts
}

func (s *service) clusterConfig(opts Options) *cluster.Config {
	return &cluster.Config{
		MinGroupSize:           opts.MinGroupSize,
		MaxGroupSize:           opts.MaxGroupSize,
		MaxDistanceMiles:       opts.MaxDistanceMiles,
		CompatibilityThreshold: opts.CompatibilityThreshold,
		MaxOptimizationRounds:  s.config.MaxOptimizationRounds,
	}
}
