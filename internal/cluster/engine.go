// Package cluster partitions a pool of unassigned users into candidate new
// tribes.
//
// The pipeline is proximity-first, then progressively more expensive local
// refinement: greedy geographic grouping, personality-threshold splitting
// and merging, bounded interest-cohesion hill climbing, bounded
// trait-balance hill climbing, and finally per-member scoring. Grouping is
// greedy and input-order dependent: equivalent pools presented in different
// orders can produce different groups. That ordering is the defined
// tie-break, not an accident, and is covered by tests.
//
// All refinement stays inside the proximity group a user landed in, so two
// users whose distance exceeds the configured bound can never end up in the
// same output group.
package cluster

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tribed/internal/compat"
	"github.com/fyrsmithlabs/tribed/internal/geo"
	"github.com/fyrsmithlabs/tribed/internal/profile"
)

const instrumentationName = "github.com/fyrsmithlabs/tribed/internal/cluster"

// Config holds clustering parameters. Invalid values are repaired to the
// documented defaults rather than rejected; operator mistakes here are
// recoverable.
type Config struct {
	// MinGroupSize and MaxGroupSize bound formed groups (defaults: 4, 8).
	MinGroupSize int
	MaxGroupSize int

	// MaxDistanceMiles is the proximity bound: a user joins a group only
	// when within this distance of every current member (default: 25).
	MaxDistanceMiles float64

	// CompatibilityThreshold gates personality-based grouping on a 0-1
	// scale, compared against pairwise scores divided by 100
	// (default: 0.70).
	CompatibilityThreshold float64

	// MaxOptimizationRounds caps each hill-climbing pass (default: 5).
	// The cap is a deliberate performance/quality tradeoff; the passes
	// have no convergence guarantee and may leave improvable swaps on
	// the table.
	MaxOptimizationRounds int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		MinGroupSize:           4,
		MaxGroupSize:           8,
		MaxDistanceMiles:       25,
		CompatibilityThreshold: 0.70,
		MaxOptimizationRounds:  5,
	}
}

// sanitized returns a copy with invalid values repaired to defaults.
func (c *Config) sanitized(logger *zap.Logger) Config {
	out := *c
	defaults := DefaultConfig()

	if out.MinGroupSize < 2 {
		logger.Warn("repairing invalid min group size",
			zap.Int("min_group_size", out.MinGroupSize),
			zap.Int("default", defaults.MinGroupSize))
		out.MinGroupSize = defaults.MinGroupSize
	}
	if out.MaxGroupSize < out.MinGroupSize {
		logger.Warn("repairing inverted group size bounds",
			zap.Int("min_group_size", out.MinGroupSize),
			zap.Int("max_group_size", out.MaxGroupSize))
		out.MinGroupSize = defaults.MinGroupSize
		out.MaxGroupSize = defaults.MaxGroupSize
	}
	if out.MaxDistanceMiles <= 0 {
		out.MaxDistanceMiles = defaults.MaxDistanceMiles
	}
	if out.CompatibilityThreshold <= 0 || out.CompatibilityThreshold > 1 {
		logger.Warn("repairing invalid compatibility threshold",
			zap.Float64("threshold", out.CompatibilityThreshold))
		out.CompatibilityThreshold = defaults.CompatibilityThreshold
	}
	if out.MaxOptimizationRounds <= 0 {
		out.MaxOptimizationRounds = defaults.MaxOptimizationRounds
	}
	return out
}

// ScoredMember is one member of a formed group with their average pairwise
// compatibility against the rest of the group.
type ScoredMember struct {
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
}

// Group is one candidate new tribe. Remainder marks a group whose size
// fell below the minimum and could not be merged anywhere; it is surfaced
// explicitly instead of being dropped.
type Group struct {
	Members   []ScoredMember `json:"members"`
	Remainder bool           `json:"remainder,omitempty"`
}

// Engine forms candidate tribes from unassigned users.
type Engine struct {
	config *Config
	compat *compat.Engine
	logger *zap.Logger

	tracer       trace.Tracer
	meter        metric.Meter
	runCounter   metric.Int64Counter
	groupCounter metric.Int64Counter
}

// NewEngine creates a clustering engine around a compatibility engine.
func NewEngine(cfg *Config, ce *compat.Engine, logger *zap.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		config: cfg,
		compat: ce,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	e.initMetrics()
	return e
}

func (e *Engine) initMetrics() {
	var err error

	e.runCounter, err = e.meter.Int64Counter(
		"tribed.cluster.runs_total",
		metric.WithDescription("Total number of clustering runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		e.logger.Warn("failed to create run counter", zap.Error(err))
	}

	e.groupCounter, err = e.meter.Int64Counter(
		"tribed.cluster.groups_formed_total",
		metric.WithDescription("Total number of groups formed"),
		metric.WithUnit("{group}"),
	)
	if err != nil {
		e.logger.Warn("failed to create group counter", zap.Error(err))
	}
}

// FormGroups partitions the pool into scored candidate groups. Every input
// user appears in exactly one output group; no one is dropped.
func (e *Engine) FormGroups(ctx context.Context, pool []*profile.Profile) []Group {
	ctx, span := e.tracer.Start(ctx, "cluster.form_groups")
	defer span.End()
	span.SetAttributes(attribute.Int("pool_size", len(pool)))

	if len(pool) == 0 {
		return nil
	}

	cfg := e.config.sanitized(e.logger)

	clusters := e.proximityGroups(pool, cfg)
	e.logger.Debug("proximity grouping complete",
		zap.Int("pool", len(pool)),
		zap.Int("clusters", len(clusters)))

	var final [][]*profile.Profile
	for _, cluster := range clusters {
		groups := e.refineByPersonality(cluster, cfg)
		groups = e.optimizeInterestCohesion(groups, cfg)
		groups = e.optimizeTraitBalance(groups, cfg)
		final = append(final, groups...)
	}

	out := e.scoreGroups(final, cfg)

	if e.runCounter != nil {
		e.runCounter.Add(ctx, 1)
	}
	if e.groupCounter != nil {
		e.groupCounter.Add(ctx, int64(len(out)))
	}
	span.SetAttributes(attribute.Int("groups", len(out)))
	return out
}

// proximityGroups greedily places each user into the first group where it
// is within the distance bound of every current member, otherwise starts a
// new singleton group. Order-sensitive by pool order.
func (e *Engine) proximityGroups(pool []*profile.Profile, cfg Config) [][]*profile.Profile {
	var groups [][]*profile.Profile

	for _, user := range pool {
		placed := false
		for gi, group := range groups {
			if withinDistanceOfAll(user, group, cfg.MaxDistanceMiles) {
				groups[gi] = append(group, user)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []*profile.Profile{user})
		}
	}
	return groups
}

func withinDistanceOfAll(user *profile.Profile, group []*profile.Profile, maxMiles float64) bool {
	for _, m := range group {
		if geo.DistanceMiles(user.Location, m.Location) > maxMiles {
			return false
		}
	}
	return true
}

// refineByPersonality splits oversized proximity groups by a greedy
// seed-and-grow process and merges undersized results where the threshold
// allows. Groups already within bounds pass through unchanged.
func (e *Engine) refineByPersonality(cluster []*profile.Profile, cfg Config) [][]*profile.Profile {
	if len(cluster) >= cfg.MinGroupSize && len(cluster) <= cfg.MaxGroupSize {
		return [][]*profile.Profile{cluster}
	}
	if len(cluster) < cfg.MinGroupSize {
		// Nothing to split; a later pass may still merge it.
		return [][]*profile.Profile{cluster}
	}

	minScore := cfg.CompatibilityThreshold * 100

	var subgroups [][]*profile.Profile
	remaining := append([]*profile.Profile{}, cluster...)

	for len(remaining) > 0 {
		seed := remaining[0]
		group := []*profile.Profile{seed}
		rest := remaining[1:]

		var leftover []*profile.Profile
		for _, cand := range rest {
			if len(group) < cfg.MaxGroupSize && e.compatibleWithAll(cand, group, minScore) {
				group = append(group, cand)
			} else {
				leftover = append(leftover, cand)
			}
		}

		subgroups = append(subgroups, group)
		remaining = leftover
	}

	return e.mergeUndersized(subgroups, cfg, minScore)
}

// compatibleWithAll reports whether cand scores at least minScore against
// every member of group.
func (e *Engine) compatibleWithAll(cand *profile.Profile, group []*profile.Profile, minScore float64) bool {
	for _, m := range group {
		if e.compat.PairScore(cand, m, nil).Overall < minScore {
			return false
		}
	}
	return true
}

// mergeUndersized folds undersized subgroups into sized ones where every
// cross-pair clears the threshold, then runs a second, size-only merge
// pass over the provisional undersized groups that are left.
func (e *Engine) mergeUndersized(subgroups [][]*profile.Profile, cfg Config, minScore float64) [][]*profile.Profile {
	var sized, provisional [][]*profile.Profile
	for _, g := range subgroups {
		if len(g) >= cfg.MinGroupSize {
			sized = append(sized, g)
		} else {
			provisional = append(provisional, g)
		}
	}

	var still [][]*profile.Profile
	for _, small := range provisional {
		merged := false
		for si, target := range sized {
			if len(target)+len(small) > cfg.MaxGroupSize {
				continue
			}
			if e.allCrossPairsCompatible(small, target, minScore) {
				sized[si] = append(target, small...)
				merged = true
				break
			}
		}
		if !merged {
			still = append(still, small)
		}
	}

	// Second pass: provisional groups merge with each other on size alone.
	// Their members already failed the threshold merges; leaving them
	// isolated would just multiply remainder groups.
	var remainders [][]*profile.Profile
	for _, small := range still {
		merged := false
		for ri, other := range remainders {
			if len(other)+len(small) <= cfg.MaxGroupSize {
				remainders[ri] = append(other, small...)
				merged = true
				break
			}
		}
		if !merged {
			remainders = append(remainders, small)
		}
	}

	return append(sized, remainders...)
}

func (e *Engine) allCrossPairsCompatible(a, b []*profile.Profile, minScore float64) bool {
	for _, x := range a {
		for _, y := range b {
			if e.compat.PairScore(x, y, nil).Overall < minScore {
				return false
			}
		}
	}
	return true
}

// optimizeInterestCohesion runs bounded rounds of pairwise member swaps
// between groups, accepting a swap only when it strictly increases the sum
// of the two groups' mean pairwise interest similarity. Both groups must
// hold at least the minimum size to participate.
func (e *Engine) optimizeInterestCohesion(groups [][]*profile.Profile, cfg Config) [][]*profile.Profile {
	objective := func(g []*profile.Profile) float64 {
		return meanPairwiseJaccard(g)
	}
	// Maximize cohesion.
	return e.hillClimb(groups, cfg, func(before, after float64) bool {
		return after > before
	}, objective)
}

// optimizeTraitBalance runs the same bounded swap structure with the
// objective of minimizing the sum of the two groups' trait spread.
func (e *Engine) optimizeTraitBalance(groups [][]*profile.Profile, cfg Config) [][]*profile.Profile {
	objective := func(g []*profile.Profile) float64 {
		lists := make([][]profile.PersonalityTrait, len(g))
		for i, p := range g {
			lists[i] = p.Traits
		}
		return compat.TraitSpread(lists)
	}
	// Minimize spread.
	return e.hillClimb(groups, cfg, func(before, after float64) bool {
		return after < before
	}, objective)
}

// hillClimb evaluates member swaps between every pair of eligible groups
// for up to MaxOptimizationRounds rounds, committing each swap that the
// accept function approves. Sequential by design: every swap decision
// depends on the current group state.
func (e *Engine) hillClimb(groups [][]*profile.Profile, cfg Config, accept func(before, after float64) bool, objective func([]*profile.Profile) float64) [][]*profile.Profile {
	for round := 0; round < cfg.MaxOptimizationRounds; round++ {
		improved := false

		for gi := 0; gi < len(groups); gi++ {
			for gj := gi + 1; gj < len(groups); gj++ {
				if len(groups[gi]) < cfg.MinGroupSize || len(groups[gj]) < cfg.MinGroupSize {
					continue
				}

				if e.trySwap(groups, gi, gj, accept, objective) {
					improved = true
				}
			}
		}

		if !improved {
			break
		}
	}
	return groups
}

// trySwap evaluates all member exchanges between groups gi and gj and
// commits the first accepted one.
func (e *Engine) trySwap(groups [][]*profile.Profile, gi, gj int, accept func(before, after float64) bool, objective func([]*profile.Profile) float64) bool {
	a, b := groups[gi], groups[gj]
	before := objective(a) + objective(b)

	for ai := range a {
		for bi := range b {
			swappedA := swapOut(a, ai, b[bi])
			swappedB := swapOut(b, bi, a[ai])

			after := objective(swappedA) + objective(swappedB)
			if accept(before, after) {
				groups[gi] = swappedA
				groups[gj] = swappedB
				return true
			}
		}
	}
	return false
}

// swapOut returns a copy of group with the member at index i replaced.
func swapOut(group []*profile.Profile, i int, replacement *profile.Profile) []*profile.Profile {
	out := make([]*profile.Profile, len(group))
	copy(out, group)
	out[i] = replacement
	return out
}

// meanPairwiseJaccard is the average interest similarity over all member
// pairs of a group. Groups with fewer than two members score zero.
func meanPairwiseJaccard(group []*profile.Profile) float64 {
	if len(group) < 2 {
		return 0
	}

	keys := make([][]string, len(group))
	for i, p := range group {
		keys[i] = p.InterestKeys()
	}

	sum := 0.0
	pairs := 0
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			sum += geo.Jaccard(keys[i], keys[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// scoreGroups computes each member's average pairwise compatibility with
// the rest of their group and flags undersized remainders.
func (e *Engine) scoreGroups(groups [][]*profile.Profile, cfg Config) []Group {
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		group := Group{Remainder: len(g) < cfg.MinGroupSize}
		for i, member := range g {
			sum := 0.0
			for j, other := range g {
				if i == j {
					continue
				}
				sum += e.compat.PairScore(member, other, nil).Overall
			}
			score := 0.0
			if len(g) > 1 {
				score = sum / float64(len(g)-1)
			}
			group.Members = append(group.Members, ScoredMember{UserID: member.ID, Score: score})
		}
		out = append(out, group)
	}
	return out
}
