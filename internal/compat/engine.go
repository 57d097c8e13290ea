// Package compat scores compatibility between users and between a user and
// a tribe across five weighted factors: personality, interests,
// communication style, location and group balance.
//
// All scoring is pure given its inputs; the only external collaborator is
// an optional advisory scorer whose result is blended in best-effort and
// whose failure never affects the outcome.
package compat

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/tribed/internal/profile"
)

const instrumentationName = "github.com/fyrsmithlabs/tribed/internal/compat"

// AdvisoryScorer provides a best-effort second-opinion score for a pair of
// profiles on the 0-100 scale. Implementations are expected to be slow and
// unreliable; the engine treats every failure as a soft miss.
type AdvisoryScorer interface {
	ScorePair(ctx context.Context, a, b *profile.Profile) (float64, error)
}

// Config holds engine tuning knobs.
type Config struct {
	// DefaultMaxDistanceMiles applies when a profile carries no travel
	// preference (default: 25).
	DefaultMaxDistanceMiles float64

	// AlgorithmWeight and AdvisoryWeight control the blend of the
	// algorithmic score with a successful advisory score. Preserved at
	// 0.7/0.3 for behavioral parity; tunable, not derived.
	AlgorithmWeight float64
	AdvisoryWeight  float64

	// AdvisoryTimeout bounds each advisory call so a stalled collaborator
	// cannot block a scoring run (default: 2s).
	AdvisoryTimeout time.Duration

	// FanOutLimit bounds concurrent candidate scoring (default: 8).
	FanOutLimit int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultMaxDistanceMiles: 25,
		AlgorithmWeight:         0.7,
		AdvisoryWeight:          0.3,
		AdvisoryTimeout:         2 * time.Second,
		FanOutLimit:             8,
	}
}

// Engine computes compatibility scores. Safe for concurrent use; it holds
// no mutable state beyond injected collaborators.
type Engine struct {
	config   *Config
	advisory AdvisoryScorer
	logger   *zap.Logger

	tracer           trace.Tracer
	meter            metric.Meter
	pairCounter      metric.Int64Counter
	tribeCounter     metric.Int64Counter
	advisoryFailures metric.Int64Counter
}

// NewEngine creates a compatibility engine. The advisory scorer may be nil,
// in which case every score is purely algorithmic. Zero config fields fall
// back to the defaults.
func NewEngine(cfg *Config, advisory AdvisoryScorer, logger *zap.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	// Repair a copy so the caller's config is never mutated.
	conf := *cfg
	cfg = &conf
	defaults := DefaultConfig()
	if cfg.DefaultMaxDistanceMiles <= 0 {
		cfg.DefaultMaxDistanceMiles = defaults.DefaultMaxDistanceMiles
	}
	if cfg.AlgorithmWeight <= 0 && cfg.AdvisoryWeight <= 0 {
		cfg.AlgorithmWeight = defaults.AlgorithmWeight
		cfg.AdvisoryWeight = defaults.AdvisoryWeight
	}
	if cfg.AdvisoryTimeout <= 0 {
		cfg.AdvisoryTimeout = defaults.AdvisoryTimeout
	}
	if cfg.FanOutLimit <= 0 {
		cfg.FanOutLimit = defaults.FanOutLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		config:   cfg,
		advisory: advisory,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	e.initMetrics()
	return e
}

func (e *Engine) initMetrics() {
	var err error

	e.pairCounter, err = e.meter.Int64Counter(
		"tribed.compat.pair_scores_total",
		metric.WithDescription("Total number of user-user compatibility computations"),
		metric.WithUnit("{score}"),
	)
	if err != nil {
		e.logger.Warn("failed to create pair score counter", zap.Error(err))
	}

	e.tribeCounter, err = e.meter.Int64Counter(
		"tribed.compat.tribe_scores_total",
		metric.WithDescription("Total number of user-tribe compatibility computations"),
		metric.WithUnit("{score}"),
	)
	if err != nil {
		e.logger.Warn("failed to create tribe score counter", zap.Error(err))
	}

	e.advisoryFailures, err = e.meter.Int64Counter(
		"tribed.compat.advisory_failures_total",
		metric.WithDescription("Total number of advisory scoring failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		e.logger.Warn("failed to create advisory failure counter", zap.Error(err))
	}
}

// FactorScore is one factor's contribution to a combined score.
type FactorScore struct {
	Factor Factor  `json:"factor"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// PairResult is the outcome of a user-user compatibility computation.
type PairResult struct {
	Overall       float64             `json:"overall"`
	Factors       []FactorScore       `json:"factors"`
	Personality   PersonalityResult   `json:"personality"`
	Interests     InterestResult      `json:"interests"`
	Communication CommunicationResult `json:"communication"`
	Location      LocationResult      `json:"location"`

	// AdvisoryScore holds the advisory second opinion when one was
	// obtained; nil means the score is purely algorithmic.
	AdvisoryScore *float64 `json:"advisory_score,omitempty"`
}

// UserCompatibility scores two users across the four pair factors under
// normalized weights, then blends in an advisory opinion when one can be
// obtained in time. Advisory failure or latency never fails the call.
func (e *Engine) UserCompatibility(ctx context.Context, a, b *profile.Profile, weights Weights) PairResult {
	ctx, span := e.tracer.Start(ctx, "compat.user")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_a", a.ID),
		attribute.String("user_b", b.ID),
	)

	res := e.pairScore(a, b, weights)

	if e.advisory != nil {
		advCtx, cancel := context.WithTimeout(ctx, e.config.AdvisoryTimeout)
		score, err := e.advisory.ScorePair(advCtx, a, b)
		cancel()
		if err != nil {
			if e.advisoryFailures != nil {
				e.advisoryFailures.Add(ctx, 1)
			}
			e.logger.Debug("advisory scoring failed, using algorithmic score",
				zap.String("user_a", a.ID),
				zap.String("user_b", b.ID),
				zap.Error(err))
		} else {
			blended := e.config.AlgorithmWeight*res.Overall + e.config.AdvisoryWeight*clamp(score)
			res.Overall = clamp(blended)
			adv := clamp(score)
			res.AdvisoryScore = &adv
		}
	}

	if e.pairCounter != nil {
		e.pairCounter.Add(ctx, 1)
	}
	span.SetAttributes(attribute.Float64("score", res.Overall))
	return res
}

// PairScore computes the purely algorithmic user-user score, skipping the
// advisory blend. The clustering engine calls this in tight loops where
// advisory latency would be prohibitive.
func (e *Engine) PairScore(a, b *profile.Profile, weights Weights) PairResult {
	return e.pairScore(a, b, weights)
}

// pairScore computes the purely algorithmic user-user score.
func (e *Engine) pairScore(a, b *profile.Profile, weights Weights) PairResult {
	w := weights.NormalizedOver(PairFactors)

	res := PairResult{
		Personality:   PersonalityCompatibility(a.Traits, b.Traits),
		Interests:     InterestCompatibility(a.Interests, b.Interests),
		Communication: CommunicationCompatibility(a.Communication, b.Communication),
		Location:      LocationCompatibility(a.Location, b.Location, e.pairMaxDistance(a, b)),
	}

	byFactor := map[Factor]float64{
		FactorPersonality:   res.Personality.Overall,
		FactorInterests:     res.Interests.Overall,
		FactorCommunication: res.Communication.Overall,
		FactorLocation:      res.Location.Overall,
	}

	overall := 0.0
	for _, f := range PairFactors {
		overall += byFactor[f] * w[f]
		res.Factors = append(res.Factors, FactorScore{Factor: f, Score: byFactor[f], Weight: w[f]})
	}
	res.Overall = clamp(overall)
	return res
}

// pairMaxDistance resolves the travel bound for a pair: the tighter of the
// two stated preferences, defaulting when neither user states one.
func (e *Engine) pairMaxDistance(a, b *profile.Profile) float64 {
	max := 0.0
	for _, d := range []float64{a.MaxTravelDistance, b.MaxTravelDistance} {
		if d > 0 && (max == 0 || d < max) {
			max = d
		}
	}
	if max == 0 {
		max = e.config.DefaultMaxDistanceMiles
	}
	return max
}

// MemberScore is a per-member pairwise score within a tribe computation.
type MemberScore struct {
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
}

// TribeResult is the outcome of a user-tribe compatibility computation.
type TribeResult struct {
	Overall      float64       `json:"overall"`
	Factors      []FactorScore `json:"factors"`
	MemberScores []MemberScore `json:"member_scores,omitempty"`
	Balance      BalanceResult `json:"balance"`
}

// TribeCompatibility scores a user against a tribe. Personality and
// communication are averaged over pairwise scores against every current
// member; interests are scored against the union of member and declared
// tribe interests; location against the tribe's home coordinate; balance
// via GroupBalanceImpact. All five factors combine under normalized
// weights.
func (e *Engine) TribeCompatibility(ctx context.Context, user *profile.Profile, tribe *profile.Tribe, members []*profile.Profile, weights Weights) TribeResult {
	ctx, span := e.tracer.Start(ctx, "compat.tribe")
	defer span.End()
	span.SetAttributes(
		attribute.String("user", user.ID),
		attribute.String("tribe", tribe.ID),
		attribute.Int("members", len(members)),
	)

	w := weights.NormalizedOver(AllFactors)

	var res TribeResult

	personalitySum, communicationSum := 0.0, 0.0
	memberTraits := make([][]profile.PersonalityTrait, 0, len(members))
	unionInterests := make([]profile.Interest, 0, len(tribe.Interests))
	seenInterest := make(map[string]bool)
	for _, i := range tribe.Interests {
		if !seenInterest[i.Key()] {
			unionInterests = append(unionInterests, i)
			seenInterest[i.Key()] = true
		}
	}

	for _, m := range members {
		p := PersonalityCompatibility(user.Traits, m.Traits)
		c := CommunicationCompatibility(user.Communication, m.Communication)
		personalitySum += p.Overall
		communicationSum += c.Overall
		memberTraits = append(memberTraits, m.Traits)

		for _, i := range m.Interests {
			if !seenInterest[i.Key()] {
				unionInterests = append(unionInterests, i)
				seenInterest[i.Key()] = true
			}
		}

		pairScore := e.pairScore(user, m, weights)
		res.MemberScores = append(res.MemberScores, MemberScore{UserID: m.ID, Score: pairScore.Overall})
	}

	personality, communication := 0.0, 0.0
	if len(members) > 0 {
		personality = personalitySum / float64(len(members))
		communication = communicationSum / float64(len(members))
	}

	interests := InterestCompatibility(user.Interests, unionInterests)

	maxDistance := user.MaxTravelDistance
	if maxDistance <= 0 {
		maxDistance = e.config.DefaultMaxDistanceMiles
	}
	location := LocationCompatibility(user.Location, tribe.Location, maxDistance)

	res.Balance = GroupBalanceImpact(user.Traits, memberTraits)

	byFactor := map[Factor]float64{
		FactorPersonality:   personality,
		FactorInterests:     interests.Overall,
		FactorCommunication: communication,
		FactorLocation:      location.Overall,
		FactorBalance:       balanceScore(res.Balance.Impact),
	}

	overall := 0.0
	for _, f := range AllFactors {
		overall += byFactor[f] * w[f]
		res.Factors = append(res.Factors, FactorScore{Factor: f, Score: byFactor[f], Weight: w[f]})
	}
	res.Overall = clamp(overall)

	if e.tribeCounter != nil {
		e.tribeCounter.Add(ctx, 1)
	}
	span.SetAttributes(attribute.Float64("score", res.Overall))
	return res
}

// RankOptions controls ranked candidate scoring.
type RankOptions struct {
	// MinScore filters out candidates scoring below it (0-100 scale).
	MinScore float64

	// Limit truncates the ranked list; zero means no limit.
	Limit int

	// Weights override the default factor weights.
	Weights Weights
}

// RankedUser is one entry of a ranked candidate-user list.
type RankedUser struct {
	UserID string      `json:"user_id"`
	Score  float64     `json:"score"`
	Detail *PairResult `json:"detail,omitempty"`
}

// MostCompatibleUsers scores ref against every candidate, filters by
// minimum score, sorts descending and truncates. Candidates are scored
// concurrently; ties keep pool input order (stable sort).
func (e *Engine) MostCompatibleUsers(ctx context.Context, ref *profile.Profile, candidates []*profile.Profile, opts RankOptions) []RankedUser {
	ctx, span := e.tracer.Start(ctx, "compat.rank_users")
	defer span.End()
	span.SetAttributes(
		attribute.String("user", ref.ID),
		attribute.Int("candidates", len(candidates)),
	)

	results := make([]PairResult, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.FanOutLimit)
	for i, cand := range candidates {
		g.Go(func() error {
			results[i] = e.UserCompatibility(gctx, ref, cand, opts.Weights)
			return nil
		})
	}
	// Workers never return errors; scoring degrades instead of failing.
	_ = g.Wait()

	ranked := make([]RankedUser, 0, len(candidates))
	for i, cand := range candidates {
		if results[i].Overall < opts.MinScore {
			continue
		}
		detail := results[i]
		ranked = append(ranked, RankedUser{UserID: cand.ID, Score: detail.Overall, Detail: &detail})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if opts.Limit > 0 && len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	return ranked
}

// TribeCandidate pairs a tribe with its current member profiles for ranked
// scoring.
type TribeCandidate struct {
	Tribe   *profile.Tribe
	Members []*profile.Profile
}

// RankedTribe is one entry of a ranked candidate-tribe list.
type RankedTribe struct {
	TribeID string       `json:"tribe_id"`
	Score   float64      `json:"score"`
	Detail  *TribeResult `json:"detail,omitempty"`
}

// MostCompatibleTribes scores a user against every candidate tribe,
// filters by minimum score, sorts descending and truncates. Ties keep pool
// input order.
func (e *Engine) MostCompatibleTribes(ctx context.Context, user *profile.Profile, candidates []TribeCandidate, opts RankOptions) []RankedTribe {
	ctx, span := e.tracer.Start(ctx, "compat.rank_tribes")
	defer span.End()
	span.SetAttributes(
		attribute.String("user", user.ID),
		attribute.Int("candidates", len(candidates)),
	)

	results := make([]TribeResult, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.FanOutLimit)
	for i, cand := range candidates {
		g.Go(func() error {
			results[i] = e.TribeCompatibility(gctx, user, cand.Tribe, cand.Members, opts.Weights)
			return nil
		})
	}
	_ = g.Wait()

	ranked := make([]RankedTribe, 0, len(candidates))
	for i, cand := range candidates {
		if results[i].Overall < opts.MinScore {
			continue
		}
		detail := results[i]
		ranked = append(ranked, RankedTribe{TribeID: cand.Tribe.ID, Score: detail.Overall, Detail: &detail})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if opts.Limit > 0 && len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	return ranked
}
