package compat

import (
	"math"

	"github.com/fyrsmithlabs/tribed/internal/geo"
	"github.com/fyrsmithlabs/tribed/internal/profile"
)

// Per-trait base compatibility constants. Similarity-rewarding traits are
// scaled by these before contributing to the personality score; extraversion
// is scored on complementarity instead and takes no base constant.
var traitBaseCompatibility = map[profile.TraitName]float64{
	profile.TraitOpenness:          0.95,
	profile.TraitConscientiousness: 0.95,
	profile.TraitAgreeableness:     0.95,
	profile.TraitNeuroticism:       0.92,
}

const (
	// complementaryTraitScore tags per-trait scores at or above this value.
	complementaryTraitScore = 70.0

	// conflictingTraitScore tags per-trait scores at or below this value.
	conflictingTraitScore = 40.0

	// primaryInterestBonus is added when a shared interest is primary on
	// both sides.
	primaryInterestBonus = 20.0
)

// PersonalityResult is the detailed outcome of personality scoring.
type PersonalityResult struct {
	PerTrait      map[profile.TraitName]float64 `json:"per_trait"`
	Overall       float64                       `json:"overall"`
	Complementary []profile.TraitName           `json:"complementary,omitempty"`
	Conflicting   []profile.TraitName           `json:"conflicting,omitempty"`
}

// PersonalityCompatibility scores two trait sets on 0-100.
//
// Extraversion rewards difference (a reserved and an outgoing member pair
// well); every other trait rewards similarity scaled by its base constant.
// Traits missing from either side are ignored; each present trait
// contributes equally to the overall score.
func PersonalityCompatibility(a, b []profile.PersonalityTrait) PersonalityResult {
	res := PersonalityResult{PerTrait: make(map[profile.TraitName]float64)}

	scoresB := make(map[profile.TraitName]float64, len(b))
	for _, t := range b {
		scoresB[t.Name] = t.Score
	}

	sum := 0.0
	count := 0
	for _, t := range a {
		rawB, ok := scoresB[t.Name]
		if !ok {
			continue
		}

		na := t.Score / 100
		nb := rawB / 100

		var s float64
		if t.Name == profile.TraitExtraversion {
			s = 1 - math.Abs(na-(1-nb))/2
		} else {
			s = (1 - math.Abs(na-nb)) * traitBaseCompatibility[t.Name]
		}

		score := clamp(s * 100)
		res.PerTrait[t.Name] = score
		sum += score
		count++

		switch {
		case score >= complementaryTraitScore:
			res.Complementary = append(res.Complementary, t.Name)
		case score <= conflictingTraitScore:
			res.Conflicting = append(res.Conflicting, t.Name)
		}
	}

	if count > 0 {
		res.Overall = clamp(sum / float64(count))
	}
	return res
}

// InterestResult is the detailed outcome of interest scoring.
type InterestResult struct {
	Shared       []string `json:"shared,omitempty"`
	Overall      float64  `json:"overall"`
	PrimaryMatch bool     `json:"primary_match"`
}

// InterestCompatibility scores two interest lists on 0-100: Jaccard
// similarity over (category,name) keys scaled to 0-100, plus a flat bonus
// (capped at 100) when at least one shared interest is primary on both
// sides.
func InterestCompatibility(a, b []profile.Interest) InterestResult {
	keysA := make([]string, 0, len(a))
	primaryA := make(map[string]bool, len(a))
	for _, i := range a {
		keysA = append(keysA, i.Key())
		if i.IsPrimary() {
			primaryA[i.Key()] = true
		}
	}

	keysB := make([]string, 0, len(b))
	inB := make(map[string]bool, len(b))
	primaryB := make(map[string]bool, len(b))
	for _, i := range b {
		keysB = append(keysB, i.Key())
		inB[i.Key()] = true
		if i.IsPrimary() {
			primaryB[i.Key()] = true
		}
	}

	res := InterestResult{}
	seen := make(map[string]bool, len(keysA))
	for _, k := range keysA {
		if inB[k] && !seen[k] {
			res.Shared = append(res.Shared, k)
			seen[k] = true
			if primaryA[k] && primaryB[k] {
				res.PrimaryMatch = true
			}
		}
	}

	res.Overall = geo.Jaccard(keysA, keysB) * 100
	if res.PrimaryMatch {
		res.Overall += primaryInterestBonus
	}
	res.Overall = clamp(res.Overall)
	return res
}

// Symmetric style-by-style base compatibility. The diagonal is the highest
// entry for every row, so identical styles always beat any mixed pair.
var styleMatrix = map[profile.CommunicationStyle]map[profile.CommunicationStyle]float64{
	profile.StyleDirect: {
		profile.StyleDirect:     0.90,
		profile.StyleAnalytical: 0.75,
		profile.StyleIntuitive:  0.55,
		profile.StyleFunctional: 0.65,
	},
	profile.StyleAnalytical: {
		profile.StyleDirect:     0.75,
		profile.StyleAnalytical: 0.90,
		profile.StyleIntuitive:  0.50,
		profile.StyleFunctional: 0.70,
	},
	profile.StyleIntuitive: {
		profile.StyleDirect:     0.55,
		profile.StyleAnalytical: 0.50,
		profile.StyleIntuitive:  0.90,
		profile.StyleFunctional: 0.60,
	},
	profile.StyleFunctional: {
		profile.StyleDirect:     0.65,
		profile.StyleAnalytical: 0.70,
		profile.StyleIntuitive:  0.60,
		profile.StyleFunctional: 0.90,
	},
}

// Non-identical pairs whose differences cover for each other even when the
// matrix score is only moderate.
var complementaryStyles = map[profile.CommunicationStyle]profile.CommunicationStyle{
	profile.StyleDirect:     profile.StyleAnalytical,
	profile.StyleAnalytical: profile.StyleDirect,
	profile.StyleIntuitive:  profile.StyleFunctional,
	profile.StyleFunctional: profile.StyleIntuitive,
}

// CommunicationResult is the detailed outcome of communication scoring.
type CommunicationResult struct {
	Match         bool    `json:"match"`
	Overall       float64 `json:"overall"`
	Complementary bool    `json:"complementary"`
}

// CommunicationCompatibility scores two communication styles on 0-100 from
// the fixed style matrix. Unknown styles score as a neutral middle value.
func CommunicationCompatibility(a, b profile.CommunicationStyle) CommunicationResult {
	res := CommunicationResult{Match: a == b}

	base := 0.5
	if row, ok := styleMatrix[a]; ok {
		if v, ok := row[b]; ok {
			base = v
		}
	}
	res.Overall = clamp(base * 100)

	if !res.Match && complementaryStyles[a] == b {
		res.Complementary = true
	}
	return res
}

// LocationResult is the detailed outcome of location scoring.
type LocationResult struct {
	DistanceMiles float64 `json:"distance_miles"`
	WithinRange   bool    `json:"within_range"`
	Overall       float64 `json:"overall"`
}

// LocationCompatibility scores two coordinates on 0-100, decaying linearly
// from 100 at distance zero to 0 at maxDistanceMiles.
func LocationCompatibility(a, b geo.Point, maxDistanceMiles float64) LocationResult {
	d := geo.DistanceMiles(a, b)
	res := LocationResult{DistanceMiles: d}

	if maxDistanceMiles <= 0 {
		res.WithinRange = d == 0
		if d == 0 {
			res.Overall = 100
		}
		return res
	}

	res.WithinRange = d <= maxDistanceMiles
	res.Overall = clamp(100 * (1 - d/maxDistanceMiles))
	return res
}

// BalanceResult is the detailed outcome of group-balance scoring.
type BalanceResult struct {
	CurrentBalance   float64 `json:"current_balance"`
	ProjectedBalance float64 `json:"projected_balance"`
	Impact           float64 `json:"impact"`
	Improves         bool    `json:"improves"`
}

// balanceScale converts a standard-deviation delta into score points.
// Tunable, preserved from the reference behavior rather than derived.
const balanceScale = 50.0

// GroupBalanceImpact measures how a candidate shifts a group's personality
// spread. Balance is the standard deviation across the five trait means of
// the group; a candidate who pulls that spread toward uniformity improves
// balance.
func GroupBalanceImpact(candidate []profile.PersonalityTrait, members [][]profile.PersonalityTrait) BalanceResult {
	current := TraitSpread(members)
	projected := TraitSpread(append(append([][]profile.PersonalityTrait{}, members...), candidate))

	impact := (current - projected) * balanceScale
	return BalanceResult{
		CurrentBalance:   current,
		ProjectedBalance: projected,
		Impact:           impact,
		Improves:         impact > 0,
	}
}

// balanceScore maps a balance impact onto the 0-100 factor scale, centered
// at 50 for a neutral candidate.
func balanceScore(impact float64) float64 {
	return clamp(50 + impact)
}

// TraitSpread computes the population standard deviation across the five
// per-trait mean scores of a set of trait lists. Lower spread means a more
// evenly balanced group.
func TraitSpread(lists [][]profile.PersonalityTrait) float64 {
	sums := make(map[profile.TraitName]float64, len(profile.AllTraits))
	counts := make(map[profile.TraitName]int, len(profile.AllTraits))
	for _, traits := range lists {
		for _, t := range traits {
			sums[t.Name] += t.Score
			counts[t.Name]++
		}
	}

	means := make([]float64, 0, len(profile.AllTraits))
	for _, name := range profile.AllTraits {
		if counts[name] > 0 {
			means = append(means, sums[name]/float64(counts[name]))
		} else {
			means = append(means, 0)
		}
	}

	mean := 0.0
	for _, m := range means {
		mean += m
	}
	mean /= float64(len(means))

	variance := 0.0
	for _, m := range means {
		d := m - mean
		variance += d * d
	}
	variance /= float64(len(means))

	return math.Sqrt(variance)
}
