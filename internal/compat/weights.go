package compat

// Factor is one of the five independently scored compatibility dimensions.
type Factor string

const (
	FactorPersonality   Factor = "personality"
	FactorInterests     Factor = "interests"
	FactorCommunication Factor = "communication"
	FactorLocation      Factor = "location"
	FactorBalance       Factor = "balance"
)

// AllFactors lists the factors in canonical order.
var AllFactors = []Factor{
	FactorPersonality,
	FactorInterests,
	FactorCommunication,
	FactorLocation,
	FactorBalance,
}

// PairFactors are the factors that apply to user-user scoring. Group balance
// has no meaning for a pair.
var PairFactors = []Factor{
	FactorPersonality,
	FactorInterests,
	FactorCommunication,
	FactorLocation,
}

// Weights maps factors to non-negative weights. Weights must be normalized
// before use in a scoring call; NormalizedOver guarantees the result sums
// to 1.0 over the requested factors.
type Weights map[Factor]float64

// DefaultWeights returns the fixed default factor distribution.
func DefaultWeights() Weights {
	return Weights{
		FactorPersonality:   0.30,
		FactorInterests:     0.25,
		FactorCommunication: 0.20,
		FactorLocation:      0.15,
		FactorBalance:       0.10,
	}
}

// NormalizedOver returns weights restricted to the given factors and scaled
// to sum to 1.0. Negative weights are treated as zero. A weight set that
// sums to zero over the requested factors falls back to the default
// distribution restricted to the same factors.
func (w Weights) NormalizedOver(factors []Factor) Weights {
	if len(factors) == 0 {
		return Weights{}
	}

	sum := 0.0
	for _, f := range factors {
		if v := w[f]; v > 0 {
			sum += v
		}
	}

	if sum <= 0 {
		// All defaults are positive, so this recurses at most once.
		return DefaultWeights().NormalizedOver(factors)
	}

	out := make(Weights, len(factors))
	for _, f := range factors {
		v := w[f]
		if v < 0 {
			v = 0
		}
		out[f] = v / sum
	}
	return out
}

// clamp bounds a score to the [0,100] range.
func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
