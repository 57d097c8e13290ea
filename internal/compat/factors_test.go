package compat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tribed/internal/geo"
	"github.com/fyrsmithlabs/tribed/internal/profile"
)

func traits(openness, conscientiousness, extraversion, agreeableness, neuroticism float64) []profile.PersonalityTrait {
	return []profile.PersonalityTrait{
		{Name: profile.TraitOpenness, Score: openness},
		{Name: profile.TraitConscientiousness, Score: conscientiousness},
		{Name: profile.TraitExtraversion, Score: extraversion},
		{Name: profile.TraitAgreeableness, Score: agreeableness},
		{Name: profile.TraitNeuroticism, Score: neuroticism},
	}
}

func TestPersonalityCompatibility(t *testing.T) {
	t.Run("near identical traits score high", func(t *testing.T) {
		a := traits(70, 60, 50, 80, 30)
		b := traits(72, 58, 52, 77, 33)

		res := PersonalityCompatibility(a, b)
		assert.GreaterOrEqual(t, res.Overall, 80.0)
		assert.LessOrEqual(t, res.Overall, 100.0)
	})

	t.Run("extraversion rewards difference", func(t *testing.T) {
		introvert := []profile.PersonalityTrait{{Name: profile.TraitExtraversion, Score: 10}}
		extravert := []profile.PersonalityTrait{{Name: profile.TraitExtraversion, Score: 90}}

		opposite := PersonalityCompatibility(introvert, extravert)
		same := PersonalityCompatibility(extravert, extravert)

		assert.Greater(t, opposite.Overall, same.Overall)
	})

	t.Run("traits missing from either side are ignored", func(t *testing.T) {
		a := []profile.PersonalityTrait{
			{Name: profile.TraitOpenness, Score: 50},
			{Name: profile.TraitAgreeableness, Score: 50},
		}
		b := []profile.PersonalityTrait{
			{Name: profile.TraitOpenness, Score: 50},
		}

		res := PersonalityCompatibility(a, b)
		require.Len(t, res.PerTrait, 1)
		assert.Contains(t, res.PerTrait, profile.TraitOpenness)
	})

	t.Run("no shared traits scores zero", func(t *testing.T) {
		a := []profile.PersonalityTrait{{Name: profile.TraitOpenness, Score: 90}}
		b := []profile.PersonalityTrait{{Name: profile.TraitNeuroticism, Score: 90}}

		res := PersonalityCompatibility(a, b)
		assert.Zero(t, res.Overall)
		assert.Empty(t, res.PerTrait)
	})

	t.Run("tags complementary and conflicting traits", func(t *testing.T) {
		a := traits(80, 80, 50, 80, 80)
		b := traits(82, 82, 50, 20, 20)

		res := PersonalityCompatibility(a, b)
		assert.Contains(t, res.Complementary, profile.TraitOpenness)
		assert.Contains(t, res.Conflicting, profile.TraitAgreeableness)
	})

	t.Run("scores stay within bounds", func(t *testing.T) {
		extremes := [][]profile.PersonalityTrait{
			traits(0, 0, 0, 0, 0),
			traits(100, 100, 100, 100, 100),
			traits(50, 50, 50, 50, 50),
		}
		for _, a := range extremes {
			for _, b := range extremes {
				res := PersonalityCompatibility(a, b)
				assert.GreaterOrEqual(t, res.Overall, 0.0)
				assert.LessOrEqual(t, res.Overall, 100.0)
				for _, s := range res.PerTrait {
					assert.GreaterOrEqual(t, s, 0.0)
					assert.LessOrEqual(t, s, 100.0)
				}
			}
		}
	})
}

func TestInterestCompatibility(t *testing.T) {
	hiking := profile.Interest{Category: profile.CategoryOutdoor, Name: "hiking", Level: 2}
	hikingPrimary := profile.Interest{Category: profile.CategoryOutdoor, Name: "hiking", Level: 4}
	chess := profile.Interest{Category: profile.CategoryGames, Name: "chess", Level: 2}
	baking := profile.Interest{Category: profile.CategoryFood, Name: "baking", Level: 1}
	painting := profile.Interest{Category: profile.CategoryArts, Name: "painting", Level: 2}

	t.Run("jaccard scaled to 100", func(t *testing.T) {
		res := InterestCompatibility(
			[]profile.Interest{hiking, chess, baking},
			[]profile.Interest{hiking, chess, painting},
		)
		assert.InDelta(t, 50.0, res.Overall, 1e-9)
		assert.ElementsMatch(t, []string{"outdoor/hiking", "games/chess"}, res.Shared)
		assert.False(t, res.PrimaryMatch)
	})

	t.Run("primary bonus applies when shared on both sides", func(t *testing.T) {
		res := InterestCompatibility(
			[]profile.Interest{hikingPrimary, chess},
			[]profile.Interest{hikingPrimary, painting},
		)
		// 1/3 Jaccard plus the flat bonus.
		assert.InDelta(t, 100.0/3+20, res.Overall, 1e-9)
		assert.True(t, res.PrimaryMatch)
	})

	t.Run("bonus is capped at 100", func(t *testing.T) {
		res := InterestCompatibility(
			[]profile.Interest{hikingPrimary},
			[]profile.Interest{hikingPrimary},
		)
		assert.Equal(t, 100.0, res.Overall)
	})

	t.Run("both empty are fully similar", func(t *testing.T) {
		res := InterestCompatibility(nil, nil)
		assert.Equal(t, 100.0, res.Overall)
	})

	t.Run("same name in different categories is not shared", func(t *testing.T) {
		a := []profile.Interest{{Category: profile.CategoryGames, Name: "climbing"}}
		b := []profile.Interest{{Category: profile.CategoryOutdoor, Name: "climbing"}}
		res := InterestCompatibility(a, b)
		assert.Zero(t, res.Overall)
		assert.Empty(t, res.Shared)
	})
}

func TestCommunicationCompatibility(t *testing.T) {
	t.Run("identical styles beat every mixed pair", func(t *testing.T) {
		for _, s := range profile.AllStyles {
			same := CommunicationCompatibility(s, s)
			assert.True(t, same.Match)
			for _, other := range profile.AllStyles {
				if other == s {
					continue
				}
				mixed := CommunicationCompatibility(s, other)
				assert.Greater(t, same.Overall, mixed.Overall,
					"same-style %s should beat %s/%s", s, s, other)
			}
		}
	})

	t.Run("matrix is symmetric", func(t *testing.T) {
		for _, a := range profile.AllStyles {
			for _, b := range profile.AllStyles {
				assert.Equal(t,
					CommunicationCompatibility(a, b).Overall,
					CommunicationCompatibility(b, a).Overall)
			}
		}
	})

	t.Run("direct and analytical are complementary", func(t *testing.T) {
		res := CommunicationCompatibility(profile.StyleDirect, profile.StyleAnalytical)
		assert.True(t, res.Complementary)
		assert.False(t, res.Match)
	})

	t.Run("unknown style scores neutral", func(t *testing.T) {
		res := CommunicationCompatibility("telepathic", profile.StyleDirect)
		assert.InDelta(t, 50.0, res.Overall, 1e-9)
	})
}

func TestLocationCompatibility(t *testing.T) {
	seattle := geo.Point{Latitude: 47.6062, Longitude: -122.3321}
	bellevue := geo.Point{Latitude: 47.6101, Longitude: -122.2015}
	nyc := geo.Point{Latitude: 40.7128, Longitude: -74.0060}

	t.Run("identical points score 100", func(t *testing.T) {
		res := LocationCompatibility(seattle, seattle, 25)
		assert.Equal(t, 100.0, res.Overall)
		assert.True(t, res.WithinRange)
		assert.Zero(t, res.DistanceMiles)
	})

	t.Run("linear decay within range", func(t *testing.T) {
		res := LocationCompatibility(seattle, bellevue, 25)
		assert.True(t, res.WithinRange)
		assert.InDelta(t, 100*(1-res.DistanceMiles/25), res.Overall, 1e-9)
		assert.Greater(t, res.Overall, 0.0)
	})

	t.Run("beyond max distance scores zero", func(t *testing.T) {
		res := LocationCompatibility(seattle, nyc, 25)
		assert.False(t, res.WithinRange)
		assert.Zero(t, res.Overall)
	})
}

func TestGroupBalanceImpact(t *testing.T) {
	t.Run("evening candidate improves balance", func(t *testing.T) {
		// Group skewed high on openness, low on neuroticism.
		members := [][]profile.PersonalityTrait{
			traits(90, 50, 50, 50, 10),
			traits(85, 50, 50, 50, 15),
		}
		// Candidate pulls the extremes toward the middle.
		candidate := traits(20, 50, 50, 50, 90)

		res := GroupBalanceImpact(candidate, members)
		assert.True(t, res.Improves)
		assert.Greater(t, res.Impact, 0.0)
		assert.Less(t, res.ProjectedBalance, res.CurrentBalance)
	})

	t.Run("skewing candidate worsens balance", func(t *testing.T) {
		members := [][]profile.PersonalityTrait{
			traits(50, 50, 50, 50, 50),
			traits(50, 50, 50, 50, 50),
		}
		candidate := traits(100, 10, 50, 50, 50)

		res := GroupBalanceImpact(candidate, members)
		assert.False(t, res.Improves)
		assert.LessOrEqual(t, res.Impact, 0.0)
	})

	t.Run("uniform group has zero spread", func(t *testing.T) {
		members := [][]profile.PersonalityTrait{
			traits(60, 60, 60, 60, 60),
		}
		res := GroupBalanceImpact(traits(60, 60, 60, 60, 60), members)
		assert.Zero(t, res.CurrentBalance)
		assert.Zero(t, res.ProjectedBalance)
		assert.Zero(t, res.Impact)
	})
}

func TestNormalizedOver(t *testing.T) {
	t.Run("valid weights sum to one", func(t *testing.T) {
		w := Weights{
			FactorPersonality:   3,
			FactorInterests:     2,
			FactorCommunication: 2,
			FactorLocation:      2,
			FactorBalance:       1,
		}
		n := w.NormalizedOver(AllFactors)
		sum := 0.0
		for _, v := range n {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		assert.InDelta(t, 0.3, n[FactorPersonality], 1e-9)
	})

	t.Run("zero sum falls back to defaults", func(t *testing.T) {
		n := Weights{}.NormalizedOver(AllFactors)
		assert.InDelta(t, 0.30, n[FactorPersonality], 1e-9)
		assert.InDelta(t, 0.25, n[FactorInterests], 1e-9)
		assert.InDelta(t, 0.20, n[FactorCommunication], 1e-9)
		assert.InDelta(t, 0.15, n[FactorLocation], 1e-9)
		assert.InDelta(t, 0.10, n[FactorBalance], 1e-9)
	})

	t.Run("negative weights are treated as zero", func(t *testing.T) {
		w := Weights{
			FactorPersonality: 1,
			FactorInterests:   -5,
		}
		n := w.NormalizedOver(PairFactors)
		assert.InDelta(t, 1.0, n[FactorPersonality], 1e-9)
		assert.Zero(t, n[FactorInterests])
	})

	t.Run("pair subset renormalizes defaults", func(t *testing.T) {
		n := DefaultWeights().NormalizedOver(PairFactors)
		sum := 0.0
		for _, v := range n {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		// 0.30 of an 0.90 total.
		assert.InDelta(t, 0.30/0.90, n[FactorPersonality], 1e-9)
	})
}
