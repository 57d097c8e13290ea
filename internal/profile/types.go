// Package profile defines the domain types the matching engines operate on:
// user profiles with personality traits and interests, and tribes with
// bounded membership.
//
// Values of these types are treated as read-only snapshots for the duration
// of a matching run. Engines never mutate them; they produce new assignment
// data instead, so concurrent runs over independent batches are safe without
// locking.
package profile

import (
	"github.com/fyrsmithlabs/tribed/internal/geo"
)

// TraitName identifies one of the fixed five personality traits.
type TraitName string

const (
	TraitOpenness          TraitName = "openness"
	TraitConscientiousness TraitName = "conscientiousness"
	TraitExtraversion      TraitName = "extraversion"
	TraitAgreeableness     TraitName = "agreeableness"
	TraitNeuroticism       TraitName = "neuroticism"
)

// AllTraits lists the five traits in canonical order.
var AllTraits = []TraitName{
	TraitOpenness,
	TraitConscientiousness,
	TraitExtraversion,
	TraitAgreeableness,
	TraitNeuroticism,
}

// PersonalityTrait is a trait with a 0-100 intensity score. Scores are
// intensities, not probabilities, and are never renormalized across traits.
type PersonalityTrait struct {
	Name  TraitName `json:"name"`
	Score float64   `json:"score"`
}

// InterestCategory groups interests into broad buckets.
type InterestCategory string

const (
	CategoryOutdoor    InterestCategory = "outdoor"
	CategoryArts       InterestCategory = "arts"
	CategoryFood       InterestCategory = "food"
	CategorySports     InterestCategory = "sports"
	CategoryGames      InterestCategory = "games"
	CategoryLearning   InterestCategory = "learning"
	CategoryTechnology InterestCategory = "technology"
	CategoryWellness   InterestCategory = "wellness"
)

// highInterestLevel is the level at or above which a user interest counts
// as primary for the shared-primary-interest bonus.
const highInterestLevel = 3

// Interest is a (category, name) pair. Uniqueness for similarity purposes is
// defined by the (category, name) tuple, not by name alone. Level carries a
// user's 1-N engagement level; Primary marks a tribe's declared focus.
type Interest struct {
	Category InterestCategory `json:"category"`
	Name     string           `json:"name"`
	Level    int              `json:"level,omitempty"`
	Primary  bool             `json:"primary,omitempty"`
}

// Key returns the similarity key for the interest.
func (i Interest) Key() string {
	return string(i.Category) + "/" + i.Name
}

// IsPrimary reports whether the interest counts as primary: either declared
// primary (tribe interests) or held at a high level (user interests).
func (i Interest) IsPrimary() bool {
	return i.Primary || i.Level >= highInterestLevel
}

// CommunicationStyle identifies how a user prefers to communicate.
type CommunicationStyle string

const (
	StyleDirect     CommunicationStyle = "direct"
	StyleAnalytical CommunicationStyle = "analytical"
	StyleIntuitive  CommunicationStyle = "intuitive"
	StyleFunctional CommunicationStyle = "functional"
)

// AllStyles lists the communication styles in canonical order.
var AllStyles = []CommunicationStyle{
	StyleDirect,
	StyleAnalytical,
	StyleIntuitive,
	StyleFunctional,
}

// Profile is a user's matching-relevant data. Immutable for the duration of
// one matching run; owned by the profile store, read-only to the engines.
type Profile struct {
	ID            string             `json:"id"`
	Name          string             `json:"name,omitempty"`
	Location      geo.Point          `json:"location"`
	Traits        []PersonalityTrait `json:"traits"`
	Interests     []Interest         `json:"interests"`
	Communication CommunicationStyle `json:"communication"`

	// MaxTravelDistance is how far the user will travel, in miles.
	// Zero means the engine default applies.
	MaxTravelDistance float64 `json:"max_travel_distance,omitempty"`
}

// TraitScore returns the score for the named trait and whether it is present.
func (p *Profile) TraitScore(name TraitName) (float64, bool) {
	for _, t := range p.Traits {
		if t.Name == name {
			return t.Score, true
		}
	}
	return 0, false
}

// InterestKeys returns the (category,name) similarity keys of all interests.
func (p *Profile) InterestKeys() []string {
	keys := make([]string, 0, len(p.Interests))
	for _, i := range p.Interests {
		keys = append(keys, i.Key())
	}
	return keys
}

// MemberRole is a member's role within a tribe.
type MemberRole string

const (
	RoleCreator MemberRole = "creator"
	RoleMember  MemberRole = "member"
)

// MembershipStatus is the lifecycle state of a tribe membership.
type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipPending  MembershipStatus = "pending"
	MembershipInactive MembershipStatus = "inactive"
)

// Member is a tribe membership record.
type Member struct {
	UserID string           `json:"user_id"`
	Role   MemberRole       `json:"role"`
	Status MembershipStatus `json:"status"`
}

// Tribe is an existing group with a home location, bounded membership and
// declared interests.
type Tribe struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Location   geo.Point  `json:"location"`
	Members    []Member   `json:"members"`
	MaxMembers int        `json:"max_members"`
	Interests  []Interest `json:"interests,omitempty"`
}

// MemberCount returns the number of members that occupy capacity
// (active and pending memberships).
func (t *Tribe) MemberCount() int {
	n := 0
	for _, m := range t.Members {
		if m.Status == MembershipActive || m.Status == MembershipPending {
			n++
		}
	}
	return n
}

// AvailableCapacity returns how many more members the tribe can take.
func (t *Tribe) AvailableCapacity() int {
	free := t.MaxMembers - t.MemberCount()
	if free < 0 {
		return 0
	}
	return free
}

// HasCapacity reports whether the tribe can accept at least one new member.
func (t *Tribe) HasCapacity() bool {
	return t.AvailableCapacity() > 0
}

// MemberIDs returns the user IDs of capacity-occupying members.
func (t *Tribe) MemberIDs() []string {
	ids := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		if m.Status == MembershipActive || m.Status == MembershipPending {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

// InterestKeys returns the (category,name) similarity keys of the tribe's
// declared interests.
func (t *Tribe) InterestKeys() []string {
	keys := make([]string, 0, len(t.Interests))
	for _, i := range t.Interests {
		keys = append(keys, i.Key())
	}
	return keys
}
