package formation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/tribed/internal/cluster"
	"github.com/fyrsmithlabs/tribed/internal/compat"
	"github.com/fyrsmithlabs/tribed/internal/profile"
)

// ErrNotFound marks a user or tribe ID that the stores cannot resolve.
// Batch operations report it per item instead of failing the batch.
var ErrNotFound = errors.New("formation: not found")

// InvariantError reports a violated engine invariant: a produced group
// outside size bounds or an assignment exceeding tribe capacity. These are
// programming bugs, distinct from the recoverable error categories, and
// are never converted into per-item statuses.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "formation: invariant violation: " + e.Msg
}

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// ProfileStore supplies read-only profile snapshots.
type ProfileStore interface {
	// Profile returns the profile for userID, or an error wrapping
	// ErrNotFound.
	Profile(ctx context.Context, userID string) (*profile.Profile, error)
}

// TribeStore supplies read-only tribe snapshots.
type TribeStore interface {
	// Tribe returns the tribe for tribeID, or an error wrapping
	// ErrNotFound.
	Tribe(ctx context.Context, tribeID string) (*profile.Tribe, error)

	// TribesWithCapacity returns all tribes that can accept members.
	TribesWithCapacity(ctx context.Context) ([]*profile.Tribe, error)

	// MemberProfiles returns the profiles of a tribe's current members.
	MemberProfiles(ctx context.Context, tribeID string) ([]*profile.Profile, error)
}

// Options are the per-call overrides for matching operations. Zero values
// fall back to the service defaults; invalid values are repaired, not
// rejected.
type Options struct {
	// MinGroupSize and MaxGroupSize bound newly formed tribes.
	MinGroupSize int
	MaxGroupSize int

	// MaxDistanceMiles is the proximity bound for clustering and the
	// default travel distance for location scoring.
	MaxDistanceMiles float64

	// CompatibilityThreshold gates existing-tribe assignment on a 0-1
	// scale (compared against scores divided by 100).
	CompatibilityThreshold float64

	// Weights override the factor weights for every scoring call.
	Weights compat.Weights

	// MinScore filters ranked results (0-100 scale).
	MinScore float64

	// Limit truncates ranked results; zero means unlimited.
	Limit int

	// IncludeDetail attaches per-factor detail to ranked results.
	IncludeDetail bool
}

// SkippedItem reports one batch input that could not be processed.
type SkippedItem struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// UserScores is the result of ranking candidate users against a reference
// user.
type UserScores struct {
	Ranked  []compat.RankedUser `json:"ranked"`
	Skipped []SkippedItem       `json:"skipped,omitempty"`
}

// TribeScores is the result of ranking candidate tribes for a user.
type TribeScores struct {
	Ranked  []compat.RankedTribe `json:"ranked"`
	Skipped []SkippedItem        `json:"skipped,omitempty"`
}

// Assignment places a user into an existing tribe.
type Assignment struct {
	TribeID string  `json:"tribe_id"`
	Score   float64 `json:"score"`
}

// NewTribe is a candidate tribe formed from unassigned users. The ID is
// generated for correlation; materializing the tribe is the persistence
// collaborator's job.
type NewTribe struct {
	ID        string                 `json:"id"`
	Members   []cluster.ScoredMember `json:"members"`
	Remainder bool                   `json:"remainder,omitempty"`
}

// NoteKind discriminates advisory note variants. The set is closed; any
// unrecognized payload travels as NoteOpaque.
type NoteKind string

const (
	// NoteAdjustmentSuggestion carries free-text swap/placement
	// suggestions from the advisory service.
	NoteAdjustmentSuggestion NoteKind = "adjustment_suggestion"

	// NoteFormationSummary carries a human-readable run summary.
	NoteFormationSummary NoteKind = "formation_summary"

	// NoteOpaque carries an unrecognized advisory payload verbatim.
	NoteOpaque NoteKind = "opaque"
)

// AdvisoryNote is annotation-only output: surfaced and logged, never
// applied to the committed assignments.
type AdvisoryNote struct {
	Kind    NoteKind        `json:"kind"`
	Text    string          `json:"text,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FormationResult is the outcome of one tribe-formation run.
type FormationResult struct {
	// RunID correlates logs and notes for this run.
	RunID string `json:"run_id"`

	// Existing maps user IDs to their existing-tribe assignments.
	Existing map[string]Assignment `json:"existing"`

	// NewTribes are the candidate tribes formed from leftover users.
	NewTribes []NewTribe `json:"new_tribes"`

	// Skipped lists inputs that could not be processed.
	Skipped []SkippedItem `json:"skipped,omitempty"`

	// Notes are advisory-only annotations.
	Notes []AdvisoryNote `json:"notes,omitempty"`
}
