package formation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tribed/internal/advisory"
	"github.com/fyrsmithlabs/tribed/internal/cluster"
	"github.com/fyrsmithlabs/tribed/internal/profile"
)

// tribeState tracks one existing tribe through a formation run.
type tribeState struct {
	tribe    *profile.Tribe
	members  []*profile.Profile
	capacity int
	assigned []string
}

// FormTribes runs a full formation pass: every user is scored against
// every tribe with spare capacity, users are greedily placed best score
// first where the threshold and capacity allow, and the leftovers are
// clustered into candidate new tribes. A bounded swap pass then tries to
// improve the existing-tribe placements.
func (s *service) FormTribes(ctx context.Context, userIDs []string, opts Options) (*FormationResult, error) {
	runID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "formation.form_tribes")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("users", len(userIDs)),
	)

	opts = s.resolve(opts)
	logger := s.logger.With(zap.String("run_id", runID))

	users, skipped := s.loadProfiles(ctx, userIDs, "")
	logger.Info("starting formation run",
		zap.Int("users", len(users)),
		zap.Int("skipped", len(skipped)))

	states, stateSkipped, err := s.loadTribeStates(ctx, logger)
	if err != nil {
		return nil, err
	}
	skipped = append(skipped, stateSkipped...)

	assignments, leftovers := s.assignToExisting(ctx, users, states, opts)

	s.optimizeAssignments(ctx, assignments, states, opts, logger)

	newTribes, err := s.clusterLeftovers(ctx, leftovers, opts)
	if err != nil {
		return nil, err
	}

	if err := checkCapacity(states); err != nil {
		return nil, err
	}

	result := &FormationResult{
		RunID:     runID,
		Existing:  assignments,
		NewTribes: newTribes,
		Skipped:   skipped,
	}

	if note, ok := s.suggestAdjustments(ctx, result, logger); ok {
		result.Notes = append(result.Notes, note)
	}

	s.runs.Add(1)
	if s.runCounter != nil {
		s.runCounter.Add(ctx, 1)
	}
	if s.assignCount != nil {
		s.assignCount.Add(ctx, int64(len(assignments)))
	}
	logger.Info("formation run complete",
		zap.Int("assigned", len(assignments)),
		zap.Int("new_tribes", len(newTribes)))
	return result, nil
}

// loadTribeStates snapshots every tribe with spare capacity along with its
// member profiles. Tribes whose members cannot be resolved are excluded
// from the run and reported.
func (s *service) loadTribeStates(ctx context.Context, logger *zap.Logger) ([]*tribeState, []SkippedItem, error) {
	tribes, err := s.tribes.TribesWithCapacity(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing tribes with capacity: %w", err)
	}

	states := make([]*tribeState, 0, len(tribes))
	var skipped []SkippedItem
	for _, t := range tribes {
		if !t.HasCapacity() {
			continue
		}
		members, err := s.tribes.MemberProfiles(ctx, t.ID)
		if err != nil {
			logger.Warn("excluding tribe with unresolvable members",
				zap.String("tribe_id", t.ID),
				zap.Error(err))
			skipped = append(skipped, SkippedItem{ID: t.ID, Reason: "member profiles unavailable"})
			continue
		}
		states = append(states, &tribeState{
			tribe:    t,
			members:  members,
			capacity: t.AvailableCapacity(),
		})
	}
	return states, skipped, nil
}

// assignToExisting scores every user against every open tribe, then places
// users best score first where capacity remains and the score clears the
// threshold. Scores are computed once up front; later assignments do not
// trigger rescoring.
func (s *service) assignToExisting(ctx context.Context, users []*profile.Profile, states []*tribeState, opts Options) (map[string]Assignment, []*profile.Profile) {
	assignments := make(map[string]Assignment)
	if len(states) == 0 {
		return assignments, users
	}

	minScore := opts.CompatibilityThreshold * 100

	type candidate struct {
		user   *profile.Profile
		scores []float64 // indexed like states
		best   float64
	}

	candidates := make([]candidate, len(users))
	for i, u := range users {
		c := candidate{user: u, scores: make([]float64, len(states))}
		for j, st := range states {
			res := s.compat.TribeCompatibility(ctx, u, st.tribe, st.members, opts.Weights)
			c.scores[j] = res.Overall
			if res.Overall > c.best {
				c.best = res.Overall
			}
		}
		candidates[i] = c
	}

	// Best-score-first gives the strongest matches first claim on scarce
	// capacity; ties keep input order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].best > candidates[j].best
	})

	var leftovers []*profile.Profile
	for _, c := range candidates {
		bestIdx := -1
		bestScore := 0.0
		for j, st := range states {
			if st.capacity-len(st.assigned) <= 0 {
				continue
			}
			if c.scores[j] < minScore {
				continue
			}
			if bestIdx == -1 || c.scores[j] > bestScore {
				bestIdx = j
				bestScore = c.scores[j]
			}
		}
		if bestIdx == -1 {
			leftovers = append(leftovers, c.user)
			continue
		}
		st := states[bestIdx]
		st.assigned = append(st.assigned, c.user.ID)
		assignments[c.user.ID] = Assignment{TribeID: st.tribe.ID, Score: bestScore}
	}
	return assignments, leftovers
}

// optimizeAssignments tries pairwise swaps between users assigned to
// different tribes, committing a swap when the combined score improves and
// both swapped scores still clear the threshold. Each (user, tribe, user,
// tribe) configuration is evaluated at most once; the round cap bounds the
// pass regardless.
func (s *service) optimizeAssignments(ctx context.Context, assignments map[string]Assignment, states []*tribeState, opts Options, logger *zap.Logger) {
	if len(assignments) < 2 {
		return
	}

	minScore := opts.CompatibilityThreshold * 100

	stateByID := make(map[string]*tribeState, len(states))
	profileByID := make(map[string]*profile.Profile)
	for _, st := range states {
		stateByID[st.tribe.ID] = st
		for _, m := range st.members {
			profileByID[m.ID] = m
		}
	}
	// Assigned users appear in state member snapshots only after a swap
	// materializes them; keep their profiles reachable.
	for _, st := range states {
		for _, id := range st.assigned {
			if _, ok := profileByID[id]; !ok {
				// Assigned profiles were loaded during scoring; look
				// them up again so swaps can rescore them.
				if p, err := s.profiles.Profile(ctx, id); err == nil {
					profileByID[id] = p
				}
			}
		}
	}

	// membersFor is the target tribe's current members plus its other
	// new assignees, excluding the counterpart who would vacate.
	membersFor := func(st *tribeState, exclude string) []*profile.Profile {
		out := make([]*profile.Profile, 0, len(st.members)+len(st.assigned))
		out = append(out, st.members...)
		for _, id := range st.assigned {
			if id == exclude {
				continue
			}
			if p, ok := profileByID[id]; ok {
				out = append(out, p)
			}
		}
		return out
	}

	userIDs := make([]string, 0, len(assignments))
	for id := range assignments {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	evaluated := make(map[string]bool)
	swaps := 0
	for round := 0; round < s.config.MaxOptimizationRounds; round++ {
		improved := false
		for i := 0; i < len(userIDs); i++ {
			for j := i + 1; j < len(userIDs); j++ {
				u1, u2 := userIDs[i], userIDs[j]
				a1, a2 := assignments[u1], assignments[u2]
				if a1.TribeID == a2.TribeID {
					continue
				}
				key := u1 + "\x00" + a1.TribeID + "\x00" + u2 + "\x00" + a2.TribeID
				if evaluated[key] {
					continue
				}
				evaluated[key] = true

				p1, ok1 := profileByID[u1]
				p2, ok2 := profileByID[u2]
				if !ok1 || !ok2 {
					continue
				}
				st1 := stateByID[a1.TribeID]
				st2 := stateByID[a2.TribeID]

				s1 := s.compat.TribeCompatibility(ctx, p1, st2.tribe, membersFor(st2, u2), opts.Weights).Overall
				s2 := s.compat.TribeCompatibility(ctx, p2, st1.tribe, membersFor(st1, u1), opts.Weights).Overall
				if s1 < minScore || s2 < minScore {
					continue
				}
				if s1+s2 <= a1.Score+a2.Score {
					continue
				}

				assignments[u1] = Assignment{TribeID: a2.TribeID, Score: s1}
				assignments[u2] = Assignment{TribeID: a1.TribeID, Score: s2}
				replaceAssigned(st1, u1, u2)
				replaceAssigned(st2, u2, u1)
				improved = true
				swaps++
			}
		}
		if !improved {
			break
		}
	}
	if swaps > 0 {
		logger.Debug("assignment optimization swapped members", zap.Int("swaps", swaps))
	}
}

func replaceAssigned(st *tribeState, oldID, newID string) {
	for i, id := range st.assigned {
		if id == oldID {
			st.assigned[i] = newID
			return
		}
	}
}

// clusterLeftovers forms candidate new tribes from users no existing tribe
// could take, enforcing the group size bounds on the output.
func (s *service) clusterLeftovers(ctx context.Context, leftovers []*profile.Profile, opts Options) ([]NewTribe, error) {
	if len(leftovers) == 0 {
		return nil, nil
	}

	eng := cluster.NewEngine(s.clusterConfig(opts), s.compat, s.logger)
	groups := eng.FormGroups(ctx, leftovers)

	newTribes := make([]NewTribe, 0, len(groups))
	for _, g := range groups {
		if !g.Remainder {
			if n := len(g.Members); n < opts.MinGroupSize || n > opts.MaxGroupSize {
				return nil, invariantf("formed group of size %d outside bounds [%d, %d]",
					n, opts.MinGroupSize, opts.MaxGroupSize)
			}
		}
		newTribes = append(newTribes, NewTribe{
			ID:        uuid.NewString(),
			Members:   g.Members,
			Remainder: g.Remainder,
		})
	}
	return newTribes, nil
}

// checkCapacity guards the capacity invariant over the final assignments.
func checkCapacity(states []*tribeState) error {
	for _, st := range states {
		if len(st.assigned) > st.capacity {
			return invariantf("tribe %s assigned %d users with capacity %d",
				st.tribe.ID, len(st.assigned), st.capacity)
		}
	}
	return nil
}

// suggestAdjustments asks the advisory client for improvement notes on the
// completed run. Failures are logged and swallowed; the note is advisory
// only and never changes the committed result.
func (s *service) suggestAdjustments(ctx context.Context, result *FormationResult, logger *zap.Logger) (AdvisoryNote, bool) {
	if s.advisory == nil || !s.config.AdvisoryEnabled {
		return AdvisoryNote{}, false
	}

	advCtx, cancel := context.WithTimeout(ctx, s.config.AdvisoryTimeout)
	defer cancel()

	text, err := s.advisory.SuggestAdjustments(advCtx, formationSummary(result))
	if err != nil {
		if !errors.Is(err, advisory.ErrDisabled) {
			s.advFails.Add(1)
			logger.Debug("advisory adjustment suggestion failed", zap.Error(err))
		}
		return AdvisoryNote{}, false
	}
	if strings.TrimSpace(text) == "" {
		return AdvisoryNote{}, false
	}
	return AdvisoryNote{Kind: NoteAdjustmentSuggestion, Text: text}, true
}

// formationSummary renders a compact text description of a run for the
// advisory prompt. Only IDs and scores; no location data leaves the
// process.
func formationSummary(result *FormationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s\n", result.RunID)

	byTribe := make(map[string][]string)
	for userID, a := range result.Existing {
		byTribe[a.TribeID] = append(byTribe[a.TribeID], fmt.Sprintf("%s (%.1f)", userID, a.Score))
	}
	tribeIDs := make([]string, 0, len(byTribe))
	for id := range byTribe {
		tribeIDs = append(tribeIDs, id)
	}
	sort.Strings(tribeIDs)
	for _, id := range tribeIDs {
		sort.Strings(byTribe[id])
		fmt.Fprintf(&b, "existing tribe %s: %s\n", id, strings.Join(byTribe[id], ", "))
	}

	for _, nt := range result.NewTribes {
		ids := make([]string, 0, len(nt.Members))
		for _, m := range nt.Members {
			ids = append(ids, fmt.Sprintf("%s (%.1f)", m.UserID, m.Score))
		}
		label := "new tribe"
		if nt.Remainder {
			label = "remainder group"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", label, nt.ID, strings.Join(ids, ", "))
	}
	return b.String()
}
