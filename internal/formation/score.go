package formation

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tribed/internal/compat"
	"github.com/fyrsmithlabs/tribed/internal/matchcache"
	"github.com/fyrsmithlabs/tribed/internal/profile"
)

// ScoreUsers ranks candidateIDs against the reference user. Candidates
// whose profiles cannot be resolved are skipped and reported; only a
// missing reference profile fails the call.
func (s *service) ScoreUsers(ctx context.Context, userID string, candidateIDs []string, opts Options) (*UserScores, error) {
	ctx, span := s.tracer.Start(ctx, "formation.score_users")
	defer span.End()
	span.SetAttributes(
		attribute.String("user", userID),
		attribute.Int("candidates", len(candidateIDs)),
	)

	opts = s.resolve(opts)

	key := matchcache.Key("score_users", userID, candidateIDs, opts)
	if s.userCache != nil {
		if cached, ok := s.userCache.Get(key); ok {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
	}

	ref, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading reference profile %s: %w", userID, err)
	}

	candidates, skipped := s.loadProfiles(ctx, candidateIDs, userID)

	ranked := s.compat.MostCompatibleUsers(ctx, ref, candidates, compat.RankOptions{
		MinScore: opts.MinScore,
		Limit:    opts.Limit,
		Weights:  opts.Weights,
	})
	if !opts.IncludeDetail {
		for i := range ranked {
			ranked[i].Detail = nil
		}
	}

	res := &UserScores{Ranked: ranked, Skipped: skipped}
	if s.userCache != nil {
		s.userCache.Set(key, res)
	}
	return res, nil
}

// ScoreTribes ranks candidate tribes for a user. With no explicit
// candidates it considers every tribe with spare capacity. Unresolvable
// tribe IDs are skipped and reported.
func (s *service) ScoreTribes(ctx context.Context, userID string, candidateIDs []string, opts Options) (*TribeScores, error) {
	ctx, span := s.tracer.Start(ctx, "formation.score_tribes")
	defer span.End()
	span.SetAttributes(
		attribute.String("user", userID),
		attribute.Int("candidates", len(candidateIDs)),
	)

	opts = s.resolve(opts)

	key := matchcache.Key("score_tribes", userID, candidateIDs, opts)
	if s.tribeCache != nil {
		if cached, ok := s.tribeCache.Get(key); ok {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
	}

	user, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading profile %s: %w", userID, err)
	}

	var (
		tribes  []*profile.Tribe
		skipped []SkippedItem
	)
	if len(candidateIDs) == 0 {
		tribes, err = s.tribes.TribesWithCapacity(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing tribes with capacity: %w", err)
		}
	} else {
		for _, id := range candidateIDs {
			t, err := s.tribes.Tribe(ctx, id)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					skipped = append(skipped, SkippedItem{ID: id, Reason: "tribe not found"})
					continue
				}
				return nil, fmt.Errorf("loading tribe %s: %w", id, err)
			}
			tribes = append(tribes, t)
		}
	}

	candidates := make([]compat.TribeCandidate, 0, len(tribes))
	for _, t := range tribes {
		members, err := s.tribes.MemberProfiles(ctx, t.ID)
		if err != nil {
			s.logger.Warn("skipping tribe with unresolvable members",
				zap.String("tribe_id", t.ID),
				zap.Error(err))
			skipped = append(skipped, SkippedItem{ID: t.ID, Reason: "member profiles unavailable"})
			continue
		}
		candidates = append(candidates, compat.TribeCandidate{Tribe: t, Members: members})
	}

	ranked := s.compat.MostCompatibleTribes(ctx, user, candidates, compat.RankOptions{
		MinScore: opts.MinScore,
		Limit:    opts.Limit,
		Weights:  opts.Weights,
	})
	if !opts.IncludeDetail {
		for i := range ranked {
			ranked[i].Detail = nil
		}
	}

	res := &TribeScores{Ranked: ranked, Skipped: skipped}
	if s.tribeCache != nil {
		s.tribeCache.Set(key, res)
	}
	return res, nil
}

// loadProfiles resolves the given IDs, skipping duplicates of excludeID
// and anything the store cannot find.
func (s *service) loadProfiles(ctx context.Context, ids []string, excludeID string) ([]*profile.Profile, []SkippedItem) {
	profiles := make([]*profile.Profile, 0, len(ids))
	var skipped []SkippedItem
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == excludeID || seen[id] {
			continue
		}
		seen[id] = true
		p, err := s.profiles.Profile(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				skipped = append(skipped, SkippedItem{ID: id, Reason: "profile not found"})
				continue
			}
			s.logger.Warn("skipping unresolvable profile",
				zap.String("user_id", id),
				zap.Error(err))
			skipped = append(skipped, SkippedItem{ID: id, Reason: "profile unavailable"})
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles, skipped
}
