// Package store provides an in-memory snapshot store backing the
// formation service. It serves the CLI and tests; production deployments
// substitute their own ProfileStore and TribeStore implementations.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/tribed/internal/formation"
	"github.com/fyrsmithlabs/tribed/internal/profile"
)

// Memory is an immutable-on-read, mutex-guarded snapshot of profiles and
// tribes. It implements formation.ProfileStore and formation.TribeStore.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]*profile.Profile
	tribes   map[string]*profile.Tribe
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[string]*profile.Profile),
		tribes:   make(map[string]*profile.Tribe),
	}
}

// PutProfile adds or replaces a profile.
func (m *Memory) PutProfile(p *profile.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
}

// PutTribe adds or replaces a tribe.
func (m *Memory) PutTribe(t *profile.Tribe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tribes[t.ID] = t
}

// Profile implements formation.ProfileStore.
func (m *Memory) Profile(ctx context.Context, userID string) (*profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, formation.ErrNotFound)
	}
	return p, nil
}

// Tribe implements formation.TribeStore.
func (m *Memory) Tribe(ctx context.Context, tribeID string) (*profile.Tribe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tribes[tribeID]
	if !ok {
		return nil, fmt.Errorf("tribe %s: %w", tribeID, formation.ErrNotFound)
	}
	return t, nil
}

// TribesWithCapacity implements formation.TribeStore. Results are sorted
// by ID so runs over the same snapshot are deterministic.
func (m *Memory) TribesWithCapacity(ctx context.Context) ([]*profile.Tribe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*profile.Tribe
	for _, t := range m.tribes {
		if t.HasCapacity() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemberProfiles implements formation.TribeStore. Every member must
// resolve; a dangling member reference fails the lookup.
func (m *Memory) MemberProfiles(ctx context.Context, tribeID string) ([]*profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tribes[tribeID]
	if !ok {
		return nil, fmt.Errorf("tribe %s: %w", tribeID, formation.ErrNotFound)
	}
	members := make([]*profile.Profile, 0, len(t.Members))
	for _, mem := range t.Members {
		if mem.Status == profile.MembershipInactive {
			continue
		}
		p, ok := m.profiles[mem.UserID]
		if !ok {
			return nil, fmt.Errorf("tribe %s member %s: %w", tribeID, mem.UserID, formation.ErrNotFound)
		}
		members = append(members, p)
	}
	return members, nil
}

// Snapshot is the JSON fixture format consumed by the CLI.
type Snapshot struct {
	Profiles []*profile.Profile `json:"profiles"`
	Tribes   []*profile.Tribe   `json:"tribes,omitempty"`
}

// LoadFile reads a Snapshot fixture from disk into a new store.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return Load(data)
}

// Load parses a JSON Snapshot into a new store.
func Load(data []byte) (*Memory, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	m := NewMemory()
	for _, p := range snap.Profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("snapshot profile without id")
		}
		m.PutProfile(p)
	}
	for _, t := range snap.Tribes {
		if t.ID == "" {
			return nil, fmt.Errorf("snapshot tribe without id")
		}
		m.PutTribe(t)
	}
	return m, nil
}

// UserIDs returns every stored profile ID, sorted.
func (m *Memory) UserIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.profiles))
	for id := range m.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
