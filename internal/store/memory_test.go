package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tribed/internal/formation"
	"github.com/fyrsmithlabs/tribed/internal/profile"
)

func TestProfileLookup(t *testing.T) {
	m := NewMemory()
	m.PutProfile(&profile.Profile{ID: "u1"})

	p, err := m.Profile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)

	_, err = m.Profile(context.Background(), "missing")
	assert.ErrorIs(t, err, formation.ErrNotFound)
}

func TestTribesWithCapacity(t *testing.T) {
	m := NewMemory()
	m.PutTribe(&profile.Tribe{
		ID:         "full",
		MaxMembers: 2,
		Members: []profile.Member{
			{UserID: "a", Status: profile.MembershipActive},
			{UserID: "b", Status: profile.MembershipPending},
		},
	})
	m.PutTribe(&profile.Tribe{
		ID:         "open-b",
		MaxMembers: 4,
		Members:    []profile.Member{{UserID: "c", Status: profile.MembershipActive}},
	})
	m.PutTribe(&profile.Tribe{
		ID:         "open-a",
		MaxMembers: 4,
		Members:    []profile.Member{{UserID: "d", Status: profile.MembershipActive}},
	})

	tribes, err := m.TribesWithCapacity(context.Background())
	require.NoError(t, err)
	require.Len(t, tribes, 2)
	// Deterministic order by ID; the full tribe is excluded.
	assert.Equal(t, "open-a", tribes[0].ID)
	assert.Equal(t, "open-b", tribes[1].ID)
}

func TestMemberProfiles(t *testing.T) {
	m := NewMemory()
	m.PutProfile(&profile.Profile{ID: "a"})
	m.PutProfile(&profile.Profile{ID: "b"})
	m.PutTribe(&profile.Tribe{
		ID:         "t1",
		MaxMembers: 8,
		Members: []profile.Member{
			{UserID: "a", Status: profile.MembershipActive},
			{UserID: "b", Status: profile.MembershipInactive},
		},
	})

	members, err := m.MemberProfiles(context.Background(), "t1")
	require.NoError(t, err)
	// Inactive memberships do not contribute profiles.
	require.Len(t, members, 1)
	assert.Equal(t, "a", members[0].ID)
}

func TestMemberProfilesDanglingReference(t *testing.T) {
	m := NewMemory()
	m.PutTribe(&profile.Tribe{
		ID:         "t1",
		MaxMembers: 8,
		Members:    []profile.Member{{UserID: "ghost", Status: profile.MembershipActive}},
	})

	_, err := m.MemberProfiles(context.Background(), "t1")
	assert.ErrorIs(t, err, formation.ErrNotFound)
}

func TestLoadSnapshot(t *testing.T) {
	data := []byte(`{
		"profiles": [
			{"id": "u1", "location": {"latitude": 47.6, "longitude": -122.33}},
			{"id": "u2", "location": {"latitude": 47.61, "longitude": -122.33}}
		],
		"tribes": [
			{"id": "t1", "max_members": 6, "location": {"latitude": 47.6, "longitude": -122.33},
			 "members": [{"user_id": "u1", "role": "creator", "status": "active"}]}
		]
	}`)

	m, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, m.UserIDs())

	tr, err := m.Tribe(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 6, tr.MaxMembers)
	assert.InDelta(t, 47.6, tr.Location.Latitude, 1e-9)
}

func TestLoadRejectsMissingIDs(t *testing.T) {
	_, err := Load([]byte(`{"profiles": [{"location": {"latitude": 0, "longitude": 0}}]}`))
	assert.Error(t, err)
}
