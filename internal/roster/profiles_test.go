package roster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/rallyd/internal/store"
)

func seedProfiles(t *testing.T) (*Profiles, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()

	_, err := s.Put(ctx, store.CollectionUsers, "u1", Player{
		ID: "u1", FirstName: "Sam", LastName: "Rivera", Phone: "+14085550001",
	})
	require.NoError(t, err)

	_, err = s.Put(ctx, store.CollectionPlayers, "p1", Player{
		ID: "p1", FirstName: "Alex", LastName: "Johnson", Phone: "(408) 555-0002",
	})
	require.NoError(t, err)

	return NewProfiles(s), s
}

func TestProfiles_ResolveDeclaredSource(t *testing.T) {
	profiles, _ := seedProfiles(t)

	prof, err := profiles.Resolve(context.Background(), Attendee{ID: "u1", Source: SourceUser})
	require.NoError(t, err)
	assert.Equal(t, "Sam Rivera", prof.FullName())
	assert.Equal(t, SourceUser, prof.Source)
}

func TestProfiles_ResolveFallsBackToAlternateCollection(t *testing.T) {
	profiles, _ := seedProfiles(t)

	// Declared as a user but only exists in the players collection.
	prof, err := profiles.Resolve(context.Background(), Attendee{ID: "p1", Source: SourceUser})
	require.NoError(t, err)
	assert.Equal(t, "Alex Johnson", prof.FullName())
	assert.Equal(t, SourcePlayer, prof.Source)
}

func TestProfiles_ResolveMissingEverywhere(t *testing.T) {
	profiles, _ := seedProfiles(t)

	_, err := profiles.Resolve(context.Background(), Attendee{ID: "ghost", Source: SourcePlayer})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProfiles_FindByPhone(t *testing.T) {
	profiles, _ := seedProfiles(t)

	tests := []struct {
		name   string
		phone  string
		wantID string
	}{
		{"exact E.164", "+14085550001", "u1"},
		{"formatted national", "408-555-0002", "p1"},
		{"bare digits with country code", "14085550002", "p1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prof, err := profiles.FindByPhone(context.Background(), tt.phone)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, prof.ID)
		})
	}

	_, err := profiles.FindByPhone(context.Background(), "+15555550000")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
