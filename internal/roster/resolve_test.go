package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func courtCandidates() []NamedEntity {
	return []NamedEntity{
		{ID: "c1", Name: "Sunnyvale Park"},
		{ID: "c2", Name: "Mitchell Park Courts"},
		{ID: "c3", Name: "The Hills Tennis Center"},
		{ID: "c4", Name: "Rengstorff"},
	}
}

func TestResolve_Cascade(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantKind  MatchKind
		wantID    string
		wantStage string
	}{
		{"exact", "Sunnyvale Park", MatchUnique, "c1", "exact"},
		{"exact case folded", "  sunnyvale   PARK ", MatchUnique, "c1", "exact"},
		{"cleaned suffix", "Sunnyvale Courts", MatchUnique, "c1", "cleaned"},
		{"cleaned leading the", "the hills", MatchUnique, "c3", "cleaned"},
		{"cleaned apostrophe", "Hill’s", MatchUnique, "c3", "cleaned"},
		{"cleaned drops suffix words", "Mitchell", MatchUnique, "c2", "cleaned"},
		{"containment of shortened name", "Rengs", MatchUnique, "c4", "contains"},
		{"token overlap", "reng availability", MatchUnique, "c4", "token"},
		{"not found", "Cuesta", MatchNotFound, "", ""},
		{"empty query", "", MatchNotFound, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.query, courtCandidates())
			assert.Equal(t, tt.wantKind, got.Kind)
			if tt.wantKind == MatchUnique {
				assert.Equal(t, tt.wantID, got.Entity.ID)
				assert.Equal(t, tt.wantStage, got.Stage)
			}
		})
	}
}

func TestResolve_AmbiguousStopsAtFirstStage(t *testing.T) {
	candidates := []NamedEntity{
		{ID: "a", Name: "Cuesta Park North"},
		{ID: "b", Name: "Cuesta Park South"},
	}

	got := Resolve("cuesta", candidates)
	assert.Equal(t, MatchAmbiguous, got.Kind)
	assert.Len(t, got.All, 2)
}

func TestResolve_Idempotent(t *testing.T) {
	first := Resolve("sunnyvale", courtCandidates())
	second := Resolve("sunnyvale", courtCandidates())
	assert.Equal(t, first, second)
}

func TestResolvePlayer_FirstName(t *testing.T) {
	candidates := []NamedEntity{
		{ID: "p1", Name: "Alex Johnson", FirstName: "Alex"},
		{ID: "p2", Name: "Alex Smith", FirstName: "Alex"},
		{ID: "p3", Name: "Dana Wu", FirstName: "Dana"},
	}

	t.Run("unique first name", func(t *testing.T) {
		got := ResolvePlayer("dana", candidates)
		assert.Equal(t, MatchUnique, got.Kind)
		assert.Equal(t, "p3", got.Entity.ID)
	})

	t.Run("ambiguous first name lists full names", func(t *testing.T) {
		got := ResolvePlayer("Alex", candidates)
		assert.Equal(t, MatchAmbiguous, got.Kind)
		assert.Len(t, got.All, 2)

		prompt := DisambiguationPrompt("Alex", got)
		assert.Contains(t, prompt, "Alex Johnson")
		assert.Contains(t, prompt, "Alex Smith")
	})

	t.Run("unknown single token is not found", func(t *testing.T) {
		got := ResolvePlayer("Morgan", candidates)
		assert.Equal(t, MatchNotFound, got.Kind)
	})

	t.Run("full name goes through cascade", func(t *testing.T) {
		got := ResolvePlayer("alex smith", candidates)
		assert.Equal(t, MatchUnique, got.Kind)
		assert.Equal(t, "p2", got.Entity.ID)
	})
}
