package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/rallyd/internal/roster"
)

// fixedNow is Wednesday, March 4 2026.
func fixedNow() time.Time {
	return time.Date(2026, time.March, 4, 15, 30, 0, 0, time.UTC)
}

func testExtractor() *Deterministic {
	return NewDeterministicAt(fixedNow)
}

func TestDeterministic_ExtractDate(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"today", "can we play today", "2026-03-04"},
		{"tonight", "anyone up tonight", "2026-03-04"},
		{"tomorrow", "game tomorrow?", "2026-03-05"},
		{"upcoming weekday", "friday works for me", "2026-03-06"},
		{"today's weekday rolls to next week", "let's do Wednesday", "2026-03-11"},
		{"month day", "how about March 10", "2026-03-10"},
		{"month day with year", "March 10, 2027 maybe", "2027-03-10"},
		{"passed month day rolls to next year", "January 5 again", "2027-01-05"},
		{"day of month", "the 5th of June", "2026-06-05"},
		{"slash date", "3/15 at the usual place", "2026-03-15"},
		{"passed slash date rolls to next year", "3/1 like last time", "2027-03-01"},
		{"slash date with year", "12/31/2026 party game", "2026-12-31"},
		{"invalid month", "13/40 is not a date", ""},
		{"no date", "who's in?", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, testExtractor().ExtractDate(tt.message))
		})
	}
}

func TestDeterministic_ExtractTime(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"compact pm", "play at 4pm", "4:00 PM"},
		{"spaced am with minutes", "7:30 am works", "7:30 AM"},
		{"dotted meridiem", "say 6 p.m.", "6:00 PM"},
		{"bare at evening hour", "courts at 7", "7:00 PM"},
		{"bare at morning hour", "meet at 10", "10:00 AM"},
		{"bare at noon", "lunch game at 12", "12:00 PM"},
		{"no time", "tomorrow sometime", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, testExtractor().ExtractTime(tt.message))
		})
	}
}

func TestDeterministic_ExtractLocation(t *testing.T) {
	courts := []roster.NamedEntity{
		{ID: "c1", Name: "Sunnyvale Park"},
		{ID: "c2", Name: "Mitchell Park Courts"},
	}

	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"known court mentioned verbatim", "see you at sunnyvale park", "Sunnyvale Park"},
		{"at phrase resolved to known court", "let's play at Mitchell", "Mitchell Park Courts"},
		{"at phrase unknown court kept verbatim", "game at Riverside Rec with Bob", "Riverside Rec"},
		{"later at phrase wins when it resolves", "play at my place or at Mitchell?", "Mitchell Park Courts"},
		{"first at phrase is the fallback", "play at my place or at his place", "my place"},
		{"clock time is not a location", "game at 4pm", ""},
		{"no location", "tomorrow at 4pm", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, testExtractor().ExtractLocation(tt.message, courts))
		})
	}
}

func TestDeterministic_ExtractPlayers(t *testing.T) {
	players := []roster.NamedEntity{
		{ID: "p1", Name: "Alex Johnson", FirstName: "Alex"},
		{ID: "p2", Name: "Dana Wu", FirstName: "Dana"},
	}

	t.Run("me injected with scheduling keywords", func(t *testing.T) {
		got := testExtractor().ExtractPlayers("schedule a game", players)
		assert.Equal(t, []string{"me"}, got)
	})

	t.Run("full name substring", func(t *testing.T) {
		got := testExtractor().ExtractPlayers("is dana wu free?", players)
		assert.Equal(t, []string{"Dana Wu"}, got)
	})

	t.Run("with first name canonicalized", func(t *testing.T) {
		got := testExtractor().ExtractPlayers("play a match with Alex", players)
		assert.Equal(t, []string{"me", "Alex Johnson"}, got)
	})

	t.Run("unknown first name kept raw", func(t *testing.T) {
		got := testExtractor().ExtractPlayers("game with Morgan", players)
		assert.Equal(t, []string{"me", "Morgan"}, got)
	})

	t.Run("no scheduling keywords no me", func(t *testing.T) {
		got := testExtractor().ExtractPlayers("how was your weekend", players)
		assert.Empty(t, got)
	})
}

// The canonical end-to-end extraction scenario.
func TestDeterministic_ExtractScenario(t *testing.T) {
	players := []roster.NamedEntity{{ID: "p1", Name: "Alex Johnson", FirstName: "Alex"}}
	courts := []roster.NamedEntity{{ID: "c1", Name: "Sunnyvale Park"}}

	got := testExtractor().Extract(
		"schedule a game tomorrow at 4pm with Alex at Sunnyvale Park",
		players, courts,
	)

	assert.Equal(t, []string{"me", "Alex Johnson"}, got.Players)
	assert.Equal(t, "4:00 PM", got.Time)
	assert.Equal(t, "Sunnyvale Park", got.Location)

	wantDate := fixedNow().AddDate(0, 0, 1).Format(DateLayout)
	assert.Equal(t, wantDate, got.Date)
}
